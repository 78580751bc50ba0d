package protocol

import (
	"fmt"
	"strings"
)

// CellWidth is the number of dot positions in one Braille cell
const CellWidth = 6

// Sentinel tokens produced by an input source alongside cell patterns
const (
	EndOfInput = "END OF INPUT"
	Backspace  = "BACKSPACE"
)

// CellPattern is one Braille cell as six '0'/'1' characters.
// The first three characters are the left column (dots 1-3),
// the last three the right column (dots 4-6).
type CellPattern string

// Space is the blank cell
const Space CellPattern = "000000"

// ParseCell validates s as a cell pattern
func ParseCell(s string) (CellPattern, error) {
	if len(s) != CellWidth {
		return "", fmt.Errorf("cell pattern %q: want %d dots, got %d", s, CellWidth, len(s))
	}
	if strings.Trim(s, "01") != "" {
		return "", fmt.Errorf("cell pattern %q: dots must be 0 or 1", s)
	}
	return CellPattern(s), nil
}

// Left returns the left column half-pattern
func (c CellPattern) Left() string {
	return string(c[:3])
}

// Right returns the right column half-pattern
func (c CellPattern) Right() string {
	return string(c[3:])
}

// IsSpace reports whether no dot of the cell is raised
func (c CellPattern) IsSpace() bool {
	return c == Space
}

// Token is one item of an input stream: a cell pattern or a sentinel.
type Token string

// IsEnd reports whether the token terminates the session
func (t Token) IsEnd() bool {
	return t == EndOfInput
}

// IsBackspace reports whether the token requests a backspace
func (t Token) IsBackspace() bool {
	return t == Backspace
}

// Cell returns the token as a cell pattern.
// Sentinels and malformed tokens return an error.
func (t Token) Cell() (CellPattern, error) {
	if t.IsEnd() || t.IsBackspace() {
		return "", fmt.Errorf("token %q is a sentinel", string(t))
	}
	return ParseCell(string(t))
}
