// Package braille translates text into CUB cell patterns.
//
// Three input languages are understood: ENG is print English, translated
// to Unified English Braille at grade 1 or grade 2; UEB is text already
// written in Braille ASCII; BKB is one token of the Braille keyboard.
package braille

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Chertan/CUB-Control-Software/protocol"
)

// Input languages
const (
	English  = "ENG"
	UEB      = "UEB"
	Keyboard = "BKB"
)

// ErrUntranslatable is returned for input with no Braille equivalent
var ErrUntranslatable = errors.New("no braille equivalent")

// ParseLanguage accepts a language code or a BCP 47 tag. Any English tag
// selects ENG.
func ParseLanguage(s string) (string, error) {
	switch code := strings.ToUpper(strings.TrimSpace(s)); code {
	case English, UEB, Keyboard:
		return code, nil
	}

	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unknown language %q: %w", s, err)
	}
	base, _ := tag.Base()
	if eng, _ := language.English.Base(); base == eng {
		return English, nil
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

// Translate converts text in lang to cell patterns. grade applies to ENG
// only.
func Translate(text, lang string, grade int) ([]protocol.CellPattern, error) {
	switch lang {
	case English:
		ascii, err := ToASCII(text, grade)
		if err != nil {
			return nil, err
		}
		return asciiToCells(ascii)
	case UEB:
		text = strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return ' '
			}
			return unicode.ToLower(r)
		}, text)
		return asciiToCells(text)
	case Keyboard:
		c, err := KeyboardCell(text)
		if err != nil {
			return nil, err
		}
		return []protocol.CellPattern{c}, nil
	default:
		return nil, fmt.Errorf("unknown language %q", lang)
	}
}

// KeyboardCell returns the cell of one Braille keyboard token
func KeyboardCell(token string) (protocol.CellPattern, error) {
	if token != " " {
		token = strings.ToLower(strings.TrimSpace(token))
	}
	c, ok := keyboardCells[token]
	if !ok {
		return "", fmt.Errorf("keyboard token %q: %w", token, ErrUntranslatable)
	}
	return c, nil
}

func asciiToCells(ascii string) ([]protocol.CellPattern, error) {
	cells := make([]protocol.CellPattern, 0, len(ascii))
	for _, r := range ascii {
		c, ok := asciiCells[r]
		if !ok {
			return nil, fmt.Errorf("character %q: %w", r, ErrUntranslatable)
		}
		cells = append(cells, c)
	}
	return cells, nil
}

// Braille ASCII indicators
const (
	capital     = ","
	capitalWord = ",,"
	numeric     = "#"
	grade1      = ";"
)

// punctuation in Braille ASCII, as UEB writes it
var punctuation = map[rune]string{
	'.': "4", ',': "1", '?': "8", '!': "6", ';': "2", ':': "3",
	'\'': "'", '-': "-", '(': "\"<", ')': "\">", '/': "_/",
	'&': "@&", '@': "@a", '#': "_?", '%': ".0", '*': "\"9",
	'+': "\"6", '=': "\"7", '$': "@s", '[': ".<", ']': ".>",
}

// stripMarks removes accents: é becomes e
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

// ToASCII translates print English into Braille ASCII at grade 1 or 2
func ToASCII(text string, grade int) (string, error) {
	if grade != 1 && grade != 2 {
		return "", fmt.Errorf("invalid grade %d of Unified English Braille", grade)
	}
	plain, _, err := transform.String(stripMarks(), text)
	if err != nil {
		return "", fmt.Errorf("normalising %q: %w", text, err)
	}
	lower := cases.Lower(language.English)

	var b strings.Builder
	src := []rune(plain)
	afterNumber := false
	quoteOpen := false

	for i := 0; i < len(src); {
		r := src[i]
		switch {
		case unicode.IsLetter(r):
			j := i
			for j < len(src) && unicode.IsLetter(src[j]) {
				j++
			}
			word := string(src[i:j])
			if afterNumber && strings.ContainsRune("abcdefghij", unicode.ToLower(src[i])) {
				b.WriteString(grade1)
			}
			b.WriteString(translateWord(lower.String(word), word, grade))
			afterNumber = false
			i = j

		case unicode.IsDigit(r):
			b.WriteString(numeric)
			for i < len(src) {
				if unicode.IsDigit(src[i]) {
					b.WriteByte(digitLetter(src[i]))
					i++
					continue
				}
				// decimal point and thousands separator stay in the number
				if (src[i] == '.' || src[i] == ',') && i+1 < len(src) && unicode.IsDigit(src[i+1]) {
					b.WriteString(punctuation[src[i]])
					i++
					continue
				}
				break
			}
			afterNumber = true

		case unicode.IsSpace(r):
			b.WriteByte(' ')
			afterNumber = false
			i++

		case r == '"':
			if quoteOpen {
				b.WriteByte('0')
			} else {
				b.WriteByte('8')
			}
			quoteOpen = !quoteOpen
			afterNumber = false
			i++

		default:
			p, ok := punctuation[r]
			if !ok {
				return "", fmt.Errorf("character %q: %w", r, ErrUntranslatable)
			}
			b.WriteString(p)
			afterNumber = false
			i++
		}
	}
	return b.String(), nil
}

func digitLetter(d rune) byte {
	if d == '0' {
		return 'j'
	}
	return byte('a' + d - '1')
}

// translateWord writes one run of letters with its capital indicators
func translateWord(low, word string, grade int) string {
	if len(low) != len(word) {
		// lower-casing changed the length; no ASCII cell for it anyway
		return low
	}

	upper := 0
	for _, r := range word {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	runeCount := len([]rune(word))
	firstUpper := unicode.IsUpper([]rune(word)[0])

	var prefix string
	switch {
	case upper == 0:
	case upper == runeCount && runeCount > 1:
		prefix = capitalWord
	case upper == 1 && firstUpper:
		prefix = capital
	default:
		// mixed case: mark each capital and keep grade 1
		var b strings.Builder
		for _, r := range word {
			if unicode.IsUpper(r) {
				b.WriteString(capital)
			}
			b.WriteRune(unicode.ToLower(r))
		}
		return b.String()
	}

	if grade == 2 {
		if len(low) == 1 && !strings.Contains("aio", low) {
			// a lone letter would read as its wordsign
			return prefix + grade1 + low
		}
		return prefix + contract(low)
	}
	return prefix + low
}
