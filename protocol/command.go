package protocol

import (
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Null fills unspecified fields of a command on the wire
const Null = "NULL"

// Op is the operation key of a command
type Op uint8

const (
	OpNone Op = iota
	OpMove
	OpHome
	OpFeed
	OpPaper
	OpEmboss
	OpClose
)

var opNames = [...]string{
	OpNone:   Null,
	OpMove:   "MOVE",
	OpHome:   "HOME",
	OpFeed:   "FEED",
	OpPaper:  "PAPER",
	OpEmboss: "EMBOSS",
	OpClose:  "CLOSE",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "OP(" + strconv.Itoa(int(o)) + ")"
}

// ParseOp looks up an operation key by its wire name
func ParseOp(s string) (Op, bool) {
	for i, name := range opNames {
		if i != int(OpNone) && name == s {
			return Op(i), true
		}
	}
	return OpNone, false
}

// Direction of a movement
type Direction uint8

const (
	DirNone Direction = iota
	Pos
	Neg
)

func (d Direction) String() string {
	switch d {
	case Pos:
		return "POS"
	case Neg:
		return "NEG"
	default:
		return Null
	}
}

// Reverse returns the opposite direction
func (d Direction) Reverse() Direction {
	switch d {
	case Pos:
		return Neg
	case Neg:
		return Pos
	default:
		return DirNone
	}
}

// ParseDirection parses POS, NEG or NULL
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "POS":
		return Pos, true
	case "NEG":
		return Neg, true
	case Null, "":
		return DirNone, true
	default:
		return DirNone, false
	}
}

// Index values understood by the controllers
const (
	IndexCol   = "COL"
	IndexChar  = "CHAR"
	IndexLoad  = "LOAD"
	IndexEject = "EJECT"
)

// Command is a single instruction for one actuator controller.
// An empty Index, DirNone and a zero Count are NULL on the wire.
type Command struct {
	Op    Op
	Index string
	Dir   Direction
	Count int
}

// MoveCol moves the head between the two columns of a cell
func MoveCol(dir Direction, count int) Command {
	return Command{Op: OpMove, Index: IndexCol, Dir: dir, Count: count}
}

// MoveChar moves the head across the gap between two cells
func MoveChar(dir Direction, count int) Command {
	return Command{Op: OpMove, Index: IndexChar, Dir: dir, Count: count}
}

// SelectTool rotates the tool selector to the face combination of a
// 3-dot column half-pattern
func SelectTool(half string) Command {
	return Command{Op: OpMove, Index: half}
}

// Home returns an actuator to its sensor-verified reference position
func Home() Command {
	return Command{Op: OpHome}
}

// FeedLines feeds the paper by n lines
func FeedLines(n int, dir Direction) Command {
	return Command{Op: OpFeed, Index: strconv.Itoa(n), Dir: dir}
}

// LoadPaper draws a fresh sheet from the tray
func LoadPaper() Command {
	return Command{Op: OpPaper, Index: IndexLoad}
}

// EjectPaper feeds the current sheet out of the embosser
func EjectPaper() Command {
	return Command{Op: OpPaper, Index: IndexEject}
}

// Emboss fires one embosser strike
func Emboss() Command {
	return Command{Op: OpEmboss}
}

// Close shuts a controller down
func Close() Command {
	return Command{Op: OpClose}
}

// Repeat returns the repeat count, defaulting to one
func (c Command) Repeat() int {
	if c.Count <= 0 {
		return 1
	}
	return c.Count
}

// String renders the wire format <KEY> <INDEX> <DIRECTION> [<COUNT>],
// dropping trailing NULL fields.
func (c Command) String() string {
	fields := []string{c.Op.String(), Null, c.Dir.String(), Null}
	if c.Index != "" {
		fields[1] = c.Index
	}
	if c.Count > 0 {
		fields[3] = strconv.Itoa(c.Count)
	}

	n := len(fields)
	for n > 1 && fields[n-1] == Null {
		n--
	}
	return strings.Join(fields[:n], " ")
}

// ParseCommand decodes a wire-format command line.
// Missing trailing fields default to NULL.
func ParseCommand(line string) (Command, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return Command{}, &CommunicationError{Component: "Protocol", Input: line, Message: err.Error()}
	}
	if len(tokens) == 0 || len(tokens) > 4 {
		return Command{}, &CommunicationError{Component: "Protocol", Input: line, Message: "expected 1 to 4 fields"}
	}
	for len(tokens) < 4 {
		tokens = append(tokens, Null)
	}

	op, ok := ParseOp(strings.ToUpper(tokens[0]))
	if !ok {
		return Command{}, &CommunicationError{Component: "Protocol", Input: tokens[0], Message: "Key portion of message"}
	}

	cmd := Command{Op: op}
	if idx := strings.ToUpper(tokens[1]); idx != Null {
		cmd.Index = idx
	}

	dir, ok := ParseDirection(strings.ToUpper(tokens[2]))
	if !ok {
		return Command{}, &CommunicationError{Component: "Protocol", Input: tokens[2], Message: "Direction portion of message"}
	}
	cmd.Dir = dir

	if tokens[3] != Null {
		count, err := strconv.Atoi(tokens[3])
		if err != nil || count < 0 {
			return Command{}, &CommunicationError{Component: "Protocol", Input: tokens[3], Message: "Count conversion to Integer Failed"}
		}
		cmd.Count = count
	}

	return cmd, nil
}
