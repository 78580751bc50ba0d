package braille

import (
	"github.com/Chertan/CUB-Control-Software/protocol"
)

// cell builds a cell pattern from dot numbers, e.g. "1245"
func cell(dots string) protocol.CellPattern {
	b := []byte(protocol.Space)
	for _, d := range dots {
		b[d-'1'] = '1'
	}
	return protocol.CellPattern(b)
}

// asciiDots is North American Braille ASCII: one printable character per
// cell. The output of the English translator and UEB input files use it.
var asciiDots = map[rune]string{
	' ': "", '!': "2346", '"': "5", '#': "3456", '$': "1246", '%': "146",
	'&': "12346", '\'': "3", '(': "12356", ')': "23456", '*': "16", '+': "346",
	',': "6", '-': "36", '.': "46", '/': "34", '0': "356", '1': "2",
	'2': "23", '3': "25", '4': "256", '5': "26", '6': "235", '7': "2356",
	'8': "236", '9': "35", ':': "156", ';': "56", '<': "126", '=': "123456",
	'>': "345", '?': "1456", '@': "4", '[': "246", '\\': "1256", ']': "12456",
	'^': "45", '_': "456",
	'a': "1", 'b': "12", 'c': "14", 'd': "145", 'e': "15", 'f': "124",
	'g': "1245", 'h': "125", 'i': "24", 'j': "245", 'k': "13", 'l': "123",
	'm': "134", 'n': "1345", 'o': "135", 'p': "1234", 'q': "12345", 'r': "1235",
	's': "234", 't': "2345", 'u': "136", 'v': "1236", 'w': "2456", 'x': "1346",
	'y': "13456", 'z': "1356",
}

// keyboardDots maps the tokens of the Braille keyboard to cells. Besides
// letters and punctuation the keyboard has keys for contractions and
// indicators.
var keyboardDots = map[string]string{
	" ": "",
	"a": "1", "b": "12", "c": "14", "d": "145", "e": "15", "f": "124",
	"g": "1245", "h": "125", "i": "24", "j": "245", "k": "13", "l": "123",
	"m": "134", "n": "1345", "o": "135", "p": "1234", "q": "12345", "r": "1235",
	"s": "234", "t": "2345", "u": "136", "v": "1236", "w": "2456", "x": "1346",
	"y": "13456", "z": "1356",

	"and": "12346", "for": "123456", "of": "12356", "the": "2346", "with": "23456",
	"ch": "16", "gh": "126", "sh": "146", "th": "1456", "wh": "156",
	"ed": "1246", "er": "12456", "ou": "1256", "ow": "246", "st": "34",
	"ar": "345", "ing": "346", "en": "26", "in": "35",

	",": "2", ";": "23", ":": "25", ".": "256", "!": "235", "(": "2356",
	")": "2356", "?": "236", "\"": "356", "'": "3", "-": "36", "$": "45",

	"<uppercase>": "6", "<number>": "3456", "<italic>": "46", "<letter>": "56",
	"<accent>": "4", "<contract1>": "5", "<contract2>": "456",
}

var (
	asciiCells    = make(map[rune]protocol.CellPattern, len(asciiDots))
	keyboardCells = make(map[string]protocol.CellPattern, len(keyboardDots))
)

func init() {
	for r, dots := range asciiDots {
		asciiCells[r] = cell(dots)
	}
	for tok, dots := range keyboardDots {
		keyboardCells[tok] = cell(dots)
	}
}
