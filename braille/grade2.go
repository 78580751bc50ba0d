package braille

// Grade 2 contractions in Braille ASCII. Only the wordsigns and the
// strong groupsigns are used; the translation stays readable without the
// lower and initial-letter contractions.

// wordsigns replace a whole word
var wordsigns = map[string]string{
	"and": "&", "for": "=", "of": "(", "the": "!", "with": ")",
	"but": "b", "can": "c", "do": "d", "every": "e", "from": "f",
	"go": "g", "have": "h", "just": "j", "knowledge": "k", "like": "l",
	"more": "m", "not": "n", "people": "p", "quite": "q", "rather": "r",
	"so": "s", "that": "t", "us": "u", "very": "v", "will": "w",
	"it": "x", "you": "y", "as": "z",
	"child": "*", "shall": "%", "this": "?", "which": ":", "out": "\\", "still": "/",
}

// groupsigns replace letter groups inside a word, longest first
var groupsigns = []struct{ letters, sign string }{
	{"with", ")"},
	{"and", "&"}, {"for", "="}, {"the", "!"}, {"ing", "+"},
	{"of", "("}, {"ch", "*"}, {"gh", "<"}, {"sh", "%"}, {"th", "?"},
	{"wh", ":"}, {"ed", "$"}, {"er", "]"}, {"ou", "\\"}, {"ow", "["},
	{"st", "/"}, {"ar", ">"},
}

// contract returns the grade 2 form of a lower-case word
func contract(word string) string {
	if sign, ok := wordsigns[word]; ok {
		return sign
	}

	var out []byte
	for i := 0; i < len(word); {
		matched := false
		for _, g := range groupsigns {
			if len(word)-i >= len(g.letters) && word[i:i+len(g.letters)] == g.letters {
				out = append(out, g.sign...)
				i += len(g.letters)
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, word[i])
			i++
		}
	}
	return string(out)
}
