package lexical

import (
	"strings"
	"unicode"
)

// Tokenize breaks text into lowercased terms, splitting on any rune that is
// neither a letter nor a digit. The same function is used for document text
// at indexing time and for query terms, so matching stays symmetric.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
