// Package terms defines what counts as a searchable term. The keyword channel
// and the lexical rerank judge both tokenize through it so they agree on
// matches.
package terms

import (
	"strings"
	"unicode"
)

// Tokenize lower-cases s and splits it into runs of letters and digits.
// Punctuation, underscores and whitespace separate terms.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), isSeparator)
}

// Set returns the distinct terms of s.
func Set(s string) map[string]struct{} {
	tokens := Tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// Counts accumulates weighted term frequencies over several fields, e.g. a
// chunk body at weight 1 and its filename at a boost.
type Counts map[string]float64

func (c Counts) Add(text string, weight float64) {
	for _, token := range Tokenize(text) {
		c[token] += weight
	}
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
