package menu

import "strings"

// stopwords are dropped from search queries before token matching. The list
// covers articles, politeness fillers and packaging words customers attach to
// item names ("a large coke meal please").
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"of": {}, "with": {}, "and": {},
	"some": {}, "one": {},
	"please": {}, "thanks": {}, "thank": {},
	"meal": {}, "combo": {},
	"i": {}, "want": {}, "like": {}, "get": {}, "have": {},
	"me": {}, "my": {}, "order": {},
}

// punctuation stripped during normalization.
const punctuation = ".,!?;:'\"()[]{}-_/\\"

// Normalize lowercases the input, strips punctuation and collapses interior
// whitespace. It is the shared first step of search and exact-name matching.
func Normalize(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(punctuation, r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Tokenize splits a normalized query into match tokens: stopwords and tokens
// shorter than two characters are dropped.
func Tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		if len(f) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// matchTokens reports whether any query token is a substring of the
// normalized item name.
func matchTokens(tokens []string, normalizedName string) bool {
	for _, t := range tokens {
		if strings.Contains(normalizedName, t) {
			return true
		}
	}
	return false
}
