package search

import "strings"

// PrefixMarker is appended to each partial-name token.
const PrefixMarker = "*"

// NormalizePartialName turns free user text into prefix tokens: wildcard
// characters are dropped, '-' and '#' separate words, empty tokens are
// discarded and each survivor gets PrefixMarker appended.
//
//	NormalizePartialName("Jo-hn*") == []string{"Jo*", "hn*"}
func NormalizePartialName(text string) []string {
	text = strings.TrimSpace(text)
	text = strings.NewReplacer("*", "", "?", "", "-", " ", "#", " ").Replace(text)

	fields := strings.Fields(text)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, f+PrefixMarker)
	}
	return tokens
}

// queryStringSpecials are the characters bleve's query string syntax treats
// as operators.
const queryStringSpecials = `+-=&|><!(){}[]^"~*?:\/ `

// escapeQueryString escapes every operator character so the text is read as
// literal characters.
func escapeQueryString(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(queryStringSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
