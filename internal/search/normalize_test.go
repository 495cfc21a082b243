package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePartialName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"hyphen splits and wildcard dropped", "Jo-hn*", []string{"Jo*", "hn*"}},
		{"single token", "smith", []string{"smith*"}},
		{"hash splits", "a#b", []string{"a*", "b*"}},
		{"question mark dropped", "sm?th", []string{"smth*"}},
		{"extra whitespace", "  john   smith ", []string{"john*", "smith*"}},
		{"only punctuation", "*-#?", []string{}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePartialName(tt.input))
		})
	}
}

func TestEscapeQueryString(t *testing.T) {
	assert.Equal(t, `jo\*`, escapeQueryString("jo*"))
	assert.Equal(t, `a\:b\(`, escapeQueryString("a:b("))
	assert.Equal(t, "plain", escapeQueryString("plain"))
}

func TestNameQueryBuilder_CachesParsedClause(t *testing.T) {
	b := newNameQueryBuilder("FullName", 4)

	first := b.build([]string{"Jo*", "hn*"})
	second := b.build([]string{"Jo*", "hn*"})

	assert.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, 1, b.cache.Len())
}

func TestNameQueryBuilder_NoTokens(t *testing.T) {
	b := newNameQueryBuilder("FullName", 4)

	assert.Nil(t, b.build(nil))
}
