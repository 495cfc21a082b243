package search

import (
	"log/slog"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/docindex/internal/metrics"
)

// DefaultNameCacheSize is the number of parsed name clauses kept.
const DefaultNameCacheSize = 1024

// nameQueryBuilder parses normalized partial-name tokens into a clause on the
// full-name field, caching the result per token list.
type nameQueryBuilder struct {
	field string
	cache *lru.Cache[string, query.Query]
}

func newNameQueryBuilder(field string, cacheSize int) *nameQueryBuilder {
	if cacheSize <= 0 {
		cacheSize = DefaultNameCacheSize
	}
	cache, _ := lru.New[string, query.Query](cacheSize)
	return &nameQueryBuilder{field: field, cache: cache}
}

// build returns the clause for tokens, or nil when there are none.
//
// Wildcard terms bypass the analyzer, so tokens are lowercased to meet the
// lowercased terms in the index. If the query string does not parse, the
// tokens are escaped and parsed once more; if that fails too, a plain match
// query on the joined tokens is used. Parse problems never reach the caller.
func (b *nameQueryBuilder) build(tokens []string) query.Query {
	if len(tokens) == 0 {
		return nil
	}
	key := strings.Join(tokens, " ")
	if q, ok := b.cache.Get(key); ok {
		metrics.NameQueryCacheTotal.WithLabelValues("hit").Inc()
		return q
	}
	metrics.NameQueryCacheTotal.WithLabelValues("miss").Inc()

	q := b.parse(tokens)
	b.cache.Add(key, q)
	return q
}

func (b *nameQueryBuilder) parse(tokens []string) query.Query {
	lowered := make([]string, len(tokens))
	for i, t := range tokens {
		lowered[i] = strings.ToLower(t)
	}

	q, err := b.parseWith(lowered, func(t string) string { return t })
	if err == nil {
		return q
	}
	slog.Debug("name_query_parse_failed",
		slog.String("tokens", strings.Join(lowered, " ")),
		slog.String("error", err.Error()))

	metrics.QueryParseFallbackTotal.WithLabelValues("escaped").Inc()
	if q, err = b.parseWith(lowered, escapeQueryString); err == nil {
		return q
	}

	metrics.QueryParseFallbackTotal.WithLabelValues("match").Inc()
	mq := bleve.NewMatchQuery(strings.Join(lowered, " "))
	mq.SetField(b.field)
	return mq
}

func (b *nameQueryBuilder) parseWith(tokens []string, transform func(string) string) (query.Query, error) {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = b.field + ":" + transform(t)
	}
	return bleve.NewQueryStringQuery(strings.Join(parts, " ")).Parse()
}
