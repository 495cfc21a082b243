// Package search answers record queries from the full-text index.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docindex/internal/command"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/store"
)

// DefaultResultCap is the maximum number of records returned by one search.
const DefaultResultCap = 100

// DefaultMaxHeightSpan is the widest height range expanded into one query.
const DefaultMaxHeightSpan = 1000

// Query shapes, used as metric labels.
const (
	shapeFields = "fields"
	shapeName   = "name"
	shapeHeight = "height"
)

// ErrNoCriteria is returned when a search has nothing to constrain on.
var ErrNoCriteria = errors.New("at least one search criterion is required")

// ErrRangeTooWide is returned when a height range spans more values than
// the engine expands.
var ErrRangeTooWide = errors.New("height range is too wide")

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// ErrPurgeUnavailable is returned by PurgeAll on an engine built without
// WithPurge.
var ErrPurgeUnavailable = errors.New("purge is not configured")

// Searcher is the read side of the index the engine queries.
type Searcher interface {
	Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error)
}

// RecordStore is the source of truth PurgeAll empties.
type RecordStore interface {
	DeleteAll(ctx context.Context) (int, error)
}

// CommandSink accepts commands for the indexing worker.
type CommandSink interface {
	Submit(ctx context.Context, cmd command.Command) error
}

// Fields holds the optional criteria of an exact multi-field search. Empty
// strings and nil pointers leave a field unconstrained.
type Fields struct {
	FirstName      string
	LastName       string
	EmailAddress   string
	Gender         string
	DateOfBirth    *time.Time
	YearsAtAddress *int
	HeightInInches *int
	IsMarried      *bool
}

// SearchResult is one page of matching records, best match first.
type SearchResult struct {
	// Count is the total number of matches, which may exceed len(Records).
	Count   int              `json:"count"`
	Records []records.Record `json:"records"`
}

// Engine runs the three supported query shapes against a Searcher.
type Engine struct {
	index     Searcher
	fields    []string
	resultCap int
	maxSpan   int
	cacheSize int
	names     *nameQueryBuilder
	records   RecordStore
	sink      CommandSink
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithResultCap sets the maximum number of records returned per search.
func WithResultCap(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.resultCap = n
		}
	}
}

// WithMaxHeightSpan sets the widest height range a search may expand.
func WithMaxHeightSpan(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxSpan = n
		}
	}
}

// WithNameCacheSize sets how many parsed partial-name clauses are cached.
func WithNameCacheSize(n int) EngineOption {
	return func(e *Engine) {
		e.cacheSize = n
	}
}

// WithPurge enables PurgeAll. Records are deleted from rs and a PurgeAll
// command is submitted to sink so the index is cleared by the worker.
func WithPurge(rs RecordStore, sink CommandSink) EngineOption {
	return func(e *Engine) {
		e.records = rs
		e.sink = sink
	}
}

// NewEngine creates a query engine over index. fields are the stored fields
// loaded for each hit, usually store.PersonSchema.StoredFields().
func NewEngine(index Searcher, fields []string, opts ...EngineOption) (*Engine, error) {
	if index == nil {
		return nil, fmt.Errorf("%w: index is required", ErrNilDependency)
	}
	e := &Engine{
		index:     index,
		fields:    fields,
		resultCap: DefaultResultCap,
		maxSpan:   DefaultMaxHeightSpan,
		cacheSize: DefaultNameCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.names = newNameQueryBuilder(store.FieldFullName, e.cacheSize)
	return e, nil
}

// SearchByFields returns records equal to every supplied field.
func (e *Engine) SearchByFields(ctx context.Context, f Fields) (*SearchResult, error) {
	var clauses []query.Query
	add := func(field, value string) {
		if value != "" {
			clauses = append(clauses, termQuery(field, value))
		}
	}
	add(store.FieldFirstName, f.FirstName)
	add(store.FieldLastName, f.LastName)
	add(store.FieldEmailAddress, f.EmailAddress)
	add(store.FieldGender, f.Gender)
	if f.DateOfBirth != nil {
		add(store.FieldDateOfBirth, store.FormatDate(*f.DateOfBirth))
	}
	if f.YearsAtAddress != nil {
		add(store.FieldYearsAtAddress, strconv.Itoa(*f.YearsAtAddress))
	}
	if f.HeightInInches != nil {
		add(store.FieldHeightInInches, strconv.Itoa(*f.HeightInInches))
	}
	if f.IsMarried != nil {
		add(store.FieldIsMarried, store.FormatBool(*f.IsMarried))
	}

	if len(clauses) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(shapeFields, "rejected").Inc()
		return nil, noCriteria()
	}
	return e.run(ctx, shapeFields, bleve.NewConjunctionQuery(clauses...))
}

// SearchByPartialNameAndGender matches name prefixes anywhere in the full
// name, restricted to gender when one is given.
func (e *Engine) SearchByPartialNameAndGender(ctx context.Context, name, gender string) (*SearchResult, error) {
	var clauses []query.Query
	if gender != "" {
		clauses = append(clauses, termQuery(store.FieldGender, gender))
	}
	if nq := e.names.build(NormalizePartialName(name)); nq != nil {
		clauses = append(clauses, nq)
	}

	if len(clauses) == 0 {
		metrics.SearchRequestsTotal.WithLabelValues(shapeName, "rejected").Inc()
		return nil, noCriteria()
	}
	return e.run(ctx, shapeName, bleve.NewConjunctionQuery(clauses...))
}

// SearchByHeightRange matches records whose height is any integer in
// [minHeight, maxHeight]. Unless 0 < minHeight <= maxHeight the range is
// ignored and every record matches. Ranges wider than the engine's maximum
// span are rejected with ErrRangeTooWide.
func (e *Engine) SearchByHeightRange(ctx context.Context, minHeight, maxHeight int) (*SearchResult, error) {
	var q query.Query = bleve.NewMatchAllQuery()
	if minHeight > 0 && minHeight <= maxHeight {
		// Both bounds are positive, so the difference cannot overflow.
		span := maxHeight - minHeight
		if span >= e.maxSpan {
			metrics.SearchRequestsTotal.WithLabelValues(shapeHeight, "rejected").Inc()
			return nil, docerrors.New(docerrors.ErrCodeInvalidQuery,
				fmt.Sprintf("height range %d-%d covers more than %d values", minHeight, maxHeight, e.maxSpan),
				ErrRangeTooWide).
				WithSuggestion("Narrow the range or raise index.max_height_span")
		}
		heights := make([]query.Query, 0, span+1)
		for i := 0; i <= span; i++ {
			heights = append(heights, termQuery(store.FieldHeightInInches, strconv.Itoa(minHeight+i)))
		}
		q = bleve.NewConjunctionQuery(bleve.NewDisjunctionQuery(heights...))
	} else {
		slog.Debug("height_range_ignored",
			slog.Int("min", minHeight),
			slog.Int("max", maxHeight))
	}
	return e.run(ctx, shapeHeight, q)
}

// PurgeAll deletes every record and schedules the index purge. The record
// delete and the submit run concurrently; both are attempted even if one
// fails.
func (e *Engine) PurgeAll(ctx context.Context) (int, error) {
	if e.records == nil || e.sink == nil {
		return 0, ErrPurgeUnavailable
	}

	var (
		deleted   int
		deleteErr error
		submitErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		deleted, deleteErr = e.records.DeleteAll(ctx)
		return nil
	})
	g.Go(func() error {
		submitErr = e.sink.Submit(ctx, command.PurgeAll())
		return nil
	})
	_ = g.Wait()

	if err := errors.Join(deleteErr, submitErr); err != nil {
		slog.Error("purge_failed",
			slog.Int("records_deleted", deleted),
			slog.String("error", err.Error()))
		return deleted, err
	}
	slog.Info("purge_requested", slog.Int("records_deleted", deleted))
	return deleted, nil
}

func (e *Engine) run(ctx context.Context, shape string, q query.Query) (*SearchResult, error) {
	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(shape).Observe(time.Since(start).Seconds())
	}()

	req := bleve.NewSearchRequestOptions(q, e.resultCap, 0, false)
	req.Fields = e.fields
	req.SortBy([]string{"-_score"})

	res, err := e.index.Search(ctx, req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(shape, "error").Inc()
		return nil, err
	}

	out := &SearchResult{
		Count:   int(res.Total),
		Records: make([]records.Record, 0, len(res.Hits)),
	}
	for _, hit := range res.Hits {
		rec, err := store.RecordFromFields(hit.Fields)
		if err != nil {
			slog.Warn("search_hit_skipped",
				slog.String("id", hit.ID),
				slog.String("error", err.Error()))
			continue
		}
		out.Records = append(out.Records, rec)
	}

	metrics.SearchRequestsTotal.WithLabelValues(shape, "ok").Inc()
	slog.Debug("search_complete",
		slog.String("shape", shape),
		slog.Int("count", out.Count),
		slog.Int("returned", len(out.Records)),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

func termQuery(field, value string) query.Query {
	q := bleve.NewTermQuery(value)
	q.SetField(field)
	return q
}

func noCriteria() error {
	return docerrors.New(docerrors.ErrCodeNoCriteria, "no search criteria supplied", ErrNoCriteria).
		WithSuggestion("Supply at least one field to search on")
}
