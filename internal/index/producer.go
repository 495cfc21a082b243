package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/docindex/internal/command"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/queue"
	"github.com/Aman-CERP/docindex/internal/records"
)

// RecordSource is the part of the record store producers write through.
// *records.Repository implements it.
type RecordSource interface {
	Upsert(ctx context.Context, rec records.Record) error
	UpsertBatch(ctx context.Context, recs []records.Record) (int, error)
	Delete(ctx context.Context, id records.Identity) error
	GetAll(ctx context.Context) ([]records.Record, error)
}

var _ RecordSource = (*records.Repository)(nil)

// Producer writes records to the source of truth and queues the matching
// index commands. It never touches the index itself.
type Producer struct {
	queue   queue.Queue
	records RecordSource
	retry   docerrors.RetryConfig
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithRecordSource makes Index and DeIndex write through rs before queueing.
func WithRecordSource(rs RecordSource) ProducerOption {
	return func(p *Producer) {
		p.records = rs
	}
}

// WithRetry sets the backoff used for enqueue failures.
func WithRetry(cfg docerrors.RetryConfig) ProducerOption {
	return func(p *Producer) {
		p.retry = cfg
	}
}

// NewProducer creates a producer on q.
func NewProducer(q queue.Queue, opts ...ProducerOption) (*Producer, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	p := &Producer{
		queue: q,
		retry: docerrors.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit encodes cmd and enqueues it, retrying transient queue errors.
func (p *Producer) Submit(ctx context.Context, cmd command.Command) error {
	body, err := command.Encode(cmd)
	if err != nil {
		return err
	}
	if err := docerrors.Retry(ctx, p.retry, func() error {
		return p.queue.Enqueue(ctx, body)
	}); err != nil {
		return err
	}
	slog.Debug("command_submitted", slog.String("command", cmd.String()))
	return nil
}

// Index stores rec and queues it for indexing.
func (p *Producer) Index(ctx context.Context, rec records.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if p.records != nil {
		if err := p.records.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return p.Submit(ctx, command.Index(rec))
}

// IndexBatch stores recs and queues each for indexing. It returns how many
// commands were queued.
func (p *Producer) IndexBatch(ctx context.Context, recs []records.Record) (int, error) {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return 0, err
		}
	}
	if p.records != nil {
		if _, err := p.records.UpsertBatch(ctx, recs); err != nil {
			return 0, err
		}
	}
	return p.submitAll(ctx, recs)
}

// DeIndex deletes the record and queues its removal from the index.
func (p *Producer) DeIndex(ctx context.Context, id records.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if p.records != nil {
		if err := p.records.Delete(ctx, id); err != nil {
			return err
		}
	}
	return p.Submit(ctx, command.DeIndex(id))
}

// Optimize queues a compaction request.
func (p *Producer) Optimize(ctx context.Context) error {
	return p.Submit(ctx, command.Optimize())
}

// PurgeAll queues removal of every indexed document. Records are untouched.
func (p *Producer) PurgeAll(ctx context.Context) error {
	return p.Submit(ctx, command.PurgeAll())
}

// Reindex rebuilds the index from the record source: a purge, one index
// command per record, then a compaction request.
func (p *Producer) Reindex(ctx context.Context) (int, error) {
	if p.records == nil {
		return 0, fmt.Errorf("reindex requires a record source")
	}
	all, err := p.records.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	if err := p.PurgeAll(ctx); err != nil {
		return 0, err
	}
	n, err := p.submitAll(ctx, all)
	if err != nil {
		return n, err
	}
	if err := p.Optimize(ctx); err != nil {
		return n, err
	}

	slog.Info("reindex_queued", slog.Int("records", n))
	return n, nil
}

func (p *Producer) submitAll(ctx context.Context, recs []records.Record) (int, error) {
	for i, rec := range recs {
		if err := p.Submit(ctx, command.Index(rec)); err != nil {
			return i, err
		}
	}
	return len(recs), nil
}
