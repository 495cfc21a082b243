package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// RedisConfig holds connection parameters for the Redis queue.
type RedisConfig struct {
	Addrs    []string
	Username string
	Password string
	DB       int
	Name     string
}

// RedisQueue is a reliable-list queue: producers LPUSH onto <name>:pending,
// consumers LMOVE the oldest entry onto <name>:processing and LREM it on ack.
// Entries left in processing by a crashed consumer are restored by Recover.
type RedisQueue struct {
	client     rueidis.Client
	pending    string
	processing string
	dead       string
	now        func() time.Time
}

var _ Queue = (*RedisQueue)(nil)

// envelope wraps a body so identical payloads remain distinguishable.
type envelope struct {
	ID         string    `json:"id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Body       []byte    `json:"body"`
}

type deadEntry struct {
	ID     string    `json:"id"`
	Body   []byte    `json:"body"`
	Reason string    `json:"reason"`
	DeadAt time.Time `json:"dead_at"`
}

// DialRedis connects to Redis and returns a queue named cfg.Name.
func DialRedis(cfg RedisConfig) (*RedisQueue, error) {
	if len(cfg.Addrs) == 0 {
		return nil, docerrors.New(docerrors.ErrCodeConfigInvalid, "queue.redis.addrs is required", nil)
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeQueueUnavailable, "failed to create redis client", err)
	}
	return NewRedis(client, cfg.Name), nil
}

// NewRedis wraps an existing client.
func NewRedis(client rueidis.Client, name string) *RedisQueue {
	if name == "" {
		name = "docindex"
	}
	return &RedisQueue{
		client:     client,
		pending:    name + ":pending",
		processing: name + ":processing",
		dead:       name + ":dead",
		now:        time.Now,
	}
}

// Enqueue pushes body onto the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, body []byte) error {
	raw, err := json.Marshal(envelope{ID: uuid.NewString(), EnqueuedAt: q.now(), Body: body})
	if err != nil {
		return docerrors.InternalError("failed to wrap queue message", err)
	}
	cmd := q.client.B().Lpush().Key(q.pending).Element(string(raw)).Build()
	if err := q.client.Do(ctx, cmd).Error(); err != nil {
		return docerrors.QueueError("enqueue failed", err)
	}
	return nil
}

// Dequeue moves the oldest pending entry onto the processing list.
func (q *RedisQueue) Dequeue(ctx context.Context) (Message, bool, error) {
	cmd := q.client.B().Lmove().Source(q.pending).Destination(q.processing).Right().Left().Build()
	raw, err := q.client.Do(ctx, cmd).ToString()
	if rueidis.IsRedisNil(err) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, docerrors.QueueError("dequeue failed", err)
	}

	msg := Message{Receipt: raw, DequeueCount: 1}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.ID == "" {
		// Foreign payload pushed without an envelope; hand it over as is.
		msg.Body = []byte(raw)
		return msg, true, nil
	}
	msg.ID = env.ID
	msg.Body = env.Body
	msg.EnqueuedAt = env.EnqueuedAt
	return msg, true, nil
}

// Ack removes the entry from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, msg Message) error {
	cmd := q.client.B().Lrem().Key(q.processing).Count(1).Element(msg.Receipt).Build()
	n, err := q.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return docerrors.New(docerrors.ErrCodeQueueAck, "ack failed", err)
	}
	if n == 0 {
		return docerrors.New(docerrors.ErrCodeQueueAck, "ack failed for "+msg.ID, ErrReceiptMismatch)
	}
	return nil
}

// DeadLetter records msg on the dead list and drops it from processing.
func (q *RedisQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	raw, err := json.Marshal(deadEntry{ID: msg.ID, Body: msg.Body, Reason: reason, DeadAt: q.now()})
	if err != nil {
		return docerrors.InternalError("failed to encode dead letter", err)
	}
	results := q.client.DoMulti(ctx,
		q.client.B().Lpush().Key(q.dead).Element(string(raw)).Build(),
		q.client.B().Lrem().Key(q.processing).Count(1).Element(msg.Receipt).Build(),
	)
	for _, r := range results {
		if err := r.Error(); err != nil {
			return docerrors.QueueError("dead-letter failed", err)
		}
	}
	return nil
}

// Len returns the number of pending entries.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.Do(ctx, q.client.B().Llen().Key(q.pending).Build()).AsInt64()
	if err != nil {
		return 0, docerrors.QueueError("count failed", err)
	}
	return int(n), nil
}

// DeadLetters lists dead-lettered entries, oldest first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	raws, err := q.client.Do(ctx, q.client.B().Lrange().Key(q.dead).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		return nil, docerrors.QueueError("list dead letters failed", err)
	}
	out := make([]DeadLetter, 0, len(raws))
	for i := len(raws) - 1; i >= 0; i-- {
		var e deadEntry
		if err := json.Unmarshal([]byte(raws[i]), &e); err != nil {
			return nil, fmt.Errorf("decode dead letter: %w", err)
		}
		out = append(out, DeadLetter{ID: e.ID, Body: e.Body, Reason: e.Reason, DeadAt: e.DeadAt})
	}
	return out, nil
}

// Recover moves every entry left on the processing list back to the head of
// pending, oldest first, and returns how many were restored. Call it once on
// worker start before the first Dequeue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	restored := 0
	for {
		cmd := q.client.B().Lmove().Source(q.processing).Destination(q.pending).Left().Right().Build()
		err := q.client.Do(ctx, cmd).Error()
		if rueidis.IsRedisNil(err) {
			break
		}
		if err != nil {
			return restored, docerrors.QueueError("recover failed", err)
		}
		restored++
	}
	if restored > 0 {
		slog.Info("queue_recovered",
			slog.String("queue", q.pending),
			slog.Int("messages", restored))
	}
	return restored, nil
}

// Close shuts down the client.
func (q *RedisQueue) Close() error {
	q.client.Close()
	return nil
}
