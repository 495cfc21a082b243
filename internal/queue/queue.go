// Package queue provides the durable at-least-once work queues that carry
// encoded commands from producers to the indexing worker.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrReceiptMismatch is returned by Ack and DeadLetter when the message was
// re-claimed by another consumer after its visibility timeout expired.
var ErrReceiptMismatch = errors.New("queue receipt no longer valid")

// Message is one dequeued payload. It stays invisible to other consumers
// until acknowledged, dead-lettered, or its claim expires.
type Message struct {
	ID           string
	Body         []byte
	Receipt      string
	DequeueCount int
	EnqueuedAt   time.Time
}

// DeadLetter is a message set aside because it can never be applied.
type DeadLetter struct {
	ID     string
	Body   []byte
	Reason string
	DeadAt time.Time
}

// Queue is the contract the worker and producers share. Dequeue reports ok
// false, with a nil error, when the queue is empty.
type Queue interface {
	Enqueue(ctx context.Context, body []byte) error
	Dequeue(ctx context.Context) (msg Message, ok bool, err error)
	Ack(ctx context.Context, msg Message) error
	DeadLetter(ctx context.Context, msg Message, reason string) error
	Len(ctx context.Context) (int, error)
	Close() error
}
