// Package index drains queued commands into the full-text index and hosts
// the polling loop that drives it.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Aman-CERP/docindex/internal/command"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
	"github.com/Aman-CERP/docindex/internal/queue"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/store"
)

// Session is the exclusive writer a drain cycle mutates the index through.
// *store.WriterSession implements it.
type Session interface {
	Open() error
	ApplyIndex(rec records.Record) error
	ApplyDeIndex(id records.Identity) error
	ApplyPurge(ctx context.Context) error
	Close(ctx context.Context, optimize bool) error
	ForceClose()
}

var _ Session = (*store.WriterSession)(nil)

// DrainResult reports what one drain cycle did.
type DrainResult struct {
	// DidWork is true when the cycle emptied the queue and closed the
	// session cleanly.
	DidWork bool `json:"did_work"`

	// Applied counts commands applied and acknowledged.
	Applied int `json:"applied"`

	// Malformed counts payloads that could not be decoded and were
	// dead-lettered.
	Malformed int `json:"malformed"`

	// Optimized is true when an Optimize command was seen this cycle.
	Optimized bool `json:"optimized"`
}

// Worker applies queued commands through a writer session. Only one drain
// cycle may run at a time per Worker.
type Worker struct {
	queue   queue.Queue
	session Session
}

// NewWorker creates a worker draining q into session.
func NewWorker(q queue.Queue, session Session) (*Worker, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if session == nil {
		return nil, fmt.Errorf("writer session is required")
	}
	return &Worker{queue: q, session: session}, nil
}

// DrainOnce runs one drain cycle.
//
// An empty queue returns a zero result and nil error without opening the
// session. Otherwise the session is opened and every queued command is
// applied and acknowledged in turn until the queue is empty, then the session
// is closed with compaction. Any failure after the session opened
// force-closes it and is returned; commands not yet acknowledged stay queued
// and are re-delivered to a later cycle.
func (w *Worker) DrainOnce(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	msg, ok, err := w.queue.Dequeue(ctx)
	if err != nil {
		return res, w.fail(err, "dequeue failed", false)
	}
	if !ok {
		metrics.DrainCyclesTotal.WithLabelValues("idle").Inc()
		return res, nil
	}

	start := time.Now()
	if err := w.session.Open(); err != nil {
		if errors.Is(err, store.ErrWriteLocked) {
			metrics.WriteLockContentionTotal.Inc()
		}
		return res, w.fail(err, "writer session unavailable", false)
	}
	slog.Debug("drain_started", slog.String("first_message", msg.ID))

	for {
		if err := w.handle(ctx, msg, &res); err != nil {
			slog.Warn("drain_aborted",
				slog.String("message_id", msg.ID),
				slog.Int("applied", res.Applied),
				slog.String("error", err.Error()))
			return DrainResult{Applied: res.Applied, Malformed: res.Malformed}, w.fail(err, "drain aborted", true)
		}

		msg, ok, err = w.queue.Dequeue(ctx)
		if err != nil {
			return DrainResult{Applied: res.Applied, Malformed: res.Malformed}, w.fail(err, "dequeue failed", true)
		}
		if !ok {
			break
		}
	}

	metrics.CompactionsTotal.WithLabelValues(strconv.FormatBool(res.Optimized)).Inc()
	if err := w.session.Close(ctx, true); err != nil {
		metrics.DrainCyclesTotal.WithLabelValues("failed").Inc()
		return res, docerrors.New(docerrors.ErrCodeDrainFailed, "writer session close failed", err)
	}

	res.DidWork = true
	metrics.DrainCyclesTotal.WithLabelValues("work").Inc()
	metrics.DrainDuration.Observe(time.Since(start).Seconds())
	slog.Info("drain_complete",
		slog.Int("applied", res.Applied),
		slog.Int("malformed", res.Malformed),
		slog.Bool("optimize_requested", res.Optimized),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

// handle applies and acknowledges one message. Malformed payloads are
// dead-lettered instead of applied.
func (w *Worker) handle(ctx context.Context, msg queue.Message, res *DrainResult) error {
	cmd, err := command.Decode(msg.Body)
	if err != nil {
		slog.Warn("command_malformed",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()))
		if err := w.queue.DeadLetter(ctx, msg, err.Error()); err != nil {
			return w.settleError(err, msg)
		}
		metrics.CommandsMalformedTotal.Inc()
		res.Malformed++
		return nil
	}

	if err := w.apply(ctx, cmd, res); err != nil {
		return err
	}

	if err := w.queue.Ack(ctx, msg); err != nil {
		return w.settleError(err, msg)
	}
	metrics.CommandsAppliedTotal.WithLabelValues(string(cmd.Kind)).Inc()
	res.Applied++
	slog.Debug("command_applied",
		slog.String("message_id", msg.ID),
		slog.String("command", cmd.String()))
	return nil
}

func (w *Worker) apply(ctx context.Context, cmd command.Command, res *DrainResult) error {
	switch cmd.Kind {
	case command.KindIndex:
		return w.session.ApplyIndex(*cmd.Record)
	case command.KindDeIndex:
		id, _ := cmd.Identity()
		return w.session.ApplyDeIndex(id)
	case command.KindPurgeAll:
		return w.session.ApplyPurge(ctx)
	case command.KindOptimize:
		res.Optimized = true
		return nil
	default:
		return docerrors.New(docerrors.ErrCodeInternal, "unhandled command kind "+string(cmd.Kind), nil)
	}
}

// settleError decides whether a failed ack or dead-letter aborts the drain.
// A stale receipt means another consumer re-claimed the message and will
// apply it again, so the drain carries on.
func (w *Worker) settleError(err error, msg queue.Message) error {
	if errors.Is(err, queue.ErrReceiptMismatch) {
		slog.Warn("message_reclaimed", slog.String("message_id", msg.ID))
		return nil
	}
	return err
}

// fail records a failed cycle. When opened is set the session is
// force-closed first.
func (w *Worker) fail(err error, msg string, opened bool) error {
	if opened {
		w.session.ForceClose()
	}
	metrics.DrainCyclesTotal.WithLabelValues("failed").Inc()

	var de *docerrors.DocError
	if errors.As(err, &de) {
		return err
	}
	return docerrors.New(docerrors.ErrCodeDrainFailed, msg, err)
}
