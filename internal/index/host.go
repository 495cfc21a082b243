package index

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/metrics"
)

// DefaultPollInterval is how long the host sleeps after an idle or failed
// drain cycle.
const DefaultPollInterval = 5 * time.Second

// Drainer runs one drain cycle. *Worker implements it.
type Drainer interface {
	DrainOnce(ctx context.Context) (DrainResult, error)
}

// DepthReporter reports how many messages are waiting.
type DepthReporter interface {
	Len(ctx context.Context) (int, error)
}

// Host drives a Drainer: cycles run back to back while they find work, and
// the host sleeps between cycles otherwise. The stop signal is observed only
// between cycles, so an in-flight drain always runs to completion.
type Host struct {
	drainer  Drainer
	interval time.Duration
	wake     <-chan struct{}
	depth    DepthReporter

	stopOnce sync.Once
	stopCh   chan struct{}
	running  atomic.Bool
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithPollInterval sets the sleep between idle cycles.
func WithPollInterval(d time.Duration) HostOption {
	return func(h *Host) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithWake sets a channel that cuts an idle sleep short.
func WithWake(c <-chan struct{}) HostOption {
	return func(h *Host) {
		h.wake = c
	}
}

// WithDepthReporter publishes the queue depth gauge after each cycle.
func WithDepthReporter(d DepthReporter) HostOption {
	return func(h *Host) {
		h.depth = d
	}
}

// NewHost creates a host for d.
func NewHost(d Drainer, opts ...HostOption) *Host {
	h := &Host{
		drainer:  d,
		interval: DefaultPollInterval,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start runs drain cycles until Stop is called or ctx is cancelled. It
// blocks, and returns nil on either signal.
func (h *Host) Start(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return nil
	}
	defer h.running.Store(false)

	slog.Info("worker_started", slog.Duration("poll_interval", h.interval))
	defer slog.Info("worker_stopped")

	// Cancellation stops the loop but never interrupts a cycle.
	drainCtx := context.WithoutCancel(ctx)

	timer := time.NewTimer(h.interval)
	defer timer.Stop()

	for {
		if h.stopping(ctx) {
			return nil
		}

		// The cycle about to run sees every write made so far, including
		// the previous cycle's own acks, so earlier wakes are spent.
		h.clearWake()

		res, err := h.drainer.DrainOnce(drainCtx)
		h.reportDepth(drainCtx)
		if err != nil {
			slog.LogAttrs(drainCtx, slog.LevelWarn, "drain_failed", docerrors.LogAttrs(err)...)
		} else if res.DidWork {
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(h.interval)

		select {
		case <-ctx.Done():
			return nil
		case <-h.stopCh:
			return nil
		case <-h.wake:
			slog.Debug("worker_woken")
		case <-timer.C:
		}
	}
}

// Stop asks the loop to exit after the current cycle. Safe to call more
// than once.
func (h *Host) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Host) clearWake() {
	select {
	case <-h.wake:
	default:
	}
}

func (h *Host) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-h.stopCh:
		return true
	default:
		return false
	}
}

func (h *Host) reportDepth(ctx context.Context) {
	if h.depth == nil {
		return
	}
	n, err := h.depth.Len(ctx)
	if err != nil {
		slog.Debug("queue_depth_unavailable", slog.String("error", err.Error()))
		return
	}
	metrics.QueueDepth.Set(float64(n))
}
