// Package app wires configuration into the queue, record store, index and
// the services built on them. One App is created per CLI invocation and
// closed on exit; components open lazily so commands only touch the stores
// they need.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/daemon"
	"github.com/Aman-CERP/docindex/internal/index"
	"github.com/Aman-CERP/docindex/internal/preflight"
	"github.com/Aman-CERP/docindex/internal/queue"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/search"
	"github.com/Aman-CERP/docindex/internal/store"
)

// App owns every long-lived resource of one process.
type App struct {
	Config *config.Config

	mu      sync.Mutex
	queue   queue.Queue
	records *records.Repository
	catalog *store.Catalog
	closers []io.Closer
}

// New creates an App. Nothing is opened until first use.
func New(cfg *config.Config) *App {
	return &App{Config: cfg}
}

// Queue opens the configured work queue.
func (a *App) Queue() (queue.Queue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queueLocked()
}

func (a *App) queueLocked() (queue.Queue, error) {
	if a.queue != nil {
		return a.queue, nil
	}

	var (
		q   queue.Queue
		err error
	)
	switch strings.ToLower(a.Config.Queue.Backend) {
	case config.BackendRedis:
		r := a.Config.Queue.Redis
		q, err = queue.DialRedis(queue.RedisConfig{
			Addrs:    r.Addrs,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
			Name:     r.Name,
		})
	default:
		q, err = queue.OpenSQLite(a.Config.Queue.Path, a.Config.VisibilityTimeout())
	}
	if err != nil {
		return nil, err
	}
	a.queue = q
	a.closers = append(a.closers, q)
	return q, nil
}

// Records opens the record store.
func (a *App) Records() (*records.Repository, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recordsLocked()
}

func (a *App) recordsLocked() (*records.Repository, error) {
	if a.records != nil {
		return a.records, nil
	}
	repo, err := records.Open(a.Config.Records.Path, a.Config.Records.ChunkSize)
	if err != nil {
		return nil, err
	}
	a.records = repo
	a.closers = append(a.closers, repo)
	return repo, nil
}

// Catalog opens the full-text index. Only one process may hold it open.
func (a *App) Catalog() (*store.Catalog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalogLocked()
}

func (a *App) catalogLocked() (*store.Catalog, error) {
	if a.catalog != nil {
		return a.catalog, nil
	}
	c, err := store.OpenCatalog(a.Config.Index.Path, store.PersonSchema)
	if err != nil {
		return nil, err
	}
	a.catalog = c
	a.closers = append(a.closers, c)
	return c, nil
}

// Producer returns a producer writing through the record store.
func (a *App) Producer() (*index.Producer, error) {
	q, err := a.Queue()
	if err != nil {
		return nil, err
	}
	repo, err := a.Records()
	if err != nil {
		return nil, err
	}
	return index.NewProducer(q, index.WithRecordSource(repo))
}

// Worker returns a worker draining the queue into the index through a new
// writer session.
func (a *App) Worker() (*index.Worker, error) {
	q, err := a.Queue()
	if err != nil {
		return nil, err
	}
	c, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	return index.NewWorker(q, store.NewWriterSession(c, c.LockPath()))
}

// Engine returns a query engine over the index. PurgeAll clears the record
// store and queues an index purge.
func (a *App) Engine() (*search.Engine, error) {
	c, err := a.Catalog()
	if err != nil {
		return nil, err
	}
	producer, err := a.Producer()
	if err != nil {
		return nil, err
	}
	repo, err := a.Records()
	if err != nil {
		return nil, err
	}
	return search.NewEngine(c, store.PersonSchema.StoredFields(),
		search.WithResultCap(a.Config.Index.ResultCap),
		search.WithNameCacheSize(a.Config.Index.NameCacheSize),
		search.WithMaxHeightSpan(a.Config.Index.MaxHeightSpan),
		search.WithPurge(repo, producer),
	)
}

// Recover returns messages abandoned by a crashed consumer to the queue.
// Only the Redis backend needs it; SQLite claims expire on their own. Call it
// before starting the only worker on a queue.
func (a *App) Recover(ctx context.Context) (int, error) {
	q, err := a.Queue()
	if err != nil {
		return 0, err
	}
	rq, ok := q.(*queue.RedisQueue)
	if !ok {
		return 0, nil
	}
	n, err := rq.Recover(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("queue_recovered", slog.Int("messages", n))
	}
	return n, nil
}

type deadLetterLister interface {
	DeadLetters(ctx context.Context) ([]queue.DeadLetter, error)
}

// DeadLetters lists messages set aside as malformed.
func (a *App) DeadLetters(ctx context.Context) ([]queue.DeadLetter, error) {
	q, err := a.Queue()
	if err != nil {
		return nil, err
	}
	l, ok := q.(deadLetterLister)
	if !ok {
		return nil, fmt.Errorf("queue backend %s does not keep dead letters", a.Config.Queue.Backend)
	}
	return l.DeadLetters(ctx)
}

// PIDFile returns the file naming the project's running serve or worker.
func (a *App) PIDFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(a.Config.DataDir(), daemon.FileName))
}

// serverPID returns the PID of another live process serving this project.
func (a *App) serverPID() int {
	pid, ok := a.PIDFile().Running()
	if !ok || pid == os.Getpid() {
		return 0
	}
	return pid
}

// Status is a point-in-time summary of the stores.
type Status struct {
	QueueDepth  int    `json:"queue_depth"`
	DeadLetters int    `json:"dead_letters"`
	Records     int    `json:"records"`
	Documents   uint64 `json:"documents"`
	// ServerPID is the running serve or worker process, if any.
	ServerPID int `json:"server_pid,omitempty"`
	// IndexError is set when the index could not be read, typically because
	// a running server holds it.
	IndexError string `json:"index_error,omitempty"`
}

// Status gathers queue, record store and, when withIndex is set, index
// counts. The index is skipped while another process serves it, since it
// cannot be opened twice.
func (a *App) Status(ctx context.Context, withIndex bool) (Status, error) {
	st := Status{ServerPID: a.serverPID()}

	q, err := a.Queue()
	if err != nil {
		return st, err
	}
	if st.QueueDepth, err = q.Len(ctx); err != nil {
		return st, err
	}
	dead, err := a.DeadLetters(ctx)
	if err != nil {
		return st, err
	}
	st.DeadLetters = len(dead)

	repo, err := a.Records()
	if err != nil {
		return st, err
	}
	if st.Records, err = repo.Count(ctx); err != nil {
		return st, err
	}

	if withIndex && st.ServerPID != 0 {
		st.IndexError = fmt.Sprintf("held by pid %d", st.ServerPID)
	} else if withIndex {
		c, err := a.Catalog()
		if err == nil {
			st.Documents, err = c.DocCount()
		}
		if err != nil {
			st.IndexError = err.Error()
		}
	}
	return st, nil
}

// Checks returns the store checks 'docindex doctor' runs after the
// built-in system checks.
func (a *App) Checks() []preflight.Check {
	return []preflight.Check{
		func(ctx context.Context) preflight.CheckResult {
			r := preflight.CheckResult{Name: "queue", Required: true}
			q, err := a.Queue()
			if err == nil {
				var n int
				if n, err = q.Len(ctx); err == nil {
					r.Status = preflight.StatusPass
					r.Message = fmt.Sprintf("%s backend, %d waiting", a.Config.Queue.Backend, n)
					return r
				}
			}
			r.Status = preflight.StatusFail
			r.Message = err.Error()
			return r
		},
		func(ctx context.Context) preflight.CheckResult {
			r := preflight.CheckResult{Name: "records", Required: true}
			repo, err := a.Records()
			if err == nil {
				var n int
				if n, err = repo.Count(ctx); err == nil {
					r.Status = preflight.StatusPass
					r.Message = fmt.Sprintf("%d records", n)
					return r
				}
			}
			r.Status = preflight.StatusFail
			r.Message = err.Error()
			return r
		},
		func(context.Context) preflight.CheckResult {
			r := preflight.CheckResult{Name: "index", Required: true}
			if pid := a.serverPID(); pid != 0 {
				r.Status = preflight.StatusWarn
				r.Message = fmt.Sprintf("held by pid %d", pid)
				r.Details = "Stop that process to open the index here"
				return r
			}
			c, err := a.Catalog()
			if err == nil {
				var n uint64
				if n, err = c.DocCount(); err == nil {
					r.Status = preflight.StatusPass
					r.Message = fmt.Sprintf("%d documents", n)
					return r
				}
			}
			r.Status = preflight.StatusFail
			r.Message = err.Error()
			return r
		},
	}
}

// Close closes everything opened, newest first.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.queue, a.records, a.catalog = nil, nil, nil
	return errors.Join(errs...)
}
