package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/records"
)

// SessionState is the lifecycle state of a WriterSession.
type SessionState int

const (
	SessionClosed SessionState = iota
	SessionOpen
	SessionFailed
)

func (s SessionState) String() string {
	switch s {
	case SessionClosed:
		return "closed"
	case SessionOpen:
		return "open"
	case SessionFailed:
		return "failed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

var (
	// ErrSessionClosed is returned when applying through a session that is not open.
	ErrSessionClosed = errors.New("writer session is not open")

	// ErrSessionFailed is returned after an apply error until ForceClose is called.
	ErrSessionFailed = errors.New("writer session failed and must be force-closed")
)

// purgePageSize is how many document IDs a purge deletes per batch.
const purgePageSize = 1000

// compactionOptions merges the index down to a single segment.
var compactionOptions = &mergeplan.SingleSegmentMergePlanOptions

// WriterSession is the exclusive write handle on a Catalog. Only the holder
// of the on-disk write lock may mutate the index; the in-process mutex keeps
// concurrent callers of one session from interleaving.
//
// States move Closed → Open → Closed, or Open → Failed → Closed via ForceClose.
type WriterSession struct {
	mu      sync.Mutex
	catalog *Catalog
	lock    *WriteLock
	state   SessionState
}

// NewWriterSession creates a closed session on catalog guarded by the lock
// file at lockPath.
func NewWriterSession(catalog *Catalog, lockPath string) *WriterSession {
	return &WriterSession{
		catalog: catalog,
		lock:    NewWriteLock(lockPath),
	}
}

// State returns the current lifecycle state.
func (s *WriterSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open acquires the write lock. It is a no-op on an open session.
func (s *WriterSession) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionOpen:
		return nil
	case SessionFailed:
		return ErrSessionFailed
	}

	if err := s.lock.Acquire(); err != nil {
		return err
	}
	s.state = SessionOpen
	slog.Debug("writer_session_opened", slog.String("lock", s.lock.Path()))
	return nil
}

// ApplyIndex writes rec, replacing any document with the same identity.
func (s *WriterSession) ApplyIndex(rec records.Record) error {
	id := DocumentID(rec.Identity)
	return s.apply("index", id, func(idx bleve.Index) error {
		b := idx.NewBatch()
		b.Delete(id)
		if err := b.Index(id, Document(rec)); err != nil {
			return err
		}
		return idx.Batch(b)
	})
}

// ApplyDeIndex removes the document for id. A missing document is not an error.
func (s *WriterSession) ApplyDeIndex(id records.Identity) error {
	docID := DocumentID(id)
	return s.apply("deindex", docID, func(idx bleve.Index) error {
		return idx.Delete(docID)
	})
}

// ApplyPurge deletes every document in the index.
func (s *WriterSession) ApplyPurge(ctx context.Context) error {
	return s.apply("purge_all", "", func(idx bleve.Index) error {
		deleted := 0
		for {
			req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
			req.Size = purgePageSize
			res, err := idx.SearchInContext(ctx, req)
			if err != nil {
				return err
			}
			if len(res.Hits) == 0 {
				break
			}
			b := idx.NewBatch()
			for _, hit := range res.Hits {
				b.Delete(hit.ID)
			}
			if err := idx.Batch(b); err != nil {
				return err
			}
			deleted += len(res.Hits)
		}
		slog.Info("index_purged", slog.Int("documents", deleted))
		return nil
	})
}

// apply runs fn through the live handle, moving the session to Failed on error.
func (s *WriterSession) apply(op, id string, fn func(bleve.Index) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case SessionClosed:
		return ErrSessionClosed
	case SessionFailed:
		return ErrSessionFailed
	}

	if err := s.catalog.withIndex(fn); err != nil {
		s.state = SessionFailed
		return docerrors.New(docerrors.ErrCodeIndexWrite, fmt.Sprintf("%s %s failed", op, id), err).
			WithDetail("op", op)
	}
	return nil
}

// Close compacts the index when optimize is set, then releases the write
// lock. The lock is released and the session closed even if compaction fails.
// Closing a closed session is a no-op.
func (s *WriterSession) Close(ctx context.Context, optimize bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return nil
	}
	defer func() { s.state = SessionClosed }()

	if optimize && s.state == SessionOpen {
		start := time.Now()
		if err := s.catalog.withIndex(func(idx bleve.Index) error { return compact(ctx, idx) }); err != nil {
			slog.Warn("index_compaction_failed", slog.String("error", err.Error()))
		} else {
			slog.Debug("index_compacted", slog.Duration("duration", time.Since(start)))
		}
	}

	if err := s.lock.Release(); err != nil {
		return docerrors.New(docerrors.ErrCodeIndexWrite, "failed to release write lock", err)
	}
	return nil
}

// ForceClose releases the handle and deletes the lock file without
// compacting. Errors are swallowed. Used only on the failure path.
func (s *WriterSession) ForceClose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lock.Clear()
	s.state = SessionClosed
	slog.Debug("writer_session_force_closed", slog.String("lock", s.lock.Path()))
}

// compact force-merges segments when the index is backed by scorch.
func compact(ctx context.Context, idx bleve.Index) error {
	adv, err := idx.Advanced()
	if err != nil {
		return err
	}
	sc, ok := adv.(*scorch.Scorch)
	if !ok {
		slog.Debug("index_compaction_skipped", slog.String("reason", fmt.Sprintf("%T has no force merge", adv)))
		return nil
	}
	return sc.ForceMerge(ctx, compactionOptions)
}
