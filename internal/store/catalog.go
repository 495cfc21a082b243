// Package store owns the on-disk full-text index: its document schema, the
// shared read handle and the exclusive writer session.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// ErrCatalogClosed is returned by operations on a closed catalog.
var ErrCatalogClosed = errors.New("index catalog is closed")

const schemaKey = "docindex.schema"

// LockFileName is the write lock file kept inside the index directory.
const LockFileName = "write.lock"

// Catalog is the process-wide handle on one bleve index. Searches run on
// immutable snapshots, so readers never wait for the writer session.
type Catalog struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	schema Schema
	closed bool
}

// validateIndexIntegrity checks index_meta.json before bleve opens the index.
// Returns nil if the index is absent or looks sound.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		// A directory holding only the write lock is a fresh index.
		if entries, _ := os.ReadDir(path); onlyLockFile(entries) {
			return nil
		}
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func onlyLockFile(entries []os.DirEntry) bool {
	for _, e := range entries {
		if e.Name() != LockFileName {
			return false
		}
	}
	return true
}

// isCorruptionError checks if an error from bleve.Open indicates corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment")
}

// OpenCatalog opens the index at path, creating it with schema if absent.
// An empty path opens an in-memory index.
//
// A corrupt index, or one built for a different schema, is removed and
// recreated empty: the index is a derived view and is rebuilt by reindexing.
func OpenCatalog(path string, schema Schema) (*Catalog, error) {
	im, err := schema.IndexMapping()
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "invalid schema", err)
	}

	if path == "" {
		idx, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to create in-memory index", err)
		}
		if err := idx.SetInternal([]byte(schemaKey), []byte(schema.Name)); err != nil {
			_ = idx.Close()
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to record schema", err)
		}
		return &Catalog{index: idx, schema: schema}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to create index directory", err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := clearIndexDir(path); err != nil {
			return nil, docerrors.New(docerrors.ErrCodeCorruptIndex,
				"index corrupted and cannot be cleared", errors.Join(err, validErr))
		}
	}

	idx, err := openOrCreate(path, im)
	if err != nil && isCorruptionError(err) {
		slog.Warn("index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if clearErr := clearIndexDir(path); clearErr != nil {
			return nil, docerrors.New(docerrors.ErrCodeCorruptIndex,
				"index corrupted and cannot be cleared", errors.Join(clearErr, err))
		}
		idx, err = openOrCreate(path, im)
	}
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to open index at "+path, err)
	}

	stored, err := idx.GetInternal([]byte(schemaKey))
	if err != nil {
		_ = idx.Close()
		return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to read index schema", err)
	}
	switch {
	case len(stored) == 0:
		if err := idx.SetInternal([]byte(schemaKey), []byte(schema.Name)); err != nil {
			_ = idx.Close()
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to record schema", err)
		}
	case string(stored) != schema.Name:
		slog.Warn("index_schema_changed",
			slog.String("path", path),
			slog.String("stored", string(stored)),
			slog.String("wanted", schema.Name))
		_ = idx.Close()
		if err := clearIndexDir(path); err != nil {
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to clear outdated index", err)
		}
		if idx, err = bleve.New(path, im); err != nil {
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to recreate index", err)
		}
		if err := idx.SetInternal([]byte(schemaKey), []byte(schema.Name)); err != nil {
			_ = idx.Close()
			return nil, docerrors.New(docerrors.ErrCodeIndexOpen, "failed to record schema", err)
		}
	}

	return &Catalog{index: idx, path: path, schema: schema}, nil
}

// openTimeout bounds the wait for scorch's bolt file lock, held by any other
// process that has this index open.
const openTimeout = "5s"

func openOrCreate(path string, im mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.OpenUsing(path, map[string]interface{}{"bolt_timeout": openTimeout})
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) || errors.Is(err, bleve.ErrorIndexMetaMissing) {
		return bleve.New(path, im)
	}
	return idx, err
}

// clearIndexDir removes index contents while keeping the write lock file,
// which another process may hold.
func clearIndexDir(path string) error {
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == LockFileName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return err
		}
	}
	slog.Info("index_cleared",
		slog.String("path", path),
		slog.String("reason", "reindex required"))
	return nil
}

// Path returns the index directory, or "" for an in-memory index.
func (c *Catalog) Path() string {
	return c.path
}

// LockPath returns the write lock file path for this index.
func (c *Catalog) LockPath() string {
	if c.path == "" {
		return ""
	}
	return filepath.Join(c.path, LockFileName)
}

// Schema returns the document schema the index was opened with.
func (c *Catalog) Schema() Schema {
	return c.schema
}

// Search runs req against the current snapshot.
func (c *Catalog) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrCatalogClosed
	}
	res, err := c.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "search failed", err)
	}
	return res, nil
}

// DocCount returns the number of documents in the current snapshot.
func (c *Catalog) DocCount() (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return 0, ErrCatalogClosed
	}
	return c.index.DocCount()
}

// Close closes the index. Safe to call more than once.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.index.Close()
}

// withIndex runs fn against the live index unless the catalog is closed.
func (c *Catalog) withIndex(fn func(bleve.Index) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrCatalogClosed
	}
	return fn(c.index)
}
