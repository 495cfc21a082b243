package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "index"), PersonSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOpenCatalog_CreatesEmptyIndex(t *testing.T) {
	c := newTestCatalog(t)

	n, err := c.DocCount()

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, filepath.Join(c.Path(), LockFileName), c.LockPath())
}

func TestOpenCatalog_InMemory(t *testing.T) {
	c, err := OpenCatalog("", PersonSchema)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Empty(t, c.Path())
	assert.Empty(t, c.LockPath())
}

func TestOpenCatalog_ReopensExistingDocuments(t *testing.T) {
	// Given: an index with one document, closed cleanly
	path := filepath.Join(t.TempDir(), "index")
	c, err := OpenCatalog(path, PersonSchema)
	require.NoError(t, err)
	s := NewWriterSession(c, c.LockPath())
	require.NoError(t, s.Open())
	require.NoError(t, s.ApplyIndex(testRecord("p", "1")))
	require.NoError(t, s.Close(context.Background(), false))
	require.NoError(t, c.Close())

	// When: reopening
	reopened, err := OpenCatalog(path, PersonSchema)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: the document is still there
	n, err := reopened.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestOpenCatalog_RecoversFromCorruptMeta(t *testing.T) {
	// Given: an index directory with a truncated index_meta.json
	path := filepath.Join(t.TempDir(), "index")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{"storage":`), 0o644))

	// When: opening it
	c, err := OpenCatalog(path, PersonSchema)

	// Then: a fresh empty index replaces it
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	n, err := c.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenCatalog_SchemaChangeRebuildsIndex(t *testing.T) {
	// Given: an index built with another schema name
	path := filepath.Join(t.TempDir(), "index")
	old := PersonSchema
	old.Name = "person/v0"
	c, err := OpenCatalog(path, old)
	require.NoError(t, err)
	s := NewWriterSession(c, c.LockPath())
	require.NoError(t, s.Open())
	require.NoError(t, s.ApplyIndex(testRecord("p", "1")))
	require.NoError(t, s.Close(context.Background(), false))
	require.NoError(t, c.Close())

	// When: opening with the current schema
	c, err = OpenCatalog(path, PersonSchema)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// Then: the outdated documents are gone
	n, err := c.DocCount()
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, PersonSchema.Name, c.Schema().Name)
}

func TestCatalog_ClosedRejectsSearch(t *testing.T) {
	c, err := OpenCatalog(filepath.Join(t.TempDir(), "index"), PersonSchema)
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	_, err = c.Search(context.Background(), bleve.NewSearchRequest(bleve.NewMatchAllQuery()))

	assert.ErrorIs(t, err, ErrCatalogClosed)
}

func TestValidateIndexIntegrity_LockOnlyDirIsFresh(t *testing.T) {
	path := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(path, LockFileName), []byte("1"), 0o644))

	assert.NoError(t, validateIndexIntegrity(path))
}
