package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/command"
	"github.com/Aman-CERP/docindex/internal/queue"
	"github.com/Aman-CERP/docindex/internal/records"
	"github.com/Aman-CERP/docindex/internal/store"
)

type fixture struct {
	dir     string
	catalog *store.Catalog
	queue   *queue.SQLiteQueue
	session *store.WriterSession
}

func newFixture(t *testing.T, visibility time.Duration) *fixture {
	t.Helper()
	dir := t.TempDir()

	c, err := store.OpenCatalog(filepath.Join(dir, "index"), store.PersonSchema)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	q, err := queue.OpenSQLite(filepath.Join(dir, "queue.db"), visibility)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	return &fixture{
		dir:     dir,
		catalog: c,
		queue:   q,
		session: store.NewWriterSession(c, c.LockPath()),
	}
}

func (f *fixture) worker(t *testing.T, s Session) *Worker {
	t.Helper()
	w, err := NewWorker(f.queue, s)
	require.NoError(t, err)
	return w
}

func (f *fixture) submit(t *testing.T, cmds ...command.Command) {
	t.Helper()
	for _, c := range cmds {
		body, err := command.Encode(c)
		require.NoError(t, err)
		require.NoError(t, f.queue.Enqueue(context.Background(), body))
	}
}

// snapshot returns every indexed record, ordered by identity.
func (f *fixture) snapshot(t *testing.T) []records.Record {
	t.Helper()
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), 1000, 0, false)
	req.Fields = store.PersonSchema.StoredFields()
	res, err := f.catalog.Search(context.Background(), req)
	require.NoError(t, err)

	out := make([]records.Record, 0, len(res.Hits))
	for _, hit := range res.Hits {
		rec, err := store.RecordFromFields(hit.Fields)
		require.NoError(t, err)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func rec(pk, rk string, height int) records.Record {
	return records.Record{
		Identity:       records.Identity{PartitionKey: pk, RowKey: rk},
		FirstName:      "First" + rk,
		LastName:       pk,
		EmailAddress:   rk + "@example.com",
		Gender:         "Female",
		DateOfBirth:    time.Date(1991, 2, 3, 0, 0, 0, 0, time.UTC),
		YearsAtAddress: 1,
		HeightInInches: height,
	}
}

// failingSession fails ApplyIndex for one row key.
type failingSession struct {
	*store.WriterSession
	failRowKey string
	forced     int
}

func (s *failingSession) ApplyIndex(r records.Record) error {
	if r.RowKey == s.failRowKey {
		return errors.New("simulated index failure")
	}
	return s.WriterSession.ApplyIndex(r)
}

func (s *failingSession) ForceClose() {
	s.forced++
	s.WriterSession.ForceClose()
}

func TestNewWorker_RequiresDependencies(t *testing.T) {
	f := newFixture(t, 0)

	_, err := NewWorker(nil, f.session)
	assert.Error(t, err)
	_, err = NewWorker(f.queue, nil)
	assert.Error(t, err)
}

func TestDrainOnce_EmptyQueue(t *testing.T) {
	// Given: nothing queued
	f := newFixture(t, 0)
	w := f.worker(t, f.session)

	// When: draining
	res, err := w.DrainOnce(context.Background())

	// Then: no work, and the session was never opened
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
	assert.Equal(t, store.SessionClosed, f.session.State())
	other := store.NewWriterSession(f.catalog, f.catalog.LockPath())
	require.NoError(t, other.Open())
	require.NoError(t, other.Close(context.Background(), false))
}

func TestDrainOnce_AppliesEveryKind(t *testing.T) {
	// Given: a mix of commands
	f := newFixture(t, 0)
	w := f.worker(t, f.session)
	a, b, c := rec("p", "a", 60), rec("p", "b", 61), rec("p", "c", 62)
	f.submit(t,
		command.Index(a),
		command.Index(b),
		command.Optimize(),
		command.DeIndex(b.Identity),
		command.Index(c),
	)

	// When: draining once
	res, err := w.DrainOnce(context.Background())

	// Then: all five are applied and acked, and the session is closed
	require.NoError(t, err)
	assert.True(t, res.DidWork)
	assert.Equal(t, 5, res.Applied)
	assert.True(t, res.Optimized)
	assert.Equal(t, []records.Record{a, c}, f.snapshot(t))
	assert.Equal(t, store.SessionClosed, f.session.State())

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrainOnce_PurgeThenIndex(t *testing.T) {
	f := newFixture(t, 0)
	w := f.worker(t, f.session)
	f.submit(t, command.Index(rec("old", "1", 70)), command.Index(rec("old", "2", 70)))
	_, err := w.DrainOnce(context.Background())
	require.NoError(t, err)

	// When: purging and indexing three new records
	f.submit(t, command.PurgeAll())
	for i := 0; i < 3; i++ {
		f.submit(t, command.Index(rec("new", fmt.Sprint(i), 65)))
	}
	_, err = w.DrainOnce(context.Background())
	require.NoError(t, err)

	// Then: only the new records remain
	got := f.snapshot(t)
	require.Len(t, got, 3)
	for _, r := range got {
		assert.Equal(t, "new", r.PartitionKey)
	}
}

func TestDrainOnce_ReplayMatchesSinglePlay(t *testing.T) {
	seq := []command.Command{
		command.Index(rec("p", "1", 60)),
		command.Index(rec("p", "2", 61)),
		command.DeIndex(records.Identity{PartitionKey: "p", RowKey: "1"}),
		command.Index(rec("p", "3", 62)),
		command.Index(rec("p", "2", 66)),
	}

	once := newFixture(t, 0)
	once.submit(t, seq...)
	_, err := once.worker(t, once.session).DrainOnce(context.Background())
	require.NoError(t, err)

	// When: the same sequence is delivered twice
	twice := newFixture(t, 0)
	twice.submit(t, seq...)
	twice.submit(t, seq...)
	_, err = twice.worker(t, twice.session).DrainOnce(context.Background())
	require.NoError(t, err)

	// Then: the index states are identical
	assert.Equal(t, once.snapshot(t), twice.snapshot(t))
}

func TestDrainOnce_MalformedIsDeadLettered(t *testing.T) {
	// Given: a garbage payload between two good commands
	f := newFixture(t, 0)
	w := f.worker(t, f.session)
	f.submit(t, command.Index(rec("p", "1", 60)))
	require.NoError(t, f.queue.Enqueue(context.Background(), []byte(`{"kind":"reindex"}`)))
	f.submit(t, command.Index(rec("p", "2", 60)))

	// When: draining
	res, err := w.DrainOnce(context.Background())

	// Then: the drain continues past it and the payload is set aside
	require.NoError(t, err)
	assert.True(t, res.DidWork)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 1, res.Malformed)
	assert.Len(t, f.snapshot(t), 2)

	dead, err := f.queue.DeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, `{"kind":"reindex"}`, string(dead[0].Body))
	assert.Contains(t, dead[0].Reason, "unknown command kind")
}

func TestDrainOnce_FailureRecovery(t *testing.T) {
	// Given: the second of three index commands fails to apply
	f := newFixture(t, 50*time.Millisecond)
	bad := &failingSession{WriterSession: f.session, failRowKey: "2"}
	f.submit(t,
		command.Index(rec("p", "1", 60)),
		command.Index(rec("p", "2", 60)),
		command.Index(rec("p", "3", 60)),
	)

	// When: draining
	res, err := f.worker(t, bad).DrainOnce(context.Background())

	// Then: the cycle fails and reports no work
	require.Error(t, err)
	assert.False(t, res.DidWork)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, 1, bad.forced)

	// And: the write lock is free for the next writer
	next := store.NewWriterSession(f.catalog, f.catalog.LockPath())
	require.NoError(t, next.Open())
	require.NoError(t, next.Close(context.Background(), false))

	// And: the acked command stays applied, the others stay queued
	got := f.snapshot(t)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].RowKey)
	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// When: a healthy worker drains after the claim expires
	healthy := f.worker(t, next)
	assert.Eventually(t, func() bool {
		if _, err := healthy.DrainOnce(context.Background()); err != nil {
			return false
		}
		n, err := f.catalog.DocCount()
		return err == nil && n == 3
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDrainOnce_WriteLockedByAnotherWriter(t *testing.T) {
	// Given: another writer holds the lock
	f := newFixture(t, 0)
	other := store.NewWriterSession(f.catalog, f.catalog.LockPath())
	require.NoError(t, other.Open())
	defer func() { _ = other.Close(context.Background(), false) }()
	f.submit(t, command.Index(rec("p", "1", 60)))

	// When: draining
	res, err := f.worker(t, f.session).DrainOnce(context.Background())

	// Then: the cycle fails with the lock error and nothing is applied
	assert.ErrorIs(t, err, store.ErrWriteLocked)
	assert.False(t, res.DidWork)
	assert.Empty(t, f.snapshot(t))

	n, err := f.queue.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
