package records

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, chunkSize int) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "records.db"), chunkSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func person(pk, rk string) Record {
	return Record{
		Identity:       Identity{PartitionKey: pk, RowKey: rk},
		FirstName:      "John",
		LastName:       "Smith",
		EmailAddress:   "john." + rk + "@example.com",
		Gender:         "Male",
		DateOfBirth:    time.Date(1980, 2, 29, 0, 0, 0, 0, time.UTC),
		YearsAtAddress: 4,
		HeightInInches: 70,
		IsMarried:      true,
	}
}

func people(pk string, n int) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = person(pk, fmt.Sprintf("%04d", i))
	}
	return out
}

func TestRepository_InsertAndGet_RoundTripsAllFields(t *testing.T) {
	// Given: an empty repository
	repo := newTestRepo(t, 0)
	ctx := context.Background()
	rec := person("smith", "0001")

	// When: inserting and reading back
	require.NoError(t, repo.Insert(ctx, rec))
	got, err := repo.Get(ctx, rec.Identity)

	// Then: every field survives
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestRepository_Insert_DuplicateIdentityFails(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()
	require.NoError(t, repo.Insert(ctx, person("p", "1")))

	err := repo.Insert(ctx, person("p", "1"))

	assert.ErrorIs(t, err, ErrExists)
}

func TestRepository_Insert_RejectsInvalidIdentity(t *testing.T) {
	repo := newTestRepo(t, 0)

	err := repo.Insert(context.Background(), person("a/b", "1"))

	assert.Error(t, err)
}

func TestRepository_Upsert_IsLastWriteWins(t *testing.T) {
	repo := newTestRepo(t, 0)
	ctx := context.Background()
	rec := person("p", "1")
	require.NoError(t, repo.Upsert(ctx, rec))

	rec.LastName = "Jones"
	rec.IsMarried = false
	require.NoError(t, repo.Upsert(ctx, rec))

	got, err := repo.Get(ctx, rec.Identity)
	require.NoError(t, err)
	assert.Equal(t, "Jones", got.LastName)
	assert.False(t, got.IsMarried)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRepository_Update_MissingRecordFails(t *testing.T) {
	repo := newTestRepo(t, 0)

	err := repo.Update(context.Background(), person("p", "missing"))

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_UpdateBatch_OverwritesFields(t *testing.T) {
	repo := newTestRepo(t, 10)
	ctx := context.Background()
	recs := people("p", 15)
	_, err := repo.InsertBatch(ctx, recs)
	require.NoError(t, err)

	for i := range recs {
		recs[i].HeightInInches = 60
	}
	n, err := repo.UpdateBatch(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	got, err := repo.GetPartition(ctx, "p")
	require.NoError(t, err)
	for _, r := range got {
		assert.Equal(t, 60, r.HeightInInches)
	}
}

func TestRepository_InsertBatch_SpansPartitionsAndChunks(t *testing.T) {
	// Given: records across two partitions, more than one chunk each
	repo := newTestRepo(t, 10)
	ctx := context.Background()
	recs := append(people("a", 25), people("b", 7)...)

	// When: inserting as a batch
	n, err := repo.InsertBatch(ctx, recs)

	// Then: all are written
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 32)
	partitions, err := repo.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, partitions)
}

func TestRepository_GetRangeAndKeys(t *testing.T) {
	repo := newTestRepo(t, 2)
	ctx := context.Background()
	_, err := repo.InsertBatch(ctx, people("p", 6))
	require.NoError(t, err)

	ranged, err := repo.GetRange(ctx, "p", "0001", "0003")
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, "0001", ranged[0].RowKey)
	assert.Equal(t, "0003", ranged[2].RowKey)

	keyed, err := repo.GetKeys(ctx, "p", []string{"0000", "0004", "0005", "9999"})
	require.NoError(t, err)
	assert.Len(t, keyed, 3)
}

func TestRepository_DeleteBatch_RemovesOnlyGivenRecords(t *testing.T) {
	repo := newTestRepo(t, 4)
	ctx := context.Background()
	recs := people("p", 10)
	_, err := repo.InsertBatch(ctx, recs)
	require.NoError(t, err)

	n, err := repo.DeleteBatch(ctx, recs[:6])
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	left, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, left)
}

func TestRepository_DeletePartition_LoopsUntilShortChunk(t *testing.T) {
	tests := []struct {
		name  string
		count int
	}{
		{"empty partition", 0},
		{"less than a chunk", 3},
		{"exact multiple of chunk", 20},
		{"partial last chunk", 23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a partition of count records and a neighbour partition
			repo := newTestRepo(t, 10)
			ctx := context.Background()
			_, err := repo.InsertBatch(ctx, append(people("target", tt.count), people("other", 2)...))
			require.NoError(t, err)

			// When: deleting the partition
			n, err := repo.DeletePartition(ctx, "target")

			// Then: exactly that partition is gone
			require.NoError(t, err)
			assert.Equal(t, tt.count, n)
			remaining, err := repo.GetAll(ctx)
			require.NoError(t, err)
			assert.Len(t, remaining, 2)
		})
	}
}

func TestRepository_DeleteAll_EmptiesStore(t *testing.T) {
	repo := newTestRepo(t, 5)
	ctx := context.Background()
	_, err := repo.InsertBatch(ctx, append(people("a", 12), people("b", 3)...))
	require.NoError(t, err)

	n, err := repo.DeleteAll(ctx)

	require.NoError(t, err)
	assert.Equal(t, 15, n)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestChunk_SplitsIntoBoundedSlices(t *testing.T) {
	chunks := Chunk(people("p", 25), 10)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[2], 5)
	assert.Empty(t, Chunk(nil, 10))
}
