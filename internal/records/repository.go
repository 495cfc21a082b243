package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/docindex/internal/sqlitedb"
)

// DefaultChunkSize is the batch size used when none is configured.
const DefaultChunkSize = 100

var (
	// ErrNotFound is returned when a single-record lookup or update misses.
	ErrNotFound = errors.New("record not found")

	// ErrExists is returned when Insert hits an existing identity.
	ErrExists = errors.New("record already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	partition_key    TEXT    NOT NULL,
	row_key          TEXT    NOT NULL,
	first_name       TEXT    NOT NULL DEFAULT '',
	last_name        TEXT    NOT NULL DEFAULT '',
	email_address    TEXT    NOT NULL DEFAULT '',
	gender           TEXT    NOT NULL DEFAULT '',
	date_of_birth    TEXT    NOT NULL DEFAULT '',
	years_at_address INTEGER NOT NULL DEFAULT 0,
	height_in_inches INTEGER NOT NULL DEFAULT 0,
	is_married       INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (partition_key, row_key)
) WITHOUT ROWID;
`

const selectColumns = `partition_key, row_key, first_name, last_name, email_address, gender,
	date_of_birth, years_at_address, height_in_inches, is_married`

// Repository is the authoritative record store.
//
// Batch operations group records by partition and write each partition in
// chunks of at most chunkSize rows, one transaction per chunk.
type Repository struct {
	db        *sql.DB
	chunkSize int
}

// Open opens or creates the record database at path.
func Open(path string, chunkSize int) (*Repository, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	repo, err := NewRepository(db, chunkSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewRepository wraps an already opened database, creating the table if needed.
func NewRepository(db *sql.DB, chunkSize int) (*Repository, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create records table: %w", err)
	}
	return &Repository{db: db, chunkSize: chunkSize}, nil
}

// ChunkSize returns the configured batch chunk size.
func (r *Repository) ChunkSize() int {
	return r.chunkSize
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Insert adds a new record, failing with ErrExists if the identity is taken.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, insertSQL+` ON CONFLICT (partition_key, row_key) DO NOTHING`, args(rec)...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", rec.ID(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insert %s: %w", rec.ID(), ErrExists)
	}
	return nil
}

// InsertBatch inserts records chunk by chunk. A duplicate identity aborts the
// chunk it belongs to.
func (r *Repository) InsertBatch(ctx context.Context, recs []Record) (int, error) {
	return r.writeBatch(ctx, "insert", recs, func(ctx context.Context, tx *sql.Tx, rec Record) error {
		_, err := tx.ExecContext(ctx, insertSQL, args(rec)...)
		return err
	})
}

// Upsert inserts or replaces a record.
func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertSQL, args(rec)...); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ID(), err)
	}
	return nil
}

// UpsertBatch inserts or replaces records chunk by chunk.
func (r *Repository) UpsertBatch(ctx context.Context, recs []Record) (int, error) {
	return r.writeBatch(ctx, "upsert", recs, func(ctx context.Context, tx *sql.Tx, rec Record) error {
		_, err := tx.ExecContext(ctx, upsertSQL, args(rec)...)
		return err
	})
}

// Update overwrites an existing record, failing with ErrNotFound if absent.
func (r *Repository) Update(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateSQL, updateArgs(rec)...)
	if err != nil {
		return fmt.Errorf("update %s: %w", rec.ID(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update %s: %w", rec.ID(), ErrNotFound)
	}
	return nil
}

// UpdateBatch overwrites records chunk by chunk. A missing identity aborts the
// chunk it belongs to.
func (r *Repository) UpdateBatch(ctx context.Context, recs []Record) (int, error) {
	return r.writeBatch(ctx, "update", recs, func(ctx context.Context, tx *sql.Tx, rec Record) error {
		res, err := tx.ExecContext(ctx, updateSQL, updateArgs(rec)...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Get returns the record with the given identity.
func (r *Repository) Get(ctx context.Context, id Identity) (Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM records WHERE partition_key = ? AND row_key = ?`,
		id.PartitionKey, id.RowKey)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", id.ID(), ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", id.ID(), err)
	}
	return rec, nil
}

// GetPartition returns every record in a partition ordered by row key.
func (r *Repository) GetPartition(ctx context.Context, partitionKey string) ([]Record, error) {
	return r.query(ctx,
		`SELECT `+selectColumns+` FROM records WHERE partition_key = ? ORDER BY row_key`,
		partitionKey)
}

// GetRange returns records of a partition whose row key lies in [minRowKey, maxRowKey].
func (r *Repository) GetRange(ctx context.Context, partitionKey, minRowKey, maxRowKey string) ([]Record, error) {
	return r.query(ctx,
		`SELECT `+selectColumns+` FROM records
		 WHERE partition_key = ? AND row_key >= ? AND row_key <= ? ORDER BY row_key`,
		partitionKey, minRowKey, maxRowKey)
}

// GetKeys returns the records of a partition with the given row keys. Missing
// keys are skipped.
func (r *Repository) GetKeys(ctx context.Context, partitionKey string, rowKeys []string) ([]Record, error) {
	if len(rowKeys) == 0 {
		return nil, nil
	}
	var out []Record
	for start := 0; start < len(rowKeys); start += r.chunkSize {
		end := min(start+r.chunkSize, len(rowKeys))
		chunk := rowKeys[start:end]

		queryArgs := make([]any, 0, len(chunk)+1)
		queryArgs = append(queryArgs, partitionKey)
		for _, rk := range chunk {
			queryArgs = append(queryArgs, rk)
		}
		recs, err := r.query(ctx,
			`SELECT `+selectColumns+` FROM records WHERE partition_key = ? AND row_key IN (`+
				placeholders(len(chunk))+`) ORDER BY row_key`,
			queryArgs...)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

// GetAll returns every record ordered by identity.
func (r *Repository) GetAll(ctx context.Context) ([]Record, error) {
	return r.query(ctx, `SELECT `+selectColumns+` FROM records ORDER BY partition_key, row_key`)
}

// Count returns the number of stored records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Partitions returns the distinct partition keys in ascending order.
func (r *Repository) Partitions(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT partition_key FROM records ORDER BY partition_key`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		keys = append(keys, pk)
	}
	return keys, rows.Err()
}

// Delete removes one record. Deleting a missing identity is not an error.
func (r *Repository) Delete(ctx context.Context, id Identity) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE partition_key = ? AND row_key = ?`, id.PartitionKey, id.RowKey)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id.ID(), err)
	}
	return nil
}

// DeleteBatch removes records chunk by chunk and returns how many identities
// were submitted.
func (r *Repository) DeleteBatch(ctx context.Context, recs []Record) (int, error) {
	return r.writeBatch(ctx, "delete", recs, func(ctx context.Context, tx *sql.Tx, rec Record) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM records WHERE partition_key = ? AND row_key = ?`, rec.PartitionKey, rec.RowKey)
		return err
	})
}

// DeletePartition removes a whole partition. It repeatedly fetches up to
// chunkSize keys and deletes them, stopping once a fetch comes back shorter
// than the chunk size.
func (r *Repository) DeletePartition(ctx context.Context, partitionKey string) (int, error) {
	total := 0
	for {
		keys, err := r.partitionKeys(ctx, partitionKey, r.chunkSize)
		if err != nil {
			return total, err
		}
		if len(keys) > 0 {
			if err := r.deleteKeys(ctx, partitionKey, keys); err != nil {
				return total, err
			}
			total += len(keys)
		}
		if len(keys) < r.chunkSize {
			break
		}
	}

	slog.Debug("partition_deleted",
		slog.String("partition_key", partitionKey),
		slog.Int("records", total))
	return total, nil
}

// DeleteAll removes every partition and returns the number of deleted records.
func (r *Repository) DeleteAll(ctx context.Context) (int, error) {
	partitions, err := r.Partitions(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, pk := range partitions {
		n, err := r.DeletePartition(ctx, pk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *Repository) partitionKeys(ctx context.Context, partitionKey string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT row_key FROM records WHERE partition_key = ? ORDER BY row_key LIMIT ?`,
		partitionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list partition %s: %w", partitionKey, err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var rk string
		if err := rows.Scan(&rk); err != nil {
			return nil, fmt.Errorf("scan row key: %w", err)
		}
		keys = append(keys, rk)
	}
	return keys, rows.Err()
}

func (r *Repository) deleteKeys(ctx context.Context, partitionKey string, rowKeys []string) error {
	queryArgs := make([]any, 0, len(rowKeys)+1)
	queryArgs = append(queryArgs, partitionKey)
	for _, rk := range rowKeys {
		queryArgs = append(queryArgs, rk)
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM records WHERE partition_key = ? AND row_key IN (`+placeholders(len(rowKeys))+`)`,
		queryArgs...)
	if err != nil {
		return fmt.Errorf("delete chunk of partition %s: %w", partitionKey, err)
	}
	return nil
}

// writeBatch groups recs by partition, preserving first-seen order, and runs
// fn for each record inside one transaction per chunk.
func (r *Repository) writeBatch(
	ctx context.Context,
	op string,
	recs []Record,
	fn func(context.Context, *sql.Tx, Record) error,
) (int, error) {
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			return 0, err
		}
	}

	written := 0
	for _, part := range groupByPartition(recs) {
		for _, chunk := range Chunk(part, r.chunkSize) {
			if err := r.inTx(ctx, func(tx *sql.Tx) error {
				for _, rec := range chunk {
					if err := fn(ctx, tx, rec); err != nil {
						return fmt.Errorf("%s %s: %w", op, rec.ID(), err)
					}
				}
				return nil
			}); err != nil {
				return written, err
			}
			written += len(chunk)
		}
	}
	return written, nil
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *Repository) query(ctx context.Context, q string, queryArgs ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Chunk splits recs into consecutive slices of at most size elements.
func Chunk(recs []Record, size int) [][]Record {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]Record
	for start := 0; start < len(recs); start += size {
		chunks = append(chunks, recs[start:min(start+size, len(recs))])
	}
	return chunks
}

func groupByPartition(recs []Record) [][]Record {
	index := make(map[string]int)
	var groups [][]Record
	for _, rec := range recs {
		i, ok := index[rec.PartitionKey]
		if !ok {
			i = len(groups)
			index[rec.PartitionKey] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], rec)
	}
	return groups
}

const insertSQL = `INSERT INTO records (` + selectColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const upsertSQL = insertSQL + `
ON CONFLICT (partition_key, row_key) DO UPDATE SET
	first_name = excluded.first_name,
	last_name = excluded.last_name,
	email_address = excluded.email_address,
	gender = excluded.gender,
	date_of_birth = excluded.date_of_birth,
	years_at_address = excluded.years_at_address,
	height_in_inches = excluded.height_in_inches,
	is_married = excluded.is_married`

const updateSQL = `UPDATE records SET
	first_name = ?, last_name = ?, email_address = ?, gender = ?,
	date_of_birth = ?, years_at_address = ?, height_in_inches = ?, is_married = ?
WHERE partition_key = ? AND row_key = ?`

func args(rec Record) []any {
	return []any{
		rec.PartitionKey, rec.RowKey,
		rec.FirstName, rec.LastName, rec.EmailAddress, rec.Gender,
		formatDate(rec.DateOfBirth), rec.YearsAtAddress, rec.HeightInInches, rec.IsMarried,
	}
}

func updateArgs(rec Record) []any {
	a := args(rec)
	return append(a[2:], rec.PartitionKey, rec.RowKey)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (Record, error) {
	var rec Record
	var dob string
	if err := s.Scan(
		&rec.PartitionKey, &rec.RowKey,
		&rec.FirstName, &rec.LastName, &rec.EmailAddress, &rec.Gender,
		&dob, &rec.YearsAtAddress, &rec.HeightInInches, &rec.IsMarried,
	); err != nil {
		return Record{}, err
	}
	if dob != "" {
		t, err := time.Parse(DateLayout, dob)
		if err != nil {
			return Record{}, fmt.Errorf("record %s has bad date_of_birth %q: %w", rec.ID(), dob, err)
		}
		rec.DateOfBirth = t
	}
	return rec, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
