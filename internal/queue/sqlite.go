package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/sqlitedb"
)

// DefaultVisibilityTimeout is how long a dequeued message stays hidden.
const DefaultVisibilityTimeout = 5 * time.Minute

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS messages (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	id            TEXT    NOT NULL UNIQUE,
	body          BLOB    NOT NULL,
	enqueued_at   INTEGER NOT NULL,
	visible_at    INTEGER NOT NULL,
	dequeue_count INTEGER NOT NULL DEFAULT 0,
	receipt       TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_messages_visible ON messages(visible_at, seq);

CREATE TABLE IF NOT EXISTS dead_letters (
	id            TEXT    PRIMARY KEY,
	body          BLOB    NOT NULL,
	reason        TEXT    NOT NULL,
	dequeue_count INTEGER NOT NULL,
	dead_at       INTEGER NOT NULL
);
`

// SQLiteQueue is a visibility-timeout queue stored in a SQLite database.
// Messages are claimed in enqueue order; an unacknowledged claim expires
// after the visibility timeout and the message is delivered again.
type SQLiteQueue struct {
	db         *sql.DB
	visibility time.Duration
	now        func() time.Time
}

var _ Queue = (*SQLiteQueue)(nil)

// OpenSQLite opens or creates the queue database at path.
func OpenSQLite(path string, visibility time.Duration) (*SQLiteQueue, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeQueueUnavailable, "failed to open queue database", err)
	}
	if visibility <= 0 {
		visibility = DefaultVisibilityTimeout
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, docerrors.New(docerrors.ErrCodeQueueUnavailable, "failed to create queue tables", err)
	}
	return &SQLiteQueue{db: db, visibility: visibility, now: time.Now}, nil
}

// Enqueue appends body to the queue.
func (q *SQLiteQueue) Enqueue(ctx context.Context, body []byte) error {
	now := q.now().UnixNano()
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO messages (id, body, enqueued_at, visible_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), body, now, now)
	if err != nil {
		return docerrors.QueueError("enqueue failed", err)
	}
	return nil
}

// Dequeue claims the oldest visible message. The claim is a single
// UPDATE ... RETURNING so concurrent consumers never claim the same row.
func (q *SQLiteQueue) Dequeue(ctx context.Context) (Message, bool, error) {
	now := q.now()
	msg := Message{Receipt: uuid.NewString()}
	var enqueuedAt int64

	err := q.db.QueryRowContext(ctx,
		`UPDATE messages SET visible_at = ?, receipt = ?, dequeue_count = dequeue_count + 1
		 WHERE seq = (SELECT seq FROM messages WHERE visible_at <= ? ORDER BY seq LIMIT 1)
		 RETURNING id, body, enqueued_at, dequeue_count`,
		now.Add(q.visibility).UnixNano(), msg.Receipt, now.UnixNano()).
		Scan(&msg.ID, &msg.Body, &enqueuedAt, &msg.DequeueCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, false, nil
	}
	if err != nil {
		return Message{}, false, docerrors.QueueError("dequeue failed", err)
	}
	msg.EnqueuedAt = time.Unix(0, enqueuedAt)
	return msg, true, nil
}

// Ack deletes a claimed message.
func (q *SQLiteQueue) Ack(ctx context.Context, msg Message) error {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND receipt = ?`, msg.ID, msg.Receipt)
	if err != nil {
		return docerrors.New(docerrors.ErrCodeQueueAck, "ack failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return docerrors.New(docerrors.ErrCodeQueueAck, "ack failed for "+msg.ID, ErrReceiptMismatch)
	}
	return nil
}

// DeadLetter moves a claimed message to the dead_letters table.
func (q *SQLiteQueue) DeadLetter(ctx context.Context, msg Message, reason string) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return docerrors.QueueError("dead-letter failed", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ? AND receipt = ?`, msg.ID, msg.Receipt)
	if err != nil {
		return docerrors.QueueError("dead-letter failed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return docerrors.New(docerrors.ErrCodeQueueAck, "dead-letter failed for "+msg.ID, ErrReceiptMismatch)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO dead_letters (id, body, reason, dequeue_count, dead_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, msg.Body, reason, msg.DequeueCount, q.now().UnixNano()); err != nil {
		return docerrors.QueueError("dead-letter failed", err)
	}
	if err := tx.Commit(); err != nil {
		return docerrors.QueueError("dead-letter failed", err)
	}
	return nil
}

// Len returns the number of queued messages, claimed or not.
func (q *SQLiteQueue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, docerrors.QueueError("count failed", err)
	}
	return n, nil
}

// DeadLetters lists dead-lettered messages, oldest first.
func (q *SQLiteQueue) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, body, reason, dead_at FROM dead_letters ORDER BY dead_at, id`)
	if err != nil {
		return nil, docerrors.QueueError("list dead letters failed", err)
	}
	defer func() { _ = rows.Close() }()

	var out []DeadLetter
	for rows.Next() {
		var (
			dl     DeadLetter
			deadAt int64
		)
		if err := rows.Scan(&dl.ID, &dl.Body, &dl.Reason, &deadAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		dl.DeadAt = time.Unix(0, deadAt)
		out = append(out, dl)
	}
	return out, rows.Err()
}

// Close closes the queue database.
func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
