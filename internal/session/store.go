// Package session persists conversation turns to SQLite so threads
// survive restarts. The store is append-only: a turn is written once,
// after the pipeline has produced its final answer.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"cortexre/internal/logging"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS turns (
	id          TEXT PRIMARY KEY,
	thread_id   TEXT NOT NULL,
	turn_number INTEGER NOT NULL,
	query       TEXT NOT NULL,
	answer      TEXT NOT NULL,
	blocked     INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	UNIQUE (thread_id, turn_number)
);
CREATE INDEX IF NOT EXISTS idx_turns_thread ON turns (thread_id, turn_number);
`

// Turn is one persisted query/answer exchange.
type Turn struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	TurnNumber int       `json:"turn_number"`
	Query      string    `json:"query"`
	Answer     string    `json:"answer"`
	Blocked    bool      `json:"blocked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// modernc sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply session schema: %w", err)
	}
	logging.Session("session store opened at %s", path)
	return &Store{db: db}, nil
}

// AppendTurn records one exchange on a thread. Turn numbers are
// sequential per thread starting at 1.
func (s *Store) AppendTurn(ctx context.Context, threadID, query, answer string, blocked bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var next int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(turn_number), 0) + 1 FROM turns WHERE thread_id = ?`,
		threadID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next turn number: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, thread_id, turn_number, query, answer, blocked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), threadID, next, query, answer, boolToInt(blocked),
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}

	logging.SessionDebug("appended turn %d to thread %s", next, threadID)
	return nil
}

// History returns a thread's turns in order. limit <= 0 returns all.
func (s *Store) History(ctx context.Context, threadID string, limit int) ([]Turn, error) {
	q := `SELECT id, thread_id, turn_number, query, answer, blocked, created_at
	      FROM turns WHERE thread_id = ? ORDER BY turn_number`
	args := []any{threadID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var blocked int
		var created string
		if err := rows.Scan(&t.ID, &t.ThreadID, &t.TurnNumber, &t.Query, &t.Answer, &blocked, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Blocked = blocked != 0
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Threads returns the distinct thread IDs, most recently active first.
func (s *Store) Threads(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM turns GROUP BY thread_id ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan thread id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
