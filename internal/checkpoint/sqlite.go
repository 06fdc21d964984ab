package checkpoint

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store in a SQLite database keyed by
// (migration, primary key). It also keeps a short run history.
type SQLiteStore struct {
	db *sql.DB
}

// Run is one recorded invocation of the migrate command.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	Inserted    int64
	Errors      int64
	Summary     string
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "checkpoint.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating checkpoint dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint database: %w", err)
	}
	// one writer; appends are serialized anyway
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating checkpoint schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT NOT NULL,
		pk TEXT NOT NULL,
		created_at TEXT NOT NULL DEFAULT (datetime('now')),
		UNIQUE(migration, pk)
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		inserted INTEGER DEFAULT 0,
		errors INTEGER DEFAULT 0,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_migration ON checkpoints(migration);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the ids recorded for migration in insertion order.
func (s *SQLiteStore) Load(ctx context.Context, migration string) (*Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pk FROM checkpoints WHERE migration = ? ORDER BY seq
	`, migration)
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint for %s: %w", migration, err)
	}
	defer rows.Close()

	set := NewSet()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.UseNumber()
		var id any
		if err := dec.Decode(&id); err != nil {
			return nil, fmt.Errorf("decoding checkpoint value %q: %w", raw, err)
		}
		set.Add(id)
	}
	return set, rows.Err()
}

// Append records id for migration. Recording the same id twice is a no-op.
func (s *SQLiteStore) Append(ctx context.Context, migration string, id any) error {
	// context.WithoutCancel keeps confirmed inserts recorded during shutdown
	_, err := s.db.ExecContext(context.WithoutCancel(ctx), `
		INSERT INTO checkpoints (migration, pk) VALUES (?, ?)
		ON CONFLICT(migration, pk) DO NOTHING
	`, migration, Key(id))
	if err != nil {
		return fmt.Errorf("appending checkpoint for %s: %w", migration, err)
	}
	return nil
}

// Counts returns the number of recorded ids per migration.
func (s *SQLiteStore) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT migration, COUNT(*) FROM checkpoints GROUP BY migration
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// CreateRun records the start of a run.
func (s *SQLiteStore) CreateRun(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, status) VALUES (?, datetime('now'), 'running')
	`, id)
	return err
}

// CompleteRun records the outcome of a run.
func (s *SQLiteStore) CompleteRun(ctx context.Context, id, status string, inserted, errors int64, summary string) error {
	_, err := s.db.ExecContext(context.WithoutCancel(ctx), `
		UPDATE runs SET completed_at = datetime('now'), status = ?, inserted = ?, errors = ?, summary = ?
		WHERE id = ?
	`, status, inserted, errors, summary, id)
	return err
}

// Runs returns the most recent runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, status, inserted, errors, COALESCE(summary, '')
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAtStr string
		var completedAtStr sql.NullString
		if err := rows.Scan(&r.ID, &startedAtStr, &completedAtStr, &r.Status, &r.Inserted, &r.Errors, &r.Summary); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAtStr)
		if completedAtStr.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", completedAtStr.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
