package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Fixed-width fraction so lexicographic order on the TEXT columns
// matches time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is the default Store, backed by a single SQLite database.
// WAL mode allows concurrent readers while one executor writes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the checkpoint database at
// path. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint: db path cannot be empty")
	}

	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		// State includes user intents and drafts; keep the file private.
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite supports one writer at a time, multiple readers with WAL
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	// Wait instead of immediately returning SQLITE_BUSY
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migration represents a database schema migration.
type Migration struct {
	Version int
	Name    string
	Apply   func(db *sql.DB) error
}

// migrations is the ordered list of all migrations.
var migrations = []Migration{
	{1, "initial_schema", func(db *sql.DB) error { return nil }}, // Base schema from schemaSQL
}

func runMigrations(db *sql.DB) error {
	// Base schema is idempotent via CREATE TABLE IF NOT EXISTS
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply base schema: %w", err)
	}

	currentVersion, err := getSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		if err := m.Apply(db); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := db.Exec(
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().Format(timeFormat),
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func getSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// CreateThread implements Store.
func (s *SQLiteStore) CreateThread(ctx context.Context, meta ThreadMeta) error {
	now := time.Now().UTC()
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (thread_id, user_intent, mode, status, final_artifact, created_at, updated_at)
		 VALUES (?, ?, ?, ?, '', ?, ?)`,
		meta.ThreadID, meta.UserIntent, meta.Mode, meta.Status,
		createdAt.Format(timeFormat), createdAt.Format(timeFormat),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
			strings.Contains(err.Error(), "constraint failed") {
			return ErrThreadExists
		}
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// Save implements Store. The seq computation and both writes share one
// transaction, which is what keeps the log gapless.
func (s *SQLiteStore) Save(ctx context.Context, threadID string, snapshot json.RawMessage, status string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM threads WHERE thread_id = ?`, threadID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check thread: %w", err)
	}
	if exists == 0 {
		return 0, ErrNotFound
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE thread_id = ?`, threadID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, snapshot, written_at) VALUES (?, ?, ?, ?)`,
		threadID, seq, string(snapshot), now,
	); err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE threads SET status = ?, updated_at = ? WHERE thread_id = ?`,
		status, now, threadID,
	); err != nil {
		return 0, fmt.Errorf("update thread status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return seq, nil
}

// LoadLatest implements Store.
func (s *SQLiteStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, seq, snapshot, written_at FROM checkpoints
		 WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`, threadID)

	cp, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load latest: %w", err)
	}
	return cp, nil
}

// History implements Store.
func (s *SQLiteStore) History(ctx context.Context, threadID string, limit int) ([]Checkpoint, error) {
	query := `SELECT thread_id, seq, snapshot, written_at FROM checkpoints
	          WHERE thread_id = ? ORDER BY seq ASC`
	args := []any{threadID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	if len(out) == 0 {
		// Distinguish an unknown thread from one with no checkpoints
		if _, err := s.Thread(ctx, threadID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Thread implements Store.
func (s *SQLiteStore) Thread(ctx context.Context, threadID string) (*ThreadMeta, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT thread_id, user_intent, mode, status, final_artifact, created_at, updated_at
		 FROM threads WHERE thread_id = ?`, threadID)

	meta, err := scanThreadMeta(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}
	return meta, nil
}

// Threads implements Store.
func (s *SQLiteStore) Threads(ctx context.Context, limit int) ([]ThreadMeta, error) {
	query := `SELECT thread_id, user_intent, mode, status, final_artifact, created_at, updated_at
	          FROM threads ORDER BY updated_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []ThreadMeta
	for rows.Next() {
		meta, err := scanThreadMeta(rows)
		if err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		out = append(out, *meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

// SetFinalArtifact implements Store.
func (s *SQLiteStore) SetFinalArtifact(ctx context.Context, threadID, artifact string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET final_artifact = ? WHERE thread_id = ?`, artifact, threadID)
	if err != nil {
		return fmt.Errorf("set final artifact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set final artifact: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StaleThreads implements Store.
func (s *SQLiteStore) StaleThreads(ctx context.Context, status string, before time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT thread_id FROM threads WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC`,
		status, before.UTC().Format(timeFormat))
	if err != nil {
		return nil, fmt.Errorf("query stale threads: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale thread: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var cp Checkpoint
	var snapshot, writtenAt string
	if err := row.Scan(&cp.ThreadID, &cp.Seq, &snapshot, &writtenAt); err != nil {
		return nil, err
	}
	cp.Snapshot = json.RawMessage(snapshot)

	t, err := time.Parse(timeFormat, writtenAt)
	if err != nil {
		return nil, fmt.Errorf("parse written_at: %w", err)
	}
	cp.WrittenAt = t
	return &cp, nil
}

func scanThreadMeta(row rowScanner) (*ThreadMeta, error) {
	var meta ThreadMeta
	var createdAt, updatedAt string
	if err := row.Scan(&meta.ThreadID, &meta.UserIntent, &meta.Mode, &meta.Status,
		&meta.FinalArtifact, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if meta.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if meta.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &meta, nil
}
