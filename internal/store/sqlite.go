package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath and applies the schema.
// ":memory:" opens a private in-memory database on a single connection.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	inMemory := dbPath == ":memory:"

	dsn := "file::memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if inMemory {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(8)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, user_id, session_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_scope ON messages(tenant_id, user_id, session_id, seq);

	CREATE TABLE IF NOT EXISTS summaries (
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, user_id, session_id)
	);

	CREATE TABLE IF NOT EXISTS confirmations (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		job_id TEXT,
		created_at INTEGER NOT NULL,
		resolved_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_confirmations_pending
		ON confirmations(tenant_id, user_id, session_id, status, created_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		payload TEXT NOT NULL,
		result TEXT,
		error TEXT,
		confirmation_id TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_confirmation
		ON jobs(confirmation_id) WHERE confirmation_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		contact_info TEXT NOT NULL,
		skills TEXT NOT NULL,
		experience TEXT NOT NULL,
		projects TEXT NOT NULL,
		education TEXT NOT NULL,
		raw_text TEXT,
		confirmation_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_owner ON profiles(tenant_id, user_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_confirmation
		ON profiles(confirmation_id) WHERE confirmation_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS repositories (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		source_url TEXT NOT NULL,
		normalized_url TEXT NOT NULL,
		metadata TEXT NOT NULL,
		file_map TEXT NOT NULL,
		stack_signals TEXT NOT NULL,
		artifacts TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (tenant_id, user_id, normalized_url)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// DB exposes the handle for tests and diagnostics.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableNanos(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromNanos(v.Int64)
	return &t
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func marshalColumn(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal column: %w", err)
	}
	return string(data), nil
}

func unmarshalColumn(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

var _ Repository = (*SQLiteStore)(nil)
