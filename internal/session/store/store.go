// Package store provides SQLite-backed persistence for sessions,
// messages, tool executions, and usage snapshots.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrSessionNotFound is returned when no persisted session row matches.
var ErrSessionNotFound = errors.New("session not found")

// Store provides SQLite-based session storage operations.
type Store struct {
	db     *sqlx.DB // writer
	ro     *sqlx.DB // reader (read-only pool)
	ownsDB bool
}

// NewWithDB creates a store on existing connections (shared ownership).
func NewWithDB(writer, reader *sqlx.DB) (*Store, error) {
	return newStore(writer, reader, false)
}

// New creates a store that owns its connections.
func New(writer, reader *sqlx.DB) (*Store, error) {
	return newStore(writer, reader, true)
}

func newStore(writer, reader *sqlx.DB, ownsDB bool) (*Store, error) {
	s := &Store{db: writer, ro: reader, ownsDB: ownsDB}
	if err := s.initSchema(); err != nil {
		if ownsDB {
			if closeErr := writer.Close(); closeErr != nil {
				return nil, fmt.Errorf("failed to close database after schema error: %w", closeErr)
			}
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connections.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	if s.ro != nil && s.ro != s.db {
		_ = s.ro.Close()
	}
	return s.db.Close()
}

// DB returns the underlying writer for shared access.
func (s *Store) DB() *sql.DB {
	return s.db.DB
}

// reader returns the read pool, falling back to the writer.
func (s *Store) reader() *sqlx.DB {
	if s.ro != nil {
		return s.ro
	}
	return s.db
}

// initSchema creates the database tables if they don't exist.
func (s *Store) initSchema() error {
	if err := s.initSessionSchema(); err != nil {
		return err
	}
	if err := s.initMessageSchema(); err != nil {
		return err
	}
	if err := s.initToolSchema(); err != nil {
		return err
	}
	return s.initUsageSchema()
}

func (s *Store) initSessionSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		working_dir TEXT NOT NULL DEFAULT '',
		remote_id TEXT,
		mode TEXT NOT NULL DEFAULT 'auto-accept',
		model TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'stopped',
		pending_mode TEXT,
		pending_model TEXT,
		disconnected_at TIMESTAMP,
		last_activity_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
	`)
	return err
}

func (s *Store) initMessageSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		content TEXT NOT NULL,
		meta_type TEXT,
		meta_data TEXT DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_session_created ON messages(session_id, created_at);
	`)
	return err
}

func (s *Store) initToolSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS tool_executions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		input TEXT DEFAULT '{}',
		result TEXT DEFAULT '',
		status TEXT NOT NULL DEFAULT 'started',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tool_executions_session_id ON tool_executions(session_id);
	`)
	return err
}

func (s *Store) initUsageSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS token_usage (
		session_id TEXT PRIMARY KEY,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost_usd REAL NOT NULL DEFAULT 0,
		context_window INTEGER NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`)
	return err
}
