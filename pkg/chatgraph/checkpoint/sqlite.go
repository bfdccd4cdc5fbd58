package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists checkpoints to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a new SQLite checkpoint store.
// The path should be a file path (e.g., "./conversations.db") or ":memory:"
// for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			conversation_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			state BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]byte, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, 0, ErrStoreClosed
	}

	var data []byte
	var version int64
	err := s.db.QueryRowContext(ctx, `
		SELECT state, version FROM conversations
		WHERE conversation_id = ?
	`, conversationID).Scan(&data, &version)

	if err == sql.ErrNoRows {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, version, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, conversationID string, data []byte, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	if expectedVersion == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (conversation_id, version, updated_at, state)
			VALUES (?, 1, ?, ?)
			ON CONFLICT(conversation_id) DO NOTHING
		`, conversationID, now, data)
		if err != nil {
			return 0, fmt.Errorf("save checkpoint: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("save checkpoint: %w", err)
		}
		if affected == 0 {
			return 0, ErrVersionConflict
		}
		return 1, nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET version = version + 1, updated_at = ?, state = ?
		WHERE conversation_id = ? AND version = ?
	`, now, data, conversationID, expectedVersion)
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("save checkpoint: %w", err)
	}
	if affected == 0 {
		// Distinguish a missing row from a version mismatch
		var exists int
		err := s.db.QueryRowContext(ctx, `
			SELECT 1 FROM conversations WHERE conversation_id = ?
		`, conversationID).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, ErrNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("save checkpoint: %w", err)
		}
		return 0, ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
