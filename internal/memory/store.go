package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/warblehq/warble/internal/logging"
)

// Store persists one memory document per Discord user.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the memory database at path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Open database with WAL mode and single connection (no concurrency)
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't handle concurrent writers well; serialize all access
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS user_memory (
			user_id TEXT PRIMARY KEY,
			memory_text TEXT NOT NULL,
			last_updated TIMESTAMP NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Infof("memory database initialized at %s", path)
	return &Store{db: db}, nil
}

// Get returns the user's memory text, or empty string when none exists.
func (s *Store) Get(ctx context.Context, userID string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT memory_text FROM user_memory WHERE user_id = ?`, userID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load memory for %s: %w", userID, err)
	}
	return text, nil
}

// Set replaces the user's memory text.
func (s *Store) Set(ctx context.Context, userID, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_memory (user_id, memory_text, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			memory_text = excluded.memory_text,
			last_updated = excluded.last_updated
	`, userID, text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save memory for %s: %w", userID, err)
	}
	return nil
}

// Append adds a line to the user's memory text.
func (s *Store) Append(ctx context.Context, userID, text string) error {
	existing, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if existing != "" {
		text = existing + "\n" + text
	}
	return s.Set(ctx, userID, text)
}

// Clear removes the user's memory.
func (s *Store) Clear(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_memory WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to clear memory for %s: %w", userID, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
