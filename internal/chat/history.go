/*-------------------------------------------------------------------------
 *
 * SQLScribe - Chat History
 *
 * Portions copyright (c) 2025, pgEdge, Inc.
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package chat

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"sqlscribe/internal/logging"
)

// Exchange is one question/answer round kept in the history database
type Exchange struct {
	ID        string
	Question  string
	SQL       string
	Succeeded bool
	CreatedAt time.Time
}

// History persists chat exchanges in a local SQLite database
type History struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenHistory opens (and initializes if needed) the history database at
// path, creating parent directories
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// WAL mode avoids writer stalls when the REPL saves mid-session
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
    CREATE TABLE IF NOT EXISTS exchanges (
        id TEXT PRIMARY KEY,
        question TEXT NOT NULL,
        sql_text TEXT NOT NULL,
        succeeded INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_exchanges_created_at
        ON exchanges(created_at DESC);
    `
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the underlying database
func (h *History) Close() error {
	return h.db.Close()
}

// Save records one exchange; failures are logged, not fatal, so a broken
// history file never interrupts a session
func (h *History) Save(question, sqlText string, succeeded bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.db.Exec(
		"INSERT INTO exchanges (id, question, sql_text, succeeded, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), question, sqlText, succeeded, time.Now().UTC())
	if err != nil {
		logging.Warn("failed to save chat history", "error", err)
	}
}

// Recent returns the latest exchanges, newest first
func (h *History) Recent(limit int) ([]Exchange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.Query(
		"SELECT id, question, sql_text, succeeded, created_at FROM exchanges ORDER BY created_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.Question, &e.SQL, &e.Succeeded, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, rows.Err()
}

// Clear deletes all saved exchanges and returns the count removed
func (h *History) Clear() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	result, err := h.db.Exec("DELETE FROM exchanges")
	if err != nil {
		return 0, fmt.Errorf("failed to clear history: %w", err)
	}
	return result.RowsAffected()
}
