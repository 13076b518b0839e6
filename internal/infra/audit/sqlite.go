package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// SQLiteLog appends audit entries to an embedded sqlite file.
type SQLiteLog struct {
	db   *sql.DB
	path string
}

// NewSQLiteLog opens (creating if needed) the audit database at path.
func NewSQLiteLog(path string) (*SQLiteLog, error) {
	if path == "" {
		path = "checkplot-audit.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		operation TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &SQLiteLog{db: db, path: path}, nil
}

// Append inserts one entry.
func (l *SQLiteLog) Append(ctx context.Context, entry Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit (at, operation, target, status, detail) VALUES (?, ?, ?, ?, ?)`,
		entry.At.UTC().Format(timeLayout), entry.Operation, entry.Target, entry.Status, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *SQLiteLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT at, operation, target, status, detail FROM audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// Close releases the database handle.
func (l *SQLiteLog) Close() error { return l.db.Close() }
