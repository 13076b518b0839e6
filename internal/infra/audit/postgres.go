package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

const (
	pgDriver   = "pgx"
	defaultDSN = "postgres://localhost/checkplotcore?sslmode=disable"
	timeLayout = time.RFC3339Nano
)

// PostgresLog appends audit entries to a PostgreSQL table.
type PostgresLog struct {
	db *sql.DB
}

// NewPostgresLog opens a postgres-backed audit log using the provided DSN
// (falls back to defaultDSN) and ensures the audit table exists.
func NewPostgresLog(ctx context.Context, dsn string) (*PostgresLog, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(pgDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS audit (
		id BIGSERIAL PRIMARY KEY,
		at TEXT NOT NULL,
		operation TEXT NOT NULL,
		target TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return nil, fmt.Errorf("ensure audit table: %w", err)
	}
	return &PostgresLog{db: db}, nil
}

// Append inserts one entry.
func (l *PostgresLog) Append(ctx context.Context, entry Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit (at, operation, target, status, detail) VALUES ($1, $2, $3, $4, $5)`,
		entry.At.UTC().Format(timeLayout), entry.Operation, entry.Target, entry.Status, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT at, operation, target, status, detail FROM audit ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanEntries(rows)
}

// Close releases the database handle.
func (l *PostgresLog) Close() error { return l.db.Close() }

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&at, &e.Operation, &e.Target, &e.Status, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		parsed, err := time.Parse(timeLayout, at)
		if err != nil {
			return nil, fmt.Errorf("parse audit timestamp: %w", err)
		}
		e.At = parsed
		out = append(out, e)
	}
	return out, rows.Err()
}
