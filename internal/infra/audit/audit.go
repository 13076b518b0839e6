// Package audit records every accepted mutation and rejected request the
// service processes. Backends mirror the driver layout used for the other
// stores: an in-memory log for tests, an embedded sqlite file for the
// default single-operator deployment, and postgres for shared deployments.
package audit

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Driver identifies a concrete audit log backend.
type Driver string

const (
	// DriverMemory keeps entries in process memory (tests / ephemeral).
	DriverMemory Driver = "memory"
	// DriverSQLite appends to an embedded sqlite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres appends to a PostgreSQL server.
	DriverPostgres Driver = "postgres"
)

// Entry is one audited service event.
type Entry struct {
	At        time.Time `json:"at"`
	Operation string    `json:"operation"`
	Target    string    `json:"target,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
}

// Log is the append-only audit contract.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Open selects a backend using environment variables. Defaults to sqlite
// when unset.
//
//	CHECKPLOT_AUDIT_DRIVER: memory|sqlite|postgres (default sqlite)
//	CHECKPLOT_AUDIT_SQLITE_PATH: path to sqlite file (default ./checkplot-audit.db)
//	CHECKPLOT_AUDIT_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context) (Log, error) {
	driver := os.Getenv("CHECKPLOT_AUDIT_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemoryLog(), nil
	case DriverSQLite:
		return NewSQLiteLog(os.Getenv("CHECKPLOT_AUDIT_SQLITE_PATH"))
	case DriverPostgres:
		return NewPostgresLog(ctx, os.Getenv("CHECKPLOT_AUDIT_POSTGRES_DSN"))
	default:
		return nil, fmt.Errorf("unknown audit driver %s", driver)
	}
}
