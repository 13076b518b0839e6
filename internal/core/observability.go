package core

import (
	"context"
	"time"

	"checkplotcore/internal/infra/audit"
)

// Logger is the minimal structured logging contract the service emits
// through. Arguments are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger swallows all log output; it is the default when no logger is
// injected.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes per-operation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan terminates a trace started by a Tracer.
type TraceSpan interface {
	End(err error)
}

// Tracer opens one span per service operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// AuditStatus classifies an audit entry outcome.
type AuditStatus string

// Audit entry outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one audited service event.
type AuditEntry struct {
	Operation string
	Target    string
	Status    AuditStatus
	Detail    string
	At        time.Time
}

// AuditRecorder receives one entry per completed operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// LogAuditRecorder persists audit entries into an audit.Log backend.
type LogAuditRecorder struct {
	Log    audit.Log
	Logger Logger
}

// Record appends the entry to the backing log. Append failures are logged
// and dropped; auditing must never fail an operation.
func (r LogAuditRecorder) Record(ctx context.Context, entry AuditEntry) {
	if r.Log == nil {
		return
	}
	err := r.Log.Append(ctx, audit.Entry{
		At:        entry.At,
		Operation: entry.Operation,
		Target:    entry.Target,
		Status:    string(entry.Status),
		Detail:    entry.Detail,
	})
	if err != nil && r.Logger != nil {
		r.Logger.Warn("audit append failed", "operation", entry.Operation, "error", err)
	}
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now invokes the wrapped function.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
