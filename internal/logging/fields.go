package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent diagnostics.
const (
	FieldRunID    = "run_id"
	FieldBackend  = "backend"
	FieldLevel    = "entry_level"
	FieldOutcome  = "outcome"
	FieldDuration = "duration_ms"
	FieldError    = "error"
	FieldTarget   = "target"
)

// RunID returns a slog attribute for the process run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// Backend returns a slog attribute for the sink backend.
func Backend(name string) slog.Attr {
	return slog.String(FieldBackend, name)
}

// Level returns a slog attribute for a LogEntry level.
func Level(level string) slog.Attr {
	return slog.String(FieldLevel, level)
}

// Outcome returns a slog attribute for a probe outcome.
func Outcome(outcome string) slog.Attr {
	return slog.String(FieldOutcome, outcome)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Target returns a slog attribute for a redacted connection target.
func Target(target string) slog.Attr {
	return slog.String(FieldTarget, target)
}

// Error returns a slog attribute for an error.
// Returns an empty attribute if err is nil.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(FieldError, err.Error())
}
