package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for quick errors.Is checks. The typed errors below wrap
// these so callers can match either the class or the detail.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a duplicate id on create.
	ErrConflict = errors.New("record already exists")

	// ErrValidation indicates malformed or missing input.
	ErrValidation = errors.New("invalid input")
)

// ValidationError reports malformed or missing input. It always carries a
// human-readable message and, where possible, a concrete remediation
// suggestion.
type ValidationError struct {
	Field      string // Offending field, empty when the whole request is bad
	Message    string
	Suggestion string
}

func (e *ValidationError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("validation: %s (%s)", e.Message, e.Suggestion)
	}
	return "validation: " + e.Message
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown record id.
type NotFoundError struct {
	Kind string // "memory" or "task"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports a duplicate id on create.
type ConflictError struct {
	Kind string
	ID   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IOError reports a filesystem failure on write. Read-time IO failures are
// recovered by treating a missing file as an absent record; write-time
// failures are fatal for that single operation and surfaced unmodified.
type IOError struct {
	Op   string // "write", "rename", "mkdir", ...
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
