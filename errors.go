package sema

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the dispatch layer.
var (
	// ErrUnsupportedOperand indicates incompatible operand types for a
	// native operator (including a nil payload when the nil shortcut is
	// active).
	ErrUnsupportedOperand = errors.New("unsupported operand")

	// ErrUnsupportedOperation indicates the operator has no native meaning
	// for the payload types and semantic mode is off.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrBackendDisabled indicates semantic resolution was required but
	// backend calls are explicitly forbidden for the value.
	ErrBackendDisabled = errors.New("backend calls disabled")

	// ErrNoEngine indicates no engine is registered for the requested
	// capability.
	ErrNoEngine = errors.New("no engine registered")
)

// BackendCallError wraps an engine failure on the semantic path.
type BackendCallError struct {
	EngineID string
	Op       string
	Err      error
}

func (e *BackendCallError) Error() string {
	return fmt.Sprintf("engine %s failed on %q: %v", e.EngineID, e.Op, e.Err)
}

func (e *BackendCallError) Unwrap() error { return e.Err }

// Violation describes one schema-validation failure.
type Violation struct {
	Path     string // Field path, e.g. "items.0.name"
	Message  string // Human-readable failure message
	Expected string // Expected type or shape
}

func (v Violation) String() string {
	return fmt.Sprintf("Field '%s': %s. Expected type: %s.", v.Path, v.Message, v.Expected)
}

// ValidationError is raised by a Schema when text fails to validate.
// It is the only error kind the validation loop retries; anything else
// propagates immediately as an UnexpectedResponseShapeError.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

// ValidationExhaustedError is returned when the schema-validation loop runs
// out of retries. It carries the last rendered violation list so the failure
// can be reconstructed without re-running anything.
type ValidationExhaustedError struct {
	Attempts   int
	Violations []Violation
}

func (e *ValidationExhaustedError) Error() string {
	ve := ValidationError{Violations: e.Violations}
	return fmt.Sprintf("failed to retrieve valid output after %d attempts: %s", e.Attempts, ve.Error())
}

// ConstraintExhaustedError is returned when the constraint-enforcement loop
// runs out of retries. Violations holds the last violation set.
type ConstraintExhaustedError struct {
	Attempts   int
	Violations []string
}

func (e *ConstraintExhaustedError) Error() string {
	return fmt.Sprintf("failed to enforce constraints after %d attempts: %s",
		e.Attempts, strings.Join(e.Violations, " | "))
}

// UnexpectedResponseShapeError wraps a non-validation failure during schema
// parsing. It signals an unexpected response shape rather than a fixable
// schema mismatch and is never retried.
type UnexpectedResponseShapeError struct {
	Err error
}

func (e *UnexpectedResponseShapeError) Error() string {
	return fmt.Sprintf("unexpected response shape: %v", e.Err)
}

func (e *UnexpectedResponseShapeError) Unwrap() error { return e.Err }
