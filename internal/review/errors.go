package review

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnauthenticated is returned when no acting user can be resolved
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidTransition is returned for a status change outside the edge table
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrGatingFailure is returned when an edge exists but its precondition does not hold
	ErrGatingFailure = errors.New("gating precondition not met")

	// ErrValidation is returned for malformed input
	ErrValidation = errors.New("validation failed")

	// ErrConcurrencyConflict is returned when a versioned write loses a race
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("not found")

	// ErrPartialFailure is returned when only part of a composite operation was applied
	ErrPartialFailure = errors.New("partial failure")
)

// TransitionError describes a rejected (from, to) pair
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GatingError lists the receipts the actor still has to audit before approving
type GatingError struct {
	ReviewerID string
	Unaudited  []string
}

func (e *GatingError) Error() string {
	return fmt.Sprintf("reviewer %s has not audited receipts: %s", e.ReviewerID, strings.Join(e.Unaudited, ", "))
}

func (e *GatingError) Unwrap() error { return ErrGatingFailure }

// ValidationError names the offending field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Stage names one half of a composite operation
type Stage string

const (
	StageTransition   Stage = "transition"
	StageNote         Stage = "note"
	StageReceiptAudit Stage = "receipt_audit"
	StageAuditLog     Stage = "audit_log"
)

// PartialFailureError reports which half of a composite operation completed
// so a retry can apply only the remainder.
type PartialFailureError struct {
	Completed Stage
	Failed    Stage
	Err       error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s succeeded but %s failed: %v", e.Completed, e.Failed, e.Err)
}

func (e *PartialFailureError) Unwrap() []error { return []error{ErrPartialFailure, e.Err} }
