/*
errors.go - Centralized error types for the tuition package

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify errors with errors.Is against the three categories and
  decide the user-facing message themselves. Nothing here is recovered
  silently.

ERROR CATEGORIES:
  1. ErrValidation - Bad or missing input (amount <= 0, blank subject)
  2. ErrNotFound   - Subject or balance record absent
  3. ErrConflict   - Nothing outstanding to apply a payment against

USAGE:
  _, err := allocator.Allocate(ctx, "2023001", "2025-SUMMER", amount)
  switch {
  case tuition.IsClientError(err):  // 400
  case tuition.IsNotFound(err):     // 404
  case tuition.IsConflict(err):     // 409
  }

SEE ALSO:
  - allocator.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package tuition

import (
	"errors"
	"fmt"
)

// =============================================================================
// CATEGORIES
// =============================================================================

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a payment or tuition amount is
	// missing, zero or negative.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be greater than 0", ErrValidation)

	// ErrInvalidRequest is returned when the subject or term is blank.
	ErrInvalidRequest = fmt.Errorf("%w: subject and term are required", ErrValidation)

	// ErrSubjectNotFound is returned when the subject does not exist.
	ErrSubjectNotFound = fmt.Errorf("subject %w", ErrNotFound)

	// ErrRecordNotFound is returned when a subject has no balance records
	// for the requested term.
	ErrRecordNotFound = fmt.Errorf("tuition record %w", ErrNotFound)

	// ErrNoOutstandingBalance is returned when every record for the
	// subject/term is already settled.
	ErrNoOutstandingBalance = fmt.Errorf("%w: no outstanding balance", ErrConflict)

	// ErrSubjectExists is returned when creating a subject that already exists.
	ErrSubjectExists = fmt.Errorf("%w: subject already exists", ErrConflict)
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AllocationError wraps a payment failure with the subject/term it concerns.
type AllocationError struct {
	SubjectID SubjectID
	Term      Term
	Err       error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("payment for subject %s term %s: %v", e.SubjectID, e.Term, e.Err)
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request is valid but cannot be applied to
// the current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
