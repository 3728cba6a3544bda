/*
errors.go - Domain error types for the ledger

ERROR CATEGORIES:
  1. ValidationError    - Malformed input, caught before any store call
  2. NotFoundError      - A student assumed to exist does not
  3. IntegrityViolation - Duplicate ledger rows, or a write that hit no rows
  4. PartialDeleteError - A cascading delete left rows behind
  Store failures stay *rowstore.StoreError and pass through unchanged.

USAGE:
  switch {
  case ledger.IsClientError(err):  // 400
  case ledger.IsNotFound(err):     // 404
  case ledger.IsIntegrity(err):    // 409
  }

SEE ALSO:
  - rowstore/errors.go: StoreError
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("not found")
	ErrIntegrity     = errors.New("integrity violation")
	ErrPartialDelete = errors.New("partial delete")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports one bad input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports a missing student.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IntegrityViolation reports a broken uniqueness or existence assumption.
type IntegrityViolation struct {
	StudentID string
	Key       *Key // set for ledger-row violations
	Matched   int
	Reason    string
}

func (e *IntegrityViolation) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("integrity violation on %s: %s (%d rows matched)", FormatKey(*e.Key), e.Reason, e.Matched)
	}
	return fmt.Sprintf("integrity violation for student %s: %s (%d rows matched)", e.StudentID, e.Reason, e.Matched)
}

func (e *IntegrityViolation) Unwrap() error { return ErrIntegrity }

// PartialDeleteError reports rows that survived a cascading delete.
type PartialDeleteError struct {
	StudentID         string
	ProfilesRemaining int
	LedgerRemaining   int
	Err               error // the store failure, if one was observed
}

func (e *PartialDeleteError) Error() string {
	msg := fmt.Sprintf("partial delete of student %s: %d profile and %d ledger rows remain",
		e.StudentID, e.ProfilesRemaining, e.LedgerRemaining)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PartialDeleteError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPartialDelete}
	}
	return []error{ErrPartialDelete, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound returns true if the error indicates a missing student.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIntegrity returns true for duplicate-row and zero-row violations.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsPartialDelete returns true when a cascade left rows behind.
func IsPartialDelete(err error) bool {
	return errors.Is(err, ErrPartialDelete)
}
