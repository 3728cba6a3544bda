/*
errors.go - Store-level error types

PURPOSE:
  Every failure that originates at (or below) the row store boundary is
  reported as a *StoreError. The ledger layer never sees raw transport
  errors: adapters wrap them here.

USAGE:
  if errors.Is(err, rowstore.ErrStore) {
      // transport/write failure, state unknown, re-fetch before retry
  }

SEE ALSO:
  - rowstore.go: Adapter contract
  - ledger/errors.go: Domain errors built on top
*/
package rowstore

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrStore is the umbrella sentinel matched by every *StoreError.
	ErrStore = errors.New("row store failure")

	// ErrMissingIdentity is returned by Insert when the row has no id.
	ErrMissingIdentity = errors.New("missing identity field")

	// ErrUnknownColumn is returned when a predicate or payload names a column
	// outside the schema.
	ErrUnknownColumn = errors.New("unknown column")

	// ErrUnsupportedMatch is returned by adapters that cannot match on the
	// requested number of fields.
	ErrUnsupportedMatch = errors.New("unsupported match predicate")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// StoreError wraps a transport or write failure with the adapter operation.
type StoreError struct {
	Op     string // fetch_all, search, insert, update, delete
	Err    error
	Detail string
}

func (e *StoreError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("store %s: %v (%s)", e.Op, e.Err, e.Detail)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStore.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

// Wrap turns err into a *StoreError for op. Nil stays nil; an existing
// StoreError is returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err originated at the store boundary.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
