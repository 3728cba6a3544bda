/*
Package ledger reconciles students and their monthly fee payments with a
flat row store.

PURPOSE:
  The row store has no joins, no transactions and no native types. This
  package owns the rules that keep it consistent anyway: at most one ledger
  row per (student, month, year), profile copies broadcast on edit, cascading
  deletes that report partial failure, and a Free status derived from a zero
  fee.

KEY CONCEPTS IN THIS FILE (types.go):
  - Student: One person, identified by a desk/slot id
  - Payment: One ledger row for (student, month, year)
  - Key:     The natural key of a ledger row
  - Status:  Paid | Unpaid | Free (tri-state, Free is terminal)
  - Layout:  flat (row-per-month) or split (Students + Payments sheets)

MONTHS:
  Month is 0-based (0 = January) everywhere in this package and in the
  store. Only the derived key string uses 1-based months.

SEE ALSO:
  - reconciler.go: Writes (create, update, delete, record payment)
  - views.go:      Reads (student list, payment list, status per month)
  - identity.go:   How a Key becomes a row match
  - codec.go:      String encoding at the store edge
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the state of one ledger row.
type Status string

const (
	StatusPaid   Status = "Paid"
	StatusUnpaid Status = "Unpaid"
	StatusFree   Status = "Free"
)

// IsSettled reports whether no money is owed for the month.
func (s Status) IsSettled() bool {
	return s == StatusPaid || s == StatusFree
}

// StatusFor derives the status to record. A zero fee is Free regardless of
// paid.
func StatusFor(monthlyFee decimal.Decimal, paid bool) Status {
	if monthlyFee.IsZero() {
		return StatusFree
	}
	if paid {
		return StatusPaid
	}
	return StatusUnpaid
}

// =============================================================================
// LAYOUT
// =============================================================================

// Layout describes how students and payments are spread over sheets.
type Layout string

const (
	// LayoutFlat keeps one sheet. The profile row has empty month/year and
	// every ledger row repeats the profile fields.
	LayoutFlat Layout = "flat"

	// LayoutSplit keeps profiles in one sheet and payments in another,
	// linked by student_id.
	LayoutSplit Layout = "split"
)

// ParseLayout accepts "flat" or "split". Empty means flat.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case "", LayoutFlat:
		return LayoutFlat, nil
	case LayoutSplit:
		return LayoutSplit, nil
	}
	return "", fmt.Errorf("unknown layout %q (want flat or split)", s)
}

// =============================================================================
// STUDENT
// =============================================================================

// Student is one registered person.
type Student struct {
	ID                string
	Username          string
	Email             string
	Mobile            string
	AadharNumber      string
	MonthlyFee        decimal.Decimal
	SubscriptionStart time.Time
	SubscriptionEnd   time.Time
	CurrentMonthPaid  bool
}

// IsFree is derived from the fee, never stored.
func (s Student) IsFree() bool {
	return s.MonthlyFee.IsZero()
}

// NewStudent is the input to CreateStudent.
type NewStudent struct {
	ID                string // generated when empty
	Username          string
	Email             string
	Mobile            string
	AadharNumber      string
	MonthlyFee        decimal.Decimal
	IsFree            *bool     // optional; must agree with MonthlyFee
	SubscriptionStart time.Time // today when zero
	SubscriptionEnd   time.Time // start + 1 month when zero
}

// =============================================================================
// PAYMENT
// =============================================================================

// Key is the natural key of a ledger row.
type Key struct {
	StudentID string
	Month     int // 0..11
	Year      int
}

func (k Key) String() string {
	return FormatKey(k)
}

// Validate checks the key's ranges.
func (k Key) Validate() error {
	if k.StudentID == "" {
		return &ValidationError{Field: "student_id", Message: "is required"}
	}
	if k.Month < 0 || k.Month > 11 {
		return &ValidationError{Field: "month", Message: fmt.Sprintf("must be between 0 and 11, got %d", k.Month)}
	}
	if k.Year < 1 || k.Year > 9999 {
		return &ValidationError{Field: "year", Message: fmt.Sprintf("must be between 1 and 9999, got %d", k.Year)}
	}
	return nil
}

// KeyForTime returns the key of the calendar month containing t.
func KeyForTime(studentID string, t time.Time) Key {
	return Key{StudentID: studentID, Month: int(t.Month()) - 1, Year: t.Year()}
}

// Payment is one ledger row. ID is always the derived key string.
type Payment struct {
	ID          string
	StudentID   string
	Month       int
	Year        int
	Amount      decimal.Decimal
	Status      Status
	PaymentDate time.Time // zero unless Paid
}

// Key returns the payment's natural key.
func (p Payment) Key() Key {
	return Key{StudentID: p.StudentID, Month: p.Month, Year: p.Year}
}

// Action tells whether RecordPayment inserted or updated.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
)

// RecordResult is the outcome of RecordPayment.
type RecordResult struct {
	Payment Payment
	Action  Action
}

// DeleteResult is the outcome of DeleteStudent.
type DeleteResult struct {
	ProfilesRemoved int
	LedgerRemoved   int
}
