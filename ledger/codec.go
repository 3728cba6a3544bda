/*
codec.go - String encoding at the store edge

PURPOSE:
  The store is string-typed. Every conversion between native values and
  cell text happens here, so the reconciler and views work on typed values
  only.

LOAD-BEARING LITERALS:
  current_month_paid: "TRUE" / "FALSE"
  status:             "Paid" / "Unpaid" / "Free"
  These must round-trip exactly.

LENIENCY:
  Decoding accepts what hand-edited sheets commonly contain ("true",
  "2025-01-01T00:00:00Z", " 500 "). Encoding always writes the canonical
  form.
*/
package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

const (
	encTrue  = "TRUE"
	encFalse = "FALSE"

	// DateLayout is the cell format of subscription dates.
	DateLayout = "2006-01-02"
)

// profileColumns are the columns owned by the Student. In the flat layout
// every ledger row carries a copy of them.
var profileColumns = []string{
	rowstore.ColUsername,
	rowstore.ColEmail,
	rowstore.ColMobile,
	rowstore.ColAadharNumber,
	rowstore.ColMonthlyFee,
	rowstore.ColSubscriptionStart,
	rowstore.ColSubscriptionEnd,
	rowstore.ColCurrentMonthPaid,
}

var aadharPattern = regexp.MustCompile(`^[0-9]{12}$`)

// =============================================================================
// SCALARS
// =============================================================================

// EncodeBool writes "TRUE" or "FALSE".
func EncodeBool(b bool) string {
	if b {
		return encTrue
	}
	return encFalse
}

// DecodeBool reads a boolean cell. Anything other than a true-ish literal is
// false.
func DecodeBool(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case encTrue, "1", "YES":
		return true
	}
	return false
}

// ParseStatus reads a status cell.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "paid":
		return StatusPaid, nil
	case "unpaid", "":
		return StatusUnpaid, nil
	case "free":
		return StatusFree, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// EncodeMoney writes a decimal without trailing zeros ("500", "499.5").
func EncodeMoney(d decimal.Decimal) string {
	return d.String()
}

// DecodeMoney reads a money cell. Empty is zero.
func DecodeMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// EncodeInt writes an integer cell.
func EncodeInt(n int) string {
	return strconv.Itoa(n)
}

// DecodeInt reads an integer cell. Sheets sometimes store "3.0".
func DecodeInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(f), nil
}

// EncodeDate writes a calendar date, "" for the zero time.
func EncodeDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// DecodeDate reads a calendar date. Timestamps are truncated to their date.
func DecodeDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// EncodeTimestamp writes an RFC3339 timestamp, "" for the zero time.
func EncodeTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// DecodeTimestamp reads an RFC3339 timestamp or a bare date.
func DecodeTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return DecodeDate(s)
}

// =============================================================================
// ROWS
// =============================================================================

// StudentToRow encodes the profile columns plus id.
func StudentToRow(s Student) rowstore.Row {
	return rowstore.Row{
		rowstore.ColID:                s.ID,
		rowstore.ColUsername:          s.Username,
		rowstore.ColEmail:             s.Email,
		rowstore.ColMobile:            s.Mobile,
		rowstore.ColAadharNumber:      s.AadharNumber,
		rowstore.ColMonthlyFee:        EncodeMoney(s.MonthlyFee),
		rowstore.ColSubscriptionStart: EncodeDate(s.SubscriptionStart),
		rowstore.ColSubscriptionEnd:   EncodeDate(s.SubscriptionEnd),
		rowstore.ColCurrentMonthPaid:  EncodeBool(s.CurrentMonthPaid),
	}
}

// StudentFromRow decodes a profile (or flat ledger) row.
func StudentFromRow(row rowstore.Row) (Student, error) {
	fee, err := DecodeMoney(row.Get(rowstore.ColMonthlyFee))
	if err != nil {
		return Student{}, fmt.Errorf("student %s: monthly_fee: %w", row.Get(rowstore.ColID), err)
	}
	start, err := DecodeDate(row.Get(rowstore.ColSubscriptionStart))
	if err != nil {
		return Student{}, fmt.Errorf("student %s: subscription_start: %w", row.Get(rowstore.ColID), err)
	}
	end, err := DecodeDate(row.Get(rowstore.ColSubscriptionEnd))
	if err != nil {
		return Student{}, fmt.Errorf("student %s: subscription_end: %w", row.Get(rowstore.ColID), err)
	}
	return Student{
		ID:                row.Get(rowstore.ColID),
		Username:          row.Get(rowstore.ColUsername),
		Email:             row.Get(rowstore.ColEmail),
		Mobile:            row.Get(rowstore.ColMobile),
		AadharNumber:      row.Get(rowstore.ColAadharNumber),
		MonthlyFee:        fee,
		SubscriptionStart: start,
		SubscriptionEnd:   end,
		CurrentMonthPaid:  DecodeBool(row.Get(rowstore.ColCurrentMonthPaid)),
	}, nil
}

// isLedgerRow reports whether the row carries both month and year.
func isLedgerRow(row rowstore.Row) bool {
	return strings.TrimSpace(row.Get(rowstore.ColMonth)) != "" &&
		strings.TrimSpace(row.Get(rowstore.ColYear)) != ""
}

// PaymentFromRow decodes a ledger row. studentField names the column that
// holds the student id (id in the flat layout, student_id in split).
func PaymentFromRow(row rowstore.Row, studentField string) (Payment, error) {
	month, err := DecodeInt(row.Get(rowstore.ColMonth))
	if err != nil {
		return Payment{}, fmt.Errorf("month: %w", err)
	}
	year, err := DecodeInt(row.Get(rowstore.ColYear))
	if err != nil {
		return Payment{}, fmt.Errorf("year: %w", err)
	}
	amount, err := DecodeMoney(row.Get(rowstore.ColAmount))
	if err != nil {
		return Payment{}, err
	}
	status, err := ParseStatus(row.Get(rowstore.ColStatus))
	if err != nil {
		return Payment{}, err
	}
	paidAt, err := DecodeTimestamp(row.Get(rowstore.ColPaymentDate))
	if err != nil {
		return Payment{}, fmt.Errorf("payment_date: %w", err)
	}

	studentID := row.Get(studentField)
	if studentID == "" && row.Get(rowstore.ColRowKey) != "" {
		// Derived-key rows written by other tools may omit the plain field.
		if k, err := ParseKey(row.Get(rowstore.ColRowKey)); err == nil {
			studentID = k.StudentID
		}
	}
	k := Key{StudentID: studentID, Month: month, Year: year}
	return Payment{
		ID:          FormatKey(k),
		StudentID:   studentID,
		Month:       month,
		Year:        year,
		Amount:      amount,
		Status:      status,
		PaymentDate: paidAt,
	}, nil
}

// ValidateAadhar accepts empty or exactly 12 digits.
func ValidateAadhar(s string) error {
	if s == "" || aadharPattern.MatchString(s) {
		return nil
	}
	return &ValidationError{Field: rowstore.ColAadharNumber, Message: "must be exactly 12 digits"}
}
