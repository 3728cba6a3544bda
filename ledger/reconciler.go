/*
reconciler.go - Writes against the row store

PURPOSE:
  Every write to students or ledger rows goes through the Reconciler. It
  turns the store's five primitive calls into operations that keep the
  ledger consistent without transactions.

RECORD PAYMENT (upsert):
  1. Validate the key and amount, load the student (NotFoundError if absent)
  2. Derive the status: zero fee -> Free, else Paid/Unpaid
  3. Search the ledger row through the identity scheme
  4. 0 rows -> insert (profile snapshot + key + values)
     1 row  -> update amount, status, payment_date (+ current_month_paid)
     2+     -> IntegrityViolation, nothing written
  The search always completes before the write. Replaying the same call
  converges to the same row.

PROFILE BROADCAST:
  In the flat layout every ledger row carries a copy of the profile. A
  profile update matches on id, which selects the profile row and every
  ledger row of the student in one Update call.

CASCADE DELETE:
  Delete, then re-read. Anything left behind is a PartialDeleteError, even
  when the store reported success.

RACES:
  Two concurrent RecordPayment calls for the same key can both see "absent"
  and both insert. The next call for that key reports the duplicate as an
  IntegrityViolation instead of picking one.

SEE ALSO:
  - identity.go: Match/Stamp per scheme
  - views.go: Read side
*/
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Config wires a Reconciler.
type Config struct {
	// Students holds profile rows. In the flat layout it is the only sheet.
	Students rowstore.Adapter
	// Payments holds ledger rows in the split layout. Ignored when flat.
	Payments rowstore.Adapter

	Layout Layout
	Scheme string // composite (default) or derived

	Clock  func() time.Time
	Logger logrus.FieldLogger
}

// Reconciler performs all ledger writes.
type Reconciler struct {
	students rowstore.Adapter
	payments rowstore.Adapter
	layout   Layout
	scheme   IdentityScheme
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewReconciler validates cfg and builds a Reconciler.
func NewReconciler(cfg Config) (*Reconciler, error) {
	if cfg.Students == nil {
		return nil, errors.New("ledger: students adapter is required")
	}
	layout, err := ParseLayout(string(cfg.Layout))
	if err != nil {
		return nil, err
	}
	payments := cfg.Payments
	if layout == LayoutFlat {
		payments = cfg.Students
	} else if payments == nil {
		return nil, errors.New("ledger: split layout needs a payments adapter")
	}
	scheme, err := NewScheme(cfg.Scheme, layout)
	if err != nil {
		return nil, err
	}

	r := &Reconciler{
		students: cfg.Students,
		payments: payments,
		layout:   layout,
		scheme:   scheme,
		now:      cfg.Clock,
		log:      cfg.Logger,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r, nil
}

// Layout returns the configured layout.
func (r *Reconciler) Layout() Layout { return r.layout }

// Scheme returns the identity scheme in use.
func (r *Reconciler) Scheme() IdentityScheme { return r.scheme }

// Now returns the reconciler's clock reading.
func (r *Reconciler) Now() time.Time { return r.now() }

// NewStudentID generates an id for students registered without one.
func NewStudentID() string {
	return "STU-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// =============================================================================
// STUDENT LOOKUP
// =============================================================================

// Student loads one student's profile.
func (r *Reconciler) Student(ctx context.Context, id string) (Student, error) {
	if strings.TrimSpace(id) == "" {
		return Student{}, &ValidationError{Field: rowstore.ColID, Message: "is required"}
	}
	rows, err := r.students.Search(ctx, rowstore.Predicate{rowstore.ColID: id})
	if err != nil {
		return Student{}, err
	}
	row, ok := pickProfile(rows)
	if !ok {
		return Student{}, &NotFoundError{Kind: "student", ID: id}
	}
	return StudentFromRow(row)
}

// pickProfile prefers the row without month/year. When the profile row is
// gone, the first ledger copy stands in, like the list view.
func pickProfile(rows []rowstore.Row) (rowstore.Row, bool) {
	for _, row := range rows {
		if !isLedgerRow(row) {
			return row, true
		}
	}
	if len(rows) > 0 {
		return rows[0], true
	}
	return nil, false
}

// =============================================================================
// CREATE
// =============================================================================

// CreateStudent registers a student. In the flat layout it also inserts the
// ledger row for the current calendar month.
func (r *Reconciler) CreateStudent(ctx context.Context, in NewStudent) (Student, error) {
	now := r.now()
	s, err := r.validateNew(in, now)
	if err != nil {
		return Student{}, err
	}

	existing, err := r.students.Search(ctx, rowstore.Predicate{rowstore.ColID: s.ID})
	if err != nil {
		return Student{}, err
	}
	if len(existing) > 0 {
		return Student{}, &ValidationError{Field: rowstore.ColID, Message: fmt.Sprintf("%s is already registered", s.ID)}
	}

	status := StatusFor(s.MonthlyFee, false)
	s.CurrentMonthPaid = status.IsSettled()

	if err := r.students.Insert(ctx, StudentToRow(s)); err != nil {
		return Student{}, err
	}
	r.log.WithFields(logrus.Fields{
		"student_id": s.ID,
		"free":       s.IsFree(),
	}).Info("student registered")

	if r.layout == LayoutFlat {
		key := KeyForTime(s.ID, now)
		if _, err := r.insertLedger(ctx, s, key, s.MonthlyFee, status, time.Time{}); err != nil {
			// The profile stays; RecordPayment for this month will insert it.
			return s, fmt.Errorf("student %s registered without a ledger row for %s: %w", s.ID, FormatKey(key), err)
		}
	}
	return s, nil
}

func (r *Reconciler) validateNew(in NewStudent, now time.Time) (Student, error) {
	s := Student{
		ID:                strings.TrimSpace(in.ID),
		Username:          strings.TrimSpace(in.Username),
		Email:             strings.TrimSpace(in.Email),
		Mobile:            strings.TrimSpace(in.Mobile),
		AadharNumber:      strings.TrimSpace(in.AadharNumber),
		MonthlyFee:        in.MonthlyFee,
		SubscriptionStart: dateOf(in.SubscriptionStart),
		SubscriptionEnd:   dateOf(in.SubscriptionEnd),
	}
	if s.ID == "" {
		s.ID = NewStudentID()
	}
	if s.Username == "" {
		return Student{}, &ValidationError{Field: rowstore.ColUsername, Message: "is required"}
	}
	if err := ValidateAadhar(s.AadharNumber); err != nil {
		return Student{}, err
	}
	if s.MonthlyFee.IsNegative() {
		return Student{}, &ValidationError{Field: rowstore.ColMonthlyFee, Message: "must not be negative"}
	}
	if in.IsFree != nil {
		if *in.IsFree && s.MonthlyFee.IsPositive() {
			return Student{}, &ValidationError{Field: "is_free", Message: "contradicts a positive monthly_fee"}
		}
		if !*in.IsFree && s.MonthlyFee.IsZero() {
			return Student{}, &ValidationError{Field: rowstore.ColMonthlyFee, Message: "must be positive when is_free is false"}
		}
	}
	if s.SubscriptionStart.IsZero() {
		s.SubscriptionStart = dateOf(now)
	}
	if s.SubscriptionEnd.IsZero() {
		s.SubscriptionEnd = s.SubscriptionStart.AddDate(0, 1, 0)
	}
	if s.SubscriptionEnd.Before(s.SubscriptionStart) {
		return Student{}, &ValidationError{Field: rowstore.ColSubscriptionEnd, Message: "must not be before subscription_start"}
	}
	return s, nil
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

// RecordPayment upserts the ledger row for (studentID, month, year).
func (r *Reconciler) RecordPayment(ctx context.Context, studentID string, month, year int, amount decimal.Decimal, paid bool) (RecordResult, error) {
	key := Key{StudentID: studentID, Month: month, Year: year}
	if err := key.Validate(); err != nil {
		return RecordResult{}, err
	}
	if amount.IsNegative() {
		return RecordResult{}, &ValidationError{Field: rowstore.ColAmount, Message: "must not be negative"}
	}

	s, err := r.Student(ctx, studentID)
	if err != nil {
		return RecordResult{}, err
	}
	status := StatusFor(s.MonthlyFee, paid)
	var paidAt time.Time
	if status == StatusPaid {
		paidAt = r.now().UTC().Truncate(time.Second)
	}

	match := r.scheme.Match(key)
	rows, err := r.payments.Search(ctx, match)
	if err != nil {
		return RecordResult{}, err
	}

	result := RecordResult{
		Payment: Payment{
			ID:          FormatKey(key),
			StudentID:   key.StudentID,
			Month:       key.Month,
			Year:        key.Year,
			Amount:      amount,
			Status:      status,
			PaymentDate: paidAt,
		},
	}

	switch len(rows) {
	case 0:
		if _, err := r.insertLedger(ctx, s, key, amount, status, paidAt); err != nil {
			return RecordResult{}, err
		}
		result.Action = ActionInserted
	case 1:
		n, err := r.payments.Update(ctx, match, r.ledgerFields(amount, status, paidAt))
		if err != nil {
			return RecordResult{}, err
		}
		if n != 1 {
			return RecordResult{}, &IntegrityViolation{
				StudentID: studentID,
				Key:       &key,
				Matched:   n,
				Reason:    "ledger row changed between search and update",
			}
		}
		result.Action = ActionUpdated
	default:
		return RecordResult{}, &IntegrityViolation{
			StudentID: studentID,
			Key:       &key,
			Matched:   len(rows),
			Reason:    "duplicate ledger rows",
		}
	}

	r.log.WithFields(logrus.Fields{
		"student_id": studentID,
		"month":      month,
		"year":       year,
		"status":     status,
		"action":     result.Action,
	}).Info("ledger row recorded")
	return result, nil
}

// ledgerFields are the per-month values written on insert and update.
func (r *Reconciler) ledgerFields(amount decimal.Decimal, status Status, paidAt time.Time) rowstore.Row {
	fields := rowstore.Row{
		rowstore.ColAmount:      EncodeMoney(amount),
		rowstore.ColStatus:      string(status),
		rowstore.ColPaymentDate: EncodeTimestamp(paidAt),
	}
	if r.layout == LayoutFlat {
		fields[rowstore.ColCurrentMonthPaid] = EncodeBool(status.IsSettled())
	}
	return fields
}

func (r *Reconciler) insertLedger(ctx context.Context, s Student, key Key, amount decimal.Decimal, status Status, paidAt time.Time) (rowstore.Row, error) {
	row := rowstore.Row{}
	if r.layout == LayoutFlat {
		row = StudentToRow(s)
	}
	r.scheme.Stamp(key, row)
	row.Merge(r.ledgerFields(amount, status, paidAt))

	if err := r.payments.Insert(ctx, row); err != nil {
		return nil, err
	}
	return row, nil
}

// =============================================================================
// UPDATE PROFILE
// =============================================================================

// ledgerScoped keys belong to a month's row, never to the profile.
var ledgerScoped = map[string]bool{
	rowstore.ColID:          true,
	rowstore.ColMonth:       true,
	rowstore.ColYear:        true,
	rowstore.ColAmount:      true,
	rowstore.ColStatus:      true,
	rowstore.ColPaymentDate: true,
	rowstore.ColRowKey:      true,
	rowstore.ColStudentID:   true,

	rowstore.ColCurrentMonthPaid: true,
}

// UpdateProfile applies profile fields to the student and, in the flat
// layout, to every ledger row of the student. Values may be strings, numbers
// or booleans; they are normalized to the store encoding here.
func (r *Reconciler) UpdateProfile(ctx context.Context, id string, updates map[string]any) (Student, error) {
	if len(updates) == 0 {
		return Student{}, &ValidationError{Message: "no profile fields to update"}
	}
	current, err := r.Student(ctx, id)
	if err != nil {
		return Student{}, err
	}
	fields, err := normalizeProfile(current, updates)
	if err != nil {
		return Student{}, err
	}

	n, err := r.students.Update(ctx, rowstore.Predicate{rowstore.ColID: id}, fields)
	if err != nil {
		return Student{}, err
	}
	if n == 0 {
		return Student{}, &IntegrityViolation{StudentID: id, Matched: 0, Reason: "profile update matched no rows"}
	}

	r.log.WithFields(logrus.Fields{
		"student_id": id,
		"fields":     rowstore.Predicate(fields).Fields(),
		"rows":       n,
	}).Info("profile updated")

	row := StudentToRow(current)
	row.Merge(fields)
	return StudentFromRow(row)
}

func normalizeProfile(current Student, updates map[string]any) (rowstore.Row, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := rowstore.Row{}
	var isFree *bool
	for _, k := range keys {
		v := updates[k]
		switch {
		case k == rowstore.ColUsername || k == rowstore.ColEmail || k == rowstore.ColMobile:
			s, err := asString(k, v)
			if err != nil {
				return nil, err
			}
			if k == rowstore.ColUsername && s == "" {
				return nil, &ValidationError{Field: k, Message: "must not be empty"}
			}
			fields[k] = s
		case k == rowstore.ColAadharNumber:
			s, err := asString(k, v)
			if err != nil {
				return nil, err
			}
			if err := ValidateAadhar(s); err != nil {
				return nil, err
			}
			fields[k] = s
		case k == rowstore.ColMonthlyFee:
			d, err := asDecimal(k, v)
			if err != nil {
				return nil, err
			}
			if d.IsNegative() {
				return nil, &ValidationError{Field: k, Message: "must not be negative"}
			}
			fields[k] = EncodeMoney(d)
		case k == rowstore.ColSubscriptionStart || k == rowstore.ColSubscriptionEnd:
			t, err := asDate(k, v)
			if err != nil {
				return nil, err
			}
			fields[k] = EncodeDate(t)
		case k == "is_free":
			b, err := asBool(k, v)
			if err != nil {
				return nil, err
			}
			isFree = &b
		case ledgerScoped[k]:
			return nil, &ValidationError{Field: k, Message: "is a ledger field and cannot be changed through a profile update"}
		default:
			return nil, &ValidationError{Field: k, Message: "is not a profile field"}
		}
	}

	fee := current.MonthlyFee
	feeSet := false
	if v, ok := fields[rowstore.ColMonthlyFee]; ok {
		fee, _ = DecodeMoney(v)
		feeSet = true
	}
	if isFree != nil {
		switch {
		case *isFree && feeSet && fee.IsPositive():
			return nil, &ValidationError{Field: "is_free", Message: "contradicts a positive monthly_fee"}
		case *isFree:
			fields[rowstore.ColMonthlyFee] = EncodeMoney(decimal.Zero)
		case fee.IsZero():
			return nil, &ValidationError{Field: rowstore.ColMonthlyFee, Message: "must be positive when is_free is false"}
		}
	}

	start, end := current.SubscriptionStart, current.SubscriptionEnd
	if v, ok := fields[rowstore.ColSubscriptionStart]; ok {
		start, _ = DecodeDate(v)
	}
	if v, ok := fields[rowstore.ColSubscriptionEnd]; ok {
		end, _ = DecodeDate(v)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, &ValidationError{Field: rowstore.ColSubscriptionEnd, Message: "must not be before subscription_start"}
	}

	if len(fields) == 0 {
		return nil, &ValidationError{Message: "no profile fields to update"}
	}
	return fields, nil
}

// =============================================================================
// DELETE
// =============================================================================

// DeleteStudent removes the profile and every ledger row of the student.
func (r *Reconciler) DeleteStudent(ctx context.Context, id string) (DeleteResult, error) {
	if strings.TrimSpace(id) == "" {
		return DeleteResult{}, &ValidationError{Field: rowstore.ColID, Message: "is required"}
	}
	profiles, ledgerRows, err := r.countRows(ctx, id)
	if err != nil {
		return DeleteResult{}, err
	}
	if profiles+ledgerRows == 0 {
		return DeleteResult{}, &NotFoundError{Kind: "student", ID: id}
	}

	var stepErr error
	if r.layout == LayoutFlat {
		_, stepErr = r.students.Delete(ctx, rowstore.Predicate{rowstore.ColID: id})
	} else {
		// Ledger first so a failure leaves the student visible for a retry.
		_, stepErr = r.payments.Delete(ctx, rowstore.Predicate{rowstore.ColStudentID: id})
		if stepErr == nil {
			_, stepErr = r.students.Delete(ctx, rowstore.Predicate{rowstore.ColID: id})
		}
	}

	leftProfiles, leftLedger, err := r.countRows(ctx, id)
	if err != nil {
		if stepErr != nil {
			return DeleteResult{}, stepErr
		}
		return DeleteResult{}, fmt.Errorf("verify delete of student %s: %w", id, err)
	}

	res := DeleteResult{
		ProfilesRemoved: profiles - leftProfiles,
		LedgerRemoved:   ledgerRows - leftLedger,
	}
	logger := r.log.WithFields(logrus.Fields{
		"student_id":       id,
		"profiles_removed": res.ProfilesRemoved,
		"ledger_removed":   res.LedgerRemoved,
	})

	if leftProfiles+leftLedger == 0 {
		if stepErr != nil {
			logger.WithError(stepErr).Warn("delete reported an error but no rows remain")
		}
		logger.Info("student deleted")
		return res, nil
	}
	if res.ProfilesRemoved+res.LedgerRemoved == 0 && stepErr != nil {
		return res, stepErr
	}

	logger.WithError(stepErr).Error("partial delete")
	return res, &PartialDeleteError{
		StudentID:         id,
		ProfilesRemaining: leftProfiles,
		LedgerRemaining:   leftLedger,
		Err:               stepErr,
	}
}

func (r *Reconciler) countRows(ctx context.Context, id string) (profiles, ledgerRows int, err error) {
	rows, err := r.students.Search(ctx, rowstore.Predicate{rowstore.ColID: id})
	if err != nil {
		return 0, 0, err
	}
	if r.layout == LayoutFlat {
		for _, row := range rows {
			if isLedgerRow(row) {
				ledgerRows++
			} else {
				profiles++
			}
		}
		return profiles, ledgerRows, nil
	}

	ledger, err := r.payments.Search(ctx, rowstore.Predicate{rowstore.ColStudentID: id})
	if err != nil {
		return 0, 0, err
	}
	return len(rows), len(ledger), nil
}

// =============================================================================
// VALUE COERCION (profile updates arrive as decoded JSON)
// =============================================================================

func asString(field string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(t), nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	}
	return "", &ValidationError{Field: field, Message: fmt.Sprintf("must be a string, got %T", v)}
}

func asDecimal(field string, v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero, &ValidationError{Field: field, Message: "must be a number"}
		}
		return d, nil
	case string:
		d, err := DecodeMoney(t)
		if err != nil {
			return decimal.Zero, &ValidationError{Field: field, Message: "must be a number"}
		}
		return d, nil
	}
	return decimal.Zero, &ValidationError{Field: field, Message: fmt.Sprintf("must be a number, got %T", v)}
}

func asBool(field string, v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(t)) {
		case encTrue, "1", "YES":
			return true, nil
		case encFalse, "0", "NO", "":
			return false, nil
		}
	}
	return false, &ValidationError{Field: field, Message: "must be a boolean"}
}

func asDate(field string, v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return dateOf(t), nil
	case string:
		d, err := DecodeDate(t)
		if err != nil {
			return time.Time{}, &ValidationError{Field: field, Message: "must be a date (YYYY-MM-DD)"}
		}
		return d, nil
	case nil:
		return time.Time{}, nil
	}
	return time.Time{}, &ValidationError{Field: field, Message: "must be a date (YYYY-MM-DD)"}
}

// dateOf truncates t to its calendar date in UTC. The zero time stays zero.
func dateOf(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
