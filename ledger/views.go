package ledger

import (
	"context"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// =============================================================================
// VIEW BUILDER - Read side, derived from FetchAll
// =============================================================================

// ListStudents returns one Student per id, keeping the first row seen in
// store order. Rows that fail to decode are logged and skipped.
// CurrentMonthPaid is read from the ledger row of the clock's month, not from
// the stored profile flag.
func (r *Reconciler) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.students.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	students := r.dedupeStudents(rows)

	ledgerRows := rows
	if r.layout == LayoutSplit {
		if ledgerRows, err = r.payments.FetchAll(ctx); err != nil {
			return nil, err
		}
	}
	payments := r.paymentsFromRows(ledgerRows)
	for i := range students {
		students[i].CurrentMonthPaid = r.CurrentMonthPaid(students[i], payments)
	}
	return students, nil
}

// CurrentMonthPaid reports whether the student's row for the clock's month
// is settled in payments.
func (r *Reconciler) CurrentMonthPaid(s Student, payments []Payment) bool {
	k := KeyForTime(s.ID, r.now())
	return StatusForMonth(s, k.Month, k.Year, payments).IsSettled()
}

func (r *Reconciler) dedupeStudents(rows []rowstore.Row) []Student {
	seen := make(map[string]bool, len(rows))
	out := make([]Student, 0)
	for _, row := range rows {
		id := row.Get(rowstore.ColID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		s, err := StudentFromRow(row)
		if err != nil {
			r.log.WithError(err).WithField("student_id", id).Warn("skipping malformed student row")
			continue
		}
		out = append(out, s)
	}
	return out
}

// ListPayments returns every row carrying both month and year, projected to
// a Payment.
func (r *Reconciler) ListPayments(ctx context.Context) ([]Payment, error) {
	rows, err := r.payments.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return r.paymentsFromRows(rows), nil
}

func (r *Reconciler) paymentsFromRows(rows []rowstore.Row) []Payment {
	field := studentField(r.layout)
	out := make([]Payment, 0)
	for _, row := range rows {
		if !isLedgerRow(row) {
			continue
		}
		p, err := PaymentFromRow(row, field)
		if err != nil {
			r.log.WithError(err).WithField("row_id", row.Get(rowstore.ColID)).Warn("skipping malformed ledger row")
			continue
		}
		out = append(out, p)
	}
	return out
}

// StatusForMonth derives a student's status from an already fetched payment
// list. It never touches the store.
func StatusForMonth(s Student, month, year int, payments []Payment) Status {
	if s.IsFree() {
		return StatusFree
	}
	for _, p := range payments {
		if p.StudentID == s.ID && p.Month == month && p.Year == year {
			if p.Status == StatusPaid {
				return StatusPaid
			}
			return StatusUnpaid
		}
	}
	return StatusUnpaid
}
