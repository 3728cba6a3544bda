/*
Package rowstore defines the contract between the ledger and a flat row store.

PURPOSE:
  The backing store is spreadsheet-shaped: one or more sheets of string-typed
  rows, no joins, no transactions, no native types. This package fixes the
  minimal capability set every backend must offer so the reconciliation logic
  above it can stay backend-agnostic.

KEY TYPES:
  Row:       One raw row, column name -> string value
  Predicate: Field equality match (all fields must match)
  Adapter:   FetchAll / Search / Insert / Update / Delete

EMPTY RESULTS:
  FetchAll and Search return an empty slice, never an error, when nothing
  matches. Adapters whose transport reports "no results" as not-found must
  translate that at this boundary.

NO TRANSACTIONS:
  Operations are independent calls. Two callers racing on the same row can
  both observe "absent" and both insert. Callers must not assume atomicity
  across calls.

IMPLEMENTATIONS:
  - rowstore/memory:  In-memory (tests, dev)
  - store/sqlite:     SQLite table per deployment, sheet column per row
  - store/redisstore: Redis hashes + insertion-ordered index
  - store/xlsx:       Local .xlsx workbook
  - store/httprows:   Remote row service over HTTP

SEE ALSO:
  - errors.go: StoreError
  - ledger/reconciler.go: The consumer of this interface
*/
package rowstore

import (
	"context"
	"sort"
)

// =============================================================================
// SCHEMA
// =============================================================================

// Canonical column names.
const (
	ColID                = "id"
	ColUsername          = "username"
	ColEmail             = "email"
	ColMobile            = "mobile"
	ColAadharNumber      = "aadhar_number"
	ColMonthlyFee        = "monthly_fee"
	ColSubscriptionStart = "subscription_start"
	ColSubscriptionEnd   = "subscription_end"
	ColCurrentMonthPaid  = "current_month_paid"
	ColMonth             = "month"
	ColYear              = "year"
	ColAmount            = "amount"
	ColStatus            = "status"

	// Ledger support columns.
	ColPaymentDate = "payment_date"
	ColRowKey      = "row_key"
	ColStudentID   = "student_id"
)

// Columns is the full column set, in sheet order.
var Columns = []string{
	ColID, ColUsername, ColEmail, ColMobile, ColAadharNumber, ColMonthlyFee,
	ColSubscriptionStart, ColSubscriptionEnd, ColCurrentMonthPaid,
	ColMonth, ColYear, ColAmount, ColStatus,
	ColPaymentDate, ColRowKey, ColStudentID,
}

var columnSet = func() map[string]bool {
	m := make(map[string]bool, len(Columns))
	for _, c := range Columns {
		m[c] = true
	}
	return m
}()

// IsColumn reports whether name is part of the schema.
func IsColumn(name string) bool {
	return columnSet[name]
}

// =============================================================================
// ROW
// =============================================================================

// Row is one raw store row. Missing keys read as "".
type Row map[string]string

// Get returns the value of a column, "" if absent.
func (r Row) Get(col string) string {
	return r[col]
}

// Clone returns an independent copy.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge overwrites r's columns with the values in fields.
func (r Row) Merge(fields Row) {
	for k, v := range fields {
		r[k] = v
	}
}

// Normalized returns a copy that has every schema column (missing ones as "")
// and nothing else.
func (r Row) Normalized() Row {
	out := make(Row, len(Columns))
	for _, c := range Columns {
		out[c] = r[c]
	}
	return out
}

// =============================================================================
// PREDICATE
// =============================================================================

// Predicate matches rows whose fields equal every given value.
// An empty predicate matches every row.
type Predicate map[string]string

// Matches reports whether row satisfies p.
func (p Predicate) Matches(row Row) bool {
	for k, v := range p {
		if row[k] != v {
			return false
		}
	}
	return true
}

// Fields returns the predicate's field names in a stable order.
func (p Predicate) Fields() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that every field is a schema column.
func (p Predicate) Validate() error {
	for k := range p {
		if !IsColumn(k) {
			return &StoreError{Op: "match", Err: ErrUnknownColumn, Detail: k}
		}
	}
	return nil
}

// =============================================================================
// ADAPTER
// =============================================================================

// Adapter is the capability set a row store backend must provide.
// Each Adapter addresses exactly one sheet.
type Adapter interface {
	// FetchAll returns every row in store order (insertion order).
	FetchAll(ctx context.Context) ([]Row, error)

	// Search returns rows matching p in store order. Empty result is success.
	Search(ctx context.Context, p Predicate) ([]Row, error)

	// Insert appends a row. Fails with StoreError when the id column is empty.
	Insert(ctx context.Context, row Row) error

	// Update writes fields into every row matching p and returns how many rows
	// matched. Zero matches is not an error at this layer.
	Update(ctx context.Context, p Predicate, fields Row) (int, error)

	// Delete removes every row matching p and returns how many were removed.
	Delete(ctx context.Context, p Predicate) (int, error)
}

// Filter returns the rows that satisfy p, preserving order.
// Backends without secondary indexes implement Search with it.
func Filter(rows []Row, p Predicate) []Row {
	out := make([]Row, 0)
	for _, r := range rows {
		if p.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// RequireIdentity returns a StoreError when the row has no id.
func RequireIdentity(op string, row Row) error {
	if row[ColID] == "" {
		return &StoreError{Op: op, Err: ErrMissingIdentity, Detail: ColID}
	}
	return nil
}

// CheckFields rejects update payloads that name non-schema columns.
func CheckFields(op string, fields Row) error {
	for k := range fields {
		if !IsColumn(k) {
			return &StoreError{Op: op, Err: ErrUnknownColumn, Detail: k}
		}
	}
	return nil
}
