package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// =============================================================================
// IDENTITY SCHEME - (student, month, year) -> row match
// =============================================================================

// IdentityScheme maps a Key to the predicate that finds its ledger row and
// stamps the identity columns onto a new row. A Reconciler uses one scheme
// for insert, search and update alike.
type IdentityScheme interface {
	Name() string

	// Match returns the predicate selecting the ledger row for k.
	Match(k Key) rowstore.Predicate

	// Stamp writes k's identity columns into row.
	Stamp(k Key, row rowstore.Row)
}

const (
	SchemeComposite = "composite"
	SchemeDerived   = "derived"
)

// NewScheme returns the named scheme bound to the layout's student column.
func NewScheme(name string, layout Layout) (IdentityScheme, error) {
	field := studentField(layout)
	switch name {
	case "", SchemeComposite:
		return CompositeScheme{StudentField: field}, nil
	case SchemeDerived:
		return DerivedKeyScheme{StudentField: field}, nil
	}
	return nil, fmt.Errorf("unknown identity scheme %q (want composite or derived)", name)
}

func studentField(layout Layout) string {
	if layout == LayoutSplit {
		return rowstore.ColStudentID
	}
	return rowstore.ColID
}

// stampPlain writes the plain key fields. In the split layout the row's own
// id is the derived key.
func stampPlain(field string, k Key, row rowstore.Row) {
	row[field] = k.StudentID
	row[rowstore.ColMonth] = EncodeInt(k.Month)
	row[rowstore.ColYear] = EncodeInt(k.Year)
	if field != rowstore.ColID {
		row[rowstore.ColID] = FormatKey(k)
	}
}

// CompositeScheme matches the three key fields independently.
type CompositeScheme struct {
	StudentField string
}

func (CompositeScheme) Name() string { return SchemeComposite }

func (s CompositeScheme) Match(k Key) rowstore.Predicate {
	return rowstore.Predicate{
		s.StudentField:    k.StudentID,
		rowstore.ColMonth: EncodeInt(k.Month),
		rowstore.ColYear:  EncodeInt(k.Year),
	}
}

func (s CompositeScheme) Stamp(k Key, row rowstore.Row) {
	stampPlain(s.StudentField, k, row)
}

// DerivedKeyScheme matches a single row_key column. The plain fields are
// still written so views can read them.
type DerivedKeyScheme struct {
	StudentField string
}

func (DerivedKeyScheme) Name() string { return SchemeDerived }

func (DerivedKeyScheme) Match(k Key) rowstore.Predicate {
	return rowstore.Predicate{rowstore.ColRowKey: FormatKey(k)}
}

func (s DerivedKeyScheme) Stamp(k Key, row rowstore.Row) {
	stampPlain(s.StudentField, k, row)
	row[rowstore.ColRowKey] = FormatKey(k)
}

// =============================================================================
// DERIVED KEY
// =============================================================================

// FormatKey returns "<student>#<yyyy>-<mm>" with a 1-based month.
func FormatKey(k Key) string {
	return fmt.Sprintf("%s#%04d-%02d", k.StudentID, k.Year, k.Month+1)
}

// ParseKey inverts FormatKey. Student ids may themselves contain '#'; the
// last one separates the period.
func ParseKey(s string) (Key, error) {
	i := strings.LastIndex(s, "#")
	if i <= 0 {
		return Key{}, fmt.Errorf("invalid ledger key %q", s)
	}
	period := s[i+1:]
	parts := strings.Split(period, "-")
	if len(parts) != 2 {
		return Key{}, fmt.Errorf("invalid ledger key %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("invalid ledger key %q: year", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return Key{}, fmt.Errorf("invalid ledger key %q: month", s)
	}
	k := Key{StudentID: s[:i], Month: mm - 1, Year: year}
	if err := k.Validate(); err != nil {
		return Key{}, fmt.Errorf("invalid ledger key %q: %w", s, err)
	}
	return k, nil
}
