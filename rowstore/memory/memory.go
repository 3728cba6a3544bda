// Package memory provides an in-memory rowstore.Adapter.
package memory

import (
	"context"
	"sync"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// =============================================================================
// MEMORY SHEET - In-memory implementation (for testing/dev)
// =============================================================================

// Sheet holds rows in insertion order. Rows are copied on the way in and out
// so callers never alias stored state.
type Sheet struct {
	mu   sync.RWMutex
	name string
	rows []rowstore.Row

	// failNext holds injected failures keyed by operation.
	failNext map[string]error
}

// New creates an empty sheet.
func New(name string) *Sheet {
	return &Sheet{name: name, failNext: make(map[string]error)}
}

// Name returns the sheet name.
func (s *Sheet) Name() string { return s.name }

// FailNext makes the next call of op ("insert", "update", "delete",
// "search", "fetch_all") fail with err. A nil err clears a pending failure.
func (s *Sheet) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failNext, op)
		return
	}
	s.failNext[op] = err
}

func (s *Sheet) takeFailure(op string) error {
	if err, ok := s.failNext[op]; ok {
		delete(s.failNext, op)
		return &rowstore.StoreError{Op: op, Err: err}
	}
	return nil
}

// FetchAll returns a copy of every row.
func (s *Sheet) FetchAll(_ context.Context) ([]rowstore.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("fetch_all"); err != nil {
		return nil, err
	}
	out := make([]rowstore.Row, len(s.rows))
	for i, r := range s.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

// Search returns copies of matching rows.
func (s *Sheet) Search(_ context.Context, p rowstore.Predicate) ([]rowstore.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("search"); err != nil {
		return nil, err
	}
	out := make([]rowstore.Row, 0)
	for _, r := range s.rows {
		if p.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Insert appends a normalized copy of row.
func (s *Sheet) Insert(_ context.Context, row rowstore.Row) error {
	if err := rowstore.RequireIdentity("insert", row); err != nil {
		return err
	}
	if err := rowstore.CheckFields("insert", row); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("insert"); err != nil {
		return err
	}
	s.rows = append(s.rows, row.Normalized())
	return nil
}

// Update merges fields into every matching row.
func (s *Sheet) Update(_ context.Context, p rowstore.Predicate, fields rowstore.Row) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := rowstore.CheckFields("update", fields); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("update"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range s.rows {
		if p.Matches(r) {
			r.Merge(fields)
			n++
		}
	}
	return n, nil
}

// Delete removes every matching row, keeping the order of the rest.
func (s *Sheet) Delete(_ context.Context, p rowstore.Predicate) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure("delete"); err != nil {
		return 0, err
	}
	kept := s.rows[:0]
	n := 0
	for _, r := range s.rows {
		if p.Matches(r) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	clear(s.rows[len(kept):])
	s.rows = kept
	return n, nil
}

// Len returns the number of stored rows.
func (s *Sheet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}
