/*
Package sqlite provides a SQLite-backed implementation of rowstore.Adapter.

PURPOSE:
  Persists spreadsheet-shaped sheets in a single SQLite table. Every schema
  column is a TEXT column; the store keeps no native types, exactly like the
  spreadsheet backends it stands in for.

KEY TABLES:
  sheet_rows: One row per sheet row. seq preserves insertion order,
              sheet names the logical sheet ("Student", "Payments").

INDEXES:
  - idx_sheet_rows_sheet_id:    Student lookups (profile + ledger rows)
  - idx_sheet_rows_sheet_key:   Composite ledger key lookups
  - idx_sheet_rows_sheet_rowkey: Derived-key lookups

NO UNIQUE CONSTRAINTS:
  The (id, month, year) uniqueness invariant is owned by the reconciler, not
  by this table. All backends share the same consistency model.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, like the other local backends.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  students := store.Sheet("Student")

SEE ALSO:
  - rowstore/rowstore.go: Adapter contract
  - rowstore/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Store owns the database connection. Sheets are views onto it.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A :memory: database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	cols := make([]string, 0, len(rowstore.Columns))
	for _, c := range rowstore.Columns {
		cols = append(cols, fmt.Sprintf("\t\t%s TEXT NOT NULL DEFAULT ''", c))
	}

	schema := `
	CREATE TABLE IF NOT EXISTS sheet_rows (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		sheet TEXT NOT NULL,
` + strings.Join(cols, ",\n") + `,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet_id
		ON sheet_rows(sheet, id);
	CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet_key
		ON sheet_rows(sheet, id, year, month);
	CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet_student
		ON sheet_rows(sheet, student_id, year, month);
	CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet_rowkey
		ON sheet_rows(sheet, row_key) WHERE row_key != '';
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset removes every row of every sheet. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM sheet_rows")
	return rowstore.Wrap("delete", err)
}

// Sheet returns an adapter bound to one sheet.
func (s *Store) Sheet(name string) *Sheet {
	return &Sheet{store: s, name: name}
}

// =============================================================================
// SHEET (rowstore.Adapter interface)
// =============================================================================

// Sheet is a rowstore.Adapter over the rows of one sheet.
type Sheet struct {
	store *Store
	name  string
}

var selectColumns = strings.Join(rowstore.Columns, ", ")

// FetchAll returns every row of the sheet in insertion order.
func (sh *Sheet) FetchAll(ctx context.Context) ([]rowstore.Row, error) {
	return sh.Search(ctx, nil)
}

// Search returns matching rows in insertion order.
func (sh *Sheet) Search(ctx context.Context, p rowstore.Predicate) ([]rowstore.Row, error) {
	op := "search"
	if len(p) == 0 {
		op = "fetch_all"
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	where, args := sh.where(p)
	query := "SELECT " + selectColumns + " FROM sheet_rows WHERE " + where + " ORDER BY seq ASC"

	sh.store.mu.RLock()
	defer sh.store.mu.RUnlock()

	rows, err := sh.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, rowstore.Wrap(op, fmt.Errorf("failed to query rows: %w", err))
	}
	defer rows.Close()

	out := make([]rowstore.Row, 0)
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, rowstore.Wrap(op, err)
		}
		out = append(out, row)
	}
	return out, rowstore.Wrap(op, rows.Err())
}

// Insert appends a row.
func (sh *Sheet) Insert(ctx context.Context, row rowstore.Row) error {
	if err := rowstore.RequireIdentity("insert", row); err != nil {
		return err
	}
	if err := rowstore.CheckFields("insert", row); err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(rowstore.Columns)+2), ", ")
	query := "INSERT INTO sheet_rows (sheet, " + selectColumns + ", created_at) VALUES (" + placeholders + ")"

	args := make([]any, 0, len(rowstore.Columns)+2)
	args = append(args, sh.name)
	for _, c := range rowstore.Columns {
		args = append(args, row[c])
	}
	args = append(args, time.Now().UTC().Format(time.RFC3339))

	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	if _, err := sh.store.db.ExecContext(ctx, query, args...); err != nil {
		return rowstore.Wrap("insert", fmt.Errorf("failed to insert row: %w", err))
	}
	return nil
}

// Update writes fields into every matching row.
func (sh *Sheet) Update(ctx context.Context, p rowstore.Predicate, fields rowstore.Row) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := rowstore.CheckFields("update", fields); err != nil {
		return 0, err
	}

	where, whereArgs := sh.where(p)
	if len(fields) == 0 {
		// Nothing to write; report how many rows would have matched.
		matched, err := sh.Search(ctx, p)
		return len(matched), err
	}

	sets := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+len(whereArgs))
	for _, k := range rowstore.Predicate(fields).Fields() {
		sets = append(sets, k+" = ?")
		args = append(args, fields[k])
	}
	args = append(args, whereArgs...)

	query := "UPDATE sheet_rows SET " + strings.Join(sets, ", ") + " WHERE " + where

	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	res, err := sh.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, rowstore.Wrap("update", fmt.Errorf("failed to update rows: %w", err))
	}
	n, err := res.RowsAffected()
	return int(n), rowstore.Wrap("update", err)
}

// Delete removes every matching row.
func (sh *Sheet) Delete(ctx context.Context, p rowstore.Predicate) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	where, args := sh.where(p)

	sh.store.mu.Lock()
	defer sh.store.mu.Unlock()

	res, err := sh.store.db.ExecContext(ctx, "DELETE FROM sheet_rows WHERE "+where, args...)
	if err != nil {
		return 0, rowstore.Wrap("delete", fmt.Errorf("failed to delete rows: %w", err))
	}
	n, err := res.RowsAffected()
	return int(n), rowstore.Wrap("delete", err)
}

// where builds the WHERE clause. Column names come from the validated
// predicate, values are always bound.
func (sh *Sheet) where(p rowstore.Predicate) (string, []any) {
	clauses := []string{"sheet = ?"}
	args := []any{sh.name}
	for _, k := range p.Fields() {
		clauses = append(clauses, k+" = ?")
		args = append(args, p[k])
	}
	return strings.Join(clauses, " AND "), args
}

func scanRow(rows *sql.Rows) (rowstore.Row, error) {
	values := make([]string, len(rowstore.Columns))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	row := make(rowstore.Row, len(values))
	for i, c := range rowstore.Columns {
		row[c] = values[i]
	}
	return row, nil
}
