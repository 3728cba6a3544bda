/*
Package xlsx implements rowstore.Adapter on a local .xlsx workbook.

PURPOSE:
  The closest local stand-in for the spreadsheet backend: one worksheet per
  sheet, a header row naming the columns, one data row per store row. The
  workbook can be opened in any spreadsheet program and edited by hand.

HEADER MAPPING:
  Columns are located by header text, not position, so a hand-edited sheet
  with reordered columns still reads correctly. Missing schema columns are
  appended to the header on open.

  Update writes only the cells it changes. Columns outside the schema (notes
  kept by hand) are never rewritten.

PERSISTENCE:
  Every write saves the workbook to disk. An empty path keeps the workbook
  in memory (tests).

SEE ALSO:
  - rowstore/rowstore.go: Adapter contract
  - workbook/: Export/import of whole ledgers
*/
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// Workbook owns the excelize file. Sheets are views onto it.
type Workbook struct {
	mu   sync.RWMutex
	path string
	file *excelize.File
}

// Open loads the workbook at path, or creates an empty one when the file
// does not exist. An empty path creates an in-memory workbook.
func Open(path string) (*Workbook, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			f, err := excelize.OpenFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
			}
			return &Workbook{path: path, file: f}, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat workbook %s: %w", path, err)
		}
	}
	return &Workbook{path: path, file: excelize.NewFile()}, nil
}

// Close releases the workbook.
func (w *Workbook) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Sheet returns an adapter bound to the named worksheet, creating it with a
// canonical header when absent.
func (w *Workbook) Sheet(name string) (*Sheet, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx, err := w.file.GetSheetIndex(name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up sheet %s: %w", name, err)
	}
	if idx == -1 {
		if _, err := w.file.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		// A fresh workbook starts with an unused default sheet.
		if def := "Sheet1"; name != def {
			if i, _ := w.file.GetSheetIndex(def); i != -1 && w.isEmpty(def) {
				_ = w.file.DeleteSheet(def)
			}
		}
	}

	sh := &Sheet{wb: w, name: name}
	if err := sh.ensureHeader(); err != nil {
		return nil, err
	}
	if err := w.save(); err != nil {
		return nil, err
	}
	return sh, nil
}

func (w *Workbook) isEmpty(sheet string) bool {
	rows, err := w.file.GetRows(sheet)
	return err == nil && len(rows) == 0
}

// save writes the workbook to disk. Caller holds the write lock.
func (w *Workbook) save() error {
	if w.path == "" {
		return nil
	}
	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// =============================================================================
// SHEET (rowstore.Adapter interface)
// =============================================================================

// Sheet is a rowstore.Adapter over one worksheet.
type Sheet struct {
	wb     *Workbook
	name   string
	header []string
}

// ensureHeader reads the header row and appends missing schema columns.
// Caller holds the write lock.
func (s *Sheet) ensureHeader() error {
	rows, err := s.wb.file.GetRows(s.name)
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", s.name, err)
	}

	var header []string
	if len(rows) > 0 {
		for _, h := range rows[0] {
			header = append(header, strings.TrimSpace(h))
		}
	}
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	changed := false
	for _, c := range rowstore.Columns {
		if !present[c] {
			header = append(header, c)
			changed = true
		}
	}
	s.header = header

	if changed {
		return s.writeRow(1, header)
	}
	return nil
}

func (s *Sheet) writeRow(excelRow int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, excelRow)
	if err != nil {
		return err
	}
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return s.wb.file.SetSheetRow(s.name, cell, &out)
}

// record is a data row with its 1-based worksheet row number.
type record struct {
	excelRow int
	row      rowstore.Row
}

// records reads every data row. Caller holds a lock.
func (s *Sheet) records(op string) ([]record, error) {
	rows, err := s.wb.file.GetRows(s.name)
	if err != nil {
		return nil, rowstore.Wrap(op, fmt.Errorf("failed to read sheet %s: %w", s.name, err))
	}

	out := make([]record, 0, len(rows))
	for i, cells := range rows {
		if i == 0 {
			continue // header
		}
		row := make(rowstore.Row, len(rowstore.Columns))
		blank := true
		for j, h := range s.header {
			if !rowstore.IsColumn(h) {
				continue
			}
			v := ""
			if j < len(cells) {
				v = cells[j]
			}
			if v != "" {
				blank = false
			}
			row[h] = v
		}
		if blank {
			continue
		}
		out = append(out, record{excelRow: i + 1, row: row.Normalized()})
	}
	return out, nil
}

func (s *Sheet) values(row rowstore.Row) []string {
	out := make([]string, len(s.header))
	for i, h := range s.header {
		out[i] = row[h]
	}
	return out
}

// writeCells sets the columns named in fields on one row and leaves every
// other cell as it is. Caller holds the write lock.
func (s *Sheet) writeCells(excelRow int, fields rowstore.Row) error {
	for i, h := range s.header {
		v, ok := fields[h]
		if !ok {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(i+1, excelRow)
		if err != nil {
			return err
		}
		if err := s.wb.file.SetCellStr(s.name, cell, v); err != nil {
			return err
		}
	}
	return nil
}

// FetchAll returns every data row in sheet order.
func (s *Sheet) FetchAll(ctx context.Context) ([]rowstore.Row, error) {
	return s.Search(ctx, nil)
}

// Search returns matching rows in sheet order.
func (s *Sheet) Search(_ context.Context, p rowstore.Predicate) ([]rowstore.Row, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s.wb.mu.RLock()
	defer s.wb.mu.RUnlock()

	recs, err := s.records("search")
	if err != nil {
		return nil, err
	}
	out := make([]rowstore.Row, 0, len(recs))
	for _, r := range recs {
		if p.Matches(r.row) {
			out = append(out, r.row)
		}
	}
	return out, nil
}

// Insert appends a row below the last used row.
func (s *Sheet) Insert(_ context.Context, row rowstore.Row) error {
	if err := rowstore.RequireIdentity("insert", row); err != nil {
		return err
	}
	if err := rowstore.CheckFields("insert", row); err != nil {
		return err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	rows, err := s.wb.file.GetRows(s.name)
	if err != nil {
		return rowstore.Wrap("insert", err)
	}
	if err := s.writeRow(len(rows)+1, s.values(row)); err != nil {
		return rowstore.Wrap("insert", fmt.Errorf("failed to write row: %w", err))
	}
	return rowstore.Wrap("insert", s.wb.save())
}

// Update writes fields into every matching row.
func (s *Sheet) Update(_ context.Context, p rowstore.Predicate, fields rowstore.Row) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if err := rowstore.CheckFields("update", fields); err != nil {
		return 0, err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	recs, err := s.records("update")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range recs {
		if !p.Matches(r.row) {
			continue
		}
		if err := s.writeCells(r.excelRow, fields); err != nil {
			return n, rowstore.Wrap("update", fmt.Errorf("failed to write row %d: %w", r.excelRow, err))
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, rowstore.Wrap("update", s.wb.save())
}

// Delete removes every matching row. Rows below shift up.
func (s *Sheet) Delete(_ context.Context, p rowstore.Predicate) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	s.wb.mu.Lock()
	defer s.wb.mu.Unlock()

	recs, err := s.records("delete")
	if err != nil {
		return 0, err
	}
	n := 0
	// Bottom-up so earlier row numbers stay valid.
	for i := len(recs) - 1; i >= 0; i-- {
		if !p.Matches(recs[i].row) {
			continue
		}
		if err := s.wb.file.RemoveRow(s.name, recs[i].excelRow); err != nil {
			return n, rowstore.Wrap("delete", fmt.Errorf("failed to remove row %d: %w", recs[i].excelRow, err))
		}
		n++
	}
	if n == 0 {
		return 0, nil
	}
	return n, rowstore.Wrap("delete", s.wb.save())
}
