package workbook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

// StudentCreator is the part of the Reconciler an import needs.
type StudentCreator interface {
	CreateStudent(ctx context.Context, in ledger.NewStudent) (ledger.Student, error)
}

// RowError reports one spreadsheet row that could not be registered.
type RowError struct {
	Row   int    `json:"row"` // 1-based, as shown in a spreadsheet program
	Error string `json:"error"`
}

// ImportReport summarises an import.
type ImportReport struct {
	Created []ledger.Student `json:"created"`
	Skipped int              `json:"skipped"`
	Errors  []RowError       `json:"errors"`
}

// headerAliases maps accepted header spellings to canonical fields.
var headerAliases = map[string]string{
	"id":                 "id",
	"desk":               "id",
	"desk_no":            "id",
	"username":           "username",
	"name":               "username",
	"student_name":       "username",
	"email":              "email",
	"mobile":             "mobile",
	"phone":              "mobile",
	"aadhar":             "aadhar_number",
	"aadhar_number":      "aadhar_number",
	"monthly_fee":        "monthly_fee",
	"fee":                "monthly_fee",
	"is_free":            "is_free",
	"subscription_start": "subscription_start",
	"start":              "subscription_start",
	"subscription_end":   "subscription_end",
	"end":                "subscription_end",
}

func canonicalHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return headerAliases[h]
}

// ImportStudents reads the first sheet (or one named Students) of r and
// registers one student per data row. Rows without a username are skipped.
// A failed row is reported and the import continues.
func ImportStudents(ctx context.Context, c StudentCreator, r io.Reader) (ImportReport, error) {
	report := ImportReport{Created: make([]ledger.Student, 0), Errors: make([]RowError, 0)}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return report, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if idx, _ := f.GetSheetIndex(StudentsSheet); idx >= 0 {
		sheet = StudentsSheet
	}
	if sheet == "" {
		return report, errors.New("excel file does not contain any sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return report, fmt.Errorf("failed to get rows from sheet %s: %w", sheet, err)
	}
	if len(rows) == 0 {
		return report, nil
	}

	columns := make(map[string]int)
	for i, h := range rows[0] {
		if name := canonicalHeader(h); name != "" {
			if _, seen := columns[name]; !seen {
				columns[name] = i
			}
		}
	}
	if _, ok := columns["username"]; !ok {
		return report, errors.New("header row has no username (or name) column")
	}

	for i, cells := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rowNum := i + 2
		get := func(field string) string {
			idx, ok := columns[field]
			if !ok || idx >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[idx])
		}
		if get("username") == "" {
			report.Skipped++
			continue
		}

		in, err := parseStudent(get)
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Error: err.Error()})
			continue
		}
		s, err := c.CreateStudent(ctx, in)
		if err != nil {
			report.Errors = append(report.Errors, RowError{Row: rowNum, Error: err.Error()})
			continue
		}
		report.Created = append(report.Created, s)
	}
	return report, nil
}

func parseStudent(get func(string) string) (ledger.NewStudent, error) {
	in := ledger.NewStudent{
		ID:           get("id"),
		Username:     get("username"),
		Email:        get("email"),
		Mobile:       get("mobile"),
		AadharNumber: get("aadhar_number"),
	}
	if v := get("is_free"); v != "" {
		free := ledger.DecodeBool(v) || strings.EqualFold(v, "yes")
		in.IsFree = &free
	}
	switch v := get("monthly_fee"); {
	case v != "":
		fee, err := decimal.NewFromString(strings.ReplaceAll(v, ",", ""))
		if err != nil {
			return in, fmt.Errorf("monthly_fee %q is not a number", v)
		}
		in.MonthlyFee = fee
	case in.IsFree == nil || !*in.IsFree:
		return in, errors.New("monthly_fee is empty and is_free is not set")
	}
	var err error
	if in.SubscriptionStart, err = parseCellDate(get("subscription_start")); err != nil {
		return in, fmt.Errorf("subscription_start: %w", err)
	}
	if in.SubscriptionEnd, err = parseCellDate(get("subscription_end")); err != nil {
		return in, fmt.Errorf("subscription_end: %w", err)
	}
	return in, nil
}

// parseCellDate accepts ISO dates and the d/m/yyyy form Indian locales
// display.
func parseCellDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := ledger.DecodeDate(v); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2/1/2006", "02-01-2006", "01-02-06"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", v)
}
