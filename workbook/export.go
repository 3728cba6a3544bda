/*
Package workbook moves whole ledgers in and out of .xlsx files.

PURPOSE:
  Export writes a Students sheet and a Payments sheet for the admin to keep
  or hand to an accountant. Import registers students from a roster sheet
  through the Reconciler, so every invariant of CreateStudent applies.

SEE ALSO:
  - store/xlsx: A workbook used as a live row store (different concern)
  - backup/:    Uploads the export to S3
*/
package workbook

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

const (
	StudentsSheet = "Students"
	PaymentsSheet = "Payments"
)

// ContentType is the MIME type of an exported workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var studentHeader = []any{
	"id", "username", "email", "mobile", "aadhar_number", "monthly_fee",
	"is_free", "subscription_start", "subscription_end", "current_month_paid",
}

var paymentHeader = []any{
	"id", "student_id", "month", "year", "amount", "status", "payment_date",
}

// Export builds a workbook of both sheets. Month is written 1-based in a
// "period" column next to the stored 0-based month for readability.
func Export(students []ledger.Student, payments []ledger.Payment) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", StudentsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name students sheet: %w", err)
	}
	if _, err := f.NewSheet(PaymentsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create payments sheet: %w", err)
	}

	if err := writeRow(f, StudentsSheet, 1, studentHeader); err != nil {
		f.Close()
		return nil, err
	}
	for i, s := range students {
		row := []any{
			s.ID, s.Username, s.Email, s.Mobile, s.AadharNumber,
			s.MonthlyFee.InexactFloat64(),
			ledger.EncodeBool(s.IsFree()),
			ledger.EncodeDate(s.SubscriptionStart),
			ledger.EncodeDate(s.SubscriptionEnd),
			ledger.EncodeBool(s.CurrentMonthPaid),
		}
		if err := writeRow(f, StudentsSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	header := append(append([]any{}, paymentHeader...), "period")
	if err := writeRow(f, PaymentsSheet, 1, header); err != nil {
		f.Close()
		return nil, err
	}
	for i, p := range payments {
		row := []any{
			p.ID, p.StudentID, p.Month, p.Year,
			p.Amount.InexactFloat64(),
			string(p.Status),
			ledger.EncodeTimestamp(p.PaymentDate),
			fmt.Sprintf("%04d-%02d", p.Year, p.Month+1),
		}
		if err := writeRow(f, PaymentsSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}

	_ = f.SetColWidth(StudentsSheet, "A", "J", 16)
	_ = f.SetColWidth(PaymentsSheet, "A", "H", 14)
	return f, nil
}

// ExportBytes renders Export to an in-memory .xlsx.
func ExportBytes(students []ledger.Student, payments []ledger.Payment) ([]byte, error) {
	f, err := Export(students, payments)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, n, err)
	}
	return nil
}
