package ledger

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DASHBOARD SUMMARY - Pure functions over already fetched lists
// =============================================================================

// Summary aggregates one month of the ledger.
type Summary struct {
	Month          int
	Year           int
	Collected      decimal.Decimal // sum of Paid amounts recorded for the month
	Pending        decimal.Decimal // sum of fees of students not settled for the month
	ActiveStudents int
	FreeStudents   int
	PaidStudents   int
	UnpaidStudents int
}

// Summarize computes the dashboard figures for month/year.
func Summarize(students []Student, payments []Payment, month, year int) Summary {
	sum := Summary{
		Month:          month,
		Year:           year,
		Collected:      collected(payments, month, year),
		Pending:        decimal.Zero,
		ActiveStudents: len(students),
	}
	for _, s := range students {
		switch StatusForMonth(s, month, year, payments) {
		case StatusFree:
			sum.FreeStudents++
		case StatusPaid:
			sum.PaidStudents++
		default:
			sum.UnpaidStudents++
			sum.Pending = sum.Pending.Add(s.MonthlyFee)
		}
	}
	return sum
}

func collected(payments []Payment, month, year int) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if p.Month == month && p.Year == year && p.Status == StatusPaid {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// TrendPoint is one month of the collection chart.
type TrendPoint struct {
	Label     string // "Jan 2025"
	Month     int
	Year      int
	Collected decimal.Decimal
	Pending   decimal.Decimal
}

// Trend returns the last n months ending with now's month, oldest first.
func Trend(students []Student, payments []Payment, now time.Time, n int) []TrendPoint {
	if n <= 0 {
		return []TrendPoint{}
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	out := make([]TrendPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		d := first.AddDate(0, -i, 0)
		month, year := int(d.Month())-1, d.Year()
		s := Summarize(students, payments, month, year)
		out = append(out, TrendPoint{
			Label:     fmt.Sprintf("%s %d", d.Month().String()[:3], year),
			Month:     month,
			Year:      year,
			Collected: s.Collected,
			Pending:   s.Pending,
		})
	}
	return out
}

// =============================================================================
// FILTER / SORT
// =============================================================================

// StatusFilter selects students by their status for a month.
type StatusFilter string

const (
	FilterAll    StatusFilter = "all"
	FilterPaid   StatusFilter = "paid"
	FilterUnpaid StatusFilter = "unpaid"
	FilterFree   StatusFilter = "free"
)

// ParseStatusFilter accepts all|paid|unpaid|free. Empty means all.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "", FilterAll:
		return FilterAll, nil
	case FilterPaid, FilterUnpaid, FilterFree:
		return StatusFilter(s), nil
	}
	return "", &ValidationError{Field: "status", Message: "must be one of all, paid, unpaid, free"}
}

// FilterByStatus keeps the students whose status for month/year matches f.
func FilterByStatus(students []Student, payments []Payment, month, year int, f StatusFilter) []Student {
	out := make([]Student, 0, len(students))
	for _, s := range students {
		st := StatusForMonth(s, month, year, payments)
		keep := true
		switch f {
		case FilterPaid:
			keep = st == StatusPaid
		case FilterUnpaid:
			keep = st == StatusUnpaid
		case FilterFree:
			keep = st == StatusFree
		}
		if keep {
			out = append(out, s)
		}
	}
	return out
}

var nonDigits = regexp.MustCompile(`\D`)

// DeskNumber extracts the digits of an id ("D-012" -> 12). Ids without
// digits are desk 0.
func DeskNumber(id string) int {
	n, err := strconv.Atoi(nonDigits.ReplaceAllString(id, ""))
	if err != nil {
		return 0
	}
	return n
}

// SortByDesk orders students by desk number, then id.
func SortByDesk(students []Student) {
	sort.SliceStable(students, func(i, j int) bool {
		a, b := DeskNumber(students[i].ID), DeskNumber(students[j].ID)
		if a != b {
			return a < b
		}
		return students[i].ID < students[j].ID
	})
}

// History returns a student's payments, newest month first.
func History(studentID string, payments []Payment) []Payment {
	out := make([]Payment, 0)
	for _, p := range payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}
