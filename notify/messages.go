package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

// LibraryName appears in every reminder.
const LibraryName = "DnyanPeeth"

// indianDate renders a date the way en-IN locales do (d/m/yyyy).
func indianDate(t time.Time) string {
	return t.Format("2/1/2006")
}

// PaymentReminder asks for this month's fee.
func PaymentReminder(s ledger.Student) string {
	return fmt.Sprintf("Hi %s, reminder to pay Rs.%s for %s library fees this month. Thank you!",
		s.Username, s.MonthlyFee.String(), LibraryName)
}

// ExpiryReminder announces the subscription end date.
func ExpiryReminder(s ledger.Student) string {
	return fmt.Sprintf("Hi %s, your %s library subscription expires on %s. Please renew to continue access. Contact admin for details.",
		s.Username, LibraryName, indianDate(s.SubscriptionEnd))
}

// ExpiresTomorrowReminder is the text of the daily sweep.
func ExpiresTomorrowReminder(s ledger.Student) string {
	return fmt.Sprintf("Hi %s, your %s library subscription expires tomorrow (%s). Please renew to continue access. Contact admin for details.",
		s.Username, LibraryName, indianDate(s.SubscriptionEnd))
}

// ExpiringOn returns the students whose subscription ends on day's date.
func ExpiringOn(students []ledger.Student, day time.Time) []ledger.Student {
	y, m, d := day.Date()
	out := make([]ledger.Student, 0)
	for _, s := range students {
		if s.SubscriptionEnd.IsZero() {
			continue
		}
		ey, em, ed := s.SubscriptionEnd.Date()
		if ey == y && em == m && ed == d {
			out = append(out, s)
		}
	}
	return out
}

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

// SweepResult is one student's outcome in a sweep.
type SweepResult struct {
	StudentID string `json:"student_id"`
	Student   string `json:"student"`
	Mobile    string `json:"mobile"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// SweepReport summarises a sweep.
type SweepReport struct {
	Checked       int           `json:"students_checked"`
	Expiring      int           `json:"expiring_tomorrow"`
	Sent          int           `json:"sms_sent"`
	FreeTierLimit int           `json:"free_tier_limit"`
	WithinLimit   bool          `json:"within_limit"`
	Results       []SweepResult `json:"results"`
}

// SweepExpiring sends the expires-tomorrow reminder to every student whose
// subscription ends the day after now.
func SweepExpiring(ctx context.Context, n Notifier, students []ledger.Student, now time.Time) SweepReport {
	expiring := ExpiringOn(students, now.AddDate(0, 0, 1))
	report := SweepReport{
		Checked:       len(students),
		Expiring:      len(expiring),
		FreeTierLimit: FreeTierDailyLimit,
		WithinLimit:   len(expiring) <= FreeTierDailyLimit,
		Results:       make([]SweepResult, 0, len(expiring)),
	}
	for _, s := range expiring {
		r := SweepResult{StudentID: s.ID, Student: s.Username, Mobile: CleanMobile(s.Mobile)}
		if r.Mobile == "" {
			r.Mobile = "N/A"
			r.Error = "no mobile number"
			report.Results = append(report.Results, r)
			continue
		}
		res := n.Send(ctx, s.Mobile, ExpiresTomorrowReminder(s))
		r.Sent = res.Success
		r.Error = res.Error
		if res.Success {
			report.Sent++
		}
		report.Results = append(report.Results, r)
	}
	return report
}
