/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the dashboard exchanges with the server.
  Domain types in ledger/ stay free of JSON and HTTP concerns.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ENVELOPE:
  Every response is wrapped:
    {"success": true,  "message": "...", "data": ...}
    {"success": false, "message": "...", "error": "...", "code": "..."}

VALIDATION:
  Request types carry go-playground/validator tags checked by decode() in
  handlers.go. The Reconciler re-checks its own invariants, so the tags
  only catch malformed input early.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`

	// Fields lists per-field validation failures.
	Fields map[string]string `json:"fields,omitempty"`
}

// =============================================================================
// STUDENTS
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID                string  `json:"id"`
	Username          string  `json:"username"`
	Email             string  `json:"email"`
	Mobile            string  `json:"mobile"`
	AadharNumber      string  `json:"aadhar_number"`
	MonthlyFee        float64 `json:"monthly_fee"`
	IsFree            bool    `json:"is_free"`
	SubscriptionStart string  `json:"subscription_start"`
	SubscriptionEnd   string  `json:"subscription_end"`
	CurrentMonthPaid  bool    `json:"current_month_paid"`
	DeskNumber        int     `json:"desk_number"`

	// Status is the ledger status for the requested month, when listed
	// against one.
	Status string `json:"status,omitempty"`
}

func toStudentDTO(s ledger.Student) StudentDTO {
	return StudentDTO{
		ID:                s.ID,
		Username:          s.Username,
		Email:             s.Email,
		Mobile:            s.Mobile,
		AadharNumber:      s.AadharNumber,
		MonthlyFee:        s.MonthlyFee.InexactFloat64(),
		IsFree:            s.IsFree(),
		SubscriptionStart: ledger.EncodeDate(s.SubscriptionStart),
		SubscriptionEnd:   ledger.EncodeDate(s.SubscriptionEnd),
		CurrentMonthPaid:  s.CurrentMonthPaid,
		DeskNumber:        ledger.DeskNumber(s.ID),
	}
}

// StudentDetailDTO is a student with their payment history.
type StudentDetailDTO struct {
	StudentDTO
	Payments []PaymentDTO `json:"payments"`
}

// CreateStudentRequest is the request to register a student.
type CreateStudentRequest struct {
	ID                string           `json:"id" validate:"omitempty,max=64"`
	Username          string           `json:"username" validate:"required,max=120"`
	Email             string           `json:"email" validate:"omitempty,email"`
	Mobile            string           `json:"mobile" validate:"omitempty,min=10,max=16"`
	AadharNumber      string           `json:"aadhar_number" validate:"omitempty,numeric,len=12"`
	MonthlyFee        *decimal.Decimal `json:"monthly_fee" validate:"required_without=IsFree"`
	IsFree            *bool            `json:"is_free"`
	SubscriptionStart string           `json:"subscription_start" validate:"omitempty,datetime=2006-01-02"`
	SubscriptionEnd   string           `json:"subscription_end" validate:"omitempty,datetime=2006-01-02"`
}

func (req CreateStudentRequest) toNewStudent() ledger.NewStudent {
	in := ledger.NewStudent{
		ID:           req.ID,
		Username:     req.Username,
		Email:        req.Email,
		Mobile:       req.Mobile,
		AadharNumber: req.AadharNumber,
		IsFree:       req.IsFree,
	}
	// A missing fee only passes validation alongside is_free.
	if req.MonthlyFee != nil {
		in.MonthlyFee = *req.MonthlyFee
	}
	// Formats were checked by the validator.
	in.SubscriptionStart, _ = ledger.DecodeDate(req.SubscriptionStart)
	in.SubscriptionEnd, _ = ledger.DecodeDate(req.SubscriptionEnd)
	return in
}

// =============================================================================
// PAYMENTS
// =============================================================================

// PaymentDTO represents one ledger row.
type PaymentDTO struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	Month       int     `json:"month"`
	Year        int     `json:"year"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	PaymentDate string  `json:"payment_date,omitempty"`
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:        p.ID,
		StudentID: p.StudentID,
		Month:     p.Month,
		Year:      p.Year,
		Amount:    p.Amount.InexactFloat64(),
		Status:    string(p.Status),
	}
	if !p.PaymentDate.IsZero() {
		dto.PaymentDate = p.PaymentDate.Format(time.RFC3339)
	}
	return dto
}

func toPaymentDTOs(payments []ledger.Payment) []PaymentDTO {
	out := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		out[i] = toPaymentDTO(p)
	}
	return out
}

// RecordPaymentRequest sets the status of one month. Amount defaults to the
// student's monthly fee.
type RecordPaymentRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	Month     *int             `json:"month" validate:"required,min=0,max=11"`
	Year      int              `json:"year" validate:"required,min=1,max=9999"`
	Amount    *decimal.Decimal `json:"amount"`
	Paid      bool             `json:"paid"`
}

// RecordPaymentDTO is the outcome of RecordPayment.
type RecordPaymentDTO struct {
	Payment PaymentDTO `json:"payment"`
	Action  string     `json:"action"`
}

// DeleteStudentDTO reports what a cascading delete removed.
type DeleteStudentDTO struct {
	StudentID       string `json:"student_id"`
	ProfilesRemoved int    `json:"profiles_removed"`
	LedgerRemoved   int    `json:"ledger_removed"`
}

// =============================================================================
// DASHBOARD
// =============================================================================

// SummaryDTO is the month summary card.
type SummaryDTO struct {
	Month          int     `json:"month"`
	Year           int     `json:"year"`
	Collected      float64 `json:"collected"`
	Pending        float64 `json:"pending"`
	ActiveStudents int     `json:"active_students"`
	FreeStudents   int     `json:"free_students"`
	PaidStudents   int     `json:"paid_students"`
	UnpaidStudents int     `json:"unpaid_students"`
}

func toSummaryDTO(s ledger.Summary) SummaryDTO {
	return SummaryDTO{
		Month:          s.Month,
		Year:           s.Year,
		Collected:      s.Collected.InexactFloat64(),
		Pending:        s.Pending.InexactFloat64(),
		ActiveStudents: s.ActiveStudents,
		FreeStudents:   s.FreeStudents,
		PaidStudents:   s.PaidStudents,
		UnpaidStudents: s.UnpaidStudents,
	}
}

// TrendPointDTO is one bar of the collection chart.
type TrendPointDTO struct {
	Label     string  `json:"label"`
	Month     int     `json:"month"`
	Year      int     `json:"year"`
	Collected float64 `json:"collected"`
	Pending   float64 `json:"pending"`
}

// =============================================================================
// REMINDERS
// =============================================================================

// Reminder kinds.
const (
	ReminderPayment = "payment"
	ReminderExpiry  = "expiry"
	ReminderCustom  = "custom"
)

// RemindRequest sends one SMS to a student. Kind defaults to payment.
type RemindRequest struct {
	Kind    string `json:"kind" validate:"omitempty,oneof=payment expiry custom"`
	Message string `json:"message" validate:"required_if=Kind custom,max=480"`
}

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest is the admin login form.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SessionDTO describes the current admin session.
type SessionDTO struct {
	Token     string `json:"token,omitempty"`
	User      string `json:"user"`
	IssuedAt  string `json:"issued_at"`
	ExpiresAt string `json:"expires_at"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo roster.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Students    int    `json:"students"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
