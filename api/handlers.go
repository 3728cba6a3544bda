/*
handlers.go - HTTP API handlers for the fee ledger dashboard

PURPOSE:
  Exposes the Reconciler and its read views via REST. Handles HTTP
  request/response, JSON serialization, and delegates to ledger/.

ENDPOINTS:
  Auth:
    POST   /api/auth/login              Admin login, returns a session token
    GET    /api/auth/session            Current session

  Students:
    GET    /api/students                List (?month=&year=&status=)
    POST   /api/students                Register
    GET    /api/students/{id}           Profile + payment history
    PATCH  /api/students/{id}           Edit profile (broadcast to all rows)
    DELETE /api/students/{id}           Cascading delete
    POST   /api/students/{id}/remind    Send one SMS

  Payments:
    GET    /api/payments                Ledger rows (?student_id=)
    POST   /api/payments                Record Paid/Unpaid for one month

  Dashboard:
    GET    /api/summary                 Month totals (?month=&year=)
    GET    /api/trend                   Collected per month (?months=6)

  Workbook:
    GET    /api/export                  Both sheets as .xlsx
    POST   /api/import/students         Register from an uploaded roster
    POST   /api/admin/backup            Upload the export to S3

  Reminders:
    POST   /api/reminders/run           Expiry sweep (Bearer CRON_SECRET)

ERROR HANDLING:
  Errors are classified, never string-matched:
  - 400: ledger.ValidationError, malformed JSON, failed validator tags
  - 401: missing/invalid/expired session, bad credentials
  - 404: ledger.NotFoundError
  - 409: ledger.IntegrityViolation
  - 500: ledger.PartialDeleteError (code "partial_delete"), anything else
  - 502: rowstore.StoreError

MONTHS:
  month is 0-based on the wire as in the store.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - rows.go: Raw row surface for remote adapters
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/backup"
	"github.com/dnyanpeeth/fee-ledger/ledger"
	"github.com/dnyanpeeth/fee-ledger/notify"
	"github.com/dnyanpeeth/fee-ledger/rowstore"
	"github.com/dnyanpeeth/fee-ledger/session"
	"github.com/dnyanpeeth/fee-ledger/workbook"
)

// maxUploadSize caps roster uploads.
const maxUploadSize = 10 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger      *ledger.Reconciler
	Notifier    notify.Notifier
	Sessions    *session.Issuer
	Credentials *session.Credentials // nil disables login
	Backups     *backup.Uploader     // nil when no bucket is configured
	CronSecret  string
	Log         logrus.FieldLogger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over rec. SMS is disabled until Notifier is
// set.
func NewHandler(rec *ledger.Reconciler, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Ledger:   rec,
		Notifier: notify.Disabled{Logger: logger},
		Log:      logger,
		validate: newValidator(),
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login checks the admin credentials and issues a session token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if h.Credentials == nil || h.Sessions == nil {
		writeFailure(w, http.StatusServiceUnavailable, "Login is not configured", "auth_disabled", nil)
		return
	}
	if err := h.Credentials.Verify(req.Email, req.Password); err != nil {
		h.Log.WithField("email", req.Email).Warn("failed admin login")
		writeFailure(w, http.StatusUnauthorized, "Invalid email or password", "invalid_credentials", nil)
		return
	}

	s := h.Sessions.Start(h.Credentials.Email())
	token, expires, err := h.Sessions.Issue(s)
	if err != nil {
		writeError(w, "Failed to start session", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Logged in", SessionDTO{
		Token:     token,
		User:      s.User,
		IssuedAt:  s.IssuedAt.Format(time.RFC3339),
		ExpiresAt: expires.Format(time.RFC3339),
	})
}

// GetSession returns the session carried by the request.
// GET /api/auth/session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Not logged in", "no_session", nil)
		return
	}
	writeSuccess(w, http.StatusOK, "", SessionDTO{
		User:      s.User,
		IssuedAt:  s.IssuedAt.Format(time.RFC3339),
		ExpiresAt: s.IssuedAt.Add(h.Sessions.MaxAge()).Format(time.RFC3339),
	})
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns students sorted by desk number, each with its status
// for the requested month.
// GET /api/students?month=&year=&status=
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	month, year, err := h.monthYear(r)
	if err != nil {
		writeError(w, "Invalid month", err)
		return
	}
	filter, err := ledger.ParseStatusFilter(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, "Invalid status filter", err)
		return
	}

	students, err := h.Ledger.ListStudents(ctx)
	if err != nil {
		writeError(w, "Failed to list students", err)
		return
	}
	payments, err := h.Ledger.ListPayments(ctx)
	if err != nil {
		writeError(w, "Failed to list payments", err)
		return
	}

	students = ledger.FilterByStatus(students, payments, month, year, filter)
	ledger.SortByDesk(students)

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = toStudentDTO(s)
		dtos[i].Status = string(ledger.StatusForMonth(s, month, year, payments))
	}
	writeSuccess(w, http.StatusOK, "", dtos)
}

// GetStudent returns one student with their payment history, newest first.
// GET /api/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	s, err := h.Ledger.Student(ctx, id)
	if err != nil {
		writeError(w, "Failed to get student", err)
		return
	}
	payments, err := h.Ledger.ListPayments(ctx)
	if err != nil {
		writeError(w, "Failed to list payments", err)
		return
	}
	s.CurrentMonthPaid = h.Ledger.CurrentMonthPaid(s, payments)

	writeSuccess(w, http.StatusOK, "", StudentDetailDTO{
		StudentDTO: toStudentDTO(s),
		Payments:   toPaymentDTOs(ledger.History(s.ID, payments)),
	})
}

// CreateStudent registers a student.
// POST /api/students
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Ledger.CreateStudent(r.Context(), req.toNewStudent())
	if err != nil {
		if s.ID != "" {
			// Registered, but the current month's ledger row is missing.
			h.Log.WithError(err).WithField("student_id", s.ID).Warn("student registered without ledger row")
			writeJSON(w, http.StatusCreated, Envelope{
				Success: true,
				Message: "Student registered; this month's ledger row could not be written",
				Data:    toStudentDTO(s),
				Error:   err.Error(),
			})
			return
		}
		writeError(w, "Failed to register student", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Student registered", toStudentDTO(s))
}

// UpdateStudent edits profile fields. The body is a partial object; only
// profile columns and is_free are accepted.
// PATCH /api/students/{id}
func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	var updates map[string]any
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body", "invalid_json", err)
		return
	}

	s, err := h.Ledger.UpdateProfile(r.Context(), chi.URLParam(r, "id"), updates)
	if err != nil {
		writeError(w, "Failed to update student", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Student updated", toStudentDTO(s))
}

// DeleteStudent removes the profile and every ledger row.
// DELETE /api/students/{id}
func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.Ledger.DeleteStudent(r.Context(), id)
	if err != nil {
		writeError(w, "Failed to delete student", err)
		return
	}
	writeSuccess(w, http.StatusOK, "Student deleted", DeleteStudentDTO{
		StudentID:       id,
		ProfilesRemoved: res.ProfilesRemoved,
		LedgerRemoved:   res.LedgerRemoved,
	})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// ListPayments returns ledger rows, optionally for one student.
// GET /api/payments?student_id=
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Ledger.ListPayments(r.Context())
	if err != nil {
		writeError(w, "Failed to list payments", err)
		return
	}
	if id := r.URL.Query().Get("student_id"); id != "" {
		payments = ledger.History(id, payments)
	}
	writeSuccess(w, http.StatusOK, "", toPaymentDTOs(payments))
}

// RecordPayment marks one month Paid or Unpaid. Free students are always
// recorded Free.
// POST /api/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}

	amount := req.Amount
	if amount == nil {
		s, err := h.Ledger.Student(ctx, req.StudentID)
		if err != nil {
			writeError(w, "Failed to record payment", err)
			return
		}
		amount = &s.MonthlyFee
	}

	res, err := h.Ledger.RecordPayment(ctx, req.StudentID, *req.Month, req.Year, *amount, req.Paid)
	if err != nil {
		writeError(w, "Failed to record payment", err)
		return
	}

	status := http.StatusOK
	if res.Action == ledger.ActionInserted {
		status = http.StatusCreated
	}
	writeSuccess(w, status, fmt.Sprintf("Marked %s", res.Payment.Status), RecordPaymentDTO{
		Payment: toPaymentDTO(res.Payment),
		Action:  string(res.Action),
	})
}

// =============================================================================
// DASHBOARD HANDLERS
// =============================================================================

// GetSummary returns the totals card for one month.
// GET /api/summary?month=&year=
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	month, year, err := h.monthYear(r)
	if err != nil {
		writeError(w, "Invalid month", err)
		return
	}
	students, payments, err := h.snapshot(ctx)
	if err != nil {
		writeError(w, "Failed to load ledger", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", toSummaryDTO(ledger.Summarize(students, payments, month, year)))
}

// GetTrend returns collected and pending totals for the last n months.
// GET /api/trend?months=6
func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	n := 6
	if v := r.URL.Query().Get("months"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 36 {
			writeError(w, "Invalid months", &ledger.ValidationError{Field: "months", Message: "must be between 1 and 36"})
			return
		}
		n = parsed
	}
	students, payments, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, "Failed to load ledger", err)
		return
	}

	points := ledger.Trend(students, payments, h.Ledger.Now(), n)
	dtos := make([]TrendPointDTO, len(points))
	for i, p := range points {
		dtos[i] = TrendPointDTO{
			Label:     p.Label,
			Month:     p.Month,
			Year:      p.Year,
			Collected: p.Collected.InexactFloat64(),
			Pending:   p.Pending.InexactFloat64(),
		}
	}
	writeSuccess(w, http.StatusOK, "", dtos)
}

// =============================================================================
// REMINDER HANDLERS
// =============================================================================

// RemindStudent sends one SMS.
// POST /api/students/{id}/remind
func (h *Handler) RemindStudent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RemindRequest
	if !h.decode(w, r, &req) {
		return
	}

	s, err := h.Ledger.Student(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "Failed to send reminder", err)
		return
	}
	if notify.CleanMobile(s.Mobile) == "" {
		writeError(w, "Failed to send reminder", &ledger.ValidationError{Field: "mobile", Message: "is not set for this student"})
		return
	}

	var message string
	switch req.Kind {
	case ReminderExpiry:
		message = notify.ExpiryReminder(s)
	case ReminderCustom:
		message = req.Message
	default:
		message = notify.PaymentReminder(s)
	}

	res := h.Notifier.Send(ctx, s.Mobile, message)
	if !res.Success {
		status := http.StatusBadGateway
		if res.Error == notify.ErrNotConfigured.Error() {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, Envelope{Success: false, Message: "SMS not sent", Error: res.Error, Code: "sms_failed", Data: res})
		return
	}
	writeSuccess(w, http.StatusOK, "SMS sent to "+res.Mobile, res)
}

// RunReminders performs the expiring-tomorrow sweep. Called by an external
// cron with the shared secret.
// POST /api/reminders/run
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	report, err := h.SweepExpiring(r.Context())
	if err != nil {
		writeError(w, "Failed to run reminders", err)
		return
	}
	msg := fmt.Sprintf("Sent %d of %d expiry reminders", report.Sent, report.Expiring)
	if !report.WithinLimit {
		msg += fmt.Sprintf("; more than the %d/day free tier", report.FreeTierLimit)
	}
	writeSuccess(w, http.StatusOK, msg, report)
}

// SweepExpiring sends expiry reminders to students whose subscription ends
// tomorrow. Shared by the endpoint and the in-process scheduler.
func (h *Handler) SweepExpiring(ctx context.Context) (notify.SweepReport, error) {
	students, err := h.Ledger.ListStudents(ctx)
	if err != nil {
		return notify.SweepReport{}, err
	}
	report := notify.SweepExpiring(ctx, h.Notifier, students, h.Ledger.Now())
	h.Log.WithFields(logrus.Fields{
		"checked":  report.Checked,
		"expiring": report.Expiring,
		"sent":     report.Sent,
	}).Info("expiry reminder sweep finished")
	return report, nil
}

// =============================================================================
// WORKBOOK HANDLERS
// =============================================================================

// Export streams both sheets as an .xlsx download.
// GET /api/export
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.exportBytes(r.Context())
	if err != nil {
		writeError(w, "Failed to export ledger", err)
		return
	}
	name := fmt.Sprintf("ledger-%s.xlsx", h.Ledger.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", workbook.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ImportStudents registers students from an uploaded roster (form field
// "file").
// POST /api/import/students
func (h *Handler) ImportStudents(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid upload", "invalid_upload", err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Missing file", "invalid_upload", err)
		return
	}
	defer file.Close()

	report, err := workbook.ImportStudents(r.Context(), h.Ledger, file)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Failed to import roster", "invalid_upload", err)
		return
	}

	dtos := make([]StudentDTO, len(report.Created))
	for i, s := range report.Created {
		dtos[i] = toStudentDTO(s)
	}
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Imported %d students", len(dtos)), map[string]any{
		"created": dtos,
		"skipped": report.Skipped,
		"errors":  report.Errors,
	})
}

// Backup uploads the current export to S3.
// POST /api/admin/backup
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	if h.Backups == nil {
		writeFailure(w, http.StatusServiceUnavailable, "Backups are not configured", "backup_disabled", backup.ErrNotConfigured)
		return
	}
	data, err := h.exportBytes(r.Context())
	if err != nil {
		writeError(w, "Failed to export ledger", err)
		return
	}
	res, err := h.Backups.Upload(r.Context(), data)
	if err != nil {
		writeFailure(w, http.StatusBadGateway, "Backup upload failed", "backup_failed", err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Backup stored", res)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) snapshot(ctx context.Context) ([]ledger.Student, []ledger.Payment, error) {
	students, err := h.Ledger.ListStudents(ctx)
	if err != nil {
		return nil, nil, err
	}
	payments, err := h.Ledger.ListPayments(ctx)
	if err != nil {
		return nil, nil, err
	}
	return students, payments, nil
}

func (h *Handler) exportBytes(ctx context.Context) ([]byte, error) {
	students, payments, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	ledger.SortByDesk(students)
	return workbook.ExportBytes(students, payments)
}

// monthYear reads ?month=&year=, defaulting to the current month.
func (h *Handler) monthYear(r *http.Request) (int, int, error) {
	k := ledger.KeyForTime("", h.Ledger.Now())
	month, year := k.Month, k.Year
	q := r.URL.Query()
	if v := q.Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 0 || m > 11 {
			return 0, 0, &ledger.ValidationError{Field: "month", Message: "must be 0..11"}
		}
		month = m
	}
	if v := q.Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return 0, 0, &ledger.ValidationError{Field: "year", Message: "must be 1..9999"}
		}
		year = y
	}
	return month, year, nil
}

// decode reads a JSON body into dst and runs its validator tags. It writes
// the 400 response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body", "invalid_json", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make(map[string]string, len(ve))
			for _, fe := range ve {
				fields[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, Envelope{
				Success: false,
				Message: "Validation failed",
				Error:   err.Error(),
				Code:    "validation_error",
				Fields:  fields,
			})
			return false
		}
		writeFailure(w, http.StatusBadRequest, "Invalid input", "validation_error", err)
		return false
	}
	return true
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message, code string, err error) {
	resp := Envelope{Success: false, Message: message, Code: code}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeError classifies err and writes the matching status.
func writeError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	writeFailure(w, status, message, code, err)
}

func classify(err error) (int, string) {
	switch {
	case ledger.IsClientError(err):
		return http.StatusBadRequest, "validation_error"
	case ledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case ledger.IsIntegrity(err):
		return http.StatusConflict, "integrity_violation"
	case ledger.IsPartialDelete(err):
		return http.StatusInternalServerError, "partial_delete"
	case rowstore.IsStoreError(err):
		return http.StatusBadGateway, "store_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}
