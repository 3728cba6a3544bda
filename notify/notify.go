/*
Package notify sends SMS reminders to students.

PURPOSE:
  The dashboard hands a student and a message to a Notifier and reports the
  Result as a toast. Delivery failures are results, never panics or retries.

PROVIDERS:
  Fast2SMS: Indian bulk SMS gateway, "q" (quick) route. Free tier allows
            50 messages per day.
  Disabled: Used when no API key is configured. Every send reports
            "sms provider not configured".

SEE ALSO:
  - messages.go: Reminder texts and the expiry sweep
  - api/handlers.go: /api/students/{id}/remind, /api/reminders/run
*/
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Fast2SMSEndpoint is the bulk send API.
const Fast2SMSEndpoint = "https://www.fast2sms.com/dev/bulkV2"

// FreeTierDailyLimit is the Fast2SMS free-tier cap.
const FreeTierDailyLimit = 50

var ErrNotConfigured = errors.New("sms provider not configured")

// Result is the outcome of one send.
type Result struct {
	Success bool            `json:"success"`
	Mobile  string          `json:"mobile,omitempty"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Notifier delivers one message to one mobile number.
type Notifier interface {
	Send(ctx context.Context, mobile, message string) Result
}

// New returns a Fast2SMS notifier, or a disabled one when apiKey is empty.
func New(apiKey string, logger logrus.FieldLogger) Notifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if apiKey == "" {
		return Disabled{Logger: logger}
	}
	return NewFast2SMS(apiKey, logger)
}

var nonDigits = regexp.MustCompile(`\D`)

// CleanMobile strips everything but digits and keeps the last ten
// ("+91 98765-43210" -> "9876543210").
func CleanMobile(mobile string) string {
	digits := nonDigits.ReplaceAllString(mobile, "")
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return digits
}

// =============================================================================
// DISABLED
// =============================================================================

// Disabled reports every send as not configured.
type Disabled struct {
	Logger logrus.FieldLogger
}

func (d Disabled) Send(_ context.Context, mobile, _ string) Result {
	if d.Logger != nil {
		d.Logger.WithField("mobile", CleanMobile(mobile)).Warn("sms not sent: provider not configured")
	}
	return Result{Success: false, Mobile: CleanMobile(mobile), Error: ErrNotConfigured.Error()}
}

// =============================================================================
// FAST2SMS
// =============================================================================

// Fast2SMS sends through the Fast2SMS bulk API.
type Fast2SMS struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
}

// NewFast2SMS creates a client for the public endpoint.
func NewFast2SMS(apiKey string, logger logrus.FieldLogger) *Fast2SMS {
	return &Fast2SMS{
		APIKey:     apiKey,
		Endpoint:   Fast2SMSEndpoint,
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		Logger:     logger,
	}
}

type fast2smsRequest struct {
	Route    string `json:"route"`
	Message  string `json:"message"`
	Language string `json:"language"`
	Flash    int    `json:"flash"`
	Numbers  string `json:"numbers"`
}

type fast2smsResponse struct {
	Return  bool            `json:"return"`
	Message json.RawMessage `json:"message"`
}

// Send posts one message.
func (f *Fast2SMS) Send(ctx context.Context, mobile, message string) Result {
	clean := CleanMobile(mobile)
	if clean == "" || strings.TrimSpace(message) == "" {
		return Result{Success: false, Mobile: clean, Error: "mobile number and message are required"}
	}

	body, err := json.Marshal(fast2smsRequest{
		Route:    "q",
		Message:  message,
		Language: "english",
		Flash:    0,
		Numbers:  clean,
	})
	if err != nil {
		return f.fail(clean, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, bytes.NewReader(body))
	if err != nil {
		return f.fail(clean, err)
	}
	req.Header.Set("authorization", f.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return f.fail(clean, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return f.fail(clean, err)
	}

	var parsed fast2smsResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= 300 || decodeErr != nil || !parsed.Return {
		msg := providerMessage(parsed.Message)
		if msg == "" {
			msg = fmt.Sprintf("fast2sms returned %s", resp.Status)
		}
		return f.fail(clean, errors.New(msg))
	}

	if f.Logger != nil {
		f.Logger.WithField("mobile", clean).Info("sms sent")
	}
	return Result{Success: true, Mobile: clean, Data: raw}
}

func (f *Fast2SMS) fail(mobile string, err error) Result {
	if f.Logger != nil {
		f.Logger.WithError(err).WithField("mobile", mobile).Error("sms send failed")
	}
	return Result{Success: false, Mobile: mobile, Error: err.Error()}
}

// providerMessage reads Fast2SMS's "message", which is a string or a list.
func providerMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, "; ")
	}
	return ""
}
