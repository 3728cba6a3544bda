/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     logrus request line (method, path, status, duration, id)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/auth/login       Public
  /api/reminders/run    Bearer CRON_SECRET
  /api/*                Admin session (Bearer session token)
  /rows/*               Bearer ROWS_API_TOKEN, mounted only when set
  /health               Public liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - rows.go: Row surface
  - cmd/server/main.go: Server startup
*/
package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/session"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string

	// Rows, when set together with RowsToken, mounts the /rows surface.
	Rows      *RowsHandler
	RowsToken string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeSuccess(w, http.StatusOK, "ok", nil)
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.Login)

		// External cron
		r.With(requireBearer(h.CronSecret)).Post("/reminders/run", h.RunReminders)

		// Admin session
		r.Group(func(r chi.Router) {
			r.Use(requireSession(h.Sessions))

			r.Get("/auth/session", h.GetSession)

			r.Route("/students", func(r chi.Router) {
				r.Get("/", h.ListStudents)
				r.Post("/", h.CreateStudent)
				r.Get("/{id}", h.GetStudent)
				r.Patch("/{id}", h.UpdateStudent)
				r.Delete("/{id}", h.DeleteStudent)
				r.Post("/{id}/remind", h.RemindStudent)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Get("/", h.ListPayments)
				r.Post("/", h.RecordPayment)
			})

			r.Get("/summary", h.GetSummary)
			r.Get("/trend", h.GetTrend)

			r.Get("/export", h.Export)
			r.Post("/import/students", h.ImportStudents)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/backup", h.Backup)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetLedger)
			})
		})
	})

	if opts.Rows != nil && opts.RowsToken != "" {
		r.Mount("/rows", opts.Rows.Routes(opts.RowsToken))
	}

	return r
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// requestLogger logs one line per request with logrus fields.
func requestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			})
			switch {
			case status >= 500:
				entry.Error("HTTP Request")
			case status >= 400:
				entry.Warn("HTTP Request")
			default:
				entry.Info("HTTP Request")
			}
		})
	}
}

// requireSession parses the Bearer session token and puts the Session in
// the request context.
func requireSession(issuer *session.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if issuer == nil {
				writeFailure(w, http.StatusServiceUnavailable, "Login is not configured", "auth_disabled", nil)
				return
			}
			token, ok := bearer(r)
			if !ok {
				writeFailure(w, http.StatusUnauthorized, "Not logged in", "no_session", nil)
				return
			}
			s, err := issuer.Parse(token)
			if err != nil {
				code := "invalid_session"
				if errors.Is(err, session.ErrExpired) {
					code = "session_expired"
				}
				writeFailure(w, http.StatusUnauthorized, "Session is not valid, please log in again", code, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
		})
	}
}

// requireBearer checks a shared secret. An empty secret rejects everything.
func requireBearer(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeFailure(w, http.StatusServiceUnavailable, "Endpoint secret is not configured", "secret_not_configured", nil)
				return
			}
			token, ok := bearer(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				writeFailure(w, http.StatusUnauthorized, "Unauthorized", "unauthorized", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(h[len(prefix):]), true
}
