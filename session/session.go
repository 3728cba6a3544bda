/*
Package session models the single admin session.

PURPOSE:
  A Session is an explicit value carried in the request context. It is
  issued at login as a signed token and checked on every protected request.

EXPIRY:
  Sessions are capped by age since issue (default 90 days). IsExpired is a
  pure function of the session, the current time and the cap.

SEE ALSO:
  - token.go: JWT encoding
  - credentials.go: Admin login check
  - api/server.go: Middleware that injects the Session
*/
package session

import (
	"context"
	"time"
)

// DefaultMaxAge is the safety cap on session age.
const DefaultMaxAge = 90 * 24 * time.Hour

// Session is an authenticated admin.
type Session struct {
	User     string    `json:"user"`
	IssuedAt time.Time `json:"issued_at"`
}

// IsExpired reports whether s is older than maxAge at now. Sessions without
// a user or issue time, or issued in the future, are treated as expired.
func IsExpired(s Session, now time.Time, maxAge time.Duration) bool {
	if s.User == "" || s.IssuedAt.IsZero() {
		return true
	}
	if s.IssuedAt.After(now.Add(time.Minute)) {
		return true
	}
	return now.Sub(s.IssuedAt) > maxAge
}

type ctxKey struct{}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
