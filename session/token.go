package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrExpired      = errors.New("session expired")
)

// Claims is the token payload.
type Claims struct {
	User string `json:"user"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens with HS256.
type Issuer struct {
	secret []byte
	maxAge time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. A non-positive maxAge uses DefaultMaxAge.
func NewIssuer(secret string, maxAge time.Duration) *Issuer {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Issuer{secret: []byte(secret), maxAge: maxAge, now: time.Now}
}

// WithClock replaces the issuer's clock.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// MaxAge returns the session cap.
func (i *Issuer) MaxAge() time.Duration { return i.maxAge }

// Start opens a session for user at the issuer's current time.
func (i *Issuer) Start(user string) Session {
	return Session{User: user, IssuedAt: i.now().UTC().Truncate(time.Second)}
}

// Issue signs s. The token expires maxAge after s.IssuedAt.
func (i *Issuer) Issue(s Session) (string, time.Time, error) {
	expires := s.IssuedAt.Add(i.maxAge)
	claims := &Claims{
		User: s.User,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.User,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			NotBefore: jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return token, expires, nil
}

// Parse verifies the signature and returns the session. Expiry is checked
// against the issuer's clock with IsExpired.
func (i *Issuer) Parse(token string) (Session, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.IssuedAt == nil {
		return Session{}, fmt.Errorf("%w: missing iat", ErrInvalidToken)
	}

	s := Session{User: claims.User, IssuedAt: claims.IssuedAt.Time.UTC()}
	if IsExpired(s, i.now(), i.maxAge) {
		return Session{}, ErrExpired
	}
	return s, nil
}
