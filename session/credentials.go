package session

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for any failed login.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Credentials is the single admin login.
type Credentials struct {
	email string
	hash  []byte
}

// NewCredentials accepts a bcrypt hash or a plain password (hashed here).
func NewCredentials(email, password string) (*Credentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("admin email and password are required")
	}
	if strings.HasPrefix(password, "$2") {
		if _, err := bcrypt.Cost([]byte(password)); err == nil {
			return &Credentials{email: email, hash: []byte(password)}, nil
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &Credentials{email: email, hash: hash}, nil
}

// Email returns the admin login.
func (c *Credentials) Email() string { return c.email }

// Verify checks a login attempt.
func (c *Credentials) Verify(email, password string) error {
	if strings.ToLower(strings.TrimSpace(email)) != c.email {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
