/*
Package config loads server settings from the environment.

PURPOSE:
  A .env file is loaded first when present; real environment variables win
  over it. Every key has a default so the server starts with nothing set
  (memory store, flat layout, composite scheme, SMS disabled).

KEYS:
  Server    PORT, APP_ENV, LOG_LEVEL, CORS_ORIGINS
  Store     STORE_DRIVER, STORE_LAYOUT, IDENTITY_SCHEME, STUDENT_SHEET,
            PAYMENT_SHEET, SQLITE_PATH, REDIS_*, XLSX_PATH, ROWS_API_URL,
            ROWS_API_TOKEN
  Auth      ADMIN_EMAIL, ADMIN_PASSWORD, JWT_SECRET, SESSION_MAX_AGE
  Reminders FAST2SMS_API_KEY, CRON_SECRET, REMINDER_SCHEDULE
  Backup    AWS_REGION, S3_BUCKET

SEE ALSO:
  - cmd/server/main.go: flags override Port and SQLitePath
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverXLSX   = "xlsx"
	DriverHTTP   = "http"
)

type Config struct {
	// Server
	Port        string
	AppEnv      string
	LogLevel    string
	CORSOrigins []string

	// Store
	StoreDriver    string
	StoreLayout    string
	IdentityScheme string
	StudentSheet   string
	PaymentSheet   string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPrefix    string
	XLSXPath       string
	RowsAPIURL     string
	RowsAPIToken   string // guards the /rows surface and authenticates the http driver

	// Auth
	AdminEmail    string
	AdminPassword string
	JWTSecret     string
	SessionMaxAge time.Duration

	// Reminders
	Fast2SMSAPIKey   string
	CronSecret       string
	ReminderSchedule string

	// Backup
	AWSRegion string
	S3Bucket  string
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads .env (if any) and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using environment variables")
	}

	maxAge, err := ParseDuration(getEnv("SESSION_MAX_AGE", "90d"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_MAX_AGE: %w", err)
	}
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		AppEnv:      getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),

		StoreDriver:    strings.ToLower(getEnv("STORE_DRIVER", DriverMemory)),
		StoreLayout:    strings.ToLower(getEnv("STORE_LAYOUT", string(ledger.LayoutFlat))),
		IdentityScheme: strings.ToLower(getEnv("IDENTITY_SCHEME", ledger.SchemeComposite)),
		StudentSheet:   getEnv("STUDENT_SHEET", "Sheet1"),
		PaymentSheet:   getEnv("PAYMENT_SHEET", "Payments"),
		SQLitePath:     getEnv("SQLITE_PATH", "ledger.db"),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        redisDB,
		RedisPrefix:    getEnv("REDIS_PREFIX", "ledger"),
		XLSXPath:       getEnv("XLSX_PATH", "ledger.xlsx"),
		RowsAPIURL:     getEnv("ROWS_API_URL", ""),
		RowsAPIToken:   getEnv("ROWS_API_TOKEN", ""),

		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@dnyanpeeth.in"),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		SessionMaxAge: maxAge,

		Fast2SMSAPIKey:   getEnv("FAST2SMS_API_KEY", ""),
		CronSecret:       getEnv("CRON_SECRET", ""),
		ReminderSchedule: getEnv("REMINDER_SCHEDULE", ""),

		AWSRegion: getEnv("AWS_REGION", "ap-south-1"),
		S3Bucket:  getEnv("S3_BUCKET", ""),
	}
	return cfg, nil
}

// Validate checks the combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis, DriverXLSX, DriverHTTP:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	layout, err := ledger.ParseLayout(c.StoreLayout)
	if err != nil {
		return err
	}
	if _, err := ledger.NewScheme(c.IdentityScheme, layout); err != nil {
		return err
	}
	if c.StoreDriver == DriverHTTP {
		if c.RowsAPIURL == "" {
			return fmt.Errorf("ROWS_API_URL is required for the http driver")
		}
		if c.IdentityScheme != ledger.SchemeDerived {
			return fmt.Errorf("the http driver matches on one field; set IDENTITY_SCHEME=%s", ledger.SchemeDerived)
		}
	}
	if layout == ledger.LayoutSplit && c.StudentSheet == c.PaymentSheet {
		return fmt.Errorf("split layout needs distinct STUDENT_SHEET and PAYMENT_SHEET")
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive")
	}
	if c.IsProduction() && (c.JWTSecret == "" || c.AdminPassword == "") {
		return fmt.Errorf("JWT_SECRET and ADMIN_PASSWORD are required in production")
	}
	return nil
}

// ParseDuration accepts time.ParseDuration syntax plus "d" (days) and
// "w" (weeks) shorthand.
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}
	v := strings.TrimSpace(strings.ToLower(s))
	if len(v) > 1 {
		n, convErr := strconv.Atoi(v[:len(v)-1])
		if convErr == nil {
			switch v[len(v)-1] {
			case 'd':
				return time.Duration(n) * 24 * time.Hour, nil
			case 'w':
				return time.Duration(n*7) * 24 * time.Hour, nil
			}
		}
	}
	return 0, err
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
