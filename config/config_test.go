package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE_DRIVER", "STORE_LAYOUT", "IDENTITY_SCHEME", "SESSION_MAX_AGE", "REDIS_DB", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, "flat", cfg.StoreLayout)
	assert.Equal(t, "composite", cfg.IdentityScheme)
	assert.Equal(t, 90*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.CORSOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "HTTP")
	t.Setenv("ROWS_API_URL", "http://rows.local/api")
	t.Setenv("IDENTITY_SCHEME", "derived")
	t.Setenv("STORE_LAYOUT", "split")
	t.Setenv("SESSION_MAX_AGE", "2w")
	t.Setenv("REDIS_DB", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DriverHTTP, cfg.StoreDriver)
	assert.Equal(t, 14*24*time.Hour, cfg.SessionMaxAge)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_BadValues(t *testing.T) {
	t.Setenv("SESSION_MAX_AGE", "forever")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("SESSION_MAX_AGE", "")
	t.Setenv("REDIS_DB", "zero")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreDriver:    DriverMemory,
			StoreLayout:    "flat",
			IdentityScheme: "composite",
			StudentSheet:   "Sheet1",
			PaymentSheet:   "Payments",
			SessionMaxAge:  time.Hour,
		}
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }},
		{"unknown layout", func(c *Config) { c.StoreLayout = "wide" }},
		{"unknown scheme", func(c *Config) { c.IdentityScheme = "hash" }},
		{"http without url", func(c *Config) { c.StoreDriver = DriverHTTP; c.IdentityScheme = "derived" }},
		{"http with composite", func(c *Config) { c.StoreDriver = DriverHTTP; c.RowsAPIURL = "http://x" }},
		{"split on one sheet", func(c *Config) { c.StoreLayout = "split"; c.PaymentSheet = "Sheet1" }},
		{"zero session age", func(c *Config) { c.SessionMaxAge = 0 }},
		{"production without secrets", func(c *Config) { c.AppEnv = "production" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	assert.NoError(t, base().Validate())
}

func TestParseDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"90d": 90 * 24 * time.Hour,
		"1w":  7 * 24 * time.Hour,
		"36h": 36 * time.Hour,
		" 2D": 48 * time.Hour,
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseDuration("d")
	assert.Error(t, err)
}
