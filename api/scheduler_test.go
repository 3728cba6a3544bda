package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReminderScheduler_RunOnce(t *testing.T) {
	ts := newTestServer(t)
	rec, _ := ts.do(http.MethodPost, "/api/students", map[string]any{
		"id": "D-1", "username": "Ravi", "monthly_fee": 500, "mobile": "9876543210",
		"subscription_start": "2024-12-16", "subscription_end": "2025-01-16",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rs := NewReminderScheduler(ts.h, "@daily")
	rs.RunOnce()

	assert.Equal(t, 1, rs.Runs())
	assert.Len(t, ts.sms.sent, 1)
}

func TestReminderScheduler_StartStop(t *testing.T) {
	ts := newTestServer(t)

	disabled := NewReminderScheduler(ts.h, "")
	require.NoError(t, disabled.Start())
	disabled.Stop()

	bad := NewReminderScheduler(ts.h, "every morning")
	assert.Error(t, bad.Start())

	rs := NewReminderScheduler(ts.h, "0 9 * * *")
	require.NoError(t, rs.Start())
	require.NoError(t, rs.Start(), "second start is a no-op")
	rs.Stop()
	assert.Zero(t, rs.Runs())
}
