/*
scheduler.go - In-process expiry reminder scheduler

PURPOSE:
  Runs the expiring-tomorrow SMS sweep on a cron schedule, for deployments
  without an external cron hitting /api/reminders/run.

DESIGN:
  - robfig/cron with SkipIfStillRunning, so a slow sweep never overlaps
  - Each run gets its own timeout
  - Standard 5-field cron expressions, plus descriptors such as "@daily"

CONFIGURATION:
  - Schedule: REMINDER_SCHEDULE (e.g. "0 9 * * *"). Empty disables it.
  - Timeout:  Per-run budget (default: 4 minutes)

USAGE:
  scheduler := NewReminderScheduler(handler, "0 9 * * *")
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: SweepExpiring, RunReminders endpoint (manual trigger)
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReminderScheduler runs Handler.SweepExpiring on a schedule.
type ReminderScheduler struct {
	Handler  *Handler
	Schedule string
	Timeout  time.Duration

	mu   sync.Mutex
	cron *cron.Cron
	runs int
}

// NewReminderScheduler creates a scheduler. Nothing runs until Start.
func NewReminderScheduler(h *Handler, schedule string) *ReminderScheduler {
	return &ReminderScheduler{
		Handler:  h,
		Schedule: schedule,
		Timeout:  4 * time.Minute,
	}
}

// Start registers the job and starts the cron loop. An empty schedule is a
// no-op.
func (rs *ReminderScheduler) Start() error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	log := rs.Handler.Log.WithField("component", "reminder-scheduler")
	if rs.Schedule == "" {
		log.Info("reminder scheduler disabled (no REMINDER_SCHEDULE)")
		return nil
	}
	if rs.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(rs.Schedule, rs.RunOnce); err != nil {
		return fmt.Errorf("invalid REMINDER_SCHEDULE %q: %w", rs.Schedule, err)
	}
	c.Start()
	rs.cron = c

	log.WithField("schedule", rs.Schedule).Info("reminder scheduler started")
	return nil
}

// Stop stops the loop and waits for a running sweep to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	c := rs.cron
	rs.cron = nil
	rs.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	rs.Handler.Log.WithField("component", "reminder-scheduler").Info("reminder scheduler stopped")
}

// RunOnce performs one sweep.
func (rs *ReminderScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), rs.Timeout)
	defer cancel()

	report, err := rs.Handler.SweepExpiring(ctx)

	rs.mu.Lock()
	rs.runs++
	rs.mu.Unlock()

	if err != nil {
		rs.Handler.Log.WithError(err).Error("scheduled reminder sweep failed")
		return
	}
	if !report.WithinLimit {
		rs.Handler.Log.WithFields(logrus.Fields{
			"expiring": report.Expiring,
			"limit":    report.FreeTierLimit,
		}).Warn("expiring students exceed the SMS free tier")
	}
}

// Runs returns how many sweeps have completed.
func (rs *ReminderScheduler) Runs() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.runs
}
