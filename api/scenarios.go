/*
scenarios.go - Demo roster loaders for testing and demonstrations

PURPOSE:
  Provides pre-built rosters that populate the store with realistic data.
  Every scenario is written through the Reconciler, so the rows it leaves
  behind are exactly what the dashboard would have written.

AVAILABLE SCENARIOS:
  empty:             No students
  reading-room:      Eight students, current month partly paid, one free desk
  overdue-quarter:   Four students with three months of history and arrears
  expiring-tomorrow: Subscriptions ending tomorrow (exercises the SMS sweep)

HOW SCENARIOS WORK:
 1. Delete every registered student (cascading)
 2. Register the roster
 3. Record payments relative to the reconciler's clock

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "reading-room"}

NOTE:
  Scenarios delete data. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Reconciler-backed handlers
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dnyanpeeth/fee-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type demoStudent struct {
	id     string
	name   string
	mobile string
	fee    int64
	// startMonths is how many months before now the subscription began.
	startMonths int
	// endInDays overrides the default end (start + 1 month) when non-zero.
	endInDays int
	// paid lists month offsets from now (0 = current, 1 = last month) that
	// are recorded Paid. Other offsets up to startMonths are recorded Unpaid.
	paid []int
}

type scenario struct {
	ScenarioDTO
	roster []demoStudent
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "empty",
			Name:        "Empty Library",
			Description: "No students registered",
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "reading-room",
			Name:        "Reading Room",
			Description: "Eight desks, current month partly paid, one free desk",
		},
		roster: []demoStudent{
			{id: "D-1", name: "Aarav Patil", mobile: "9822000001", fee: 600, paid: []int{0}},
			{id: "D-2", name: "Sneha Kulkarni", mobile: "9822000002", fee: 600, paid: []int{0}},
			{id: "D-3", name: "Rohan Deshmukh", mobile: "9822000003", fee: 600},
			{id: "D-4", name: "Priya Joshi", mobile: "9822000004", fee: 500, paid: []int{0}},
			{id: "D-5", name: "Omkar Shinde", mobile: "9822000005", fee: 500},
			{id: "D-6", name: "Gauri Pawar", mobile: "9822000006", fee: 0},
			{id: "D-7", name: "Tanvi More", mobile: "9822000007", fee: 700, paid: []int{0}},
			{id: "D-8", name: "Yash Gaikwad", fee: 700},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "overdue-quarter",
			Name:        "Overdue Quarter",
			Description: "Three months of history with arrears on two desks",
		},
		roster: []demoStudent{
			{id: "D-11", name: "Kunal Jadhav", mobile: "9822000011", fee: 600, startMonths: 2, paid: []int{0, 1, 2}},
			{id: "D-12", name: "Isha Bhosale", mobile: "9822000012", fee: 600, startMonths: 2, paid: []int{2}},
			{id: "D-13", name: "Nikhil Salunkhe", mobile: "9822000013", fee: 500, startMonths: 2, paid: []int{1, 2}},
			{id: "D-14", name: "Manasi Kale", mobile: "9822000014", fee: 0, startMonths: 2},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "expiring-tomorrow",
			Name:        "Expiring Tomorrow",
			Description: "Subscriptions that end tomorrow, for the reminder sweep",
		},
		roster: []demoStudent{
			{id: "D-21", name: "Rutuja Mane", mobile: "9822000021", fee: 600, endInDays: 1, paid: []int{0}},
			{id: "D-22", name: "Sahil Chavan", mobile: "9822000022", fee: 600, endInDays: 1},
			{id: "D-23", name: "Pooja Thorat", fee: 500, endInDays: 1},
			{id: "D-24", name: "Aditya Kadam", mobile: "9822000024", fee: 500, endInDays: 20, paid: []int{0}},
		},
	},
}

func init() {
	for i := range scenarios {
		scenarios[i].Students = len(scenarios[i].roster)
	}
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// SCENARIO HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeSuccess(w, http.StatusOK, "", dtos)
}

// GetCurrentScenario returns the last loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	s, ok := findScenario(current)
	if !ok {
		writeSuccess(w, http.StatusOK, "No scenario loaded", nil)
		return
	}
	writeSuccess(w, http.StatusOK, "", s.ScenarioDTO)
}

// LoadScenario clears the store and loads a roster.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, "Unknown scenario", &ledger.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("%q is not a scenario", req.ScenarioID)})
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.reset(ctx); err != nil {
		writeError(w, "Failed to reset ledger", err)
		return
	}
	h.currentScenario = ""

	if err := h.loadRoster(ctx, s.roster); err != nil {
		writeError(w, "Failed to load scenario", err)
		return
	}
	h.currentScenario = s.ID

	h.Log.WithField("scenario", s.ID).Info("scenario loaded")
	writeSuccess(w, http.StatusOK, "Scenario loaded", s.ScenarioDTO)
}

// ResetLedger deletes every student.
// POST /api/scenarios/reset
func (h *Handler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := h.reset(r.Context())
	if err != nil {
		writeError(w, "Failed to reset ledger", err)
		return
	}
	h.currentScenario = ""
	writeSuccess(w, http.StatusOK, fmt.Sprintf("Removed %d students", n), map[string]int{"removed": n})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// reset deletes every student through the Reconciler. Callers hold h.mu.
func (h *Handler) reset(ctx context.Context) (int, error) {
	students, err := h.Ledger.ListStudents(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range students {
		if _, err := h.Ledger.DeleteStudent(ctx, s.ID); err != nil {
			return 0, err
		}
	}
	return len(students), nil
}

func (h *Handler) loadRoster(ctx context.Context, roster []demoStudent) error {
	now := h.Ledger.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	for _, d := range roster {
		start := today.AddDate(0, -d.startMonths, 0)
		in := ledger.NewStudent{
			ID:                d.id,
			Username:          d.name,
			Mobile:            d.mobile,
			MonthlyFee:        decimal.NewFromInt(d.fee),
			SubscriptionStart: start,
		}
		if d.endInDays != 0 {
			in.SubscriptionStart = today.AddDate(0, -1, d.endInDays)
			in.SubscriptionEnd = today.AddDate(0, 0, d.endInDays)
		}
		s, err := h.Ledger.CreateStudent(ctx, in)
		if err != nil {
			return fmt.Errorf("student %s: %w", d.id, err)
		}

		paid := make(map[int]bool, len(d.paid))
		for _, off := range d.paid {
			paid[off] = true
		}
		for off := d.startMonths; off >= 0; off-- {
			k := ledger.KeyForTime(s.ID, monthStart.AddDate(0, -off, 0))
			if _, err := h.Ledger.RecordPayment(ctx, s.ID, k.Month, k.Year, s.MonthlyFee, paid[off]); err != nil {
				return fmt.Errorf("student %s %s: %w", d.id, ledger.FormatKey(k), err)
			}
		}
	}
	return nil
}
