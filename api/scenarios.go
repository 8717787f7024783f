/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with classes,
	members and bookings that demonstrate specific engine behaviors.

AVAILABLE SCENARIOS:

	last-seat:    1-seat class, two members with credits, nobody booked yet
	waitlist:     full class with a 3-deep waitlist, one waiter without credit
	late-cancel:  class starting in 30 minutes with one booked member
	studio-week:  a week of classes and a dozen members

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create classes via the Catalog (start times relative to now)
 3. Open member accounts via the credit Ledger
 4. Book through the Coordinator, so every counter and ledger entry is real

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "waitlist"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: scenario routes are mounted only when an admin store is set
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/class-booking/catalog"
	"github.com/warp/class-booking/enrollment"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "last-seat",
		Name:        "Last Seat",
		Description: "One seat, two members: enroll both at once and watch one get waitlisted",
	},
	{
		ID:          "waitlist",
		Name:        "Waitlist Promotion",
		Description: "Full 2-seat class, waitlist carol > dave (no credits) > erin; cancel alice to promote",
	},
	{
		ID:          "late-cancel",
		Name:        "Late Cancellation",
		Description: "Class starts in 30 minutes; cancelling now forfeits the credit",
	},
	{
		ID:          "studio-week",
		Name:        "Studio Week",
		Description: "Five classes over the next week, twelve members with 8 credits each",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(ctx context.Context, now time.Time) error
	switch req.ScenarioID {
	case "last-seat":
		load = h.loadLastSeatScenario
	case "waitlist":
		load = h.loadWaitlistScenario
	case "late-cancel":
		load = h.loadLateCancelScenario
	case "studio-week":
		load = h.loadStudioWeekScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Admin.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx, h.Now()); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Admin.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type member struct {
	id      enrollment.UserID
	credits int
}

func (h *Handler) seed(ctx context.Context, classes []catalog.ClassSpec, members []member) error {
	for _, spec := range classes {
		if _, err := h.Catalog.CreateClass(ctx, spec); err != nil {
			return fmt.Errorf("create class %s: %w", spec.ID, err)
		}
	}
	for _, m := range members {
		if _, err := h.Credits.OpenAccount(ctx, m.id, m.credits); err != nil {
			return fmt.Errorf("open account %s: %w", m.id, err)
		}
	}
	return nil
}

func (h *Handler) enrollAll(ctx context.Context, classID enrollment.ClassID, users ...enrollment.UserID) error {
	for _, u := range users {
		if _, err := h.Coordinator.Enroll(ctx, u, classID); err != nil {
			return fmt.Errorf("enroll %s in %s: %w", u, classID, err)
		}
	}
	return nil
}

func (h *Handler) loadLastSeatScenario(ctx context.Context, now time.Time) error {
	return h.seed(ctx,
		[]catalog.ClassSpec{{ID: "spin-0700", Capacity: 1, StartTime: now.Add(24 * time.Hour)}},
		[]member{{"alice", 5}, {"bob", 5}},
	)
}

func (h *Handler) loadWaitlistScenario(ctx context.Context, now time.Time) error {
	err := h.seed(ctx,
		[]catalog.ClassSpec{{ID: "yoga-1800", Capacity: 2, StartTime: now.Add(3 * time.Hour)}},
		[]member{{"alice", 5}, {"bob", 5}, {"carol", 5}, {"dave", 0}, {"erin", 5}},
	)
	if err != nil {
		return err
	}
	return h.enrollAll(ctx, "yoga-1800", "alice", "bob", "carol", "dave", "erin")
}

func (h *Handler) loadLateCancelScenario(ctx context.Context, now time.Time) error {
	err := h.seed(ctx,
		[]catalog.ClassSpec{{ID: "hiit-1200", Capacity: 3, StartTime: now.Add(30 * time.Minute)}},
		[]member{{"alice", 2}},
	)
	if err != nil {
		return err
	}
	return h.enrollAll(ctx, "hiit-1200", "alice")
}

func (h *Handler) loadStudioWeekScenario(ctx context.Context, now time.Time) error {
	day := now.Truncate(24 * time.Hour)
	classes := []catalog.ClassSpec{
		{ID: "mon-yoga", Capacity: 8, StartTime: day.Add(24*time.Hour + 7*time.Hour)},
		{ID: "tue-spin", Capacity: 4, StartTime: day.Add(48*time.Hour + 18*time.Hour)},
		{ID: "wed-hiit", Capacity: 6, StartTime: day.Add(72*time.Hour + 12*time.Hour)},
		{ID: "thu-pilates", Capacity: 3, StartTime: day.Add(96*time.Hour + 19*time.Hour)},
		{ID: "sat-boxing", Capacity: 10, StartTime: day.Add(144*time.Hour + 10*time.Hour)},
	}
	members := make([]member, 12)
	for i := range members {
		members[i] = member{id: enrollment.UserID(fmt.Sprintf("member-%02d", i+1)), credits: 8}
	}
	if err := h.seed(ctx, classes, members); err != nil {
		return err
	}

	// Oversubscribe the small classes so they carry a waitlist
	for i, m := range members {
		if err := h.enrollAll(ctx, "tue-spin", m.id); err != nil {
			return err
		}
		if i%2 == 0 {
			if err := h.enrollAll(ctx, "thu-pilates", m.id); err != nil {
				return err
			}
		}
	}
	return nil
}
