/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate a store with realistic data
	for one month. Each scenario creates attendance, commitments, targets
	and, where relevant, missions or stale allocations that demonstrate a
	specific behavior of the engine.

AVAILABLE SCENARIOS:

	horizon-researcher: Half-day Horizon project split on two work packages,
	                    a national grant, an illness day and a mission
	over-allocated:     Persisted allocations above attendance; the month
	                    reads as inconsistent until regenerated

HOW SCENARIOS WORK:
 1. Add a one-off holiday on the first Wednesday of the month
 2. Import attendance for every working day
 3. Create commitments, targets and work-package shares
 4. Optionally add missions or persisted allocations

Scenarios only add records; IDs are derived from the month so loading the
same scenario twice overwrites its own data.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "horizon-researcher", "year": 2025, "month": 6}

USAGE VIA CLI:

	timesheet seed --scenario horizon-researcher --month 2025-06

SEE ALSO:
  - handlers.go: Store interface
  - cmd/timesheet/seed.go: seed command
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "horizon-researcher",
		Name:        "Horizon Researcher",
		Description: "Half-day Horizon project on two work packages, a national grant, illness and a mission",
	},
	{
		ID:          "over-allocated",
		Name:        "Over-Allocated Month",
		Description: "Persisted allocations exceed attendance; reading fails until regenerated",
	},
}

// Scenarios returns the available demo scenarios.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// SeedScenario loads scenario id for the month into store.
func SeedScenario(ctx context.Context, store Store, id string, year int, month time.Month) error {
	if err := generic.ValidateMonth(year, month); err != nil {
		return err
	}
	switch id {
	case "horizon-researcher":
		return seedHorizonResearcher(ctx, store, year, month)
	case "over-allocated":
		return seedOverAllocated(ctx, store, year, month)
	}
	return fmt.Errorf("unknown scenario %q: %w", id, generic.ErrNotFound)
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Scenarios())
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	year, month := req.Year, time.Month(req.Month)
	if year == 0 && month == 0 {
		now := time.Now()
		year, month = now.Year(), now.Month()
	}

	if err := SeedScenario(r.Context(), h.Store, req.ScenarioID, year, month); err != nil {
		writeFailure(w, "Failed to load scenario", err)
		return
	}
	h.Logger.Info("scenario loaded", "scenario", req.ScenarioID, "year", year, "month", int(month))

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"year":     year,
		"month":    int(month),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func seedHorizonResearcher(ctx context.Context, store Store, year int, month time.Month) error {
	const researcher timesheet.ResearcherID = "r-demo"
	suffix := fmt.Sprintf("%04d-%02d", year, int(month))

	if err := seedHoliday(ctx, store, year, month); err != nil {
		return err
	}
	working, err := seedAttendance(ctx, store, researcher, year, month, func(i int, wd *timesheet.WorkDay) {
		switch i {
		case 1:
			wd.Hours, wd.Code = generic.ZeroHours(), timesheet.AbsenceIllness
		case 4:
			wd.Code = timesheet.AbsenceMission
		}
	})
	if err != nil {
		return err
	}

	period := generic.MonthPeriod(year, month)
	horizon := timesheet.Commitment{
		ID:             timesheet.CommitmentID("demo-horizon-" + suffix),
		Researcher:     researcher,
		Project:        "horizon",
		ProjectName:    "HORIZON-CL5 Smart Grids",
		Period:         period,
		HalfDayQuantum: true,
	}
	national := timesheet.Commitment{
		ID:          timesheet.CommitmentID("demo-national-" + suffix),
		Researcher:  researcher,
		Project:     "national",
		ProjectName: "National Research Grant",
		Period:      period,
	}
	for _, c := range []timesheet.Commitment{horizon, national} {
		if err := store.SaveCommitment(ctx, c); err != nil {
			return fmt.Errorf("saving commitment %s: %w", c.ID, err)
		}
	}

	if err := store.SetMonthlyTarget(ctx, horizon.ID, year, month, generic.NewHoursFromString("43.2")); err != nil {
		return err
	}
	if err := store.SetMonthlyTarget(ctx, national.ID, year, month, generic.NewHoursFromInt(30)); err != nil {
		return err
	}
	if err := store.SetWorkPackageShares(ctx, horizon.ID, []timesheet.WorkPackageShare{
		{WorkPackage: "wp2", Name: "WP2 Modelling", Fraction: 2},
		{WorkPackage: "wp3", Name: "WP3 Pilots", Fraction: 1},
	}); err != nil {
		return err
	}

	if len(working) > 4 {
		if err := store.SaveMission(ctx, timesheet.ReportedMission{
			ID:          "demo-mission-" + suffix,
			Researcher:  researcher,
			Date:        working[4],
			Hours:       generic.FullDay,
			Project:     "conference",
			ProjectName: "Conference Travel",
		}); err != nil {
			return err
		}
	}
	return nil
}

func seedOverAllocated(ctx context.Context, store Store, year int, month time.Month) error {
	const researcher timesheet.ResearcherID = "r-drift"
	suffix := fmt.Sprintf("%04d-%02d", year, int(month))

	if err := seedHoliday(ctx, store, year, month); err != nil {
		return err
	}
	working, err := seedAttendance(ctx, store, researcher, year, month, nil)
	if err != nil {
		return err
	}
	if len(working) < 2 {
		return fmt.Errorf("month %s has fewer than two working days", suffix)
	}

	grant := timesheet.Commitment{
		ID:          timesheet.CommitmentID("drift-grant-" + suffix),
		Researcher:  researcher,
		Project:     "grant",
		ProjectName: "Regional Innovation Grant",
		Period:      generic.MonthPeriod(year, month),
	}
	if err := store.SaveCommitment(ctx, grant); err != nil {
		return fmt.Errorf("saving commitment %s: %w", grant.ID, err)
	}
	if err := store.SetMonthlyTarget(ctx, grant.ID, year, month, generic.NewHoursFromInt(20)); err != nil {
		return err
	}

	// Attendance was corrected after these rows were written.
	key := timesheet.AllocationKey{Commitment: grant.ID}
	return store.ReplaceAllocations(ctx, key, year, month, []timesheet.Allocation{
		{Key: key, Date: working[0], Hours: generic.NewHoursFromInt(10)},
		{Key: key, Date: working[1], Hours: generic.NewHoursFromInt(10)},
	})
}

// seedHoliday adds a one-off holiday on the first Wednesday of the month.
func seedHoliday(ctx context.Context, store Store, year int, month time.Month) error {
	day := generic.StartOfMonth(year, month)
	for day.Weekday() != time.Wednesday {
		day = day.AddDays(1)
	}
	return store.SaveHoliday(ctx, generic.Holiday{
		ID:   fmt.Sprintf("demo-holiday-%04d-%02d", year, int(month)),
		Date: day,
		Name: "Institute Day",
	})
}

// seedAttendance saves a full day for every working day of the month and
// returns those days. adjust may change the i-th working day before saving.
func seedAttendance(ctx context.Context, store Store, researcher timesheet.ResearcherID, year int, month time.Month, adjust func(i int, wd *timesheet.WorkDay)) ([]generic.TimePoint, error) {
	var (
		days    []timesheet.WorkDay
		working []generic.TimePoint
	)
	for _, date := range generic.MonthPeriod(year, month).Days() {
		wd := timesheet.WorkDay{Researcher: researcher, Date: date, Hours: generic.ZeroHours()}
		if generic.IsWorkday(store, date) {
			wd.Hours = generic.FullDay
			if adjust != nil {
				adjust(len(working), &wd)
			}
			working = append(working, date)
		}
		days = append(days, wd)
	}
	if err := store.SaveWorkDays(ctx, days); err != nil {
		return nil, fmt.Errorf("saving attendance: %w", err)
	}
	return working, nil
}
