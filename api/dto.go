/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not domain
  types already. MonthView, Report and SweepRun carry their own JSON tags
  and are returned as is.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// HOLIDAYS
// =============================================================================

// HolidayDTO represents a public holiday in API responses.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// CreateHolidayRequest is the body of POST /api/holidays.
type CreateHolidayRequest struct {
	Date      string `json:"date"` // YYYY-MM-DD; the year is ignored when recurring
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

func toHolidayDTOs(hs []generic.Holiday) []HolidayDTO {
	dtos := make([]HolidayDTO, len(hs))
	for i, h := range hs {
		dtos[i] = toHolidayDTO(h)
	}
	return dtos
}

// =============================================================================
// IMPORTS
// =============================================================================

// ImportResponse reports the outcome of a file import.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// =============================================================================
// SWEEPS
// =============================================================================

// SweepRunDTO represents a consistency sweep run in API responses.
type SweepRunDTO struct {
	ID           string   `json:"id"`
	StartedAt    string   `json:"started_at"`
	Month        string   `json:"month"` // YYYY-MM
	Researchers  int      `json:"researchers"`
	Inconsistent []string `json:"inconsistent"`
	Failed       int      `json:"failed"`
}

func toSweepRunDTO(run timesheet.SweepRun) SweepRunDTO {
	inconsistent := make([]string, len(run.Inconsistent))
	for i, r := range run.Inconsistent {
		inconsistent[i] = string(r)
	}
	return SweepRunDTO{
		ID:           run.ID,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		Month:        generic.StartOfMonth(run.Year, run.Month).Time.Format("2006-01"),
		Researchers:  run.Researchers,
		Inconsistent: inconsistent,
		Failed:       run.Failed,
	}
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
// Year and month default to the current month.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Year       int    `json:"year,omitempty"`
	Month      int    `json:"month,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
