/*
handlers.go - HTTP API handlers for the timesheet engine

PURPOSE:
  Exposes month assembly, consistency checks and calendar administration
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the timesheet core.

ENDPOINTS:
  Months:
    GET    /api/researchers/{id}/months/{year}/{month}              Month view (read-only)
    POST   /api/researchers/{id}/months/{year}/{month}/regenerate   Month view with regeneration
    GET    /api/researchers/{id}/months/{year}/{month}/consistency  Consistency report

  Holidays:
    GET    /api/holidays               List holidays
    POST   /api/holidays               Create holiday
    POST   /api/holidays/import        Import an iCalendar body (?year=)
    DELETE /api/holidays/{id}          Delete holiday

  Attendance:
    POST   /api/attendance/import      Import an .xlsx body (?sheet=)

  Sweeps:
    GET    /api/sweeps                 Recent consistency sweep runs (?limit=)
    POST   /api/sweeps/run             Run a sweep now

  Scenarios:
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: ReportingError (inconsistent month, infeasible allocation)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scheduler.go: Consistency sweep
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/attendance"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/holidays"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the persistence the API needs. *sqlite.Store and *memory.Memory
// implement it.
type Store interface {
	timesheet.AttendanceStore
	timesheet.CommitmentRegistry
	timesheet.AllocationStore
	timesheet.MissionStore
	timesheet.ResearcherLister
	timesheet.SweepLog
	generic.HolidayStore

	SaveWorkDays(ctx context.Context, wds []timesheet.WorkDay) error
	SaveCommitment(ctx context.Context, c timesheet.Commitment) error
	SetMonthlyTarget(ctx context.Context, commitment timesheet.CommitmentID, year int, month time.Month, hours generic.Hours) error
	SetWorkPackageShares(ctx context.Context, commitment timesheet.CommitmentID, shares []timesheet.WorkPackageShare) error
	SaveMission(ctx context.Context, m timesheet.ReportedMission) error
}

// NewAssembler wires an assembler over store.
func NewAssembler(store Store) *timesheet.Assembler {
	return &timesheet.Assembler{
		Attendance:  store,
		Holidays:    store,
		Commitments: store,
		Allocations: store,
		Missions:    store,
	}
}

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Assembler *timesheet.Assembler
	Sweep     *ConsistencySweep // nil disables POST /api/sweeps/run
	Metrics   http.Handler      // nil disables GET /metrics
	Logger    *slog.Logger
}

// NewHandler creates a handler whose assembler reads and writes store.
func NewHandler(store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	assembler := NewAssembler(store)
	assembler.Logger = logger
	return &Handler{Store: store, Assembler: assembler, Logger: logger}
}

// =============================================================================
// MONTH HANDLERS
// =============================================================================

// GetMonth returns the month view without modifying persisted allocations.
// GET /api/researchers/{id}/months/{year}/{month}
func (h *Handler) GetMonth(w http.ResponseWriter, r *http.Request) {
	h.buildMonth(w, r, timesheet.BuildOptions{})
}

// RegenerateMonth returns the month view, regenerating allocations as needed.
// POST /api/researchers/{id}/months/{year}/{month}/regenerate
func (h *Handler) RegenerateMonth(w http.ResponseWriter, r *http.Request) {
	h.buildMonth(w, r, timesheet.BuildOptions{AllowRegenerate: true})
}

func (h *Handler) buildMonth(w http.ResponseWriter, r *http.Request, opts timesheet.BuildOptions) {
	researcher, year, month, err := monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	view, err := h.Assembler.BuildMonth(r.Context(), researcher, year, month, opts)
	if err != nil {
		writeFailure(w, "Failed to build month", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetConsistency returns the consistency report of the month.
// GET /api/researchers/{id}/months/{year}/{month}/consistency
func (h *Handler) GetConsistency(w http.ResponseWriter, r *http.Request) {
	researcher, year, month, err := monthParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return
	}

	report, err := h.Assembler.Checker().Check(r.Context(), researcher, year, month)
	if err != nil {
		writeFailure(w, "Failed to check month", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent": report.OK(),
		"report":     report,
	})
}

func monthParams(r *http.Request) (timesheet.ResearcherID, int, time.Month, error) {
	id := chi.URLParam(r, "id")
	if id == "" {
		return "", 0, 0, errors.New("researcher id is required")
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		return "", 0, 0, err
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		return "", 0, 0, err
	}
	if err := generic.ValidateMonth(year, time.Month(month)); err != nil {
		return "", 0, 0, err
	}
	return timesheet.ResearcherID(id), year, time.Month(month), nil
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns all holidays, recurring first.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Store.Holidays(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": toHolidayDTOs(hs)})
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Date == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "Date and name are required", nil)
		return
	}
	date, err := generic.ParseDay(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		ID:        uuid.NewString(),
		Date:      date,
		Name:      req.Name,
		Recurring: req.Recurring,
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// ImportHolidays imports the VEVENTs of an iCalendar request body.
// POST /api/holidays/import?year=2025
func (h *Handler) ImportHolidays(w http.ResponseWriter, r *http.Request) {
	year := 0
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	hs, err := holidays.ImportICS(r.Body, year)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid calendar", err)
		return
	}
	for _, hol := range hs {
		if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, ImportResponse{Imported: len(hs)})
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeFailure(w, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// ImportAttendance imports an attendance workbook sent as the request body.
// POST /api/attendance/import?sheet=June
func (h *Handler) ImportAttendance(w http.ResponseWriter, r *http.Request) {
	days, err := attendance.ReadWorkbook(r.Body, r.URL.Query().Get("sheet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid workbook", err)
		return
	}
	if err := h.Store.SaveWorkDays(r.Context(), days); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save attendance", err)
		return
	}
	h.Logger.Info("attendance imported", "days", len(days))
	writeJSON(w, http.StatusOK, ImportResponse{Imported: len(days)})
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// ListSweeps returns the latest consistency sweep runs, newest first.
// GET /api/sweeps?limit=20
func (h *Handler) ListSweeps(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.SweepRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sweeps", err)
		return
	}
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// RunSweep runs a consistency sweep over the current month.
// POST /api/sweeps/run
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweep == nil {
		writeError(w, http.StatusNotFound, "Sweep is not configured", nil)
		return
	}
	run, err := h.Sweep.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepRunDTO(run))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeFailure picks the status from the error.
func writeFailure(w http.ResponseWriter, message string, err error) {
	writeError(w, statusOf(err), message, err)
}

func statusOf(err error) int {
	switch {
	case timesheet.IsReportingError(err):
		return http.StatusConflict
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case generic.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
