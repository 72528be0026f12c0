package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/api"
	"github.com/warp/timesheet-engine/attendance"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/metrics"
	"github.com/warp/timesheet-engine/store/memory"
	"github.com/warp/timesheet-engine/timesheet"
)

type fixture struct {
	store   *memory.Memory
	handler *api.Handler
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	h := api.NewHandler(store, nil)
	h.Assembler.Allocator = timesheet.NewAllocator(rand.NewSource(11))
	h.Assembler.MergeWorkPackagesByID = true

	srv := httptest.NewServer(api.NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return &fixture{store: store, handler: h, server: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

func (f *fixture) seed(t *testing.T, scenario string) {
	t.Helper()
	resp, body := f.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{
		ScenarioID: scenario, Year: 2025, Month: 6,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

type monthJSON struct {
	RunID    string  `json:"run_id"`
	Total    float64 `json:"total"`
	Modified bool    `json:"modified"`
	Projects []struct {
		Name     string  `json:"name"`
		Internal bool    `json:"internal"`
		Total    float64 `json:"total"`
	} `json:"projects"`
	Days []struct {
		Day int    `json:"day"`
		Tag string `json:"tag"`
	} `json:"days"`
}

// =============================================================================
// MONTHS
// =============================================================================

func TestMonth_HorizonScenario(t *testing.T) {
	// GIVEN: The horizon-researcher scenario for June 2025
	// WHEN: Reading the month before and after regeneration
	// THEN: The read-only view is refused until allocations exist, and the
	//       regenerated view lists projects by name with internal activities last

	f := newFixture(t)
	f.seed(t, "horizon-researcher")

	resp, body := f.do(t, http.MethodGet, "/api/researchers/r-demo/months/2025/6", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = f.do(t, http.MethodPost, "/api/researchers/r-demo/months/2025/6/regenerate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var view monthJSON
	require.NoError(t, json.Unmarshal(body, &view))
	assert.NotEmpty(t, view.RunID)
	assert.True(t, view.Modified)
	assert.InDelta(t, 136.8, view.Total, 0.001)

	names := make([]string, len(view.Projects))
	for i, p := range view.Projects {
		names[i] = p.Name
	}
	assert.Equal(t, []string{
		"Conference Travel",
		"HORIZON-CL5 Smart Grids",
		"National Research Grant",
		timesheet.InternalActivities,
	}, names)
	assert.InDelta(t, 43.2, view.Projects[1].Total, 0.001)
	assert.InDelta(t, 30, view.Projects[2].Total, 0.001)
	assert.True(t, view.Projects[3].Internal)

	// June 3 illness, June 4 holiday, June 9 mission.
	assert.Equal(t, timesheet.TagIllness, view.Days[2].Tag)
	assert.Equal(t, timesheet.TagPublicHoliday, view.Days[3].Tag)
	assert.Equal(t, timesheet.TagMission, view.Days[8].Tag)

	resp, body = f.do(t, http.MethodGet, "/api/researchers/r-demo/months/2025/6", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var again monthJSON
	require.NoError(t, json.Unmarshal(body, &again))
	assert.False(t, again.Modified)
}

func TestMonth_OverAllocated(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "over-allocated")

	resp, body := f.do(t, http.MethodGet, "/api/researchers/r-drift/months/2025/6/consistency", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var check struct {
		Consistent bool `json:"consistent"`
		Report     struct {
			Issues []struct {
				Kind string `json:"kind"`
			} `json:"issues"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(body, &check))
	assert.False(t, check.Consistent)
	require.NotEmpty(t, check.Report.Issues)
	assert.Equal(t, string(timesheet.IssueCeilingViolation), check.Report.Issues[0].Kind)

	resp, body = f.do(t, http.MethodGet, "/api/researchers/r-drift/months/2025/6", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "inconsistent")

	resp, _ = f.do(t, http.MethodPost, "/api/researchers/r-drift/months/2025/6/regenerate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ok, err := f.handler.Assembler.Checker().IsConsistent(context.Background(), "r-drift", 2025, time.June)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMonth_InvalidParams(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{
		"/api/researchers/r-1/months/2025/13",
		"/api/researchers/r-1/months/year/6",
		"/api/researchers/r-1/months/0/6/consistency",
	} {
		resp, _ := f.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestMonth_UnknownResearcherIsEmpty(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/researchers/nobody/months/2025/6", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var view monthJSON
	require.NoError(t, json.Unmarshal(body, &view))
	require.Len(t, view.Projects, 1)
	assert.True(t, view.Projects[0].Internal)
	assert.Zero(t, view.Total)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidays_CRUD(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodPost, "/api/holidays", api.CreateHolidayRequest{
		Date: "1970-12-25", Name: "Christmas", Recurring: true,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var created api.HolidayDTO
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, f.store.IsHoliday(generic.NewTimePoint(2025, time.December, 25)))

	resp, body = f.do(t, http.MethodGet, "/api/holidays", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Holidays []api.HolidayDTO `json:"holidays"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Holidays, 1)
	assert.Equal(t, created.ID, list.Holidays[0].ID)

	resp, _ = f.do(t, http.MethodDelete, "/api/holidays/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = f.do(t, http.MethodDelete, "/api/holidays/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHolidays_CreateValidation(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPost, "/api/holidays", api.CreateHolidayRequest{Date: "25/12/2025", Name: "Christmas"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/holidays", api.CreateHolidayRequest{Date: "2025-12-25"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/holidays", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHolidays_ImportICS(t *testing.T) {
	f := newFixture(t)
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//holidays//EN",
		"BEGIN:VEVENT",
		"UID:labour@test",
		"DTSTAMP:20250101T000000Z",
		"DTSTART;VALUE=DATE:20250501",
		"DTEND;VALUE=DATE:20250502",
		"SUMMARY:Labour Day",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	resp, body := f.do(t, http.MethodPost, "/api/holidays/import?year=2025", ics)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"imported": 1}`, string(body))
	assert.True(t, f.store.IsHoliday(generic.NewTimePoint(2025, time.May, 1)))

	resp, _ = f.do(t, http.MethodPost, "/api/holidays/import?year=soon", ics)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestAttendance_ImportWorkbook(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	require.NoError(t, attendance.WriteWorkbook(&buf, "June", []timesheet.WorkDay{
		{Researcher: "r-1", Date: generic.NewTimePoint(2025, time.June, 2), Hours: generic.FullDay},
		{Researcher: "r-1", Date: generic.NewTimePoint(2025, time.June, 3), Hours: generic.HalfDay},
	}))

	resp, body := f.do(t, http.MethodPost, "/api/attendance/import?sheet=June", buf.Bytes())
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"imported": 2}`, string(body))

	wd, err := f.store.WorkDay(context.Background(), "r-1", generic.NewTimePoint(2025, time.June, 3))
	require.NoError(t, err)
	assert.Equal(t, "3.6", wd.Hours.String())

	resp, _ = f.do(t, http.MethodPost, "/api/attendance/import", []byte("not a workbook"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// SWEEPS, SCENARIOS, METRICS
// =============================================================================

func TestSweeps_RunAndList(t *testing.T) {
	// GIVEN: The over-allocated scenario and a sweep pinned to June 2025
	// WHEN: Running the sweep through the API
	// THEN: The drifted researcher is reported and the run is listed

	f := newFixture(t)
	f.seed(t, "over-allocated")
	f.seed(t, "horizon-researcher")

	sweep := api.NewConsistencySweep(f.store, f.handler.Assembler.Checker(), nil)
	sweep.Now = func() time.Time { return time.Date(2025, time.June, 30, 18, 0, 0, 0, time.UTC) }
	f.handler.Sweep = sweep

	resp, body := f.do(t, http.MethodPost, "/api/sweeps/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var run api.SweepRunDTO
	require.NoError(t, json.Unmarshal(body, &run))
	assert.Equal(t, "2025-06", run.Month)
	assert.Equal(t, 2, run.Researchers)
	assert.ElementsMatch(t, []string{"r-demo", "r-drift"}, run.Inconsistent)

	resp, body = f.do(t, http.MethodGet, "/api/sweeps?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Runs []api.SweepRunDTO `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, run.ID, list.Runs[0].ID)

	resp, _ = f.do(t, http.MethodGet, "/api/sweeps?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSweeps_NotConfigured(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(t, http.MethodPost, "/api/sweeps/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScenarios_ListAndUnknown(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []api.ScenarioDTO
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, len(api.Scenarios()))

	resp, _ = f.do(t, http.MethodPost, "/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope", Year: 2025, Month: 6})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetrics_Endpoint(t *testing.T) {
	store := memory.New()
	m := metrics.New(nil)
	h := api.NewHandler(store, nil)
	h.Assembler.Recorder = m
	h.Metrics = m.Handler()
	srv := httptest.NewServer(api.NewRouter(h, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/researchers/r-1/months/2025/6")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), fmt.Sprintf("timesheet_month_builds_total{modified=%q} 1", "false"))
}
