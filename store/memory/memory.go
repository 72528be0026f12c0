// Package memory provides an in-memory implementation of every store the
// timesheet engine reads and writes. It backs the tests and the demo server.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	workdays    map[dayKey]timesheet.WorkDay
	commitments map[timesheet.CommitmentID]timesheet.Commitment
	targets     map[targetKey]generic.Hours
	shares      map[timesheet.CommitmentID][]timesheet.WorkPackageShare
	allocations map[allocKey][]timesheet.Allocation
	missions    []timesheet.ReportedMission
	holidays    map[string]generic.Holiday
	sweeps      []timesheet.SweepRun
}

type dayKey struct {
	Researcher timesheet.ResearcherID
	Date       string
}

type targetKey struct {
	Commitment timesheet.CommitmentID
	Year       int
	Month      time.Month
}

type allocKey struct {
	Key   timesheet.AllocationKey
	Year  int
	Month time.Month
}

func New() *Memory {
	return &Memory{
		workdays:    make(map[dayKey]timesheet.WorkDay),
		commitments: make(map[timesheet.CommitmentID]timesheet.Commitment),
		targets:     make(map[targetKey]generic.Hours),
		shares:      make(map[timesheet.CommitmentID][]timesheet.WorkPackageShare),
		allocations: make(map[allocKey][]timesheet.Allocation),
		holidays:    make(map[string]generic.Holiday),
	}
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) SaveWorkDay(_ context.Context, wd timesheet.WorkDay) error {
	if wd.Hours.IsNegative() {
		return fmt.Errorf("workday %s: negative hours %s", wd.Date, wd.Hours)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workdays[dayKey{wd.Researcher, wd.Date.String()}] = wd
	return nil
}

func (m *Memory) SaveWorkDays(ctx context.Context, wds []timesheet.WorkDay) error {
	for _, wd := range wds {
		if err := m.SaveWorkDay(ctx, wd); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) WorkDay(_ context.Context, researcher timesheet.ResearcherID, date generic.TimePoint) (timesheet.WorkDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wd, ok := m.workdays[dayKey{researcher, date.String()}]
	if !ok {
		return timesheet.WorkDay{}, timesheet.ErrNoWorkDay
	}
	return wd, nil
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// SaveCommitment inserts or replaces a commitment. Periods of the same
// researcher and project must not overlap.
func (m *Memory) SaveCommitment(_ context.Context, c timesheet.Commitment) error {
	if err := c.Period.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, other := range m.commitments {
		if id != c.ID && other.Researcher == c.Researcher && other.Project == c.Project && other.Period.Overlaps(c.Period) {
			return fmt.Errorf("%w: %s and %s", timesheet.ErrOverlappingCommitment, c.ID, id)
		}
	}
	m.commitments[c.ID] = c
	return nil
}

func (m *Memory) Commitments(_ context.Context, researcher timesheet.ResearcherID, period generic.Period) ([]timesheet.Commitment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []timesheet.Commitment
	for _, c := range m.commitments {
		if c.Researcher == researcher && c.Period.Overlaps(period) {
			out = append(out, c)
		}
	}
	sortCommitments(out)
	return out, nil
}

func sortCommitments(cs []timesheet.Commitment) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].ProjectName != cs[j].ProjectName {
			return cs[i].ProjectName < cs[j].ProjectName
		}
		if !cs[i].Period.Start.Equal(cs[j].Period.Start) {
			return cs[i].Period.Start.Before(cs[j].Period.Start)
		}
		return cs[i].ID < cs[j].ID
	})
}

func (m *Memory) SetMonthlyTarget(_ context.Context, commitment timesheet.CommitmentID, year int, month time.Month, hours generic.Hours) error {
	if err := generic.ValidateMonth(year, month); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commitments[commitment]; !ok {
		return fmt.Errorf("commitment %s: %w", commitment, generic.ErrNotFound)
	}
	m.targets[targetKey{commitment, year, month}] = hours
	return nil
}

func (m *Memory) MonthlyTarget(_ context.Context, commitment timesheet.CommitmentID, year int, month time.Month) (generic.Hours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.targets[targetKey{commitment, year, month}]
	if !ok {
		return generic.Hours{}, timesheet.ErrNoTarget
	}
	return h, nil
}

func (m *Memory) SetWorkPackageShares(_ context.Context, commitment timesheet.CommitmentID, shares []timesheet.WorkPackageShare) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commitments[commitment]; !ok {
		return fmt.Errorf("commitment %s: %w", commitment, generic.ErrNotFound)
	}
	m.shares[commitment] = append([]timesheet.WorkPackageShare(nil), shares...)
	return nil
}

func (m *Memory) WorkPackageShares(_ context.Context, commitment timesheet.CommitmentID) ([]timesheet.WorkPackageShare, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]timesheet.WorkPackageShare(nil), m.shares[commitment]...), nil
}

func (m *Memory) Researchers(_ context.Context, period generic.Period) ([]timesheet.ResearcherID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[timesheet.ResearcherID]bool{}
	var out []timesheet.ResearcherID
	for _, c := range m.commitments {
		if c.Period.Overlaps(period) && !seen[c.Researcher] {
			seen[c.Researcher] = true
			out = append(out, c.Researcher)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func (m *Memory) Allocations(_ context.Context, key timesheet.AllocationKey, year int, month time.Month) ([]timesheet.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows := m.allocations[allocKey{key, year, month}]
	return append([]timesheet.Allocation(nil), rows...), nil
}

// ReplaceAllocations swaps the whole row set under the write lock, so readers
// see the old set or the new one.
func (m *Memory) ReplaceAllocations(_ context.Context, key timesheet.AllocationKey, year int, month time.Month, rows []timesheet.Allocation) error {
	for _, r := range rows {
		if r.Date.Year() != year || r.Date.Month() != month {
			return fmt.Errorf("allocation of %s on %s outside %04d-%02d: %w", key, r.Date, year, int(month), generic.ErrInvalidPeriod)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := allocKey{key, year, month}
	if len(rows) == 0 {
		delete(m.allocations, k)
		return nil
	}
	m.allocations[k] = append([]timesheet.Allocation(nil), rows...)
	return nil
}

// =============================================================================
// MISSIONS
// =============================================================================

func (m *Memory) SaveMission(_ context.Context, mission timesheet.ReportedMission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.missions {
		if existing.ID == mission.ID {
			m.missions[i] = mission
			return nil
		}
	}
	m.missions = append(m.missions, mission)
	return nil
}

func (m *Memory) ReportedMissions(_ context.Context, researcher timesheet.ResearcherID, year int, month time.Month) ([]timesheet.ReportedMission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []timesheet.ReportedMission
	for _, mission := range m.missions {
		if mission.Researcher == researcher && mission.Date.Year() == year && mission.Date.Month() == month {
			out = append(out, mission)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// IsHoliday checks recurring holidays first, then one-off dates.
func (m *Memory) IsHoliday(date generic.TimePoint) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.holidays {
		if h.Recurring && h.Matches(date) {
			return true
		}
	}
	for _, h := range m.holidays {
		if !h.Recurring && h.Matches(date) {
			return true
		}
	}
	return false
}

func (m *Memory) Holidays(_ context.Context) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]generic.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		out = append(out, h)
	}
	generic.SortHolidays(out)
	return out, nil
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	if h.ID == "" {
		return fmt.Errorf("holiday without id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	delete(m.holidays, id)
	return nil
}

// =============================================================================
// SWEEP RUNS
// =============================================================================

func (m *Memory) SaveSweepRun(_ context.Context, run timesheet.SweepRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweeps = append(m.sweeps, run)
	return nil
}

func (m *Memory) SweepRuns(_ context.Context, limit int) ([]timesheet.SweepRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []timesheet.SweepRun
	for i := len(m.sweeps) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.sweeps[i])
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against the store and rolls every change back if fn fails.
// For the memory store this is simulated with a snapshot + rollback on error;
// writes of other goroutines during fn are rolled back too.
func (m *Memory) WithTx(ctx context.Context, fn func(*Memory) error) error {
	m.mu.RLock()
	snap := m.snapshot()
	m.mu.RUnlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memorySnapshot struct {
	workdays    map[dayKey]timesheet.WorkDay
	commitments map[timesheet.CommitmentID]timesheet.Commitment
	targets     map[targetKey]generic.Hours
	shares      map[timesheet.CommitmentID][]timesheet.WorkPackageShare
	allocations map[allocKey][]timesheet.Allocation
	missions    []timesheet.ReportedMission
	holidays    map[string]generic.Holiday
	sweeps      []timesheet.SweepRun
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		workdays:    copyMap(m.workdays),
		commitments: copyMap(m.commitments),
		targets:     copyMap(m.targets),
		shares:      copyMap(m.shares),
		allocations: copyMap(m.allocations),
		missions:    append([]timesheet.ReportedMission(nil), m.missions...),
		holidays:    copyMap(m.holidays),
		sweeps:      append([]timesheet.SweepRun(nil), m.sweeps...),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.workdays = s.workdays
	m.commitments = s.commitments
	m.targets = s.targets
	m.shares = s.shares
	m.allocations = s.allocations
	m.missions = s.missions
	m.holidays = s.holidays
	m.sweeps = s.sweeps
}

// copyMap copies the map; slice values are shared, which is safe because
// writers always store fresh slices.
func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
