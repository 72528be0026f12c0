package timesheet

import (
	"context"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// COLLABORATORS - What the core reads and writes
// =============================================================================

// AttendanceStore supplies imported attendance.
type AttendanceStore interface {
	// WorkDay returns the attendance of a researcher on date.
	// Returns ErrNoWorkDay if the day was never imported.
	WorkDay(ctx context.Context, researcher ResearcherID, date generic.TimePoint) (WorkDay, error)
}

// CommitmentRegistry supplies reporting periods, monthly targets and
// work-package splits.
type CommitmentRegistry interface {
	// Commitments returns the commitments of researcher overlapping period,
	// ordered by project name, then period start.
	Commitments(ctx context.Context, researcher ResearcherID, period generic.Period) ([]Commitment, error)

	// MonthlyTarget returns the target hours of a commitment for a month.
	// Returns ErrNoTarget when no target was set.
	MonthlyTarget(ctx context.Context, commitment CommitmentID, year int, month time.Month) (generic.Hours, error)

	// WorkPackageShares returns the split of a commitment, empty when unsplit.
	WorkPackageShares(ctx context.Context, commitment CommitmentID) ([]WorkPackageShare, error)
}

// AllocationStore persists the output of the allocator.
type AllocationStore interface {
	// Allocations returns the rows of key in the month.
	Allocations(ctx context.Context, key AllocationKey, year int, month time.Month) ([]Allocation, error)

	// ReplaceAllocations atomically swaps the rows of key in the month for rows.
	// A concurrent reader sees either the old set or the new one, never a mix.
	ReplaceAllocations(ctx context.Context, key AllocationKey, year int, month time.Month, rows []Allocation) error
}

// MissionStore supplies day-level mission attributions.
type MissionStore interface {
	ReportedMissions(ctx context.Context, researcher ResearcherID, year int, month time.Month) ([]ReportedMission, error)
}

// Recorder receives engine outcomes. metrics.Metrics implements it.
type Recorder interface {
	AllocationDone(regenerated bool, err error)
	ConsistencyChecked(consistent bool)
	MonthBuilt(modified bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) AllocationDone(bool, error)     {}
func (nopRecorder) ConsistencyChecked(bool)        {}
func (nopRecorder) MonthBuilt(bool, time.Duration) {}

// ResearcherLister enumerates researchers for the consistency sweep.
type ResearcherLister interface {
	// Researchers returns the researchers with a commitment overlapping period.
	Researchers(ctx context.Context, period generic.Period) ([]ResearcherID, error)
}

// SweepRun records one pass of the periodic consistency sweep.
type SweepRun struct {
	ID           string         `json:"id"`
	StartedAt    time.Time      `json:"started_at"`
	Year         int            `json:"year"`
	Month        time.Month     `json:"month"`
	Researchers  int            `json:"researchers"`
	Inconsistent []ResearcherID `json:"inconsistent"`
	Failed       int            `json:"failed"`
}

// SweepLog persists sweep runs.
type SweepLog interface {
	SaveSweepRun(ctx context.Context, run SweepRun) error
	// SweepRuns returns the latest runs, newest first.
	SweepRuns(ctx context.Context, limit int) ([]SweepRun, error)
}
