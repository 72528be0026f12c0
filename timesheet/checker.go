package timesheet

import (
	"context"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// CONSISTENCY CHECKER - Persisted allocations vs current targets
// =============================================================================

// IssueKind classifies a consistency issue.
type IssueKind string

const (
	// IssueTargetMismatch: the rows of a key do not sum to its target.
	IssueTargetMismatch IssueKind = "target_mismatch"

	// IssueMissingAllocation: a key has a target but no persisted row.
	IssueMissingAllocation IssueKind = "missing_allocation"

	// IssueCeilingViolation: the rows of all keys on one day exceed what the
	// researcher has available that day.
	IssueCeilingViolation IssueKind = "ceiling_violation"

	// IssueOutsidePeriod: a key holds rows on days its reporting period no
	// longer covers. Day is the first such day, Actual their sum.
	IssueOutsidePeriod IssueKind = "outside_period"
)

// Issue is one finding of a consistency check.
type Issue struct {
	Kind        IssueKind     `json:"kind"`
	Commitment  CommitmentID  `json:"commitment,omitempty"`
	WorkPackage WorkPackageID `json:"work_package,omitempty"`
	Day         int           `json:"day,omitempty"`
	Expected    generic.Hours `json:"expected"`
	Actual      generic.Hours `json:"actual"`
}

// Report is the result of checking one researcher month.
type Report struct {
	Researcher ResearcherID `json:"researcher"`
	Year       int          `json:"year"`
	Month      time.Month   `json:"month"`
	Issues     []Issue      `json:"issues"`
}

// OK returns true when no issue was found.
func (r *Report) OK() bool { return len(r.Issues) == 0 }

// HasCeilingViolations returns true if any day is over-allocated.
func (r *Report) HasCeilingViolations() bool {
	for _, is := range r.Issues {
		if is.Kind == IssueCeilingViolation {
			return true
		}
	}
	return false
}

// Checker compares persisted allocations against current targets and
// attendance. It never writes.
type Checker struct {
	Attendance  AttendanceStore
	Commitments CommitmentRegistry
	Allocations AllocationStore
	Recorder    Recorder
}

// Check returns every issue of the month. A missing WorkDay counts as a day
// with no hours available.
func (c *Checker) Check(ctx context.Context, researcher ResearcherID, year int, month time.Month) (*Report, error) {
	if err := generic.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	plan, err := loadPlan(ctx, c.Commitments, c.Allocations, researcher, year, month)
	if err != nil {
		return nil, err
	}
	att, err := loadAttendance(ctx, c.Attendance, researcher, year, month)
	if err != nil {
		return nil, err
	}

	report := evaluate(plan, att.Ceilings())
	c.recorder().ConsistencyChecked(report.OK())
	return report, nil
}

// IsConsistent returns true only if every check passes.
func (c *Checker) IsConsistent(ctx context.Context, researcher ResearcherID, year int, month time.Month) (bool, error) {
	report, err := c.Check(ctx, researcher, year, month)
	if err != nil {
		return false, err
	}
	return report.OK(), nil
}

func (c *Checker) recorder() Recorder {
	if c.Recorder == nil {
		return nopRecorder{}
	}
	return c.Recorder
}

// evaluate runs the checks on an already loaded plan.
func evaluate(plan *monthPlan, ceilings DayHours) *Report {
	report := &Report{Researcher: plan.Researcher, Year: plan.Year, Month: plan.Month, Issues: []Issue{}}

	used := NewDayHours(plan.Year, plan.Month)
	for _, item := range plan.Items {
		used.AddAll(item.Existing)

		actual := item.Existing.Total().Round()
		switch {
		case item.Target.IsPositive() && !item.HasRows:
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueMissingAllocation,
				Commitment:  item.Key.Commitment,
				WorkPackage: item.Key.WorkPackage,
				Expected:    item.Target,
				Actual:      actual,
			})
		case !actual.ApproxEqual(item.Target):
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueTargetMismatch,
				Commitment:  item.Key.Commitment,
				WorkPackage: item.Key.WorkPackage,
				Expected:    item.Target,
				Actual:      actual,
			})
		}

		if day, outside := outsidePeriod(item, plan.Year, plan.Month); outside.IsPositive() {
			report.Issues = append(report.Issues, Issue{
				Kind:        IssueOutsidePeriod,
				Commitment:  item.Key.Commitment,
				WorkPackage: item.Key.WorkPackage,
				Day:         day,
				Expected:    generic.ZeroHours(),
				Actual:      outside.Round(),
			})
		}
	}

	for d := 1; d <= len(used); d++ {
		u := used.At(d).Round()
		ceiling := ceilings.At(d)
		if u.Sub(ceiling).Value.GreaterThan(generic.Tolerance) {
			report.Issues = append(report.Issues, Issue{
				Kind:     IssueCeilingViolation,
				Day:      d,
				Expected: ceiling,
				Actual:   u,
			})
		}
	}
	return report
}

// outsidePeriod returns the first day and the sum of the rows of item that
// fall outside its commitment's period.
func outsidePeriod(item planItem, year int, month time.Month) (int, generic.Hours) {
	first, last, ok := item.Commitment.Period.DayRange(year, month)
	firstDay, sum := 0, generic.ZeroHours()
	for d := 1; d <= len(item.Existing); d++ {
		h := item.Existing.At(d)
		if !h.IsPositive() || (ok && d >= first && d <= last) {
			continue
		}
		if firstDay == 0 {
			firstDay = d
		}
		sum = sum.Add(h)
	}
	return firstDay, sum
}
