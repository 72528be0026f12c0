package timesheet_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/store/memory"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fixture is a researcher working 7.2h every weekday of the test month.
type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Memory
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{t: t, ctx: context.Background(), store: memory.New()}
	for d := 1; d <= generic.DaysInMonth(testYear, testMonth); d++ {
		date := generic.NewTimePoint(testYear, testMonth, d)
		h := "7.2"
		if date.IsWeekend() {
			h = "0"
		}
		f.workday(d, h, timesheet.AbsenceNone)
	}
	return f
}

func (f *fixture) workday(day int, hours string, code timesheet.AbsenceCode) {
	require.NoError(f.t, f.store.SaveWorkDay(f.ctx, timesheet.WorkDay{
		Researcher: "r-1",
		Date:       generic.NewTimePoint(testYear, testMonth, day),
		Hours:      hrs(hours),
		Code:       code,
	}))
}

func (f *fixture) commitment(c timesheet.Commitment, target string) timesheet.Commitment {
	require.NoError(f.t, f.store.SaveCommitment(f.ctx, c))
	if target != "" {
		require.NoError(f.t, f.store.SetMonthlyTarget(f.ctx, c.ID, testYear, testMonth, hrs(target)))
	}
	return c
}

func (f *fixture) persist(key timesheet.AllocationKey, values map[int]string) {
	rows := dayHours(values).Allocations(key, testYear, testMonth)
	require.NoError(f.t, f.store.ReplaceAllocations(f.ctx, key, testYear, testMonth, rows))
}

func (f *fixture) checker() *timesheet.Checker {
	return &timesheet.Checker{Attendance: f.store, Commitments: f.store, Allocations: f.store}
}

func issueKinds(r *timesheet.Report) []timesheet.IssueKind {
	var out []timesheet.IssueKind
	for _, is := range r.Issues {
		out = append(out, is.Kind)
	}
	return out
}

// =============================================================================
// CONSISTENCY TESTS
// =============================================================================

func TestChecker_SumBelowTarget_Inconsistent(t *testing.T) {
	// GIVEN: Persisted rows summing to 8h for a 10h target
	// WHEN: Checking the month
	// THEN: Not consistent, one target mismatch

	f := newFixture(t)
	c := f.commitment(wholeYear("c1", false), "10")
	f.persist(timesheet.AllocationKey{Commitment: c.ID}, map[int]string{2: "4", 3: "4"})

	ok, err := f.checker().IsConsistent(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	assert.False(t, ok)

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, timesheet.IssueTargetMismatch, report.Issues[0].Kind)
	assert.Equal(t, "10.0", report.Issues[0].Expected.String())
	assert.Equal(t, "8.0", report.Issues[0].Actual.String())
}

func TestChecker_MatchingRows_Consistent(t *testing.T) {
	f := newFixture(t)
	c := f.commitment(wholeYear("c1", false), "10")
	f.persist(timesheet.AllocationKey{Commitment: c.ID}, map[int]string{2: "6", 3: "4"})

	ok, err := f.checker().IsConsistent(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChecker_TargetWithoutRows_MissingAllocation(t *testing.T) {
	f := newFixture(t)
	f.commitment(wholeYear("c1", false), "10")

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	assert.Equal(t, []timesheet.IssueKind{timesheet.IssueMissingAllocation}, issueKinds(report))
}

func TestChecker_ZeroTargetNoRows_Consistent(t *testing.T) {
	f := newFixture(t)
	f.commitment(wholeYear("c1", false), "0")
	f.commitment(wholeYear("c2", false), "")

	ok, err := f.checker().IsConsistent(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChecker_DayOverAllocated_CeilingViolation(t *testing.T) {
	// GIVEN: Two commitments each holding 5h on a 7.2h day
	// WHEN: Checking
	// THEN: Targets match but day 2 is over its ceiling

	f := newFixture(t)
	a := f.commitment(wholeYear("a", false), "5")
	b := f.commitment(wholeYear("b", false), "5")
	f.persist(timesheet.AllocationKey{Commitment: a.ID}, map[int]string{2: "5"})
	f.persist(timesheet.AllocationKey{Commitment: b.ID}, map[int]string{2: "5"})

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	require.Equal(t, []timesheet.IssueKind{timesheet.IssueCeilingViolation}, issueKinds(report))
	assert.Equal(t, 2, report.Issues[0].Day)
	assert.True(t, report.HasCeilingViolations())
}

func TestChecker_AbsenceDay_HasNoCeiling(t *testing.T) {
	// GIVEN: Rows on a day later marked as illness
	// WHEN: Checking
	// THEN: Ceiling violation (absence days offer no hours)

	f := newFixture(t)
	c := f.commitment(wholeYear("c1", false), "3")
	f.persist(timesheet.AllocationKey{Commitment: c.ID}, map[int]string{4: "3"})
	f.workday(4, "7.2", timesheet.AbsenceIllness)

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	assert.Equal(t, []timesheet.IssueKind{timesheet.IssueCeilingViolation}, issueKinds(report))
}

func TestChecker_WorkPackageSplit_ChecksEachPackage(t *testing.T) {
	// GIVEN: 20h split 3:1 over two work packages, WP2 rows sum to 4h
	// WHEN: Checking
	// THEN: Only WP2 mismatches (expected 5h)

	f := newFixture(t)
	c := f.commitment(wholeYear("c1", false), "20")
	require.NoError(t, f.store.SetWorkPackageShares(f.ctx, c.ID, []timesheet.WorkPackageShare{
		{WorkPackage: "wp1", Name: "WP1", Fraction: 3},
		{WorkPackage: "wp2", Name: "WP2", Fraction: 1},
	}))
	f.persist(timesheet.AllocationKey{Commitment: c.ID, WorkPackage: "wp1"}, map[int]string{2: "7.2", 3: "7.2", 4: "0.6"})
	f.persist(timesheet.AllocationKey{Commitment: c.ID, WorkPackage: "wp2"}, map[int]string{5: "4"})

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, timesheet.WorkPackageID("wp2"), report.Issues[0].WorkPackage)
	assert.Equal(t, "5.0", report.Issues[0].Expected.String())
}

func TestChecker_RowsOutsidePeriod(t *testing.T) {
	// GIVEN: A commitment now starting on day 16 whose rows still sit on day 2
	// WHEN: Checking
	// THEN: The target matches but the rows outside the period are reported

	f := newFixture(t)
	c := wholeYear("c1", false)
	c.Period.Start = generic.NewTimePoint(testYear, testMonth, 16)
	f.commitment(c, "10")
	f.persist(timesheet.AllocationKey{Commitment: c.ID}, map[int]string{2: "4", 17: "6"})

	report, err := f.checker().Check(f.ctx, "r-1", testYear, testMonth)
	require.NoError(t, err)
	require.Equal(t, []timesheet.IssueKind{timesheet.IssueOutsidePeriod}, issueKinds(report))
	assert.Equal(t, 2, report.Issues[0].Day)
	assert.Equal(t, "4.0", report.Issues[0].Actual.String())
	assert.False(t, report.HasCeilingViolations())
}

func TestChecker_InvalidMonth(t *testing.T) {
	f := newFixture(t)
	_, err := f.checker().Check(f.ctx, "r-1", testYear, time.Month(13))
	assert.ErrorIs(t, err, generic.ErrInvalidMonth)
}

func TestNormalizeShares(t *testing.T) {
	got := timesheet.NormalizeShares([]timesheet.WorkPackageShare{{Fraction: 1}, {Fraction: 3}})
	assert.Equal(t, "0.25", got[0].String())
	assert.Equal(t, "0.75", got[1].String())

	even := timesheet.NormalizeShares([]timesheet.WorkPackageShare{{}, {}})
	assert.Equal(t, "0.5", even[0].String())
}
