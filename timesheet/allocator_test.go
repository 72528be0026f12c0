package timesheet_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const (
	testYear  = 2025
	testMonth = time.June // 30 days, June 1 is a Sunday
)

func hrs(s string) generic.Hours { return generic.NewHoursFromString(s) }

func seededAllocator(seed int64) *timesheet.Allocator {
	return timesheet.NewAllocator(rand.NewSource(seed))
}

// dayHours builds day hours of the test month from day -> hours.
func dayHours(values map[int]string) timesheet.DayHours {
	days := timesheet.NewDayHours(testYear, testMonth)
	for d, v := range values {
		days.Set(d, hrs(v))
	}
	return days
}

// weekdaysOf gives every weekday of the test month the same hours.
func weekdaysOf(v string) timesheet.DayHours {
	days := timesheet.NewDayHours(testYear, testMonth)
	for d := 1; d <= len(days); d++ {
		if !generic.NewTimePoint(testYear, testMonth, d).IsWeekend() {
			days.Set(d, hrs(v))
		}
	}
	return days
}

func wholeYear(id string, quantum bool) timesheet.Commitment {
	return timesheet.Commitment{
		ID:          timesheet.CommitmentID(id),
		Researcher:  "r-1",
		Project:     timesheet.ProjectID("p-" + id),
		ProjectName: "Project " + id,
		Period: generic.Period{
			Start: generic.NewTimePoint(testYear, time.January, 1),
			End:   generic.NewTimePoint(testYear, time.December, 31),
		},
		HalfDayQuantum: quantum,
	}
}

func request(c timesheet.Commitment, target string, existing timesheet.DayHours) timesheet.AllocationRequest {
	return timesheet.AllocationRequest{
		Researcher: c.Researcher,
		Key:        timesheet.AllocationKey{Commitment: c.ID},
		Commitment: c,
		Year:       testYear,
		Month:      testMonth,
		Target:     hrs(target),
		Existing:   existing,
	}
}

func nonZeroDays(days timesheet.DayHours) []int {
	var out []int
	for d := 1; d <= len(days); d++ {
		if days.At(d).IsPositive() {
			out = append(out, d)
		}
	}
	return out
}

func requireReportingError(t *testing.T, err error, target error) {
	t.Helper()
	require.Error(t, err)
	var re *timesheet.ReportingError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, target)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAllocate_SingleAvailableDay_TakesAllHours(t *testing.T) {
	// GIVEN: 7.2h available on day 10 only
	// WHEN: A commitment targets 7.2h
	// THEN: All 7.2h land on day 10

	pool := timesheet.NewPool(testYear, testMonth, dayHours(map[int]string{10: "7.2"}))
	res, err := seededAllocator(1).Allocate(request(wholeYear("c1", false), "7.2", nil), pool)

	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, "7.2", res.Days.At(10).String())
	assert.Equal(t, []int{10}, nonZeroDays(res.Days))
	assert.True(t, res.Days.Total().ApproxEqual(hrs("7.2")))
	assert.True(t, pool.Available(10).IsZero())
}

func TestAllocate_HalfDayQuantum_ThreeDistinctDays(t *testing.T) {
	// GIVEN: 5 days with a full day free each
	// WHEN: A half-day commitment targets 10.8h
	// THEN: Exactly 3 distinct days receive exactly 3.6h

	pool := timesheet.NewPool(testYear, testMonth, dayHours(map[int]string{
		2: "7.2", 3: "7.2", 4: "7.2", 5: "7.2", 6: "7.2",
	}))
	res, err := seededAllocator(7).Allocate(request(wholeYear("eu", true), "10.8", nil), pool)

	require.NoError(t, err)
	days := nonZeroDays(res.Days)
	require.Len(t, days, 3)
	for _, d := range days {
		assert.Equal(t, "3.6", res.Days.At(d).String(), "day %d", d)
	}
}

func TestAllocate_HalfDayQuantum_NotMultiple_Fails(t *testing.T) {
	// GIVEN: Plenty of free days
	// WHEN: A half-day commitment targets 5.0h
	// THEN: ReportingError wrapping ErrNotHalfDayMultiple, pool untouched

	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))
	before := pool.Remaining()

	_, err := seededAllocator(1).Allocate(request(wholeYear("eu", true), "5.0", nil), pool)

	requireReportingError(t, err, timesheet.ErrNotHalfDayMultiple)
	assert.Equal(t, before, pool.Remaining())
}

func TestAllocate_CompetingCommitments_NeverExceedDay(t *testing.T) {
	// GIVEN: One day with 4h
	// WHEN: Two commitments target 3h each, processed in order
	// THEN: The first gets 3h, the second fails and the day holds 3h total

	pool := timesheet.NewPool(testYear, testMonth, dayHours(map[int]string{12: "4"}))
	alloc := seededAllocator(3)

	first, err := alloc.Allocate(request(wholeYear("a", false), "3", nil), pool)
	require.NoError(t, err)
	assert.Equal(t, "3.0", first.Days.At(12).String())

	second, err := alloc.Allocate(request(wholeYear("b", false), "3", nil), pool)
	requireReportingError(t, err, timesheet.ErrNoDaysAvailable)

	total := first.Days.At(12)
	if second.Days != nil {
		total = total.Add(second.Days.At(12))
	}
	assert.False(t, total.GreaterThan(hrs("4")))
	assert.Equal(t, "1.0", pool.Available(12).String(), "failed allocation gives the pool back")
}

func TestAllocate_NoFeasibleDay_AlwaysRaises(t *testing.T) {
	// GIVEN: A month without any available hour
	// WHEN: A commitment targets 7.2h
	// THEN: ReportingError, never a silent no-op

	pool := timesheet.NewPool(testYear, testMonth, nil)
	_, err := seededAllocator(1).Allocate(request(wholeYear("c1", false), "7.2", nil), pool)
	requireReportingError(t, err, timesheet.ErrNoDaysAvailable)
}

func TestAllocate_PeriodOutsideMonth_Fails(t *testing.T) {
	c := wholeYear("c1", false)
	c.Period = generic.Period{
		Start: generic.NewTimePoint(testYear, time.August, 1),
		End:   generic.NewTimePoint(testYear, time.December, 31),
	}
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	_, err := seededAllocator(1).Allocate(request(c, "7.2", nil), pool)
	requireReportingError(t, err, timesheet.ErrNoDaysAvailable)
}

func TestAllocate_ClipsToCommitmentPeriod(t *testing.T) {
	// GIVEN: A commitment starting mid-month
	// WHEN: Allocating 30h
	// THEN: No hour lands before the start

	c := wholeYear("c1", false)
	c.Period.Start = generic.NewTimePoint(testYear, testMonth, 16)
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	res, err := seededAllocator(5).Allocate(request(c, "30", nil), pool)

	require.NoError(t, err)
	for _, d := range nonZeroDays(res.Days) {
		assert.GreaterOrEqual(t, d, 16)
	}
	assert.True(t, res.Days.Total().ApproxEqual(hrs("30")))
}

// =============================================================================
// EXISTING ALLOCATIONS
// =============================================================================

func TestAllocate_Idempotent(t *testing.T) {
	// GIVEN: A first allocation of 42.5h
	// WHEN: Allocating again with the same target and the result as existing rows
	// THEN: Output is identical and Regenerated is false

	c := wholeYear("c1", false)
	alloc := seededAllocator(11)

	first, err := alloc.Allocate(request(c, "42.5", nil), timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2")))
	require.NoError(t, err)
	require.True(t, first.Regenerated)

	second, err := alloc.Allocate(request(c, "42.5", first.Days), timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2")))
	require.NoError(t, err)
	assert.False(t, second.Regenerated)
	assert.Equal(t, first.Days, second.Days)
}

func TestAllocate_LowerTarget_GivesBackLargestFirst(t *testing.T) {
	existing := dayHours(map[int]string{2: "5", 3: "2", 4: "1"})
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	res, err := seededAllocator(1).Allocate(request(wholeYear("c1", false), "4", existing), pool)

	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, "1.0", res.Days.At(2).String())
	assert.Equal(t, "2.0", res.Days.At(3).String())
	assert.Equal(t, "1.0", res.Days.At(4).String())
	assert.Equal(t, "6.2", pool.Available(2).String())
}

func TestAllocate_HalfDayQuantum_RemovesUnits(t *testing.T) {
	existing := dayHours(map[int]string{2: "3.6", 3: "7.2"})
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	res, err := seededAllocator(1).Allocate(request(wholeYear("eu", true), "3.6", existing), pool)

	require.NoError(t, err)
	assert.True(t, res.Days.Total().ApproxEqual(hrs("3.6")))
	for _, d := range nonZeroDays(res.Days) {
		assert.True(t, res.Days.At(d).IsMultipleOf(generic.HalfDay))
	}
}

func TestAllocate_ExistingAboveAvailable_IsStale(t *testing.T) {
	// GIVEN: 7.2h persisted on a day that now only offers 3.6h
	// WHEN: Allocating
	// THEN: ErrStaleAllocation

	existing := dayHours(map[int]string{2: "7.2"})
	pool := timesheet.NewPool(testYear, testMonth, dayHours(map[int]string{2: "3.6", 3: "7.2"}))

	_, err := seededAllocator(1).Allocate(request(wholeYear("c1", false), "7.2", existing), pool)
	requireReportingError(t, err, timesheet.ErrStaleAllocation)
	assert.Equal(t, "3.6", pool.Available(2).String())
}

func TestAllocate_Reserved_DoesNotClaimExistingTwice(t *testing.T) {
	// GIVEN: 3.6h persisted on day 2, already claimed from the pool
	// WHEN: Allocating the same target with Reserved set
	// THEN: The pool is untouched and the rows are kept

	existing := dayHours(map[int]string{2: "3.6"})
	pool := timesheet.NewPool(testYear, testMonth, dayHours(map[int]string{2: "3.6"}))

	req := request(wholeYear("c1", false), "3.6", existing)
	req.Reserved = true
	res, err := seededAllocator(1).Allocate(req, pool)

	require.NoError(t, err)
	assert.False(t, res.Regenerated)
	assert.Equal(t, "3.6", res.Days.At(2).String())
	assert.Equal(t, "3.6", pool.Available(2).String())
}

func TestAllocate_RowsOutsidePeriod_AreDropped(t *testing.T) {
	// GIVEN: A commitment now starting on day 16 with 7.2h persisted on day 2
	// WHEN: Allocating the same 7.2h target
	// THEN: Day 2 is released and the hours move inside the period

	c := wholeYear("c1", false)
	c.Period.Start = generic.NewTimePoint(testYear, testMonth, 16)
	existing := dayHours(map[int]string{2: "7.2"})
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	res, err := seededAllocator(3).Allocate(request(c, "7.2", existing), pool)

	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Equal(t, "0.0", res.Days.At(2).String())
	assert.Equal(t, "7.2", pool.Available(2).String())
	for _, d := range nonZeroDays(res.Days) {
		assert.GreaterOrEqual(t, d, 16)
	}
	assert.True(t, res.Days.Total().ApproxEqual(hrs("7.2")))
}

func TestAllocate_RowsOutsidePeriod_ZeroTarget_Regenerated(t *testing.T) {
	c := wholeYear("c1", false)
	c.Period.Start = generic.NewTimePoint(testYear, testMonth, 16)
	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))

	res, err := seededAllocator(1).Allocate(request(c, "0", dayHours(map[int]string{3: "2"})), pool)

	require.NoError(t, err)
	assert.True(t, res.Regenerated)
	assert.Empty(t, nonZeroDays(res.Days))
}

func TestAllocate_WrongMonthPool_Fails(t *testing.T) {
	pool := timesheet.NewPool(testYear, time.July, nil)
	_, err := seededAllocator(1).Allocate(request(wholeYear("c1", false), "1", nil), pool)
	requireReportingError(t, err, generic.ErrInvalidMonth)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestAllocate_ConservationAndCeiling(t *testing.T) {
	// GIVEN: Weekdays with 7.2h, Wednesdays with only 3.6h
	// WHEN: Allocating a range of targets under many seeds
	// THEN: The sum equals the target and no day exceeds its seed

	seed := weekdaysOf("7.2")
	for d := 1; d <= len(seed); d++ {
		if generic.NewTimePoint(testYear, testMonth, d).Weekday() == time.Wednesday {
			seed.Set(d, hrs("3.6"))
		}
	}
	targets := []string{"0.3", "1", "5.5", "7.2", "37.3", "100.1", seed.Total().String()}

	for s := int64(1); s <= 40; s++ {
		for _, target := range targets {
			pool := timesheet.NewPool(testYear, testMonth, seed)
			res, err := seededAllocator(s).Allocate(request(wholeYear("c1", false), target, nil), pool)
			require.NoError(t, err, "seed %d target %s", s, target)

			assert.True(t, res.Days.Total().ApproxEqual(hrs(target)), "seed %d target %s: got %s", s, target, res.Days.Total())
			for d := 1; d <= len(seed); d++ {
				assert.False(t, res.Days.At(d).GreaterThan(seed.At(d)), "seed %d day %d", s, d)
				assert.False(t, pool.Available(d).IsNegative(), "seed %d day %d", s, d)
			}
		}
	}
}

func TestAllocate_HalfDayQuantum_EveryDayIsMultiple(t *testing.T) {
	for s := int64(1); s <= 40; s++ {
		for _, target := range []string{"3.6", "10.8", "36", "75.6"} {
			pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))
			res, err := seededAllocator(s).Allocate(request(wholeYear("eu", true), target, nil), pool)
			require.NoError(t, err)

			assert.True(t, res.Days.Total().ApproxEqual(hrs(target)))
			for _, d := range nonZeroDays(res.Days) {
				assert.True(t, res.Days.At(d).IsMultipleOf(generic.HalfDay), "seed %d day %d: %s", s, d, res.Days.At(d))
			}
		}
	}
}

func TestAllocate_SameSeed_SameOutput(t *testing.T) {
	run := func() timesheet.DayHours {
		pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))
		res, err := seededAllocator(99).Allocate(request(wholeYear("c1", false), "50", nil), pool)
		require.NoError(t, err)
		return res.Days
	}
	assert.Equal(t, run(), run())
}

func TestAllocate_SpreadsInsteadOfPacking(t *testing.T) {
	// GIVEN: 21 weekdays with a full day free
	// WHEN: Allocating 36h
	// THEN: No day holds more than a half day

	pool := timesheet.NewPool(testYear, testMonth, weekdaysOf("7.2"))
	res, err := seededAllocator(4).Allocate(request(wholeYear("c1", false), "36", nil), pool)

	require.NoError(t, err)
	for d := 1; d <= len(res.Days); d++ {
		assert.False(t, res.Days.At(d).GreaterThan(generic.HalfDay), "day %d holds %s", d, res.Days.At(d))
	}
}
