/*
allocator.go - Day-by-day hour allocation for one commitment

PURPOSE:
  Given the target hours of a commitment for a month, place them on the days
  of the month where the researcher still has hours available. The result is
  what gets persisted as the commitment's allocation rows.

CONTRACT:
  Allocate(request, pool) -> (days, regenerated)

  1. Existing rows inside the commitment's period are seeded into the output
     and reserved in the pool, unless the caller reserved them already
     (Reserved). Rows outside the period are dropped and their hours go back
     to the pool.
  2. remaining = round(target - sum(existing)).
  3. remaining == 0 (within 0.001): existing rows are returned untouched and
     Regenerated is false, unless rows were dropped in step 1. Running twice with the same target is a no-op.
  4. Otherwise hours are added (remaining > 0) or given back (remaining < 0)
     and Regenerated is true.

HALF-DAY COMMITMENTS:
  EU Horizon style agencies accept only multiples of 3.6h per day. remaining
  must be an exact multiple of 3.6h. Each pass shuffles the eligible days and
  moves one 3.6h unit per day, so hours spread over the period instead of
  piling on its first days.

OTHER COMMITMENTS:
  Adding: days with the most free hours go first. A day with a full day free
  takes 3.6h per pass, a day with less takes about half of what it has, and
  a day is never left with less than 1h free when it could take the rest.
  Fragments under 1h are only used to close the target.
  Removing: hours are given back from the largest allocated days first.

RANDOMNESS:
  Day order comes from the Allocator's random source. Seed it for
  reproducible output; the contract is "spread, not pack", not an order.

TERMINATION:
  Every pass moves at least one unit or fails with ErrNoDaysAvailable, and the
  number of passes is capped by MaxPasses.

FAILURES:
  *ReportingError wrapping ErrNotHalfDayMultiple, ErrNoDaysAvailable or
  ErrStaleAllocation. On failure the pool is left exactly as it was lent.

SEE ALSO:
  - pool.go: the available-hours pool
  - month.go: calls Allocate once per commitment / work package
*/
package timesheet

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// DefaultMaxPasses bounds the reshuffle passes of one Allocate call.
const DefaultMaxPasses = 1024

// Allocator is the day-allocation engine. It is safe for concurrent use;
// the pool passed to Allocate is not.
type Allocator struct {
	MaxPasses int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator creates an allocator drawing day order from src.
// A nil src seeds from the clock.
func NewAllocator(src rand.Source) *Allocator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Allocator{MaxPasses: DefaultMaxPasses, rng: rand.New(src)}
}

// AllocationRequest is the input of one Allocate call.
type AllocationRequest struct {
	Researcher ResearcherID
	Key        AllocationKey
	Commitment Commitment
	Year       int
	Month      time.Month

	// Target is the number of hours the key must hold in the month.
	Target generic.Hours

	// Existing is the previously persisted allocation, nil when none.
	Existing DayHours

	// Reserved is set when Existing is already claimed from the pool.
	Reserved bool
}

// AllocationResult is the output of one Allocate call.
type AllocationResult struct {
	Days        DayHours
	Regenerated bool
}

// Allocate places req.Target hours on the days of the month, claiming them
// from pool. See the file comment for the rules.
func (a *Allocator) Allocate(req AllocationRequest, pool *Pool) (AllocationResult, error) {
	snapshot := pool.snapshot()
	fail := func(err error, reason string) (AllocationResult, error) {
		pool.restore(snapshot)
		return AllocationResult{}, &ReportingError{
			Researcher: req.Researcher,
			Key:        req.Key,
			Year:       req.Year,
			Month:      req.Month,
			Reason:     reason,
			Err:        err,
		}
	}

	if pool.Year() != req.Year || pool.Month() != req.Month {
		return fail(generic.ErrInvalidMonth, "pool belongs to another month")
	}
	target := req.Target.Round()
	if target.IsNegative() {
		return fail(ErrNoDaysAvailable, fmt.Sprintf("negative target %s", target))
	}

	first, last, inPeriod := req.Commitment.Period.DayRange(req.Year, req.Month)

	// Hours already persisted stay where they are, within the period.
	days := NewDayHours(req.Year, req.Month)
	dropped := false
	for d := 1; d <= len(days); d++ {
		if d > len(req.Existing) {
			break
		}
		h := req.Existing.At(d)
		if !h.IsPositive() {
			continue
		}
		if !inPeriod || d < first || d > last {
			dropped = true
			if req.Reserved {
				pool.give(d, h)
			}
			continue
		}
		days.Set(d, h)
		if req.Reserved {
			continue
		}
		if err := pool.take(d, h); err != nil {
			return fail(ErrStaleAllocation, err.Error())
		}
	}

	remaining := target.Sub(days.Total()).Round()
	if remaining.IsZeroApprox() {
		return AllocationResult{Days: days, Regenerated: dropped}, nil
	}
	if !inPeriod {
		return fail(ErrNoDaysAvailable, "reporting period does not cover the month")
	}

	var err error
	if req.Commitment.HalfDayQuantum {
		err = a.moveHalfDays(days, pool, remaining, first, last)
	} else {
		err = a.moveHours(days, pool, remaining, first, last)
	}
	if err != nil {
		return fail(err, fmt.Sprintf("target %s, remaining %s", target, remaining))
	}

	if total := days.Total(); !total.ApproxEqual(target) {
		return fail(ErrNoDaysAvailable, fmt.Sprintf("allocated %s of %s", total, target))
	}
	return AllocationResult{Days: days, Regenerated: true}, nil
}

// =============================================================================
// HALF-DAY UNITS
// =============================================================================

func (a *Allocator) moveHalfDays(days DayHours, pool *Pool, remaining generic.Hours, first, last int) error {
	if !remaining.IsMultipleOf(generic.HalfDay) {
		return ErrNotHalfDayMultiple
	}

	adding := remaining.IsPositive()
	units := remaining.Abs().Units(generic.HalfDay)

	eligible := func(d int) bool {
		if adding {
			return pool.Available(d).AtLeast(generic.HalfDay)
		}
		h := days.At(d)
		return h.AtLeast(generic.HalfDay) && h.IsMultipleOf(generic.HalfDay)
	}

	for pass := 0; units > 0; pass++ {
		if pass >= a.maxPasses() {
			return ErrNoDaysAvailable
		}
		candidates := a.shuffled(first, last, eligible)
		if len(candidates) == 0 {
			return ErrNoDaysAvailable
		}
		for _, d := range candidates {
			if units == 0 {
				break
			}
			if adding {
				if err := pool.take(d, generic.HalfDay); err != nil {
					return err
				}
				days.Set(d, days.At(d).Add(generic.HalfDay))
			} else {
				days.Set(d, days.At(d).Sub(generic.HalfDay))
				pool.give(d, generic.HalfDay)
			}
			units--
		}
	}
	return nil
}

// =============================================================================
// CONTINUOUS HOURS
// =============================================================================

func (a *Allocator) moveHours(days DayHours, pool *Pool, remaining generic.Hours, first, last int) error {
	if remaining.IsNegative() {
		return giveBackLargestFirst(days, pool, remaining.Neg(), first, last)
	}

	for pass := 0; !remaining.IsZeroApprox(); pass++ {
		if pass >= a.maxPasses() {
			return ErrNoDaysAvailable
		}
		need := remaining
		candidates := a.shuffled(first, last, func(d int) bool {
			free := pool.Available(d)
			return free.AtLeast(generic.OneHour) || (free.IsPositive() && free.AtLeast(need))
		})
		if len(candidates) == 0 {
			return ErrNoDaysAvailable
		}
		// Most slack first; the shuffle breaks ties.
		sort.SliceStable(candidates, func(i, j int) bool {
			return pool.Available(candidates[i]).GreaterThan(pool.Available(candidates[j]))
		})

		for _, d := range candidates {
			if remaining.IsZeroApprox() {
				break
			}
			chunk := chunkFor(pool.Available(d), remaining)
			if !chunk.IsPositive() {
				continue
			}
			if err := pool.take(d, chunk); err != nil {
				return err
			}
			days.Set(d, days.At(d).Add(chunk))
			remaining = remaining.Sub(chunk).Round()
		}
	}
	return nil
}

// chunkFor returns how much a day with free hours takes in one pass.
func chunkFor(free, remaining generic.Hours) generic.Hours {
	var chunk generic.Hours
	switch {
	case free.AtLeast(generic.FullDay):
		chunk = generic.HalfDay
	case free.AtLeast(generic.OneHour):
		chunk = free.Mul(half).Round().Max(generic.OneHour)
		if free.Sub(chunk).LessThan(generic.OneHour) {
			chunk = free
		}
	default:
		if !free.AtLeast(remaining) {
			return generic.ZeroHours()
		}
		chunk = free
	}

	chunk = chunk.Min(remaining)
	// Close the target here rather than leave a sub-hour tail for another day.
	if tail := remaining.Sub(chunk); tail.IsPositive() && tail.LessThan(generic.OneHour) && free.AtLeast(remaining) {
		chunk = remaining
	}
	return chunk.Round()
}

func giveBackLargestFirst(days DayHours, pool *Pool, need generic.Hours, first, last int) error {
	var candidates []int
	for d := first; d <= last; d++ {
		if days.At(d).IsPositive() {
			candidates = append(candidates, d)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return days.At(candidates[i]).GreaterThan(days.At(candidates[j]))
	})

	for _, d := range candidates {
		if need.IsZeroApprox() {
			break
		}
		back := days.At(d).Min(need)
		days.Set(d, days.At(d).Sub(back))
		pool.give(d, back)
		need = need.Sub(back)
	}
	if !need.IsZeroApprox() {
		return ErrNoDaysAvailable
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

var half = generic.NewHoursFromString("0.5").Value

// shuffled returns the days in [first, last] passing keep, in random order.
func (a *Allocator) shuffled(first, last int, keep func(int) bool) []int {
	var out []int
	for d := first; d <= last; d++ {
		if keep(d) {
			out = append(out, d)
		}
	}
	a.mu.Lock()
	a.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	a.mu.Unlock()
	return out
}

func (a *Allocator) maxPasses() int {
	if a.MaxPasses <= 0 {
		return DefaultMaxPasses
	}
	return a.MaxPasses
}
