package timesheet

import (
	"fmt"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// POOL - Hours each day of the month still offers
// =============================================================================

// Pool is the available-hours pool of one month assembly. It is seeded from
// attendance and depleted as commitments claim hours.
//
// OWNERSHIP:
//   A Pool belongs to exactly one BuildMonth call. The assembler lends it to
//   one Allocate call at a time, in commitment order; it is never shared
//   between goroutines and never persisted.
//
// INVARIANT: every day stays within [0, seed].
type Pool struct {
	year  int
	month time.Month
	seed  DayHours
	hours DayHours
}

// NewPool seeds a pool with the available hours of each day of the month.
// Seed values are rounded to one decimal; negative values count as zero.
func NewPool(year int, month time.Month, seed DayHours) *Pool {
	days := NewDayHours(year, month)
	for i := range days {
		if i < len(seed) && seed[i].IsPositive() {
			days[i] = seed[i].Round()
		}
	}
	return &Pool{year: year, month: month, seed: days.Clone(), hours: days}
}

func (p *Pool) Year() int         { return p.year }
func (p *Pool) Month() time.Month { return p.month }
func (p *Pool) Days() int         { return len(p.hours) }

// Available returns what day-of-month d still offers.
func (p *Pool) Available(day int) generic.Hours { return p.hours.At(day) }

// Seed returns what day-of-month d offered before any claim.
func (p *Pool) Seed(day int) generic.Hours { return p.seed.At(day) }

// Remaining returns a copy of the unclaimed hours per day.
func (p *Pool) Remaining() DayHours { return p.hours.Clone() }

func (p *Pool) take(day int, h generic.Hours) error {
	avail := p.hours.At(day)
	if h.GreaterThan(avail) {
		return fmt.Errorf("day %d: claim %s exceeds available %s", day, h, avail)
	}
	p.hours.Set(day, avail.Sub(h))
	return nil
}

// reserve claims up to h on a day for rows that are already persisted.
func (p *Pool) reserve(day int, h generic.Hours) {
	avail := p.hours.At(day)
	p.hours.Set(day, avail.Sub(h.Min(avail)))
}

func (p *Pool) give(day int, h generic.Hours) {
	p.hours.Set(day, p.hours.At(day).Add(h).Min(p.seed.At(day)))
}

func (p *Pool) snapshot() DayHours { return p.hours.Clone() }

func (p *Pool) restore(s DayHours) { copy(p.hours, s) }
