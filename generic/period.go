package generic

import "time"

// =============================================================================
// PERIOD - Closed date range [Start, End]
// =============================================================================

// Period is a closed range of calendar days.
//
// Examples:
//   - Reporting period of a grant: 2024-03-01 .. 2026-02-28
//   - A month: MonthPeriod(2025, time.March)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// MonthPeriod returns the period covering the whole month.
func MonthPeriod(year int, month time.Month) Period {
	return Period{Start: StartOfMonth(year, month), End: EndOfMonth(year, month)}
}

// Validate returns ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// IsEmpty reports whether the period holds no day.
func (p Period) IsEmpty() bool { return p.End.Before(p.Start) }

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	return !p.IsEmpty() && !o.IsEmpty() &&
		p.Start.BeforeOrEqual(o.End) && o.Start.BeforeOrEqual(p.End)
}

// Clip returns the intersection of p and o. The result may be empty.
func (p Period) Clip(o Period) Period {
	start, end := p.Start, p.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	return Period{Start: start, End: end}
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// DayRange returns the first and last day-of-month numbers of p clipped to
// the month. ok is false when p does not touch the month.
func (p Period) DayRange(year int, month time.Month) (first, last int, ok bool) {
	clipped := p.Clip(MonthPeriod(year, month))
	if clipped.IsEmpty() {
		return 0, 0, false
	}
	return clipped.Start.Day(), clipped.End.Day(), true
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
