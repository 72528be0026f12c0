/*
Package generic provides the domain-agnostic building blocks of the timesheet engine.

PURPOSE:
  The allocation engine, the month assembler and the consistency checker all
  move hours around days of a month. This package holds the pieces they share
  and that know nothing about projects or researchers: an hour quantity that
  does not drift, calendar days, periods and the holiday calendar contract.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: a non-negative quantity of working hours backed by decimal.Decimal
  - Round: the single-decimal rounding used everywhere (the "rounding utility")
  - Tolerance: 0.001h, the only way two Hours are compared for equality

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal instead of float64, so 3 x 3.6 is exactly 10.8
  2. One decimal: every value that leaves the engine is rounded to 0.1h
  3. Tolerant equality: comparisons that decide behavior use ApproxEqual

USAGE:
  target := generic.NewHours(10.8)
  spent := generic.NewHours(3.6).Mul(generic.NewHours(3).Value)
  if target.Sub(spent).Round().IsZeroApprox() {
      // nothing left to allocate
  }

SEE ALSO:
  - time.go: TimePoint and the holiday calendar
  - period.go: date ranges and month clipping
*/
package generic

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Quantity of working time
// =============================================================================

// Hours is a quantity of working hours.
type Hours struct {
	Value decimal.Decimal
}

var (
	// Tolerance is the absolute tolerance for every hour comparison.
	Tolerance = decimal.RequireFromString("0.001")

	// HalfDay is the minimum reporting quantum of half-day funded projects.
	HalfDay = NewHoursFromString("3.6")

	// FullDay is a standard working day.
	FullDay = NewHoursFromString("7.2")

	// OneHour is the smallest fragment the allocator leaves on a day.
	OneHour = NewHoursFromInt(1)
)

func NewHours(value float64) Hours {
	return Hours{Value: decimal.NewFromFloat(value)}
}

func NewHoursFromInt(value int) Hours {
	return Hours{Value: decimal.NewFromInt(int64(value))}
}

// NewHoursFromString parses s and panics on malformed input. Use for constants.
func NewHoursFromString(s string) Hours {
	return Hours{Value: decimal.RequireFromString(s)}
}

// ParseHours parses a decimal hour value such as "7.2".
func ParseHours(s string) (Hours, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Hours{}, err
	}
	return Hours{Value: d}, nil
}

func ZeroHours() Hours { return Hours{Value: decimal.Zero} }

func (h Hours) Add(o Hours) Hours           { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours           { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) Mul(s decimal.Decimal) Hours { return Hours{Value: h.Value.Mul(s)} }
func (h Hours) Neg() Hours                  { return Hours{Value: h.Value.Neg()} }
func (h Hours) Abs() Hours                  { return Hours{Value: h.Value.Abs()} }
func (h Hours) IsZero() bool                { return h.Value.IsZero() }
func (h Hours) IsPositive() bool            { return h.Value.IsPositive() }
func (h Hours) IsNegative() bool            { return h.Value.IsNegative() }
func (h Hours) GreaterThan(o Hours) bool    { return h.Value.GreaterThan(o.Value) }
func (h Hours) AtLeast(o Hours) bool        { return h.Value.GreaterThanOrEqual(o.Value) }
func (h Hours) LessThan(o Hours) bool       { return h.Value.LessThan(o.Value) }

func (h Hours) Min(o Hours) Hours {
	if h.LessThan(o) {
		return h
	}
	return o
}

func (h Hours) Max(o Hours) Hours {
	if h.GreaterThan(o) {
		return h
	}
	return o
}

// Round rounds to one decimal place, half away from zero.
func (h Hours) Round() Hours { return Hours{Value: h.Value.Round(1)} }

// ApproxEqual reports whether h and o differ by less than Tolerance.
func (h Hours) ApproxEqual(o Hours) bool {
	return h.Value.Sub(o.Value).Abs().LessThan(Tolerance)
}

// IsZeroApprox reports whether h is zero within Tolerance.
func (h Hours) IsZeroApprox() bool { return h.Value.Abs().LessThan(Tolerance) }

// IsMultipleOf reports whether h is an exact multiple of unit.
func (h Hours) IsMultipleOf(unit Hours) bool {
	if unit.IsZero() {
		return false
	}
	return h.Value.Mod(unit.Value).IsZero()
}

// Units returns how many whole units fit in h, truncated toward zero.
func (h Hours) Units(unit Hours) int64 {
	return h.Value.Div(unit.Value).IntPart()
}

func (h Hours) Float64() float64 {
	f, _ := h.Value.Float64()
	return f
}

func (h Hours) String() string { return h.Value.StringFixed(1) }

// MarshalJSON renders hours as a plain JSON number with one decimal.
func (h Hours) MarshalJSON() ([]byte, error) {
	return []byte(h.Value.StringFixed(1)), nil
}

func (h *Hours) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	h.Value = d
	return nil
}

// SumHours adds up hs. The result is not rounded.
func SumHours(hs ...Hours) Hours {
	total := ZeroHours()
	for _, h := range hs {
		total = total.Add(h)
	}
	return total
}
