package timesheet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// MONTH PLAN - Commitments, targets and persisted rows of one month
// =============================================================================

// planItem is one allocation key of the month with its target and the rows
// already persisted for it.
type planItem struct {
	Commitment      Commitment
	Key             AllocationKey
	WorkPackageName string
	Target          generic.Hours
	TargetErr       error // ErrNoTarget and friends; Target is zero then
	Existing        DayHours
	HasRows         bool
}

type monthPlan struct {
	Researcher  ResearcherID
	Year        int
	Month       time.Month
	Commitments []Commitment
	Items       []planItem
}

// loadPlan expands the commitments of the month into allocation keys.
// A split commitment yields one key per work package, with the monthly
// target multiplied by the normalized fraction.
func loadPlan(ctx context.Context, registry CommitmentRegistry, allocations AllocationStore,
	researcher ResearcherID, year int, month time.Month) (*monthPlan, error) {

	commitments, err := registry.Commitments(ctx, researcher, generic.MonthPeriod(year, month))
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}

	plan := &monthPlan{Researcher: researcher, Year: year, Month: month, Commitments: commitments}
	for _, c := range commitments {
		target, targetErr := registry.MonthlyTarget(ctx, c.ID, year, month)
		if targetErr != nil {
			if !errors.Is(targetErr, ErrNoTarget) {
				return nil, fmt.Errorf("failed to load target of %s: %w", c.ID, targetErr)
			}
			target = generic.ZeroHours()
		}
		target = target.Round()

		shares, err := registry.WorkPackageShares(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load work packages of %s: %w", c.ID, err)
		}

		if len(shares) == 0 {
			item, err := newPlanItem(ctx, allocations, c, AllocationKey{Commitment: c.ID}, "", target, targetErr, year, month)
			if err != nil {
				return nil, err
			}
			plan.Items = append(plan.Items, item)
			continue
		}

		for i, fraction := range NormalizeShares(shares) {
			s := shares[i]
			key := AllocationKey{Commitment: c.ID, WorkPackage: s.WorkPackage}
			wpTarget := target.Mul(fraction).Round()
			item, err := newPlanItem(ctx, allocations, c, key, s.Name, wpTarget, targetErr, year, month)
			if err != nil {
				return nil, err
			}
			plan.Items = append(plan.Items, item)
		}
	}
	return plan, nil
}

func newPlanItem(ctx context.Context, allocations AllocationStore, c Commitment, key AllocationKey,
	wpName string, target generic.Hours, targetErr error, year int, month time.Month) (planItem, error) {

	rows, err := allocations.Allocations(ctx, key, year, month)
	if err != nil {
		return planItem{}, fmt.Errorf("failed to load allocations of %s: %w", key, err)
	}
	return planItem{
		Commitment:      c,
		Key:             key,
		WorkPackageName: wpName,
		Target:          target,
		TargetErr:       targetErr,
		Existing:        DayHoursFrom(rows, year, month),
		HasRows:         len(rows) > 0,
	}, nil
}

// NormalizeShares returns the fractions of shares scaled to sum to 1.
// When no fraction is positive the split is even.
func NormalizeShares(shares []WorkPackageShare) []decimal.Decimal {
	out := make([]decimal.Decimal, len(shares))
	if len(shares) == 0 {
		return out
	}
	sum := decimal.Zero
	for _, s := range shares {
		if s.Fraction > 0 {
			sum = sum.Add(decimal.NewFromFloat(s.Fraction))
		}
	}
	for i, s := range shares {
		switch {
		case sum.IsZero():
			out[i] = decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(shares))))
		case s.Fraction > 0:
			out[i] = decimal.NewFromFloat(s.Fraction).Div(sum)
		default:
			out[i] = decimal.Zero
		}
	}
	return out
}

// =============================================================================
// ATTENDANCE OF THE MONTH
// =============================================================================

// monthAttendance is the attendance of every day of a month.
type monthAttendance struct {
	Days    []WorkDay // index 0 is day 1; zero WorkDay when missing
	Missing []int     // day numbers never imported
}

func loadAttendance(ctx context.Context, store AttendanceStore, researcher ResearcherID,
	year int, month time.Month) (*monthAttendance, error) {

	n := generic.DaysInMonth(year, month)
	ma := &monthAttendance{Days: make([]WorkDay, n)}
	for d := 1; d <= n; d++ {
		date := generic.NewTimePoint(year, month, d)
		wd, err := store.WorkDay(ctx, researcher, date)
		if err != nil {
			if !errors.Is(err, ErrNoWorkDay) {
				return nil, fmt.Errorf("failed to load attendance of %s: %w", date, err)
			}
			wd = WorkDay{Researcher: researcher, Date: date, Hours: generic.ZeroHours()}
			ma.Missing = append(ma.Missing, d)
		}
		ma.Days[d-1] = wd
	}
	return ma, nil
}

// Ceilings returns the available hours of every day.
func (ma *monthAttendance) Ceilings() DayHours {
	out := make(DayHours, len(ma.Days))
	for i, wd := range ma.Days {
		out[i] = wd.Available().Round()
	}
	return out
}
