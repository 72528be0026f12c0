// Package timesheet implements the hour-allocation engine of researcher timesheets.
// It spreads the hours a researcher worked in a month across the funded projects
// they report on, and checks persisted allocations against current targets.
package timesheet

import (
	"fmt"
	"strings"
	"time"

	"github.com/warp/timesheet-engine/generic"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResearcherID string
type ProjectID string
type WorkPackageID string
type CommitmentID string

// =============================================================================
// ATTENDANCE
// =============================================================================

// AbsenceCode classifies a day of attendance.
type AbsenceCode string

const (
	AbsenceNone     AbsenceCode = ""
	AbsenceMission  AbsenceCode = "mission"
	AbsenceIllness  AbsenceCode = "illness"
	AbsenceHolidays AbsenceCode = "holidays"
	AbsenceOther    AbsenceCode = "other"
)

// ParseAbsenceCode accepts the code names case-insensitively; "none" and "" are AbsenceNone.
func ParseAbsenceCode(s string) (AbsenceCode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AbsenceNone, nil
	case "mission":
		return AbsenceMission, nil
	case "illness":
		return AbsenceIllness, nil
	case "holidays":
		return AbsenceHolidays, nil
	case "other":
		return AbsenceOther, nil
	}
	return AbsenceNone, fmt.Errorf("unknown absence code %q", s)
}

// WorkDay is the imported attendance of a researcher for one date.
type WorkDay struct {
	Researcher ResearcherID
	Date       generic.TimePoint
	Hours      generic.Hours
	Code       AbsenceCode
}

// Available returns the hours the day contributes to the allocation pool:
// the worked hours when there is no absence code, zero otherwise.
func (w WorkDay) Available() generic.Hours {
	if w.Code != AbsenceNone {
		return generic.ZeroHours()
	}
	return w.Hours
}

// =============================================================================
// COMMITMENTS
// =============================================================================

// Commitment is a researcher's time obligation to a funded project over a
// date range. Ranges of the same researcher and work package never overlap.
type Commitment struct {
	ID          CommitmentID
	Researcher  ResearcherID
	Project     ProjectID
	ProjectName string
	Period      generic.Period

	// HalfDayQuantum marks agencies (EU Horizon) that accept hours only in
	// half-day units of generic.HalfDay.
	HalfDayQuantum bool
}

// WorkPackageShare is the weighted fraction of a commitment reported on one
// work package. Fractions of a commitment are normalized before use.
type WorkPackageShare struct {
	WorkPackage WorkPackageID
	Name        string
	Fraction    float64
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

// AllocationKey identifies the unit the engine allocates: a commitment, or a
// commitment/work-package pair when the commitment is split.
type AllocationKey struct {
	Commitment  CommitmentID
	WorkPackage WorkPackageID // empty when the commitment is not split
}

func (k AllocationKey) String() string {
	if k.WorkPackage == "" {
		return string(k.Commitment)
	}
	return string(k.Commitment) + "/" + string(k.WorkPackage)
}

// Allocation is one persisted day of hours for a key.
type Allocation struct {
	Key   AllocationKey
	Date  generic.TimePoint
	Hours generic.Hours
}

// DayHours holds one value per day of a month; index 0 is day 1.
type DayHours []generic.Hours

// NewDayHours returns zeroed day hours for the month.
func NewDayHours(year int, month time.Month) DayHours {
	days := make(DayHours, generic.DaysInMonth(year, month))
	for i := range days {
		days[i] = generic.ZeroHours()
	}
	return days
}

// At returns the hours of day-of-month d.
func (d DayHours) At(day int) generic.Hours { return d[day-1] }

// Set stores the hours of day-of-month d.
func (d DayHours) Set(day int, h generic.Hours) { d[day-1] = h }

// Total sums all days.
func (d DayHours) Total() generic.Hours { return generic.SumHours(d...) }

// AddAll adds other day by day into d.
func (d DayHours) AddAll(other DayHours) {
	for i := range d {
		if i < len(other) {
			d[i] = d[i].Add(other[i])
		}
	}
}

// Clone returns an independent copy.
func (d DayHours) Clone() DayHours {
	out := make(DayHours, len(d))
	copy(out, d)
	return out
}

// Allocations converts non-zero days into allocation rows for key.
func (d DayHours) Allocations(key AllocationKey, year int, month time.Month) []Allocation {
	var rows []Allocation
	for i, h := range d {
		if h.IsZeroApprox() {
			continue
		}
		rows = append(rows, Allocation{
			Key:   key,
			Date:  generic.NewTimePoint(year, month, i+1),
			Hours: h,
		})
	}
	return rows
}

// DayHoursFrom builds day hours of the month from allocation rows.
// Rows outside the month are ignored.
func DayHoursFrom(rows []Allocation, year int, month time.Month) DayHours {
	days := NewDayHours(year, month)
	for _, r := range rows {
		if r.Date.Year() != year || r.Date.Month() != month {
			continue
		}
		days.Set(r.Date.Day(), days.At(r.Date.Day()).Add(r.Hours))
	}
	return days
}

// =============================================================================
// MISSIONS
// =============================================================================

// ReportedMission pins the hours of a business trip to one day and attributes
// them to a project, or to one of its work packages, outside the allocator.
type ReportedMission struct {
	ID              string
	Researcher      ResearcherID
	Date            generic.TimePoint
	Hours           generic.Hours
	Project         ProjectID
	ProjectName     string
	WorkPackage     WorkPackageID // optional
	WorkPackageName string
}
