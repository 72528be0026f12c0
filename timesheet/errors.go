package timesheet

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNoWorkDay is returned when attendance of a day was never imported.
	ErrNoWorkDay = errors.New("no attendance data for day")

	// ErrNoTarget is returned when a commitment has no target for the month.
	ErrNoTarget = errors.New("no monthly target for commitment")

	// ErrNotHalfDayMultiple is returned when a half-day commitment must move
	// a number of hours that is not a multiple of the quantum.
	ErrNotHalfDayMultiple = errors.New("hours not multiple of half-day")

	// ErrNoDaysAvailable is returned when no day can take or give back hours.
	ErrNoDaysAvailable = errors.New("no days available")

	// ErrStaleAllocation is returned when persisted hours exceed what a day
	// still has available, i.e. attendance changed after allocation.
	ErrStaleAllocation = errors.New("existing allocation exceeds available hours")

	// ErrOverlappingCommitment is returned when a commitment would overlap
	// another one of the same researcher and project.
	ErrOverlappingCommitment = errors.New("commitment overlaps an existing one")

	// ErrInconsistent is returned when a month is read without regeneration
	// while its allocations no longer match the targets.
	ErrInconsistent = errors.New("allocations inconsistent with targets")
)

// =============================================================================
// REPORTING ERROR - Recoverable domain failure
// =============================================================================

// ReportingError reports an allocation that cannot be produced or a month
// that cannot be read as is. The caller decides whether to retry with
// regeneration or to surface it.
type ReportingError struct {
	Researcher ResearcherID
	Key        AllocationKey
	Year       int
	Month      time.Month
	Reason     string
	Err        error
}

func (e *ReportingError) Error() string {
	where := fmt.Sprintf("%s %04d-%02d", e.Researcher, e.Year, int(e.Month))
	if e.Key.Commitment != "" {
		where += " " + e.Key.String()
	}
	if e.Reason != "" {
		return fmt.Sprintf("reporting error (%s): %v: %s", where, e.Err, e.Reason)
	}
	return fmt.Sprintf("reporting error (%s): %v", where, e.Err)
}

func (e *ReportingError) Unwrap() error { return e.Err }

// IsReportingError returns true if err is or wraps a *ReportingError.
func IsReportingError(err error) bool {
	var re *ReportingError
	return errors.As(err, &re)
}

// IsDataAbsence returns true for missing attendance or targets.
func IsDataAbsence(err error) bool {
	return errors.Is(err, ErrNoWorkDay) || errors.Is(err, ErrNoTarget)
}
