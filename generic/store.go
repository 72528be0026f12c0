/*
store.go - Persistence interface for the holiday calendar

PURPOSE:
  The holiday calendar is the one collaborator that is not specific to
  timesheets. HolidayStore adds the administration operations used by the
  API and the ICS importer on top of the read-only HolidayCalendar.

LOOKUP ORDER:
  IsHoliday checks recurring holidays (month/day, any year) before one-off
  dates of a specific year.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: holidays table
  - store/memory/memory.go: in-memory, for tests and the demo

SEE ALSO:
  - time.go: Holiday and HolidayCalendar
  - holidays/ics.go: import from iCalendar files
*/
package generic

import (
	"context"
	"sort"
)

// =============================================================================
// HOLIDAY STORE
// =============================================================================

// HolidayStore is a HolidayCalendar that can be administered.
type HolidayStore interface {
	HolidayCalendar

	// Holidays returns every holiday, recurring first, then by date.
	Holidays(ctx context.Context) ([]Holiday, error)

	// SaveHoliday inserts or replaces a holiday by ID.
	SaveHoliday(ctx context.Context, h Holiday) error

	// DeleteHoliday removes a holiday. Returns ErrNotFound if absent.
	DeleteHoliday(ctx context.Context, id string) error
}

// SortHolidays orders holidays recurring first, then by date, then by name.
func SortHolidays(hs []Holiday) {
	sort.SliceStable(hs, func(i, j int) bool {
		a, b := hs[i], hs[j]
		if a.Recurring != b.Recurring {
			return a.Recurring
		}
		if a.Recurring {
			if a.Date.Month() != b.Date.Month() {
				return a.Date.Month() < b.Date.Month()
			}
			if a.Date.Day() != b.Date.Day() {
				return a.Date.Day() < b.Date.Day()
			}
		} else if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Name < b.Name
	})
}
