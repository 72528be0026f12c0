// Package holidays imports public holidays from iCalendar files.
package holidays

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/generic"
)

// ImportICS turns the VEVENTs of an iCalendar stream into holidays.
// Events with a yearly recurrence rule become recurring holidays; the others
// are one-off dates, kept only when they fall in year (0 keeps every year).
// A multi-day event yields one holiday per day.
func ImportICS(r io.Reader, year int) ([]generic.Holiday, error) {
	dec := ical.NewDecoder(r)
	var out []generic.Holiday

	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing calendar: %w", err)
		}

		for _, component := range cal.Children {
			if component.Name != ical.CompEvent {
				continue
			}
			hs, err := eventHolidays(ical.Event{Component: component}, year)
			if err != nil {
				return nil, err
			}
			out = append(out, hs...)
		}
	}

	generic.SortHolidays(out)
	return out, nil
}

// ImportFile opens path and calls ImportICS.
func ImportFile(path string, year int) ([]generic.Holiday, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening calendar file: %w", err)
	}
	defer f.Close()
	return ImportICS(f, year)
}

func eventHolidays(event ical.Event, year int) ([]generic.Holiday, error) {
	summary, _ := event.Props.Text(ical.PropSummary)
	start, err := event.DateTimeStart(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("event %q: start: %w", summary, err)
	}
	end, err := event.DateTimeEnd(time.UTC)
	if err != nil {
		return nil, fmt.Errorf("event %q: end: %w", summary, err)
	}

	recurring := false
	if rule, _ := event.Props.Text(ical.PropRecurrenceRule); rule != "" {
		recurring = strings.Contains(strings.ToUpper(rule), "FREQ=YEARLY")
	}

	first := generic.DayOf(start)
	last := first
	// DTEND is exclusive.
	if end.After(start) {
		last = generic.DayOf(end.Add(-time.Nanosecond))
	}

	var out []generic.Holiday
	for d := first; !d.After(last); d = d.AddDays(1) {
		if !recurring && year != 0 && d.Year() != year {
			continue
		}
		out = append(out, generic.Holiday{
			ID:        uuid.NewString(),
			Date:      d,
			Name:      summary,
			Recurring: recurring,
		})
	}
	return out, nil
}
