/*
workbook.go - Attendance import from spreadsheets

PURPOSE:
  Reads attendance exported by the HR system as an .xlsx workbook and turns
  every row into a timesheet.WorkDay ready to be saved by a store.

LAYOUT:
  Column A: researcher ID
  Column B: date (YYYY-MM-DD, or an Excel date serial)
  Column C: worked hours
  Column D: absence code ("", mission, illness, holidays, other)

  The first row is a header and is skipped. Blank rows are ignored.

ERRORS:
  Every invalid row is reported as a *RowError carrying its 1-based row
  number. All of them are returned joined, and no rows are imported.
*/
package attendance

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// Header is the first row written by WriteWorkbook.
var Header = []string{"researcher", "date", "hours", "code"}

// RowError reports an invalid row.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string { return fmt.Sprintf("row %d: %v", e.Row, e.Err) }
func (e *RowError) Unwrap() error { return e.Err }

// ImportWorkbook reads sheet of the workbook at path. An empty sheet name
// selects the first sheet.
func ImportWorkbook(path, sheet string) ([]timesheet.WorkDay, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

// ReadWorkbook is ImportWorkbook over a stream, used by uploads.
func ReadWorkbook(r io.Reader, sheet string) ([]timesheet.WorkDay, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()
	return readSheet(f, sheet)
}

func readSheet(f *excelize.File, sheet string) ([]timesheet.WorkDay, error) {
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}

	var (
		out  []timesheet.WorkDay
		errs []error
	)
	for i, cells := range rows {
		if i == 0 || blank(cells) {
			continue
		}
		wd, err := parseRow(cells)
		if err != nil {
			errs = append(errs, &RowError{Row: i + 1, Err: err})
			continue
		}
		out = append(out, wd)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func parseRow(cells []string) (timesheet.WorkDay, error) {
	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	researcher := cell(0)
	if researcher == "" {
		return timesheet.WorkDay{}, errors.New("missing researcher")
	}
	date, err := parseDate(cell(1))
	if err != nil {
		return timesheet.WorkDay{}, fmt.Errorf("date %q: %w", cell(1), err)
	}
	hours := generic.ZeroHours()
	if s := cell(2); s != "" {
		hours, err = generic.ParseHours(strings.ReplaceAll(s, ",", "."))
		if err != nil {
			return timesheet.WorkDay{}, fmt.Errorf("hours %q: %w", s, err)
		}
		if hours.IsNegative() {
			return timesheet.WorkDay{}, fmt.Errorf("hours %q: negative", s)
		}
	}
	code, err := timesheet.ParseAbsenceCode(cell(3))
	if err != nil {
		return timesheet.WorkDay{}, err
	}

	return timesheet.WorkDay{
		Researcher: timesheet.ResearcherID(researcher),
		Date:       date,
		Hours:      hours,
		Code:       code,
	}, nil
}

func parseDate(s string) (generic.TimePoint, error) {
	if tp, err := generic.ParseDay(s); err == nil {
		return tp, nil
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return generic.TimePoint{}, fmt.Errorf("want YYYY-MM-DD")
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return generic.TimePoint{}, err
	}
	return generic.DayOf(t), nil
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// WriteWorkbook writes days in the import layout to w.
func WriteWorkbook(w io.Writer, sheet string, days []timesheet.WorkDay) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = "Attendance"
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for i, header := range Header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}
	for i, d := range days {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), string(d.Researcher))
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), d.Date.String())
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), d.Hours.String())
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), string(d.Code))
	}
	return f.Write(w)
}
