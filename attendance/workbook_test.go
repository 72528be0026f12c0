package attendance_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"github.com/warp/timesheet-engine/attendance"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

func writeSheet(t *testing.T, rows [][]string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue("Sheet1", cell, v))
		}
	}
	path := filepath.Join(t.TempDir(), "attendance.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestImportWorkbook(t *testing.T) {
	// GIVEN: A workbook with a header, two days and a blank row
	// WHEN: Importing the first sheet
	// THEN: Both days are read with their hours and codes

	path := writeSheet(t, [][]string{
		attendance.Header,
		{"r-1", "2025-06-02", "7.2", ""},
		{"", "", "", ""},
		{"r-1", "2025-06-03", "0", "Illness"},
	})

	days, err := attendance.ImportWorkbook(path, "")
	require.NoError(t, err)
	require.Len(t, days, 2)

	assert.Equal(t, timesheet.ResearcherID("r-1"), days[0].Researcher)
	assert.True(t, days[0].Date.Equal(generic.NewTimePoint(2025, time.June, 2)))
	assert.Equal(t, "7.2", days[0].Hours.String())
	assert.Equal(t, timesheet.AbsenceNone, days[0].Code)
	assert.Equal(t, timesheet.AbsenceIllness, days[1].Code)
}

func TestImportWorkbook_ReportsRowNumbers(t *testing.T) {
	path := writeSheet(t, [][]string{
		attendance.Header,
		{"r-1", "2025-06-02", "7.2", ""},
		{"r-1", "June 3rd", "7.2", ""},
		{"r-1", "2025-06-04", "-1", ""},
		{"r-1", "2025-06-05", "7.2", "vacation"},
	})

	days, err := attendance.ImportWorkbook(path, "Sheet1")
	require.Error(t, err)
	assert.Nil(t, days)

	var rowErr *attendance.RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Equal(t, 3, rowErr.Row)
	for _, row := range []int{3, 4, 5} {
		assert.Contains(t, err.Error(), fmt.Sprintf("row %d", row))
	}
}

func TestImportWorkbook_UnknownSheet(t *testing.T) {
	path := writeSheet(t, [][]string{attendance.Header})
	_, err := attendance.ImportWorkbook(path, "Nope")
	assert.Error(t, err)
}

func TestWriteWorkbook_ReadBack(t *testing.T) {
	days := []timesheet.WorkDay{
		{Researcher: "r-1", Date: generic.NewTimePoint(2025, time.June, 2), Hours: generic.FullDay},
		{Researcher: "r-1", Date: generic.NewTimePoint(2025, time.June, 3), Hours: generic.ZeroHours(), Code: timesheet.AbsenceMission},
	}

	var buf bytes.Buffer
	require.NoError(t, attendance.WriteWorkbook(&buf, "June", days))

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	got, err := attendance.ImportWorkbook(path, "June")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "7.2", got[0].Hours.String())
	assert.Equal(t, timesheet.AbsenceMission, got[1].Code)
}
