package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/warp/timesheet-engine/timesheet"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	offStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	issueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderMonth draws one row per project and work package, days as columns.
// Weekends and holidays are dimmed.
func renderMonth(v *timesheet.MonthView) string {
	headers := []string{"Project"}
	for _, d := range v.Days {
		headers = append(headers, strconv.Itoa(d.Day))
	}
	headers = append(headers, "Total")

	row := func(name string, days timesheet.DayHours, total string) []string {
		r := []string{name}
		for _, h := range days {
			if h.IsZeroApprox() {
				r = append(r, "")
				continue
			}
			r = append(r, h.String())
		}
		return append(r, total)
	}

	var rows [][]string
	for _, p := range v.Projects {
		rows = append(rows, row(p.Name, p.Days, p.Total.String()))
		for _, wp := range p.WorkPackages {
			rows = append(rows, row("  "+wp.Name, wp.Days, wp.Total.String()))
		}
	}
	rows = append(rows, row("Total", v.DayTotals, v.Total.String()))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(r, c int) lipgloss.Style {
			if c >= 1 && c <= len(v.Days) && !v.Days[c-1].Working() {
				return offStyle.Padding(0, 1)
			}
			return cellStyle
		})

	title := titleStyle.Render(fmt.Sprintf("%s  %04d-%02d", v.Researcher, v.Year, int(v.Month)))
	return title + "\n" + t.Render()
}

func renderReport(r *timesheet.Report) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("%s  %04d-%02d", r.Researcher, r.Year, int(r.Month))))
	b.WriteString("\n")
	if r.OK() {
		b.WriteString(okStyle.Render("consistent"))
		return b.String()
	}
	for _, issue := range r.Issues {
		line := fmt.Sprintf("%-18s %s", issue.Kind, issue.Commitment)
		if issue.WorkPackage != "" {
			line += "/" + string(issue.WorkPackage)
		}
		if issue.Day > 0 {
			line += fmt.Sprintf(" day %d", issue.Day)
		}
		line += fmt.Sprintf(" expected %s got %s", issue.Expected, issue.Actual)
		b.WriteString(issueStyle.Render(line))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
