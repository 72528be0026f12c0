/*
month.go - Month Assembler

PURPOSE:
  Builds the full-month timesheet of one researcher: the calendar of the
  month, one row per funded project (optionally split by work package), the
  internal-activities row, day totals and the grand total.

FLOW OF BuildMonth:
  1. Load attendance; seed the Pool with the available hours of each day.
  2. Load commitments, targets and persisted rows (the month plan).
  3. Gate: when the plan is inconsistent and regeneration is not allowed,
     fail with a ReportingError wrapping ErrInconsistent.
  4. When regeneration is allowed and some day is over-allocated, discard the
     persisted rows of the month and start from scratch.
  5. Reserve the persisted rows of every key in the Pool, then lend it to the
     Allocator once per key, in commitment order. Regenerated keys are
     persisted with one ReplaceAllocations call each.
  6. Fold in reported missions, then turn what is left in the Pool into the
     "Internal activities" row.
  7. Round and total.

SKIP-ONE-CONTINUE:
  A key that cannot be allocated (no target, infeasible placement) is logged,
  reported in MonthView.Warnings and left at zero. Its persisted rows stay
  unless the month was discarded in step 4. The rest of the month is still
  assembled. Store failures abort the build.

WORK PACKAGE ROWS:
  MergeWorkPackagesByID=false keeps one row per commitment/work package.
  MergeWorkPackagesByID=true merges rows of the same work package id across
  consecutive commitments of a project.

SEE ALSO:
  - allocator.go: the per-key allocation
  - checker.go: the consistency gate
*/
package timesheet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/generic"
)

var defaultAllocator = NewAllocator(nil)

// InternalActivities is the name of the pseudo-project holding unclaimed hours.
const InternalActivities = "Internal activities"

// Day tags shown in the calendar row.
const (
	TagPublicHoliday = "Public Holiday"
	TagIllness       = "Illness"
	TagMission       = "Mission"
	TagHolidays      = "Holidays"
	TagOther         = "Other"
)

// BuildOptions controls one BuildMonth call.
type BuildOptions struct {
	// AllowRegenerate lets the assembler rewrite allocations that no longer
	// match their targets. Without it an inconsistent month fails.
	AllowRegenerate bool
}

// =============================================================================
// MONTH VIEW
// =============================================================================

// DayView is one day of the month calendar.
type DayView struct {
	Day       int           `json:"day"`
	Date      string        `json:"date"`
	Weekday   string        `json:"weekday"`
	Weekend   bool          `json:"weekend"`
	Holiday   bool          `json:"holiday"`
	Code      AbsenceCode   `json:"code,omitempty"`
	Tag       string        `json:"tag,omitempty"`
	Available generic.Hours `json:"available"`
}

// Working reports whether the day is neither weekend nor holiday.
func (d DayView) Working() bool { return !d.Weekend && !d.Holiday }

type WorkPackageView struct {
	ID         WorkPackageID `json:"id"`
	Name       string        `json:"name"`
	Commitment CommitmentID  `json:"commitment,omitempty"`
	Days       DayHours      `json:"days"`
	Total      generic.Hours `json:"total"`
	Last       bool          `json:"last"`
}

type ProjectView struct {
	ID           ProjectID         `json:"id"`
	Name         string            `json:"name"`
	Internal     bool              `json:"internal"`
	WorkPackages []WorkPackageView `json:"work_packages,omitempty"`
	Days         DayHours          `json:"days"`
	Total        generic.Hours     `json:"total"`
}

// MonthView is the assembled timesheet of a researcher month. It is derived
// on every call and never persisted.
type MonthView struct {
	RunID      string        `json:"run_id"`
	Researcher ResearcherID  `json:"researcher"`
	Year       int           `json:"year"`
	Month      time.Month    `json:"month"`
	Days       []DayView     `json:"days"`
	Projects   []ProjectView `json:"projects"`
	DayTotals  DayHours      `json:"day_totals"`
	Total      generic.Hours `json:"total"`
	Modified   bool          `json:"modified"`
	Warnings   []string      `json:"warnings"`
}

// Project returns the row of a project, nil if absent.
func (v *MonthView) Project(id ProjectID) *ProjectView {
	for i := range v.Projects {
		if v.Projects[i].ID == id && !v.Projects[i].Internal {
			return &v.Projects[i]
		}
	}
	return nil
}

// Internal returns the internal-activities row.
func (v *MonthView) Internal() *ProjectView {
	if n := len(v.Projects); n > 0 && v.Projects[n-1].Internal {
		return &v.Projects[n-1]
	}
	return nil
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler builds month views. Its collaborators are shared; every call
// builds its own Pool from fresh attendance.
type Assembler struct {
	Attendance  AttendanceStore
	Holidays    generic.HolidayCalendar
	Commitments CommitmentRegistry
	Allocations AllocationStore
	Missions    MissionStore
	Allocator   *Allocator
	Recorder    Recorder
	Logger      *slog.Logger

	MergeWorkPackagesByID bool
}

// Checker returns a consistency checker over the assembler's stores.
func (a *Assembler) Checker() *Checker {
	return &Checker{
		Attendance:  a.Attendance,
		Commitments: a.Commitments,
		Allocations: a.Allocations,
		Recorder:    a.Recorder,
	}
}

// BuildMonth assembles the month view of researcher.
func (a *Assembler) BuildMonth(ctx context.Context, researcher ResearcherID, year int, month time.Month, opts BuildOptions) (*MonthView, error) {
	if err := generic.ValidateMonth(year, month); err != nil {
		return nil, err
	}
	started := time.Now()
	log := a.logger().With("researcher", researcher, "year", year, "month", int(month))

	att, err := loadAttendance(ctx, a.Attendance, researcher, year, month)
	if err != nil {
		return nil, err
	}
	plan, err := loadPlan(ctx, a.Commitments, a.Allocations, researcher, year, month)
	if err != nil {
		return nil, err
	}

	b := &monthBuild{
		Assembler: a,
		log:       log,
		att:       att,
		plan:      plan,
		pool:      NewPool(year, month, att.Ceilings()),
		view: &MonthView{
			RunID:      uuid.NewString(),
			Researcher: researcher,
			Year:       year,
			Month:      month,
			Warnings:   []string{},
		},
		projects: map[ProjectID]int{},
	}
	if len(att.Missing) > 0 {
		b.warn("no attendance imported for %d day(s); counted as 0h", len(att.Missing))
	}

	report := evaluate(plan, att.Ceilings())
	a.recorder().ConsistencyChecked(report.OK())
	if !report.OK() {
		if !opts.AllowRegenerate {
			return nil, &ReportingError{
				Researcher: researcher,
				Year:       year,
				Month:      month,
				Reason:     fmt.Sprintf("%d issue(s), regeneration not allowed", len(report.Issues)),
				Err:        ErrInconsistent,
			}
		}
		if report.HasCeilingViolations() {
			log.Info("discarding allocations of month", "issues", len(report.Issues))
			b.discarded = true
			for i := range plan.Items {
				plan.Items[i].Existing = NewDayHours(year, month)
			}
		}
	}

	b.days()
	b.reserve()
	for _, item := range plan.Items {
		if err := b.allocate(ctx, item); err != nil {
			return nil, err
		}
	}
	if err := b.missions(ctx); err != nil {
		return nil, err
	}
	b.internal()
	b.totals()

	elapsed := time.Since(started)
	a.recorder().MonthBuilt(b.view.Modified, elapsed)
	log.Debug("month built", "run", b.view.RunID, "modified", b.view.Modified,
		"total", b.view.Total.String(), "warnings", len(b.view.Warnings), "elapsed", elapsed)
	return b.view, nil
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.Logger
}

func (a *Assembler) recorder() Recorder {
	if a.Recorder == nil {
		return nopRecorder{}
	}
	return a.Recorder
}

func (a *Assembler) allocator() *Allocator {
	if a.Allocator == nil {
		return defaultAllocator
	}
	return a.Allocator
}

// =============================================================================
// ONE BUILD
// =============================================================================

// monthBuild is the state of one BuildMonth call. It owns the Pool.
type monthBuild struct {
	*Assembler
	log       *slog.Logger
	att       *monthAttendance
	plan      *monthPlan
	pool      *Pool
	view      *MonthView
	projects  map[ProjectID]int // index in view.Projects
	covered   map[int]bool      // days holding a reported mission
	discarded bool
}

func (b *monthBuild) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.view.Warnings = append(b.view.Warnings, msg)
	b.log.Warn(msg)
}

func (b *monthBuild) days() {
	calendar := b.Holidays
	if calendar == nil {
		calendar = generic.NoHolidays{}
	}
	ceilings := b.att.Ceilings()
	for i, wd := range b.att.Days {
		date := generic.NewTimePoint(b.view.Year, b.view.Month, i+1)
		dv := DayView{
			Day:       i + 1,
			Date:      date.String(),
			Weekday:   date.Weekday().String()[:3],
			Weekend:   date.IsWeekend(),
			Holiday:   calendar.IsHoliday(date),
			Code:      wd.Code,
			Available: ceilings[i],
		}
		if dv.Holiday {
			dv.Tag = TagPublicHoliday
		}
		switch wd.Code {
		case AbsenceIllness:
			dv.Tag = TagIllness
		case AbsenceMission:
			setTag(&dv, TagMission)
		case AbsenceHolidays:
			setTag(&dv, TagHolidays)
		case AbsenceOther:
			setTag(&dv, TagOther)
		}
		b.view.Days = append(b.view.Days, dv)
	}
}

// setTag tags the day unless an earlier tag (public holiday) is already set.
func setTag(dv *DayView, tag string) {
	if dv.Tag == "" {
		dv.Tag = tag
	}
}

// reserve claims the persisted rows of every key before any key grows, so a
// key can only take hours that no other key holds. After a wholesale discard
// there is nothing to reserve.
func (b *monthBuild) reserve() {
	for _, item := range b.plan.Items {
		for d := 1; d <= len(item.Existing); d++ {
			if h := item.Existing.At(d); h.IsPositive() {
				b.pool.reserve(d, h)
			}
		}
	}
}

// clear deletes the persisted rows of a key discarded with the month.
func (b *monthBuild) clear(ctx context.Context, item planItem) error {
	if !b.discarded || !item.HasRows {
		return nil
	}
	if err := b.Allocations.ReplaceAllocations(ctx, item.Key, b.view.Year, b.view.Month, nil); err != nil {
		return fmt.Errorf("failed to clear allocations of %s: %w", item.Key, err)
	}
	b.view.Modified = true
	return nil
}

func (b *monthBuild) allocate(ctx context.Context, item planItem) error {
	year, month := b.view.Year, b.view.Month
	log := b.log.With("commitment", item.Key.Commitment, "work_package", item.Key.WorkPackage)

	if item.TargetErr != nil {
		b.warn("%s: %v; left at zero", item.Key, item.TargetErr)
		if err := b.clear(ctx, item); err != nil {
			return err
		}
		b.place(b.project(item.Commitment.Project, item.Commitment.ProjectName), item, NewDayHours(year, month))
		return nil
	}

	// Nothing to report: no row.
	if item.Target.IsZeroApprox() && item.Existing.Total().IsZeroApprox() {
		return b.clear(ctx, item)
	}

	project := b.project(item.Commitment.Project, item.Commitment.ProjectName)
	res, err := b.allocator().Allocate(AllocationRequest{
		Researcher: b.view.Researcher,
		Key:        item.Key,
		Commitment: item.Commitment,
		Year:       year,
		Month:      month,
		Target:     item.Target,
		Existing:   item.Existing,
		Reserved:   true,
	}, b.pool)
	b.recorder().AllocationDone(res.Regenerated, err)
	if err != nil {
		b.warn("%s: %v; left at zero", item.Key, err)
		if err := b.clear(ctx, item); err != nil {
			return err
		}
		b.place(project, item, NewDayHours(year, month))
		return nil
	}

	if res.Regenerated || (b.discarded && item.HasRows) {
		rows := res.Days.Allocations(item.Key, year, month)
		if err := b.Allocations.ReplaceAllocations(ctx, item.Key, year, month, rows); err != nil {
			return fmt.Errorf("failed to persist allocations of %s: %w", item.Key, err)
		}
		log.Info("allocations regenerated", "target", item.Target.String(), "days", len(rows))
		b.view.Modified = true
	}
	b.place(project, item, res.Days)
	return nil
}

// project returns the row of a project, appending it on first sight.
// Commitments arrive sorted by project name so rows come out in name order.
func (b *monthBuild) project(id ProjectID, name string) *ProjectView {
	if i, ok := b.projects[id]; ok {
		return &b.view.Projects[i]
	}
	b.view.Projects = append(b.view.Projects, ProjectView{
		ID:   id,
		Name: name,
		Days: NewDayHours(b.view.Year, b.view.Month),
	})
	b.projects[id] = len(b.view.Projects) - 1
	return &b.view.Projects[len(b.view.Projects)-1]
}

// insertProject adds a project by name order among existing rows.
func (b *monthBuild) insertProject(id ProjectID, name string) *ProjectView {
	at := sort.Search(len(b.view.Projects), func(i int) bool {
		return strings.ToLower(b.view.Projects[i].Name) > strings.ToLower(name)
	})
	row := ProjectView{ID: id, Name: name, Days: NewDayHours(b.view.Year, b.view.Month)}
	b.view.Projects = append(b.view.Projects, ProjectView{})
	copy(b.view.Projects[at+1:], b.view.Projects[at:])
	b.view.Projects[at] = row
	for i, p := range b.view.Projects {
		b.projects[p.ID] = i
	}
	return &b.view.Projects[at]
}

// place adds the days of a key to its project row and work package row.
func (b *monthBuild) place(project *ProjectView, item planItem, days DayHours) {
	project.Days.AddAll(days)
	if item.Key.WorkPackage == "" {
		return
	}
	if b.MergeWorkPackagesByID {
		for i := range project.WorkPackages {
			if project.WorkPackages[i].ID == item.Key.WorkPackage {
				project.WorkPackages[i].Days.AddAll(days)
				return
			}
		}
	}
	project.WorkPackages = append(project.WorkPackages, WorkPackageView{
		ID:         item.Key.WorkPackage,
		Name:       item.WorkPackageName,
		Commitment: item.Key.Commitment,
		Days:       days.Clone(),
	})
}

// =============================================================================
// MISSIONS AND INTERNAL ACTIVITIES
// =============================================================================

func (b *monthBuild) missions(ctx context.Context) error {
	if b.Missions == nil {
		return nil
	}
	year, month := b.view.Year, b.view.Month
	missions, err := b.Missions.ReportedMissions(ctx, b.view.Researcher, year, month)
	if err != nil {
		return fmt.Errorf("failed to load reported missions: %w", err)
	}

	b.covered = map[int]bool{}
	for _, m := range missions {
		if m.Date.Year() != year || m.Date.Month() != month || !m.Hours.IsPositive() {
			continue
		}
		d := m.Date.Day()
		b.covered[d] = true

		// Pinned hours claim what the day still offers.
		if claim := m.Hours.Min(b.pool.Available(d)); claim.IsPositive() {
			_ = b.pool.take(d, claim)
		}

		var project *ProjectView
		if i, ok := b.projects[m.Project]; ok {
			project = &b.view.Projects[i]
		} else {
			project = b.insertProject(m.Project, m.ProjectName)
		}
		project.Days.Set(d, project.Days.At(d).Add(m.Hours))

		if m.WorkPackage == "" {
			continue
		}
		found := false
		for i := range project.WorkPackages {
			if project.WorkPackages[i].ID == m.WorkPackage {
				wp := &project.WorkPackages[i]
				wp.Days.Set(d, wp.Days.At(d).Add(m.Hours))
				found = true
				break
			}
		}
		if !found {
			days := NewDayHours(year, month)
			days.Set(d, m.Hours)
			project.WorkPackages = append(project.WorkPackages, WorkPackageView{
				ID:   m.WorkPackage,
				Name: m.WorkPackageName,
				Days: days,
			})
		}
	}
	return nil
}

// internal appends the internal-activities row: unclaimed pool hours plus
// mission days no reported mission accounts for.
func (b *monthBuild) internal() {
	days := b.pool.Remaining()
	for i, wd := range b.att.Days {
		if wd.Code == AbsenceMission && !b.covered[i+1] {
			days[i] = days[i].Add(wd.Hours)
		}
	}
	b.view.Projects = append(b.view.Projects, ProjectView{
		Name:     InternalActivities,
		Internal: true,
		Days:     days,
	})
}

func (b *monthBuild) totals() {
	totals := NewDayHours(b.view.Year, b.view.Month)
	for i := range b.view.Projects {
		p := &b.view.Projects[i]
		roundDays(p.Days)
		p.Total = p.Days.Total().Round()
		for j := range p.WorkPackages {
			wp := &p.WorkPackages[j]
			roundDays(wp.Days)
			wp.Total = wp.Days.Total().Round()
			wp.Last = j == len(p.WorkPackages)-1
		}
		totals.AddAll(p.Days)
	}
	roundDays(totals)
	b.view.DayTotals = totals
	b.view.Total = totals.Total().Round()
}

func roundDays(days DayHours) {
	for i := range days {
		days[i] = days[i].Round()
	}
}
