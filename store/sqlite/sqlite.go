/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every collaborator of the timesheet engine using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

INTERFACES IMPLEMENTED:
  timesheet.AttendanceStore:    Imported workdays
  timesheet.CommitmentRegistry: Commitments, monthly targets, work-package shares
  timesheet.AllocationStore:    Day-by-day allocation rows
  timesheet.MissionStore:       Reported missions
  timesheet.ResearcherLister:   Researchers for the consistency sweep
  timesheet.SweepLog:           Consistency sweep runs
  generic.HolidayStore:         Public holidays (recurring and one-off)

KEY TABLES:
  workdays:            (researcher, date) -> hours, absence code
  commitments:         Reporting periods of researchers on projects
  monthly_targets:     (commitment, year, month) -> target hours
  work_package_shares: Split of a commitment by weighted fraction
  allocations:         (commitment, work package, date) -> hours
  reported_missions:   Mission hours pinned to one day
  holidays:            Public holidays
  sweep_runs:          Consistency sweep history

HOURS:
  Stored as decimal TEXT, never REAL, so that 3.6 stays 3.6.

ATOMIC REPLACEMENT:
  ReplaceAllocations deletes and inserts the rows of one key and month inside
  one SQL transaction. A concurrent reader sees the old set or the new one.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/timesheet.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - timesheet/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would open its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Attendance imported from the HR system
	CREATE TABLE IF NOT EXISTS workdays (
		researcher TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		code TEXT NOT NULL DEFAULT '',
		imported_at TEXT NOT NULL,
		PRIMARY KEY (researcher, date)
	);

	-- Reporting periods
	CREATE TABLE IF NOT EXISTS commitments (
		id TEXT PRIMARY KEY,
		researcher TEXT NOT NULL,
		project_id TEXT NOT NULL,
		project_name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		half_day_quantum BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_commitments_researcher_period
		ON commitments(researcher, start_date, end_date);

	CREATE TABLE IF NOT EXISTS monthly_targets (
		commitment_id TEXT NOT NULL REFERENCES commitments(id) ON DELETE CASCADE,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		hours TEXT NOT NULL,
		PRIMARY KEY (commitment_id, year, month)
	);

	CREATE TABLE IF NOT EXISTS work_package_shares (
		commitment_id TEXT NOT NULL REFERENCES commitments(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		work_package_id TEXT NOT NULL,
		name TEXT NOT NULL,
		fraction REAL NOT NULL,
		PRIMARY KEY (commitment_id, work_package_id)
	);

	-- Allocator output; work_package_id is '' for unsplit commitments
	CREATE TABLE IF NOT EXISTS allocations (
		commitment_id TEXT NOT NULL,
		work_package_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		PRIMARY KEY (commitment_id, work_package_id, date)
	);

	CREATE TABLE IF NOT EXISTS reported_missions (
		id TEXT PRIMARY KEY,
		researcher TEXT NOT NULL,
		date TEXT NOT NULL,
		hours TEXT NOT NULL,
		project_id TEXT NOT NULL,
		project_name TEXT NOT NULL,
		work_package_id TEXT NOT NULL DEFAULT '',
		work_package_name TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_missions_researcher_date
		ON reported_missions(researcher, date);

	-- Holidays; recurring ones match month/day of any year
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);

	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		researchers INTEGER NOT NULL,
		inconsistent_json TEXT NOT NULL,
		failed INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ATTENDANCE (timesheet.AttendanceStore)
// =============================================================================

// SaveWorkDay inserts or replaces the attendance of one day.
func (s *Store) SaveWorkDay(ctx context.Context, wd timesheet.WorkDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveWorkDay(ctx, s.db, wd)
}

// SaveWorkDays imports a batch of workdays atomically.
func (s *Store) SaveWorkDays(ctx context.Context, wds []timesheet.WorkDay) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		for _, wd := range wds {
			if err := tx.SaveWorkDay(ctx, wd); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveWorkDay(ctx context.Context, ex execer, wd timesheet.WorkDay) error {
	if wd.Hours.IsNegative() {
		return fmt.Errorf("workday %s: negative hours %s", wd.Date, wd.Hours)
	}
	query := `
		INSERT INTO workdays (researcher, date, hours, code, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(researcher, date) DO UPDATE SET
			hours = excluded.hours,
			code = excluded.code,
			imported_at = excluded.imported_at
	`
	_, err := ex.ExecContext(ctx, query,
		string(wd.Researcher),
		wd.Date.String(),
		wd.Hours.Value.String(),
		string(wd.Code),
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save workday: %w", err)
	}
	return nil
}

// WorkDay returns the attendance of a researcher on date.
func (s *Store) WorkDay(ctx context.Context, researcher timesheet.ResearcherID, date generic.TimePoint) (timesheet.WorkDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours, code string
	err := s.db.QueryRowContext(ctx,
		`SELECT hours, code FROM workdays WHERE researcher = ? AND date = ?`,
		string(researcher), date.String(),
	).Scan(&hours, &code)
	if errors.Is(err, sql.ErrNoRows) {
		return timesheet.WorkDay{}, timesheet.ErrNoWorkDay
	}
	if err != nil {
		return timesheet.WorkDay{}, err
	}

	h, err := generic.ParseHours(hours)
	if err != nil {
		return timesheet.WorkDay{}, fmt.Errorf("workday %s %s: %w", researcher, date, err)
	}
	return timesheet.WorkDay{
		Researcher: researcher,
		Date:       date,
		Hours:      h,
		Code:       timesheet.AbsenceCode(code),
	}, nil
}

// =============================================================================
// COMMITMENTS (timesheet.CommitmentRegistry)
// =============================================================================

// SaveCommitment inserts or replaces a commitment. Periods of the same
// researcher and project must not overlap.
func (s *Store) SaveCommitment(ctx context.Context, c timesheet.Commitment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveCommitment(ctx, s.db, c)
}

func saveCommitment(ctx context.Context, ex execer, c timesheet.Commitment) error {
	if err := c.Period.Validate(); err != nil {
		return err
	}

	var clash string
	err := ex.QueryRowContext(ctx, `
		SELECT id FROM commitments
		WHERE researcher = ? AND project_id = ? AND id != ?
		  AND start_date <= ? AND ? <= end_date
		LIMIT 1
	`, string(c.Researcher), string(c.Project), string(c.ID), c.Period.End.String(), c.Period.Start.String()).Scan(&clash)
	if err == nil {
		return fmt.Errorf("%w: %s and %s", timesheet.ErrOverlappingCommitment, c.ID, clash)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	query := `
		INSERT INTO commitments (id, researcher, project_id, project_name, start_date, end_date, half_day_quantum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			researcher = excluded.researcher,
			project_id = excluded.project_id,
			project_name = excluded.project_name,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			half_day_quantum = excluded.half_day_quantum
	`
	_, err = ex.ExecContext(ctx, query,
		string(c.ID),
		string(c.Researcher),
		string(c.Project),
		c.ProjectName,
		c.Period.Start.String(),
		c.Period.End.String(),
		c.HalfDayQuantum,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save commitment: %w", err)
	}
	return nil
}

// Commitments returns the commitments of researcher overlapping period,
// ordered by project name, then period start.
func (s *Store) Commitments(ctx context.Context, researcher timesheet.ResearcherID, period generic.Period) ([]timesheet.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, researcher, project_id, project_name, start_date, end_date, half_day_quantum
		FROM commitments
		WHERE researcher = ? AND start_date <= ? AND ? <= end_date
		ORDER BY project_name, start_date, id
	`, string(researcher), period.End.String(), period.Start.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timesheet.Commitment
	for rows.Next() {
		var c timesheet.Commitment
		var id, res, project, start, end string
		if err := rows.Scan(&id, &res, &project, &c.ProjectName, &start, &end, &c.HalfDayQuantum); err != nil {
			return nil, err
		}
		c.ID = timesheet.CommitmentID(id)
		c.Researcher = timesheet.ResearcherID(res)
		c.Project = timesheet.ProjectID(project)
		if c.Period.Start, err = generic.ParseDay(start); err != nil {
			return nil, err
		}
		if c.Period.End, err = generic.ParseDay(end); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetMonthlyTarget sets the target hours of a commitment for a month.
func (s *Store) SetMonthlyTarget(ctx context.Context, commitment timesheet.CommitmentID, year int, month time.Month, hours generic.Hours) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setMonthlyTarget(ctx, s.db, commitment, year, month, hours)
}

func setMonthlyTarget(ctx context.Context, ex execer, commitment timesheet.CommitmentID, year int, month time.Month, hours generic.Hours) error {
	if err := generic.ValidateMonth(year, month); err != nil {
		return err
	}
	query := `
		INSERT INTO monthly_targets (commitment_id, year, month, hours)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(commitment_id, year, month) DO UPDATE SET hours = excluded.hours
	`
	if _, err := ex.ExecContext(ctx, query, string(commitment), year, int(month), hours.Value.String()); err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("commitment %s: %w", commitment, generic.ErrNotFound)
		}
		return fmt.Errorf("failed to save target: %w", err)
	}
	return nil
}

// MonthlyTarget returns ErrNoTarget when no target was set.
func (s *Store) MonthlyTarget(ctx context.Context, commitment timesheet.CommitmentID, year int, month time.Month) (generic.Hours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hours string
	err := s.db.QueryRowContext(ctx,
		`SELECT hours FROM monthly_targets WHERE commitment_id = ? AND year = ? AND month = ?`,
		string(commitment), year, int(month),
	).Scan(&hours)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Hours{}, timesheet.ErrNoTarget
	}
	if err != nil {
		return generic.Hours{}, err
	}
	return generic.ParseHours(hours)
}

// SetWorkPackageShares replaces the split of a commitment.
func (s *Store) SetWorkPackageShares(ctx context.Context, commitment timesheet.CommitmentID, shares []timesheet.WorkPackageShare) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.SetWorkPackageShares(ctx, commitment, shares)
	})
}

func setWorkPackageShares(ctx context.Context, ex execer, commitment timesheet.CommitmentID, shares []timesheet.WorkPackageShare) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM work_package_shares WHERE commitment_id = ?`, string(commitment)); err != nil {
		return err
	}
	for i, sh := range shares {
		_, err := ex.ExecContext(ctx, `
			INSERT INTO work_package_shares (commitment_id, position, work_package_id, name, fraction)
			VALUES (?, ?, ?, ?, ?)
		`, string(commitment), i, string(sh.WorkPackage), sh.Name, sh.Fraction)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("commitment %s: %w", commitment, generic.ErrNotFound)
			}
			return fmt.Errorf("failed to save work package share: %w", err)
		}
	}
	return nil
}

// WorkPackageShares returns the split of a commitment in insertion order.
func (s *Store) WorkPackageShares(ctx context.Context, commitment timesheet.CommitmentID) ([]timesheet.WorkPackageShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT work_package_id, name, fraction
		FROM work_package_shares
		WHERE commitment_id = ?
		ORDER BY position
	`, string(commitment))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timesheet.WorkPackageShare
	for rows.Next() {
		var sh timesheet.WorkPackageShare
		var wp string
		if err := rows.Scan(&wp, &sh.Name, &sh.Fraction); err != nil {
			return nil, err
		}
		sh.WorkPackage = timesheet.WorkPackageID(wp)
		out = append(out, sh)
	}
	return out, rows.Err()
}

// Researchers returns the researchers with a commitment overlapping period.
func (s *Store) Researchers(ctx context.Context, period generic.Period) ([]timesheet.ResearcherID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT researcher FROM commitments
		WHERE start_date <= ? AND ? <= end_date
		ORDER BY researcher
	`, period.End.String(), period.Start.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timesheet.ResearcherID
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, timesheet.ResearcherID(r))
	}
	return out, rows.Err()
}

// =============================================================================
// ALLOCATIONS (timesheet.AllocationStore)
// =============================================================================

// Allocations returns the rows of key in the month, by date.
func (s *Store) Allocations(ctx context.Context, key timesheet.AllocationKey, year int, month time.Month) ([]timesheet.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period := generic.MonthPeriod(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, hours FROM allocations
		WHERE commitment_id = ? AND work_package_id = ? AND date BETWEEN ? AND ?
		ORDER BY date
	`, string(key.Commitment), string(key.WorkPackage), period.Start.String(), period.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timesheet.Allocation
	for rows.Next() {
		var date, hours string
		if err := rows.Scan(&date, &hours); err != nil {
			return nil, err
		}
		a := timesheet.Allocation{Key: key}
		if a.Date, err = generic.ParseDay(date); err != nil {
			return nil, err
		}
		if a.Hours, err = generic.ParseHours(hours); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReplaceAllocations swaps the rows of key in the month inside one SQL
// transaction.
func (s *Store) ReplaceAllocations(ctx context.Context, key timesheet.AllocationKey, year int, month time.Month, rows []timesheet.Allocation) error {
	for _, r := range rows {
		if r.Date.Year() != year || r.Date.Month() != month {
			return fmt.Errorf("allocation of %s on %s outside %04d-%02d: %w", key, r.Date, year, int(month), generic.ErrInvalidPeriod)
		}
	}

	return s.WithTx(ctx, func(tx *Tx) error {
		period := generic.MonthPeriod(year, month)
		_, err := tx.tx.ExecContext(ctx, `
			DELETE FROM allocations
			WHERE commitment_id = ? AND work_package_id = ? AND date BETWEEN ? AND ?
		`, string(key.Commitment), string(key.WorkPackage), period.Start.String(), period.End.String())
		if err != nil {
			return fmt.Errorf("failed to delete allocations: %w", err)
		}

		// One row per day; duplicates of a day are summed.
		merged := timesheet.DayHoursFrom(rows, year, month).Allocations(key, year, month)
		for _, r := range merged {
			_, err := tx.tx.ExecContext(ctx, `
				INSERT INTO allocations (commitment_id, work_package_id, date, hours)
				VALUES (?, ?, ?, ?)
			`, string(key.Commitment), string(key.WorkPackage), r.Date.String(), r.Hours.Value.String())
			if err != nil {
				return fmt.Errorf("failed to insert allocation: %w", err)
			}
		}
		return nil
	})
}

// =============================================================================
// MISSIONS (timesheet.MissionStore)
// =============================================================================

// SaveMission inserts or replaces a reported mission.
func (s *Store) SaveMission(ctx context.Context, m timesheet.ReportedMission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMission(ctx, s.db, m)
}

func saveMission(ctx context.Context, ex execer, m timesheet.ReportedMission) error {
	query := `
		INSERT INTO reported_missions (id, researcher, date, hours, project_id, project_name, work_package_id, work_package_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			researcher = excluded.researcher,
			date = excluded.date,
			hours = excluded.hours,
			project_id = excluded.project_id,
			project_name = excluded.project_name,
			work_package_id = excluded.work_package_id,
			work_package_name = excluded.work_package_name
	`
	_, err := ex.ExecContext(ctx, query,
		m.ID,
		string(m.Researcher),
		m.Date.String(),
		m.Hours.Value.String(),
		string(m.Project),
		m.ProjectName,
		string(m.WorkPackage),
		m.WorkPackageName,
	)
	if err != nil {
		return fmt.Errorf("failed to save mission: %w", err)
	}
	return nil
}

// ReportedMissions returns the missions of researcher in the month, by date.
func (s *Store) ReportedMissions(ctx context.Context, researcher timesheet.ResearcherID, year int, month time.Month) ([]timesheet.ReportedMission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period := generic.MonthPeriod(year, month)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, hours, project_id, project_name, work_package_id, work_package_name
		FROM reported_missions
		WHERE researcher = ? AND date BETWEEN ? AND ?
		ORDER BY date, id
	`, string(researcher), period.Start.String(), period.End.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []timesheet.ReportedMission
	for rows.Next() {
		m := timesheet.ReportedMission{Researcher: researcher}
		var date, hours, project, wp string
		if err := rows.Scan(&m.ID, &date, &hours, &project, &m.ProjectName, &wp, &m.WorkPackageName); err != nil {
			return nil, err
		}
		if m.Date, err = generic.ParseDay(date); err != nil {
			return nil, err
		}
		if m.Hours, err = generic.ParseHours(hours); err != nil {
			return nil, err
		}
		m.Project = timesheet.ProjectID(project)
		m.WorkPackage = timesheet.WorkPackageID(wp)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAY CALENDAR IMPLEMENTATION
// =============================================================================

// SaveHoliday inserts or replaces a holiday by ID.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHoliday(ctx, s.db, h)
}

func saveHoliday(ctx context.Context, ex execer, h generic.Holiday) error {
	if h.ID == "" {
		return fmt.Errorf("holiday without id")
	}
	query := `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			name = excluded.name,
			recurring = excluded.recurring
	`
	_, err := ex.ExecContext(ctx, query,
		h.ID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		time.Now().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// IsHoliday checks recurring holidays (any year) before one-off dates.
// Query errors count as "not a holiday".
func (s *Store) IsHoliday(date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM holidays WHERE recurring = TRUE AND strftime('%m-%d', date) = ?`,
		date.Time.Format("01-02"),
	).Scan(&count)
	if err == nil && count > 0 {
		return true
	}

	err = s.db.QueryRow(
		`SELECT COUNT(*) FROM holidays WHERE recurring = FALSE AND date = ?`,
		date.String(),
	).Scan(&count)
	return err == nil && count > 0
}

// Holidays returns all holidays, recurring first.
func (s *Store) Holidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = generic.ParseDay(dateStr); err != nil {
			return nil, err
		}
		holidays = append(holidays, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	generic.SortHolidays(holidays)
	return holidays, nil
}

// =============================================================================
// SWEEP RUNS (timesheet.SweepLog)
// =============================================================================

// SaveSweepRun records a consistency sweep.
func (s *Store) SaveSweepRun(ctx context.Context, r timesheet.SweepRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inconsistent, err := json.Marshal(r.Inconsistent)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, started_at, year, month, researchers, inconsistent_json, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.StartedAt.UTC().Format(time.RFC3339Nano), r.Year, int(r.Month), r.Researchers, string(inconsistent), r.Failed)
	return err
}

// SweepRuns returns the latest sweep runs, newest first.
func (s *Store) SweepRuns(ctx context.Context, limit int) ([]timesheet.SweepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, year, month, researchers, inconsistent_json, failed
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []timesheet.SweepRun
	for rows.Next() {
		var r timesheet.SweepRun
		var startedAt, inconsistent string
		var month int
		if err := rows.Scan(&r.ID, &startedAt, &r.Year, &month, &r.Researchers, &inconsistent, &r.Failed); err != nil {
			return nil, err
		}
		r.Month = time.Month(month)
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if err := json.Unmarshal([]byte(inconsistent), &r.Inconsistent); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Tx exposes the write operations of the store inside one SQL transaction.
type Tx struct {
	tx *sql.Tx
}

// WithTx executes fn within a database transaction. Every write of fn is
// committed together or rolled back if fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

func (t *Tx) SaveWorkDay(ctx context.Context, wd timesheet.WorkDay) error {
	return saveWorkDay(ctx, t.tx, wd)
}

func (t *Tx) SaveCommitment(ctx context.Context, c timesheet.Commitment) error {
	return saveCommitment(ctx, t.tx, c)
}

func (t *Tx) SetMonthlyTarget(ctx context.Context, commitment timesheet.CommitmentID, year int, month time.Month, hours generic.Hours) error {
	return setMonthlyTarget(ctx, t.tx, commitment, year, month, hours)
}

func (t *Tx) SetWorkPackageShares(ctx context.Context, commitment timesheet.CommitmentID, shares []timesheet.WorkPackageShare) error {
	return setWorkPackageShares(ctx, t.tx, commitment, shares)
}

func (t *Tx) SaveMission(ctx context.Context, m timesheet.ReportedMission) error {
	return saveMission(ctx, t.tx, m)
}

func (t *Tx) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	return saveHoliday(ctx, t.tx, h)
}

// Helper functions

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
