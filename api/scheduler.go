/*
scheduler.go - Periodic consistency sweep

PURPOSE:
  Periodically checks every researcher with a commitment in the current
  month and records which months drifted from their targets, so that
  someone can regenerate them.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Never regenerates; regeneration stays an explicit API call
  - Records every run (SweepLog) for audit and UI display
  - A researcher whose check fails is counted, logged and skipped

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweep is active (default: true)

USAGE:
  sweep := NewConsistencySweep(store, checker, logger)
  sweep.Start()
  // ... later
  sweep.Stop()

SEE ALSO:
  - handlers.go: ListSweeps and RunSweep endpoints
  - timesheet/checker.go: Checker
*/
package api

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/timesheet-engine/generic"
	"github.com/warp/timesheet-engine/timesheet"
)

// SweepStore is what the sweep reads and writes.
type SweepStore interface {
	timesheet.ResearcherLister
	timesheet.SweepLog
}

// ConsistencySweep checks the current month of every researcher on an interval.
type ConsistencySweep struct {
	Store    SweepStore
	Checker  *timesheet.Checker
	Interval time.Duration
	Enabled  bool
	Logger   *slog.Logger
	Now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewConsistencySweep creates a sweep with a one-hour interval.
func NewConsistencySweep(store SweepStore, checker *timesheet.Checker, logger *slog.Logger) *ConsistencySweep {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConsistencySweep{
		Store:    store,
		Checker:  checker,
		Interval: time.Hour,
		Enabled:  true,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Start begins sweeping in the background, once immediately.
func (s *ConsistencySweep) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("consistency sweep disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("consistency sweep started", "interval", s.Interval)
}

// Stop stops the sweep and waits for a running pass.
func (s *ConsistencySweep) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("consistency sweep stopped")
}

func (s *ConsistencySweep) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.pass(ctx)
	for {
		select {
		case <-ticker.C:
			s.pass(ctx)
		case <-stop:
			return
		}
	}
}

func (s *ConsistencySweep) pass(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil && ctx.Err() == nil {
		s.Logger.Error("consistency sweep failed", "error", err)
	}
}

// RunNow sweeps the current month once and records the run.
func (s *ConsistencySweep) RunNow(ctx context.Context) (timesheet.SweepRun, error) {
	now := s.Now()
	run := timesheet.SweepRun{
		ID:        uuid.NewString(),
		StartedAt: now.UTC(),
		Year:      now.Year(),
		Month:     now.Month(),
	}
	log := s.Logger.With("run", run.ID, "year", run.Year, "month", int(run.Month))

	researchers, err := s.Store.Researchers(ctx, generic.MonthPeriod(run.Year, run.Month))
	if err != nil {
		return run, err
	}
	run.Researchers = len(researchers)

	for _, researcher := range researchers {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		ok, err := s.Checker.IsConsistent(ctx, researcher, run.Year, run.Month)
		if err != nil {
			run.Failed++
			log.Error("consistency check failed", "researcher", researcher, "error", err)
			continue
		}
		if !ok {
			run.Inconsistent = append(run.Inconsistent, researcher)
			log.Warn("month inconsistent with targets", "researcher", researcher)
		}
	}

	if err := s.Store.SaveSweepRun(ctx, run); err != nil {
		return run, err
	}
	log.Info("consistency sweep done",
		"researchers", run.Researchers,
		"inconsistent", len(run.Inconsistent),
		"failed", run.Failed)
	return run, nil
}
