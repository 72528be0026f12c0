/*
main.go - Command-line entry point

PURPOSE:
  The timesheet binary serves the HTTP API and runs the engine from the
  shell against the same SQLite database.

COMMANDS:
  serve               Start the HTTP server and the consistency sweep
  month               Print the month view of a researcher
  check               Print the consistency report of a month
  holidays import     Import public holidays from an .ics file
  attendance import   Import attendance from an .xlsx workbook
  seed                Load a demo scenario

CONFIGURATION:
  --config selects the TOML file (default ~/.config/timesheet/config.toml).
  --db overrides the database path. See config/config.go for env overrides.

EXAMPLES:
  timesheet seed --scenario horizon-researcher --month 2025-06
  timesheet month r-demo 2025-06 --regenerate
  timesheet serve --db=":memory:"
*/
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timesheet-engine/config"
	"github.com/warp/timesheet-engine/store/sqlite"
	"github.com/warp/timesheet-engine/timesheet"
)

var rootCmd = &cobra.Command{
	Use:           "timesheet",
	Short:         "Timesheet hour-allocation engine",
	Long:          "timesheet spreads the hours researchers worked across their funded projects and checks persisted timesheets against targets.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	dbPath     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/timesheet/config.toml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path, \":memory:\" for in-memory")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monthCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(holidaysCmd)
	rootCmd.AddCommand(attendanceCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.SlogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openStore(cfg *config.Config) (*sqlite.Store, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return store, nil
}

func newAllocator(cfg *config.Config) *timesheet.Allocator {
	seed := cfg.Allocation.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	alloc := timesheet.NewAllocator(rand.NewSource(seed))
	if cfg.Allocation.MaxPasses > 0 {
		alloc.MaxPasses = cfg.Allocation.MaxPasses
	}
	return alloc
}

// parseMonth parses YYYY-MM.
func parseMonth(s string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, fmt.Errorf("month %q: want YYYY-MM", s)
	}
	return t.Year(), t.Month(), nil
}
