package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/timesheet-engine/api"
	"github.com/warp/timesheet-engine/attendance"
	"github.com/warp/timesheet-engine/holidays"
	"github.com/warp/timesheet-engine/timesheet"
)

// =============================================================================
// MONTH AND CHECK
// =============================================================================

var monthCmd = &cobra.Command{
	Use:   "month <researcher> <YYYY-MM>",
	Short: "Print the month view of a researcher",
	Args:  cobra.ExactArgs(2),
	RunE:  runMonth,
}

var checkCmd = &cobra.Command{
	Use:   "check <researcher> <YYYY-MM>",
	Short: "Print the consistency report of a month",
	Args:  cobra.ExactArgs(2),
	RunE:  runCheck,
}

func init() {
	monthCmd.Flags().Bool("regenerate", false, "Regenerate allocations that no longer match targets")
	monthCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	checkCmd.Flags().Bool("json", false, "Print JSON instead of text")
}

func runMonth(cmd *cobra.Command, args []string) error {
	regenerate, _ := cmd.Flags().GetBool("regenerate")
	asJSON, _ := cmd.Flags().GetBool("json")

	year, month, err := parseMonth(args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	assembler := api.NewAssembler(store)
	assembler.Allocator = newAllocator(cfg)
	assembler.Logger = newLogger(cfg)
	assembler.MergeWorkPackagesByID = cfg.Allocation.MergeWorkPackagesByID

	view, err := assembler.BuildMonth(cmd.Context(), timesheet.ResearcherID(args[0]), year, month,
		timesheet.BuildOptions{AllowRegenerate: regenerate})
	if err != nil {
		if timesheet.IsReportingError(err) && !regenerate {
			return fmt.Errorf("%w (rerun with --regenerate)", err)
		}
		return err
	}

	if asJSON {
		return printJSON(view)
	}
	fmt.Println(renderMonth(view))
	for _, w := range view.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	year, month, err := parseMonth(args[1])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := api.NewAssembler(store).Checker().Check(cmd.Context(), timesheet.ResearcherID(args[0]), year, month)
	if err != nil {
		return err
	}
	if asJSON {
		return printJSON(report)
	}
	fmt.Println(renderReport(report))
	if !report.OK() {
		os.Exit(2)
	}
	return nil
}

// =============================================================================
// IMPORTS
// =============================================================================

var holidaysCmd = &cobra.Command{
	Use:   "holidays",
	Short: "Manage public holidays",
}

var holidaysImportCmd = &cobra.Command{
	Use:   "import <file.ics>",
	Short: "Import public holidays from an iCalendar file",
	Args:  cobra.ExactArgs(1),
	RunE:  runHolidaysImport,
}

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Manage imported attendance",
}

var attendanceImportCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import attendance from a workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceImport,
}

func init() {
	holidaysImportCmd.Flags().Int("year", 0, "Keep one-off holidays of this year only (0 keeps all)")
	holidaysCmd.AddCommand(holidaysImportCmd)

	attendanceImportCmd.Flags().String("sheet", "", "Sheet name (default: first sheet)")
	attendanceCmd.AddCommand(attendanceImportCmd)
}

func runHolidaysImport(cmd *cobra.Command, args []string) error {
	year, _ := cmd.Flags().GetInt("year")

	hs, err := holidays.ImportFile(args[0], year)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, h := range hs {
		if err := store.SaveHoliday(cmd.Context(), h); err != nil {
			return fmt.Errorf("saving holiday %s: %w", h.Name, err)
		}
	}
	fmt.Printf("Imported %d holiday(s)\n", len(hs))
	return nil
}

func runAttendanceImport(cmd *cobra.Command, args []string) error {
	sheet, _ := cmd.Flags().GetString("sheet")

	days, err := attendance.ImportWorkbook(args[0], sheet)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SaveWorkDays(cmd.Context(), days); err != nil {
		return err
	}
	fmt.Printf("Imported %d day(s) of attendance\n", len(days))
	return nil
}

// =============================================================================
// SEED
// =============================================================================

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo scenario",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().String("scenario", "horizon-researcher", "Scenario to load")
	seedCmd.Flags().String("month", "", "Month to seed, YYYY-MM (default: current month)")
	seedCmd.Flags().Bool("list", false, "List scenarios and exit")
}

func runSeed(cmd *cobra.Command, args []string) error {
	if list, _ := cmd.Flags().GetBool("list"); list {
		for _, s := range api.Scenarios() {
			fmt.Printf("%-20s %s\n", s.ID, s.Description)
		}
		return nil
	}

	scenario, _ := cmd.Flags().GetString("scenario")
	monthFlag, _ := cmd.Flags().GetString("month")

	now := time.Now()
	year, month := now.Year(), now.Month()
	if monthFlag != "" {
		var err error
		if year, month, err = parseMonth(monthFlag); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := api.SeedScenario(cmd.Context(), store, scenario, year, month); err != nil {
		return err
	}
	fmt.Printf("Loaded %s for %04d-%02d into %s\n", scenario, year, int(month), cfg.Database.Path)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
