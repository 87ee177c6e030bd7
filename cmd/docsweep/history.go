package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/output"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View previous conversion runs",
	Long: `View the history of convert, batch and watch runs.

Each run records its resource plan, per-document results, skipped documents
and performance statistics.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the report of a specific run",
	Long:  `Display the full report of a run by its ID or a unique ID prefix. Honors --output.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old history entries",
	Long:  `Remove runs older than the retention period (history.retention_days).`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryClean,
}

var (
	historyLimit int
	historyDays  int
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")
	historyCleanCmd.Flags().IntVar(&historyDays, "days", 0, "retention in days (default: history.retention_days)")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getManifest returns the run history at the configured path, falling back
// to the default location when the config cannot be loaded.
func getManifest() (*manifest.Manifest, error) {
	cfg, err := loadedConfig()
	if err != nil {
		printVerbose("%v; using the default history directory", err)
		return manifest.New(config.HistoryDir())
	}
	return manifest.New(cfg.History.Path)
}

// runHistory lists recent runs.
func runHistory(_ *cobra.Command, _ []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	runs, err := m.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(runs) == 0 {
		printInfo("No runs recorded yet.")
		printInfo("Run 'docsweep batch <dir>' to convert a directory of documents.")
		return nil
	}

	fmt.Print(renderHistory(runs))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(runs))
	fmt.Println("Use 'docsweep history show <id>' for details on a specific run.")
	return nil
}

// renderHistory formats runs as a fixed-width table.
func renderHistory(runs []manifest.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%-40s  %-7s  %-9s  %-6s  %-16s  %s\n", "ID", "KIND", "OK/TOTAL", "PAGES", "STARTED", "ELAPSED")
	b.WriteString(strings.Repeat("-", 96))
	b.WriteString("\n")

	for _, run := range runs {
		status := fmt.Sprintf("%d/%d", run.Summary.Successful, run.Summary.Total)
		if run.Error != "" {
			status += "!"
		}
		fmt.Fprintf(&b, "%-40s  %-7s  %-9s  %-6d  %-16s  %s\n",
			truncateString(run.ID, 40),
			run.Kind,
			status,
			run.Summary.TotalPages,
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Elapsed().Round(time.Second),
		)
	}
	b.WriteString(strings.Repeat("-", 96))
	b.WriteString("\n")
	return b.String()
}

// runHistoryShow renders the report of one run.
func runHistoryShow(_ *cobra.Command, args []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	run, err := m.Get(args[0])
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}
	return printReport(output.FromRun(run))
}

// runHistoryClean removes old runs.
func runHistoryClean(_ *cobra.Command, _ []string) error {
	m, err := getManifest()
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}

	days := historyDays
	if days <= 0 {
		days = config.DefaultRetentionDays
		if cfg, err := loadedConfig(); err == nil && cfg.History.RetentionDays > 0 {
			days = cfg.History.RetentionDays
		}
	}

	printInfo("Cleaning history entries older than %d days...", days)
	removed, err := m.Clean(days)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}
	printInfo("Removed %d runs.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
