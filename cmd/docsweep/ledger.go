package main

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/ledger"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the conversion ledger",
	Long: `The ledger remembers each successful conversion (source size, modification
time and output path). Documents unchanged since their last conversion are
skipped on later runs; use --no-ledger to convert them anyway.`,
}

var ledgerStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show ledger statistics",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withLedger(func(l *ledger.Ledger) error {
			stats, err := l.Stats()
			if err != nil {
				return fmt.Errorf("failed to read ledger: %w", err)
			}
			fmt.Printf("Ledger location: %s\n", stats.Path)
			fmt.Printf("Documents:       %s\n", humanize.Comma(int64(stats.Entries)))
			fmt.Printf("Pages:           %s\n", humanize.Comma(int64(stats.Pages)))
			return nil
		})
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every recorded conversion",
	Long:  `Remove all entries. The next run converts every document again.`,
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withLedger(func(l *ledger.Ledger) error {
			n, err := l.Clear()
			if err != nil {
				return fmt.Errorf("failed to clear ledger: %w", err)
			}
			printInfo("Ledger cleared (%d entries removed).", n)
			return nil
		})
	},
}

var ledgerForgetCmd = &cobra.Command{
	Use:   "forget <file>...",
	Short: "Forget specific documents so they convert again",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		paths, err := absPaths(args)
		if err != nil {
			return err
		}
		return withLedger(func(l *ledger.Ledger) error {
			for _, p := range paths {
				if _, err := l.Get(p); errors.Is(err, ledger.ErrNotFound) {
					printInfo("Not recorded: %s", p)
					continue
				}
				if err := l.Forget(p); err != nil {
					return fmt.Errorf("failed to forget %s: %w", p, err)
				}
				printInfo("Forgot %s", p)
			}
			return nil
		})
	},
}

func init() {
	ledgerCmd.AddCommand(ledgerStatsCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)
	ledgerCmd.AddCommand(ledgerForgetCmd)
	rootCmd.AddCommand(ledgerCmd)
}

// withLedger opens the configured ledger for the duration of fn.
func withLedger(fn func(*ledger.Ledger) error) error {
	path := config.DefaultLedgerPath()
	if cfg, err := loadedConfig(); err == nil {
		path = cfg.Ledger.Path
	}

	l, err := ledger.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer l.Close()
	return fn(l)
}
