package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
)

var convertPriority int

var convertCmd = &cobra.Command{
	Use:   "convert <file>...",
	Short: "Convert specific documents",
	Long: `Convert one or more documents to Markdown.

Each document is written to <out-dir>/<name>_md/<name>.md with extracted images
under images/. Missing, too-small and unchanged documents are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().IntVar(&convertPriority, "priority", 0, "task priority (higher runs first)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(_ *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	paths, err := absPaths(args)
	if err != nil {
		return err
	}

	ctx, cancel := interruptContext()
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	q := queue.New()
	q.AddMany(paths, "", convertPriority)
	printVerbose("Queued %d documents with %d workers", q.Len(), s.res.Plan.Workers)

	report, err := s.run(ctx, manifest.KindConvert, sourceLabel(paths), q, useTUI())
	return finishRun(report, err)
}

// absPaths expands ~ and resolves each argument to an absolute path.
func absPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to expand path: %w", err)
		}
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path: %w", err)
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

// interruptContext returns a context cancelled on SIGINT or SIGTERM.
// Documents already converting are allowed to finish.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			printInfo("\nInterrupted, finishing documents in progress...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
