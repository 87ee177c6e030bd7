package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/watcher"
)

var (
	watchExisting bool
	watchSettle   string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Convert documents as they appear in a directory",
	Long: `Watch a directory and convert each new document matching --pattern once it
has stopped changing for the settle period (watch.settle, default 2s).

Documents arriving together are converted in one run, and each run is recorded
in history. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchExisting, "existing", false, "convert documents already in the directory first")
	watchCmd.Flags().StringVar(&watchSettle, "settle", "", "quiet period before a new file is converted (e.g. 5s)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	dir := paths[0]

	settle := cfg.Watch.Settle
	if watchSettle != "" {
		settle, err = parseDuration(watchSettle)
		if err != nil {
			return fmt.Errorf("invalid settle %q: %w", watchSettle, err)
		}
	}

	w, err := watcher.New(watcher.Options{
		Pattern:   cfg.Pattern,
		Recursive: cfg.Recursive,
		Settle:    settle,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Watch(dir); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", dir)
		}
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// convertBatch reports the run and stops watching only when the engine
	// cannot start; document failures are shown and watching continues.
	var fatal error
	convertBatch := func(q *queue.Queue) {
		report, err := s.run(ctx, manifest.KindWatch, dir, q, false)
		if err = finishRun(report, err); err != nil && !errors.Is(err, errDocumentsFailed) {
			fatal = err
			cancel()
			return
		}
		// warnings apply once
		s.warnings = nil
	}

	if watchExisting {
		q := queue.New()
		tasks, err := q.AddFromDirectory(dir, cfg.Pattern, cfg.Recursive, "", 0)
		if err != nil {
			return err
		}
		if len(tasks) > 0 {
			convertBatch(q)
		}
	}

	printInfo("Watching %s for %s (settle %s, Ctrl+C to stop)", dir, cfg.Pattern, settle)
	if ctx.Err() == nil {
		w.Run(ctx, func(paths []string) {
			q := queue.New()
			q.AddMany(paths, "", 0)
			convertBatch(q)
		})
	}

	if fatal != nil {
		return fatal
	}
	printInfo("Stopped watching %s", dir)
	return nil
}

// parseDuration parses a Go duration, accepting a bare number as seconds.
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, errors.New("duration cannot be negative")
		}
		return d, nil
	}
	secs, err := strconv.Atoi(s)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("not a duration: %q", s)
	}
	return time.Duration(secs) * time.Second, nil
}
