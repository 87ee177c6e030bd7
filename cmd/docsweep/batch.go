package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/docsweep/pkg/docsweep/filter"
	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

var batchCmd = &cobra.Command{
	Use:   "batch [dir]",
	Short: "Convert every matching document in a directory",
	Long: `Discover documents matching --pattern in a directory (and its subdirectories
with --recursive) and convert them in one run.

The worker count and engine batch sizes come from the detected hardware unless
overridden, and fewer documents are started while memory is under pressure.

Examples:
  docsweep batch ~/papers -r
  docsweep batch ~/scans -r --exclude '**/drafts/**' --newer-than 2w
  docsweep batch ~/archive -r --sort size --limit 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

// Discovery flags.
var (
	batchExclude     []string
	batchMaxFileSize string
	batchOlderThan   string
	batchNewerThan   string
	batchMaxDepth    int
	batchLimit       int
	batchSort        string
	batchDescending  bool
)

func init() {
	rootCmd.AddCommand(batchCmd)

	f := batchCmd.Flags()
	f.StringSliceVar(&batchExclude, "exclude", nil, "skip documents matching glob (repeatable, ** crosses directories)")
	f.StringVar(&batchMaxFileSize, "max-file-size", "", "skip documents larger than size (e.g. 200M)")
	f.StringVar(&batchOlderThan, "older-than", "", "only documents modified before age (e.g. 30d, 6mo)")
	f.StringVar(&batchNewerThan, "newer-than", "", "only documents modified within age (e.g. 2w)")
	f.IntVar(&batchMaxDepth, "max-depth", 0, "maximum directory depth with --recursive (0 = unlimited)")
	f.IntVar(&batchLimit, "limit", 0, "convert at most n documents (0 = all)")
	f.StringVar(&batchSort, "sort", "path", "queue order: path, size, age")
	f.BoolVar(&batchDescending, "desc", false, "reverse the queue order")
}

// discoveryFilter builds the document filter from the batch flags.
func discoveryFilter() (*filter.Filter, error) {
	sortBy, err := filter.ParseSortField(batchSort)
	if err != nil {
		return nil, err
	}
	opts := []filter.Option{
		filter.WithExclude(batchExclude...),
		filter.WithMaxDepth(batchMaxDepth),
		filter.WithLimit(batchLimit),
		filter.WithSort(sortBy, batchDescending),
	}

	if batchMaxFileSize != "" {
		size, err := types.ParseSize(batchMaxFileSize)
		if err != nil {
			return nil, fmt.Errorf("invalid --max-file-size: %w", err)
		}
		opts = append(opts, filter.WithMaxSize(size))
	}
	if batchOlderThan != "" {
		age, err := filter.ParseAge(batchOlderThan)
		if err != nil {
			return nil, fmt.Errorf("invalid --older-than: %w", err)
		}
		opts = append(opts, filter.WithOlderThan(age))
	}
	if batchNewerThan != "" {
		age, err := filter.ParseAge(batchNewerThan)
		if err != nil {
			return nil, fmt.Errorf("invalid --newer-than: %w", err)
		}
		opts = append(opts, filter.WithNewerThan(age))
	}
	return filter.New(opts...)
}

func runBatch(_ *cobra.Command, args []string) error {
	cfg, err := loadedConfig()
	if err != nil {
		return err
	}

	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	paths, err := absPaths([]string{dir})
	if err != nil {
		return err
	}
	dir = paths[0]

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path does not exist: %s", dir)
		}
		return fmt.Errorf("cannot access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}

	f, err := discoveryFilter()
	if err != nil {
		return err
	}

	q := queue.New()
	tasks, err := q.AddDiscovered(dir, queue.Discovery{
		Pattern:   cfg.Pattern,
		Recursive: cfg.Recursive,
		Filter:    f,
	}, "", 0)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		printInfo("No documents matching %q in %s", cfg.Pattern, dir)
		return nil
	}

	ctx, cancel := interruptContext()
	defer cancel()

	s, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	printVerbose("Found %d documents; %d workers, batch %d, device %s",
		len(tasks), s.res.Plan.Workers, s.res.Plan.BatchSize, s.res.Device)

	report, err := s.run(ctx, manifest.KindBatch, dir, q, useTUI())
	return finishRun(report, err)
}
