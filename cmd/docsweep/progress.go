package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/viper"

	"github.com/jamesainslie/docsweep/cmd/docsweep/tui"
	"github.com/jamesainslie/docsweep/pkg/docsweep/batch"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// useTUI reports whether runs should show the interactive interface: the
// pretty format on a terminal, without --no-interactive or --quiet.
func useTUI() bool {
	if viper.GetBool("no_interactive") || getQuiet() {
		return false
	}
	if outputFormat() != "pretty" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}

// runWithProgress runs process under the progress display suited to the
// terminal: the TUI, a progress bar on stderr, or nothing in quiet mode.
// total is the queued count; the display follows the processor's own total
// once documents skipped before dispatch are known.
func runWithProgress(ctx context.Context, title string, total int, interactive bool, process tui.ProcessFunc) ([]types.Result, error) {
	if total == 0 {
		return process(ctx, nil)
	}

	if interactive {
		if err := initLogging(true); err != nil {
			return nil, err
		}
		defer func() { _ = initLogging(false) }()
		return tui.Run(ctx, tui.Options{Title: title, Total: total, Process: process})
	}

	if getQuiet() {
		return process(ctx, nil)
	}

	bar := newProgressBar(total, title)
	results, err := process(ctx, func(p batch.Progress) {
		if p.Total > 0 && p.Total != bar.GetMax() {
			bar.ChangeMax(p.Total)
		}
		bar.Describe(barMessage(p.Message))
		_ = bar.Set(p.Completed)
	})
	if err != nil {
		_ = bar.Exit()
	} else {
		_ = bar.Finish()
	}
	fmt.Fprintln(os.Stderr)
	return results, err
}

func newProgressBar(total int, title string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(title),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// barMessage shortens a batch progress message for the progress bar.
func barMessage(message string) string {
	const maxLen = 60
	if len(message) <= maxLen {
		return message
	}
	return "..." + message[len(message)-maxLen+3:]
}

// sourceLabel describes the documents a run covers.
func sourceLabel(paths []string) string {
	switch len(paths) {
	case 0:
		return ""
	case 1:
		return paths[0]
	default:
		return fmt.Sprintf("%d files in %s", len(paths), commonDir(paths))
	}
}

// commonDir returns the deepest directory containing every path.
func commonDir(paths []string) string {
	dir := filepath.Dir(paths[0])
	for _, p := range paths[1:] {
		for !isWithin(p, dir) {
			parent := filepath.Dir(dir)
			if parent == dir {
				return dir
			}
			dir = parent
		}
	}
	return dir
}

func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !filepath.IsAbs(rel) && (len(rel) < 3 || rel[:3] != ".."+string(filepath.Separator))
}
