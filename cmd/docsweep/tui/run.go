package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Run shows the progress view while opts.Process runs and returns its
// results. It returns when Process does.
func Run(ctx context.Context, opts Options) ([]types.Result, error) {
	logCh := logging.Subscribe()
	defer logging.Unsubscribe(logCh)

	model := NewModel(ctx, opts, logCh)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("progress view: %w", err)
	}

	m, ok := final.(Model)
	if !ok {
		return nil, fmt.Errorf("progress view: unexpected model %T", final)
	}
	return m.Results()
}
