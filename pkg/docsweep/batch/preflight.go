package batch

import (
	"fmt"
	"os"

	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Skip reasons recorded on tasks that never reach the converter.
const (
	reasonMissing   = "source not found"
	reasonExists    = "output already exists"
	reasonUnchanged = "unchanged since last conversion"
	reasonCancelled = "batch cancelled"
)

// preflight marks tasks that need no conversion as skipped and returns the
// rest in their original order.
func (p *Processor) preflight(tasks []*queue.Task) []*queue.Task {
	runnable := make([]*queue.Task, 0, len(tasks))
	for _, task := range tasks {
		reason := p.skipReason(task)
		if reason == "" {
			runnable = append(runnable, task)
			continue
		}
		if err := task.MarkSkipped(reason); err != nil {
			p.log.Warn("could not skip task", "task", task.ID, "error", err)
			continue
		}
		p.log.Info("skipped document", "source", task.SourceName(), "reason", reason)
	}
	return runnable
}

func (p *Processor) skipReason(task *queue.Task) string {
	info, err := os.Stat(task.SourcePath)
	if err != nil || info.IsDir() {
		return reasonMissing
	}
	if info.Size() < p.opts.MinFileSize {
		return fmt.Sprintf("file too small (%s < %s)",
			types.FormatSize(info.Size()), types.FormatSize(p.opts.MinFileSize))
	}
	if p.opts.SkipExisting {
		md := MarkdownPath(p.outputDirFor(task), task.SourcePath)
		if _, err := os.Stat(md); err == nil {
			return reasonExists
		}
	}
	if p.opts.Ledger != nil {
		unchanged, err := p.opts.Ledger.Unchanged(task.SourcePath)
		if err != nil {
			p.log.Warn("ledger lookup failed", "source", task.SourceName(), "error", err)
		} else if unchanged {
			return reasonUnchanged
		}
	}
	return ""
}

func (p *Processor) outputDirFor(task *queue.Task) string {
	base := task.OutputDir
	if base == "" {
		base = p.opts.OutputDir
	}
	return OutputDirFor(base, task.SourcePath)
}
