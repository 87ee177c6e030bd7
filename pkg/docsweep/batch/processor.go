// Package batch runs queued conversion tasks through a Converter with
// bounded, pressure-aware concurrency.
//
// A single coordinator goroutine owns dispatch, task completion, the result
// list and the progress callback. Workers only call the converter and report
// back on a channel, so callers never see progress from more than one
// goroutine.
package batch

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/pressure"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// Processor converts the pending tasks of a queue.
type Processor struct {
	opts Options
	log  *logging.Logger
}

// New validates opts and returns a Processor.
func New(opts Options) (*Processor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Processor{opts: opts, log: logging.Get("batch")}, nil
}

// Options returns the validated options.
func (p *Processor) Options() Options {
	return p.opts
}

type outcome struct {
	task   *queue.Task
	result types.Result
}

// Process converts every task pending in q when the call starts and returns
// one result per dispatched task, in completion order.
//
// Per-task failures are reported in the results, never as an error. The
// returned error is an *InitError when the converter cannot be built, or
// ctx.Err() when the run was cancelled; on cancellation in-flight tasks
// finish, undispatched tasks are marked skipped, and the partial results are
// returned.
func (p *Processor) Process(ctx context.Context, q *queue.Queue, progress ProgressCallback) ([]types.Result, error) {
	var report ResultCallback
	if progress != nil {
		report = func(pr Progress) { progress(pr.Completed, pr.Total, pr.Message) }
	}
	return p.ProcessResults(ctx, q, report)
}

// ProcessResults is Process with a structured callback carrying each
// task's result and the running failure count.
func (p *Processor) ProcessResults(ctx context.Context, q *queue.Queue, progress ResultCallback) ([]types.Result, error) {
	tasks := q.Pending()
	if len(tasks) == 0 {
		p.log.Debug("nothing to process")
		return nil, nil
	}

	conv, err := p.opts.Factory(p.opts.Engine)
	if err != nil {
		p.log.Error("converter initialization failed", "error", err)
		return nil, &InitError{Err: err}
	}
	if c, ok := conv.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				p.log.Warn("closing converter", "error", err)
			}
		}()
	}

	runnable := p.preflight(tasks)
	p.log.Info("starting batch",
		"queued", len(tasks),
		"runnable", len(runnable),
		"workers", p.opts.Workers)

	start := time.Now()
	results := p.coordinate(ctx, conv, runnable, progress)
	p.log.Info("batch finished",
		"results", len(results),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (p *Processor) coordinate(ctx context.Context, conv Converter, runnable []*queue.Task, progress ResultCallback) []types.Result {
	// total shrinks when a task is claimed elsewhere, so completed reaches
	// it once every dispatched task has finished.
	total := len(runnable)
	results := make([]types.Result, 0, total)
	if total == 0 {
		return results
	}

	// Buffered so abandoned or late workers never block.
	done := make(chan outcome, len(runnable))
	workCtx := context.WithoutCancel(ctx)

	limit := p.opts.Workers
	level := pressure.Low
	gate := rate.Sometimes{First: 1, Interval: p.opts.PressureInterval}

	next, inFlight, failed := 0, 0, 0
	cancelled := ctx.Done()

	for {
		if ctx.Err() == nil {
			gate.Do(func() {
				level, limit = p.checkPressure(ctx, level, limit)
			})
			for next < len(runnable) && inFlight < limit && ctx.Err() == nil {
				task := runnable[next]
				next++
				if err := task.MarkStarted(); err != nil {
					p.log.Warn("task not dispatched", "task", task.ID, "error", err)
					total--
					continue
				}
				inFlight++
				go p.work(workCtx, conv, task, done)
			}
		}

		if inFlight == 0 {
			break
		}

		select {
		case o := <-done:
			inFlight--
			results = append(results, o.result)
			if !o.result.Success {
				failed++
			}
			p.finish(o)
			if progress != nil {
				progress(Progress{
					Completed: len(results),
					Failed:    failed,
					Total:     total,
					Result:    o.result,
					Message:   progressMessage(o),
				})
			}
		case <-cancelled:
			p.log.Warn("batch cancelled, waiting for in-flight tasks", "in_flight", inFlight)
			cancelled = nil
		}
	}

	for _, task := range runnable[next:] {
		if err := task.MarkSkipped(reasonCancelled); err != nil {
			p.log.Warn("could not skip task", "task", task.ID, "error", err)
		}
	}
	return results
}

// checkPressure returns the new level and in-flight limit. Running work is
// never cancelled; a lower limit only holds back further dispatch. Memory
// over the monitor's limits, such as the plan's memory ceiling, drops the
// limit to one task at a time.
func (p *Processor) checkPressure(ctx context.Context, prev pressure.Level, prevLimit int) (pressure.Level, int) {
	if p.opts.Pressure == nil {
		return prev, prevLimit
	}
	status, err := p.opts.Pressure.Status(ctx)
	if err != nil {
		p.log.Debug("pressure check failed", "error", err)
		return prev, prevLimit
	}
	level := status.Level
	limit := pressure.ThrottleWorkers(level, p.opts.Workers)
	if !status.WithinLimits {
		limit = 1
		if prevLimit != 1 {
			p.log.Warn("memory over limit, dispatching one task at a time",
				"process_rss", types.FormatSize(status.Stats.ProcessRSS))
		}
	}
	if level != prev {
		p.log.Info("memory pressure changed",
			"level", level.String(),
			"workers", limit,
			"recommended_batch", pressure.RecommendBatchSize(level, p.opts.Engine.BatchSize))
	}
	return level, limit
}

// finish applies an outcome to its task and the ledger.
func (p *Processor) finish(o outcome) {
	var err error
	if o.result.Success {
		err = o.task.MarkCompleted()
		if p.opts.Ledger != nil {
			if lerr := p.opts.Ledger.Record(o.result); lerr != nil {
				p.log.Warn("ledger record failed", "source", o.task.SourceName(), "error", lerr)
			}
		}
		p.log.Info("converted document",
			"source", o.task.SourceName(),
			"pages", o.result.PagesConverted,
			"duration", o.result.Duration.Round(time.Millisecond))
	} else {
		err = o.task.MarkFailed(o.result.Error)
		p.log.Error("conversion failed", "source", o.task.SourceName(), "error", o.result.Error)
	}
	if err != nil {
		p.log.Warn("task state not updated", "task", o.task.ID, "error", err)
	}
}

func progressMessage(o outcome) string {
	name := o.task.SourceName()
	if o.result.Success {
		return fmt.Sprintf("Converted %s (%d pages)", name, o.result.PagesConverted)
	}
	return fmt.Sprintf("Converted %s - FAILED: %s", name, o.result.Error)
}

func (p *Processor) work(ctx context.Context, conv Converter, task *queue.Task, done chan<- outcome) {
	done <- outcome{task: task, result: p.run(ctx, conv, task)}
}

// run converts one task, enforcing TaskTimeout. On timeout the converter
// context is cancelled and the call is abandoned rather than awaited.
func (p *Processor) run(parent context.Context, conv Converter, task *queue.Task) types.Result {
	if p.opts.TaskTimeout <= 0 {
		return p.invoke(parent, conv, task)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	start := time.Now()
	ch := make(chan types.Result, 1)
	go func() { ch <- p.invoke(ctx, conv, task) }()

	timer := time.NewTimer(p.opts.TaskTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r
	case <-timer.C:
		p.log.Warn("task timed out", "source", task.SourceName(), "timeout", p.opts.TaskTimeout)
		return *types.Failed(task.ID, task.SourcePath, time.Since(start),
			fmt.Errorf("%w after %s", ErrTaskTimeout, p.opts.TaskTimeout))
	}
}

// invoke calls the converter and turns errors, panics and nil results into
// failed results.
func (p *Processor) invoke(ctx context.Context, conv Converter, task *queue.Task) (res types.Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("converter panic", "source", task.SourceName(), "panic", r)
			res = *types.Failed(task.ID, task.SourcePath, time.Since(start),
				fmt.Errorf("%w: %v", ErrConverterPanic, r))
		}
	}()

	outDir := p.outputDirFor(task)
	report := func(fraction float64, message string) {
		p.log.Debug("document progress",
			"source", task.SourceName(),
			"fraction", fmt.Sprintf("%.2f", fraction),
			"message", message)
	}

	r, err := conv.Convert(ctx, task.SourcePath, outDir, report)
	switch {
	case err != nil:
		return *types.Failed(task.ID, task.SourcePath, time.Since(start), err)
	case r == nil:
		return *types.Failed(task.ID, task.SourcePath, time.Since(start), ErrNilResult)
	}

	res = *r
	res.TaskID = task.ID
	if res.SourcePath == "" {
		res.SourcePath = task.SourcePath
	}
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now()
	}
	if !res.Success && res.Error == "" {
		res.Error = "unknown error"
	}
	return res
}
