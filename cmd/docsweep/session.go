package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jamesainslie/docsweep/pkg/docsweep/batch"
	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/engine"
	"github.com/jamesainslie/docsweep/pkg/docsweep/hardware"
	"github.com/jamesainslie/docsweep/pkg/docsweep/ledger"
	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/manifest"
	"github.com/jamesainslie/docsweep/pkg/docsweep/output"
	"github.com/jamesainslie/docsweep/pkg/docsweep/perfmon"
	"github.com/jamesainslie/docsweep/pkg/docsweep/pressure"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// resourcePlan is what the hardware profile and config resolve to.
type resourcePlan struct {
	Profile hardware.Profile
	Plan    tuner.ResourceConfig
	Device  string
	Chunk   int
}

// planResources detects the hardware and applies config overrides.
func planResources(ctx context.Context, cfg *config.Config) (resourcePlan, error) {
	profile := hardware.NewProfiler().Detect(ctx)
	plan, err := tuner.PlanWithOverrides(profile, cfg.GPU, tuner.Overrides{
		Workers:   cfg.Workers,
		BatchSize: cfg.BatchSize,
	})
	if err != nil {
		return resourcePlan{}, err
	}

	return resourcePlan{
		Profile: profile,
		Plan:    plan,
		Device:  resolveDevice(cfg.Engine.Device, profile, cfg.GPU),
		Chunk:   tuner.RecommendChunkSize(profile),
	}, nil
}

// resolveDevice returns the configured device, or the recommended one for
// "auto" and empty values.
func resolveDevice(configured string, profile hardware.Profile, gpu bool) string {
	if configured == "" || configured == "auto" {
		return tuner.RecommendDevice(profile, gpu)
	}
	return configured
}

// session holds the collaborators shared by the runs of one command.
type session struct {
	cfg      *config.Config
	res      resourcePlan
	proc     *batch.Processor
	ledger   *ledger.Ledger
	history  *manifest.Manifest
	warnings []string
	log      *logging.Logger
}

// newSession plans resources and opens the ledger and run history. Ledger
// and history failures are reported as warnings; the run proceeds without
// them.
func newSession(ctx context.Context, cfg *config.Config) (*session, error) {
	res, err := planResources(ctx, cfg)
	if err != nil {
		return nil, err
	}
	minSize, err := cfg.MinFileSizeBytes()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, res: res, log: logging.Get("cli")}
	s.log.Info("resource plan",
		"workers", res.Plan.Workers,
		"batch", res.Plan.BatchSize,
		"table_batch", res.Plan.TableBatchSize,
		"device", res.Device,
		"memory_ceiling", types.FormatSize(res.Plan.MemoryCeiling))

	engineCfg := batch.NewEngineConfig(cfg.Engine, res.Plan, res.Device, res.Chunk)
	opts := batch.OptionsFor(res.Plan, engineCfg, engine.Factory)
	opts.OutputDir = cfg.OutputDir
	opts.TaskTimeout = cfg.TaskTimeout
	opts.SkipExisting = cfg.SkipExisting
	opts.MinFileSize = minSize
	opts.Pressure = pressure.NewMonitor(nil, pressure.Options{
		MaxPercent:       cfg.Pressure.MaxPercent,
		MaxProcessMemory: res.Plan.MemoryCeiling,
	})
	opts.PressureInterval = cfg.Pressure.CheckInterval

	if cfg.Ledger.Enabled && !viper.GetBool("no_ledger") {
		l, err := ledger.Open(cfg.Ledger.Path)
		if err != nil {
			s.warn("ledger unavailable, unchanged documents will be converted again: %v", err)
		} else {
			s.ledger = l
			opts.Ledger = l
		}
	}
	if cfg.History.Enabled && !viper.GetBool("no_history") {
		m, err := manifest.New(cfg.History.Path)
		if err != nil {
			s.warn("run history unavailable: %v", err)
		} else {
			s.history = m
		}
	}

	s.proc, err = batch.New(opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	s.log.Warn(msg)
	s.warnings = append(s.warnings, msg)
}

// Close releases the ledger.
func (s *session) Close() error {
	if s.ledger == nil {
		return nil
	}
	return s.ledger.Close()
}

// run converts every pending task in q and records the run in history. The
// returned report is always usable; err is an *batch.InitError when the
// engine could not start, or the context error when the run was cancelled.
func (s *session) run(ctx context.Context, kind manifest.RunKind, source string, q *queue.Queue, interactive bool) (*output.Report, error) {
	run := manifest.NewRun(kind)
	run.Source = source
	run.OutputDir = s.cfg.OutputDir
	run.Plan = s.res.Plan
	run.Device = s.res.Device

	var perf *perfmon.Monitor
	if s.cfg.Monitor.Enabled {
		perf = perfmon.New(s.cfg.Monitor.Interval, nil)
		if err := perf.Start(ctx); err != nil {
			s.log.Warn("performance monitor not started", "error", err)
			perf = nil
		}
	}

	process := func(ctx context.Context, progress batch.ResultCallback) ([]types.Result, error) {
		return s.proc.ProcessResults(ctx, q, withPerfProgress(perf, progress))
	}
	results, err := runWithProgress(ctx, progressTitle(kind, source), len(q.Pending()), interactive, process)

	if perf != nil {
		perf.Stop()
		stats := perf.Statistics()
		run.Performance = &stats
	}
	run.Results = results
	run.Skipped = skippedTasks(q)
	if err != nil {
		run.Error = err.Error()
	}

	run.FinishedAt = time.Now().UTC()
	run.Summary = types.Summarize(results)
	if s.history != nil {
		if saveErr := s.history.Save(run); saveErr != nil {
			s.warn("failed to save run history: %v", saveErr)
			run.ID = ""
		}
	} else {
		run.ID = ""
	}

	report := output.FromRun(run)
	report.Interrupted = errors.Is(err, context.Canceled)
	report.Warnings = append(report.Warnings, s.warnings...)
	return report, err
}

// withPerfProgress forwards batch progress to the performance monitor.
func withPerfProgress(perf *perfmon.Monitor, next batch.ResultCallback) batch.ResultCallback {
	if perf == nil {
		return next
	}
	return func(p batch.Progress) {
		if p.Total > 0 {
			perf.UpdateProgress(float64(p.Completed)/float64(p.Total), p.Message)
		}
		if next != nil {
			next(p)
		}
	}
}

// skippedTasks lists the tasks preflight or cancellation skipped.
func skippedTasks(q *queue.Queue) []manifest.SkipRecord {
	tasks := q.ByStatus(queue.StatusSkipped)
	records := make([]manifest.SkipRecord, 0, len(tasks))
	for _, t := range tasks {
		records = append(records, manifest.SkipRecord{SourcePath: t.SourcePath, Reason: t.ErrorMessage()})
	}
	return records
}

func progressTitle(kind manifest.RunKind, source string) string {
	switch kind {
	case manifest.KindWatch:
		return "Converting new documents in " + source
	default:
		return "Converting " + source
	}
}

// errDocumentsFailed is returned when a run completes with failures so the
// process exits non-zero.
var errDocumentsFailed = errors.New("documents failed to convert")

// finishRun prints the report and maps the run outcome to the command error.
func finishRun(report *output.Report, err error) error {
	var initErr *batch.InitError
	if errors.As(err, &initErr) {
		return fmt.Errorf("conversion engine unavailable: %w", initErr.Err)
	}

	if printErr := printReport(report); printErr != nil {
		return printErr
	}
	if report.Interrupted {
		printInfo("Run interrupted")
		return nil
	}
	if err != nil {
		return err
	}
	if report.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d %w", report.Summary.Failed, report.Summary.Total, errDocumentsFailed)
	}
	return nil
}
