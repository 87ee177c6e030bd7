package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/docsweep/pkg/docsweep/config"
	"github.com/jamesainslie/docsweep/pkg/docsweep/pressure"
	"github.com/jamesainslie/docsweep/pkg/docsweep/queue"
	"github.com/jamesainslie/docsweep/pkg/docsweep/tuner"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

type convertFunc func(ctx context.Context, source, outputDir string) (*types.Result, error)

type fakeConverter struct {
	fn convertFunc

	mu      sync.Mutex
	sources []string
	outDirs []string
	closed  bool
}

func (f *fakeConverter) Convert(ctx context.Context, source, outputDir string, progress ProgressFunc) (*types.Result, error) {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.outDirs = append(f.outDirs, outputDir)
	f.mu.Unlock()

	if progress != nil {
		progress(0.5, "halfway")
	}
	return f.fn(ctx, source, outputDir)
}

func (f *fakeConverter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConverter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sources)
}

func succeed(ctx context.Context, source, outputDir string) (*types.Result, error) {
	return &types.Result{
		Success:         true,
		OutputPath:      MarkdownPath(outputDir, source),
		PagesConverted:  3,
		TotalPages:      3,
		ImagesExtracted: 1,
		Duration:        time.Millisecond,
	}, nil
}

func factoryFor(conv Converter) ConverterFactory {
	return func(EngineConfig) (Converter, error) { return conv, nil }
}

func writeDocs(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(paths[i], []byte("%PDF-1.7\n"+strings.Repeat("x", 2048)), 0o644))
	}
	return paths
}

func newProcessor(t *testing.T, opts Options) *Processor {
	t.Helper()
	p, err := New(opts)
	require.NoError(t, err)
	return p
}

type progressCall struct {
	completed, total int
	message          string
}

func TestProcess_AllSucceed(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"), "", 0)

	conv := &fakeConverter{fn: succeed}
	p := newProcessor(t, Options{Workers: 2, Factory: factoryFor(conv), OutputDir: filepath.Join(dir, "out")})

	var calls []progressCall
	results, err := p.Process(context.Background(), q, func(completed, total int, message string) {
		calls = append(calls, progressCall{completed, total, message})
	})
	require.NoError(t, err)
	require.Len(t, results, 5)

	require.Len(t, calls, 5, "progress fires once per task")
	for i, c := range calls {
		assert.Equal(t, i+1, c.completed)
		assert.Equal(t, 5, c.total)
		assert.Contains(t, c.message, "(3 pages)")
	}

	seen := make(map[string]bool)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.NotEmpty(t, r.TaskID)
		assert.False(t, r.CompletedAt.IsZero())
		seen[r.TaskID] = true
	}
	assert.Len(t, seen, 5, "one result per task")

	assert.Equal(t, queue.Stats{Total: 5, Completed: 5}, q.Stats())
	assert.True(t, conv.closed, "closer is closed after the run")

	s := types.Summarize(results)
	assert.Equal(t, types.Summary{
		Total: 5, Successful: 5, TotalPages: 15, TotalImages: 5, Duration: 5 * time.Millisecond,
	}, s)
}

func TestProcess_IsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "ok1.pdf", "err.pdf", "panic.pdf", "nil.pdf", "soft.pdf", "ok2.pdf"), "", 0)

	conv := &fakeConverter{fn: func(ctx context.Context, source, outputDir string) (*types.Result, error) {
		switch filepath.Base(source) {
		case "err.pdf":
			return nil, errors.New("engine exited with status 1")
		case "panic.pdf":
			panic("segfault in layout model")
		case "nil.pdf":
			return nil, nil
		case "soft.pdf":
			return &types.Result{Success: false}, nil
		}
		return succeed(ctx, source, outputDir)
	}}

	p := newProcessor(t, Options{Workers: 3, Factory: factoryFor(conv)})

	var failedMessages []string
	results, err := p.Process(context.Background(), q, func(_, _ int, message string) {
		if strings.Contains(message, "FAILED") {
			failedMessages = append(failedMessages, message)
		}
	})
	require.NoError(t, err, "task failures never fail the batch")
	require.Len(t, results, 6)
	assert.Len(t, failedMessages, 4)

	byName := make(map[string]types.Result)
	for _, r := range results {
		byName[filepath.Base(r.SourcePath)] = r
	}
	assert.Equal(t, "engine exited with status 1", byName["err.pdf"].Error)
	assert.Contains(t, byName["panic.pdf"].Error, ErrConverterPanic.Error())
	assert.Contains(t, byName["panic.pdf"].Error, "segfault in layout model")
	assert.Equal(t, ErrNilResult.Error(), byName["nil.pdf"].Error)
	assert.Equal(t, "unknown error", byName["soft.pdf"].Error)
	assert.True(t, byName["ok1.pdf"].Success)
	assert.True(t, byName["ok2.pdf"].Success)

	s := types.Summarize(results)
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, s.Total, s.Successful+s.Failed)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 6, s.TotalPages, "pages count successful results only")

	for _, task := range q.ByStatus(queue.StatusFailed) {
		assert.NotEmpty(t, task.ErrorMessage())
	}
	assert.Equal(t, queue.Stats{Total: 6, Completed: 2, Failed: 4}, q.Stats())
}

func TestProcess_InitFailure(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf"), "", 0)

	cause := errors.New("docling: executable file not found in $PATH")
	p := newProcessor(t, Options{
		Workers: 2,
		Factory: func(EngineConfig) (Converter, error) { return nil, cause },
	})

	results, err := p.Process(context.Background(), q, nil)
	assert.Empty(t, results)
	assert.ErrorIs(t, err, ErrConverterInit)
	assert.ErrorIs(t, err, cause)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, cause, initErr.Err)

	assert.Equal(t, 2, q.Stats().Pending, "no task runs when the converter cannot start")
}

func TestProcess_EmptyQueue(t *testing.T) {
	built := false
	p := newProcessor(t, Options{
		Workers: 1,
		Factory: func(EngineConfig) (Converter, error) {
			built = true
			return &fakeConverter{fn: succeed}, nil
		},
	})

	results, err := p.Process(context.Background(), queue.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, built, "converter is not built for an empty queue")
}

func TestProcess_ReceivesEngineConfig(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf"), "", 0)

	engine := EngineConfig{Command: "docling", Device: "cpu", BatchSize: 16, TableBatchSize: 4}
	var got EngineConfig
	p := newProcessor(t, Options{
		Workers: 1,
		Engine:  engine,
		Factory: func(cfg EngineConfig) (Converter, error) {
			got = cfg
			return &fakeConverter{fn: succeed}, nil
		},
	})

	_, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Equal(t, engine, got)
}

func trackConcurrency(cur, peak *atomic.Int32, hold time.Duration) convertFunc {
	return func(ctx context.Context, source, outputDir string) (*types.Result, error) {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(hold)
		cur.Add(-1)
		return succeed(ctx, source, outputDir)
	}
}

func TestProcess_BoundedConcurrency(t *testing.T) {
	dir := t.TempDir()
	names := make([]string, 12)
	for i := range names {
		names[i] = string(rune('a'+i)) + ".pdf"
	}
	q := queue.New()
	q.AddMany(writeDocs(t, dir, names...), "", 0)

	var cur, peak atomic.Int32
	conv := &fakeConverter{fn: trackConcurrency(&cur, &peak, 20*time.Millisecond)}
	p := newProcessor(t, Options{Workers: 3, Factory: factoryFor(conv)})

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Len(t, results, 12)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

type fixedReader struct {
	stats pressure.MemoryStats
}

func (r fixedReader) ReadMemory(context.Context) (pressure.MemoryStats, error) {
	return r.stats, nil
}

func TestProcess_ThrottledUnderPressure(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"), "", 0)

	critical := pressure.NewMonitor(fixedReader{stats: pressure.MemoryStats{
		UsedPercent: 95,
		Available:   types.GiB,
	}}, pressure.DefaultOptions())

	var cur, peak atomic.Int32
	conv := &fakeConverter{fn: trackConcurrency(&cur, &peak, 10*time.Millisecond)}
	p := newProcessor(t, Options{
		Workers:          4,
		Factory:          factoryFor(conv),
		Pressure:         critical,
		PressureInterval: time.Hour,
	})

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Len(t, results, 6)
	assert.Equal(t, int32(1), peak.Load(), "critical pressure runs one task at a time")
}

func TestProcess_ThrottledOverMemoryCeiling(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf", "f.pdf"), "", 0)

	plan := tuner.ResourceConfig{Workers: 4, MemoryCeiling: 2 * types.GiB}
	overCeiling := pressure.NewMonitor(fixedReader{stats: pressure.MemoryStats{
		UsedPercent: 20,
		Available:   32 * types.GiB,
		ProcessRSS:  3 * types.GiB,
	}}, pressure.Options{MaxPercent: 85, MaxProcessMemory: plan.MemoryCeiling})

	var cur, peak atomic.Int32
	conv := &fakeConverter{fn: trackConcurrency(&cur, &peak, 10*time.Millisecond)}
	opts := OptionsFor(plan, EngineConfig{}, factoryFor(conv))
	opts.Pressure = overCeiling
	p := newProcessor(t, opts)

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Len(t, results, 6, "throttling never drops tasks")
	assert.Equal(t, int32(1), peak.Load(), "over the ceiling runs one task at a time")
}

func TestProcessResults_RunningCounts(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "FAILED_audit.pdf", "broken.pdf"), "", 0)

	conv := &fakeConverter{fn: func(ctx context.Context, source, outputDir string) (*types.Result, error) {
		if filepath.Base(source) == "broken.pdf" {
			return nil, errors.New("corrupt xref table")
		}
		return succeed(ctx, source, outputDir)
	}}
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(conv)})

	var got []Progress
	_, err := p.ProcessResults(context.Background(), q, func(pr Progress) {
		got = append(got, pr)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	last := got[len(got)-1]
	assert.Equal(t, 3, last.Completed)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 1, last.Failed)
	for _, pr := range got {
		if filepath.Base(pr.Result.SourcePath) == "FAILED_audit.pdf" {
			assert.True(t, pr.Result.Success)
		}
	}
}

func TestProcess_TotalExcludesClaimedTasks(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf", "c.pdf"), "", 0)

	claimed := q.Pending()[1]
	require.NoError(t, claimed.MarkStarted())

	conv := &fakeConverter{fn: succeed}
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(conv)})

	runnable := append([]*queue.Task{claimed}, q.Pending()...)

	var calls []progressCall
	results := p.coordinate(context.Background(), conv, runnable, func(pr Progress) {
		calls = append(calls, progressCall{pr.Completed, pr.Total, pr.Message})
	})
	assert.Len(t, results, 2)
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Equal(t, 2, c.total, "a task claimed elsewhere is not counted")
	}
	assert.Equal(t, 2, calls[1].completed)
	assert.Equal(t, 2, conv.calls(), "claimed task never reaches the converter")
}

func TestProcess_TaskTimeout(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "slow.pdf", "fast.pdf"), "", 0)

	conv := &fakeConverter{fn: func(ctx context.Context, source, outputDir string) (*types.Result, error) {
		if filepath.Base(source) == "slow.pdf" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return succeed(ctx, source, outputDir)
	}}
	p := newProcessor(t, Options{Workers: 2, Factory: factoryFor(conv), TaskTimeout: 50 * time.Millisecond})

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		switch filepath.Base(r.SourcePath) {
		case "slow.pdf":
			assert.False(t, r.Success)
			assert.Contains(t, r.Error, ErrTaskTimeout.Error())
		case "fast.pdf":
			assert.True(t, r.Success)
		}
	}
	assert.Equal(t, queue.Stats{Total: 2, Completed: 1, Failed: 1}, q.Stats())
}

func TestProcess_Cancellation(t *testing.T) {
	dir := t.TempDir()
	q := queue.New()
	q.AddMany(writeDocs(t, dir, "a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"), "", 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conv := &fakeConverter{fn: func(convCtx context.Context, source, outputDir string) (*types.Result, error) {
		cancel()
		// the batch context is cancelled, the task context is not
		if convCtx.Err() != nil {
			return nil, convCtx.Err()
		}
		return succeed(convCtx, source, outputDir)
	}}
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(conv)})

	results, err := p.Process(ctx, q, nil)
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1, "in-flight work finishes")
	assert.True(t, results[0].Success)
	assert.Equal(t, 1, conv.calls())

	skipped := q.ByStatus(queue.StatusSkipped)
	assert.Len(t, skipped, 4)
	for _, task := range skipped {
		assert.Equal(t, "batch cancelled", task.ErrorMessage())
	}
}

type memLedger struct {
	mu        sync.Mutex
	unchanged map[string]bool
	recorded  []string
}

func (l *memLedger) Unchanged(source string) (bool, error) {
	return l.unchanged[filepath.Base(source)], nil
}

func (l *memLedger) Record(r types.Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recorded = append(l.recorded, filepath.Base(r.SourcePath))
	return nil
}

func TestProcess_Preflight(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	paths := writeDocs(t, dir, "good.pdf", "done.pdf", "same.pdf", "broken.pdf")
	tiny := filepath.Join(dir, "tiny.pdf")
	require.NoError(t, os.WriteFile(tiny, []byte("%PDF"), 0o644))

	existing := OutputDirFor(out, paths[1])
	require.NoError(t, os.MkdirAll(existing, 0o755))
	require.NoError(t, os.WriteFile(MarkdownPath(existing, paths[1]), []byte("# done"), 0o644))

	q := queue.New()
	q.AddMany(append(paths, tiny, filepath.Join(dir, "missing.pdf")), "", 0)

	ledger := &memLedger{unchanged: map[string]bool{"same.pdf": true}}
	conv := &fakeConverter{fn: func(ctx context.Context, source, outputDir string) (*types.Result, error) {
		if filepath.Base(source) == "broken.pdf" {
			return nil, errors.New("corrupt xref table")
		}
		return succeed(ctx, source, outputDir)
	}}
	p := newProcessor(t, Options{
		Workers:      2,
		Factory:      factoryFor(conv),
		OutputDir:    out,
		SkipExisting: true,
		MinFileSize:  types.KiB,
		Ledger:       ledger,
	})

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, conv.calls())
	assert.Equal(t, []string{"good.pdf"}, ledger.recorded, "only successes are recorded")

	reasons := make(map[string]string)
	for _, task := range q.ByStatus(queue.StatusSkipped) {
		reasons[task.SourceName()] = task.ErrorMessage()
	}
	assert.Equal(t, "output already exists", reasons["done.pdf"])
	assert.Equal(t, "unchanged since last conversion", reasons["same.pdf"])
	assert.Equal(t, "source not found", reasons["missing.pdf"])
	assert.Contains(t, reasons["tiny.pdf"], "file too small")
	assert.Len(t, reasons, 4)
}

func TestProcess_OutputDirs(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, "report.pdf", "notes.pdf")

	q := queue.New()
	q.Add(paths[0], filepath.Join(dir, "custom"), 0)
	q.Add(paths[1], "", 0)

	conv := &fakeConverter{fn: succeed}
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(conv), OutputDir: filepath.Join(dir, "out")})

	_, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "custom", "report_md"),
		filepath.Join(dir, "out", "notes_md"),
	}, conv.outDirs)
}

func TestProcess_PriorityOrderWithOneWorker(t *testing.T) {
	dir := t.TempDir()
	paths := writeDocs(t, dir, "low.pdf", "high.pdf", "mid.pdf")

	q := queue.New()
	q.Add(paths[0], "", 0)
	q.Add(paths[1], "", 10)
	q.Add(paths[2], "", 5)

	conv := &fakeConverter{fn: succeed}
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(conv)})

	results, err := p.Process(context.Background(), q, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{paths[1], paths[2], paths[0]}, conv.sources)
}

func TestOptionsValidate(t *testing.T) {
	factory := factoryFor(&fakeConverter{fn: succeed})

	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"valid", Options{Workers: 2, Factory: factory}, false},
		{"zero workers", Options{Workers: 0, Factory: factory}, true},
		{"negative workers", Options{Workers: -1, Factory: factory}, true},
		{"missing factory", Options{Workers: 1}, true},
		{"negative timeout", Options{Workers: 1, Factory: factory, TaskTimeout: -time.Second}, true},
		{"negative min size", Options{Workers: 1, Factory: factory, MinFileSize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if tt.wantErr {
				assert.ErrorIs(t, err, config.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOptionsValidate_DefaultsInterval(t *testing.T) {
	p := newProcessor(t, Options{Workers: 1, Factory: factoryFor(&fakeConverter{fn: succeed})})
	assert.Equal(t, config.DefaultPressureInterval, p.Options().PressureInterval)
}

func TestOptionsFor(t *testing.T) {
	plan := tuner.ResourceConfig{Workers: 6, BatchSize: 32, TableBatchSize: 8, AcceleratorThreads: 12, MemoryCeiling: 22 * types.GiB}
	engine := NewEngineConfig(config.EngineConfig{Command: "docling", OCR: true}, plan, "cpu", 10)

	assert.Equal(t, EngineConfig{
		Command:        "docling",
		OCR:            true,
		Device:         "cpu",
		Threads:        12,
		BatchSize:      32,
		TableBatchSize: 8,
		ChunkSize:      10,
		MemoryCeiling:  22 * types.GiB,
	}, engine)

	engine = NewEngineConfig(config.EngineConfig{Command: "docling", Threads: 4}, plan, "cuda", 10)
	assert.Equal(t, 4, engine.Threads, "explicit threads win")

	opts := OptionsFor(plan, engine, factoryFor(nil))
	assert.Equal(t, 6, opts.Workers)
	assert.Equal(t, engine, opts.Engine)
}

func TestOutputLayout(t *testing.T) {
	tests := []struct {
		base, source, wantDir string
	}{
		{"/out", "/docs/report.pdf", "/out/report_md"},
		{"", "/docs/report.pdf", "/docs/report_md"},
		{"/out", "/docs/archive.tar.pdf", "/out/archive.tar_md"},
		{"/out", "/docs/README", "/out/README_md"},
	}
	for _, tt := range tests {
		dir := OutputDirFor(filepath.FromSlash(tt.base), filepath.FromSlash(tt.source))
		assert.Equal(t, filepath.FromSlash(tt.wantDir), dir)
	}
	assert.Equal(t, filepath.FromSlash("/out/report_md/report.md"),
		MarkdownPath(filepath.FromSlash("/out/report_md"), filepath.FromSlash("/docs/report.pdf")))
}
