package pressure

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

type fakeReader struct {
	stats MemoryStats
	err   error
}

func (f fakeReader) ReadMemory(context.Context) (MemoryStats, error) {
	return f.stats, f.err
}

func TestClassify(t *testing.T) {
	plenty := 32 * types.GiB

	tests := []struct {
		name  string
		stats MemoryStats
		want  Level
	}{
		{"idle", MemoryStats{UsedPercent: 20, Available: plenty}, Low},
		{"at medium boundary", MemoryStats{UsedPercent: 60, Available: plenty}, Low},
		{"medium", MemoryStats{UsedPercent: 61, Available: plenty}, Medium},
		{"at high boundary", MemoryStats{UsedPercent: 75, Available: plenty}, Medium},
		{"high by percent", MemoryStats{UsedPercent: 76, Available: plenty}, High},
		{"high by available", MemoryStats{UsedPercent: 10, Available: 3 * types.GiB}, High},
		{"at critical boundary", MemoryStats{UsedPercent: 90, Available: plenty}, High},
		{"critical by percent", MemoryStats{UsedPercent: 95, Available: plenty}, Critical},
		{"critical by available", MemoryStats{UsedPercent: 10, Available: types.GiB}, Critical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.stats))
		})
	}
}

func TestClassify_Monotonic(t *testing.T) {
	// more used memory never lowers the level
	for avail := int64(0); avail <= 8*types.GiB; avail += types.GiB / 2 {
		prev := Low
		for pct := 0.0; pct <= 100; pct += 0.5 {
			level := Classify(MemoryStats{UsedPercent: pct, Available: avail})
			require.GreaterOrEqual(t, level, prev, "pct=%v avail=%d", pct, avail)
			prev = level
		}
	}
	// less available memory never lowers the level
	for pct := 0.0; pct <= 100; pct += 5 {
		prev := Low
		for avail := 8 * types.GiB; avail >= 0; avail -= types.GiB / 4 {
			level := Classify(MemoryStats{UsedPercent: pct, Available: avail})
			require.GreaterOrEqual(t, level, prev, "pct=%v avail=%d", pct, avail)
			prev = level
		}
	}
}

func TestRecommendBatchSize(t *testing.T) {
	tests := []struct {
		level Level
		batch int
		want  int
	}{
		{Low, 32, 32},
		{Medium, 32, 32},
		{High, 32, 16},
		{High, 3, 2},
		{High, 1, 1},
		{Critical, 32, 8},
		{Critical, 3, 1},
		{Critical, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RecommendBatchSize(tt.level, tt.batch), "%s/%d", tt.level, tt.batch)
	}
}

func TestThrottleWorkers(t *testing.T) {
	tests := []struct {
		level   Level
		workers int
		want    int
	}{
		{Low, 8, 8},
		{Medium, 8, 8},
		{High, 8, 4},
		{High, 1, 1},
		{Critical, 8, 1},
		{Low, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ThrottleWorkers(tt.level, tt.workers), "%s/%d", tt.level, tt.workers)
	}
}

func TestRecommendations_MonotonicInLevel(t *testing.T) {
	levels := []Level{Low, Medium, High, Critical}
	for n := 1; n <= 128; n++ {
		prevBatch, prevWorkers := n, n
		for _, level := range levels {
			b := RecommendBatchSize(level, n)
			w := ThrottleWorkers(level, n)
			require.LessOrEqual(t, b, prevBatch, "batch n=%d level=%s", n, level)
			require.LessOrEqual(t, w, prevWorkers, "workers n=%d level=%s", n, level)
			require.GreaterOrEqual(t, b, 1)
			require.GreaterOrEqual(t, w, 1)
			prevBatch, prevWorkers = b, w
		}
	}
}

func TestMonitor_Current(t *testing.T) {
	m := NewMonitor(fakeReader{stats: MemoryStats{UsedPercent: 80, Available: 10 * types.GiB}}, DefaultOptions())
	level, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, High, level)

	boom := errors.New("no meminfo")
	m = NewMonitor(fakeReader{err: boom}, DefaultOptions())
	_, err = m.Current(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestMonitor_Check(t *testing.T) {
	tests := []struct {
		name  string
		stats MemoryStats
		opts  Options
		want  bool
	}{
		{"within limits", MemoryStats{UsedPercent: 50}, Options{MaxPercent: 85}, true},
		{"system over limit", MemoryStats{UsedPercent: 85}, Options{MaxPercent: 85}, false},
		{"process over limit", MemoryStats{UsedPercent: 10, ProcessRSS: 9 * types.GiB},
			Options{MaxPercent: 85, MaxProcessMemory: 8 * types.GiB}, false},
		{"process limit disabled", MemoryStats{UsedPercent: 10, ProcessRSS: 9 * types.GiB},
			Options{MaxPercent: 85}, true},
		{"invalid percent falls back to default", MemoryStats{UsedPercent: 86}, Options{MaxPercent: 150}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(fakeReader{stats: tt.stats}, tt.opts)
			ok, err := m.Check(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestMonitor_Status(t *testing.T) {
	m := NewMonitor(fakeReader{stats: MemoryStats{
		UsedPercent: 40,
		Available:   16 * types.GiB,
		ProcessRSS:  3 * types.GiB,
	}}, Options{MaxPercent: 85, MaxProcessMemory: 2 * types.GiB})

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Low, status.Level)
	assert.False(t, status.WithinLimits, "resident set above the ceiling")
	assert.Equal(t, 3*types.GiB, status.Stats.ProcessRSS)

	boom := errors.New("no meminfo")
	status, err = NewMonitor(fakeReader{err: boom}, DefaultOptions()).Status(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.True(t, status.WithinLimits, "unreadable memory never throttles")
}

func TestSystemReader(t *testing.T) {
	stats, err := SystemReader{}.ReadMemory(context.Background())
	require.NoError(t, err)
	assert.Positive(t, stats.Total)
	assert.LessOrEqual(t, stats.Available, stats.Total)
	assert.GreaterOrEqual(t, stats.UsedPercent, 0.0)
	assert.LessOrEqual(t, stats.UsedPercent, 100.0)
	assert.Positive(t, stats.ProcessRSS)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "low", Low.String())
	assert.Equal(t, "critical", Critical.String())
	assert.Equal(t, "level(9)", Level(9).String())
}
