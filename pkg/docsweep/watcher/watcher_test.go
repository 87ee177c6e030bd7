package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, opts Options) *Watcher {
	t.Helper()
	w, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// runWatcher starts the event loop and returns a channel of ready batches.
func runWatcher(t *testing.T, w *Watcher) <-chan []string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan []string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(paths []string) { ready <- paths })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ready
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func waitReady(t *testing.T, ready <-chan []string) []string {
	t.Helper()
	select {
	case paths := <-ready:
		return paths
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for ready documents")
		return nil
	}
}

func skipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("waits on filesystem events")
	}
}

func TestNew(t *testing.T) {
	_, err := New(Options{Pattern: "["})
	assert.Error(t, err)

	w := newTestWatcher(t, Options{Settle: -time.Second})
	assert.Equal(t, "*", w.opts.Pattern)
	assert.Zero(t, w.opts.Settle)
}

func TestWatch_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.pdf")
	writeFile(t, file, "x")

	w := newTestWatcher(t, Options{Pattern: "*.pdf"})
	assert.ErrorIs(t, w.Watch(file), ErrNotADirectory)
	assert.Error(t, w.Watch(filepath.Join(dir, "missing")))
}

func TestWatch_Recursive(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a", "b"), 0o755))

	flat := newTestWatcher(t, Options{Pattern: "*.pdf"})
	require.NoError(t, flat.Watch(dir))
	assert.Len(t, flat.paths, 1)

	deep := newTestWatcher(t, Options{Pattern: "*.pdf", Recursive: true})
	require.NoError(t, deep.Watch(dir))
	assert.Len(t, deep.paths, 3)
}

func TestRun_ReportsMatchingDocuments(t *testing.T) {
	skipIfShort(t)
	dir := t.TempDir()
	w := newTestWatcher(t, Options{Pattern: "*.pdf", Settle: 100 * time.Millisecond})
	require.NoError(t, w.Watch(dir))
	ready := runWatcher(t, w)

	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "report.pdf"), "%PDF-1.7")

	assert.Equal(t, []string{filepath.Join(dir, "report.pdf")}, waitReady(t, ready))
	assert.Zero(t, w.Pending())
}

func TestRun_NewSubdirectory(t *testing.T) {
	skipIfShort(t)
	dir := t.TempDir()
	w := newTestWatcher(t, Options{Pattern: "*.pdf", Recursive: true, Settle: 50 * time.Millisecond})
	require.NoError(t, w.Watch(dir))
	ready := runWatcher(t, w)

	sub := filepath.Join(dir, "inbox", "2026")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	writeFile(t, filepath.Join(sub, "scan.pdf"), "%PDF-1.7")

	assert.Equal(t, []string{filepath.Join(sub, "scan.pdf")}, waitReady(t, ready))
}

func TestRun_FlatIgnoresSubdirectories(t *testing.T) {
	skipIfShort(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o755))

	w := newTestWatcher(t, Options{Pattern: "*.pdf", Settle: 20 * time.Millisecond})
	require.NoError(t, w.Watch(dir))
	ready := runWatcher(t, w)

	writeFile(t, filepath.Join(sub, "deep.pdf"), "%PDF-1.7")
	writeFile(t, filepath.Join(dir, "top.pdf"), "%PDF-1.7")

	assert.Equal(t, []string{filepath.Join(dir, "top.pdf")}, waitReady(t, ready))
	select {
	case extra := <-ready:
		t.Fatalf("unexpected batch %v", extra)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCollectReady_WaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "growing.pdf")
	writeFile(t, path, "part")

	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	w := newTestWatcher(t, Options{Pattern: "*.pdf", Settle: time.Second})
	w.now = func() time.Time { return clock }

	w.track(path)
	assert.Empty(t, w.collectReady(), "not settled yet")

	clock = clock.Add(2 * time.Second)
	writeFile(t, path, "partial content")
	assert.Empty(t, w.collectReady(), "size changed since the last event")
	assert.Equal(t, 1, w.Pending())

	clock = clock.Add(2 * time.Second)
	assert.Equal(t, []string{path}, w.collectReady())
	assert.Zero(t, w.Pending())
}

func TestCollectReady_DropsVanishedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "temp.pdf")
	writeFile(t, path, "x")

	w := newTestWatcher(t, Options{Pattern: "*.pdf"})
	w.track(path)
	require.Equal(t, 1, w.Pending())
	require.NoError(t, os.Remove(path))

	assert.Empty(t, w.collectReady())
	assert.Zero(t, w.Pending())
}

func TestHandleEvent_Remove(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "batch")
	require.NoError(t, os.Mkdir(sub, 0o755))
	a := filepath.Join(sub, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	writeFile(t, a, "x")
	writeFile(t, b, "x")

	w := newTestWatcher(t, Options{Pattern: "*.pdf", Recursive: true})
	require.NoError(t, w.Watch(dir))
	w.track(a)
	w.track(b)
	require.Equal(t, 2, w.Pending())

	w.handleEvent(fsnotify.Event{Name: sub, Op: fsnotify.Remove})
	assert.Equal(t, 1, w.Pending())
	assert.False(t, w.paths[sub])

	w.handleEvent(fsnotify.Event{Name: b, Op: fsnotify.Rename})
	assert.Zero(t, w.Pending())
}

func TestIsSubPath(t *testing.T) {
	sep := string(filepath.Separator)
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"a" + sep + "b", "a", true},
		{"ab", "a", false},
		{"a", "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSubPath(tt.path, tt.parent), "%s in %s", tt.path, tt.parent)
	}
}
