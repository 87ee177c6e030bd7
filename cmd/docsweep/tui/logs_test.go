package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
)

func TestLineRing(t *testing.T) {
	r := newLineRing[string](3)
	for _, s := range []string{"a", "b", "c", "d"} {
		r.Add(s)
	}

	got := r.Items()
	if strings.Join(got, "") != "bcd" {
		t.Errorf("expected bcd, got %v", got)
	}
	got[0] = "x"
	if r.Items()[0] != "b" {
		t.Error("Items should return a copy")
	}

	if newLineRing[int](0).max != 1 {
		t.Error("expected minimum capacity of 1")
	}
}

func TestLogLevelChar(t *testing.T) {
	tests := []struct {
		level logging.Level
		want  string
	}{
		{logging.LevelDebug, "D"},
		{logging.LevelInfo, "I"},
		{logging.LevelWarn, "W"},
		{logging.LevelError, "E"},
	}
	for _, tt := range tests {
		if got := logLevelChar(tt.level); got != tt.want {
			t.Errorf("logLevelChar(%v) = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestRenderLogEntry(t *testing.T) {
	entry := logging.Entry{
		Time:      time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
		Level:     logging.LevelError,
		Component: "engine",
		Message:   "engine exited with status 2",
	}

	out := renderLogEntry(entry, 200)
	for _, want := range []string{"09:30:00", "E", "engine", "exited with status 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}

	short := renderLogEntry(entry, 20)
	if strings.Contains(short, "status 2") {
		t.Errorf("expected truncated line, got %q", short)
	}
}

func TestTruncatePath(t *testing.T) {
	if got := truncatePath("/a/b", 10); got != "/a/b" {
		t.Errorf("expected unchanged path, got %q", got)
	}
	if got := truncatePath("/very/long/path/file.pdf", 12); got != ".../file.pdf" {
		t.Errorf("expected .../file.pdf, got %q", got)
	}
}
