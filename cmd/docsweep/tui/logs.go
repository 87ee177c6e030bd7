package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
)

// lineRing keeps the most recent lines, oldest first.
type lineRing[T any] struct {
	items []T
	max   int
}

func newLineRing[T any](maxItems int) *lineRing[T] {
	if maxItems < 1 {
		maxItems = 1
	}
	return &lineRing[T]{items: make([]T, 0, maxItems), max: maxItems}
}

// Add appends an item, evicting the oldest at capacity.
func (r *lineRing[T]) Add(item T) {
	if len(r.items) >= r.max {
		r.items = r.items[1:]
	}
	r.items = append(r.items, item)
}

// Items returns a copy of the retained items.
func (r *lineRing[T]) Items() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// Len returns the number of retained items.
func (r *lineRing[T]) Len() int {
	return len(r.items)
}

// logLevelStyle returns the style for a log level.
func logLevelStyle(level logging.Level) lipgloss.Style {
	switch level {
	case logging.LevelDebug:
		return logDebugStyle
	case logging.LevelWarn:
		return logWarnStyle
	case logging.LevelError:
		return logErrorStyle
	default:
		return logInfoStyle
	}
}

// logLevelChar returns a single character for the log level.
func logLevelChar(level logging.Level) string {
	switch level {
	case logging.LevelDebug:
		return "D"
	case logging.LevelInfo:
		return "I"
	case logging.LevelWarn:
		return "W"
	case logging.LevelError:
		return "E"
	default:
		return "?"
	}
}

// renderLogEntry formats one entry as "15:04:05 W component message".
func renderLogEntry(entry logging.Entry, width int) string {
	line := fmt.Sprintf("%s %s %s %s",
		entry.Time.Format("15:04:05"),
		logLevelChar(entry.Level),
		entry.Component,
		entry.Message)
	return logLevelStyle(entry.Level).Render(truncateEnd(line, width))
}

func truncateEnd(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
