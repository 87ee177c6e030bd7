// Package logging provides component loggers for docsweep backed by
// charmbracelet/log, with a size-rotated log file and optional console output.
//
// Basic usage:
//
//	if err := logging.Init(logging.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer logging.Close()
//
//	logger := logging.Get("batch")
//	logger.Info("run started", "tasks", 12, "workers", 4)
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
)

// Level represents a logging level.
type Level int

// Log levels from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) charm() log.Level {
	switch l {
	case LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ErrInvalidLevel is returned when an invalid log level string is provided.
var ErrInvalidLevel = errors.New("invalid log level")

// ParseLevel parses a string into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("%w: %s", ErrInvalidLevel, s)
	}
}

// Config configures the logging system.
type Config struct {
	// Level is the default log level (debug, info, warn, error).
	Level string

	// Path is the log file path. Empty uses DefaultLogPath().
	Path string

	// Rotation configures log file rotation.
	Rotation RotationConfig

	// Components maps component names to their log levels.
	Components map[string]string

	// ConsoleLevel enables stderr output at the given level.
	// Empty disables console output.
	ConsoleLevel string

	// Quiet disables console output regardless of ConsoleLevel.
	// The TUI sets this because it owns the terminal.
	Quiet bool
}

// Entry is a log record delivered to subscribers.
type Entry struct {
	Time      time.Time
	Level     Level
	Component string
	Message   string
}

// Logger writes records for one component.
type Logger struct {
	file      *log.Logger
	console   *log.Logger
	component string
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.log(LevelInfo, msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.log(LevelWarn, msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	logTo(l.file, level, msg, args...)
	if l.console != nil {
		logTo(l.console, level, msg, args...)
	}

	if level.charm() >= l.file.GetLevel() {
		global.broadcast(Entry{
			Time:      time.Now(),
			Level:     level,
			Component: l.component,
			Message:   msg,
		})
	}
}

func logTo(logger *log.Logger, level Level, msg string, args ...interface{}) {
	switch level {
	case LevelDebug:
		logger.Debug(msg, args...)
	case LevelInfo:
		logger.Info(msg, args...)
	case LevelWarn:
		logger.Warn(msg, args...)
	case LevelError:
		logger.Error(msg, args...)
	}
}

// With returns a logger that attaches the given key/value pairs to every record.
func (l *Logger) With(args ...interface{}) *Logger {
	nl := &Logger{
		file:      l.file.With(args...),
		component: l.component,
	}
	if l.console != nil {
		nl.console = l.console.With(args...)
	}
	return nl
}

type state struct {
	mu          sync.RWMutex
	initialized bool
	writer      *RotatingWriter
	level       Level
	components  map[string]Level
	loggers     map[string]*Logger
	subscribers map[chan Entry]struct{}

	consoleEnabled bool
	consoleLevel   Level
}

var global = &state{
	loggers:     make(map[string]*Logger),
	components:  make(map[string]Level),
	subscribers: make(map[chan Entry]struct{}),
}

// Init configures the logging system. Loggers obtained before Init discard
// their output; they are rebuilt in place so package-level loggers pick up
// the new configuration.
func Init(cfg Config) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.initialized && global.writer != nil {
		if err := global.writer.Close(); err != nil {
			return fmt.Errorf("closing existing writer: %w", err)
		}
		global.writer = nil
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	components := make(map[string]Level, len(cfg.Components))
	for comp, lvl := range cfg.Components {
		parsed, err := ParseLevel(lvl)
		if err != nil {
			return fmt.Errorf("parsing level for component %s: %w", comp, err)
		}
		components[comp] = parsed
	}

	consoleEnabled := false
	var consoleLevel Level
	if cfg.ConsoleLevel != "" && !cfg.Quiet {
		consoleLevel, err = ParseLevel(cfg.ConsoleLevel)
		if err != nil {
			return fmt.Errorf("parsing console level: %w", err)
		}
		consoleEnabled = true
	}

	path := cfg.Path
	if path == "" {
		path = DefaultLogPath()
	}
	writer, err := NewRotatingWriter(path, cfg.Rotation)
	if err != nil {
		return fmt.Errorf("creating log writer: %w", err)
	}

	global.level = level
	global.components = components
	global.consoleEnabled = consoleEnabled
	global.consoleLevel = consoleLevel
	global.writer = writer
	global.initialized = true

	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}
	return nil
}

// Get returns the logger for a component, creating it on first use.
func Get(component string) *Logger {
	global.mu.RLock()
	if logger, ok := global.loggers[component]; ok {
		global.mu.RUnlock()
		return logger
	}
	global.mu.RUnlock()

	global.mu.Lock()
	defer global.mu.Unlock()

	if logger, ok := global.loggers[component]; ok {
		return logger
	}
	logger := newLogger(component)
	global.loggers[component] = logger
	return logger
}

// newLogger must be called with global.mu held.
func newLogger(component string) *Logger {
	level := global.level
	if lvl, ok := global.components[component]; ok {
		level = lvl
	}

	var out io.Writer = io.Discard
	if global.initialized && global.writer != nil {
		out = global.writer
	}

	logger := &Logger{
		file: log.NewWithOptions(out, log.Options{
			Level:           level.charm(),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Prefix:          component,
		}),
		component: component,
	}

	if global.initialized && global.consoleEnabled {
		logger.console = log.NewWithOptions(os.Stderr, log.Options{
			Level:           global.consoleLevel.charm(),
			ReportTimestamp: true,
			TimeFormat:      "15:04:05",
			Prefix:          component,
		})
	}
	return logger
}

// Close flushes and closes the log file and all subscriber channels.
func Close() error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if !global.initialized {
		return nil
	}

	for ch := range global.subscribers {
		close(ch)
		delete(global.subscribers, ch)
	}

	var err error
	if global.writer != nil {
		err = global.writer.Close()
		global.writer = nil
	}
	global.initialized = false

	for component, logger := range global.loggers {
		*logger = *newLogger(component)
	}

	if err != nil {
		return fmt.Errorf("closing log writer: %w", err)
	}
	return nil
}

// Subscribe returns a buffered channel receiving log entries at or above each
// component's level. Entries are dropped when the channel is full.
func Subscribe() <-chan Entry {
	global.mu.Lock()
	defer global.mu.Unlock()

	ch := make(chan Entry, 100)
	global.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes a subscription. The channel is not closed.
func Unsubscribe(ch <-chan Entry) {
	global.mu.Lock()
	defer global.mu.Unlock()

	for sub := range global.subscribers {
		if sub == ch {
			delete(global.subscribers, sub)
			return
		}
	}
}

func (s *state) broadcast(entry Entry) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

// DefaultLogPath returns $XDG_STATE_HOME/docsweep/docsweep.log.
func DefaultLogPath() string {
	return filepath.Join(xdg.StateHome, "docsweep", "docsweep.log")
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Path:     DefaultLogPath(),
		Rotation: DefaultRotationConfig(),
	}
}
