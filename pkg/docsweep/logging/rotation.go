package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig configures log file rotation behavior.
type RotationConfig struct {
	// MaxSize is the maximum size in bytes before rotation.
	// Zero uses the default of 10MB.
	MaxSize int64

	// MaxBackups is the maximum number of rotated files to keep.
	// Zero keeps all rotated files.
	MaxBackups int

	// MaxAge is the maximum number of days to keep rotated files.
	// Zero disables age-based cleanup.
	MaxAge int
}

// DefaultRotationConfig returns sensible defaults for rotation.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 5,
		MaxAge:     30,
	}
}

// RotatingWriter is an io.WriteCloser that rotates its file by size.
// It is safe for concurrent use.
type RotatingWriter struct {
	path string
	cfg  RotationConfig
	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) the log file at path, creating parent
// directories as needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	w.cleanup()
	return w, nil
}

// Write writes p to the current file, rotating first if p would push the
// file past MaxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.size > 0 && w.size+int64(len(p)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("rotating log file: %w", err)
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing to log file: %w", err)
	}
	return n, nil
}

// Close syncs and closes the log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing log file: %w", err)
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) openFile() error {
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}

	w.file = file
	w.size = info.Size()
	return nil
}

// rotate must be called with w.mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing current file: %w", err)
	}
	w.file = nil

	ext := filepath.Ext(w.path)
	base := strings.TrimSuffix(w.path, ext)
	rotated := fmt.Sprintf("%s.%s%s", base, time.Now().Format("2006-01-02-150405.000"), ext)

	if err := os.Rename(w.path, rotated); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("renaming log file: %w", err)
	}

	if err := w.openFile(); err != nil {
		return err
	}
	w.cleanup()
	return nil
}

// cleanup removes rotated files beyond MaxBackups or older than MaxAge.
func (w *RotatingWriter) cleanup() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	type rotatedFile struct {
		path    string
		modTime time.Time
	}
	var rotated []rotatedFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == base || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		rotated = append(rotated, rotatedFile{path: filepath.Join(dir, name), modTime: info.ModTime()})
	}

	sort.Slice(rotated, func(i, j int) bool {
		return rotated[i].modTime.After(rotated[j].modTime)
	})

	maxAge := time.Duration(w.cfg.MaxAge) * 24 * time.Hour
	for i, rf := range rotated {
		tooMany := w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups
		tooOld := w.cfg.MaxAge > 0 && time.Since(rf.modTime) > maxAge
		if tooMany || tooOld {
			_ = os.Remove(rf.path)
		}
	}
}
