package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/docsweep/pkg/docsweep/logging"
	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// ErrNotFound is returned by Get for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Manifest stores runs as JSON files in a directory.
type Manifest struct {
	dir string
	mu  sync.Mutex
	log *logging.Logger
}

// New creates a Manifest for dir. The directory is created on first Save.
func New(dir string) (*Manifest, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &Manifest{dir: dir, log: logging.Get("manifest")}, nil
}

// Dir returns the history directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// NewRun returns an unsaved run with a fresh ID and start time.
func NewRun(kind RunKind) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        generateID(kind, now),
		Kind:      kind,
		StartedAt: now,
	}
}

// Save fills in the summary and finish time when unset and writes the run.
func (m *Manifest) Save(run *Run) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}
	run.Summary = types.Summarize(run.Results)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	if err := m.write(run); err != nil {
		return fmt.Errorf("writing run %s: %w", run.ID, err)
	}
	m.log.Debug("saved run", "id", run.ID, "results", len(run.Results))
	return nil
}

// write stores the run atomically through a temp file and rename.
func (m *Manifest) write(run *Run) error {
	path := filepath.Join(m.dir, run.ID+".json")

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// List returns runs newest first. A limit of zero or less returns all.
// Unreadable files are skipped.
func (m *Manifest) List(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.runFiles()
	if err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(files))
	for _, name := range files {
		run, err := m.read(name)
		if err != nil {
			m.log.Debug("skipping unreadable run", "file", name, "error", err)
			continue
		}
		runs = append(runs, *run)
	}

	slices.SortFunc(runs, func(a, b Run) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Get returns the run with id. A unique ID prefix is accepted.
func (m *Manifest) Get(id string) (*Run, error) {
	if id == "" {
		return nil, errors.New("run ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.runFiles()
	if err != nil {
		return nil, err
	}

	var match string
	for _, name := range files {
		fileID := strings.TrimSuffix(name, ".json")
		if fileID == id {
			return m.read(name)
		}
		if strings.HasPrefix(fileID, id) {
			if match != "" {
				return nil, fmt.Errorf("ambiguous run ID prefix %q", id)
			}
			match = name
		}
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.read(match)
}

// Clean removes runs older than retentionDays and returns how many were
// removed. A retention of zero or less removes nothing.
func (m *Manifest) Clean(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := m.runFiles()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, name := range files {
		path := filepath.Join(m.dir, name)
		info, err := os.Stat(path)
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			m.log.Warn("could not remove run", "file", name, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("cleaned history", "removed", removed, "retention_days", retentionDays)
	}
	return removed, nil
}

func (m *Manifest) runFiles() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading history directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (m *Manifest) read(name string) (*Run, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, name))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}
	return &run, nil
}

// generateID creates an ID like "batch-2026-06-15T10-30-00-1a2b3c4d".
func generateID(kind RunKind, at time.Time) string {
	return fmt.Sprintf("%s-%s-%s", kind, at.Format("2006-01-02T15-04-05"), uuid.NewString()[:8])
}
