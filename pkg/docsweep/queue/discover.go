package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/docsweep/pkg/docsweep/filter"
)

var (
	// ErrNotADirectory is returned when AddFromDirectory is given a path that
	// is not a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrInvalidPattern is returned for malformed glob patterns.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Discovery selects the documents taken from a directory.
type Discovery struct {
	// Pattern is matched against file names.
	Pattern string

	// Recursive searches subdirectories too.
	Recursive bool

	// Filter narrows and orders the matches. Nil queues every match in
	// lexical path order.
	Filter *filter.Filter
}

// AddFromDirectory queues every regular file in dir whose name matches
// pattern. With recursive set, subdirectories are searched too. Files are
// queued in lexical path order.
func (q *Queue) AddFromDirectory(dir, pattern string, recursive bool, output string, priority int) ([]*Task, error) {
	return q.AddDiscovered(dir, Discovery{Pattern: pattern, Recursive: recursive}, output, priority)
}

// AddDiscovered queues the documents in dir selected by d, in the order the
// filter sorts them.
func (q *Queue) AddDiscovered(dir string, d Discovery, output string, priority int) ([]*Task, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotADirectory, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}
	if _, err := filepath.Match(d.Pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, d.Pattern, err)
	}

	var found []filter.Candidate
	if d.Recursive {
		found, err = discoverRecursive(dir, d.Pattern)
	} else {
		found, err = discoverFlat(dir, d.Pattern)
	}
	if err != nil {
		return nil, err
	}

	f := d.Filter
	if f == nil {
		f = &filter.Filter{}
	}
	selected := f.Apply(found)

	paths := make([]string, len(selected))
	for i, c := range selected {
		paths[i] = c.Path
	}

	tasks := q.AddMany(paths, output, priority)
	q.log.Info("added documents from directory",
		"dir", dir, "pattern", d.Pattern, "matched", len(found), "count", len(tasks))
	return tasks, nil
}

func discoverFlat(dir, pattern string) ([]filter.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var found []filter.Candidate
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		if c, ok := candidate(dir, filepath.Join(dir, e.Name()), e); ok {
			found = append(found, c)
		}
	}
	return found, nil
}

// discoverRecursive walks dir in parallel. The callback runs on multiple
// goroutines, so matches are collected under a mutex.
func discoverRecursive(dir, pattern string) ([]filter.Candidate, error) {
	var (
		mu    sync.Mutex
		found []filter.Candidate
	)

	conf := fastwalk.Config{Follow: false}
	err := fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable subtrees are skipped
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		if c, ok := candidate(dir, path, d); ok {
			mu.Lock()
			found = append(found, c)
			mu.Unlock()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	return found, nil
}

// candidate describes a matched file. Files that vanish between listing and
// stat are dropped.
func candidate(root, path string, d fs.DirEntry) (filter.Candidate, bool) {
	info, err := d.Info()
	if err != nil {
		return filter.Candidate{}, false
	}
	return filter.Candidate{
		Path:    path,
		Name:    d.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		Depth:   depth(root, path),
	}, true
}

// depth is 1 for files directly in root.
func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 1
	}
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}
