package filter

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/gobwas/glob"
)

// Filter selects, orders and caps discovered documents. The zero value
// keeps everything in path order.
type Filter struct {
	// MaxSize excludes files larger than this many bytes. 0 means no limit.
	MaxSize int64

	// Exclude holds glob patterns matched against the full path and the
	// base name. "**" crosses directory separators.
	Exclude []string

	// OlderThan keeps only files last modified at least this long ago.
	OlderThan time.Duration

	// NewerThan keeps only files modified within this duration.
	NewerThan time.Duration

	// MaxDepth limits how far below the root files are taken from.
	// 1 is the root itself; 0 means unlimited.
	MaxDepth int

	SortBy         SortField
	SortDescending bool

	// Limit caps the number of documents after sorting. 0 means unlimited.
	Limit int

	excludes []glob.Glob
	now      func() time.Time
}

// Option configures a Filter.
type Option func(*Filter)

// New builds a filter. It fails when an exclude pattern does not compile.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{now: time.Now}
	for _, opt := range opts {
		opt(f)
	}

	for _, pattern := range f.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.excludes = append(f.excludes, g)
	}
	return f, nil
}

// WithMaxSize excludes files larger than n bytes.
func WithMaxSize(n int64) Option {
	return func(f *Filter) {
		f.MaxSize = max(n, 0)
	}
}

// WithExclude adds exclude patterns. Empty patterns are ignored.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		for _, p := range patterns {
			if p != "" {
				f.Exclude = append(f.Exclude, p)
			}
		}
	}
}

// WithOlderThan keeps files last modified at least d ago.
func WithOlderThan(d time.Duration) Option {
	return func(f *Filter) {
		f.OlderThan = max(d, 0)
	}
}

// WithNewerThan keeps files modified within d.
func WithNewerThan(d time.Duration) Option {
	return func(f *Filter) {
		f.NewerThan = max(d, 0)
	}
}

// WithMaxDepth limits the directory depth files are taken from.
func WithMaxDepth(depth int) Option {
	return func(f *Filter) {
		f.MaxDepth = max(depth, 0)
	}
}

// WithSort sets the queue order.
func WithSort(field SortField, descending bool) Option {
	return func(f *Filter) {
		f.SortBy = field
		f.SortDescending = descending
	}
}

// WithLimit caps the number of documents.
func WithLimit(n int) Option {
	return func(f *Filter) {
		f.Limit = max(n, 0)
	}
}

// WithClock sets the time source for age checks.
func WithClock(now func() time.Time) Option {
	return func(f *Filter) {
		if now != nil {
			f.now = now
		}
	}
}

// Match reports whether c passes every criterion.
func (f *Filter) Match(c Candidate) bool {
	if f.MaxSize > 0 && c.Size > f.MaxSize {
		return false
	}
	if f.MaxDepth > 0 && c.Depth > f.MaxDepth {
		return false
	}
	if !f.matchAge(c.ModTime) {
		return false
	}
	return !f.excluded(c)
}

func (f *Filter) matchAge(mod time.Time) bool {
	if f.OlderThan == 0 && f.NewerThan == 0 {
		return true
	}
	now := time.Now()
	if f.now != nil {
		now = f.now()
	}
	if f.OlderThan > 0 && mod.After(now.Add(-f.OlderThan)) {
		return false
	}
	if f.NewerThan > 0 && mod.Before(now.Add(-f.NewerThan)) {
		return false
	}
	return true
}

func (f *Filter) excluded(c Candidate) bool {
	for _, g := range f.excludes {
		if g.Match(c.Path) || g.Match(c.Name) {
			return true
		}
	}
	return false
}

// Sort returns a sorted copy of candidates. Ties fall back to path order.
func (f *Filter) Sort(candidates []Candidate) []Candidate {
	sorted := slices.Clone(candidates)
	slices.SortStableFunc(sorted, func(a, b Candidate) int {
		var c int
		switch f.SortBy {
		case SortSize:
			c = cmp.Compare(a.Size, b.Size)
		case SortAge:
			c = a.ModTime.Compare(b.ModTime)
		}
		if c == 0 {
			c = cmp.Compare(a.Path, b.Path)
		}
		if f.SortDescending {
			return -c
		}
		return c
	})
	return sorted
}

// Apply matches, sorts and limits candidates.
func (f *Filter) Apply(candidates []Candidate) []Candidate {
	var matched []Candidate
	for _, c := range candidates {
		if f.Match(c) {
			matched = append(matched, c)
		}
	}

	sorted := f.Sort(matched)
	if f.Limit > 0 && len(sorted) > f.Limit {
		return sorted[:f.Limit]
	}
	return sorted
}
