// Package filter narrows, orders and caps the documents discovered in a
// directory before they are queued.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SortField is the order discovered documents are queued in.
type SortField int

const (
	// SortPath queues documents in lexical path order.
	SortPath SortField = iota
	// SortSize queues documents by file size.
	SortSize
	// SortAge queues documents by modification time, oldest first.
	SortAge
)

const (
	sortFieldPath = "path"
	sortFieldSize = "size"
	sortFieldAge  = "age"
)

// String returns the flag value for the sort field.
func (s SortField) String() string {
	switch s {
	case SortSize:
		return sortFieldSize
	case SortAge:
		return sortFieldAge
	default:
		return sortFieldPath
	}
}

// ErrInvalidSortField is returned by ParseSortField for unknown names.
var ErrInvalidSortField = errors.New("invalid sort field")

// ParseSortField parses "path", "size" or "age" (case-insensitive).
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", sortFieldPath:
		return SortPath, nil
	case sortFieldSize:
		return SortSize, nil
	case sortFieldAge:
		return SortAge, nil
	default:
		return SortPath, fmt.Errorf("%w: %q (want path, size or age)", ErrInvalidSortField, s)
	}
}

// Candidate is a discovered document.
type Candidate struct {
	// Path is the absolute path to the document.
	Path string

	// Name is the base name.
	Name string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the last modification time.
	ModTime time.Time

	// Depth is 1 for files directly in the discovery root, 2 one level
	// below, and so on.
	Depth int
}
