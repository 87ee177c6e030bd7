package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Calendar durations. Months and years are approximate.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var (
	// ErrInvalidAge is returned when an age string cannot be parsed.
	ErrInvalidAge = errors.New("invalid age")

	// ErrNegativeAge is returned for ages below zero.
	ErrNegativeAge = errors.New("age cannot be negative")
)

var agePattern = regexp.MustCompile(`(?i)^([0-9]+(?:\.[0-9]+)?)\s*(d|w|mo|y)$`)

// ParseAge parses a document age such as "3d", "2w", "6mo" or "1y". Plain Go
// durations ("36h", "90m") are accepted too.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidAge)
	}
	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeAge
	}

	m := agePattern.FindStringSubmatch(s)
	if m == nil {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAge, s)
		}
		return d, nil
	}

	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAge, s)
	}

	var unit time.Duration
	switch strings.ToLower(m[2]) {
	case "d":
		unit = Day
	case "w":
		unit = Week
	case "mo":
		unit = Month
	case "y":
		unit = Year
	}
	return time.Duration(value * float64(unit)), nil
}
