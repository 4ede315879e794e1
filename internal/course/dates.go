package course

import (
	"errors"
	"strings"
	"time"
)

// DisplayLayout renders deadlines on grade lines.
const DisplayLayout = "2006-01-02 15:04:05-07:00"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate accepts ISO-8601 instants. A value without a zone is UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.New("not an ISO-8601 date")
}

// ExtendDeadline shifts a deadline by whole days.
func ExtendDeadline(at time.Time, days int) time.Time {
	return at.Add(time.Duration(days) * 24 * time.Hour)
}

// FormatDeadline renders a deadline, marking extended ones with " *".
func FormatDeadline(at time.Time, extended bool) string {
	s := at.UTC().Format(DisplayLayout)
	if extended {
		s += " *"
	}
	return s
}
