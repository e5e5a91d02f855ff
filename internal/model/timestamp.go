package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	layoutISO   = "2006-01-02T15:04:05"
	layoutSpace = "2006-01-02 15:04:05"
)

// ParseTimestamp parses a second-precision local timestamp in either the
// "T"-separated or space-separated form.
func ParseTimestamp(s string) (time.Time, error) {
	layout := layoutSpace
	if strings.Contains(s, "T") {
		layout = layoutISO
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
	}
	return t, nil
}

// FormatTimestamp renders t in the space-separated form the upstream API expects.
func FormatTimestamp(t time.Time) string {
	return t.Format(layoutSpace)
}
