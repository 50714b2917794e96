package sqlite

import (
	"fmt"
	"time"
)

// timeLayout is RFC3339 at second precision with an explicit offset.
// All timestamp columns store this format; the explicit offset keeps
// comparisons stable across host timezones.
const timeLayout = "2006-01-02T15:04:05Z07:00"

// FormatTime renders a timestamp for storage. Zero timestamps are rejected:
// every caller must supply a real, location-aware time.
func FormatTime(t time.Time) (string, error) {
	if t.IsZero() {
		return "", fmt.Errorf("%w: zero timestamp", ErrInvalidTime)
	}
	return t.UTC().Truncate(time.Second).Format(timeLayout), nil
}

// NowUTC returns the current time formatted for storage. All status
// transition paths funnel through this helper for consistency.
func NowUTC() string {
	s, _ := FormatTime(time.Now())
	return s
}

// ParseTime parses a stored timestamp.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// parseNullableTime parses a stored timestamp that may be absent.
func parseNullableTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
