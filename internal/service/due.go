package service

import (
	"fmt"
	"strings"
	"time"
)

const (
	DueLayout     = "2006-01-02 15:04"
	DueDateLayout = "2006-01-02"
)

// ParseDue reads a due date typed by a user and returns it as epoch
// milliseconds. Accepted forms: empty or "none" (no due date), a relative Go
// duration with a leading "+" ("+30m", "+2h"), "2006-01-02 15:04",
// "2006-01-02" (midnight) and RFC 3339.
func ParseDue(raw string, now time.Time) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "none") || raw == "-" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "+") {
		d, err := time.ParseDuration(strings.TrimPrefix(raw, "+"))
		if err != nil {
			return nil, fmt.Errorf("parse due %q: %w", raw, err)
		}
		ms := now.Add(d).UnixMilli()
		return &ms, nil
	}

	loc := now.Location()
	for _, layout := range []string{DueLayout, DueDateLayout} {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			ms := t.UnixMilli()
			return &ms, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		ms := t.UnixMilli()
		return &ms, nil
	}
	return nil, fmt.Errorf("parse due %q: expected %q, %q or +duration", raw, DueLayout, DueDateLayout)
}

// FormatDue renders an epoch-millisecond due date in loc.
func FormatDue(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(DueLayout)
}
