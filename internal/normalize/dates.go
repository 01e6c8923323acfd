package normalize

import (
	"strings"
	"time"
)

// dateLayouts lists every due-date format observed across the source
// platforms, most common first. Order matters: unambiguous layouts are
// tried before the US-style numeric ones.
var dateLayouts = []string{
	time.RFC3339,          // 2025-03-15T17:00:00Z
	"2006-01-02 15:04:05", // SQL-ish timestamps from JSON APIs
	"2006-01-02",          // ISO date
	"2006/01/02",
	"01/02/2006", // US numeric, zero-padded
	"1/2/2006",   // US numeric, no padding
	"01-02-2006",
	"02 Jan 2006",
	"2-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC1123,  // RSS pubDate style
	time.RFC1123Z, // RSS pubDate with numeric zone
}

// NormalizeDate parses a raw due-date string into a date. Returns nil for
// empty input and for any format outside the supported set; a bad date must
// never reject the record it rides on.
func NormalizeDate(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Truncate to a date; due dates carry no meaningful time of day.
		d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		return &d
	}
	return nil
}
