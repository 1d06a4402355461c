package telemetry

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are tried in order. All are ISO-8601 profiles; zone-less
// forms are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
}

// ParseTimestamp parses an ISO-8601 timestamp. A single space may stand in for
// the date/time separator.
func ParseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if len(value) < len("2006-01-02T15:04:05") {
		return time.Time{}, false
	}
	if value[10] == ' ' {
		value = value[:10] + "T" + value[11:]
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseLapDuration accepts seconds ("92.481") or a clock string ("1:32.481").
func ParseLapDuration(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if minutes, seconds, found := strings.Cut(value, ":"); found {
		m, err := strconv.Atoi(minutes)
		if err != nil || m < 0 {
			return 0, false
		}
		s, err := strconv.ParseFloat(seconds, 64)
		if err != nil || s < 0 {
			return 0, false
		}
		return float64(m)*60 + s, true
	}
	s, err := strconv.ParseFloat(value, 64)
	if err != nil || s < 0 {
		return 0, false
	}
	return s, true
}

// Seconds converts a float second count into a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
