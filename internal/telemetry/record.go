package telemetry

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one loosely typed provider row.
type Record map[string]any

// Field name aliases used across sources.
var (
	TimeKeys   = []string{"date", "time", "timestamp", "recorded_at"}
	DriverKeys = []string{"driver_number", "driver", "driver_id"}
)

// Lookup returns the first present, non-nil value among keys.
func (r Record) Lookup(keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first non-empty string value among keys.
func (r Record) String(keys ...string) string {
	v, ok := r.Lookup(keys...)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// Float returns the first value among keys interpreted as a finite float.
func (r Record) Float(keys ...string) (float64, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Int returns the first value among keys interpreted as an integer. Floats are
// accepted only when integral.
func (r Record) Int(keys ...string) (int, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Bool interprets the value as a flag. Numbers are true when non-zero.
func (r Record) Bool(keys ...string) (bool, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return false, false
	}
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		if err == nil {
			return b, true
		}
	}
	f, ok := toFloat(v)
	if !ok {
		return false, false
	}
	return f != 0, true
}

// Time returns the first value among keys parsed as an ISO-8601 timestamp.
func (r Record) Time(keys ...string) (time.Time, bool) {
	v, ok := r.Lookup(keys...)
	if !ok {
		return time.Time{}, false
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(s)
}

// Driver returns the record's integral driver number.
func (r Record) Driver() (int, bool) {
	return r.Int(DriverKeys...)
}

// Timestamp returns the record's sample time.
func (r Record) Timestamp() (time.Time, bool) {
	return r.Time(TimeKeys...)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i, true
		}
	}
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}
