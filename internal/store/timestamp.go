package store

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layouts accepted for date-like createdAt strings, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
}

// NormalizeTimestamp converts a createdAt value into unix milliseconds. It
// accepts numbers, numeric strings and date-like strings; anything it cannot
// read becomes 0 so the message sorts first instead of being dropped.
func NormalizeTimestamp(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case int64:
		return max(t, 0)
	case int:
		return max(int64(t), 0)
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t >= math.MaxInt64 {
			return 0
		}
		return int64(t)
	case json.Number:
		return NormalizeTimestamp(string(t))
	case time.Time:
		if t.IsZero() {
			return 0
		}
		return t.UnixMilli()
	case string:
		return parseTimestampString(t)
	case []any:
		return parseDateParts(t)
	default:
		return 0
	}
}

func parseTimestampString(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return max(n, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return NormalizeTimestamp(f)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli()
		}
	}
	return 0
}

// parseDateParts reads [year, month, day, hour, minute, second, nanos], the
// array form some JSON encoders use for local date-times.
func parseDateParts(parts []any) int64 {
	if len(parts) < 3 {
		return 0
	}
	var f [7]int
	for i := 0; i < len(parts) && i < len(f); i++ {
		n := NormalizeTimestamp(parts[i])
		if n == 0 && i < 3 {
			return 0
		}
		f[i] = int(n)
	}
	return time.Date(f[0], time.Month(f[1]), f[2], f[3], f[4], f[5], f[6], time.Local).UnixMilli()
}
