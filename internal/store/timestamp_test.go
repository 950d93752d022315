package store

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestNormalizeTimestamp(t *testing.T) {
	local := time.Date(2024, 3, 1, 12, 30, 0, 0, time.Local).UnixMilli()

	tests := []struct {
		name string
		in   any
		want int64
	}{
		{"nil", nil, 0},
		{"int64 millis", int64(1700000000000), 1700000000000},
		{"float millis", float64(1700000000000), 1700000000000},
		{"json number", json.Number("1700000000000"), 1700000000000},
		{"numeric string", "1700000000000", 1700000000000},
		{"rfc3339", "2024-03-01T12:30:00Z", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC).UnixMilli()},
		{"local datetime", "2024-03-01T12:30:00", local},
		{"space separated", "2024-03-01 12:30:00", local},
		{"time value", time.UnixMilli(42), 42},
		{"date parts", []any{float64(2024), float64(3), float64(1), float64(12), float64(30)}, local},
		{"short date parts", []any{float64(2024)}, 0},
		{"garbage", "not a date", 0},
		{"negative", int64(-5), 0},
		{"float beyond int64", float64(1e19), 0},
		{"float at int64 bound", float64(math.MaxInt64), 0},
		{"empty string", "", 0},
		{"unsupported type", []int{1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTimestamp(tt.in); got != tt.want {
				t.Errorf("NormalizeTimestamp(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
