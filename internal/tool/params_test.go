package tool

import (
	"testing"
	"time"
)

func TestGetTime(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{"rfc3339", "2026-08-29T10:00:00Z", timePtr(2026, 8, 29, 10)},
		{"bare date", "2026-08-29", timePtr(2026, 8, 29, 0)},
		{"us slash date", "08/29/2026", timePtr(2026, 8, 29, 0)},
		{"garbage", "next tuesday-ish", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := getTime(map[string]any{"when": tt.raw}, "when")
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("getTime(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			if got != nil && !got.Equal(*tt.want) {
				t.Errorf("getTime(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func timePtr(year int, month time.Month, day, hour int) *time.Time {
	t := time.Date(year, month, day, hour, 0, 0, 0, time.UTC)
	return &t
}
