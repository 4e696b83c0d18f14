package domain

import (
	"testing"
	"time"
)

func TestFormatTimeRelative(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{name: "future two units", at: now.Add(2*time.Hour + 15*time.Minute), want: "in 2 hours and 15 minutes"},
		{name: "past two units", at: now.Add(-(2*time.Hour + 15*time.Minute)), want: "2 hours and 15 minutes ago"},
		{name: "singular", at: now.Add(time.Hour + time.Minute), want: "in 1 hour and 1 minute"},
		{name: "seconds only", at: now.Add(42 * time.Second), want: "in 42 seconds"},
		{name: "two most significant of three", at: now.Add(26*time.Hour + 3*time.Minute), want: "in 1 day and 2 hours"},
		{name: "days and minutes skip absent hours", at: now.Add(48*time.Hour + 5*time.Minute), want: "in 2 days and 5 minutes"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := FormatTime(tt.at, testUser, "", now)
			if got != tt.want {
				t.Fatalf("FormatTime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatTimeAbsoluteBeyondWeek(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	at := time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC)

	got := FormatTime(at, testUser, "", now)
	want := "9:30am UTC on Friday, March 20 2026"
	if got != want {
		t.Fatalf("FormatTime = %q, want %q", got, want)
	}
}

func TestFormatEvery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		d    time.Duration
		want string
	}{
		{24 * time.Hour, "every 1 day"},
		{48 * time.Hour, "every 2 days"},
		{7 * 24 * time.Hour, "every 1 week"},
		{90 * time.Minute, "every 90 minutes"},
	}
	for _, tt := range tests {
		if got := FormatEvery(tt.d); got != tt.want {
			t.Fatalf("FormatEvery(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
