package domain

import (
	"errors"
	"testing"
	"time"
)

func TestOneOffNext(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	at := now.Add(90 * time.Minute)
	got, ok := OneOff{At: at}.Next(now)
	if !ok || !got.Equal(at) {
		t.Fatalf("Next = %v, %v; want %v, true", got, ok, at)
	}

	if _, ok := (OneOff{At: now.Add(-time.Second)}).Next(now); ok {
		t.Fatal("past one-off must report no further fires")
	}
	if _, ok := (OneOff{At: now}).Next(now); ok {
		t.Fatal("Next must be strictly after now")
	}
}

func TestIntervalNext(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		at    time.Time
		every time.Duration
		want  time.Time
	}{
		{name: "future anchor", at: now.Add(time.Hour), every: 24 * time.Hour, want: now.Add(time.Hour)},
		{name: "anchor just passed", at: now.Add(-time.Minute), every: time.Hour, want: now.Add(59 * time.Minute)},
		{name: "many missed periods", at: now.Add(-49 * time.Hour), every: 24 * time.Hour, want: now.Add(23 * time.Hour)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Interval{At: tt.at, Every: tt.every}.Next(now)
			if !ok {
				t.Fatal("interval must always have a next fire")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntervalAdvanceIgnoresHandlerLatency(t *testing.T) {
	t.Parallel()
	fired := time.Date(2026, 3, 7, 9, 0, 0, 0, time.UTC)
	iv := Interval{At: fired, Every: 24 * time.Hour}

	// However long the fire handler ran, the next anchor is fired+period.
	next := iv.Advance(fired)
	want := fired.Add(24 * time.Hour)
	if !next.At.Equal(want) {
		t.Fatalf("Advance anchor = %v, want %v", next.At, want)
	}
}

func TestCronNextRollsOverWeekend(t *testing.T) {
	t.Parallel()
	// Saturday 10:00 UTC; schedule is 09:00 mon-fri.
	now := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	if now.Weekday() != time.Saturday {
		t.Fatalf("fixture is %v, want Saturday", now.Weekday())
	}

	c, err := NewCron(0, 9, WorkWeek)
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	got, ok := c.Next(now)
	if !ok {
		t.Fatal("cron must always have a next fire")
	}
	want := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC) // following Monday
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestCronSameDayLater(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) // Monday 08:00
	c, err := NewCron(30, 11, WorkWeek)
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	got, _ := c.Next(now)
	want := time.Date(2026, 3, 9, 11, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNewCronValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewCron(60, 9, WorkWeek); err == nil {
		t.Fatal("minute 60 must be rejected")
	}
	if _, err := NewCron(0, 24, WorkWeek); err == nil {
		t.Fatal("hour 24 must be rejected")
	}
	if _, err := NewCron(0, 9, 0); err == nil {
		t.Fatal("empty weekday set must be rejected")
	}
}

func TestNormalizeCronMidnightShift(t *testing.T) {
	t.Parallel()
	ref := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	zurich, err := time.LoadLocation("Europe/Zurich")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}

	// 00:30 Zurich (UTC+1 in January) is 23:30 UTC the previous day, so
	// the whole weekday set shifts back by one.
	c, err := NormalizeCron(30, 0, WeekdaySet(0).With(time.Monday), zurich, ref)
	if err != nil {
		t.Fatalf("NormalizeCron: %v", err)
	}
	if c.Hour != 23 || c.Minute != 30 {
		t.Fatalf("normalized to %02d:%02d, want 23:30", c.Hour, c.Minute)
	}
	if !c.Days.Has(time.Sunday) || c.Days.Has(time.Monday) {
		t.Fatalf("weekday set not shifted: %v", c.Days)
	}

	// 23:30 New York (UTC-5 in January) is 04:30 UTC the next day, so
	// the set shifts forward instead.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c, err = NormalizeCron(30, 23, WeekdaySet(0).With(time.Monday), ny, ref)
	if err != nil {
		t.Fatalf("NormalizeCron: %v", err)
	}
	if c.Hour != 4 || c.Minute != 30 {
		t.Fatalf("normalized to %02d:%02d, want 04:30", c.Hour, c.Minute)
	}
	if !c.Days.Has(time.Tuesday) || c.Days.Has(time.Monday) {
		t.Fatalf("weekday set not shifted forward: %v", c.Days)
	}
}

func TestTriggerRoundTrip(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		trig Trigger
	}{
		{name: "once", trig: OneOff{At: at}},
		{name: "interval", trig: Interval{At: at, Every: 36 * time.Hour}},
		{name: "cron", trig: Cron{Minute: 0, Hour: 9, Days: WorkWeek}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			start, every, spec := EncodeTrigger(tt.trig)
			got, err := DecodeTrigger(start, every, spec)
			if err != nil {
				t.Fatalf("DecodeTrigger: %v", err)
			}
			if got != tt.trig {
				t.Fatalf("round trip = %#v, want %#v", got, tt.trig)
			}
		})
	}
}

func TestDecodeTriggerRejectsAmbiguousRows(t *testing.T) {
	t.Parallel()
	start := time.Now().UTC().Format(time.RFC3339)

	tests := []struct {
		name                   string
		start, every, cronSpec string
	}{
		{name: "none populated"},
		{name: "interval and cron", start: start, every: "24h0m0s", cronSpec: "0 9 1,2,3,4,5"},
		{name: "once and cron", start: start, cronSpec: "0 9 1,2,3,4,5"},
		{name: "every without anchor", every: "24h0m0s"},
		{name: "bad start", start: "not-a-time"},
		{name: "bad every", start: start, every: "sometimes"},
		{name: "bad cron day", cronSpec: "0 9 7"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTrigger(tt.start, tt.every, tt.cronSpec)
			if !errors.Is(err, ErrMalformedTrigger) {
				t.Fatalf("err = %v, want ErrMalformedTrigger", err)
			}
		})
	}
}
