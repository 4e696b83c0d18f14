package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Trigger determines when a reminder fires next. Exactly one concrete
// variant backs a reminder at any time:
//
//   - OneOff: a single absolute instant, terminal after firing
//   - Interval: an anchor instant plus a fixed period
//   - Cron: minute/hour on a weekday set, already normalized to UTC
//
// Representing the three mechanisms as a closed sum (instead of a struct
// with optional fields) makes "two triggers armed at once" unrepresentable.
type Trigger interface {
	// Next returns the first fire instant strictly after now in UTC.
	// ok is false when the trigger can never fire again.
	Next(now time.Time) (at time.Time, ok bool)

	// Recurring reports whether the trigger re-arms after a fire.
	Recurring() bool

	// Kind names the variant for logs and storage decisions.
	Kind() string
}

var ErrMalformedTrigger = errors.New("malformed trigger")

// OneOff fires exactly once at an absolute UTC instant.
type OneOff struct {
	At time.Time
}

func (o OneOff) Next(now time.Time) (time.Time, bool) {
	if o.At.After(now) {
		return o.At.UTC(), true
	}
	return time.Time{}, false
}

func (o OneOff) Recurring() bool { return false }
func (o OneOff) Kind() string    { return "once" }

// Interval fires at At, then every Every after the instant that fired.
type Interval struct {
	At    time.Time
	Every time.Duration
}

func (i Interval) Next(now time.Time) (time.Time, bool) {
	if i.Every <= 0 {
		return time.Time{}, false
	}
	at := i.At.UTC()
	if at.After(now) {
		return at, true
	}
	// Catch up to the first occurrence after now without looping.
	missed := now.Sub(at)/i.Every + 1
	return at.Add(missed * i.Every), true
}

func (i Interval) Recurring() bool { return true }
func (i Interval) Kind() string    { return "interval" }

// Advance returns the interval re-anchored after a fire. The next fire is
// exactly fired+Every, independent of how long the fire handler ran.
func (i Interval) Advance(fired time.Time) Interval {
	return Interval{At: fired.Add(i.Every).UTC(), Every: i.Every}
}

// Cron fires at Minute past Hour on every weekday in Days. All three
// fields are UTC-normalized at creation time, so recomputing the next
// occurrence never consults the creator's (mutable) timezone again.
type Cron struct {
	Minute int
	Hour   int
	Days   WeekdaySet
}

// NewCron validates field ranges and a non-empty weekday set.
func NewCron(minute, hour int, days WeekdaySet) (Cron, error) {
	if minute < 0 || minute > 59 {
		return Cron{}, fmt.Errorf("%w: minute %d out of range", ErrMalformedTrigger, minute)
	}
	if hour < 0 || hour > 23 {
		return Cron{}, fmt.Errorf("%w: hour %d out of range", ErrMalformedTrigger, hour)
	}
	if days.Empty() {
		return Cron{}, fmt.Errorf("%w: empty weekday set", ErrMalformedTrigger)
	}
	return Cron{Minute: minute, Hour: hour, Days: days}, nil
}

func (c Cron) Next(now time.Time) (time.Time, bool) {
	sched, err := cron.ParseStandard(c.Spec())
	if err != nil {
		return time.Time{}, false
	}
	// SpecSchedule evaluates fields in the location of its argument.
	return sched.Next(now.UTC()), true
}

func (c Cron) Recurring() bool { return true }
func (c Cron) Kind() string    { return "cron" }

// Spec renders the standard 5-field cron line, e.g. "30 11 * * 1,2,3,4,5".
func (c Cron) Spec() string {
	return fmt.Sprintf("%d %d * * %s", c.Minute, c.Hour, c.Days.cronList())
}

// NormalizeCron converts a local-time minute/hour/weekday schedule into its
// UTC equivalent using the zone offset in effect at ref. Crossing midnight
// during conversion shifts the whole weekday set by one day.
func NormalizeCron(minute, hour int, days WeekdaySet, loc *time.Location, ref time.Time) (Cron, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, loc)
	utc := local.UTC()

	// local and utc are the same instant; only the calendar date can
	// differ. Compare (year, day of year) so the year boundary shifts
	// the right way too.
	shift := 0
	ly, lyd := local.Year(), local.YearDay()
	uy, uyd := utc.Year(), utc.YearDay()
	switch {
	case uy < ly || (uy == ly && uyd < lyd):
		shift = -1
	case uy > ly || (uy == ly && uyd > lyd):
		shift = 1
	}
	return NewCron(utc.Minute(), utc.Hour(), days.Shift(shift))
}

// ---- persisted form ----

// EncodeTrigger flattens a trigger into the three nullable row fields.
// Empty strings stand for NULL.
func EncodeTrigger(t Trigger) (startTime, recurEvery, cronSpec string) {
	switch v := t.(type) {
	case OneOff:
		return v.At.UTC().Format(time.RFC3339), "", ""
	case Interval:
		return v.At.UTC().Format(time.RFC3339), v.Every.String(), ""
	case Cron:
		return "", "", fmt.Sprintf("%d %d %s", v.Minute, v.Hour, v.Days.cronList())
	default:
		return "", "", ""
	}
}

// DecodeTrigger rebuilds a trigger from its row fields. Rows populating
// none, or more than one, of the variants are rejected as malformed.
func DecodeTrigger(startTime, recurEvery, cronSpec string) (Trigger, error) {
	hasStart := strings.TrimSpace(startTime) != ""
	hasEvery := strings.TrimSpace(recurEvery) != ""
	hasCron := strings.TrimSpace(cronSpec) != ""

	switch {
	case hasCron && !hasStart && !hasEvery:
		return parseCronFields(cronSpec)

	case hasStart && hasEvery && !hasCron:
		at, err := time.Parse(time.RFC3339, startTime)
		if err != nil {
			return nil, fmt.Errorf("%w: start_time: %v", ErrMalformedTrigger, err)
		}
		every, err := time.ParseDuration(recurEvery)
		if err != nil || every <= 0 {
			return nil, fmt.Errorf("%w: recur_every %q", ErrMalformedTrigger, recurEvery)
		}
		return Interval{At: at.UTC(), Every: every}, nil

	case hasStart && !hasEvery && !hasCron:
		at, err := time.Parse(time.RFC3339, startTime)
		if err != nil {
			return nil, fmt.Errorf("%w: start_time: %v", ErrMalformedTrigger, err)
		}
		return OneOff{At: at.UTC()}, nil

	default:
		return nil, fmt.Errorf("%w: want exactly one of start_time, recur_every, cron_spec", ErrMalformedTrigger)
	}
}

func parseCronFields(spec string) (Cron, error) {
	parts := strings.Fields(spec)
	if len(parts) != 3 {
		return Cron{}, fmt.Errorf("%w: cron_spec %q", ErrMalformedTrigger, spec)
	}
	minute, err := strconv.Atoi(parts[0])
	if err != nil {
		return Cron{}, fmt.Errorf("%w: cron_spec %q", ErrMalformedTrigger, spec)
	}
	hour, err := strconv.Atoi(parts[1])
	if err != nil {
		return Cron{}, fmt.Errorf("%w: cron_spec %q", ErrMalformedTrigger, spec)
	}
	days, err := parseCronList(parts[2])
	if err != nil {
		return Cron{}, fmt.Errorf("%w: cron_spec %q", ErrMalformedTrigger, spec)
	}
	return NewCron(minute, hour, days)
}
