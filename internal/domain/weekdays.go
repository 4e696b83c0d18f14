package domain

import (
	"fmt"
	"strings"
	"time"
)

// WeekdaySet is a bitmask over time.Weekday (bit 0 = Sunday).
type WeekdaySet uint8

// WorkWeek is the default set used when a schedule omits weekdays.
const WorkWeek = WeekdaySet(1<<time.Monday | 1<<time.Tuesday | 1<<time.Wednesday |
	1<<time.Thursday | 1<<time.Friday)

func (s WeekdaySet) Has(d time.Weekday) bool { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) Empty() bool             { return s == 0 }

func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }

// Shift rotates the whole set by n days (n in -6..6). Used when a local
// schedule crosses midnight during UTC normalization.
func (s WeekdaySet) Shift(n int) WeekdaySet {
	if n == 0 || s.Empty() {
		return s
	}
	var out WeekdaySet
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = out.With(time.Weekday((int(d) + n + 7) % 7))
		}
	}
	return out
}

// String renders short day names in week order, e.g. "mon,tue,fri".
func (s WeekdaySet) String() string {
	var names []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
	}
	return strings.Join(names, ",")
}

// cronList renders the set as a cron day-of-week list, e.g. "1,2,3,4,5".
func (s WeekdaySet) cronList() string {
	var parts []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			parts = append(parts, fmt.Sprintf("%d", int(d)))
		}
	}
	return strings.Join(parts, ",")
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdaySet parses a weekday range/list expression: "mon-fri",
// "mon,tue,thu", or mixed "mon-wed,fri". An empty expression defaults to
// the five-day work week. Ranges may wrap the week end ("fri-mon").
func ParseWeekdaySet(expr string) (WeekdaySet, error) {
	expr = strings.ToLower(strings.TrimSpace(expr))
	if expr == "" {
		return WorkWeek, nil
	}

	var set WeekdaySet
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, to, ok := strings.Cut(part, "-"); ok {
			a, okA := weekdayNames[strings.TrimSpace(from)]
			b, okB := weekdayNames[strings.TrimSpace(to)]
			if !okA || !okB {
				return 0, newSyntaxError(ErrUnparseableDays,
					fmt.Sprintf("I don't understand the weekday range `%s`.", part), cronExamples)
			}
			for d := a; ; d = (d + 1) % 7 {
				set = set.With(d)
				if d == b {
					break
				}
			}
			continue
		}
		d, ok := weekdayNames[part]
		if !ok {
			return 0, newSyntaxError(ErrUnparseableDays,
				fmt.Sprintf("I don't understand the weekday `%s`.", part), cronExamples)
		}
		set = set.With(d)
	}
	if set.Empty() {
		return 0, newSyntaxError(ErrUnparseableDays, "The weekday list is empty.", cronExamples)
	}
	return set, nil
}

// parseCronList parses the stored numeric form produced by cronList.
func parseCronList(s string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if len(part) != 1 || part[0] < '0' || part[0] > '6' {
			return 0, fmt.Errorf("bad weekday %q", part)
		}
		set = set.With(time.Weekday(part[0] - '0'))
	}
	return set, nil
}
