package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimeFormat is the absolute-time layout used when the config does
// not override it, e.g. "1:05pm UTC on Monday, January 2 2006".
const DefaultTimeFormat = "3:04pm MST on Monday, January 2 2006"

// FormatTime renders an instant for humans. Instants within a week of now
// are rendered relative ("in 2 hours and 15 minutes", "3 days and 4 hours
// ago") using the two most significant units; anything further out is
// formatted absolutely in the user's timezone with the given layout.
func FormatTime(t time.Time, u UserInfo, layout string, now time.Time) string {
	if layout == "" {
		layout = DefaultTimeFormat
	}
	now = now.Truncate(time.Second)
	t = t.Truncate(time.Second)

	delta := t.Sub(now)
	past := delta < 0
	if past {
		delta = -delta
	}

	if delta > 7*24*time.Hour {
		return t.In(u.Location()).Format(layout)
	}

	parts := make([]string, 0, 4)
	if days := int(delta / (24 * time.Hour)); days > 0 {
		parts = append(parts, pluralize(days, "day"))
		delta -= time.Duration(days) * 24 * time.Hour
	}
	if hours := int(delta / time.Hour); hours > 0 {
		parts = append(parts, pluralize(hours, "hour"))
		delta -= time.Duration(hours) * time.Hour
	}
	if minutes := int(delta / time.Minute); minutes > 0 {
		parts = append(parts, pluralize(minutes, "minute"))
		delta -= time.Duration(minutes) * time.Minute
	}
	if seconds := int(delta / time.Second); seconds > 0 {
		parts = append(parts, pluralize(seconds, "second"))
	}
	if len(parts) == 0 {
		parts = append(parts, "0 seconds")
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}

	s := strings.Join(parts, " and ")
	if past {
		return s + " ago"
	}
	return "in " + s
}

func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// FormatEvery renders an interval period the way users typed it,
// e.g. "every 1 day" or "every 2 hours".
func FormatEvery(d time.Duration) string {
	type unit struct {
		d    time.Duration
		name string
	}
	units := []unit{
		{7 * 24 * time.Hour, "week"},
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	for _, u := range units {
		if d >= u.d && d%u.d == 0 {
			return "every " + pluralize(int(d/u.d), u.name)
		}
	}
	return "every " + d.String()
}
