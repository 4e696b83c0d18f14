package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// nlParser recognizes colloquial expressions ("tuesday at noon", "in 6
// hours"). English rules only; other locales still get absolute formats
// via dateparse and bare durations via parseRelativeDuration.
var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// prefixTokenWindow bounds how many leading tokens are considered when
// looking for a date expression anchored at the start of the message.
const prefixTokenWindow = 8

var tokenPattern = regexp.MustCompile(`\S+`)

// ResolveTime extracts a future instant from free text.
//
// It prefers date expressions anchored at the very start of the input:
// whitespace-delimited prefixes of up to prefixTokenWindow tokens are
// tried longest-first, and the first prefix that parses in its entirety
// wins. If no prefix parses, the whole string is searched for an embedded
// date expression. The consumed substring is returned so the caller can
// treat the remainder as the reminder payload.
//
// The result is UTC with sub-second precision dropped, and must be
// strictly after now; otherwise ErrPastTime is returned.
func ResolveTime(text string, u UserInfo, now time.Time) (time.Time, string, error) {
	loc := u.Location()
	base := now.In(loc)

	var (
		at       time.Time
		consumed string
	)

	tokens := tokenPattern.FindAllStringIndex(text, prefixTokenWindow)
	for i := len(tokens) - 1; i >= 0; i-- {
		prefix := text[:tokens[i][1]]
		if t, ok := parseExact(prefix, base, loc); ok {
			at = t
			consumed = prefix
			break
		}
	}

	if at.IsZero() {
		// Date expression may sit mid-sentence ("make tea in 4 hours").
		r, err := nlParser.Parse(text, base)
		if err == nil && r != nil {
			at = r.Time
			consumed = r.Text
		}
	}

	if at.IsZero() {
		return time.Time{}, "", newSyntaxError(ErrUnparseableTime,
			"Unable to extract a date from the message.", dateExamples)
	}

	at = at.UTC().Truncate(time.Second)

	// Time-of-day expressions like "8pm" resolve against today's date and
	// may land a few hours back; prefer the next occurrence instead of
	// rejecting. Anything further in the past stays an error.
	if !at.After(now) && now.Sub(at) < 24*time.Hour {
		at = at.Add(24 * time.Hour)
	}
	if !at.After(now) {
		return time.Time{}, "", newSyntaxError(ErrPastTime,
			fmt.Sprintf("Sorry, `%s` is in the past and I don't have a time machine (yet...).",
				strings.TrimSpace(consumed)), dateExamples)
	}
	return at, consumed, nil
}

// parseExact reports whether the whole prefix is a single date expression.
func parseExact(prefix string, base time.Time, loc *time.Location) (time.Time, bool) {
	trimmed := strings.TrimSpace(prefix)
	if trimmed == "" {
		return time.Time{}, false
	}

	if d, ok := parseRelativeDuration(trimmed); ok {
		return base.Add(d), true
	}

	if t, err := dateparse.ParseIn(trimmed, loc); err == nil {
		if dateparseUsedWholePrefix(trimmed, t, loc) {
			return t, true
		}
	}

	if r, err := nlParser.Parse(trimmed, base); err == nil && r != nil {
		if r.Index == 0 && strings.TrimSpace(trimmed[len(r.Text):]) == "" {
			return r.Time, true
		}
	}
	return time.Time{}, false
}

// dateparseUsedWholePrefix guards against dateparse's tolerance for
// trailing words after the date it recognized. Dropping the last token
// must fail or move the instant; a token that changes nothing was not
// part of the date expression, so the prefix is too long.
func dateparseUsedWholePrefix(trimmed string, t time.Time, loc *time.Location) bool {
	fields := strings.Fields(trimmed)
	if len(fields) < 2 {
		return true
	}
	head := strings.Join(fields[:len(fields)-1], " ")
	shorter, err := dateparse.ParseIn(head, loc)
	return err != nil || !shorter.Equal(t)
}

// Longest alternatives first so compact forms like "1h30m" tokenize.
var durationTerm = regexp.MustCompile(`^(\d+)\s*(seconds|second|secs|sec|minutes|minute|mins|min|hours|hour|hrs|hr|days|day|weeks|week|wks|wk|s|m|h|d|w)`)

var durationUnits = map[string]time.Duration{
	"s": time.Second, "m": time.Minute, "h": time.Hour,
	"d": 24 * time.Hour, "w": 7 * 24 * time.Hour,
}

// parseRelativeDuration parses shorthand offsets like "6 hours", "4d",
// "2wk", "1h30m" or "1 day 2 hours". An optional leading "in" and
// interstitial "and" are tolerated.
func parseRelativeDuration(s string) (time.Duration, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "in ")

	var total time.Duration
	matched := false
	for s != "" {
		s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "and "))
		m := durationTerm.FindStringSubmatch(s)
		if m == nil {
			break
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, false
		}
		unit, ok := durationUnits[m[2][:1]]
		if !ok {
			return 0, false
		}
		total += time.Duration(n) * unit
		matched = true
		s = s[len(m[0]):]
	}
	if !matched || strings.TrimSpace(s) != "" || total <= 0 {
		return 0, false
	}
	return total, true
}

// ParseRecurEvery parses the period of an interval-recurring reminder,
// e.g. "1 day", "12h", "2 weeks".
func ParseRecurEvery(s string) (time.Duration, error) {
	d, ok := parseRelativeDuration(s)
	if !ok {
		return 0, newSyntaxError(ErrUnparseableTime,
			fmt.Sprintf("I can't read `%s` as a repeat period.", strings.TrimSpace(s)), dateExamples)
	}
	if d < time.Minute {
		return 0, newSyntaxError(ErrUnparseableTime,
			"Repeat periods under a minute are not allowed.", dateExamples)
	}
	return d, nil
}

// ParseHourMinute parses the structured "HH:MM" form of the cron command.
func ParseHourMinute(s string) (hour, minute int, err error) {
	left, right, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, 0, newSyntaxError(ErrUnparseableTime,
			fmt.Sprintf("`%s` doesn't look like a time, expected `HH:MM`.", s), "")
	}
	hour, err = strconv.Atoi(left)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, newSyntaxError(ErrUnparseableTime,
			fmt.Sprintf("Invalid hour in `%s`.", s), "")
	}
	minute, err = strconv.Atoi(right)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, newSyntaxError(ErrUnparseableTime,
			fmt.Sprintf("Invalid minute in `%s`.", s), "")
	}
	return hour, minute, nil
}
