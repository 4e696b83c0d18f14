package domain

import (
	"strings"
	"time"
)

// UserInfo is the per-user settings snapshot attached to parsing,
// formatting and menu queries. Values are always valid: the settings
// cache substitutes defaults for anything invalid or missing at load
// time, so consumers never see an empty or bogus field.
type UserInfo struct {
	Locale     string // menu language and date-order hint, e.g. "en", "de"
	Timezone   string // IANA zone name
	Price      string // price category: int, ext, stud or off
	Facilities string // comma-separated canteen name filter
}

// Location resolves the timezone, falling back to UTC. The fallback is
// defensive only; validated UserInfo always carries a loadable zone.
func (u UserInfo) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// supported menu languages; locale variants like "de-CH" match by base.
var knownLocales = map[string]bool{"en": true, "de": true}

func ValidLocale(locale string) bool {
	locale = strings.ToLower(strings.TrimSpace(locale))
	base, _, _ := strings.Cut(locale, "-")
	return knownLocales[base]
}

func ValidTimezone(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

func ValidPrice(price string) bool {
	switch strings.ToLower(strings.TrimSpace(price)) {
	case "int", "ext", "stud", "off":
		return true
	}
	return false
}
