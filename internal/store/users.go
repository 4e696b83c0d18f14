package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/pkg/logx"
)

// Defaults are the fallback user settings, taken from the bot config.
// They are substituted field by field whenever a stored value is missing
// or fails validation.
type Defaults struct {
	Locale     string
	Timezone   string
	Price      string
	Facilities string
}

// UserCache fronts the user_settings table with an in-memory map and
// carries the per-user rate limit windows. Settings rarely change, so
// rows are loaded once and then served from memory. Rate limit state is
// kept apart from the settings cache: consuming the window must never
// populate a settings entry the store was not asked about.
type UserCache struct {
	store Store
	log   logx.Logger

	mu       sync.RWMutex
	users    map[id.UserID]domain.UserInfo
	windows  map[id.UserID]*domain.CallWindow
	defaults Defaults
}

func NewUserCache(store Store, defaults Defaults, log logx.Logger) *UserCache {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &UserCache{
		store:    store,
		log:      log,
		users:    make(map[id.UserID]domain.UserInfo),
		windows:  make(map[id.UserID]*domain.CallWindow),
		defaults: defaults,
	}
}

// SetDefaults swaps the fallback settings, typically after a config
// reload. Cached settings are dropped so the new defaults take effect on
// the next lookup; rate limit windows survive the reload.
func (c *UserCache) SetDefaults(defaults Defaults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaults = defaults
	c.users = make(map[id.UserID]domain.UserInfo)
}

// Get returns the effective settings for a user. Invalid or missing
// stored fields are replaced with defaults, never returned as-is.
func (c *UserCache) Get(ctx context.Context, user id.UserID) (domain.UserInfo, error) {
	c.mu.RLock()
	info, ok := c.users[user]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	row, found, err := c.store.GetUserSettings(ctx, user)
	if err != nil {
		return domain.UserInfo{}, err
	}
	if !found {
		row = UserSettingsRow{UserID: user}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.users[user]; ok {
		return info, nil
	}
	info = c.sanitizeLocked(user, row)
	c.users[user] = info
	return info, nil
}

// Set validates and persists one setting, then updates the cache.
func (c *UserCache) Set(ctx context.Context, user id.UserID, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "timezone":
		if !domain.ValidTimezone(value) {
			return domain.ErrBadTimezone
		}
	case "locale":
		if !domain.ValidLocale(value) {
			return domain.ErrBadLocale
		}
		value = strings.ToLower(value)
	case "price":
		if !domain.ValidPrice(value) {
			return domain.ErrBadPrice
		}
		value = strings.ToLower(value)
	case "facilities":
		// free-form canteen filter, stored as given
	default:
		return domain.ErrBadSetting
	}

	if err := c.store.SetUserSetting(ctx, user, key, value); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.users[user]
	if !ok {
		// Not cached yet; next Get reloads from the store.
		return nil
	}
	switch key {
	case "timezone":
		info.Timezone = value
	case "locale":
		info.Locale = value
	case "price":
		info.Price = value
	case "facilities":
		info.Facilities = value
	}
	c.users[user] = info
	return nil
}

// CheckRateLimit records one call attempt for the user and reports
// whether it may proceed. The count of calls inside the window is
// returned for logging. Only the window is touched; the settings cache
// stays cold until Get loads the stored row.
func (c *UserCache) CheckRateLimit(user id.UserID, now time.Time, maxCalls int, window time.Duration) (int, bool) {
	c.mu.Lock()
	w, ok := c.windows[user]
	if !ok {
		w = &domain.CallWindow{}
		c.windows[user] = w
	}
	c.mu.Unlock()
	return w.CheckAndRecord(now, maxCalls, window)
}

// sanitizeLocked substitutes defaults for invalid fields. Callers hold
// c.mu; defaults are read directly.
func (c *UserCache) sanitizeLocked(user id.UserID, row UserSettingsRow) domain.UserInfo {
	info := domain.UserInfo{
		Locale:     strings.ToLower(strings.TrimSpace(row.Locale)),
		Timezone:   strings.TrimSpace(row.Timezone),
		Price:      strings.ToLower(strings.TrimSpace(row.Price)),
		Facilities: strings.TrimSpace(row.Facilities),
	}
	if !domain.ValidLocale(info.Locale) {
		if info.Locale != "" {
			c.log.Warn("invalid stored locale, using default",
				logx.String("user", string(user)), logx.String("locale", info.Locale))
		}
		info.Locale = c.defaults.Locale
	}
	if !domain.ValidTimezone(info.Timezone) {
		if info.Timezone != "" {
			c.log.Warn("invalid stored timezone, using default",
				logx.String("user", string(user)), logx.String("timezone", info.Timezone))
		}
		info.Timezone = c.defaults.Timezone
	}
	if !domain.ValidPrice(info.Price) {
		if info.Price != "" {
			c.log.Warn("invalid stored price category, using default",
				logx.String("user", string(user)), logx.String("price", info.Price))
		}
		info.Price = c.defaults.Price
	}
	if info.Facilities == "" {
		info.Facilities = c.defaults.Facilities
	}
	return info
}
