package config

import (
	"reflect"
	"sort"
	"strings"

	"mensabot/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections plus
// safe structured attrs for logging (never includes the access token).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Matrix (never log access_token)
	if strings.TrimSpace(oldCfg.Matrix.Homeserver) != strings.TrimSpace(newCfg.Matrix.Homeserver) ||
		strings.TrimSpace(oldCfg.Matrix.UserID) != strings.TrimSpace(newCfg.Matrix.UserID) ||
		oldCfg.Matrix.SendRate != newCfg.Matrix.SendRate ||
		oldCfg.Matrix.SendBurst != newCfg.Matrix.SendBurst ||
		(strings.TrimSpace(oldCfg.Matrix.AccessToken) != "") != (strings.TrimSpace(newCfg.Matrix.AccessToken) != "") {
		changed = append(changed, "matrix")
		attrs = append(attrs,
			logx.String("matrix.homeserver", strings.TrimSpace(newCfg.Matrix.Homeserver)),
			logx.String("matrix.user_id", strings.TrimSpace(newCfg.Matrix.UserID)),
			logx.Bool("matrix.token_set", strings.TrimSpace(newCfg.Matrix.AccessToken) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Storage
	if strings.TrimSpace(oldCfg.Storage.Path) != strings.TrimSpace(newCfg.Storage.Path) ||
		strings.TrimSpace(oldCfg.Storage.BusyTimeout) != strings.TrimSpace(newCfg.Storage.BusyTimeout) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Menus
	if oldCfg.Menus != newCfg.Menus {
		changed = append(changed, "menus")
		attrs = append(attrs,
			logx.Bool("menus.facilities_url_set", strings.TrimSpace(newCfg.Menus.FacilitiesURL) != ""),
			logx.Bool("menus.menus_url_set", strings.TrimSpace(newCfg.Menus.MenusURL) != ""),
			logx.String("menus.timeout", strings.TrimSpace(newCfg.Menus.Timeout)),
		)
	}

	// Bot (command surface + reminder policy + per-user defaults)
	if !reflect.DeepEqual(oldCfg.Bot, newCfg.Bot) {
		changed = append(changed, "bot")
		attrs = append(attrs,
			logx.Int("bot.base_command_count", len(newCfg.Bot.BaseCommands)),
			logx.Int("bot.hunger_command_count", len(newCfg.Bot.HungerCommands)),
			logx.Int("bot.admin_power_level", newCfg.Bot.AdminPowerLevel),
			logx.Int("bot.rate_limit", newCfg.Bot.RateLimit),
			logx.String("bot.rate_limit_window", strings.TrimSpace(newCfg.Bot.RateLimitWindow)),
			logx.String("bot.defaults.locale", newCfg.Bot.Defaults.Locale),
			logx.String("bot.defaults.timezone", newCfg.Bot.Defaults.Timezone),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
