package config

type Config struct {
	Matrix  MatrixConfig  `json:"matrix"`
	Logging LoggingConfig `json:"logging"`

	// Storage controls the sqlite persistence layer.
	Storage StorageConfig `json:"storage"`

	// Menus controls the ETH canteen API client.
	Menus MenusConfig `json:"menus,omitempty"`

	Bot BotConfig `json:"bot"`
}

type MatrixConfig struct {
	Homeserver  string `json:"homeserver"`
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`

	// SendRate / SendBurst throttle outbound events (messages, reactions,
	// redactions). Zero values fall back to 2 events/s, burst 4.
	SendRate  float64 `json:"send_rate,omitempty"`
	SendBurst int     `json:"send_burst,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MenusConfig overrides the cookpit API endpoints, mostly for tests.
// Omitted fields fall back to the public ETH endpoints.
type MenusConfig struct {
	FacilitiesURL string `json:"facilities_url,omitempty"`
	MenusURL      string `json:"menus_url,omitempty"`
	// Timeout is a Go duration string for a single API request.
	Timeout string `json:"timeout,omitempty"`
}

// BotConfig controls the command surface and reminder policy.
type BotConfig struct {
	// BaseCommands are the commands the bot answers to, without the "!"
	// prefix (e.g. ["lunch", "mensa"]). HungerCommands are shorthand
	// aliases that map straight to the menu subcommand.
	BaseCommands   []string `json:"base_commands"`
	HungerCommands []string `json:"hunger_commands,omitempty"`

	// AdminPowerLevel gates remind/cancel for non-creators. 0 keeps the
	// default of 50 (Matrix moderator).
	AdminPowerLevel int `json:"admin_power_level,omitempty"`

	// RateLimit is the max reminder creations per user inside
	// RateLimitWindow (a Go duration string). Zero values fall back to
	// 5 per "1h".
	RateLimit       int    `json:"rate_limit,omitempty"`
	RateLimitWindow string `json:"rate_limit_window,omitempty"`

	// TimeFormat is a Go reference-time layout used when describing
	// schedules to users.
	TimeFormat string `json:"time_format,omitempty"`

	Defaults DefaultsConfig `json:"defaults"`
}

// DefaultsConfig is substituted for missing or invalid per-user settings.
type DefaultsConfig struct {
	Locale     string `json:"locale"`
	Timezone   string `json:"timezone"`
	Price      string `json:"price"`
	Facilities string `json:"facilities,omitempty"`
}
