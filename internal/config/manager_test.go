package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
matrix:
  homeserver: https://matrix.example.org
  user_id: "@lunchbot:example.org"
  access_token: syt_secret
  send_rate: 2
  send_burst: 4
logging:
  level: debug
  console: true
  file:
    enabled: true
    path: ./bot.log
storage:
  path: ./mensabot.db
  busy_timeout: 5s
menus:
  timeout: 10s
bot:
  base_commands: [lunch, mensa]
  hunger_commands: [hunger, hungry]
  admin_power_level: 50
  rate_limit: 5
  rate_limit_window: 1h
  time_format: "3:04pm MST on Monday, January 2 2006"
  defaults:
    locale: en
    timezone: Europe/Zurich
    price: int
    facilities: Clausiusbar, Polymensa
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Parse()
	require.NoError(t, err)

	require.Equal(t, "https://matrix.example.org", cfg.Matrix.Homeserver)
	require.Equal(t, "@lunchbot:example.org", cfg.Matrix.UserID)
	require.Equal(t, "syt_secret", cfg.Matrix.AccessToken)
	require.Equal(t, 2.0, cfg.Matrix.SendRate)

	require.Equal(t, "debug", cfg.Logging.Level)
	require.True(t, cfg.Logging.File.Enabled)

	require.Equal(t, "./mensabot.db", cfg.Storage.Path)
	require.Equal(t, "5s", cfg.Storage.BusyTimeout)

	require.Equal(t, []string{"lunch", "mensa"}, cfg.Bot.BaseCommands)
	require.Equal(t, []string{"hunger", "hungry"}, cfg.Bot.HungerCommands)
	require.Equal(t, 50, cfg.Bot.AdminPowerLevel)
	require.Equal(t, "1h", cfg.Bot.RateLimitWindow)
	require.Equal(t, "Europe/Zurich", cfg.Bot.Defaults.Timezone)
	require.Equal(t, "Clausiusbar, Polymensa", cfg.Bot.Defaults.Facilities)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.json", `{
		"matrix": {"homeserver": "https://hs", "user_id": "@b:hs", "access_token": "tok"},
		"logging": {"level": "info", "console": true, "file": {"enabled": false, "path": ""}},
		"storage": {"path": "./db"},
		"bot": {"base_commands": ["lunch"], "defaults": {"locale": "en", "timezone": "UTC", "price": "int"}}
	}`))
	cfg, err := m.Parse()
	require.NoError(t, err)
	require.Equal(t, "@b:hs", cfg.Matrix.UserID)
	require.Equal(t, "UTC", cfg.Bot.Defaults.Timezone)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML+"\nextra_section:\n  foo: 1\n"))
	_, err := m.Parse()
	require.Error(t, err)
	require.Contains(t, err.Error(), "extra_section")
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.json", `{"matrix": {"homeserver": "h", "user_id": "u", "access_token": "t"}} {"again": true}`))
	_, err := m.Parse()
	require.Error(t, err)
}

func TestLoadCommitsHash(t *testing.T) {
	t.Parallel()
	m := NewConfigManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)
	require.Same(t, cfg, m.Get())

	// Same content hashes the same, so a no-op rewrite is skippable.
	require.Equal(t, hashConfig(cfg), m.lastHash)
	require.NotZero(t, m.lastHash)

	other := *cfg
	other.Logging.Level = "warn"
	require.NotEqual(t, hashConfig(cfg), hashConfig(&other))
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", " 90s ")
	require.NoError(t, err)
	require.Equal(t, "1m30s", d.String())

	d, err = ParseDurationField("x", "")
	require.NoError(t, err)
	require.Zero(t, d)

	_, err = ParseDurationField("x", "-1s")
	require.Error(t, err)
	_, err = ParseDurationField("x", "soon")
	require.Error(t, err)
}

func TestSummarizeConfigChangeNeverLogsToken(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{}
	newCfg := &Config{}
	newCfg.Matrix.Homeserver = "https://hs"
	newCfg.Matrix.AccessToken = "syt_topsecret"
	newCfg.Logging.Level = "info"
	newCfg.Bot.BaseCommands = []string{"lunch"}

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	require.Equal(t, []string{"bot", "logging", "matrix"}, sections)

	// Render the attrs the way a log sink would and make sure the secret
	// never appears.
	var buf bytes.Buffer
	zl := zerolog.New(&buf)
	ev := zl.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Send()
	require.NotContains(t, buf.String(), "syt_topsecret")
	require.Contains(t, buf.String(), `"matrix.token_set":true`)
}
