package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"mensabot/internal/bot"
	"mensabot/internal/config"
	"mensabot/internal/domain"
	"mensabot/internal/menus"
	"mensabot/internal/reminder"
	"mensabot/internal/store"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

// App wires config, storage, the reminder engine, the command bot and the
// Matrix transport into one lifecycle.
type App struct {
	cfgm *config.ConfigManager

	log  logx.Logger
	logs *logx.Service

	st     store.Store
	users  *store.UserCache
	engine *reminder.Reminders
	bot    *bot.Bot
	matrix *transport.Matrix
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	users := store.NewUserCache(st, mapDefaults(cfg), logSvc.Logger().With(logx.String("comp", "users")))

	menuTimeout, err := config.ParseDurationField("menus.timeout", cfg.Menus.Timeout)
	if err != nil {
		return nil, err
	}
	source := menus.NewClient(menus.Config{
		FacilitiesURL: cfg.Menus.FacilitiesURL,
		MenusURL:      cfg.Menus.MenusURL,
		Timeout:       menuTimeout,
	}, logSvc.Logger().With(logx.String("comp", "menus")))

	mx, err := transport.NewMatrix(transport.Config{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		SendRate:    cfg.Matrix.SendRate,
		SendBurst:   cfg.Matrix.SendBurst,
	}, logSvc.Logger().With(logx.String("comp", "matrix")))
	if err != nil {
		return nil, err
	}

	engine := reminder.NewReminders(st, nil, nil, logSvc.Logger().With(logx.String("comp", "reminder")))

	botCfg, err := mapBotConfig(cfg)
	if err != nil {
		return nil, err
	}
	b := bot.New(botCfg, engine, users, source, mx, logSvc.Logger().With(logx.String("comp", "bot")))
	engine.SetNotifier(b)
	mx.SetHandler(b)

	return &App{
		cfgm:   cfgm,
		log:    log,
		logs:   logSvc,
		st:     st,
		users:  users,
		engine: engine,
		bot:    b,
		matrix: mx,
	}, nil
}

// Run blocks until ctx is canceled or the sync loop fails.
func (a *App) Run(ctx context.Context) error {
	defer a.logs.Close()
	defer func() {
		if err := a.st.Close(); err != nil {
			a.log.Warn("store close failed", logx.Err(err))
		}
	}()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	if err := a.engine.Load(ctx); err != nil {
		return fmt.Errorf("load reminders: %w", err)
	}

	sub := a.cfgm.Subscribe(8)
	go a.reloadLoop(ctx, sub)
	go func() {
		if err := a.cfgm.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	defer func() { _, _ = daemon.SdNotify(false, daemon.SdNotifyStopping) }()

	a.log.Info("bot started",
		logx.String("user", string(a.matrix.UserID())),
		logx.Int("reminders", a.engine.Len()),
	)
	err := a.matrix.Run(ctx)
	a.log.Info("bot stopped")
	return err
}

// reloadLoop applies hot-reloadable sections (logging, per-user defaults)
// and warns when a change needs a restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})
			a.users.SetDefaults(mapDefaults(newCfg))

			for _, s := range sections {
				switch s {
				case "matrix", "storage", "bot":
					a.log.Warn("config section changed; restart required for changes to take effect",
						logx.String("section", s))
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

func mapDefaults(cfg *config.Config) store.Defaults {
	return store.Defaults{
		Locale:     cfg.Bot.Defaults.Locale,
		Timezone:   cfg.Bot.Defaults.Timezone,
		Price:      cfg.Bot.Defaults.Price,
		Facilities: cfg.Bot.Defaults.Facilities,
	}
}

func mapBotConfig(cfg *config.Config) (bot.Config, error) {
	window, err := config.ParseDurationField("bot.rate_limit_window", cfg.Bot.RateLimitWindow)
	if err != nil {
		return bot.Config{}, err
	}
	return bot.Config{
		BaseCommands:      cfg.Bot.BaseCommands,
		HungerCommands:    cfg.Bot.HungerCommands,
		AdminPowerLevel:   cfg.Bot.AdminPowerLevel,
		RateLimit:         cfg.Bot.RateLimit,
		RateLimitWindow:   window,
		TimeFormat:        cfg.Bot.TimeFormat,
		DefaultFacilities: cfg.Bot.Defaults.Facilities,
	}, nil
}

func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Matrix.Homeserver) == "" ||
		strings.TrimSpace(cfg.Matrix.UserID) == "" ||
		strings.TrimSpace(cfg.Matrix.AccessToken) == "" {
		return fmt.Errorf("matrix.homeserver, matrix.user_id and matrix.access_token are required")
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}
	if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("menus.timeout", cfg.Menus.Timeout); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("bot.rate_limit_window", cfg.Bot.RateLimitWindow); err != nil {
		return err
	}
	if cfg.Bot.AdminPowerLevel < 0 {
		return fmt.Errorf("bot.admin_power_level must be >= 0")
	}
	if cfg.Bot.RateLimit < 0 {
		return fmt.Errorf("bot.rate_limit must be >= 0")
	}
	if tf := strings.TrimSpace(cfg.Bot.TimeFormat); tf != "" {
		ref := time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)
		if _, err := time.Parse(tf, ref.Format(tf)); err != nil {
			return fmt.Errorf("bot.time_format: not a valid reference layout %q", tf)
		}
	}
	if tz := strings.TrimSpace(cfg.Bot.Defaults.Timezone); tz != "" && !domain.ValidTimezone(tz) {
		return fmt.Errorf("bot.defaults.timezone: invalid %q", tz)
	}
	if loc := strings.TrimSpace(cfg.Bot.Defaults.Locale); loc != "" && !domain.ValidLocale(loc) {
		return fmt.Errorf("bot.defaults.locale: invalid %q", loc)
	}
	if p := strings.TrimSpace(cfg.Bot.Defaults.Price); p != "" && !domain.ValidPrice(p) {
		return fmt.Errorf("bot.defaults.price: invalid %q (use int, ext or stud)", p)
	}
	return nil
}
