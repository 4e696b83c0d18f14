// Package bot wires the chat command surface to the reminder engine,
// the menu client and the user settings cache. It implements
// transport.Handler for incoming traffic and reminder.Notifier for
// fired reminders.
package bot

import (
	"context"
	"strings"
	"time"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/internal/menus"
	"mensabot/internal/reminder"
	"mensabot/internal/store"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

// MenuSource is the slice of the menu client the bot needs.
type MenuSource interface {
	Menus(ctx context.Context, info domain.UserInfo, filter string, now time.Time) (menus.Menus, error)
	Facilities(ctx context.Context, lang string) ([]menus.Facility, error)
}

// Config holds the command-surface settings.
type Config struct {
	// Command names that open the subcommand tree, without the "!"
	// prefix. The first entry is canonical for help texts.
	BaseCommands []string
	// Shortcut commands that show the menu directly.
	HungerCommands []string

	// Room power level required to create or cancel reminders.
	AdminPowerLevel int

	// Reminder creations allowed per user inside the window.
	RateLimit       int
	RateLimitWindow time.Duration

	// Layout for absolute times in replies, time.Format syntax.
	TimeFormat string

	// Shown in help as the default canteen selection.
	DefaultFacilities string
}

func (c *Config) normalize() {
	if len(c.BaseCommands) == 0 {
		c.BaseCommands = []string{"lunch"}
	}
	if c.AdminPowerLevel == 0 {
		c.AdminPowerLevel = 50
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 5
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = time.Hour
	}
	if c.TimeFormat == "" {
		c.TimeFormat = domain.DefaultTimeFormat
	}
}

// Bot routes commands and reactions. All handler callbacks spawn a
// goroutine per event; the sync loop never blocks on storage or HTTP.
type Bot struct {
	cfg    Config
	engine *reminder.Reminders
	users  *store.UserCache
	menus  MenuSource
	sender transport.Sender
	log    logx.Logger
	clock  func() time.Time
}

func New(cfg Config, engine *reminder.Reminders, users *store.UserCache, source MenuSource, sender transport.Sender, log logx.Logger) *Bot {
	cfg.normalize()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		cfg:    cfg,
		engine: engine,
		users:  users,
		menus:  source,
		sender: sender,
		log:    log,
		clock:  time.Now,
	}
}

func (b *Bot) baseCommand() string { return b.cfg.BaseCommands[0] }

// OnMessage dispatches chat commands.
func (b *Bot) OnMessage(ctx context.Context, msg transport.Message) {
	name, args, ok := b.matchCommand(msg.Body)
	if !ok {
		return
	}
	go func() {
		if err := b.runCommand(context.WithoutCancel(ctx), msg, name, args); err != nil {
			b.log.Error("command failed",
				logx.String("command", name),
				logx.String("sender", string(msg.Sender)),
				logx.Err(err))
		}
	}()
}

// matchCommand strips the "!" prefix and resolves base/hunger aliases.
// Hunger aliases rewrite to the menu subcommand.
func (b *Bot) matchCommand(body string) (name, args string, ok bool) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "!") {
		return "", "", false
	}
	word, rest, _ := strings.Cut(body[1:], " ")
	word = strings.ToLower(word)
	rest = strings.TrimSpace(rest)

	for _, c := range b.cfg.HungerCommands {
		if word == c {
			return "menu", rest, true
		}
	}
	for _, c := range b.cfg.BaseCommands {
		if word == c {
			sub, subArgs, _ := strings.Cut(rest, " ")
			return strings.ToLower(sub), strings.TrimSpace(subArgs), true
		}
	}
	return "", "", false
}

// OnReaction subscribes the reacting user when they 👍 a reminder's
// command message or its confirmation prompt.
func (b *Bot) OnReaction(ctx context.Context, r transport.Reaction) {
	if !strings.HasPrefix(r.Key, "👍") {
		return
	}
	rem, ok := b.engine.Find(r.Target)
	if !ok {
		return
	}
	go func() {
		ctx := context.WithoutCancel(ctx)
		if err := b.engine.AddSubscriber(ctx, rem, r.Sender, r.EventID); err != nil {
			b.log.Error("failed to add subscriber",
				logx.String("reminder", string(rem.EventID)), logx.Err(err))
		}
	}()
}

// OnRedaction unsubscribes whoever's reaction was redacted.
func (b *Bot) OnRedaction(ctx context.Context, roomID id.RoomID, redacted id.EventID) {
	go func() {
		ctx := context.WithoutCancel(ctx)
		if err := b.engine.RemoveSubscriber(ctx, redacted); err != nil {
			b.log.Error("failed to remove subscriber",
				logx.String("event", string(redacted)), logx.Err(err))
		}
	}()
}

// OnTombstone follows a room upgrade, carrying reminders over to the
// replacement room.
func (b *Bot) OnTombstone(ctx context.Context, oldRoom, newRoom id.RoomID) {
	go func() {
		ctx := context.WithoutCancel(ctx)
		if err := b.engine.RewriteRoom(ctx, oldRoom, newRoom); err != nil {
			b.log.Error("failed to rewrite room id",
				logx.String("old", string(oldRoom)), logx.Err(err))
		}
	}()
}

func (b *Bot) reply(ctx context.Context, roomID id.RoomID, replyTo id.EventID, markdown string) {
	_, err := b.sender.SendMarkdown(ctx, roomID, markdown, transport.SendOpts{ReplyTo: replyTo})
	if err != nil {
		b.log.Error("failed to send reply", logx.String("room", string(roomID)), logx.Err(err))
	}
}

func (b *Bot) react(ctx context.Context, roomID id.RoomID, target id.EventID, key string) {
	if _, err := b.sender.React(ctx, roomID, target, key); err != nil {
		b.log.Error("failed to react", logx.String("room", string(roomID)), logx.Err(err))
	}
}

func (b *Bot) userInfo(ctx context.Context, user id.UserID) domain.UserInfo {
	info, err := b.users.Get(ctx, user)
	if err != nil {
		b.log.Error("failed to load user settings",
			logx.String("user", string(user)), logx.Err(err))
		return domain.UserInfo{Locale: "en", Timezone: "UTC", Price: "int"}
	}
	return info
}

func (b *Bot) hasPower(ctx context.Context, roomID id.RoomID, user id.UserID) bool {
	level, err := b.sender.PowerLevel(ctx, roomID, user)
	if err != nil {
		b.log.Error("failed to query power level",
			logx.String("room", string(roomID)), logx.Err(err))
		return false
	}
	return level >= b.cfg.AdminPowerLevel
}
