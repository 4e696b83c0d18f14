package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"mensabot/internal/domain"
	"mensabot/internal/menus"
	"mensabot/internal/reminder"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

func (b *Bot) runCommand(ctx context.Context, msg transport.Message, name, args string) error {
	switch name {
	case "", "help":
		b.reply(ctx, msg.RoomID, msg.EventID, b.helpMessage())
	case "menu", "menus", "show":
		return b.cmdMenu(ctx, msg, args)
	case "canteen", "canteens", "mensa":
		return b.cmdCanteens(ctx, msg)
	case "config", "conf":
		return b.cmdConfig(ctx, msg, args)
	case "remind", "reminder":
		return b.cmdRemind(ctx, msg, args)
	case "cancel":
		return b.cmdCancel(ctx, msg)
	default:
		b.reply(ctx, msg.RoomID, msg.EventID,
			fmt.Sprintf("Unknown subcommand `%s`. Type `!%s help` for help.", name, b.baseCommand()))
	}
	return nil
}

func (b *Bot) cmdMenu(ctx context.Context, msg transport.Message, canteens string) error {
	info := b.userInfo(ctx, msg.Sender)
	m, err := b.menus.Menus(ctx, info, canteens, b.clock())
	if err != nil {
		b.reply(ctx, msg.RoomID, msg.EventID, "Fetching the menus failed, try again later.")
		return err
	}
	md := menus.MarkdownMenus(m)
	if md == "" {
		md = "No results"
	}
	b.reply(ctx, msg.RoomID, "", md)
	return nil
}

func (b *Bot) cmdCanteens(ctx context.Context, msg transport.Message) error {
	info := b.userInfo(ctx, msg.Sender)
	facilities, err := b.menus.Facilities(ctx, info.Locale)
	if err != nil {
		b.reply(ctx, msg.RoomID, msg.EventID, "Fetching the canteen list failed, try again later.")
		return err
	}
	md := menus.MarkdownFacilities(facilities)
	if md == "" {
		md = "No results"
	}
	b.reply(ctx, msg.RoomID, "", md)
	return nil
}

func (b *Bot) cmdConfig(ctx context.Context, msg transport.Message, args string) error {
	setting, value, _ := strings.Cut(args, " ")
	setting = strings.ToLower(strings.TrimSpace(setting))
	value = strings.TrimSpace(value)
	info := b.userInfo(ctx, msg.Sender)

	var key string
	switch setting {
	case "":
		b.reply(ctx, msg.RoomID, msg.EventID, b.configHelp())
		return nil
	case "language", "lang":
		if value == "" {
			b.reply(ctx, msg.RoomID, msg.EventID, fmt.Sprintf("Menu language is `%s`", info.Locale))
			return nil
		}
		key = "locale"
	case "timezone", "tz":
		if value == "" {
			b.reply(ctx, msg.RoomID, msg.EventID, fmt.Sprintf("Timezone is `%s`", info.Timezone))
			return nil
		}
		key = "timezone"
	case "canteen", "canteens", "mensa":
		if value == "" {
			b.reply(ctx, msg.RoomID, msg.EventID, fmt.Sprintf("Canteen filter is: `%s`", info.Facilities))
			return nil
		}
		key = "facilities"
	case "price":
		if value == "" {
			off := ""
			if info.Price == "off" {
				off = " (prices not shown)"
			}
			b.reply(ctx, msg.RoomID, msg.EventID, fmt.Sprintf("Price category is: `%s`%s", info.Price, off))
			return nil
		}
		key = "price"
	default:
		b.reply(ctx, msg.RoomID, msg.EventID, b.configHelp())
		return nil
	}

	if err := b.users.Set(ctx, msg.Sender, key, value); err != nil {
		b.reply(ctx, msg.RoomID, msg.EventID, err.Error())
		return nil
	}
	b.react(ctx, msg.RoomID, msg.EventID, "👍")
	return nil
}

var clockArg = regexp.MustCompile(`^[0-9]{1,2}:[0-9]{2}$`)

// cmdRemind creates a reminder. Three forms:
//
//	remind HH:MM [days] [canteens]   cron, weekdays default mon-fri
//	remind every <period> <when...>  interval anchored at the resolved time
//	remind <when...> [canteens]      one-off at the resolved time
func (b *Bot) cmdRemind(ctx context.Context, msg transport.Message, args string) error {
	if !b.hasPower(ctx, msg.RoomID, msg.Sender) {
		b.reply(ctx, msg.RoomID, msg.EventID,
			fmt.Sprintf("Power level of %d is required", b.cfg.AdminPowerLevel))
		return nil
	}
	if args == "" {
		b.reply(ctx, msg.RoomID, msg.EventID,
			fmt.Sprintf("Usage: `!%s remind <hh:mm> [days] [canteens]`", b.baseCommand()))
		return nil
	}

	now := b.clock()
	if count, ok := b.users.CheckRateLimit(msg.Sender, now, b.cfg.RateLimit, b.cfg.RateLimitWindow); !ok {
		b.log.Debug("reminder creation rate limited",
			logx.String("user", string(msg.Sender)), logx.Int("count", count))
		b.reply(ctx, msg.RoomID, msg.EventID,
			fmt.Sprintf("You've reached the rate limit (%d per %s). Try again later.",
				b.cfg.RateLimit, b.cfg.RateLimitWindow))
		return nil
	}

	info := b.userInfo(ctx, msg.Sender)
	trigger, message, err := b.parseTrigger(args, info, now)
	if err != nil {
		var syntax *domain.SyntaxError
		if errors.As(err, &syntax) {
			b.reply(ctx, msg.RoomID, msg.EventID, syntax.UserMessage())
			return nil
		}
		b.reply(ctx, msg.RoomID, msg.EventID, err.Error())
		return nil
	}

	rem, err := b.engine.Create(ctx, reminder.CreateRequest{
		EventID: msg.EventID,
		RoomID:  msg.RoomID,
		Message: message,
		ReplyTo: msg.ReplyTo,
		Creator: msg.Sender,
		Trigger: trigger,
	})
	if err != nil {
		if errors.Is(err, reminder.ErrAlreadyScheduled) || errors.Is(err, domain.ErrPastTime) {
			b.reply(ctx, msg.RoomID, msg.EventID, err.Error())
			return nil
		}
		b.reply(ctx, msg.RoomID, msg.EventID, "Storing the reminder failed, try again later.")
		return err
	}

	// The creator is subscribed through the command message itself.
	if err := b.engine.AddSubscriber(ctx, rem, msg.Sender, msg.EventID); err != nil {
		b.log.Error("failed to subscribe creator",
			logx.String("reminder", string(rem.EventID)), logx.Err(err))
	}
	b.confirmReminder(ctx, msg, rem, info)
	return nil
}

// parseTrigger turns the remind arguments into a trigger policy plus
// the leftover text, which doubles as the canteen filter.
func (b *Bot) parseTrigger(args string, info domain.UserInfo, now time.Time) (domain.Trigger, string, error) {
	fields := strings.Fields(args)

	// Structured cron form bypasses the free-text resolver entirely.
	if clockArg.MatchString(fields[0]) {
		hour, minute, err := domain.ParseHourMinute(fields[0])
		if err != nil {
			return nil, "", err
		}
		days := domain.WorkWeek
		rest := strings.TrimSpace(strings.TrimPrefix(args, fields[0]))
		if len(fields) > 1 {
			if parsed, err := domain.ParseWeekdaySet(fields[1]); err == nil {
				days = parsed
				rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
			}
		}
		cron, err := domain.NormalizeCron(minute, hour, days, info.Location(), now)
		if err != nil {
			return nil, "", err
		}
		return cron, rest, nil
	}

	// "every <period> <when...>" arms an agenda reminder.
	if strings.EqualFold(fields[0], "every") && len(fields) > 1 {
		every, err := domain.ParseRecurEvery(fields[1])
		if err != nil {
			return nil, "", err
		}
		rest := strings.TrimSpace(strings.TrimPrefix(
			strings.TrimSpace(strings.TrimPrefix(args, fields[0])), fields[1]))
		at, consumed, err := domain.ResolveTime(rest, info, now)
		if err != nil {
			return nil, "", err
		}
		return domain.Interval{At: at, Every: every}, remainderAfter(rest, consumed), nil
	}

	at, consumed, err := domain.ResolveTime(args, info, now)
	if err != nil {
		return nil, "", err
	}
	return domain.OneOff{At: at}, remainderAfter(args, consumed), nil
}

// remainderAfter strips the consumed date expression, leaving the
// message text. When the expression was embedded mid-string the whole
// input is kept as the message.
func remainderAfter(text, consumed string) string {
	if consumed != "" && strings.HasPrefix(text, consumed) {
		return strings.TrimSpace(strings.TrimPrefix(text, consumed))
	}
	return strings.TrimSpace(text)
}

func (b *Bot) confirmReminder(ctx context.Context, msg transport.Message, rem *reminder.Reminder, info domain.UserInfo) {
	confirmation, err := b.sender.React(ctx, msg.RoomID, msg.EventID, "👍")
	if err != nil {
		b.log.Error("failed to react to reminder command",
			logx.String("reminder", string(rem.EventID)), logx.Err(err))
	} else if err := b.engine.SetConfirmation(ctx, rem, confirmation); err != nil {
		b.log.Error("failed to store confirmation event",
			logx.String("reminder", string(rem.EventID)), logx.Err(err))
	}

	var body strings.Builder
	body.WriteString("Reminder")
	if rem.Message != "" {
		fmt.Fprintf(&body, " for `%s`", rem.Message)
	}
	body.WriteString(" scheduled ")
	body.WriteString(rem.Describe(info, b.cfg.TimeFormat, b.clock()))
	body.WriteString(".\n\nAnyone can 👍 the command message above to get pinged.")
	b.reply(ctx, msg.RoomID, msg.EventID, body.String())
}

// cmdCancel cancels the replied-to reminder, or every reminder in the
// room when used without a reply. Only creators and room admins may
// cancel.
func (b *Bot) cmdCancel(ctx context.Context, msg transport.Message) error {
	var targets []*reminder.Reminder
	if msg.ReplyTo != "" {
		rem, ok := b.engine.Find(msg.ReplyTo)
		if !ok {
			b.reply(ctx, msg.RoomID, msg.EventID, "That doesn't look like a valid reminder.")
			return nil
		}
		targets = append(targets, rem)
	} else {
		targets = b.engine.InRoom(msg.RoomID)
		if len(targets) == 0 {
			b.reply(ctx, msg.RoomID, msg.EventID, "No reminders in this room.")
			return nil
		}
	}

	admin := b.hasPower(ctx, msg.RoomID, msg.Sender)
	cancelled := 0
	for _, rem := range targets {
		if rem.Creator != msg.Sender && !admin {
			b.reply(ctx, msg.RoomID, msg.EventID,
				fmt.Sprintf("Power level of %d is required", b.cfg.AdminPowerLevel))
			continue
		}
		confirmation, ok, err := b.engine.Cancel(ctx, rem.EventID)
		if err != nil {
			b.log.Error("failed to cancel reminder",
				logx.String("reminder", string(rem.EventID)), logx.Err(err))
			continue
		}
		if !ok {
			continue
		}
		cancelled++
		if confirmation != "" {
			if err := b.sender.Redact(ctx, msg.RoomID, confirmation); err != nil {
				b.log.Error("failed to redact confirmation",
					logx.String("reminder", string(rem.EventID)), logx.Err(err))
			}
		}
	}
	if cancelled > 0 {
		b.react(ctx, msg.RoomID, msg.EventID, "👍")
	}
	return nil
}

func (b *Bot) configHelp() string {
	bc := "!" + b.baseCommand()
	return fmt.Sprintf("Configuration settings:\n\n"+
		"- `%[1]s config language <en|de>` set the menu language\n"+
		"- `%[1]s config timezone <zone>` set your IANA timezone\n"+
		"- `%[1]s config canteen <canteens>` set your canteen filter\n"+
		"- `%[1]s config price <int|ext|stud|off>` set the price category\n\n"+
		"Without a value the current setting is shown.", bc)
}

func (b *Bot) helpMessage() string {
	bc := "!" + b.baseCommand()
	var hungerAliases string
	if len(b.cfg.HungerCommands) > 0 {
		hungerAliases = "`!" + strings.Join(b.cfg.HungerCommands, "`, `!") + "`"
	}
	md := fmt.Sprintf("Type `%[1]s menu` to show the lunch menus of the day\n\n"+
		"By default the menus for the following canteens are shown:\n- %[2]s\n\n"+
		"Type `%[1]s canteens` to show all available canteens\n\n"+
		"Type `%[1]s config` for configuration settings and syntax\n\n"+
		"Type `%[1]s remind 11:00` to schedule a reminder in the room.\n"+
		"The bot will then send the lunch menu every weekday at the specified time.\n"+
		"Add a weekday selection (`mon-fri`, `mon,wed,fri`) and a canteen filter\n"+
		"after the time. `%[1]s remind tomorrow 9am` and `%[1]s remind every 1d 12:00`\n"+
		"schedule one-off and fixed-period reminders instead.\n"+
		"A power level of %[3]d is required for reminders.\n\n"+
		"React with 👍 to any `%[1]s remind` command message to get pinged in the reminder.\n\n"+
		"Type `%[1]s cancel` in a new message to cancel all reminders in the room\n"+
		"or reply to a reminder to cancel a specific reminder",
		bc,
		strings.ReplaceAll(b.cfg.DefaultFacilities, ",", "\n- "),
		b.cfg.AdminPowerLevel)
	if hungerAliases != "" {
		md += fmt.Sprintf("\n\nThe following commands are aliases for the `%s menu` subcommand: %s",
			bc, hungerAliases)
	}
	return md
}
