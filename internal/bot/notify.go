package bot

import (
	"context"
	"fmt"
	"strings"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/menus"
	"mensabot/internal/reminder"
	"mensabot/internal/transport"
	"mensabot/pkg/logx"
)

// Notify delivers a fired reminder: mention pills, a 🍔 link back to
// the command message, the schedule of the next run and the menus of
// the day, all in one message.
func (b *Bot) Notify(ctx context.Context, n reminder.Notification) {
	info := b.userInfo(ctx, n.Creator)

	var body strings.Builder
	if pills := b.mentionPills(ctx, n.Targets); pills != "" {
		body.WriteString(pills)
		body.WriteString(": ")
	}
	fmt.Fprintf(&body, "[🍔](https://matrix.to/#/%s/%s) Reminder", n.RoomID, n.Reminder)
	if n.Message != "" {
		fmt.Fprintf(&body, " for `%s`", n.Message)
	}
	if n.Recurring {
		// Render from the notification payload only. The firing entry
		// is locked while Notify runs; calling back into it deadlocks
		// the timer goroutine.
		fmt.Fprintf(&body, " %s.", n.Schedule(info, b.cfg.TimeFormat, b.clock()))
	}

	md := ""
	m, err := b.menus.Menus(ctx, info, n.Message, b.clock())
	if err != nil {
		b.log.Error("failed to fetch menus for reminder",
			logx.String("reminder", string(n.Reminder)), logx.Err(err))
	} else {
		md = menus.MarkdownMenus(m)
	}
	if md == "" {
		md = "No results"
	}
	body.WriteString("\n\n")
	body.WriteString(md)

	_, err = b.sender.SendMarkdown(ctx, n.RoomID, body.String(), transport.SendOpts{
		ReplyTo:  n.ReplyTo,
		Mentions: n.Targets,
	})
	if err != nil {
		b.log.Error("failed to deliver reminder",
			logx.String("reminder", string(n.Reminder)), logx.Err(err))
	}
}

// mentionPills renders matrix.to links with display names so the
// mention pings render as pills.
func (b *Bot) mentionPills(ctx context.Context, targets []id.UserID) string {
	pills := make([]string, 0, len(targets))
	for _, user := range targets {
		name, err := b.sender.DisplayName(ctx, user)
		if err != nil || name == "" {
			name = string(user)
		}
		pills = append(pills, fmt.Sprintf("[%s](https://matrix.to/#/%s)", name, user))
	}
	return strings.Join(pills, " ")
}
