package transport

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/time/rate"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"mensabot/pkg/logx"
)

// Config holds the homeserver connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string

	// Outgoing messages per second and burst, to stay under the
	// homeserver's rate limits.
	SendRate  float64
	SendBurst int
}

// Matrix is the mautrix-backed implementation of Sender. It owns the
// sync loop and forwards room traffic to a Handler.
type Matrix struct {
	client  *mautrix.Client
	handler Handler
	limiter *rate.Limiter
	md      goldmark.Markdown
	log     logx.Logger

	startTS int64
}

func NewMatrix(cfg Config, log logx.Logger) (*Matrix, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, errors.New("transport: homeserver, user_id and access_token are required")
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, err
	}
	if cfg.SendRate <= 0 {
		cfg.SendRate = 2
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Matrix{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		log:     log,
	}, nil
}

// SetHandler installs the traffic handler. Must be called before Run.
func (m *Matrix) SetHandler(h Handler) { m.handler = h }

// UserID returns the bot's own Matrix ID.
func (m *Matrix) UserID() id.UserID { return m.client.UserID }

// Run registers sync callbacks and blocks syncing until ctx is done.
func (m *Matrix) Run(ctx context.Context) error {
	if m.handler == nil {
		return errors.New("transport: no handler installed")
	}
	// Events delivered before this point in time are backlog and must
	// not trigger replies.
	m.startTS = time.Now().UnixMilli()

	syncer := m.client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, m.onMessage)
	syncer.OnEventType(event.EventReaction, m.onReaction)
	syncer.OnEventType(event.EventRedaction, m.onRedaction)
	syncer.OnEventType(event.StateTombstone, m.onTombstone)
	syncer.OnEventType(event.StateMember, m.onMember)

	// Keeps the first sync small so a restart does not replay a
	// backlog of commands.
	syncer.FilterJSON = &mautrix.Filter{
		Room: mautrix.RoomFilter{
			Timeline: mautrix.FilterPart{Limit: 16},
		},
	}

	for {
		err := m.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			m.log.Error("sync failed, retrying", logx.Err(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
		}
	}
}

func (m *Matrix) stale(evt *event.Event) bool {
	return evt.Timestamp < m.startTS || evt.Sender == m.client.UserID
}

func (m *Matrix) onMessage(ctx context.Context, evt *event.Event) {
	if m.stale(evt) {
		return
	}
	msg := evt.Content.AsMessage()
	if msg.MsgType != event.MsgText && msg.MsgType != event.MsgNotice {
		return
	}
	m.handler.OnMessage(ctx, Message{
		RoomID:  evt.RoomID,
		EventID: evt.ID,
		Sender:  evt.Sender,
		Body:    msg.Body,
		ReplyTo: msg.RelatesTo.GetReplyTo(),
	})
}

func (m *Matrix) onReaction(ctx context.Context, evt *event.Event) {
	if m.stale(evt) {
		return
	}
	rel := evt.Content.AsReaction().RelatesTo
	if rel.Type != event.RelAnnotation || rel.EventID == "" {
		return
	}
	m.handler.OnReaction(ctx, Reaction{
		RoomID:  evt.RoomID,
		EventID: evt.ID,
		Target:  rel.EventID,
		Sender:  evt.Sender,
		Key:     rel.Key,
	})
}

func (m *Matrix) onRedaction(ctx context.Context, evt *event.Event) {
	if evt.Timestamp < m.startTS {
		return
	}
	target := evt.Redacts
	if target == "" {
		target = evt.Content.AsRedaction().Redacts
	}
	if target == "" {
		return
	}
	m.handler.OnRedaction(ctx, evt.RoomID, target)
}

func (m *Matrix) onTombstone(ctx context.Context, evt *event.Event) {
	replacement := evt.Content.AsTombstone().ReplacementRoom
	if replacement == "" {
		return
	}
	m.handler.OnTombstone(ctx, evt.RoomID, replacement)
}

// onMember auto-joins rooms the bot is invited to.
func (m *Matrix) onMember(ctx context.Context, evt *event.Event) {
	if evt.GetStateKey() != m.client.UserID.String() {
		return
	}
	if evt.Content.AsMember().Membership != event.MembershipInvite {
		return
	}
	if _, err := m.client.JoinRoomByID(ctx, evt.RoomID); err != nil {
		m.log.Error("failed to join room",
			logx.String("room", evt.RoomID.String()), logx.Err(err))
		return
	}
	m.log.Info("joined room", logx.String("room", evt.RoomID.String()))
}

func (m *Matrix) SendMarkdown(ctx context.Context, roomID id.RoomID, markdown string, opts SendOpts) (id.EventID, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    markdown,
	}
	if html := m.renderHTML(markdown); html != "" && html != markdown {
		content.Format = event.FormatHTML
		content.FormattedBody = html
	}
	if len(opts.Mentions) > 0 {
		content.Mentions = &event.Mentions{UserIDs: opts.Mentions}
	}
	if opts.ReplyTo != "" {
		content.RelatesTo = &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: opts.ReplyTo},
		}
	}
	resp, err := m.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (m *Matrix) React(ctx context.Context, roomID id.RoomID, target id.EventID, key string) (id.EventID, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return "", err
	}
	resp, err := m.client.SendReaction(ctx, roomID, target, key)
	if err != nil {
		return "", err
	}
	return resp.EventID, nil
}

func (m *Matrix) Redact(ctx context.Context, roomID id.RoomID, target id.EventID) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := m.client.RedactEvent(ctx, roomID, target)
	return err
}

func (m *Matrix) PowerLevel(ctx context.Context, roomID id.RoomID, user id.UserID) (int, error) {
	var pl event.PowerLevelsEventContent
	err := m.client.StateEvent(ctx, roomID, event.StatePowerLevels, "", &pl)
	if err != nil {
		return 0, err
	}
	return pl.GetUserLevel(user), nil
}

func (m *Matrix) DisplayName(ctx context.Context, user id.UserID) (string, error) {
	resp, err := m.client.GetDisplayName(ctx, user)
	if err != nil || resp == nil || resp.DisplayName == "" {
		// Fall back to the localpart so messages still read naturally.
		name := user.Localpart()
		if name == "" {
			name = string(user)
		}
		return name, nil
	}
	return strings.TrimSpace(resp.DisplayName), nil
}

func (m *Matrix) renderHTML(markdown string) string {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(markdown), &buf); err != nil {
		return ""
	}
	return strings.TrimSpace(buf.String())
}
