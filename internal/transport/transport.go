// Package transport connects the bot to a Matrix homeserver. The rest
// of the codebase talks to the Sender and Handler interfaces only, so
// tests can drive the bot without a homeserver.
package transport

import (
	"context"

	"maunium.net/go/mautrix/id"
)

// Message is an incoming room message.
type Message struct {
	RoomID  id.RoomID
	EventID id.EventID
	Sender  id.UserID
	Body    string
	ReplyTo id.EventID // event this message replies to, if any
}

// Reaction is an incoming annotation on an earlier event.
type Reaction struct {
	RoomID  id.RoomID
	EventID id.EventID // the reaction event itself
	Target  id.EventID // the event being reacted to
	Sender  id.UserID
	Key     string // the emoji
}

// Handler receives room traffic from the sync loop. Callbacks run on
// the sync goroutine; anything slow must be handed off.
type Handler interface {
	OnMessage(ctx context.Context, msg Message)
	OnReaction(ctx context.Context, r Reaction)
	OnRedaction(ctx context.Context, roomID id.RoomID, redacted id.EventID)
	OnTombstone(ctx context.Context, oldRoom, newRoom id.RoomID)
}

// SendOpts carries the optional parts of an outgoing message.
type SendOpts struct {
	ReplyTo  id.EventID
	Mentions []id.UserID
}

// Sender is the outgoing half of the Matrix connection.
type Sender interface {
	// SendMarkdown renders markdown to HTML and posts it, returning the
	// event ID of the sent message.
	SendMarkdown(ctx context.Context, roomID id.RoomID, markdown string, opts SendOpts) (id.EventID, error)
	React(ctx context.Context, roomID id.RoomID, target id.EventID, key string) (id.EventID, error)
	Redact(ctx context.Context, roomID id.RoomID, target id.EventID) error
	PowerLevel(ctx context.Context, roomID id.RoomID, user id.UserID) (int, error)
	DisplayName(ctx context.Context, user id.UserID) (string, error)
}
