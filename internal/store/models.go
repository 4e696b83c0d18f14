package store

import "maunium.net/go/mautrix/id"

// ReminderRow is one persisted reminder. The three trigger columns
// follow domain.EncodeTrigger: exactly one variant is populated, with
// empty strings standing for NULL (all columns default to '').
type ReminderRow struct {
	EventID           id.EventID `db:"event_id"`
	RoomID            id.RoomID  `db:"room_id"`
	Message           string     `db:"message"`
	ReplyTo           id.EventID `db:"reply_to"`
	StartTime         string     `db:"start_time"`
	RecurEvery        string     `db:"recur_every"`
	CronSpec          string     `db:"cron_spec"`
	Creator           id.UserID  `db:"creator"`
	ConfirmationEvent id.EventID `db:"confirmation_event"`
}

// SubscriberRow joins a subscribing reaction event to a reminder. A
// separate table (not an array column) so storage backends without array
// types stay supported, and so a redaction can remove one subscription
// without touching the reminder row.
type SubscriberRow struct {
	EventID          id.EventID `db:"event_id"`          // reminder the subscription belongs to
	UserID           id.UserID  `db:"user_id"`           // the subscriber
	SubscribingEvent id.EventID `db:"subscribing_event"` // the reaction event
}

// UserSettingsRow holds raw per-user settings as stored; validation and
// defaults substitution happen in the cache layer.
type UserSettingsRow struct {
	UserID     id.UserID `db:"user_id"`
	Timezone   string    `db:"timezone"`
	Locale     string    `db:"locale"`
	Price      string    `db:"price"`
	Facilities string    `db:"facilities"`
}
