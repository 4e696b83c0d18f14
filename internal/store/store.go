// Package store persists reminders, subscriber join rows and per-user
// settings in SQLite. The database is the single source of truth: the
// live reminder registry is rebuilt from these rows at every startup.
package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maunium.net/go/mautrix/id"

	"mensabot/pkg/logx"
)

var ErrNotFound = errors.New("store: row not found")

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the row-level persistence API used by the reminder engine and
// the settings cache.
type Store interface {
	InsertReminder(ctx context.Context, row ReminderRow) error
	DeleteReminder(ctx context.Context, eventID id.EventID) error
	UpdateStartTime(ctx context.Context, eventID id.EventID, startTime string) error
	SetConfirmationEvent(ctx context.Context, eventID, confirmation id.EventID) error
	UpdateRoomID(ctx context.Context, oldID, newID id.RoomID) error
	ListReminders(ctx context.Context) ([]ReminderRow, error)

	AddSubscriber(ctx context.Context, row SubscriberRow) error
	RemoveSubscriber(ctx context.Context, subscribingEvent id.EventID) error
	ListSubscribers(ctx context.Context) ([]SubscriberRow, error)

	GetUserSettings(ctx context.Context, user id.UserID) (UserSettingsRow, bool, error)
	SetUserSetting(ctx context.Context, user id.UserID, key, value string) error

	Close() error
}

// Open initializes the SQLite store, creating parent directories and
// applying migrations.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store: sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return openSQLite(cfg, log)
}
