package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"maunium.net/go/mautrix/id"
	_ "modernc.org/sqlite"

	"mensabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sqlx.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	db, err := sqlx.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- reminders ----

func (s *sqliteStore) InsertReminder(ctx context.Context, row ReminderRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder
		   (event_id, room_id, start_time, message, reply_to, recur_every, cron_spec, creator, confirmation_event)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		row.EventID, row.RoomID, row.StartTime, row.Message, row.ReplyTo,
		row.RecurEvery, row.CronSpec, row.Creator, row.ConfirmationEvent,
	)
	return err
}

func (s *sqliteStore) DeleteReminder(ctx context.Context, eventID id.EventID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reminder WHERE event_id = ?`, eventID)
	if err != nil {
		return err
	}
	// Cascades only apply when foreign_keys is on; sweep explicitly so a
	// lost pragma cannot strand subscriber rows.
	_, err = s.db.ExecContext(ctx, `DELETE FROM reminder_target WHERE event_id = ?`, eventID)
	return err
}

func (s *sqliteStore) UpdateStartTime(ctx context.Context, eventID id.EventID, startTime string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminder SET start_time = ? WHERE event_id = ?`, startTime, eventID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetConfirmationEvent(ctx context.Context, eventID, confirmation id.EventID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminder SET confirmation_event = ? WHERE event_id = ?`, confirmation, eventID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) UpdateRoomID(ctx context.Context, oldID, newID id.RoomID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE reminder SET room_id = ? WHERE room_id = ?`, newID, oldID)
	return err
}

func (s *sqliteStore) ListReminders(ctx context.Context) ([]ReminderRow, error) {
	var rows []ReminderRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT event_id, room_id, start_time, message, reply_to, recur_every, cron_spec, creator, confirmation_event
		   FROM reminder`)
	return rows, err
}

// ---- subscribers ----

func (s *sqliteStore) AddSubscriber(ctx context.Context, row SubscriberRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminder_target (event_id, user_id, subscribing_event)
		 VALUES (?,?,?)
		 ON CONFLICT (subscribing_event) DO NOTHING`,
		row.EventID, row.UserID, row.SubscribingEvent,
	)
	return err
}

func (s *sqliteStore) RemoveSubscriber(ctx context.Context, subscribingEvent id.EventID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder_target WHERE subscribing_event = ?`, subscribingEvent)
	return err
}

func (s *sqliteStore) ListSubscribers(ctx context.Context) ([]SubscriberRow, error) {
	var rows []SubscriberRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT event_id, user_id, subscribing_event FROM reminder_target`)
	return rows, err
}

// ---- user settings ----

func (s *sqliteStore) GetUserSettings(ctx context.Context, user id.UserID) (UserSettingsRow, bool, error) {
	var row UserSettingsRow
	err := s.db.GetContext(ctx, &row,
		`SELECT user_id, timezone, locale, price, facilities FROM user_settings WHERE user_id = ?`, user)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettingsRow{}, false, nil
	}
	if err != nil {
		return UserSettingsRow{}, false, err
	}
	return row, true, nil
}

// settingColumns whitelists the dynamic column in SetUserSetting.
var settingColumns = map[string]bool{
	"timezone": true, "locale": true, "price": true, "facilities": true,
}

func (s *sqliteStore) SetUserSetting(ctx context.Context, user id.UserID, key, value string) error {
	if !settingColumns[key] {
		return fmt.Errorf("store: unknown user setting %q", key)
	}
	q := fmt.Sprintf(
		`INSERT INTO user_settings (user_id, %[1]s) VALUES (?,?)
		 ON CONFLICT (user_id) DO UPDATE SET %[1]s = excluded.%[1]s`, key)
	_, err := s.db.ExecContext(ctx, q, user, value)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
