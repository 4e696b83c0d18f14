package reminder

import (
	"context"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/pkg/logx"
)

// Load rebuilds the registry from storage. It runs once at startup,
// before the transport starts delivering events.
//
// Reminder rows and subscriber rows are fetched in two queries and
// merged here by reminder id. A one-off whose instant already passed
// can never fire again; its row is deleted instead of instantiated.
// Malformed rows are logged and skipped; a bad row never aborts the
// load. Everything that survives goes through the same admission path
// as a freshly created reminder, re-armed against the current clock.
func (e *Reminders) Load(ctx context.Context) error {
	rows, err := e.store.ListReminders(ctx)
	if err != nil {
		return err
	}
	subRows, err := e.store.ListSubscribers(ctx)
	if err != nil {
		return err
	}

	subscribers := make(map[id.EventID]map[id.EventID]id.UserID)
	for _, s := range subRows {
		m := subscribers[s.EventID]
		if m == nil {
			m = make(map[id.EventID]id.UserID)
			subscribers[s.EventID] = m
		}
		m[s.SubscribingEvent] = s.UserID
	}

	now := e.clock.Now()
	var loaded, pruned, skipped int
	for _, row := range rows {
		trigger, err := domain.DecodeTrigger(row.StartTime, row.RecurEvery, row.CronSpec)
		if err != nil {
			e.log.Warn("skipping malformed reminder row",
				logx.String("reminder", string(row.EventID)), logx.Err(err))
			skipped++
			continue
		}

		if _, ok := trigger.Next(now); !ok {
			// A one-off that missed its only chance to fire. Deleting
			// the row also sweeps its subscriber rows.
			if err := e.store.DeleteReminder(ctx, row.EventID); err != nil {
				e.log.Error("failed to prune expired reminder",
					logx.String("reminder", string(row.EventID)), logx.Err(err))
			}
			pruned++
			continue
		}

		r, err := e.admit(CreateRequest{
			EventID: row.EventID,
			RoomID:  row.RoomID,
			Message: row.Message,
			ReplyTo: row.ReplyTo,
			Creator: row.Creator,
			Trigger: trigger,
		}, subscribers[row.EventID], now)
		if err != nil {
			e.log.Warn("skipping unloadable reminder row",
				logx.String("reminder", string(row.EventID)), logx.Err(err))
			skipped++
			continue
		}
		if row.ConfirmationEvent != "" {
			r.mu.Lock()
			r.confirmation = row.ConfirmationEvent
			r.mu.Unlock()
		}
		loaded++
	}

	e.log.Info("reminders loaded",
		logx.Int("loaded", loaded),
		logx.Int("pruned", pruned),
		logx.Int("skipped", skipped))
	return nil
}
