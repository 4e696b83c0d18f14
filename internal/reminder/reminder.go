// Package reminder owns the live reminder registry: creating,
// scheduling, firing, cancelling and reloading reminders. The SQLite
// rows are the source of truth; everything here is a cache that Load
// can rebuild from them.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/pkg/logx"
)

// Reminder is one scheduled notification. All mutable state is guarded
// by mu; the identity fields never change after construction except
// RoomID, which is rewritten on room upgrades.
type Reminder struct {
	EventID id.EventID
	Message string
	ReplyTo id.EventID
	Creator id.UserID

	engine *Reminders

	mu           sync.Mutex
	roomID       id.RoomID
	trigger      domain.Trigger
	confirmation id.EventID
	subscribers  map[id.EventID]id.UserID // subscribing event -> user
	timer        Timer
	nextAt       time.Time
	gen          uint64
	terminal     bool
}

// RoomID returns the room the reminder currently posts to.
func (r *Reminder) RoomID() id.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.roomID
}

// Confirmation returns the reaction-prompt event id, empty when none
// was recorded yet.
func (r *Reminder) Confirmation() id.EventID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.confirmation
}

// Trigger returns the current trigger policy.
func (r *Reminder) Trigger() domain.Trigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trigger
}

// NextAt returns the armed fire instant, zero when terminal.
func (r *Reminder) NextAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return time.Time{}
	}
	return r.nextAt
}

// Subscribers returns the distinct subscribed user ids.
func (r *Reminder) Subscribers() []id.UserID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subscriberSetLocked()
}

func (r *Reminder) subscriberSetLocked() []id.UserID {
	seen := make(map[id.UserID]struct{}, len(r.subscribers))
	out := make([]id.UserID, 0, len(r.subscribers))
	for _, user := range r.subscribers {
		if _, dup := seen[user]; dup {
			continue
		}
		seen[user] = struct{}{}
		out = append(out, user)
	}
	return out
}

// armLocked schedules the next fire strictly after now. The generation
// counter invalidates any timer armed before this call.
func (r *Reminder) armLocked(now time.Time) error {
	r.gen++
	gen := r.gen
	at, ok := r.trigger.Next(now)
	if !ok {
		return fmt.Errorf("reminder %s can never fire", r.EventID)
	}
	r.nextAt = at
	r.timer = r.engine.clock.AfterFunc(at.Sub(now), func() { r.fire(gen) })
	return nil
}

// disarmLocked stops the timer and invalidates pending callbacks.
func (r *Reminder) disarmLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// fire runs when the armed timer elapses. It holds the entry lock from
// dispatch through reschedule, so a concurrent cancel either runs
// before the notification or after rescheduling, never in between.
func (r *Reminder) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal || gen != r.gen {
		return
	}

	e := r.engine
	ctx := context.Background()
	firedAt := r.nextAt
	now := e.clock.Now()

	n := Notification{
		RoomID:    r.roomID,
		Reminder:  r.EventID,
		Message:   r.Message,
		ReplyTo:   r.ReplyTo,
		Creator:   r.Creator,
		Targets:   r.subscriberSetLocked(),
		Recurring: r.trigger.Recurring(),
	}

	if !r.trigger.Recurring() {
		n.Trigger = r.trigger
		r.terminal = true
		r.disarmLocked()
		e.remove(r.EventID)
		// Deliver before deleting the row; a crash mid-dispatch then
		// redelivers on the next Load instead of losing the one-off.
		e.dispatch(ctx, n)
		if err := e.store.DeleteReminder(ctx, r.EventID); err != nil {
			e.log.Error("failed to delete fired reminder",
				logx.String("reminder", string(r.EventID)), logx.Err(err))
		}
		return
	}

	// Reschedule before dispatch so the notification can carry the
	// next fire instant.
	switch t := r.trigger.(type) {
	case domain.Interval:
		// Anchored to the instant that fired, not to now, so handler
		// latency never drifts the cadence.
		r.trigger = t.Advance(firedAt)
	case domain.Cron:
		// Stateless, Next derives from the cron fields alone.
	}

	next, ok := r.trigger.Next(now)
	if !ok {
		e.log.Error("recurring reminder has no next fire",
			logx.String("reminder", string(r.EventID)))
		r.terminal = true
		r.disarmLocked()
		e.remove(r.EventID)
		return
	}
	n.Trigger = r.trigger
	n.NextAt = next
	if iv, isInterval := r.trigger.(domain.Interval); isInterval {
		n.Every = iv.Every
	}

	if startTime, recurEvery, _ := domain.EncodeTrigger(r.trigger); startTime != "" && recurEvery != "" {
		// Only interval rows carry a moving start_time. A failed
		// update is transient; the reminder stays armed and the row
		// catches up on the next successful fire.
		if err := e.store.UpdateStartTime(ctx, r.EventID, startTime); err != nil {
			e.log.Error("failed to persist rescheduled start time",
				logx.String("reminder", string(r.EventID)), logx.Err(err))
		}
	}

	if err := r.armLocked(now); err != nil {
		e.log.Error("failed to re-arm recurring reminder",
			logx.String("reminder", string(r.EventID)), logx.Err(err))
	}
	e.dispatch(ctx, n)
}

// Describe renders the reminder's schedule for chat replies, in the
// user's timezone.
func (r *Reminder) Describe(info domain.UserInfo, layout string, now time.Time) string {
	r.mu.Lock()
	trigger := r.trigger
	nextAt := r.nextAt
	terminal := r.terminal
	r.mu.Unlock()

	if terminal {
		return "never"
	}
	return describeSchedule(trigger, nextAt, info, layout, now)
}

// describeSchedule is the lock-free rendering shared by Reminder.Describe
// and Notification.Schedule.
func describeSchedule(trigger domain.Trigger, nextAt time.Time, info domain.UserInfo, layout string, now time.Time) string {
	next := domain.FormatTime(nextAt, info, layout, now)

	switch t := trigger.(type) {
	case domain.Cron:
		return fmt.Sprintf("at %02d:%02d UTC on %s, next run %s", t.Hour, t.Minute, t.Days, next)
	case domain.Interval:
		return fmt.Sprintf("%s, next run %s", domain.FormatEvery(t.Every), next)
	default:
		return next
	}
}
