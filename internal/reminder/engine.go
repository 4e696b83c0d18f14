package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/internal/store"
	"mensabot/pkg/logx"
)

// Notification is the payload handed to the Notifier when a reminder
// fires. Rendering and delivery are the Notifier's business. It carries
// everything needed to describe the schedule; the Notifier runs on the
// timer goroutine while the firing entry is locked and must not call
// back into that entry.
type Notification struct {
	RoomID    id.RoomID
	Reminder  id.EventID
	Message   string
	ReplyTo   id.EventID
	Creator   id.UserID
	Targets   []id.UserID
	Recurring bool
	Trigger   domain.Trigger // post-reschedule policy
	NextAt    time.Time      // zero for a terminal one-off
	Every     time.Duration  // interval period, zero otherwise
}

// Schedule renders the notification's follow-up schedule for chat
// replies, in the user's timezone.
func (n Notification) Schedule(info domain.UserInfo, layout string, now time.Time) string {
	if !n.Recurring {
		return "never"
	}
	return describeSchedule(n.Trigger, n.NextAt, info, layout, now)
}

// Notifier delivers fired reminders. Implementations must tolerate
// being called from timer goroutines.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

var ErrAlreadyScheduled = errors.New("a reminder for this event already exists")

// Reminders is the live registry. The registry map has its own lock;
// each entry is guarded by its own mutex so unrelated reminders never
// block each other.
type Reminders struct {
	store    store.Store
	notifier Notifier
	clock    Clock
	log      logx.Logger

	mu      sync.RWMutex
	entries map[id.EventID]*Reminder
}

func NewReminders(st store.Store, notifier Notifier, clock Clock, log logx.Logger) *Reminders {
	if clock == nil {
		clock = realClock{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reminders{
		store:    st,
		notifier: notifier,
		clock:    clock,
		log:      log,
		entries:  make(map[id.EventID]*Reminder),
	}
}

// SetNotifier installs the delivery hook. Call before Load and before
// any timer can elapse.
func (e *Reminders) SetNotifier(n Notifier) { e.notifier = n }

// CreateRequest describes a new reminder. EventID is the id of the
// chat message that issued the command.
type CreateRequest struct {
	EventID id.EventID
	RoomID  id.RoomID
	Message string
	ReplyTo id.EventID
	Creator id.UserID
	Trigger domain.Trigger
}

// Create persists the reminder and arms its timer. The row is written
// first; a storage failure leaves no timer armed and no registry entry.
func (e *Reminders) Create(ctx context.Context, req CreateRequest) (*Reminder, error) {
	if req.Trigger == nil {
		return nil, errors.New("reminder: trigger is required")
	}
	now := e.clock.Now()
	if _, ok := req.Trigger.Next(now); !ok {
		return nil, domain.ErrPastTime
	}

	e.mu.RLock()
	_, exists := e.entries[req.EventID]
	e.mu.RUnlock()
	if exists {
		return nil, ErrAlreadyScheduled
	}

	startTime, recurEvery, cronSpec := domain.EncodeTrigger(req.Trigger)
	err := e.store.InsertReminder(ctx, store.ReminderRow{
		EventID:    req.EventID,
		RoomID:     req.RoomID,
		StartTime:  startTime,
		RecurEvery: recurEvery,
		CronSpec:   cronSpec,
		Message:    req.Message,
		ReplyTo:    req.ReplyTo,
		Creator:    req.Creator,
	})
	if err != nil {
		return nil, err
	}

	r, err := e.admit(req, nil, now)
	if err != nil {
		// Roll the row back so storage and memory agree.
		if delErr := e.store.DeleteReminder(ctx, req.EventID); delErr != nil {
			e.log.Error("failed to roll back reminder row",
				logx.String("reminder", string(req.EventID)), logx.Err(delErr))
		}
		return nil, err
	}
	e.log.Info("reminder scheduled",
		logx.String("reminder", string(req.EventID)),
		logx.String("kind", req.Trigger.Kind()),
		logx.Time("next", r.NextAt()))
	return r, nil
}

// admit builds the live entry and arms it. Both Create and Load go
// through here, so recovered reminders behave exactly like new ones.
func (e *Reminders) admit(req CreateRequest, subscribers map[id.EventID]id.UserID, now time.Time) (*Reminder, error) {
	if subscribers == nil {
		subscribers = make(map[id.EventID]id.UserID)
	}
	r := &Reminder{
		EventID:     req.EventID,
		Message:     req.Message,
		ReplyTo:     req.ReplyTo,
		Creator:     req.Creator,
		engine:      e,
		roomID:      req.RoomID,
		trigger:     req.Trigger,
		subscribers: subscribers,
	}

	r.mu.Lock()
	err := r.armLocked(now)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if _, exists := e.entries[req.EventID]; exists {
		e.mu.Unlock()
		r.mu.Lock()
		r.terminal = true
		r.disarmLocked()
		r.mu.Unlock()
		return nil, ErrAlreadyScheduled
	}
	e.entries[req.EventID] = r
	e.mu.Unlock()
	return r, nil
}

// Get returns the live reminder for the given command event.
func (e *Reminders) Get(eventID id.EventID) (*Reminder, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.entries[eventID]
	return r, ok
}

// Find locates a reminder by its command event or by its confirmation
// prompt, whichever the user interacted with.
func (e *Reminders) Find(eventID id.EventID) (*Reminder, bool) {
	if r, ok := e.Get(eventID); ok {
		return r, true
	}
	for _, r := range e.snapshot() {
		if r.Confirmation() == eventID {
			return r, true
		}
	}
	return nil, false
}

// InRoom returns every live reminder posting to the given room.
func (e *Reminders) InRoom(roomID id.RoomID) []*Reminder {
	var out []*Reminder
	for _, r := range e.snapshot() {
		if r.RoomID() == roomID {
			out = append(out, r)
		}
	}
	return out
}

// Len reports the number of live reminders.
func (e *Reminders) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.entries)
}

func (e *Reminders) snapshot() []*Reminder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Reminder, 0, len(e.entries))
	for _, r := range e.entries {
		out = append(out, r)
	}
	return out
}

func (e *Reminders) remove(eventID id.EventID) {
	e.mu.Lock()
	delete(e.entries, eventID)
	e.mu.Unlock()
}

func (e *Reminders) dispatch(ctx context.Context, n Notification) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, n)
}

// Cancel disarms and deletes a reminder. It returns the confirmation
// event so the caller can redact the prompt, and false when no live
// reminder matches. Cancelling twice is a no-op.
func (e *Reminders) Cancel(ctx context.Context, eventID id.EventID) (id.EventID, bool, error) {
	r, ok := e.Get(eventID)
	if !ok {
		return "", false, nil
	}

	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		return "", false, nil
	}
	r.terminal = true
	r.disarmLocked()
	confirmation := r.confirmation
	r.mu.Unlock()

	e.remove(eventID)
	if err := e.store.DeleteReminder(ctx, eventID); err != nil {
		return confirmation, true, err
	}
	e.log.Info("reminder cancelled", logx.String("reminder", string(eventID)))
	return confirmation, true, nil
}

// SetConfirmation records the reaction-prompt event so it can be
// redacted when the reminder goes away.
func (e *Reminders) SetConfirmation(ctx context.Context, r *Reminder, confirmation id.EventID) error {
	r.mu.Lock()
	r.confirmation = confirmation
	r.mu.Unlock()
	return e.store.SetConfirmationEvent(ctx, r.EventID, confirmation)
}

// AddSubscriber subscribes a user via their reaction event. A user
// subscribed twice through different reactions holds two entries, both
// removable independently.
func (e *Reminders) AddSubscriber(ctx context.Context, r *Reminder, user id.UserID, subscribingEvent id.EventID) error {
	r.mu.Lock()
	if _, exists := r.subscribers[subscribingEvent]; exists {
		r.mu.Unlock()
		return nil
	}
	r.subscribers[subscribingEvent] = user
	r.mu.Unlock()

	err := e.store.AddSubscriber(ctx, store.SubscriberRow{
		EventID:          r.EventID,
		UserID:           user,
		SubscribingEvent: subscribingEvent,
	})
	if err != nil {
		r.mu.Lock()
		delete(r.subscribers, subscribingEvent)
		r.mu.Unlock()
	}
	return err
}

// RemoveSubscriber drops the subscription created by the given
// reaction event, wherever it lives. Unknown events are a no-op.
func (e *Reminders) RemoveSubscriber(ctx context.Context, subscribingEvent id.EventID) error {
	for _, r := range e.snapshot() {
		r.mu.Lock()
		_, exists := r.subscribers[subscribingEvent]
		if exists {
			delete(r.subscribers, subscribingEvent)
		}
		r.mu.Unlock()
		if exists {
			return e.store.RemoveSubscriber(ctx, subscribingEvent)
		}
	}
	return nil
}

// RewriteRoom points every reminder of an upgraded room at its
// replacement.
func (e *Reminders) RewriteRoom(ctx context.Context, oldRoom, newRoom id.RoomID) error {
	n := 0
	for _, r := range e.snapshot() {
		r.mu.Lock()
		if r.roomID == oldRoom {
			r.roomID = newRoom
			n++
		}
		r.mu.Unlock()
	}
	if n > 0 {
		e.log.Info("rewrote room id",
			logx.String("old", string(oldRoom)),
			logx.String("new", string(newRoom)),
			logx.Int("reminders", n))
	}
	return e.store.UpdateRoomID(ctx, oldRoom, newRoom)
}
