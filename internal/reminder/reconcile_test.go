package reminder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/id"

	"mensabot/internal/domain"
	"mensabot/internal/store"
)

func seedRow(st *fakeStore, row store.ReminderRow) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.reminders[row.EventID] = row
}

func seedSub(st *fakeStore, row store.SubscriberRow) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.subs[row.SubscribingEvent] = row
}

func TestLoadRebuildsRegistry(t *testing.T) {
	e, st, _, _ := newTestEngine(t)
	ctx := context.Background()

	seedRow(st, store.ReminderRow{
		EventID: "$future", RoomID: "!room:example.org",
		StartTime: t0.Add(time.Hour).Format(time.RFC3339),
		Message:   "one-off", Creator: "@alice:example.org",
		ConfirmationEvent: "$confirm",
	})
	seedRow(st, store.ReminderRow{
		EventID: "$agenda", RoomID: "!room:example.org",
		StartTime:  t0.Add(-30 * time.Minute).Format(time.RFC3339),
		RecurEvery: "1h0m0s",
		Message:    "agenda", Creator: "@alice:example.org",
	})
	seedRow(st, store.ReminderRow{
		EventID: "$cron", RoomID: "!room:example.org",
		CronSpec: "0 9 1,2,3,4,5",
		Message:  "weekdays", Creator: "@alice:example.org",
	})
	seedRow(st, store.ReminderRow{
		EventID: "$expired", RoomID: "!room:example.org",
		StartTime: t0.Add(-time.Hour).Format(time.RFC3339),
		Message:   "missed", Creator: "@alice:example.org",
	})
	seedRow(st, store.ReminderRow{
		EventID: "$broken", RoomID: "!room:example.org",
		StartTime: t0.Add(time.Hour).Format(time.RFC3339),
		CronSpec:  "0 9 1", // two trigger variants at once
		Message:   "broken", Creator: "@alice:example.org",
	})
	seedSub(st, store.SubscriberRow{
		EventID: "$future", UserID: "@bob:example.org", SubscribingEvent: "$react1",
	})
	seedSub(st, store.SubscriberRow{
		EventID: "$expired", UserID: "@carol:example.org", SubscribingEvent: "$react2",
	})

	require.NoError(t, e.Load(ctx))
	require.Equal(t, 3, e.Len())

	// The future one-off came back with its subscribers, confirmation
	// and trigger intact.
	r, ok := e.Get("$future")
	require.True(t, ok)
	require.Equal(t, "one-off", r.Message)
	require.Equal(t, id.EventID("$confirm"), r.Confirmation())
	require.ElementsMatch(t, []id.UserID{"@bob:example.org"}, r.Subscribers())
	require.Equal(t, domain.OneOff{At: t0.Add(time.Hour)}, r.Trigger())

	// The expired one-off was pruned from storage, subscriber row and
	// all, and never reached the registry.
	_, ok = e.Get("$expired")
	require.False(t, ok)
	_, found := st.row("$expired")
	require.False(t, found)
	st.mu.Lock()
	_, orphan := st.subs["$react2"]
	st.mu.Unlock()
	require.False(t, orphan)

	// The malformed row was skipped but left in place for inspection.
	_, ok = e.Get("$broken")
	require.False(t, ok)
	_, found = st.row("$broken")
	require.True(t, found)
}

func TestLoadRearmsAgainstCurrentClock(t *testing.T) {
	e, st, nt, clock := newTestEngine(t)

	// A recurring reminder whose anchor instant is long past catches up
	// to the first occurrence after now instead of replaying misses.
	seedRow(st, store.ReminderRow{
		EventID: "$agenda", RoomID: "!room:example.org",
		StartTime:  t0.Add(-48 * time.Hour).Add(-30 * time.Minute).Format(time.RFC3339),
		RecurEvery: "24h0m0s",
		Message:    "agenda", Creator: "@alice:example.org",
	})
	require.NoError(t, e.Load(context.Background()))

	r, ok := e.Get("$agenda")
	require.True(t, ok)
	require.Equal(t, t0.Add(23*time.Hour+30*time.Minute), r.NextAt())

	clock.Advance(23*time.Hour + 30*time.Minute)
	require.Equal(t, 1, nt.count())
}

func TestLoadedReminderBehavesLikeNew(t *testing.T) {
	e, st, nt, clock := newTestEngine(t)
	ctx := context.Background()

	seedRow(st, store.ReminderRow{
		EventID: "$future", RoomID: "!room:example.org",
		StartTime: t0.Add(time.Hour).Format(time.RFC3339),
		Message:   "one-off", Creator: "@alice:example.org",
	})
	require.NoError(t, e.Load(ctx))

	// Cancelling and firing work exactly as for a live creation.
	clock.Advance(time.Hour)
	require.Equal(t, 1, nt.count())
	require.Equal(t, 0, e.Len())
	_, found := st.row("$future")
	require.False(t, found)
}
