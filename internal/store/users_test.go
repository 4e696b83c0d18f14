package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mensabot/pkg/logx"
)

var testDefaults = Defaults{
	Locale:     "en",
	Timezone:   "Europe/Zurich",
	Price:      "int",
	Facilities: "",
}

func TestUserCacheDefaults(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	cache := NewUserCache(st, testDefaults, logx.Nop())
	ctx := context.Background()

	// Unknown user gets pure defaults.
	info, err := cache.Get(ctx, "@alice:example.org")
	require.NoError(t, err)
	require.Equal(t, "en", info.Locale)
	require.Equal(t, "Europe/Zurich", info.Timezone)
	require.Equal(t, "int", info.Price)

	// A bogus stored timezone is replaced, valid fields survive.
	require.NoError(t, st.SetUserSetting(ctx, "@bob:example.org", "timezone", "Mars/Olympus"))
	require.NoError(t, st.SetUserSetting(ctx, "@bob:example.org", "price", "stud"))
	info, err = cache.Get(ctx, "@bob:example.org")
	require.NoError(t, err)
	require.Equal(t, "Europe/Zurich", info.Timezone)
	require.Equal(t, "stud", info.Price)
}

func TestUserCacheSet(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	cache := NewUserCache(st, testDefaults, logx.Nop())
	ctx := context.Background()

	_, err := cache.Get(ctx, "@alice:example.org")
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "@alice:example.org", "timezone", "America/New_York"))
	info, err := cache.Get(ctx, "@alice:example.org")
	require.NoError(t, err)
	require.Equal(t, "America/New_York", info.Timezone)

	// Rejected values change nothing, in memory or on disk.
	require.Error(t, cache.Set(ctx, "@alice:example.org", "timezone", "Mars/Olympus"))
	require.Error(t, cache.Set(ctx, "@alice:example.org", "price", "free"))
	require.Error(t, cache.Set(ctx, "@alice:example.org", "shoesize", "44"))
	info, err = cache.Get(ctx, "@alice:example.org")
	require.NoError(t, err)
	require.Equal(t, "America/New_York", info.Timezone)
	require.Equal(t, "int", info.Price)

	row, found, err := st.GetUserSettings(ctx, "@alice:example.org")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "America/New_York", row.Timezone)
}

func TestUserCacheRateLimit(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	cache := NewUserCache(st, testDefaults, logx.Nop())

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, ok := cache.CheckRateLimit("@alice:example.org", now, 5, time.Hour)
		require.True(t, ok)
	}
	count, ok := cache.CheckRateLimit("@alice:example.org", now, 5, time.Hour)
	require.False(t, ok)
	require.GreaterOrEqual(t, count, 5)

	// Other users keep their own window.
	_, ok = cache.CheckRateLimit("@bob:example.org", now, 5, time.Hour)
	require.True(t, ok)

	// The window slides; an hour later the user may call again.
	_, ok = cache.CheckRateLimit("@alice:example.org", now.Add(time.Hour+time.Second), 5, time.Hour)
	require.True(t, ok)
}

func TestRateLimitDoesNotShadowStoredSettings(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SetUserSetting(ctx, "@alice:example.org", "timezone", "America/New_York"))

	// Fresh cache, as after a restart. Consuming the rate limit window
	// before the first settings lookup must not seed the cache with
	// defaults.
	cache := NewUserCache(st, testDefaults, logx.Nop())
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	_, ok := cache.CheckRateLimit("@alice:example.org", now, 5, time.Hour)
	require.True(t, ok)

	info, err := cache.Get(ctx, "@alice:example.org")
	require.NoError(t, err)
	require.Equal(t, "America/New_York", info.Timezone)
}
