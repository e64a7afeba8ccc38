package locking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	testingpkg "github.com/aristath/yieldfund/internal/testing"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteLocker(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "locks")
	defer cleanup()

	clock := testingpkg.NewMockClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	locker := NewSQLiteLocker(db.Conn(), zerolog.Nop())
	locker.now = clock.Now
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "daily-accrual", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "daily-accrual", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	// Other names are independent.
	other, err := locker.Acquire(ctx, "backup", time.Minute)
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))
	again, err := locker.Acquire(ctx, "daily-accrual", time.Minute)
	require.NoError(t, err)

	// A stale lease is taken over, and the old holder learns it lost it.
	clock.Advance(2 * time.Minute)
	takeover, err := locker.Acquire(ctx, "daily-accrual", time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, again.Release(ctx), ErrLockLost)
	require.NoError(t, takeover.Release(ctx))
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	locker := NewRedisLocker(client, "fund:", zerolog.Nop())
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "daily-accrual", time.Minute)
	require.NoError(t, err)
	assert.True(t, mr.Exists("fund:lock:daily-accrual"))

	_, err = locker.Acquire(ctx, "daily-accrual", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("fund:lock:daily-accrual"))

	lease, err = locker.Acquire(ctx, "daily-accrual", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, lease.Release(ctx), ErrLockLost)
}

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient("redis://localhost:6379/2")
	require.NoError(t, err)
	assert.Equal(t, 2, client.Options().DB)
	_ = client.Close()

	_, err = NewRedisClient("://nope")
	assert.Error(t, err)
}
