package callback

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newGuard(t *testing.T, ttl time.Duration) (*ReplayGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReplayGuard(client, ttl, newTestLogger()), mr
}

func TestFirstSeen_SuppressesDuplicates(t *testing.T) {
	guard, _ := newGuard(t, time.Hour)
	ctx := context.Background()

	assert.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
	assert.False(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
}

func TestFirstSeen_DistinctStatusesAreSeparate(t *testing.T) {
	guard, _ := newGuard(t, time.Hour)
	ctx := context.Background()

	assert.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
	assert.True(t, guard.FirstSeen(ctx, "fib-1", "REFUNDED"))
	assert.True(t, guard.FirstSeen(ctx, "fib-2", "PAID"))
}

func TestFirstSeen_ExpiresWithTTL(t *testing.T) {
	guard, mr := newGuard(t, time.Minute)
	ctx := context.Background()

	require.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))

	mr.FastForward(2 * time.Minute)

	assert.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
}

func TestFirstSeen_RedisOutageDegradesToProcessing(t *testing.T) {
	guard, mr := newGuard(t, time.Hour)
	ctx := context.Background()

	mr.Close()

	assert.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
	assert.True(t, guard.FirstSeen(ctx, "fib-1", "PAID"))
}
