package callback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTTL bounds how long a processed callback is remembered.
const defaultTTL = 24 * time.Hour

// ReplayGuard suppresses duplicate gateway callbacks. Each processed
// (payment id, status) pair is recorded in Redis with a TTL; a second
// delivery of the same pair is reported as already seen. A Redis outage
// degrades to processing so callbacks are never dropped for lack of dedup.
type ReplayGuard struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewReplayGuard creates a Redis-backed replay guard. ttl <= 0 selects the
// default retention.
func NewReplayGuard(client *redis.Client, ttl time.Duration, logger *slog.Logger) *ReplayGuard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &ReplayGuard{client: client, ttl: ttl, logger: logger}
}

// FirstSeen records the (payment id, status) pair and reports whether this is
// its first delivery. Errors talking to Redis are logged and treated as first
// delivery.
func (g *ReplayGuard) FirstSeen(ctx context.Context, fibPaymentID, status string) bool {
	key := fmt.Sprintf("fibpay:callback:%s:%s", fibPaymentID, status)

	ok, err := g.client.SetNX(ctx, key, "1", g.ttl).Result()
	if err != nil {
		g.logger.WarnContext(ctx, "replay guard unavailable, processing callback",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return true
	}

	return ok
}
