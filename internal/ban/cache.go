// Package ban provides the fast-path ban check used on connect and match
// request. The durable store is authoritative for ban state; this Redis cache
// mirrors it as simple key-value records with TTL-based expiry:
//
//	Key:   ban:<wallet_address>
//	Value: <reason>
//	TTL:   remaining ban duration
//
// At startup the cache is primed from the store so a process restart cannot
// forget bans.
package ban

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// BanPrefix is the Redis key prefix for ban records.
	BanPrefix = "ban:"

	// ReportsPrefix is the Redis key prefix for the per-user report counter
	// driving the escalating auto-ban.
	ReportsPrefix = "reports:"

	// Escalating ban durations.
	Ban15Min  = 15 * time.Minute // 1st offense
	Ban1Hour  = 1 * time.Hour    // 2nd offense
	Ban24Hour = 24 * time.Hour   // 3rd+ offense

	// ReportsTTL is how long the report counter lives in Redis. After 24h
	// without new reports the counter resets to zero.
	ReportsTTL = 24 * time.Hour

	// AutoBanThreshold is the number of reports within ReportsTTL that
	// triggers an automatic ban.
	AutoBanThreshold = 3
)

// Cache manages ban records in Redis.
type Cache struct {
	client *redis.Client
}

// NewCache creates a ban cache using the provided Redis client.
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// IsBanned checks if a user is currently banned.
// Returns (isBanned, remainingSeconds, reason, error). If the user is not
// banned, isBanned is false and the other return values are zero/empty.
// Redis errors are returned so callers can decide how to handle them; the
// relay's policy is fail-open on the cache with the store as backstop.
func (c *Cache) IsBanned(ctx context.Context, userID string) (bool, int, string, error) {
	key := BanPrefix + userID

	reason, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, 0, "", nil
	}
	if err != nil {
		return false, 0, "", err
	}

	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		// The ban exists but the TTL read failed. Report banned with 0
		// remaining rather than swallowing the ban.
		return true, 0, reason, nil
	}

	remaining := 0
	if ttl > 0 {
		remaining = int(ttl.Seconds())
	}

	return true, remaining, reason, nil
}

// Ban sets a ban on a user with the given duration and reason. The cache
// entry automatically expires after the specified duration.
func (c *Cache) Ban(ctx context.Context, userID string, duration time.Duration, reason string) error {
	return c.client.Set(ctx, BanPrefix+userID, reason, duration).Err()
}

// Unban removes a ban from a user immediately.
func (c *Cache) Unban(ctx context.Context, userID string) error {
	return c.client.Del(ctx, BanPrefix+userID).Err()
}

// Prime installs a ban record loaded from the durable store, preserving its
// remaining duration. Expired records are skipped.
func (c *Cache) Prime(ctx context.Context, userID string, until time.Time, reason string) error {
	remaining := time.Until(until)
	if remaining <= 0 {
		return nil
	}
	return c.Ban(ctx, userID, remaining, reason)
}

// escalationDuration returns the ban duration for a given offense count.
func escalationDuration(offenseCount int) time.Duration {
	switch {
	case offenseCount <= 1:
		return Ban15Min
	case offenseCount == 2:
		return Ban1Hour
	default:
		return Ban24Hour
	}
}

// ReportAndCheck increments the report counter for a user and checks whether
// the auto-ban threshold (3 reports in 24h) has been reached.
//
// If the threshold is met or exceeded, a ban with escalating duration is
// applied:
//
//	1st offense  -> 15 minutes
//	2nd offense  -> 1 hour
//	3rd+ offense -> 24 hours
//
// Returns (banned, duration, error).
func (c *Cache) ReportAndCheck(ctx context.Context, userID string) (bool, time.Duration, error) {
	key := ReportsPrefix + userID

	// Atomically increment the report counter.
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ban: report incr: %w", err)
	}

	// Set TTL only on first increment so the 24h window doesn't slide.
	if count == 1 {
		if err := c.client.Expire(ctx, key, ReportsTTL).Err(); err != nil {
			return false, 0, fmt.Errorf("ban: report expire: %w", err)
		}
	}

	if count >= AutoBanThreshold {
		duration := escalationDuration(int(count) - AutoBanThreshold + 1)
		if err := c.Ban(ctx, userID, duration, "multiple_reports"); err != nil {
			return false, 0, fmt.Errorf("ban: report ban: %w", err)
		}
		return true, duration, nil
	}

	return false, 0, nil
}
