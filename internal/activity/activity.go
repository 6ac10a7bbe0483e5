// Package activity implements the Activity Tracker: a thin facade over a
// Redis sorted set whose score is a millisecond timestamp and member is a
// user id, used by the Cleanup Controller to find subdomain owners who
// have gone silent.
package activity

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v7"
	"github.com/jmhodges/clock"

	"github.com/nsl-router/nsl-router/internal/apperrors"
)

// Key is the sorted-set key activity entries live under.
const Key = "domains:activity"

// Tracker is the Activity Tracker.
type Tracker struct {
	rdb   *redis.Client
	clock clock.Clock
}

// New builds a Tracker over the given Redis client.
func New(rdb *redis.Client, clk clock.Clock) *Tracker {
	return &Tracker{rdb: rdb, clock: clk}
}

// Update overwrites userID's entry with the current time.
func (t *Tracker) Update(ctx context.Context, userID string) error {
	score := float64(t.clock.Now().UnixNano() / int64(1_000_000))
	if err := t.rdb.WithContext(ctx).ZAdd(Key, &redis.Z{Score: score, Member: userID}).Err(); err != nil {
		return apperrors.InfrastructureError("updating activity entry: %s", err)
	}
	return nil
}

// GetInactiveSince returns every member whose score is at most
// now - days*86400000.
func (t *Tracker) GetInactiveSince(ctx context.Context, days int) ([]string, error) {
	cutoff := t.clock.Now().UnixNano()/int64(1_000_000) - int64(days)*86400000
	members, err := t.rdb.WithContext(ctx).ZRangeByScore(Key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, apperrors.InfrastructureError("querying inactive entries: %s", err)
	}
	return members, nil
}

// GetActiveSince returns every member whose score is greater than
// now - days*86400000.
func (t *Tracker) GetActiveSince(ctx context.Context, days int) ([]string, error) {
	cutoff := t.clock.Now().UnixNano()/int64(1_000_000) - int64(days)*86400000
	members, err := t.rdb.WithContext(ctx).ZRangeByScore(Key, &redis.ZRangeBy{
		Min: fmt.Sprintf("(%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, apperrors.InfrastructureError("querying active entries: %s", err)
	}
	return members, nil
}

// Remove deletes userID's entry, if any.
func (t *Tracker) Remove(ctx context.Context, userID string) error {
	if err := t.rdb.WithContext(ctx).ZRem(Key, userID).Err(); err != nil {
		return apperrors.InfrastructureError("removing activity entry: %s", err)
	}
	return nil
}

// GetTimestamp returns userID's score in milliseconds, or nil if absent.
func (t *Tracker) GetTimestamp(ctx context.Context, userID string) (*int64, error) {
	score, err := t.rdb.WithContext(ctx).ZScore(Key, userID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.InfrastructureError("fetching activity timestamp: %s", err)
	}
	millis := int64(score)
	return &millis, nil
}
