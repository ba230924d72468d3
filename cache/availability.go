/*
Package cache provides an explicitly time-boxed availability cache.

PURPOSE:
  Day classification is recomputed on demand by the engine; this package is
  where callers park the result for a short TTL so a calendar render does
  not hammer the store. The engine core never reads or writes this cache.
  Staleness is bounded by the TTL and by explicit invalidation on every
  write path (submit, cancel, allotment change).

IMPLEMENTATIONS:
  Redis: shared across instances, TTL enforced server-side.
  Nop:   for single-instance or test setups; every lookup misses.

SEE ALSO:
  - api/handlers.go: the only consumer
*/
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warp/leave-scheduler/engine"
)

// AvailabilityCache caches one classification per (calendar, date).
type AvailabilityCache interface {
	// Get returns the cached classification and whether it was present.
	Get(ctx context.Context, cal engine.CalendarID, date engine.Day) (engine.Availability, bool, error)

	// Set stores a classification for the configured TTL.
	Set(ctx context.Context, cal engine.CalendarID, date engine.Day, avail engine.Availability) error

	// Invalidate drops the entry for (calendar, date).
	Invalidate(ctx context.Context, cal engine.CalendarID, date engine.Day) error
}

// =============================================================================
// REDIS CACHE
// =============================================================================

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects and pings the server so a bad address fails at startup,
// not on the first calendar render.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func key(cal engine.CalendarID, date engine.Day) string {
	return fmt.Sprintf("avail:%s:%s", cal, date)
}

func (r *Redis) Get(ctx context.Context, cal engine.CalendarID, date engine.Day) (engine.Availability, bool, error) {
	val, err := r.client.Get(ctx, key(cal, date)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return engine.Availability(val), true, nil
}

func (r *Redis) Set(ctx context.Context, cal engine.CalendarID, date engine.Day, avail engine.Availability) error {
	return r.client.Set(ctx, key(cal, date), string(avail), r.ttl).Err()
}

func (r *Redis) Invalidate(ctx context.Context, cal engine.CalendarID, date engine.Day) error {
	return r.client.Del(ctx, key(cal, date)).Err()
}

var _ AvailabilityCache = (*Redis)(nil)

// =============================================================================
// NOP CACHE
// =============================================================================

// Nop always misses. Used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(ctx context.Context, cal engine.CalendarID, date engine.Day) (engine.Availability, bool, error) {
	return "", false, nil
}

func (Nop) Set(ctx context.Context, cal engine.CalendarID, date engine.Day, avail engine.Availability) error {
	return nil
}

func (Nop) Invalidate(ctx context.Context, cal engine.CalendarID, date engine.Day) error {
	return nil
}

var _ AvailabilityCache = Nop{}
