package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis check-in handling must never stall on the cache, so every timeout
// is short; the queue and stats writers retry on their own schedule.
const (
	redisDialTimeout = 2 * time.Second
	redisOpTimeout   = time.Second
)

// Redis holds the shared client behind the check-in event queue, the
// per-session stats counters, and the health endpoint.
type Redis struct {
	Client *redis.Client
}

func NewRedis(addr string) *Redis {
	return &Redis{Client: redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisOpTimeout,
		WriteTimeout: redisOpTimeout,
	})}
}

// Healthy reports whether redis answers a ping. A nil receiver or client
// counts as unhealthy so wiring mistakes show up on /healthz.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

func (r *Redis) Close() error {
	if r == nil || r.Client == nil {
		return nil
	}
	return r.Client.Close()
}
