package payment

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// Guard hands out a short-lived claim on a Casso transaction id so that two
// deliveries of the same transaction are not matched side by side.
type Guard interface {
	Claim(ctx context.Context, cassoID string) (bool, error)
}

type RedisGuard struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisGuard{rdb: rdb, ttl: ttl}
}

func (g *RedisGuard) Claim(ctx context.Context, cassoID string) (bool, error) {
	return g.rdb.SetNX(ctx, "casso:"+cassoID, "processing", g.ttl).Result()
}
