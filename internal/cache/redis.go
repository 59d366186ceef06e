package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nitesh/exchange_reviews/pkg/models"
)

const keyPrefix = "reviews:aggregate:"

// RedisCache shares aggregates between service replicas.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to addr and pings it once.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	if addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, entity string) (models.AggregateView, bool, error) {
	raw, err := r.rdb.Get(ctx, keyPrefix+entity).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AggregateView{}, false, nil
	}
	if err != nil {
		return models.AggregateView{}, false, fmt.Errorf("redis get %s: %w", entity, err)
	}
	var view models.AggregateView
	if err := json.Unmarshal(raw, &view); err != nil {
		// a corrupt entry is treated as a miss and overwritten on the next Set
		return models.AggregateView{}, false, nil
	}
	return view, true, nil
}

func (r *RedisCache) Set(ctx context.Context, view models.AggregateView) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, keyPrefix+view.EntityName, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", view.EntityName, err)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, entity string) error {
	if err := r.rdb.Del(ctx, keyPrefix+entity).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", entity, err)
	}
	return nil
}

func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
