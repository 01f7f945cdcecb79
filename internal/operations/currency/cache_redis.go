package currency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCache shares quotes between replicas. Each code is a hash
// {rate, fetched_at} that expires after retain.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
	retain    time.Duration
}

// NewRedisCache creates a cache under "amlcore:rates:<reporting>:".
func NewRedisCache(client redis.UniversalClient, reporting string, retain time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		keyPrefix: "amlcore:rates:" + reporting + ":",
		retain:    retain,
	}
}

func (c *RedisCache) key(code string) string {
	return c.keyPrefix + code
}

func (c *RedisCache) Get(ctx context.Context, code string) (Rate, bool, error) {
	fields, err := c.client.HGetAll(ctx, c.key(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Rate{}, false, nil
		}
		return Rate{}, false, fmt.Errorf("read cached rate: %w", err)
	}
	if len(fields) == 0 {
		return Rate{}, false, nil
	}
	value, err := decimal.NewFromString(fields["rate"])
	if err != nil {
		return Rate{}, false, fmt.Errorf("parse cached rate: %w", err)
	}
	fetchedAt, err := time.Parse(time.RFC3339Nano, fields["fetched_at"])
	if err != nil {
		return Rate{}, false, fmt.Errorf("parse cached rate time: %w", err)
	}
	return Rate{Value: value, FetchedAt: fetchedAt}, true, nil
}

func (c *RedisCache) Set(ctx context.Context, code string, rate Rate) error {
	key := c.key(code)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"rate", rate.Value.String(),
			"fetched_at", rate.FetchedAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.Expire(ctx, key, c.retain)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write cached rate: %w", err)
	}
	return nil
}
