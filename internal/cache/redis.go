// Package cache keeps terminal transfer outcomes in Redis so replays of a
// reference number can be answered without a database round trip.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/punchamoorthee/acidbank/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when no outcome is cached for a reference.
var ErrMiss = errors.New("cache miss")

const keyPrefix = "bank:txn:ref:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// OutcomeCache stores transaction records keyed by reference number.
// Records are immutable, so the first write wins and entries only expire.
type OutcomeCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewOutcomeCache(client redis.Cmdable, ttl time.Duration) *OutcomeCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &OutcomeCache{client: client, ttl: ttl}
}

func (c *OutcomeCache) Get(ctx context.Context, reference string) (*domain.Transaction, error) {
	val, err := c.client.Get(ctx, keyPrefix+reference).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", reference, err)
	}

	var txn domain.Transaction
	if err := json.Unmarshal(val, &txn); err != nil {
		return nil, fmt.Errorf("decode cached outcome %s: %w", reference, err)
	}
	return &txn, nil
}

func (c *OutcomeCache) Set(ctx context.Context, txn *domain.Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	if err := c.client.SetNX(ctx, keyPrefix+txn.Reference, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", txn.Reference, err)
	}
	return nil
}

// Ping verifies the connection at startup.
func (c *OutcomeCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
