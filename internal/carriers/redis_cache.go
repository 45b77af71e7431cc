package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// RedisRateCache shares carrier rates across instances through Redis.
type RedisRateCache struct {
	client redis.UniversalClient
	prefix string
}

var _ RateCache = (*RedisRateCache)(nil)

// NewRedisRateCache wraps an existing client. The caller owns the client.
func NewRedisRateCache(client redis.UniversalClient, prefix string) (*RedisRateCache, error) {
	if client == nil {
		return nil, errors.New("redis rate cache: client is required")
	}
	if prefix == "" {
		prefix = "quote:"
	}
	return &RedisRateCache{client: client, prefix: prefix}, nil
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis rate cache: parse url: %w", err)
	}
	return redis.NewClient(opts), nil
}

type cachedRate struct {
	Carrier           string     `json:"carrier"`
	ServiceCode       string     `json:"serviceCode"`
	ServiceName       string     `json:"serviceName"`
	CostCents         int64      `json:"costCents"`
	DeliveryDays      *int       `json:"deliveryDays,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

func (c *RedisRateCache) Get(ctx context.Context, key string) ([]domain.Rate, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis rate cache: get: %w", err)
	}
	var stored []cachedRate
	if err := json.Unmarshal(data, &stored); err != nil {
		_ = c.client.Del(ctx, c.prefix+key).Err()
		return nil, false, fmt.Errorf("redis rate cache: decode: %w", err)
	}
	rates := make([]domain.Rate, 0, len(stored))
	for _, r := range stored {
		rates = append(rates, domain.Rate(r))
	}
	return rates, true, nil
}

func (c *RedisRateCache) Set(ctx context.Context, key string, rates []domain.Rate, ttl time.Duration) error {
	stored := make([]cachedRate, 0, len(rates))
	for _, r := range rates {
		stored = append(stored, cachedRate(r))
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("redis rate cache: encode: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis rate cache: set: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (c *RedisRateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
