package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MarketRelay/internal/model"
)

// RedisSink keeps the latest quote per symbol under a TTL and publishes
// every quote on a per-symbol channel.
type RedisSink struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSink{client: client, ttl: ttl}
}

func LatestKey(symbol string) string { return "latest:" + symbol }

func Channel(symbol string) string { return "quotes:" + symbol }

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) Publish(ctx context.Context, u model.QuoteUpdate) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal quote: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, LatestKey(u.Symbol), data, r.ttl)
		p.Publish(ctx, Channel(u.Symbol), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Latest reads back the cached quote for symbol.
func (r *RedisSink) Latest(ctx context.Context, symbol string) (*model.QuoteUpdate, error) {
	data, err := r.client.Get(ctx, LatestKey(symbol)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to get latest quote: %w", err)
	}
	var u model.QuoteUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal quote: %w", err)
	}
	return &u, nil
}

func (r *RedisSink) Close() error { return r.client.Close() }
