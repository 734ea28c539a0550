package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"formrelay/internal/models"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the list holding journal records.
const DefaultRedisKey = "formrelay:deliveries"

// Redis keeps records as JSON documents in a capped Redis list, newest at
// the head.
type Redis struct {
	client     *redis.Client
	key        string
	maxEntries int
}

// NewRedis connects to the configured server.
func NewRedis(ctx context.Context, cfg models.RedisConfig, maxEntries int) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("Redis address is required for redis journal")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Redis{client: client, key: key, maxEntries: maxEntries}, nil
}

// Record implements Journal.
func (r *Redis) Record(ctx context.Context, d models.Delivery) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode delivery: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.key, data)
		if r.maxEntries > 0 {
			pipe.LTrim(ctx, r.key, 0, int64(r.maxEntries-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append delivery: %w", err)
	}
	return nil
}

// Recent implements Journal.
func (r *Redis) Recent(ctx context.Context, limit int) ([]models.Delivery, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}

	deliveries := make([]models.Delivery, 0, len(items))
	for _, item := range items {
		var d models.Delivery
		if err := json.Unmarshal([]byte(item), &d); err != nil {
			return nil, fmt.Errorf("failed to decode delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// Ping implements Journal.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Journal.
func (r *Redis) Close() error {
	return r.client.Close()
}
