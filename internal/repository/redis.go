package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"warehub/internal/config"
	"warehub/internal/models"

	"github.com/redis/go-redis/v9"
)

type RedisPricingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisPricingCache(client *redis.Client, ttl time.Duration) *RedisPricingCache {
	return &RedisPricingCache{
		client: client,
		ttl:    ttl,
	}
}

func pricingKey(warehouseID int64) string {
	return fmt.Sprintf("pricing:%d", warehouseID)
}

// GetPricing returns nil without error on a cache miss.
func (r *RedisPricingCache) GetPricing(ctx context.Context, warehouseID int64) (*models.PricingSnapshot, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, pricingKey(warehouseID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pricing from redis: %w", err)
	}

	var snapshot models.PricingSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pricing: %w", err)
	}

	return &snapshot, nil
}

func (r *RedisPricingCache) SetPricing(ctx context.Context, snapshot *models.PricingSnapshot) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}

	if err := r.client.Set(ctx, pricingKey(snapshot.WarehouseID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set pricing in redis: %w", err)
	}

	return nil
}

func (r *RedisPricingCache) InvalidatePricing(ctx context.Context, warehouseID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Del(ctx, pricingKey(warehouseID)).Err(); err != nil {
		return fmt.Errorf("failed to delete pricing from redis: %w", err)
	}
	return nil
}

func (r *RedisPricingCache) CheckRateLimit(ctx context.Context, actorID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("rate_limit:%d", actorID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
