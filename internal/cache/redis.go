package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskify/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

var ErrCacheDown = errors.New("cache unavailable")

type CacheConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

func CacheConfigFrom(cfg *config.Config) *CacheConfig {
	return &CacheConfig{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	}
}

func NewRedisClient(config *CacheConfig) *redis.Client {
	if config == nil {
		config = DefaultCacheConfig()
	}

	return redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})
}

// RedisStore holds short-lived counters. It never stores users, tokens or
// tasks. Every call goes through the circuit breaker so a Redis outage costs
// one fast failure per call instead of a dial timeout.
type RedisStore struct {
	client  *redis.Client
	breaker *CircuitBreaker
	timeout time.Duration
}

func NewRedisStore(client *redis.Client, breaker *CircuitBreaker) *RedisStore {
	if breaker == nil {
		breaker = NewCircuitBreaker(nil)
	}
	return &RedisStore{client: client, breaker: breaker, timeout: 3 * time.Second}
}

func (r *RedisStore) Client() *redis.Client {
	return r.client
}

func (r *RedisStore) Breaker() *CircuitBreaker {
	return r.breaker
}

// Incr increments key and starts its TTL on the first increment, so the
// window is fixed from the first hit.
func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count int64
	err := r.Do(ctx, func(ctx context.Context) error {
		n, err := r.client.Incr(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 1 {
			if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
				return err
			}
		}
		count = n
		return nil
	})
	return count, err
}

// Count reads an integer counter; a missing key counts as zero.
func (r *RedisStore) Count(ctx context.Context, key string) (int64, error) {
	var count int64
	err := r.Do(ctx, func(ctx context.Context) error {
		n, err := r.client.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		count = n
		return nil
	})
	return count, err
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	var ttl time.Duration
	err := r.Do(ctx, func(ctx context.Context) error {
		d, err := r.client.TTL(ctx, key).Result()
		ttl = d
		return err
	})
	return ttl, err
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return r.Do(ctx, func(ctx context.Context) error {
		return r.client.Del(ctx, keys...).Err()
	})
}

// Do runs fn with the store's per-call timeout behind its circuit breaker.
// An open breaker fails fast with ErrCacheDown.
func (r *RedisStore) Do(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	err := r.breaker.Execute(func() error { return fn(ctx) })
	if errors.Is(err, ErrCircuitBreakerOpen) {
		return fmt.Errorf("%w: %v", ErrCacheDown, err)
	}
	return err
}

func (r *RedisStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Stats() map[string]interface{} {
	poolStats := r.client.PoolStats()

	return map[string]interface{}{
		"pool_hits":     poolStats.Hits,
		"pool_misses":   poolStats.Misses,
		"pool_timeouts": poolStats.Timeouts,
		"pool_total":    poolStats.TotalConns,
		"pool_idle":     poolStats.IdleConns,
		"pool_stale":    poolStats.StaleConns,
		"breaker":       r.breaker.GetStats(),
	}
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
