package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/contentsquare/reqengine/config"
	"github.com/redis/go-redis/v9"
)

const (
	redisGetTimeout   = 1 * time.Second
	redisPutTimeout   = 2 * time.Second
	redisStatsTimeout = 500 * time.Millisecond
)

// redisDisk is the redis DiskStore backend, adapted from the teacher's
// cache/redis_cache.go and clients/redis.go.
type redisDisk struct {
	client         redis.UniversalClient
	obfuscationKey string
	ttl            time.Duration
}

// NewRedisClient builds a redis.UniversalClient and verifies connectivity,
// matching the teacher's clients.NewRedisClient.
func NewRedisClient(cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addresses,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DBIndex,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisGetTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to reach redis: %w", err)
	}
	return client, nil
}

func newRedisDisk(client redis.UniversalClient, ttl time.Duration, obfuscationKey string) *redisDisk {
	return &redisDisk{client: client, ttl: ttl, obfuscationKey: obfuscationKey}
}

func (r *redisDisk) Get(key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisGetTimeout)
	defer cancel()

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMissing
	}
	if err != nil {
		return nil, ErrMissing
	}

	e, err := decode(val, r.obfuscationKey)
	if err != nil {
		_ = r.client.Del(context.Background(), key).Err()
		return nil, ErrMissing
	}
	return e, nil
}

func (r *redisDisk) Set(e *Entry) error {
	raw, err := encode(e, r.obfuscationKey)
	if err != nil {
		return err
	}

	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		ttl = r.ttl
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPutTimeout)
	defer cancel()
	return r.client.Set(ctx, e.Key, raw, ttl).Err()
}

func (r *redisDisk) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisPutTimeout)
	defer cancel()
	return r.client.Del(ctx, key).Err()
}

func (r *redisDisk) Clear() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisPutTimeout)
	defer cancel()
	return r.client.FlushDB(ctx).Err()
}

func (r *redisDisk) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), redisStatsTimeout)
	defer cancel()
	n, _ := r.client.DBSize(ctx).Result()
	return Stats{Items: uint64(n)}
}

func (r *redisDisk) Close() error {
	return r.client.Close()
}
