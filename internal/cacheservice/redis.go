// Copyright 2026 The voicecore Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package cacheservice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const scanBatchSize = 100

// RedisCache implements Cache on top of a Redis backend. Consecutive backend
// failures raise an operator alert once a threshold is crossed; the counter
// resets on the next success and alerts are rate-limited by a cooldown.
type RedisCache struct {
	client *redis.Client

	alertThreshold int
	alertCooldown  time.Duration

	consecutiveFailures atomic.Int64
	healthy             atomic.Bool

	alertMu   sync.Mutex
	lastAlert time.Time
}

// NewRedisCache connects to the Redis backend at redisURL. Connection failure
// is not fatal: the cache starts unhealthy and recovers when Redis does.
func NewRedisCache(redisURL string, alertThreshold int, alertCooldown time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 1
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = 500 * time.Millisecond
	opts.WriteTimeout = 500 * time.Millisecond

	c := &RedisCache{
		client:         redis.NewClient(opts),
		alertThreshold: alertThreshold,
		alertCooldown:  alertCooldown,
	}
	c.healthy.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Warnf("cacheservice: redis not reachable at startup: %v", err)
		c.healthy.Store(false)
	}

	return c, nil
}

// Get returns the stored value or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.recordSuccess()
		return "", ErrCacheMiss
	}
	if err != nil {
		c.recordFailure("get", key, err)
		return "", ErrCacheMiss
	}
	c.recordSuccess()
	return val, nil
}

// Set stores value under key with a TTL. Failures are logged and counted.
func (c *RedisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.recordFailure("set", key, err)
		return
	}
	c.recordSuccess()
}

// Invalidate removes a single key.
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.recordFailure("del", key, err)
		return
	}
	c.recordSuccess()
}

// InvalidatePattern removes all keys matching pattern using incremental SCAN
// and batched deletes. A blocking KEYS sweep is never issued.
func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) {
	var cursor uint64
	var batch []string
	deleted := 0

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			c.recordFailure("scan", pattern, err)
			return
		}
		batch = append(batch, keys...)
		if len(batch) >= scanBatchSize {
			deleted += c.deleteBatch(ctx, batch)
			batch = batch[:0]
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if len(batch) > 0 {
		deleted += c.deleteBatch(ctx, batch)
	}

	c.recordSuccess()
	log.Debugf("cacheservice: invalidated %d keys for pattern %s", deleted, pattern)
}

// Healthy reports whether the last backend operation succeeded.
func (c *RedisCache) Healthy() bool {
	return c.healthy.Load()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) deleteBatch(ctx context.Context, keys []string) int {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.recordFailure("del-batch", "", err)
		return 0
	}
	return len(keys)
}

func (c *RedisCache) recordSuccess() {
	c.consecutiveFailures.Store(0)
	c.healthy.Store(true)
}

func (c *RedisCache) recordFailure(op, key string, err error) {
	c.healthy.Store(false)
	n := c.consecutiveFailures.Add(1)
	log.Warnf("cacheservice: %s %q failed (consecutive=%d): %v", op, key, n, err)

	if int(n) < c.alertThreshold {
		return
	}

	c.alertMu.Lock()
	defer c.alertMu.Unlock()
	if time.Since(c.lastAlert) < c.alertCooldown {
		return
	}
	c.lastAlert = time.Now()
	log.Errorf("cacheservice: ALERT backend failing, %d consecutive errors (latest: %v)", n, err)
}
