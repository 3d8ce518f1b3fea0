package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carmarket/internal/platform/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// QueryCache memoizes composed query results in Redis. Entries are
// keyed by (operation, parameter hash, operation version); invalidation
// bumps the operation's version counter, which orphans every entry for
// that operation at once and lets them age out via TTL.
type QueryCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

func NewQueryCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    ttl,
		logger: log.Named("QueryCache"),
	}
}

func paramsHash(params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal cache params: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:8]), nil
}

func (c *QueryCache) versionKey(op string) string {
	return "q:ver:" + op
}

func (c *QueryCache) entryKey(ctx context.Context, op string, params any) (string, error) {
	hash, err := paramsHash(params)
	if err != nil {
		return "", err
	}
	version, err := c.client.Get(ctx, c.versionKey(op)).Result()
	if errors.Is(err, redis.Nil) {
		version = "0"
	} else if err != nil {
		return "", fmt.Errorf("redis get version: %w", err)
	}
	return fmt.Sprintf("q:%s:v%s:%s", op, version, hash), nil
}

// Get looks up the cached value for (op, params). A miss is not an
// error; Redis failures are surfaced so the caller can decide to fall
// through to the store.
func (c *QueryCache) Get(ctx context.Context, op string, params any, dest any) (bool, error) {
	key, err := c.entryKey(ctx, op, params)
	if err != nil {
		return false, err
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

func (c *QueryCache) Set(ctx context.Context, op string, params any, value any) error {
	key, err := c.entryKey(ctx, op, params)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate bumps each operation's version counter. Old entries stay
// in Redis until their TTL fires but can never be read again.
func (c *QueryCache) Invalidate(ctx context.Context, ops ...string) error {
	for _, op := range ops {
		if err := c.client.Incr(ctx, c.versionKey(op)).Err(); err != nil {
			return fmt.Errorf("redis incr version for %s: %w", op, err)
		}
		c.logger.Debug("Invalidated cached operation", zap.String("operation", op))
	}
	return nil
}
