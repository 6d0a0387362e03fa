package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultAccountKeyPrefix namespaces account snapshots in Redis
const DefaultAccountKeyPrefix = "loyalty:account:"

// RedisAccountCache implements loyalty.AccountCache on Redis.
// Snapshots are shared by every service instance.
type RedisAccountCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection with a PING
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisAccountCache wraps an existing client. A non-positive ttl uses
// loyalty.DefaultCacheTTL.
func NewRedisAccountCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisAccountCache {
	if ttl <= 0 {
		ttl = loyalty.DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisAccountCache{
		client:    client,
		keyPrefix: DefaultAccountKeyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *RedisAccountCache) key(customerID string) string {
	return c.keyPrefix + customerID
}

// Get returns the cached account, or (nil, nil) on a miss.
// A snapshot that cannot be decoded is removed and reported as a miss.
func (c *RedisAccountCache) Get(ctx context.Context, customerID string) (*loyalty.Account, error) {
	key := c.key(customerID)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s from cache: %w", customerID, err)
	}

	account, err := decodeAccount(data)
	if err != nil {
		c.logger.Warn("Discarding corrupted account cache entry",
			zap.String("key", key),
			zap.Error(err),
		)
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			c.logger.Warn("Failed to delete corrupted cache entry", zap.String("key", key), zap.Error(delErr))
		}
		return nil, nil
	}
	return account, nil
}

// Put stores an account snapshot with the configured TTL
func (c *RedisAccountCache) Put(ctx context.Context, account *loyalty.Account) error {
	if account == nil {
		return nil
	}
	data, err := encodeAccount(account)
	if err != nil {
		return fmt.Errorf("failed to encode account %s: %w", account.CustomerID(), err)
	}
	if err := c.client.Set(ctx, c.key(account.CustomerID()), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write account %s to cache: %w", account.CustomerID(), err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *RedisAccountCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Kind identifies the backend in health output
func (c *RedisAccountCache) Kind() string { return KindRedis }

// Close closes the Redis client
func (c *RedisAccountCache) Close() error {
	return c.client.Close()
}

var _ AccountCache = (*RedisAccountCache)(nil)
