package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
	"github.com/loyalty/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Cache backend kinds reported by Kind
const (
	KindRedis    = "redis"
	KindMemory   = "memory"
	KindDisabled = "disabled"
)

// AccountCache is a loyalty.AccountCache that can report its health and be closed
type AccountCache interface {
	loyalty.AccountCache
	Ping(ctx context.Context) error
	Kind() string
	Close() error
}

// AccountCacheFactory creates the account cache based on configuration
type AccountCacheFactory struct {
	redisConfig           config.RedisConfig
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// AccountCacheFactoryOption is a functional option for configuring the factory
type AccountCacheFactoryOption func(*AccountCacheFactory)

// WithLogger sets the logger for the factory and the caches it builds
func WithLogger(logger *zap.Logger) AccountCacheFactoryOption {
	return func(f *AccountCacheFactory) {
		f.logger = logger
	}
}

// WithTTL sets how long snapshots stay cached
func WithTTL(ttl time.Duration) AccountCacheFactoryOption {
	return func(f *AccountCacheFactory) {
		f.ttl = ttl
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to a
// process-local cache. Defaults to cfg.FallbackToMemory.
func WithInMemoryFallback(allow bool) AccountCacheFactoryOption {
	return func(f *AccountCacheFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewAccountCacheFactory creates a new factory
func NewAccountCacheFactory(cfg config.RedisConfig, opts ...AccountCacheFactoryOption) *AccountCacheFactory {
	f := &AccountCacheFactory{
		redisConfig:           cfg,
		ttl:                   loyalty.DefaultCacheTTL,
		logger:                zap.NewNop(),
		allowInMemoryFallback: cfg.FallbackToMemory,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateRedisCache connects to Redis and returns a Redis-backed cache
func (f *AccountCacheFactory) CreateRedisCache(ctx context.Context) (*RedisAccountCache, error) {
	client, err := NewRedisClient(ctx, RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err != nil {
		return nil, err
	}
	return NewRedisAccountCache(client, f.ttl, f.logger.Named("account_cache")), nil
}

// CreateCache picks the cache for the service:
// Redis disabled gives a NopAccountCache; Redis unreachable gives an
// InMemoryAccountCache when fallback is allowed and an error otherwise.
//
// WARNING: in-memory caches are not shared between instances, so a snapshot can
// outlive a write made elsewhere for up to the TTL.
func (f *AccountCacheFactory) CreateCache(ctx context.Context) (AccountCache, error) {
	if !f.redisConfig.Enabled {
		f.logger.Info("Account cache disabled")
		return NopAccountCache{}, nil
	}

	c, err := f.CreateRedisCache(ctx)
	if err == nil {
		f.logger.Info("Using Redis account cache",
			zap.String("addr", f.redisConfig.Addr()),
			zap.Duration("ttl", f.ttl),
		)
		return c, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis account cache unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory account cache. "+
		"Cached balances are not shared between instances.",
		zap.Error(err),
	)
	return NewInMemoryAccountCache(f.ttl, time.Minute), nil
}

// NopAccountCache always misses and discards writes
type NopAccountCache struct{}

func (NopAccountCache) Get(context.Context, string) (*loyalty.Account, error) { return nil, nil }
func (NopAccountCache) Put(context.Context, *loyalty.Account) error           { return nil }
func (NopAccountCache) Ping(context.Context) error                             { return nil }
func (NopAccountCache) Kind() string                                           { return KindDisabled }
func (NopAccountCache) Close() error                                           { return nil }

var _ AccountCache = NopAccountCache{}
