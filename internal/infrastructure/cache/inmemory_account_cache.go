package cache

import (
	"context"
	"sync"
	"time"

	"github.com/loyalty/backend/internal/domain/loyalty"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// InMemoryAccountCache implements loyalty.AccountCache with a process-local map.
// Entries are stored encoded so callers never share an *Account with the cache.
type InMemoryAccountCache struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryAccountCache creates the cache and starts a janitor goroutine
// that sweeps expired entries every cleanupInterval.
func NewInMemoryAccountCache(ttl, cleanupInterval time.Duration) *InMemoryAccountCache {
	if ttl <= 0 {
		ttl = loyalty.DefaultCacheTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	c := &InMemoryAccountCache{
		entries:  make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanupLoop(cleanupInterval)

	return c
}

// Get returns a copy of the cached account, or (nil, nil) on a miss
func (c *InMemoryAccountCache) Get(_ context.Context, customerID string) (*loyalty.Account, error) {
	c.mu.RLock()
	e, ok := c.entries[customerID]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		return nil, nil
	}
	return decodeAccount(e.data)
}

// Put stores an account snapshot
func (c *InMemoryAccountCache) Put(_ context.Context, account *loyalty.Account) error {
	if account == nil {
		return nil
	}
	data, err := encodeAccount(account)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[account.CustomerID()] = memoryEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *InMemoryAccountCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Ping always succeeds
func (c *InMemoryAccountCache) Ping(context.Context) error { return nil }

// Kind identifies the backend in health output
func (c *InMemoryAccountCache) Kind() string { return KindMemory }

// Close stops the janitor. Safe to call multiple times.
func (c *InMemoryAccountCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

func (c *InMemoryAccountCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryAccountCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, id)
		}
	}
}

var _ AccountCache = (*InMemoryAccountCache)(nil)
