package creds

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"superpaste/svc/util"
)

// Cache memoises secrets for ttl and collapses concurrent lookups of the
// same key into a single provider call.
type Cache struct {
	provider Provider
	ttl      time.Duration
	group    singleflight.Group
	mu       sync.Mutex
	entries  map[string]cachedSecret
	stopped  bool
	now      func() time.Time
}

type cachedSecret struct {
	value     []byte
	expiresAt time.Time
}

func NewCache(p Provider, ttl time.Duration) *Cache {
	return &Cache{
		provider: p,
		ttl:      ttl,
		entries:  make(map[string]cachedSecret),
		now:      time.Now,
	}
}

func (c *Cache) GetSecret(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return "", ErrProviderUnavailable
	}
	if e, ok := c.entries[key]; ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		return string(e.value), nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		val, err := c.provider.GetSecret(ctx, key)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		if !c.stopped {
			c.entries[key] = cachedSecret{value: []byte(val), expiresAt: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop wipes cached values. Later lookups fail with ErrProviderUnavailable.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	for k, e := range c.entries {
		util.Wipe(e.value)
		delete(c.entries, k)
	}
}
