package resolver

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"stream-proxy-go/pkg/types"
)

// Cache holds successful resolutions keyed by StreamRequest.Key.
type Cache struct {
	lru *expirable.LRU[string, types.Resolution]
}

// NewCache returns a cache of at most size entries that expire after ttl.
// It returns nil when ttl or size is not positive, and a nil *Cache is a
// valid always-missing cache.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, types.Resolution](size, nil, ttl)}
}

// Get returns the cached resolution for key.
func (c *Cache) Get(key string) (types.Resolution, bool) {
	if c == nil {
		return types.Resolution{}, false
	}
	return c.lru.Get(key)
}

// Add stores res under key.
func (c *Cache) Add(key string, res types.Resolution) {
	if c == nil {
		return
	}
	c.lru.Add(key, res)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
