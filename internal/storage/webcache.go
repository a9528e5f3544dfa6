package storage

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// WebCache keeps values like cached responses: bounded in size, and each
// entry expires ttl after it was written.
type WebCache struct {
	cache *expirable.LRU[string, string]
}

// NewWebCache creates a cache of at most size entries living ttl each.
func NewWebCache(size int, ttl time.Duration) *WebCache {
	if size < 1 {
		size = 1
	}
	return &WebCache{cache: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (c *WebCache) Read(ctx context.Context, key string) (string, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *WebCache) Write(ctx context.Context, key, value string) error {
	c.cache.Add(key, value)
	return nil
}

// Purge drops every entry.
func (c *WebCache) Purge() {
	c.cache.Purge()
}
