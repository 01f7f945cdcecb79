package currency

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps quotes in process. go-cache evicts entries after twice
// the staleness bound; freshness itself is judged against the injected clock
// by the Normalizer, so tests can move time without sleeping.
type MemoryCache struct {
	items *gocache.Cache
}

// NewMemoryCache creates a cache that retains entries for retain.
func NewMemoryCache(retain time.Duration) *MemoryCache {
	return &MemoryCache{items: gocache.New(retain, retain)}
}

func (c *MemoryCache) Get(_ context.Context, code string) (Rate, bool, error) {
	v, found := c.items.Get(code)
	if !found {
		return Rate{}, false, nil
	}
	r, ok := v.(Rate)
	return r, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, code string, rate Rate) error {
	c.items.Set(code, rate, gocache.DefaultExpiration)
	return nil
}
