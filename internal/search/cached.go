package search

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ppiankov/veracity/internal/cache"
)

// CachedProvider wraps a Provider with a layered response cache so that
// repeated queries (common when similar claims are checked back to back)
// do not burn search API quota.
type CachedProvider struct {
	inner Provider
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedProvider wraps inner with the given cache.
func NewCachedProvider(inner Provider, c cache.Cache, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, cache: c, ttl: ttl}
}

// Name returns the wrapped provider name
func (p *CachedProvider) Name() string {
	return p.inner.Name()
}

// Search serves from cache when possible, otherwise delegates and
// stores the response. Failed searches are never cached.
func (p *CachedProvider) Search(ctx context.Context, query string) ([]Result, error) {
	key := cache.QueryKey(p.inner.Name(), query)

	if data, found := p.cache.Get(key); found {
		var results []Result
		if err := json.Unmarshal(data, &results); err == nil {
			return results, nil
		}
		// Corrupt entry: drop it and fall through to a fresh search
		_ = p.cache.Delete(key)
	}

	results, err := p.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(results); err == nil {
		_ = p.cache.Set(key, data, p.ttl)
	}

	return results, nil
}
