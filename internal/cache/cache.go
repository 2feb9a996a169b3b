package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache defines the interface for caching search responses
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// QueryKey generates a cache key for a search query against a provider
func QueryKey(provider, query string) string {
	hash := sha256.Sum256([]byte(provider + "\x00" + query))
	return "veracity:v1:" + hex.EncodeToString(hash[:])
}
