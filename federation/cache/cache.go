// Package cache stores entity responses keyed by representation, storing
// only responses whose @cacheControl maxAge is positive, using an expirable
// LRU so entries age out after one cache-wide TTL without an explicit sweep.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Key identifies one cached entity fetch: its type, the representation used
// to fetch it, and the exact selection set requested (different selections
// on the same entity are different cache entries).
type Key struct {
	TypeName       string
	Representation string // canonical JSON of the _Any representation
	Selection      string // canonical rendering of the requested fields
}

func BuildKey(typeName string, representation map[string]any, selection string) (Key, error) {
	repJSON, err := json.Marshal(representation)
	if err != nil {
		return Key{}, fmt.Errorf("cache: marshal representation: %w", err)
	}
	sum := sha256.Sum256(repJSON)
	return Key{TypeName: typeName, Representation: fmt.Sprintf("%x", sum), Selection: selection}, nil
}

// Cache is a per-subgraph (or gateway-wide) entity response cache.
type Cache struct {
	entries *lru.LRU[Key, any]
}

// New creates a cache holding up to size entries, each evicted after ttl;
// a shorter maxAge passed to Set does not shorten an entry's lifetime.
func New(size int, ttl time.Duration) *Cache {
	return &Cache{entries: lru.NewLRU[Key, any](size, nil, ttl)}
}

func (c *Cache) Get(key Key) (any, bool) {
	return c.entries.Get(key)
}

// Set stores value if maxAge (from the field's @cacheControl directive) is
// positive; a zero or negative maxAge means the field opted out of caching
// (no-store), so nothing is written. The expirable LRU applies one uniform
// TTL to every entry it holds, so maxAge governs whether we cache at all
// rather than a per-entry expiry finer than the cache's own TTL.
func (c *Cache) Set(key Key, value any, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	c.entries.Add(key, value)
}

func (c *Cache) Purge() {
	c.entries.Purge()
}
