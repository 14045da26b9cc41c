package http

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type listingEntry struct {
	uris     []string
	storedAt time.Time
}

// ListingCache memoizes blob listings per prefix. Listings change rarely
// during a batch; a short TTL keeps the blob browser snappy without serving
// stale results for long.
type ListingCache struct {
	cache *lru.Cache[string, listingEntry]
	ttl   time.Duration
}

// NewListingCache creates a cache holding up to size prefixes for ttl each.
func NewListingCache(size int, ttl time.Duration) (*ListingCache, error) {
	if size <= 0 {
		size = 128
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	cache, err := lru.New[string, listingEntry](size)
	if err != nil {
		return nil, err
	}
	return &ListingCache{cache: cache, ttl: ttl}, nil
}

// Get returns the cached listing for prefix when it is still fresh.
func (c *ListingCache) Get(prefix string) ([]string, bool) {
	entry, ok := c.cache.Get(prefix)
	if !ok {
		return nil, false
	}
	if time.Since(entry.storedAt) > c.ttl {
		c.cache.Remove(prefix)
		return nil, false
	}
	return entry.uris, true
}

// Put stores a listing for prefix.
func (c *ListingCache) Put(prefix string, uris []string) {
	c.cache.Add(prefix, listingEntry{uris: uris, storedAt: time.Now()})
}

// Invalidate drops all cached listings.
func (c *ListingCache) Invalidate() {
	c.cache.Purge()
}
