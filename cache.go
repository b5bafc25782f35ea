package eduwire

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// DefaultExcludedEndpoints lists path prefixes that must always be read fresh
// for administrative correctness and therefore never enter the cache.
var DefaultExcludedEndpoints = []string{
	"/auth/profile/",
	"/users/",
	"/staff/",
	"/tutors/",
}

const (
	cacheShardCount = 16
	// Per-shard entry cap keeps the cache bounded; on overflow an arbitrary
	// entry is evicted.
	cacheShardCap = 256
)

// InMemoryCache is a sharded in-memory cache keyed by endpoint path.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	shards := make([]*cacheShard, cacheShardCount)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: cacheShardCount,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns a fresh entry for key, dropping it if its expiry has passed.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores an entry. A non-positive ttl means the entry never expires on
// its own and lives until invalidated.
func (c *InMemoryCache) Set(key string, entry *CacheEntry, ttl time.Duration) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	if _, exists := shard.store[key]; !exists && len(shard.store) >= cacheShardCap {
		for victim := range shard.store {
			delete(shard.store, victim)
			break
		}
	}

	shard.store[key] = entry
}

// Invalidate removes a single entry.
func (c *InMemoryCache) Invalidate(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len returns the total number of entries across shards.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// cacheKeyForRequest derives the cache key: the endpoint path including the
// query string.
func cacheKeyForRequest(req *Request) string {
	return req.Path
}

// NewExclusionCacheCondition builds the default cache condition: GET requests
// only, minus the given excluded path prefixes.
func NewExclusionCacheCondition(excluded []string) CacheCondition {
	return func(req *Request) bool {
		if req.Method != "GET" {
			return false
		}
		path := req.Path
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		for _, prefix := range excluded {
			if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
				return false
			}
		}
		return true
	}
}

// DefaultCacheCondition caches GETs outside DefaultExcludedEndpoints.
var DefaultCacheCondition = NewExclusionCacheCondition(DefaultExcludedEndpoints)
