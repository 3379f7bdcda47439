package store

import (
	"strings"
	"sync"

	"github.com/spaolacci/murmur3"
)

// dimCacheShards is the number of lock shards in the dimension-id cache.
const dimCacheShards = 16

// dimCache memoizes committed natural-key → surrogate-id mappings so hot
// dimensions skip the SELECT inside the write transaction. Shard selection
// uses murmur3 of the composite key. Entries are only added after the owning
// transaction commits; dimension rows are never updated or deleted, so a
// cached id stays valid for the life of the process.
type dimCache struct {
	shards [dimCacheShards]dimCacheShard
}

type dimCacheShard struct {
	mu  sync.RWMutex
	ids map[string]int64
}

func newDimCache() *dimCache {
	c := &dimCache{}
	for i := range c.shards {
		c.shards[i].ids = make(map[string]int64)
	}
	return c
}

// cacheKey builds the composite cache key for a table and its natural key
// fields. The unit separator keeps multi-field keys unambiguous.
func cacheKey(table string, fields ...string) string {
	return table + "\x1f" + strings.Join(fields, "\x1f")
}

func (c *dimCache) shardFor(key string) *dimCacheShard {
	return &c.shards[murmur3.Sum32([]byte(key))%dimCacheShards]
}

func (c *dimCache) get(key string) (int64, bool) {
	shard := c.shardFor(key)
	shard.mu.RLock()
	id, ok := shard.ids[key]
	shard.mu.RUnlock()
	return id, ok
}

func (c *dimCache) put(key string, id int64) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	shard.ids[key] = id
	shard.mu.Unlock()
}

// len reports the total number of cached entries, for tests.
func (c *dimCache) len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.RLock()
		n += len(c.shards[i].ids)
		c.shards[i].mu.RUnlock()
	}
	return n
}
