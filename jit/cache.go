package jit

import (
	"github.com/hashicorp/golang-lru/simplelru"
)

// EvictFunc observes every artifact leaving the cache, whether by
// capacity pressure, explicit invalidation, or Purge. The engine uses it
// to return the function to the untried pool.
type EvictFunc func(offset uint32, art *Artifact)

// CodeCache holds compiled artifacts under a byte budget with LRU
// replacement. Keys are function start offsets. The cache does no
// locking of its own; the engine serializes access and artifacts, once
// fetched, execute without touching the cache.
type CodeCache struct {
	capacity int
	used     int
	lru      *simplelru.LRU
	onEvict  EvictFunc

	evictions uint64
}

// NewCodeCache creates a cache with the given byte budget. onEvict may be
// nil.
func NewCodeCache(capacityBytes int, onEvict EvictFunc) (*CodeCache, error) {
	if capacityBytes <= 0 {
		return nil, &BackendError{Backend: "cache", Detail: "capacity must be positive"}
	}
	c := &CodeCache{
		capacity: capacityBytes,
		onEvict:  onEvict,
	}
	// simplelru wants an entry cap; artifacts are at least 64 bytes, so
	// this can never bind before the byte budget does.
	lru, err := simplelru.NewLRU(capacityBytes/64+1, c.evicted)
	if err != nil {
		return nil, err
	}
	c.lru = lru
	return c, nil
}

// evicted is the simplelru callback for every removal path.
func (c *CodeCache) evicted(key, value interface{}) {
	art := value.(*Artifact)
	c.used -= art.Size
	c.evictions++
	if c.onEvict != nil {
		c.onEvict(key.(uint32), art)
	}
}

// Insert stores an artifact, evicting least recently used entries until
// the byte budget holds. An artifact larger than the whole budget is
// rejected with ErrTooLarge and the cache is left untouched.
func (c *CodeCache) Insert(art *Artifact) error {
	if art.Size > c.capacity {
		return ErrTooLarge
	}
	if c.lru.Contains(art.Start) {
		c.lru.Remove(art.Start) // replace: release the old artifact first
	}
	c.used += art.Size
	c.lru.Add(art.Start, art)
	for c.used > c.capacity {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

// Get returns the artifact for offset, marking it most recently used.
func (c *CodeCache) Get(offset uint32) (*Artifact, bool) {
	v, ok := c.lru.Get(offset)
	if !ok {
		return nil, false
	}
	return v.(*Artifact), true
}

// Contains reports residency without disturbing recency.
func (c *CodeCache) Contains(offset uint32) bool {
	return c.lru.Contains(offset)
}

// Invalidate removes the artifact for offset, firing the eviction
// callback. It reports whether anything was removed.
func (c *CodeCache) Invalidate(offset uint32) bool {
	return c.lru.Remove(offset)
}

// Purge empties the cache, firing the eviction callback for every entry.
func (c *CodeCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of resident artifacts.
func (c *CodeCache) Len() int {
	return c.lru.Len()
}

// UsedBytes returns the summed size of resident artifacts.
func (c *CodeCache) UsedBytes() int {
	return c.used
}

// Capacity returns the byte budget.
func (c *CodeCache) Capacity() int {
	return c.capacity
}

// Evictions returns the number of artifacts removed over the cache's
// lifetime, by any path.
func (c *CodeCache) Evictions() uint64 {
	return c.evictions
}

// ResetStats zeroes the eviction counter.
func (c *CodeCache) ResetStats() {
	c.evictions = 0
}
