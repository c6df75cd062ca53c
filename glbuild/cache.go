package glbuild

import (
	"sync"

	"github.com/soypat/sdfgraph"
)

// CacheKey identifies a cached artifact by the component of a top level stage item
// or of a standalone component.
type CacheKey = sdfgraph.ComponentID

// Cache holds compiled artifacts keyed by stable component identity. An entry is
// valid only for the stamp it was stored with; callers derive stamps from component
// versions, see [sdfgraph.Registry.Stamp]. Cache is safe for concurrent use by a
// single writer and many readers.
type Cache struct {
	mu sync.RWMutex
	m  map[CacheKey]cacheEntry
}

type cacheEntry struct {
	art   *Artifact
	stamp uint64
}

// Get returns the artifact stored for key if it was stored with stamp.
func (c *Cache) Get(key CacheKey, stamp uint64) (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.m[key]
	if !ok || e.stamp != stamp {
		return nil, false
	}
	return e.art, true
}

// Put stores art for key and returns the artifact it replaced, if any, so that the
// caller can release its resources.
func (c *Cache) Put(key CacheKey, stamp uint64, art *Artifact) (old *Artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[CacheKey]cacheEntry)
	}
	if e, ok := c.m[key]; ok && e.art != art {
		old = e.art
	}
	c.m[key] = cacheEntry{art: art, stamp: stamp}
	return old
}

// Invalidate drops the entry of key and returns its artifact.
func (c *Cache) Invalidate(key CacheKey) *Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil
	}
	delete(c.m, key)
	return e.art
}

// Len returns the amount of cached artifacts.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
