// Package inspectcache bounds the number of outstanding Inspect calls a
// fleet sweep has to make. inspecting a container is the single most
// expensive call the core makes per instance (it pulls the full container
// JSON, not the cheap summary from List), and spec.md §4.B notes the exact
// same detail is asked for again on every subsequent sweep until the
// container's coarse status changes. caching on (node, container id,
// coarse status) means a container that is just sitting there "Up" never
// pays for a re-inspect, but the moment it exits — or gets GC'd and a new
// container reuses the name — the next sweep takes a clean cache miss.
package inspectcache

import (
	"github.com/docker/docker/api/types/container"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one cached inspection result. CoarseStatus is part of the
// key rather than a plain invalidation trigger so that a state transition
// (eg "Up" -> "Exited") is itself a cache miss, with no separate
// invalidation bookkeeping required.
type Key struct {
	Node         string
	ContainerID  string
	CoarseStatus string
}

// Cache is a bounded, concurrency-safe (the underlying lru.Cache holds its
// own mutex) store of container inspection results.
type Cache struct {
	inner *lru.Cache[Key, container.InspectResponse]
}

// New builds a Cache holding at most size entries. callers configure size
// from config.Config.InspectionCacheSize (spec.md §6).
func New(size int) (*Cache, error) {
	inner, err := lru.New[Key, container.InspectResponse](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached inspection result for key, if present.
func (c *Cache) Get(key Key) (container.InspectResponse, bool) {
	return c.inner.Get(key)
}

// Put stores an inspection result under key, evicting the least recently
// used entry if the cache is full.
func (c *Cache) Put(key Key, details container.InspectResponse) {
	c.inner.Add(key, details)
}

// Len reports the current number of cached entries, useful for metrics/
// debug logging.
func (c *Cache) Len() int {
	return c.inner.Len()
}
