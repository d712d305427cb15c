package gazetteer

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/couchcryptid/quake-intensity-service/internal/domain"
	"github.com/couchcryptid/quake-intensity-service/internal/observability"
)

// Match is the result of a nearest-region lookup.
type Match struct {
	Region     domain.RegionKey `json:"region"`
	DistanceKm float64          `json:"distance_km"`
}

// CachedLocator resolves coordinates to districts through an in-memory LRU
// cache. Entries are keyed by gazetteer version, so a reload never serves a
// stale match.
type CachedLocator struct {
	store   *Store
	cache   *lruCache[Match]
	metrics *observability.Metrics
}

// NewCachedLocator creates a cached nearest-region resolver over store.
func NewCachedLocator(store *Store, maxEntries int, metrics *observability.Metrics) *CachedLocator {
	return &CachedLocator{
		store:   store,
		cache:   newLRUCache[Match](maxEntries),
		metrics: metrics,
	}
}

// Nearest resolves a coordinate to its nearest district. It waits for the
// first gazetteer load. The boolean is false only when the gazetteer is empty.
func (l *CachedLocator) Nearest(ctx context.Context, lat, lon float64) (Match, bool, error) {
	g, err := l.store.Wait(ctx)
	if err != nil {
		return Match{}, false, err
	}

	// Exact bits: a rounded key would hand one query's distance to its neighbours.
	key := fmt.Sprintf("%d:%x,%x", g.Version(), math.Float64bits(lat), math.Float64bits(lon))
	if m, ok := l.cache.get(key); ok {
		l.metrics.LocatorCache.WithLabelValues("hit").Inc()
		return m, true, nil
	}
	l.metrics.LocatorCache.WithLabelValues("miss").Inc()

	region, distance, ok := g.NearestRegion(lat, lon)
	if !ok {
		return Match{Region: domain.UnknownRegion}, false, nil
	}
	m := Match{Region: region, DistanceKm: distance}
	l.cache.put(key, m)
	return m, true, nil
}

// lruCache is a simple thread-safe LRU cache.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry[V]
	head       *entry[V] // most recently used
	tail       *entry[V] // least recently used
}

type entry[V any] struct {
	key   string
	value V
	prev  *entry[V]
	next  *entry[V]
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &lruCache[V]{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry[V]),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache[V]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache[V]) moveToFront(e *entry[V]) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache[V]) addToFront(e *entry[V]) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache[V]) remove(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache[V]) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
