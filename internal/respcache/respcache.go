// Package respcache caches fully built responses under request fingerprints.
// Entries are stored serialized; a fingerprint includes the index generation
// so a rebuilt index can never serve a stale response.
package respcache

import (
	"container/list"
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/csearch/internal/debug"
)

const (
	// DefaultCapacity bounds resident entries.
	DefaultCapacity = 256
	// DefaultTTL bounds entry freshness even without an index rebuild.
	DefaultTTL = 10 * time.Minute
)

// Fingerprint derives the deterministic cache key for one request.
// params must already be normalized; structs marshal with stable field
// order and encoding/json sorts map keys.
func Fingerprint(tool string, params interface{}, workspace string, generation uint64) (uint64, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return 0, err
	}

	h := xxhash.New()
	_, _ = h.WriteString(tool)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(raw)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(workspace)

	var gen [8]byte
	binary.LittleEndian.PutUint64(gen[:], generation)
	_, _ = h.Write(gen[:])

	return h.Sum64(), nil
}

type entry struct {
	key        uint64
	data       []byte
	insertedAt time.Time
	lastAccess time.Time
	expiresAt  time.Time
}

// Cache is a capacity-bounded LRU of serialized responses. Entries are
// immutable once written; Set replaces by key, never mutates in place.
type Cache struct {
	mu       sync.Mutex
	elements map[uint64]*list.Element
	ll       *list.List // front = most recently used
	capacity int
	ttl      time.Duration
	now      func() time.Time

	hits      int64
	misses    int64
	evictions int64
	corrupted int64
}

// Option tunes a Cache.
type Option func(*Cache)

// WithClock substitutes the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a response cache. Non-positive capacity or ttl fall back to
// the defaults.
func New(capacity int, ttl time.Duration, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		elements: make(map[uint64]*list.Element),
		ll:       list.New(),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the cached response for key into out. A missing, expired or
// undecodable entry is a miss; corrupt entries are evicted on the spot.
func (c *Cache) Get(key uint64, out interface{}) bool {
	c.mu.Lock()
	el, ok := c.elements[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return false
	}

	e := el.Value.(*entry)
	now := c.now()
	if !now.Before(e.expiresAt) {
		c.removeLocked(el)
		c.misses++
		c.mu.Unlock()
		return false
	}

	e.lastAccess = now
	c.ll.MoveToFront(el)
	data := e.data
	c.mu.Unlock()

	if err := json.Unmarshal(data, out); err != nil {
		// Treated as a miss, never propagated: the builder recomputes.
		debug.LogCache("evicting corrupt response entry %x: %v\n", key, err)
		c.mu.Lock()
		if el, ok := c.elements[key]; ok {
			c.removeLocked(el)
		}
		c.corrupted++
		c.misses++
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return true
}

// Set stores v under key with the cache's default TTL.
func (c *Cache) Set(key uint64, v interface{}) {
	c.SetTTL(key, v, c.ttl)
}

// SetTTL stores v under key with an explicit TTL. Serialization failures
// are dropped silently; the cache only ever holds decodable entries it
// wrote itself.
func (c *Cache) SetTTL(key uint64, v interface{}, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		debug.LogCache("refusing to cache unserializable response: %v\n", err)
		return
	}
	if ttl <= 0 {
		ttl = c.ttl
	}

	now := c.now()
	e := &entry{
		key:        key,
		data:       data,
		insertedAt: now,
		lastAccess: now,
		expiresAt:  now.Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		// Replace-by-key; the old serialized payload is discarded whole.
		el.Value = e
		c.ll.MoveToFront(el)
		return
	}

	c.elements[key] = c.ll.PushFront(e)
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Invalidate drops the entry for key, if present.
func (c *Cache) Invalidate(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elements[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the resident entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats describes cache effectiveness.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Corrupted int64 `json:"corrupted"`
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   c.ll.Len(),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Corrupted: c.corrupted,
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.elements, e.key)
}
