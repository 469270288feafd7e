package cache

import (
	"sync"
	"time"
)

// State describes how usable a cached entry is at the moment of the read.
type State int

const (
	StateAbsent State = iota
	StateStale
	StateFresh
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "FRESH"
	case StateStale:
		return "STALE"
	default:
		return "ABSENT"
	}
}

// Entry is a cached value together with its write time. A cache never stores
// a value without one.
type Entry[V any] struct {
	Value    V
	StoredAt time.Time
}

// Age returns how old the entry is at now.
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// DefaultTTL is used when a TTLCache is built without WithTTL.
const DefaultTTL = 5 * time.Minute

type config struct {
	ttl time.Duration
	now func() time.Time
}

// Option configures a TTLCache or Placeholders store.
type Option func(*config)

func applyOptions(opts []Option, ttl time.Duration) config {
	cfg := config{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTTL sets how long an entry stays fresh.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.ttl = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// TTLCache is an in-process map with per-cache freshness. Unlike an expiring
// cache it never drops entries on read: an expired entry is kept as stale data
// until a newer successful write replaces it.
type TTLCache[K comparable, V any] struct {
	mutex   sync.RWMutex
	entries map[K]Entry[V]
	cfg     config
}

// NewTTL returns an empty TTLCache.
func NewTTL[K comparable, V any](opts ...Option) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		entries: make(map[K]Entry[V]),
		cfg:     applyOptions(opts, DefaultTTL),
	}
}

// TTL returns the freshness window.
func (c *TTLCache[K, V]) TTL() time.Duration {
	return c.cfg.ttl
}

// Lookup returns the entry for key and its state at the time of the call.
func (c *TTLCache[K, V]) Lookup(key K) (Entry[V], State) {
	c.mutex.RLock()
	entry, ok := c.entries[key]
	c.mutex.RUnlock()
	if !ok {
		return Entry[V]{}, StateAbsent
	}
	if entry.Age(c.cfg.now()) < c.cfg.ttl {
		return entry, StateFresh
	}
	return entry, StateStale
}

// Get returns the value only when it is fresh.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	entry, state := c.Lookup(key)
	if state != StateFresh {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// GetStale returns the value whether fresh or expired.
func (c *TTLCache[K, V]) GetStale(key K) (V, bool) {
	entry, state := c.Lookup(key)
	if state == StateAbsent {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores val stamped with the current time.
func (c *TTLCache[K, V]) Set(key K, val V) {
	now := c.cfg.now()
	c.mutex.Lock()
	c.entries[key] = Entry[V]{Value: val, StoredAt: now}
	c.mutex.Unlock()
}

// SetAt stores val with an explicit write time. Used when restoring persisted
// snapshots, so it never replaces an entry written more recently.
func (c *TTLCache[K, V]) SetAt(key K, val V, storedAt time.Time) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if existing, ok := c.entries[key]; ok && !existing.StoredAt.Before(storedAt) {
		return false
	}
	c.entries[key] = Entry[V]{Value: val, StoredAt: storedAt}
	return true
}

// Delete removes key and reports whether it was present.
func (c *TTLCache[K, V]) Delete(key K) bool {
	c.mutex.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mutex.Unlock()
	return ok
}

// Len returns the number of entries, fresh or stale.
func (c *TTLCache[K, V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Keys returns a snapshot of the cached keys.
func (c *TTLCache[K, V]) Keys() []K {
	c.mutex.RLock()
	keys := make([]K, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mutex.RUnlock()
	return keys
}

// Counts returns the number of fresh and stale entries.
func (c *TTLCache[K, V]) Counts() (fresh int, stale int) {
	now := c.cfg.now()
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, e := range c.entries {
		if e.Age(now) < c.cfg.ttl {
			fresh++
		} else {
			stale++
		}
	}
	return fresh, stale
}
