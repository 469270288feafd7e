package cache

import (
	"sync"
	"time"
)

// DefaultPlaceholderTTL is how long a failed request suppresses retries.
const DefaultPlaceholderTTL = time.Minute

// Placeholder records that a request recently failed with nothing to fall
// back to. Reason is the error that caused it, if any.
type Placeholder struct {
	InstalledAt time.Time
	Reason      error
}

// Placeholders is a negative cache. Expiry is a pure time check on read; no
// background eviction runs.
type Placeholders[K comparable] struct {
	mutex   sync.Mutex
	markers map[K]Placeholder
	cfg     config
}

// NewPlaceholders returns an empty placeholder store.
func NewPlaceholders[K comparable](opts ...Option) *Placeholders[K] {
	return &Placeholders[K]{
		markers: make(map[K]Placeholder),
		cfg:     applyOptions(opts, DefaultPlaceholderTTL),
	}
}

// Install marks key as failed from now on.
func (p *Placeholders[K]) Install(key K, reason error) {
	now := p.cfg.now()
	p.mutex.Lock()
	p.markers[key] = Placeholder{InstalledAt: now, Reason: reason}
	p.mutex.Unlock()
}

// Active returns the placeholder for key while it is younger than the TTL.
// Expired markers are dropped on the way out.
func (p *Placeholders[K]) Active(key K) (Placeholder, bool) {
	now := p.cfg.now()
	p.mutex.Lock()
	defer p.mutex.Unlock()
	marker, ok := p.markers[key]
	if !ok {
		return Placeholder{}, false
	}
	if now.Sub(marker.InstalledAt) >= p.cfg.ttl {
		delete(p.markers, key)
		return Placeholder{}, false
	}
	return marker, true
}

// Remaining returns how long the placeholder for key stays active.
func (p *Placeholders[K]) Remaining(key K) time.Duration {
	marker, ok := p.Active(key)
	if !ok {
		return 0
	}
	return p.cfg.ttl - p.cfg.now().Sub(marker.InstalledAt)
}

// Clear removes the placeholder for key.
func (p *Placeholders[K]) Clear(key K) {
	p.mutex.Lock()
	delete(p.markers, key)
	p.mutex.Unlock()
}

// Len returns the number of markers, including expired ones not yet read.
func (p *Placeholders[K]) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.markers)
}
