package fetch

import (
	"context"
	"time"

	"github.com/agentuity/go-marketdata/cache"
	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
)

// kindCache is the fresh/stale cache and the placeholder store of one data
// kind, together with how to degrade it.
type kindCache[V any] struct {
	kind         market.Kind
	values       *cache.TTLCache[market.Key, V]
	placeholders *cache.Placeholders[market.Key]
	empty        func(market.Key) V
	markStale    func(V) V
	snaps        *snapshots
}

func newKindCache[V any](s *Service, kind market.Kind, ttl time.Duration, empty func(market.Key) V, markStale func(V) V) *kindCache[V] {
	return &kindCache[V]{
		kind:         kind,
		values:       cache.NewTTL[market.Key, V](s.cacheOptions(ttl)...),
		placeholders: cache.NewPlaceholders[market.Key](s.cacheOptions(s.cfg.TTL.Placeholder)...),
		empty:        empty,
		markStale:    markStale,
		snaps:        s.snaps,
	}
}

// commit stores a freshly fetched value, lifts any placeholder and persists
// a snapshot.
func (kc *kindCache[V]) commit(ctx context.Context, key market.Key, val V) {
	kc.values.Set(key, val)
	kc.placeholders.Clear(key)
	saveSnapshot(ctx, kc.snaps, kc.kind, key, val)
}

// cached answers from memory only: a fresh value, or the empty payload while
// a placeholder is active. ok is false when the upstream has to be asked.
func (kc *kindCache[V]) cached(key market.Key) (V, bool, error) {
	if v, fresh := kc.values.Get(key); fresh {
		return v, true, nil
	}
	if marker, active := kc.placeholders.Active(key); active {
		if errors.Is(marker.Reason, ErrNotFound) {
			return kc.empty(key), true, marker.Reason
		}
		return kc.empty(key), true, nil
	}
	var zero V
	return zero, false, nil
}

// degrade picks the fallback after a failed fetch. A stale value always wins
// and leaves no placeholder behind.
func (kc *kindCache[V]) degrade(key market.Key, cause error) (V, error) {
	if isContextError(cause) {
		return kc.empty(key), cause
	}
	if v, ok := kc.values.GetStale(key); ok {
		return kc.markStale(v), nil
	}
	kc.placeholders.Install(key, cause)
	if errors.Is(cause, ErrNotFound) {
		return kc.empty(key), cause
	}
	return kc.empty(key), nil
}

// resolve runs the read policy shared by every data kind. load performs the
// upstream work and the transformation into the cached shape.
func resolve[V any](ctx context.Context, kc *kindCache[V], key market.Key, load func(ctx context.Context) (V, error)) (V, error) {
	if v, ok, err := kc.cached(key); ok {
		return v, err
	}
	v, err := load(ctx)
	if err != nil {
		return kc.degrade(key, err)
	}
	kc.commit(ctx, key, v)
	return v, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
