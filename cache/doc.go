// Package cache provides the in-process caches used by the fetch layer: a
// generic TTL cache that distinguishes fresh, stale and absent reads, and a
// placeholder store that remembers recent failures.
//
// # TTL Cache
//
// [TTLCache] keeps one [Entry] per key, stamped with the time it was written.
// A read classifies the entry:
//
//   - [StateFresh] when now - StoredAt < TTL,
//   - [StateStale] when the entry exists but the TTL has passed,
//   - [StateAbsent] when nothing was ever written.
//
// Reads never delete. Expired data is the primary fallback when the upstream
// is unavailable, so it stays in place until a newer successful fetch calls
// [TTLCache.Set]. [TTLCache.SetAt] is used to restore persisted snapshots and
// refuses to overwrite anything newer.
//
//	series := cache.NewTTL[market.Key, market.Series](cache.WithTTL(3 * time.Minute))
//	if v, fresh := series.Get(key); fresh {
//	    return v
//	}
//	if v, ok := series.GetStale(key); ok {
//	    // serve while the upstream is down
//	}
//
// # Placeholders
//
// [Placeholders] is a negative cache. [Placeholders.Install] records that a
// key failed and nothing could be served for it; while the marker is younger
// than its TTL, [Placeholders.Active] reports it and the caller must not
// touch the network for that key. There is no background sweeper: expiry is a
// time comparison on read.
//
// # Concurrency
//
// Each cache and placeholder store owns its own lock. Locks are held only to
// copy entries in or out; callers do their work outside of them.
package cache
