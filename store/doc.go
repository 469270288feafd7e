// Package store persists the state that must survive a restart: the upstream
// cooldown deadline, payload snapshots for warm starts and screener metrics.
//
// Backends share the Store interface: a directory of JSON files, SQLite,
// Redis, an in-memory map for tests and a composite that layers them.
// Records are written as {"ts": <epoch seconds>, "payload": ...}. Callers
// treat persistence as best effort: a failed Save is logged, and a missing
// or corrupt value reads as empty.
package store
