package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/store"
	"github.com/cockroachdb/errors"
)

// SnapshotPrefix is the store prefix under which payloads are persisted, as
// snapshot/<kind>/<key>.
const SnapshotPrefix = "snapshot/"

type snapshots struct {
	store  store.Store
	codec  store.Codec
	logger logger.Logger
	now    func() time.Time
}

// SnapshotKey returns the store key for a payload of kind under key.
func SnapshotKey(kind market.Kind, key market.Key) string {
	return SnapshotPrefix + kind.String() + "/" + key.String()
}

func saveSnapshot[V any](ctx context.Context, s *snapshots, kind market.Kind, key market.Key, val V) {
	if s == nil || s.store == nil {
		return
	}
	name := SnapshotKey(kind, key)
	if err := store.SaveRecord(ctx, s.store, s.codec, name, store.NewRecord(s.now(), val)); err != nil {
		s.logger.Warn("failed to persist %s: %s", name, err)
	}
}

// restore loads every snapshot of the kind. Snapshots that fail to decode are
// skipped; entries already newer in memory are kept.
func (kc *kindCache[V]) restore(ctx context.Context) int {
	s := kc.snaps
	if s == nil || s.store == nil {
		return 0
	}
	prefix := SnapshotPrefix + kc.kind.String() + "/"
	names, err := s.store.Keys(ctx, prefix)
	if err != nil {
		s.logger.Warn("failed to list %s snapshots: %s", kc.kind, err)
		return 0
	}
	var restored int
	for _, name := range names {
		key, err := market.ParseKey(strings.TrimPrefix(name, prefix))
		if err != nil {
			s.logger.Debug("skipping snapshot %s: %s", name, err)
			continue
		}
		rec, found, err := store.LoadRecord[V](ctx, s.store, s.codec, name)
		if err != nil {
			s.logger.Warn("skipping snapshot %s: %s", name, err)
			continue
		}
		if !found {
			continue
		}
		if kc.values.SetAt(key, rec.Payload, rec.Time()) {
			restored++
		}
	}
	return restored
}

// PurgeSnapshots deletes persisted snapshots, of one kind or of every kind
// when kind is nil. In-memory entries are untouched. It returns the number of
// snapshots removed.
func (s *Service) PurgeSnapshots(ctx context.Context, kind *market.Kind) (int, error) {
	if s.snaps.store == nil {
		return 0, nil
	}
	prefix := SnapshotPrefix
	if kind != nil {
		prefix += kind.String() + "/"
	}
	names, err := s.snaps.store.Keys(ctx, prefix)
	if err != nil {
		return 0, errors.Wrap(err, "fetch: list snapshots")
	}
	var removed int
	for _, name := range names {
		ok, err := s.snaps.store.Delete(ctx, name)
		if err != nil {
			return removed, errors.Wrapf(err, "fetch: delete %s", name)
		}
		if ok {
			removed++
		}
	}
	s.logger.Info("purged %d snapshots under %s", removed, prefix)
	return removed, nil
}
