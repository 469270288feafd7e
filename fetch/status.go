package fetch

import (
	"context"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/ratelimit"
)

// KindStatus describes one data kind's cache.
type KindStatus struct {
	Fresh        int `json:"fresh"`
	Stale        int `json:"stale"`
	Placeholders int `json:"placeholders"`
}

// Status is a point-in-time view of the service.
type Status struct {
	Gate     ratelimit.Status       `json:"gate"`
	Kinds    map[string]KindStatus `json:"kinds"`
	InFlight int                   `json:"in_flight"`
}

func (kc *kindCache[V]) status() KindStatus {
	fresh, stale := kc.values.Counts()
	return KindStatus{Fresh: fresh, Stale: stale, Placeholders: kc.placeholders.Len()}
}

// Status reports the gate, the per-kind cache sizes and the in-flight calls.
func (s *Service) Status() Status {
	return Status{
		Gate: s.gate.Status(),
		Kinds: map[string]KindStatus{
			market.KindSeries.String():     s.series.status(),
			market.KindIndicators.String(): s.indicators.status(),
			market.KindKPI.String():        s.kpi.status(),
			market.KindInfo.String():       s.info.status(),
			market.KindSummary.String():    s.summary.status(),
			market.KindSearch.String():     s.search.status(),
			market.KindNews.String():       s.news.status(),
		},
		InFlight: s.group.InFlight(),
	}
}

// Restore loads persisted snapshots into the caches with their original
// timestamps, so expired snapshots come back as stale entries. It returns the
// number of entries restored. Failures are logged and skipped.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n := s.series.restore(ctx) +
		s.indicators.restore(ctx) +
		s.kpi.restore(ctx) +
		s.info.restore(ctx) +
		s.summary.restore(ctx) +
		s.search.restore(ctx) +
		s.news.restore(ctx)
	if n > 0 {
		s.logger.Info("restored %d cached entries from snapshots", n)
	}
	return n, ctx.Err()
}
