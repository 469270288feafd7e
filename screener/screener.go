// Package screener ranks a universe of instruments by fundamental metrics.
// The metrics are gathered a few symbols at a time so that filling the whole
// universe never bursts past the upstream rate limit.
package screener

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/agentuity/go-marketdata/cache"
	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/flight"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/store"
	"github.com/cockroachdb/errors"
)

const (
	// MetricsKey is the store key of the persisted metrics map.
	MetricsKey = "screener/metrics"
	// UniverseKey is the store key of the last fetched universe.
	UniverseKey = "screener/universe"

	DefaultMaxPerTick  = 5
	DefaultMetricsTTL  = 24 * time.Hour
	DefaultUniverseTTL = 24 * time.Hour
)

// Config controls the enrichment pace.
type Config struct {
	// MaxPerTick is the number of symbols enriched per Screen call.
	MaxPerTick  int           `yaml:"max_per_tick"`
	MetricsTTL  time.Duration `yaml:"metrics_ttl"`
	UniverseTTL time.Duration `yaml:"universe_ttl"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{MaxPerTick: DefaultMaxPerTick, MetricsTTL: DefaultMetricsTTL, UniverseTTL: DefaultUniverseTTL}
}

// Query selects how the screened rows are ranked.
type Query struct {
	Metric string
	// Order defaults to the metric's natural order.
	Order string
	// Limit <= 0 returns every row.
	Limit int
	// Refresh treats every stored row as expired.
	Refresh bool
}

// Result is one Screen answer.
type Result struct {
	Metric          string `json:"metric"`
	Order           Order  `json:"order"`
	Rows            []Row  `json:"rows"`
	Remaining       int    `json:"remaining"`
	Complete        bool   `json:"complete"`
	UniverseSize    int    `json:"universeSize"`
	CooldownSeconds int    `json:"cooldownSeconds"`
}

type tickResult struct {
	Attempted   int
	Enriched    int
	Unavailable int
	CoolingDown bool
}

var (
	errNoData   = errors.New("screener: no data yet")
	errStaleKPI = errors.New("screener: only stale figures available")
)

// Screener owns the metrics map. It is safe for concurrent use.
type Screener struct {
	svc    *fetch.Service
	source UniverseSource
	logger logger.Logger
	cfg    Config
	store  store.Store
	codec  store.Codec
	now    func() time.Time
	group  flight.Group

	universe *cache.TTLCache[string, []string]

	mutex       sync.Mutex
	rows        map[string]Row
	refreshedAt time.Time
	loaded      bool
}

// Option configures a Screener.
type Option func(*Screener)

// WithStore persists the metrics map and the universe.
func WithStore(s store.Store) Option {
	return func(sc *Screener) { sc.store = s }
}

// WithCodec sets the encoding of persisted state.
func WithCodec(c store.Codec) Option {
	return func(sc *Screener) { sc.codec = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(sc *Screener) { sc.now = now }
}

// New returns a Screener that enriches symbols from source through svc.
func New(svc *fetch.Service, source UniverseSource, log logger.Logger, cfg Config, opts ...Option) *Screener {
	def := DefaultConfig()
	if cfg.MaxPerTick <= 0 {
		cfg.MaxPerTick = def.MaxPerTick
	}
	if cfg.MetricsTTL <= 0 {
		cfg.MetricsTTL = def.MetricsTTL
	}
	if cfg.UniverseTTL <= 0 {
		cfg.UniverseTTL = def.UniverseTTL
	}
	if source == nil {
		source = StaticSource(DefaultUniverse())
	}
	s := &Screener{
		svc:    svc,
		source: source,
		logger: log.WithPrefix("[screener]"),
		cfg:    cfg,
		codec:  store.JSONCodec{},
		now:    time.Now,
		rows:   make(map[string]Row),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.universe = cache.NewTTL[string, []string](cache.WithTTL(cfg.UniverseTTL), cache.WithClock(s.now))
	return s
}

// load reads persisted state once.
func (s *Screener) load(ctx context.Context) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.loaded || s.store == nil {
		s.loaded = true
		return
	}
	s.loaded = true
	if rec, found, err := store.LoadRecord[map[string]Row](ctx, s.store, s.codec, MetricsKey); err != nil {
		s.logger.Warn("ignoring stored metrics: %s", err)
	} else if found {
		for sym, row := range rec.Payload {
			s.rows[sym] = row
		}
		s.logger.Debug("loaded %d stored rows", len(rec.Payload))
	}
	if rec, found, err := store.LoadRecord[[]string](ctx, s.store, s.codec, UniverseKey); err != nil {
		s.logger.Warn("ignoring stored universe: %s", err)
	} else if found && len(rec.Payload) > 0 {
		s.universe.SetAt(UniverseKey, rec.Payload, rec.Time())
	}
}

func (s *Screener) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mutex.Lock()
	snapshot := make(map[string]Row, len(s.rows))
	for sym, row := range s.rows {
		snapshot[sym] = row
	}
	s.mutex.Unlock()
	if err := store.SaveRecord(ctx, s.store, s.codec, MetricsKey, store.NewRecord(s.now(), snapshot)); err != nil {
		s.logger.Warn("failed to persist metrics: %s", err)
	}
}

// Universe returns the instruments to screen: a fresh cached list, a new list
// from the source, the last known list, or DefaultUniverse, in that order.
func (s *Screener) Universe(ctx context.Context) []string {
	s.load(ctx)
	if v, ok := s.universe.Get(UniverseKey); ok {
		return v
	}
	syms, _, err := flight.Do(ctx, &s.group, flight.Key("screener.universe", s.source.Name()), func(ctx context.Context) ([]string, error) {
		return s.source.Symbols(ctx)
	})
	if err == nil && len(syms) > 0 {
		s.universe.Set(UniverseKey, syms)
		if s.store != nil {
			if err := store.SaveRecord(ctx, s.store, s.codec, UniverseKey, store.NewRecord(s.now(), syms)); err != nil {
				s.logger.Warn("failed to persist universe: %s", err)
			}
		}
		s.logger.Info("loaded %d symbols from %s", len(syms), s.source.Name())
		return syms
	}
	if err == nil {
		err = errors.New("empty universe")
	}
	s.logger.Warn("universe source %s failed: %s", s.source.Name(), err)
	if v, ok := s.universe.GetStale(UniverseKey); ok {
		return v
	}
	return DefaultUniverse()
}

func (s *Screener) expired(row Row, now time.Time) bool {
	updated := store.FromEpochSeconds(row.UpdatedAt)
	return now.Sub(updated) >= s.cfg.MetricsTTL || updated.Before(s.refreshedAt)
}

// pending lists the universe symbols that are missing or expired, in
// universe order.
func (s *Screener) pending(universe []string) []string {
	now := s.now()
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []string
	for _, sym := range universe {
		row, ok := s.rows[sym]
		if !ok || s.expired(row, now) {
			out = append(out, sym)
		}
	}
	return out
}

func (s *Screener) put(row Row) {
	s.mutex.Lock()
	s.rows[row.Ticker] = row
	s.mutex.Unlock()
}

// Screen enriches at most MaxPerTick pending symbols, then ranks every known
// row of the universe. Concurrent calls share one enrichment tick.
func (s *Screener) Screen(ctx context.Context, q Query) (Result, error) {
	metric, ok := LookupMetric(q.Metric)
	if !ok {
		return Result{}, errors.Wrapf(ErrUnknownMetric, "%q", q.Metric)
	}
	order, ok := ParseOrder(q.Order)
	if !ok {
		order = metric.Order
	}

	_, _, err := flight.Do(ctx, &s.group, flight.Key("screener.tick", q.Refresh), func(ctx context.Context) (tickResult, error) {
		return s.tick(ctx, q.Refresh)
	})
	if err != nil {
		return Result{}, err
	}

	universe := s.Universe(ctx)
	remaining := len(s.pending(universe))
	s.mutex.Lock()
	rows := make([]Row, 0, len(universe))
	for _, sym := range universe {
		if row, ok := s.rows[sym]; ok && !row.Unavailable {
			rows = append(rows, row)
		}
	}
	s.mutex.Unlock()

	return Result{
		Metric:          metric.Key,
		Order:           order,
		Rows:            Rank(rows, metric.Key, order, q.Limit),
		Remaining:       remaining,
		Complete:        remaining == 0,
		UniverseSize:    len(universe),
		CooldownSeconds: int(math.Ceil(s.svc.Gate().CooldownRemaining().Seconds())),
	}, nil
}

func (s *Screener) tick(ctx context.Context, refresh bool) (tickResult, error) {
	s.load(ctx)
	if refresh {
		s.mutex.Lock()
		s.refreshedAt = s.now()
		s.mutex.Unlock()
	}
	var res tickResult
	for _, sym := range s.pending(s.Universe(ctx)) {
		if res.Attempted >= s.cfg.MaxPerTick {
			break
		}
		if s.svc.Gate().CooldownRemaining() > 0 {
			res.CoolingDown = true
			break
		}
		res.Attempted++
		row, err := s.enrich(ctx, sym)
		switch {
		case err == nil:
			s.put(row)
			res.Enriched++
		case fetch.IsNotFound(err):
			s.put(Row{Ticker: sym, CompanyName: "N/A", UpdatedAt: store.EpochSeconds(s.now()), Unavailable: true})
			res.Unavailable++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.persist(ctx)
			return res, err
		default:
			s.logger.Debug("%s not enriched: %s", sym, err)
		}
	}
	if res.Enriched+res.Unavailable > 0 {
		s.persist(ctx)
	}
	s.logger.Debug("tick: attempted %d, enriched %d, unavailable %d, cooling down %v",
		res.Attempted, res.Enriched, res.Unavailable, res.CoolingDown)
	return res, nil
}

func kpiEmpty(k market.KPI) bool {
	return k.CurrentPrice == nil && k.MarketCap == nil && k.PERatio == nil && k.FreeCashflow == nil
}

func (s *Screener) enrich(ctx context.Context, symbol string) (Row, error) {
	k, err := s.svc.GetKPI(ctx, symbol)
	if err != nil {
		return Row{}, err
	}
	if kpiEmpty(k) {
		return Row{}, errNoData
	}
	if k.Stale {
		return Row{}, errStaleKPI
	}
	info, err := s.svc.GetInfo(ctx, symbol)
	if err != nil {
		s.logger.Debug("%s without profile: %s", symbol, err)
	}
	series, err := s.svc.GetSeries(ctx, symbol, "1y", "1d")
	if err != nil {
		s.logger.Debug("%s without history: %s", symbol, err)
	}
	return Row{
		Ticker:      market.NormalizeSymbol(symbol),
		CompanyName: k.CompanyName,
		Sector:      info.String("sector"),
		Values:      computeValues(k, info, series.Closes()),
		UpdatedAt:   store.EpochSeconds(s.now()),
	}, nil
}
