// Package fetch is the coordination layer between callers asking for market
// data and the rate-limited upstream. Every data kind goes through the same
// path: fresh cache, placeholder, deduplicated and gated upstream call with
// retries, then stale cache or an empty payload when that fails.
package fetch

import (
	"context"
	"time"

	"github.com/agentuity/go-marketdata/cache"
	"github.com/agentuity/go-marketdata/flight"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/ratelimit"
	"github.com/agentuity/go-marketdata/resilience"
	"github.com/agentuity/go-marketdata/store"
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/agentuity/go-marketdata/fetch"

// Service owns the caches, the singleflight group and the upstream access
// path. It is safe for concurrent use.
type Service struct {
	client upstream.Client
	gate   *ratelimit.Gate
	logger logger.Logger
	cfg    Config
	group  flight.Group
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	snaps  *snapshots

	series     *kindCache[market.Series]
	indicators *kindCache[market.Indicators]
	kpi        *kindCache[market.KPI]
	info       *kindCache[market.Info]
	summary    *kindCache[market.Summary]
	search     *kindCache[market.SearchResult]
	news       *kindCache[market.News]
}

// Option configures a Service.
type Option func(*Service)

// WithStore enables snapshot persistence into s.
func WithStore(s store.Store) Option {
	return func(svc *Service) { svc.snaps.store = s }
}

// WithCodec sets the snapshot encoding. JSON is the default.
func WithCodec(c store.Codec) Option {
	return func(svc *Service) { svc.snaps.codec = c }
}

// WithClock replaces time.Now for the caches and snapshots.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithSleeper replaces the sleep used for retry backoff and chunk pacing.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(svc *Service) { svc.sleep = sleep }
}

// WithTracer sets the tracer used for upstream spans.
func WithTracer(t trace.Tracer) Option {
	return func(svc *Service) { svc.tracer = t }
}

// New returns a Service that reaches client through gate.
func New(client upstream.Client, gate *ratelimit.Gate, log logger.Logger, cfg Config, opts ...Option) *Service {
	cfg.ChunkSize = ClampChunkSize(cfg.ChunkSize)
	if cfg.SparklinePoints <= 0 {
		cfg.SparklinePoints = DefaultConfig().SparklinePoints
	}
	s := &Service{
		client: client,
		gate:   gate,
		logger: log.WithPrefix("[fetch]"),
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		sleep:  resilience.SleepContext,
		snaps:  &snapshots{codec: store.JSONCodec{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snaps.logger = s.logger
	s.snaps.now = s.now
	if !cfg.Snapshots {
		s.snaps.store = nil
	}

	s.series = newKindCache(s, market.KindSeries, cfg.TTL.Series, market.EmptySeries,
		func(v market.Series) market.Series { v.Stale = true; return v })
	s.indicators = newKindCache(s, market.KindIndicators, cfg.TTL.Indicators, market.EmptyIndicators,
		func(v market.Indicators) market.Indicators { v.Stale = true; return v })
	s.kpi = newKindCache(s, market.KindKPI, cfg.TTL.KPI, market.EmptyKPI,
		func(v market.KPI) market.KPI { v.Stale = true; return v })
	s.info = newKindCache(s, market.KindInfo, cfg.TTL.Info, market.EmptyInfo,
		func(v market.Info) market.Info { v.Stale = true; return v })
	s.summary = newKindCache(s, market.KindSummary, cfg.TTL.Summary, market.EmptySummary,
		func(v market.Summary) market.Summary { v.Stale = true; return v })
	s.search = newKindCache(s, market.KindSearch, cfg.TTL.Search, market.EmptySearch,
		func(v market.SearchResult) market.SearchResult { v.Stale = true; return v })
	s.news = newKindCache(s, market.KindNews, cfg.TTL.News, market.EmptyNews,
		func(v market.News) market.News { v.Stale = true; return v })
	return s
}

// Gate returns the rate gate shared by every upstream call.
func (s *Service) Gate() *ratelimit.Gate {
	return s.gate
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) cacheOptions(ttl time.Duration) []cache.Option {
	return []cache.Option{cache.WithTTL(ttl), cache.WithClock(s.now)}
}

// FetchWithRetry performs req against the upstream. Concurrent identical
// requests share one execution. Each attempt waits for the gate; a rate-limit
// outcome starts a cooldown and an empty outcome aborts with ErrNotFound.
// A rejected request (upstream.ErrUnauthorized) is not retried.
func (s *Service) FetchWithRetry(ctx context.Context, req Request) (Response, error) {
	if err := req.validate(); err != nil {
		return Response{}, err
	}
	resp, shared, err := flight.Do(ctx, &s.group, req.flightKey(), func(ctx context.Context) (Response, error) {
		return s.fetch(ctx, req)
	})
	if shared && s.logger.IsTraceEnabled() {
		s.logger.Trace("%s %s shared with concurrent callers", req.Op(), req)
	}
	return resp, err
}

func (s *Service) retryConfig(log logger.Logger, span trace.Span) resilience.RetryConfig {
	cfg := s.cfg.Retry.config()
	cfg.Sleep = s.sleep
	cfg.Retryable = func(err error) bool {
		return !errors.Is(err, ErrNotFound) && !errors.Is(err, upstream.ErrUnauthorized) &&
			resilience.DefaultRetryableErrors(err)
	}
	cfg.Immediate = func(err error) bool {
		return errors.Is(err, ratelimit.ErrCoolingDown)
	}
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Debug("attempt %d failed, retrying in %s: %s", attempt, backoff, err)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("backoff", backoff.String()),
		))
	}
	return cfg
}

func (s *Service) fetch(ctx context.Context, req Request) (Response, error) {
	id := uuid.NewString()
	ctx, span := s.tracer.Start(ctx, "fetch."+req.Op(), trace.WithAttributes(
		attribute.String("fetch.id", id),
		attribute.String("fetch.request", req.String()),
	))
	defer span.End()
	log := s.logger.WithContext(ctx).With(map[string]interface{}{"fetch_id": id, "op": req.Op()})

	started := s.now()
	resp, err := resilience.Do(ctx, s.retryConfig(log, span), func(ctx context.Context, attempt int) (Response, error) {
		return s.attempt(ctx, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrNotFound) {
			log.Debug("%s: no data", req)
		} else {
			log.Warn("%s failed: %s", req, err)
		}
		return Response{}, err
	}
	span.SetStatus(codes.Ok, "")
	log.Debug("%s fetched in %s", req, s.now().Sub(started))
	return resp, nil
}

func (s *Service) attempt(ctx context.Context, req Request) (Response, error) {
	if err := s.gate.Acquire(ctx); err != nil {
		return Response{}, err
	}
	callCtx, state := upstream.WithCallState(ctx)
	resp, err := req.call(callCtx, s.client)
	outcome := upstream.Classify(err, err == nil && resp.empty(req), state.RateLimited())
	switch outcome {
	case upstream.OutcomeOK:
		s.gate.RecordSuccess()
		return resp, nil
	case upstream.OutcomeEmpty:
		return Response{}, notFound(req.String())
	case upstream.OutcomeRateLimited:
		s.gate.Strike(ctx)
		if err == nil {
			err = errors.New("upstream reported rate limiting")
		}
		return Response{}, errors.Mark(errors.Wrapf(err, "%s %s", req.Op(), req), upstream.ErrRateLimited)
	default:
		return Response{}, errors.Wrapf(err, "%s %s", req.Op(), req)
	}
}
