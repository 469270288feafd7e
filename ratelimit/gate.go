package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/resilience"
	"github.com/agentuity/go-marketdata/store"
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
)

// ErrCoolingDown is returned by Acquire while the global cooldown is active.
// Errors carrying it are also marked upstream.ErrRateLimited.
var ErrCoolingDown = errors.New("ratelimit: cooling down")

// StateKey is the store key of the persisted cooldown deadline.
const StateKey = "ratelimit/cooldown"

const (
	DefaultMinInterval = 2 * time.Second
	DefaultJitter      = 250 * time.Millisecond
	DefaultCooldown    = 5 * time.Minute
)

// Config controls request spacing and the cooldown length.
type Config struct {
	MinInterval time.Duration `yaml:"min_interval"`
	Jitter      time.Duration `yaml:"jitter"`
	Cooldown    time.Duration `yaml:"cooldown"`
}

// DefaultConfig returns the spacing used against the public provider.
func DefaultConfig() Config {
	return Config{
		MinInterval: DefaultMinInterval,
		Jitter:      DefaultJitter,
		Cooldown:    DefaultCooldown,
	}
}

type cooldownState struct {
	CooldownUntil float64 `json:"cooldown_until"`
}

// Status is a snapshot of the gate.
type Status struct {
	CooldownUntil time.Time     `json:"cooldown_until"`
	Remaining     time.Duration `json:"remaining"`
	Strikes       int           `json:"strikes"`
	LastCall      time.Time     `json:"last_call"`
}

// CoolingDown reports whether the snapshot was taken during a cooldown.
func (s Status) CoolingDown() bool {
	return s.Remaining > 0
}

// Gate serializes access to the upstream: calls are spaced by at least
// MinInterval, and during a cooldown every call is rejected without waiting.
type Gate struct {
	cfg    Config
	logger logger.Logger
	store  store.Store
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration

	mutex         sync.Mutex
	lastCall      time.Time
	cooldownUntil time.Time
	strikes       int

	persistMutex sync.Mutex
}

// Option configures a Gate.
type Option func(*Gate)

// WithStore persists the cooldown deadline so it survives restarts.
func WithStore(s store.Store) Option {
	return func(g *Gate) { g.store = s }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithSleeper replaces the context-aware sleep used while waiting for a slot.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gate) { g.sleep = sleep }
}

// WithJitterSource replaces the random jitter added to waits.
func WithJitterSource(fn func(max time.Duration) time.Duration) Option {
	return func(g *Gate) { g.jitter = fn }
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// New returns a Gate. When a store is configured the persisted cooldown is
// loaded once here; a missing or unreadable record means no cooldown.
func New(ctx context.Context, log logger.Logger, cfg Config, opts ...Option) *Gate {
	g := &Gate{
		cfg:    cfg,
		logger: log.WithPrefix("[gate]"),
		now:    time.Now,
		sleep:  resilience.SleepContext,
		jitter: randomJitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.load(ctx)
	return g
}

func (g *Gate) load(ctx context.Context) {
	if g.store == nil {
		return
	}
	state, found, err := store.Load[cooldownState](ctx, g.store, store.JSONCodec{}, StateKey)
	if err != nil {
		g.logger.Warn("ignoring persisted cooldown: %s", err)
		return
	}
	if !found {
		return
	}
	until := store.FromEpochSeconds(state.CooldownUntil)
	if until.After(g.now()) {
		g.cooldownUntil = until
		g.logger.Info("restored cooldown until %s", until.Format(time.RFC3339))
	}
}

func (g *Gate) coolingDown(remaining time.Duration) error {
	err := errors.Newf("ratelimit: cooling down for %s", remaining.Round(time.Second))
	return errors.Mark(errors.Mark(err, ErrCoolingDown), upstream.ErrRateLimited)
}

// Acquire waits for the next upstream slot. During a cooldown it fails
// immediately with an error marked ErrCoolingDown and upstream.ErrRateLimited.
func (g *Gate) Acquire(ctx context.Context) error {
	g.mutex.Lock()
	now := g.now()
	if g.cooldownUntil.After(now) {
		remaining := g.cooldownUntil.Sub(now)
		g.mutex.Unlock()
		return g.coolingDown(remaining)
	}
	slot := now
	if next := g.lastCall.Add(g.cfg.MinInterval); next.After(now) {
		slot = next.Add(g.jitter(g.cfg.Jitter))
	}
	g.lastCall = slot
	g.mutex.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}
	if g.logger.IsTraceEnabled() {
		g.logger.Trace("waiting %s for upstream slot", wait)
	}
	if err := g.sleep(ctx, wait); err != nil {
		return errors.Wrap(err, "ratelimit: wait cancelled")
	}

	g.mutex.Lock()
	until, now := g.cooldownUntil, g.now()
	g.mutex.Unlock()
	if until.After(now) {
		return g.coolingDown(until.Sub(now))
	}
	return nil
}

// TriggerCooldown extends the cooldown to at least now+d (the configured
// cooldown when d <= 0) and returns the resulting deadline. The deadline never
// moves backwards. It does not count as a rate-limit strike.
func (g *Gate) TriggerCooldown(ctx context.Context, d time.Duration) time.Time {
	until, _ := g.extend(ctx, d, false)
	g.logger.Info("cooldown set until %s", until.Format(time.RFC3339))
	return until
}

// Strike records that the provider rate limited a call and starts the
// configured cooldown. Consecutive strikes accumulate until RecordSuccess.
func (g *Gate) Strike(ctx context.Context) time.Time {
	until, strikes := g.extend(ctx, 0, true)
	g.logger.Warn("upstream rate limited, cooling down until %s (strike %d)", until.Format(time.RFC3339), strikes)
	return until
}

func (g *Gate) extend(ctx context.Context, d time.Duration, strike bool) (time.Time, int) {
	if d <= 0 {
		d = g.cfg.Cooldown
	}
	g.mutex.Lock()
	candidate := g.now().Add(d)
	if candidate.After(g.cooldownUntil) {
		g.cooldownUntil = candidate
	}
	if strike {
		g.strikes++
	}
	until, strikes := g.cooldownUntil, g.strikes
	g.mutex.Unlock()

	g.persist(ctx)
	return until, strikes
}

// persist writes the current deadline. Writes are serialized and always read
// the latest value, so the stored deadline is monotonic too.
func (g *Gate) persist(ctx context.Context) {
	if g.store == nil {
		return
	}
	g.persistMutex.Lock()
	defer g.persistMutex.Unlock()
	g.mutex.Lock()
	state := cooldownState{CooldownUntil: store.EpochSeconds(g.cooldownUntil)}
	g.mutex.Unlock()
	if err := store.Save(ctx, g.store, store.JSONCodec{}, StateKey, state); err != nil {
		g.logger.Warn("failed to persist cooldown: %s", err)
	}
}

// RecordSuccess clears the consecutive rate-limit counter.
func (g *Gate) RecordSuccess() {
	g.mutex.Lock()
	g.strikes = 0
	g.mutex.Unlock()
}

// CooldownRemaining returns how long the cooldown still lasts, or zero.
func (g *Gate) CooldownRemaining() time.Duration {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if rem := g.cooldownUntil.Sub(g.now()); rem > 0 {
		return rem
	}
	return 0
}

// Status returns a snapshot of the gate.
func (g *Gate) Status() Status {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	s := Status{CooldownUntil: g.cooldownUntil, Strikes: g.strikes, LastCall: g.lastCall}
	if rem := g.cooldownUntil.Sub(g.now()); rem > 0 {
		s.Remaining = rem
	}
	return s
}

// Config returns the gate configuration.
func (g *Gate) Config() Config {
	return g.cfg
}
