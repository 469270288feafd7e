// Package config loads the marketdata configuration from a YAML file,
// MARKETDATA_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/fetch"
	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/ratelimit"
	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/store"
	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks configuration validation failures.
var ErrInvalid = errors.New("config: invalid")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MARKETDATA_"

// Duration accepts the extended duration syntax ("90s", "6h", "1d", "2w").
type Duration time.Duration

func (d Duration) D() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return str2duration.String(time.Duration(d)) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := parseDuration(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func parseDuration(s string) (Duration, error) {
	v, err := str2duration.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid duration %q", s)
	}
	return Duration(v), nil
}

type Upstream struct {
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`
	UserAgent string   `yaml:"user_agent"`
}

type Gate struct {
	MinInterval Duration `yaml:"min_interval"`
	Jitter      Duration `yaml:"jitter"`
	Cooldown    Duration `yaml:"cooldown"`
}

type Cache struct {
	Series      Duration `yaml:"series"`
	Indicators  Duration `yaml:"indicators"`
	KPI         Duration `yaml:"kpi"`
	Info        Duration `yaml:"info"`
	Summary     Duration `yaml:"summary"`
	Search      Duration `yaml:"search"`
	News        Duration `yaml:"news"`
	Placeholder Duration `yaml:"placeholder"`
	Snapshots   bool     `yaml:"snapshots"`
}

type Retry struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
	Multiplier     float64  `yaml:"multiplier"`
	Jitter         bool     `yaml:"jitter"`
}

type Batch struct {
	ChunkSize       int      `yaml:"chunk_size"`
	ChunkDelay      Duration `yaml:"chunk_delay"`
	SparklinePoints int      `yaml:"sparkline_points"`
}

type Screener struct {
	MaxPerTick  int      `yaml:"max_per_tick"`
	MetricsTTL  Duration `yaml:"metrics_ttl"`
	UniverseTTL Duration `yaml:"universe_ttl"`
	// Universe is an http(s) URL of a CSV, a file path, or a comma separated
	// list of symbols. Empty uses the built-in list.
	Universe string `yaml:"universe"`
}

// Store selects where snapshots and the cooldown are persisted.
type Store struct {
	// Backend is one of file, sqlite, redis, memory or none.
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	// RedisURL is the redis backend, or a read-through layer in front of
	// file and sqlite when set alongside them.
	RedisURL string `yaml:"redis_url"`
	Prefix   string `yaml:"prefix"`
	Codec    string `yaml:"codec"`
}

type Log struct {
	Level string `yaml:"level"`
	// Format is console or json. Empty picks console on a terminal.
	Format string `yaml:"format"`
}

type Telemetry struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Secret      string `yaml:"secret"`
	ServiceName string `yaml:"service_name"`
}

// Schedule drives the daemon. Specs use cron syntax or @every descriptors.
type Schedule struct {
	Screen         string   `yaml:"screen"`
	Watchlist      string   `yaml:"watchlist"`
	WatchlistItems []string `yaml:"watchlist_items"`
	Metric         string   `yaml:"metric"`
}

// Config is the full configuration.
type Config struct {
	Upstream  Upstream  `yaml:"upstream"`
	Gate      Gate      `yaml:"gate"`
	Cache     Cache     `yaml:"cache"`
	Retry     Retry     `yaml:"retry"`
	Batch     Batch     `yaml:"batch"`
	Screener  Screener  `yaml:"screener"`
	Store     Store     `yaml:"store"`
	Log       Log       `yaml:"log"`
	Telemetry Telemetry `yaml:"telemetry"`
	Schedule  Schedule  `yaml:"schedule"`
}

// Default returns the built-in configuration.
func Default() Config {
	f := fetch.DefaultConfig()
	g := ratelimit.DefaultConfig()
	s := screener.DefaultConfig()
	return Config{
		Upstream: Upstream{Timeout: Duration(15 * time.Second)},
		Gate: Gate{
			MinInterval: Duration(g.MinInterval),
			Jitter:      Duration(g.Jitter),
			Cooldown:    Duration(g.Cooldown),
		},
		Cache: Cache{
			Series:      Duration(f.TTL.Series),
			Indicators:  Duration(f.TTL.Indicators),
			KPI:         Duration(f.TTL.KPI),
			Info:        Duration(f.TTL.Info),
			Summary:     Duration(f.TTL.Summary),
			Search:      Duration(f.TTL.Search),
			News:        Duration(f.TTL.News),
			Placeholder: Duration(f.TTL.Placeholder),
			Snapshots:   f.Snapshots,
		},
		Retry: Retry{
			MaxAttempts:    f.Retry.MaxAttempts,
			InitialBackoff: Duration(f.Retry.InitialBackoff),
			MaxBackoff:     Duration(f.Retry.MaxBackoff),
			Multiplier:     f.Retry.BackoffMultiplier,
			Jitter:         f.Retry.Jitter,
		},
		Batch: Batch{
			ChunkSize:       f.ChunkSize,
			ChunkDelay:      Duration(f.ChunkDelay),
			SparklinePoints: f.SparklinePoints,
		},
		Screener: Screener{
			MaxPerTick:  s.MaxPerTick,
			MetricsTTL:  Duration(s.MetricsTTL),
			UniverseTTL: Duration(s.UniverseTTL),
		},
		Store: Store{Backend: "file", Path: defaultStatePath(), Codec: "json"},
		Log:   Log{Level: "info"},
		Telemetry: Telemetry{
			ServiceName: "marketdata",
		},
		Schedule: Schedule{Screen: "@every 1m", Watchlist: "@every 2m", Metric: "fcfYield"},
	}
}

func defaultStatePath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + string(os.PathSeparator) + "marketdata"
	}
	return ".marketdata"
}

// Load reads path (optional, "" skips the file) over the defaults and then
// applies environment overrides.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with a custom environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "config: read %s", path)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

type setter func(string) error

func durationVar(d *Duration) setter {
	return func(s string) error {
		v, err := parseDuration(s)
		if err != nil {
			return err
		}
		*d = v
		return nil
	}
}

func intVar(i *int) setter {
	return func(s string) error {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.Wrapf(err, "invalid integer %q", s)
		}
		*i = v
		return nil
	}
}

func floatVar(f *float64) setter {
	return func(s string) error {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return errors.Wrapf(err, "invalid number %q", s)
		}
		*f = v
		return nil
	}
}

func boolVar(b *bool) setter {
	return func(s string) error {
		v, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return errors.Wrapf(err, "invalid boolean %q", s)
		}
		*b = v
		return nil
	}
}

func stringVar(p *string) setter {
	return func(s string) error {
		*p = s
		return nil
	}
}

func listVar(p *[]string) setter {
	return func(s string) error {
		var out []string
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*p = out
		return nil
	}
}

// envBindings maps each override, without EnvPrefix, onto its field.
func (c *Config) envBindings() map[string]setter {
	return map[string]setter{
		"UPSTREAM_BASE_URL":        stringVar(&c.Upstream.BaseURL),
		"UPSTREAM_TIMEOUT":         durationVar(&c.Upstream.Timeout),
		"UPSTREAM_USER_AGENT":      stringVar(&c.Upstream.UserAgent),
		"GATE_MIN_INTERVAL":        durationVar(&c.Gate.MinInterval),
		"GATE_JITTER":              durationVar(&c.Gate.Jitter),
		"GATE_COOLDOWN":            durationVar(&c.Gate.Cooldown),
		"CACHE_SERIES_TTL":         durationVar(&c.Cache.Series),
		"CACHE_INDICATORS_TTL":     durationVar(&c.Cache.Indicators),
		"CACHE_KPI_TTL":            durationVar(&c.Cache.KPI),
		"CACHE_INFO_TTL":           durationVar(&c.Cache.Info),
		"CACHE_SUMMARY_TTL":        durationVar(&c.Cache.Summary),
		"CACHE_SEARCH_TTL":         durationVar(&c.Cache.Search),
		"CACHE_NEWS_TTL":           durationVar(&c.Cache.News),
		"CACHE_PLACEHOLDER_TTL":    durationVar(&c.Cache.Placeholder),
		"CACHE_SNAPSHOTS":          boolVar(&c.Cache.Snapshots),
		"RETRY_MAX_ATTEMPTS":       intVar(&c.Retry.MaxAttempts),
		"RETRY_INITIAL_BACKOFF":    durationVar(&c.Retry.InitialBackoff),
		"RETRY_MAX_BACKOFF":        durationVar(&c.Retry.MaxBackoff),
		"RETRY_MULTIPLIER":         floatVar(&c.Retry.Multiplier),
		"RETRY_JITTER":             boolVar(&c.Retry.Jitter),
		"BATCH_CHUNK_SIZE":         intVar(&c.Batch.ChunkSize),
		"BATCH_CHUNK_DELAY":        durationVar(&c.Batch.ChunkDelay),
		"BATCH_SPARKLINE_POINTS":   intVar(&c.Batch.SparklinePoints),
		"SCREENER_MAX_PER_TICK":    intVar(&c.Screener.MaxPerTick),
		"SCREENER_METRICS_TTL":     durationVar(&c.Screener.MetricsTTL),
		"SCREENER_UNIVERSE_TTL":    durationVar(&c.Screener.UniverseTTL),
		"SCREENER_UNIVERSE":        stringVar(&c.Screener.Universe),
		"STORE_BACKEND":            stringVar(&c.Store.Backend),
		"STORE_PATH":               stringVar(&c.Store.Path),
		"STORE_REDIS_URL":          stringVar(&c.Store.RedisURL),
		"STORE_PREFIX":             stringVar(&c.Store.Prefix),
		"STORE_CODEC":              stringVar(&c.Store.Codec),
		"LOG_LEVEL":                stringVar(&c.Log.Level),
		"LOG_FORMAT":               stringVar(&c.Log.Format),
		"TELEMETRY_ENABLED":        boolVar(&c.Telemetry.Enabled),
		"OTLP_URL":                 stringVar(&c.Telemetry.Endpoint),
		"OTLP_SHARED_SECRET":       stringVar(&c.Telemetry.Secret),
		"SERVICE_NAME":             stringVar(&c.Telemetry.ServiceName),
		"SCHEDULE_SCREEN":          stringVar(&c.Schedule.Screen),
		"SCHEDULE_WATCHLIST":       stringVar(&c.Schedule.Watchlist),
		"SCHEDULE_WATCHLIST_ITEMS": listVar(&c.Schedule.WatchlistItems),
		"SCHEDULE_METRIC":          stringVar(&c.Schedule.Metric),
	}
}

// EnvNames lists every supported environment override.
func EnvNames() []string {
	var c Config
	names := make([]string, 0, 48)
	for name := range c.envBindings() {
		names = append(names, EnvPrefix+name)
	}
	return names
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs error
	for name, set := range c.envBindings() {
		val, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		if err := set(val); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "%s%s", EnvPrefix, name))
		}
	}
	if errs != nil {
		return errors.Mark(errs, ErrInvalid)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf("config: "+format, args...), ErrInvalid)
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	positive := map[string]Duration{
		"gate.min_interval":     c.Gate.MinInterval,
		"gate.cooldown":         c.Gate.Cooldown,
		"cache.series":          c.Cache.Series,
		"cache.indicators":      c.Cache.Indicators,
		"cache.kpi":             c.Cache.KPI,
		"cache.info":            c.Cache.Info,
		"cache.summary":         c.Cache.Summary,
		"cache.search":          c.Cache.Search,
		"cache.news":            c.Cache.News,
		"cache.placeholder":     c.Cache.Placeholder,
		"retry.initial_backoff": c.Retry.InitialBackoff,
		"upstream.timeout":      c.Upstream.Timeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return invalid("%s must be positive, got %s", name, d)
		}
	}
	if c.Gate.Jitter < 0 {
		return invalid("gate.jitter must not be negative")
	}
	if c.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Multiplier < 1 {
		return invalid("retry.multiplier must be at least 1, got %g", c.Retry.Multiplier)
	}
	if c.Batch.ChunkSize < fetch.MinChunkSize || c.Batch.ChunkSize > fetch.MaxChunkSize {
		return invalid("batch.chunk_size must be between %d and %d, got %d", fetch.MinChunkSize, fetch.MaxChunkSize, c.Batch.ChunkSize)
	}
	if c.Screener.MaxPerTick < 1 {
		return invalid("screener.max_per_tick must be at least 1")
	}
	switch c.Store.Backend {
	case "file", "sqlite":
		if c.Store.Path == "" {
			return invalid("store.path is required for the %s backend", c.Store.Backend)
		}
	case "redis":
		if c.Store.RedisURL == "" {
			return invalid("store.redis_url is required for the redis backend")
		}
	case "memory", "none":
	default:
		return invalid("unknown store backend %q", c.Store.Backend)
	}
	if _, err := store.CodecByName(c.Store.Codec); err != nil {
		return errors.Mark(err, ErrInvalid)
	}
	if _, ok := screener.LookupMetric(c.Schedule.Metric); !ok {
		return invalid("unknown schedule metric %q", c.Schedule.Metric)
	}
	for name, spec := range map[string]string{"schedule.screen": c.Schedule.Screen, "schedule.watchlist": c.Schedule.Watchlist} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return errors.Mark(errors.Wrapf(err, "config: %s", name), ErrInvalid)
		}
	}
	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return invalid("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		return invalid("unknown log format %q", c.Log.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return invalid("telemetry.endpoint is required when telemetry is enabled")
	}
	return nil
}

// FetchConfig converts the cache, retry and batch sections.
func (c Config) FetchConfig() fetch.Config {
	return fetch.Config{
		TTL: fetch.TTLs{
			Series:      c.Cache.Series.D(),
			Indicators:  c.Cache.Indicators.D(),
			KPI:         c.Cache.KPI.D(),
			Info:        c.Cache.Info.D(),
			Summary:     c.Cache.Summary.D(),
			Search:      c.Cache.Search.D(),
			News:        c.Cache.News.D(),
			Placeholder: c.Cache.Placeholder.D(),
		},
		Retry: fetch.Retry{
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialBackoff:    c.Retry.InitialBackoff.D(),
			MaxBackoff:        c.Retry.MaxBackoff.D(),
			BackoffMultiplier: c.Retry.Multiplier,
			Jitter:            c.Retry.Jitter,
		},
		ChunkSize:       c.Batch.ChunkSize,
		ChunkDelay:      c.Batch.ChunkDelay.D(),
		SparklinePoints: c.Batch.SparklinePoints,
		Snapshots:       c.Cache.Snapshots,
	}
}

// GateConfig converts the gate section.
func (c Config) GateConfig() ratelimit.Config {
	return ratelimit.Config{
		MinInterval: c.Gate.MinInterval.D(),
		Jitter:      c.Gate.Jitter.D(),
		Cooldown:    c.Gate.Cooldown.D(),
	}
}

// ScreenerConfig converts the screener section.
func (c Config) ScreenerConfig() screener.Config {
	return screener.Config{
		MaxPerTick:  c.Screener.MaxPerTick,
		MetricsTTL:  c.Screener.MetricsTTL.D(),
		UniverseTTL: c.Screener.UniverseTTL.D(),
	}
}
