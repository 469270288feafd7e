package fetch

import (
	"time"

	"github.com/agentuity/go-marketdata/resilience"
)

// TTLs holds the freshness window of each data kind.
type TTLs struct {
	Series      time.Duration `yaml:"series"`
	Indicators  time.Duration `yaml:"indicators"`
	KPI         time.Duration `yaml:"kpi"`
	Info        time.Duration `yaml:"info"`
	Summary     time.Duration `yaml:"summary"`
	Search      time.Duration `yaml:"search"`
	News        time.Duration `yaml:"news"`
	Placeholder time.Duration `yaml:"placeholder"`
}

// Retry mirrors the tunable part of resilience.RetryConfig.
type Retry struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
	Jitter            bool          `yaml:"jitter"`
}

// Config controls the orchestrator.
type Config struct {
	TTL   TTLs  `yaml:"ttl"`
	Retry Retry `yaml:"retry"`
	// ChunkSize is the number of instruments per batch request, clamped to 2..8.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkDelay is the pause between batch chunks, even after a success.
	ChunkDelay time.Duration `yaml:"chunk_delay"`
	// SparklinePoints is the number of trailing closes kept in a summary.
	SparklinePoints int `yaml:"sparkline_points"`
	// Snapshots enables persisting successful payloads for warm starts.
	Snapshots bool `yaml:"snapshots"`
}

const (
	MinChunkSize     = 2
	MaxChunkSize     = 8
	DefaultChunkSize = 4
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		TTL: TTLs{
			Series:      3 * time.Minute,
			Indicators:  10 * time.Minute,
			KPI:         30 * time.Minute,
			Info:        6 * time.Hour,
			Summary:     2 * time.Minute,
			Search:      10 * time.Minute,
			News:        15 * time.Minute,
			Placeholder: time.Minute,
		},
		Retry: Retry{
			MaxAttempts:       5,
			InitialBackoff:    1500 * time.Millisecond,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 1.5,
			Jitter:            true,
		},
		ChunkSize:       DefaultChunkSize,
		ChunkDelay:      time.Second,
		SparklinePoints: 30,
		Snapshots:       true,
	}
}

// ClampChunkSize keeps n within the supported batch sizes.
func ClampChunkSize(n int) int {
	switch {
	case n <= 0:
		return DefaultChunkSize
	case n < MinChunkSize:
		return MinChunkSize
	case n > MaxChunkSize:
		return MaxChunkSize
	default:
		return n
	}
}

func (r Retry) config() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if r.MaxAttempts > 0 {
		cfg.MaxAttempts = r.MaxAttempts
	}
	if r.InitialBackoff > 0 {
		cfg.InitialBackoff = r.InitialBackoff
	}
	if r.MaxBackoff > 0 {
		cfg.MaxBackoff = r.MaxBackoff
	}
	if r.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = r.BackoffMultiplier
	}
	cfg.Jitter = r.Jitter
	return cfg
}
