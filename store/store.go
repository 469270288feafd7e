package store

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Store is a durable key/value blob store. Implementations must be safe for
// concurrent use. A missing key is not an error: Load returns found=false.
type Store interface {
	// Load returns the bytes stored under key.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	// Save replaces the bytes stored under key.
	Save(ctx context.Context, key string, data []byte) error
	// Delete removes key and reports whether it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Keys lists the stored keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Close releases the backend.
	Close() error
}

// ErrCorrupt marks a stored value that could not be decoded.
var ErrCorrupt = errors.New("store: corrupt record")

// DefaultQueryTimeout bounds each I/O operation of the SQLite and Redis backends.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	queryTimeout time.Duration
	prefix       string
}

// Option configures a Store implementation.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{queryTimeout: DefaultQueryTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithPrefix namespaces keys in the Redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// Codec turns records into bytes and back.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// JSONCodec is the default codec; it produces the documented on-disk format.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

// MsgpackCodec is a compact binary codec for the SQLite and Redis backends.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }
func (MsgpackCodec) Name() string                       { return "msgpack" }

// CodecByName resolves "json" or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, errors.Newf("store: unknown codec %q", name)
	}
}

// Record is a timestamped payload, stored as {"ts": <epoch seconds>, "payload": ...}.
type Record[T any] struct {
	TS      float64 `json:"ts" msgpack:"ts"`
	Payload T       `json:"payload" msgpack:"payload"`
}

// NewRecord stamps payload with ts.
func NewRecord[T any](ts time.Time, payload T) Record[T] {
	return Record[T]{TS: EpochSeconds(ts), Payload: payload}
}

// Time returns the record timestamp.
func (r Record[T]) Time() time.Time {
	return FromEpochSeconds(r.TS)
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpochSeconds is the inverse of EpochSeconds.
func FromEpochSeconds(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Load decodes the value stored under key into T.
func Load[T any](ctx context.Context, s Store, c Codec, key string) (T, bool, error) {
	var zero T
	data, found, err := s.Load(ctx, key)
	if err != nil || !found {
		return zero, false, err
	}
	var val T
	if err := c.Unmarshal(data, &val); err != nil {
		return zero, false, errors.Mark(errors.Wrapf(err, "store: decode %q", key), ErrCorrupt)
	}
	return val, true, nil
}

// Save encodes val and stores it under key.
func Save[T any](ctx context.Context, s Store, c Codec, key string, val T) error {
	data, err := c.Marshal(val)
	if err != nil {
		return errors.Wrapf(err, "store: encode %q", key)
	}
	return s.Save(ctx, key, data)
}

// LoadRecord loads a timestamped record.
func LoadRecord[T any](ctx context.Context, s Store, c Codec, key string) (Record[T], bool, error) {
	return Load[Record[T]](ctx, s, c, key)
}

// SaveRecord stores a timestamped record.
func SaveRecord[T any](ctx context.Context, s Store, c Codec, key string, rec Record[T]) error {
	return Save(ctx, s, c, key, rec)
}
