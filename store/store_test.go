package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFile(t.TempDir())
	require.NoError(t, err)
	sqlite, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	sqliteFile, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	_, client := newTestRedis(t)
	return map[string]Store{
		"memory":      NewMemory(),
		"file":        file,
		"sqlite":      sqlite,
		"sqlite-file": sqliteFile,
		"redis":       NewRedis(client, WithPrefix("md")),
		"composite":   NewComposite(NewMemory(), NewMemory()),
	}
}

func TestStoreBackends(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer s.Close()

			data, found, err := s.Load(ctx, "missing")
			assert.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, data)

			require.NoError(t, s.Save(ctx, "snapshot/series/AAPL|1y|1d", []byte(`{"a":1}`)))
			require.NoError(t, s.Save(ctx, "snapshot/kpi/AAPL", []byte(`{"b":2}`)))
			require.NoError(t, s.Save(ctx, "ratelimit/cooldown", []byte(`{}`)))

			data, found, err = s.Load(ctx, "snapshot/series/AAPL|1y|1d")
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, `{"a":1}`, string(data))

			require.NoError(t, s.Save(ctx, "snapshot/kpi/AAPL", []byte(`{"b":3}`)))
			data, _, _ = s.Load(ctx, "snapshot/kpi/AAPL")
			assert.Equal(t, `{"b":3}`, string(data))

			keys, err := s.Keys(ctx, "snapshot/")
			assert.NoError(t, err)
			assert.Equal(t, []string{"snapshot/kpi/AAPL", "snapshot/series/AAPL|1y|1d"}, keys)

			ok, err := s.Delete(ctx, "snapshot/kpi/AAPL")
			assert.NoError(t, err)
			assert.True(t, ok)
			ok, err = s.Delete(ctx, "snapshot/kpi/AAPL")
			assert.NoError(t, err)
			assert.False(t, ok)

			keys, err = s.Keys(ctx, "")
			assert.NoError(t, err)
			assert.Len(t, keys, 2)
		})
	}
}

func TestRedisPrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedis(client, WithPrefix("md"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "snapshot/kpi/AAPL", []byte("1")))
	require.NoError(t, client.Set(ctx, "snapshot/kpi/MSFT", "other", 0).Err())
	assert.True(t, mr.Exists("md:snapshot/kpi/AAPL"))

	keys, err := s.Keys(ctx, "snapshot/")
	assert.NoError(t, err)
	assert.Equal(t, []string{"snapshot/kpi/AAPL"}, keys)
}

func TestRedisNoExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedis(client)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "k", []byte("v")))
	mr.FastForward(24 * time.Hour)
	_, found, err := s.Load(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, found)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, SaveRecord(ctx, s, JSONCodec{}, "ratelimit/cooldown", NewRecord(time.Unix(100, 0), 42)))

	reopened, err := NewFile(dir)
	require.NoError(t, err)
	rec, found, err := LoadRecord[int](ctx, reopened, JSONCodec{}, "ratelimit/cooldown")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 42, rec.Payload)
	assert.Equal(t, int64(100), rec.Time().Unix())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestCompositeReadsThrough(t *testing.T) {
	ctx := context.Background()
	front, back := NewMemory(), NewMemory()
	require.NoError(t, back.Save(ctx, "k", []byte("back")))
	c := NewComposite(front, back)

	data, found, err := c.Load(ctx, "k")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "back", string(data))

	require.NoError(t, c.Save(ctx, "k", []byte("both")))
	data, _, _ = front.Load(ctx, "k")
	assert.Equal(t, "both", string(data))

	assert.Panics(t, func() { NewComposite() })
}

type sample struct {
	Name  string   `json:"name" msgpack:"name"`
	Price *float64 `json:"price" msgpack:"price"`
}

func TestRecordCodecs(t *testing.T) {
	ctx := context.Background()
	price := 187.5
	for _, c := range []Codec{JSONCodec{}, MsgpackCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			s := NewMemory()
			ts := time.Date(2024, time.May, 1, 12, 0, 0, 500_000_000, time.UTC)
			require.NoError(t, SaveRecord(ctx, s, c, "k", NewRecord(ts, sample{Name: "AAPL", Price: &price})))
			rec, found, err := LoadRecord[sample](ctx, s, c, "k")
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "AAPL", rec.Payload.Name)
			assert.Equal(t, 187.5, *rec.Payload.Price)
			assert.WithinDuration(t, ts, rec.Time(), time.Millisecond)
		})
	}
}

func TestRecordJSONShape(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, SaveRecord(ctx, s, JSONCodec{}, "k", NewRecord(time.Unix(10, 0), map[string]int{"x": 1})))
	data, _, _ := s.Load(ctx, "k")
	assert.JSONEq(t, `{"ts":10,"payload":{"x":1}}`, string(data))
}

func TestLoadCorrupt(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.Save(ctx, "k", []byte("{not json")))
	_, found, err := LoadRecord[sample](ctx, s, JSONCodec{}, "k")
	assert.False(t, found)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	assert.Equal(t, "msgpack", c.Name())
	_, err = CodecByName("xml")
	assert.Error(t, err)
}
