package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/agentuity/go-marketdata/screener"
	"github.com/agentuity/go-marketdata/store"
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// NewUpstream builds the Yahoo client from the upstream section.
func (c Config) NewUpstream(log logger.Logger) *upstream.Yahoo {
	opts := []upstream.YahooOption{upstream.WithTimeout(c.Upstream.Timeout.D())}
	if c.Upstream.BaseURL != "" {
		opts = append(opts, upstream.WithBaseURL(c.Upstream.BaseURL))
	}
	if c.Upstream.UserAgent != "" {
		opts = append(opts, upstream.WithUserAgent(c.Upstream.UserAgent))
	}
	return upstream.NewYahoo(log, opts...)
}

// UniverseSource resolves the screener universe setting.
func (c Config) UniverseSource() screener.UniverseSource {
	u := strings.TrimSpace(c.Screener.Universe)
	switch {
	case u == "":
		return screener.StaticSource(screener.DefaultUniverse())
	case strings.HasPrefix(u, "http://"), strings.HasPrefix(u, "https://"):
		return screener.HTTPSource{URL: u}
	case strings.Contains(u, ",") && !strings.ContainsAny(u, `/\`):
		return screener.StaticSource(strings.Split(u, ","))
	default:
		return screener.FileSource{Path: u}
	}
}

// Codec returns the configured store codec.
func (c Config) Codec() store.Codec {
	codec, err := store.CodecByName(c.Store.Codec)
	if err != nil {
		return store.JSONCodec{}
	}
	return codec
}

// OpenStore opens the configured backend. The none backend returns nil.
// When a redis URL is set alongside the file or sqlite backend, redis is
// layered in front of the local store.
func (c Config) OpenStore(ctx context.Context) (store.Store, error) {
	var local store.Store
	var err error
	switch c.Store.Backend {
	case "none":
		return nil, nil
	case "memory":
		return store.NewMemory(), nil
	case "redis":
		return c.openRedis(ctx)
	case "file":
		local, err = store.NewFile(c.Store.Path)
	case "sqlite":
		path := sqlitePath(c.Store.Path)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			local, err = store.NewSQLite(ctx, path)
		}
	default:
		return nil, invalid("unknown store backend %q", c.Store.Backend)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "config: open %s store", c.Store.Backend)
	}
	if c.Store.RedisURL == "" {
		return local, nil
	}
	remote, err := c.openRedis(ctx)
	if err != nil {
		local.Close()
		return nil, err
	}
	return store.NewComposite(remote, local), nil
}

func sqlitePath(p string) string {
	if filepath.Ext(p) != "" {
		return p
	}
	return filepath.Join(p, "marketdata.db")
}

func (c Config) openRedis(ctx context.Context) (store.Store, error) {
	opts, err := redis.ParseURL(c.Store.RedisURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "config: parse redis url"), ErrInvalid)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "config: connect redis")
	}
	var sopts []store.Option
	if c.Store.Prefix != "" {
		sopts = append(sopts, store.WithPrefix(c.Store.Prefix))
	}
	return &ownedRedis{Store: store.NewRedis(client, sopts...), client: client}, nil
}

// ownedRedis closes the client it was opened with.
type ownedRedis struct {
	store.Store
	client *redis.Client
}

func (s *ownedRedis) Close() error {
	return errors.CombineErrors(s.Store.Close(), s.client.Close())
}
