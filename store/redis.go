package store

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client redis.UniversalClient
	cfg    config
}

var _ Store = (*redisStore)(nil)

// NewRedis returns a Store backed by Redis. Keys never expire.
// The caller owns the client lifecycle; Close is a no-op on the client.
func NewRedis(client redis.UniversalClient, opts ...Option) Store {
	return &redisStore{client: client, cfg: applyOptions(opts)}
}

func (s *redisStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.cfg.queryTimeout)
}

func (s *redisStore) prefixKey(key string) string {
	if s.cfg.prefix == "" {
		return key
	}
	return s.cfg.prefix + ":" + key
}

func (s *redisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	data, err := s.client.Get(qctx, s.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "store: load %q", key)
	}
	return data, true, nil
}

func (s *redisStore) Save(ctx context.Context, key string, data []byte) error {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	return errors.Wrapf(s.client.Set(qctx, s.prefixKey(key), data, 0).Err(), "store: save %q", key)
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	n, err := s.client.Del(qctx, s.prefixKey(key)).Result()
	if err != nil {
		return false, errors.Wrapf(err, "store: delete %q", key)
	}
	return n > 0, nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func (s *redisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	qctx, cancel := s.queryCtx(ctx)
	defer cancel()
	match := globEscaper.Replace(s.prefixKey(prefix)) + "*"
	strip := len(s.prefixKey(""))
	var keys []string
	iter := s.client.Scan(qctx, 0, match, 100).Iterator()
	for iter.Next(qctx) {
		keys = append(keys, iter.Val()[strip:])
	}
	if err := iter.Err(); err != nil {
		return nil, errors.Wrap(err, "store: scan keys")
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *redisStore) Close() error {
	return nil
}
