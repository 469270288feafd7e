package store

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
)

type compositeStore struct {
	stores []Store
}

var _ Store = (*compositeStore)(nil)

// NewComposite chains stores together. Load returns the first hit in order,
// writes go to every store. Panics if no store is given.
func NewComposite(stores ...Store) Store {
	if len(stores) == 0 {
		panic("store: NewComposite requires at least one store")
	}
	return &compositeStore{stores: stores}
}

func (c *compositeStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	for _, s := range c.stores {
		data, found, err := s.Load(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if found {
			return data, true, nil
		}
	}
	return nil, false, nil
}

func (c *compositeStore) Save(ctx context.Context, key string, data []byte) error {
	var firstErr error
	for _, s := range c.stores {
		if err := s.Save(ctx, key, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *compositeStore) Delete(ctx context.Context, key string) (bool, error) {
	var found bool
	var firstErr error
	for _, s := range c.stores {
		ok, err := s.Delete(ctx, key)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		found = found || ok
	}
	return found, firstErr
}

func (c *compositeStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, s := range c.stores {
		keys, err := s.Keys(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (c *compositeStore) Close() error {
	var errs []error
	for _, s := range c.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
