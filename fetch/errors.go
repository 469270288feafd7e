package fetch

import (
	"github.com/agentuity/go-marketdata/upstream"
	"github.com/cockroachdb/errors"
)

var (
	// ErrNotFound is returned when the provider has no data for an instrument.
	// Errors carrying it are also marked upstream.ErrEmpty.
	ErrNotFound = errors.New("fetch: not found")
	// ErrInvalidRequest is returned for malformed input such as an empty symbol.
	ErrInvalidRequest = errors.New("fetch: invalid request")
)

func notFound(what string) error {
	return errors.Mark(errors.Mark(errors.Newf("fetch: no data for %s", what), ErrNotFound), upstream.ErrEmpty)
}

// IsNotFound reports whether err means the instrument has no data.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
