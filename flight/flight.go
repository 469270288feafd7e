package flight

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrPanicked marks the error shared with every caller when the leader panics.
	ErrPanicked = errors.New("flight: function panicked")
	// ErrTypeMismatch marks a shared result of another type than the caller
	// expects, which happens when two call sites reuse a key for different T.
	ErrTypeMismatch = errors.New("flight: result type mismatch")
)

// Group coalesces concurrent calls with the same key into one execution.
// It is not a cache: once the leader returns the key is forgotten.
type Group struct {
	group    singleflight.Group
	inflight atomic.Int64
}

// Do executes fn once per key among concurrent callers. shared reports
// whether the result was delivered to more than one caller. Waiters whose
// ctx is cancelled return early; the leader keeps running for the others.
func (g *Group) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, bool, error) {
	ch := g.group.DoChan(key, func() (val any, err error) {
		g.inflight.Add(1)
		defer g.inflight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				err = errors.Mark(errors.Newf("flight: %s: panic: %v\n%s", key, r, debug.Stack()), ErrPanicked)
				val = nil
			}
		}()
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InFlight returns the number of keys currently executing.
func (g *Group) InFlight() int {
	return int(g.inflight.Load())
}

// Do is the typed form of Group.Do.
func Do[T any](ctx context.Context, g *Group, key string, fn func(ctx context.Context) (T, error)) (T, bool, error) {
	val, shared, err := g.Do(ctx, key, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, shared, err
	}
	if val == nil {
		var zero T
		return zero, shared, nil
	}
	typed, ok := val.(T)
	if !ok {
		var zero T
		return zero, shared, errors.Mark(errors.Newf("flight: %s: got %T, want %T", key, val, zero), ErrTypeMismatch)
	}
	return typed, shared, nil
}

// Symbols marks a set of instrument symbols inside Key. The set is
// normalized, deduplicated and sorted so order does not matter.
type Symbols []string

// Symbol marks a single instrument symbol inside Key.
type Symbol string

// Key builds the canonical coalescing key for op and its parameters.
// Equivalent requests map to the same key: symbols are normalized, symbol
// sets are sorted, map keys are sorted. The flattened form is hashed.
func Key(op string, parts ...any) string {
	var sb strings.Builder
	sb.WriteString(op)
	for _, p := range parts {
		sb.WriteByte(0x1f)
		writeCanonical(&sb, p)
	}
	return fmt.Sprintf("%s:%016x", op, xxhash.Sum64String(sb.String()))
}

func writeCanonical(sb *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		sb.WriteString("<nil>")
	case Symbol:
		sb.WriteString(market.NormalizeSymbol(string(t)))
	case Symbols:
		syms := market.NormalizeSymbols(t)
		sort.Strings(syms)
		sb.WriteString("[")
		sb.WriteString(strings.Join(syms, ","))
		sb.WriteString("]")
	case market.Key:
		sb.WriteString(t.String())
	case string:
		sb.WriteString(strings.TrimSpace(t))
	case []string:
		sb.WriteString("[")
		for i, s := range t {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strings.TrimSpace(s))
		}
		sb.WriteString("]")
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k + "=" + strings.TrimSpace(t[k]))
		}
		sb.WriteString("}")
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(k + "=")
			writeCanonical(sb, t[k])
		}
		sb.WriteString("}")
	case float64:
		sb.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case time.Duration:
		sb.WriteString(t.String())
	case time.Time:
		sb.WriteString(t.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		sb.WriteString(t.String())
	default:
		fmt.Fprintf(sb, "%v", t)
	}
}
