package upstream

import (
	"context"
	"sync/atomic"
)

type callStateKey struct{}

// CallState collects the signals the provider raised during one call. It is
// carried in the call's context so concurrent calls never see each other's
// signals.
type CallState struct {
	rateLimited atomic.Bool
}

// WithCallState returns a context carrying a fresh CallState.
func WithCallState(ctx context.Context) (context.Context, *CallState) {
	state := &CallState{}
	return context.WithValue(ctx, callStateKey{}, state), state
}

// RateLimited reports whether the provider signalled throttling, even if the
// call returned without error.
func (s *CallState) RateLimited() bool {
	if s == nil {
		return false
	}
	return s.rateLimited.Load()
}

// MarkRateLimited records throttling on the call carried by ctx, if any.
func MarkRateLimited(ctx context.Context) {
	if s, ok := ctx.Value(callStateKey{}).(*CallState); ok {
		s.rateLimited.Store(true)
	}
}
