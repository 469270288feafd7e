package upstream

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	rateLimited := errors.Mark(errors.New("429"), ErrRateLimited)
	empty := errors.Mark(errors.New("no data"), ErrEmpty)
	network := errors.New("connection reset")

	tests := []struct {
		name     string
		err      error
		empty    bool
		flag     bool
		expected Outcome
	}{
		{"ok", nil, false, false, OutcomeOK},
		{"empty frame", nil, true, false, OutcomeEmpty},
		{"empty error", empty, false, false, OutcomeEmpty},
		{"rate limited error", rateLimited, false, false, OutcomeRateLimited},
		{"wrapped rate limited", errors.Wrap(rateLimited, "fetch"), false, false, OutcomeRateLimited},
		{"side channel on empty", nil, true, true, OutcomeRateLimited},
		{"side channel on error", network, false, true, OutcomeRateLimited},
		{"transient", network, false, false, OutcomeTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err, tt.empty, tt.flag))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "rate_limited", OutcomeRateLimited.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}

func TestFrameMeta(t *testing.T) {
	f := Frame{Meta: map[string]any{"longName": "Apple Inc.", "regularMarketPrice": 187.5}}
	assert.Equal(t, "Apple Inc.", f.MetaString("longName"))
	assert.Equal(t, "187.5", f.MetaString("regularMarketPrice"))
	assert.Equal(t, "", f.MetaString("missing"))
	assert.True(t, f.Empty())
}

func TestCallState(t *testing.T) {
	MarkRateLimited(context.Background())

	ctx, state := WithCallState(context.Background())
	_, otherState := WithCallState(context.Background())
	assert.False(t, state.RateLimited())
	MarkRateLimited(ctx)
	assert.True(t, state.RateLimited())
	assert.False(t, otherState.RateLimited(), "signals stay with their call")

	var none *CallState
	assert.False(t, none.RateLimited())
}
