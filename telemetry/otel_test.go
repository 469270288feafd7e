package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-marketdata/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestGenerateOTLPBearerTokenWithNoExpiration(t *testing.T) {
	token, err := GenerateOTLPBearerToken("test-shared-secret", "test-token")
	assert.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 2)
	assert.True(t, strings.HasPrefix(token, "test-token."))
}

func TestGenerateOTLPBearerTokenWithExpiration(t *testing.T) {
	token, err := GenerateOTLPBearerTokenWithExpiration("test-shared-secret", time.Now().Add(time.Hour))
	require.NoError(t, err)
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	assert.Equal(t, "1h", parts[0])
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Unix(), issued, 5)

	token, err = GenerateOTLPBearerTokenWithExpiration("test-shared-secret", time.Now().Add(time.Hour*24*30))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "4w"))
}

func TestGenerateOTLPBearerTokenError(t *testing.T) {
	token, err := GenerateOTLPBearerTokenWithExpiration("secret", time.Now().Add(-1*time.Hour))
	assert.Error(t, err)
	assert.Empty(t, token)
	assert.Contains(t, err.Error(), "expiration time is in the past")
}

type collector struct {
	mu    sync.Mutex
	paths map[string]int
	auth  []string
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	c.paths[r.URL.Path]++
	c.auth = append(c.auth, r.Header.Get("Authorization"))
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (c *collector) hits(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paths[path]
}

func TestNewExportsLogsAndTraces(t *testing.T) {
	col := &collector{paths: map[string]int{}}
	server := httptest.NewServer(col)
	defer server.Close()
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	base := logger.NewTestLogger()
	ctx, log, shutdown, err := New(context.Background(), Options{
		ServiceName:  "marketdata-test",
		Endpoint:     server.URL,
		SharedSecret: "test-secret",
	}, base)
	require.NoError(t, err)
	require.NotNil(t, ctx)

	ctx, spanLog, span := StartSpan(ctx, log, otel.Tracer("test"), "fetch series")
	spanLog.Info("fetched %s", "AAPL")
	span.End()
	shutdown()

	assert.True(t, base.Has("INFO", "fetched AAPL"))
	assert.Equal(t, 1, col.hits("/v1/logs"))
	assert.Equal(t, 1, col.hits("/v1/traces"))
	for _, auth := range col.auth {
		assert.True(t, strings.HasPrefix(auth, "Bearer 1d."), auth)
	}
}

func TestNewWithoutBaseLogger(t *testing.T) {
	server := httptest.NewServer(&collector{paths: map[string]int{}})
	defer server.Close()
	defer otel.SetTracerProvider(noop.NewTracerProvider())

	_, log, shutdown, err := New(context.Background(), Options{ServiceName: "test", Endpoint: server.URL}, nil)
	require.NoError(t, err)
	require.NotNil(t, log)
	shutdown()
}

func TestStartSpanNoop(t *testing.T) {
	log := logger.NewTestLogger()
	ctx, log2, span := StartSpan(context.Background(), log, noop.NewTracerProvider().Tracer("test"), "test-span")
	require.NotNil(t, ctx)
	require.NotNil(t, log2)
	span.End()
}

func TestNewWithInvalidURL(t *testing.T) {
	ctx, log, shutdown, err := New(context.Background(), Options{ServiceName: "test", Endpoint: "://invalid-url"}, nil)
	assert.Error(t, err)
	assert.Nil(t, ctx)
	assert.Nil(t, log)
	assert.Nil(t, shutdown)
	assert.Contains(t, err.Error(), "error parsing oltpServerURL")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "http://collector:4318 (service=md, auth=none)", Options{ServiceName: "md", Endpoint: "http://collector:4318"}.Describe())
}
