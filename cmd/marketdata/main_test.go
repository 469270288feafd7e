package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/ratelimit"
	"github.com/agentuity/go-marketdata/store"
	"github.com/agentuity/go-marketdata/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chartBody = `{"chart":{"result":[{"meta":{"currency":"USD","symbol":"AAPL","exchangeName":"NMS","longName":"Apple Inc."},
"timestamp":[1704205800,1704292200],
"indicators":{"quote":[{"open":[187.1,184.2],"high":[188.4,185.8],"low":[183.8,183.4],"close":[185.6,184.2],"volume":[82488700,58414500]}],
"adjclose":[{"adjclose":[185.0,183.7]}]}}],"error":null}}`

func run(t *testing.T, dir string, args ...string) error {
	t.Helper()
	root, cleanup := newRootCommand()
	defer cleanup()
	root.SetArgs(append(args, "--store", "file", "--state-dir", dir, "--env-file", filepath.Join(dir, "missing.env"), "--log-level", "error"))
	return root.ExecuteContext(context.Background())
}

func TestCooldownPersistsAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	out := captureStdout(t)
	require.NoError(t, run(t, dir, "cooldown", "--trigger", "10m", "--json"))
	var gate ratelimit.Status
	require.NoError(t, json.Unmarshal(out.Bytes(), &gate))
	assert.Zero(t, gate.Strikes, "a manual cooldown is not a strike")
	assert.True(t, gate.CoolingDown())

	fs, err := store.NewFile(dir)
	require.NoError(t, err)
	state, found, err := store.Load[map[string]float64](context.Background(), fs, store.JSONCodec{}, ratelimit.StateKey)
	require.NoError(t, err)
	require.True(t, found)
	until := store.FromEpochSeconds(state["cooldown_until"])
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), until, time.Minute)

	require.NoError(t, run(t, dir, "status", "--json"))
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := tui.Stdout
	tui.Stdout = &buf
	t.Cleanup(func() { tui.Stdout = original })
	return &buf
}

func TestSeriesIsServedFromSnapshotsOnNextRun(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(chartBody))
	}))
	defer srv.Close()
	t.Setenv("MARKETDATA_UPSTREAM_BASE_URL", srv.URL)

	dir := t.TempDir()
	out := captureStdout(t)
	require.NoError(t, run(t, dir, "series", "AAPL", "--json"))
	var series market.Series
	require.NoError(t, json.Unmarshal(out.Bytes(), &series))
	assert.Equal(t, "AAPL", series.Symbol)
	assert.Len(t, series.Bars, 2)
	assert.False(t, series.Stale)

	require.NoError(t, run(t, dir, "series", "AAPL", "--period", "6m", "--json"))
	assert.Equal(t, int32(1), hits.Load(), "second run restored the snapshot")

	fs, err := store.NewFile(dir)
	require.NoError(t, err)
	keys, err := fs.Keys(context.Background(), "snapshot/series/")
	require.NoError(t, err)
	assert.Equal(t, []string{"snapshot/series/AAPL|2y|1d"}, keys)
}

func TestPurgeWithoutConfirmationKeepsSnapshots(t *testing.T) {
	dir := t.TempDir()
	fs, err := store.NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Save(context.Background(), "snapshot/info/AAPL", []byte(`{"ts":1,"payload":{}}`)))

	require.NoError(t, run(t, dir, "purge"))
	_, found, err := fs.Load(context.Background(), "snapshot/info/AAPL")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, run(t, dir, "purge", "info", "--yes"))
	_, found, err = fs.Load(context.Background(), "snapshot/info/AAPL")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUnknownKindIsRejected(t *testing.T) {
	assert.Error(t, run(t, t.TempDir(), "purge", "bogus", "--yes"))
}

func TestMetricsCommand(t *testing.T) {
	assert.NoError(t, run(t, t.TempDir(), "metrics", "--json"))
}

const searchBody = `{"quotes":[{"symbol":"AAPL","shortname":"Apple","longname":"Apple Inc.","exchDisp":"NASDAQ","quoteType":"EQUITY"}],
"news":[{"uuid":"1","title":"Apple ships","publisher":"Wire","link":"https://example.com/1","providerPublishTime":1714680000}]}`

func TestSearchAndNewsCommands(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path+"?newsCount="+r.URL.Query().Get("newsCount"))
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()
	t.Setenv("MARKETDATA_UPSTREAM_BASE_URL", srv.URL)
	dir := t.TempDir()

	out := captureStdout(t)
	require.NoError(t, run(t, dir, "search", "apple", "inc", "--json"))
	var res market.SearchResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "APPLE INC", res.Query)
	require.Len(t, res.Quotes, 1)
	assert.Equal(t, "Apple Inc.", res.Quotes[0].Name)

	out.Reset()
	require.NoError(t, run(t, dir, "news", "aapl", "--json"))
	var news market.News
	require.NoError(t, json.Unmarshal(out.Bytes(), &news))
	assert.Equal(t, "AAPL", news.Symbol)
	require.Len(t, news.Items, 1)
	assert.Equal(t, "Apple ships", news.Items[0].Title)

	assert.Equal(t, []string{"/v1/finance/search?newsCount=0", "/v1/finance/search?newsCount=10"}, paths)
}
