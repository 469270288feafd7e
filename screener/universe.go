package screener

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agentuity/go-marketdata/market"
	"github.com/cockroachdb/errors"
)

// UniverseSource lists the instruments to screen.
type UniverseSource interface {
	Name() string
	Symbols(ctx context.Context) ([]string, error)
}

var defaultUniverse = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "BRK-B", "AVGO", "TSLA", "JPM",
	"LLY", "V", "UNH", "XOM", "MA", "JNJ", "PG", "HD", "COST", "ABBV",
	"MRK", "CVX", "KO", "PEP", "ADBE", "WMT", "CRM", "BAC", "NFLX", "ORCL",
}

// DefaultUniverse is served when no source has ever answered.
func DefaultUniverse() []string {
	return append([]string(nil), defaultUniverse...)
}

// StaticSource is a fixed list.
type StaticSource []string

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Symbols(context.Context) ([]string, error) {
	return normalizeUniverse(s), nil
}

// FileSource reads a CSV file with a Symbol column, or a plain list with one
// symbol per line.
type FileSource struct {
	Path string
}

func (s FileSource) Name() string { return "file:" + s.Path }

func (s FileSource) Symbols(context.Context) ([]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "screener: open universe")
	}
	defer f.Close()
	return ParseSymbols(f)
}

// HTTPSource downloads a CSV with a Symbol column.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

const httpSourceTimeout = 30 * time.Second

func (s HTTPSource) Name() string { return s.URL }

func (s HTTPSource) Symbols(ctx context.Context) ([]string, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: httpSourceTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "screener: build universe request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "screener: fetch universe")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("screener: universe status %d", resp.StatusCode)
	}
	return ParseSymbols(resp.Body)
}

var symbolHeaders = []string{"symbol", "ticker"}

// ParseSymbols reads symbols from CSV. When the first row has a Symbol or
// Ticker column that column is used, otherwise the first column of every
// row. Share classes written with a dot (BRK.B) use the provider's dash.
func ParseSymbols(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "screener: parse universe")
	}
	if len(records) == 0 {
		return nil, nil
	}
	col, start := 0, 0
	for i, name := range records[0] {
		for _, h := range symbolHeaders {
			if strings.EqualFold(strings.TrimSpace(name), h) {
				col, start = i, 1
				break
			}
		}
		if start == 1 {
			break
		}
	}
	out := make([]string, 0, len(records)-start)
	for _, rec := range records[start:] {
		if col < len(rec) {
			out = append(out, rec[col])
		}
	}
	return normalizeUniverse(out), nil
}

func normalizeUniverse(symbols []string) []string {
	out := make([]string, len(symbols))
	for i, s := range symbols {
		out[i] = strings.ReplaceAll(s, ".", "-")
	}
	return market.NormalizeSymbols(out)
}
