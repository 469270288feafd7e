package fetch

import (
	"context"

	"github.com/agentuity/go-marketdata/market"
	"github.com/agentuity/go-marketdata/upstream"
)

const (
	batchPeriod   = "ytd"
	batchInterval = "1d"
)

// GetBatch returns a watchlist summary for every symbol. Fresh and suppressed
// symbols are answered from memory; the rest are fetched in chunks with a
// pause between chunks. Each symbol falls back to its own stale entry or the
// default summary independently, so the map always has every symbol.
func (s *Service) GetBatch(ctx context.Context, symbols []string) map[string]market.Summary {
	syms := market.NormalizeSymbols(symbols)
	out := make(map[string]market.Summary, len(syms))
	pending := make([]string, 0, len(syms))
	for _, sym := range syms {
		if v, ok, _ := s.summary.cached(market.SymbolKey(sym)); ok {
			out[sym] = v
			continue
		}
		pending = append(pending, sym)
	}

	chunks := chunk(pending, s.cfg.ChunkSize)
	for i, c := range chunks {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.ChunkDelay); err != nil {
				for _, rest := range chunks[i:] {
					s.degradeSummaries(rest, err, out)
				}
				break
			}
		}
		s.fetchChunk(ctx, c, out)
	}
	if s.logger.IsDebugEnabled() {
		s.logger.Debug("batch of %d symbols, %d fetched in %d chunks", len(syms), len(pending), len(chunks))
	}
	return out
}

// GetSummary returns the watchlist summary of one symbol.
func (s *Service) GetSummary(ctx context.Context, symbol string) (market.Summary, error) {
	key := market.SymbolKey(symbol)
	if key.Symbol == "" {
		return market.EmptySummary(key), invalidSymbol()
	}
	return resolve(ctx, s.summary, key, func(ctx context.Context) (market.Summary, error) {
		resp, err := s.FetchWithRetry(ctx, RequestBatch{Symbols: []string{key.Symbol}, Period: batchPeriod, Interval: batchInterval})
		if err != nil {
			return market.Summary{}, err
		}
		sum, ok := buildSummary(key.Symbol, resp.Frames[key.Symbol], s.cfg.SparklinePoints)
		if !ok {
			return market.Summary{}, notFound(key.Symbol)
		}
		return sum, nil
	})
}

func (s *Service) fetchChunk(ctx context.Context, symbols []string, out map[string]market.Summary) {
	resp, err := s.FetchWithRetry(ctx, RequestBatch{Symbols: symbols, Period: batchPeriod, Interval: batchInterval})
	if err != nil {
		s.degradeSummaries(symbols, err, out)
		return
	}
	for _, sym := range symbols {
		key := market.SymbolKey(sym)
		sum, ok := buildSummary(sym, resp.Frames[sym], s.cfg.SparklinePoints)
		if !ok {
			out[sym], _ = s.summary.degrade(key, notFound(sym))
			continue
		}
		s.summary.commit(ctx, key, sum)
		out[sym] = sum
	}
}

func (s *Service) degradeSummaries(symbols []string, cause error, out map[string]market.Summary) {
	for _, sym := range symbols {
		out[sym], _ = s.summary.degrade(market.SymbolKey(sym), cause)
	}
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		out = append(out, symbols[:n])
		symbols = symbols[n:]
	}
	return out
}

// buildSummary turns a year-to-date frame into a watchlist row. ok is false
// when the frame has no prices.
func buildSummary(symbol string, f upstream.Frame, points int) (market.Summary, bool) {
	bars := market.SortBars(append([]market.Bar(nil), f.Bars...))
	if len(bars) == 0 {
		return market.Summary{}, false
	}
	sum := market.EmptySummary(market.SymbolKey(symbol))
	if name := firstNonEmpty(f.MetaString("shortName"), f.MetaString("longName")); name != "" {
		sum.CompanyName = name
	}
	sum.Exchange = f.MetaString("exchangeName")

	last := bars[len(bars)-1].Close
	sum.CurrentPrice = last
	if len(bars) > 1 {
		prev := bars[len(bars)-2].Close
		sum.DailyChange = last - prev
		if prev != 0 {
			sum.DailyPct = sum.DailyChange / prev * 100
		}
	}
	first := bars[0].Close
	sum.YTDChange = last - first
	if first != 0 {
		sum.YTDPct = sum.YTDChange / first * 100
	}

	start := max(0, len(bars)-points)
	sum.Sparkline = make([]float64, 0, len(bars)-start)
	for _, b := range bars[start:] {
		sum.Sparkline = append(sum.Sparkline, b.Close)
	}
	return sum, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
