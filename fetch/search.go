package fetch

import (
	"context"
	"strings"

	"github.com/agentuity/go-marketdata/market"
)

const (
	// SearchQuotes is the number of instruments an autocomplete returns.
	SearchQuotes = 6
	// NewsItems is the number of headlines kept per instrument.
	NewsItems = 10
)

// Search returns the instruments matching a free-text query, for
// autocompletion. Results are cached per query, case-insensitively.
func (s *Service) Search(ctx context.Context, query string) (market.SearchResult, error) {
	key := market.SymbolKey(query)
	req := RequestSearch{Query: query, Quotes: SearchQuotes}
	if err := req.validate(); err != nil {
		return market.EmptySearch(key), err
	}
	return resolve(ctx, s.search, key, func(ctx context.Context) (market.SearchResult, error) {
		resp, err := s.FetchWithRetry(ctx, req)
		if err != nil {
			return market.SearchResult{}, err
		}
		return market.SearchResult{Query: key.Symbol, Quotes: resp.Search.Quotes}, nil
	})
}

// GetNews returns the latest headlines about symbol, newest first.
func (s *Service) GetNews(ctx context.Context, symbol string) (market.News, error) {
	key := market.SymbolKey(symbol)
	if key.Symbol == "" || strings.Contains(key.Symbol, "|") {
		return market.EmptyNews(key), invalidSymbol()
	}
	return resolve(ctx, s.news, key, func(ctx context.Context) (market.News, error) {
		resp, err := s.FetchWithRetry(ctx, RequestSearch{Query: key.Symbol, News: NewsItems})
		if err != nil {
			return market.News{}, err
		}
		return market.News{Symbol: key.Symbol, Items: resp.Search.News}, nil
	})
}
