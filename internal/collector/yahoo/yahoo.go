package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	baseURL   = "https://query1.finance.yahoo.com/v8/finance/chart"
	searchURL = "https://query1.finance.yahoo.com/v1/finance/search"
)

// Yahoo implements the Yahoo Finance chart and search collector
type Yahoo struct {
	client    *http.Client
	baseURL   string
	searchURL string
}

// New creates a new Yahoo collector
func New() *Yahoo {
	return &Yahoo{
		client:    collector.NewHTTPClient(collector.DefaultTimeout),
		baseURL:   baseURL,
		searchURL: searchURL,
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

func (y *Yahoo) Init(cfg collector.Config) error {
	if cfg.BaseURL != "" {
		y.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if u, ok := cfg.Extra["search_url"].(string); ok && u != "" {
		y.searchURL = strings.TrimRight(u, "/")
	}
	if cfg.Timeout > 0 {
		y.client = collector.NewHTTPClient(cfg.Timeout)
	}
	return nil
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	// Share classes: BRK.B -> BRK-B
	if i := strings.LastIndex(symbol, "."); i > 0 && len(symbol)-i == 2 {
		return symbol[:i] + "-" + symbol[i+1:]
	}
	return symbol
}

// FetchQuote fetches the one-day chart whose meta block carries the quote
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	return y.chart(ctx, symbol, core.PayloadQuote, "1d")
}

// FetchHistory fetches daily bars covering at least lookback trading days
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	return y.chart(ctx, symbol, core.PayloadHistory, collector.RangeForLookback(lookback))
}

func (y *Yahoo) chart(ctx context.Context, symbol string, kind core.PayloadKind, rng string) (core.RawPayload, error) {
	if err := collector.ValidateSymbol(symbol); err != nil {
		return core.RawPayload{}, err
	}

	u := fmt.Sprintf("%s/%s?interval=1d&range=%s", y.baseURL, url.PathEscape(y.toYahooSymbol(symbol)), rng)

	return collector.Get(ctx, y.client, collector.Request{
		Source: y.Name(),
		Symbol: symbol,
		Kind:   kind,
		URL:    u,
	})
}

// Search looks up symbols and company names matching query
func (y *Yahoo) Search(ctx context.Context, query string) (core.RawPayload, error) {
	q := url.Values{
		"q":           {query},
		"quotesCount": {fmt.Sprint(core.MaxSearchResults)},
		"newsCount":   {"0"},
	}
	return collector.Get(ctx, y.client, collector.Request{
		Source: y.Name(),
		Symbol: query,
		Kind:   core.PayloadSearch,
		URL:    y.searchURL + "?" + q.Encode(),
	})
}
