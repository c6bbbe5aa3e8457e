package alphavantage

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const (
	baseURL = "https://www.alphavantage.co/query"

	// compactBars is how many daily bars outputsize=compact returns.
	compactBars = 100
)

// AlphaVantage implements the Alpha Vantage query collector
type AlphaVantage struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// New creates a new Alpha Vantage collector
func New() *AlphaVantage {
	return &AlphaVantage{
		client:  collector.NewHTTPClient(collector.DefaultTimeout),
		baseURL: baseURL,
	}
}

func (a *AlphaVantage) Name() string {
	return "alphavantage"
}

func (a *AlphaVantage) Init(cfg collector.Config) error {
	if cfg.APIKey == "" {
		return core.Errorf(core.ErrConfigMissing, "alphavantage: api key required")
	}
	a.apiKey = cfg.APIKey
	if cfg.BaseURL != "" {
		a.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		a.client = collector.NewHTTPClient(cfg.Timeout)
	}
	return nil
}

// FetchQuote calls GLOBAL_QUOTE
func (a *AlphaVantage) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	return a.query(ctx, symbol, core.PayloadQuote, url.Values{
		"function": {"GLOBAL_QUOTE"},
	})
}

// FetchHistory calls TIME_SERIES_DAILY, asking for the full series only when
// the compact one is too short.
func (a *AlphaVantage) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	size := "compact"
	if lookback > compactBars {
		size = "full"
	}
	return a.query(ctx, symbol, core.PayloadHistory, url.Values{
		"function":   {"TIME_SERIES_DAILY"},
		"outputsize": {size},
	})
}

func (a *AlphaVantage) query(ctx context.Context, symbol string, kind core.PayloadKind, q url.Values) (core.RawPayload, error) {
	if err := collector.ValidateSymbol(symbol); err != nil {
		return core.RawPayload{}, err
	}
	q.Set("symbol", symbol)
	q.Set("apikey", a.apiKey)

	return collector.Get(ctx, a.client, collector.Request{
		Source: a.Name(),
		Symbol: symbol,
		Kind:   kind,
		URL:    a.baseURL + "?" + q.Encode(),
	})
}
