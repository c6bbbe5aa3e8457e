package finnhub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

const baseURL = "https://finnhub.io/api/v1"

// Finnhub implements the Finnhub REST collector
type Finnhub struct {
	client  *http.Client
	baseURL string
	apiKey  string
	now     func() time.Time
}

// New creates a new Finnhub collector
func New() *Finnhub {
	return &Finnhub{
		client:  collector.NewHTTPClient(collector.DefaultTimeout),
		baseURL: baseURL,
		now:     time.Now,
	}
}

func (f *Finnhub) Name() string {
	return "finnhub"
}

func (f *Finnhub) Init(cfg collector.Config) error {
	if cfg.APIKey == "" {
		return core.Errorf(core.ErrConfigMissing, "finnhub: api key required")
	}
	f.apiKey = cfg.APIKey
	if cfg.BaseURL != "" {
		f.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		f.client = collector.NewHTTPClient(cfg.Timeout)
	}
	return nil
}

// FetchQuote fetches /quote
func (f *Finnhub) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	q := url.Values{"symbol": {symbol}}
	return f.get(ctx, symbol, core.PayloadQuote, "/quote", q)
}

// FetchHistory fetches daily /stock/candle covering lookback trading days
func (f *Finnhub) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	to := f.now()
	from := to.AddDate(0, 0, -collector.CalendarDays(lookback))
	q := url.Values{
		"symbol":     {symbol},
		"resolution": {"D"},
		"from":       {fmt.Sprint(from.Unix())},
		"to":         {fmt.Sprint(to.Unix())},
	}
	return f.get(ctx, symbol, core.PayloadHistory, "/stock/candle", q)
}

// Search fetches /search
func (f *Finnhub) Search(ctx context.Context, query string) (core.RawPayload, error) {
	return collector.Get(ctx, f.client, collector.Request{
		Source: f.Name(),
		Symbol: query,
		Kind:   core.PayloadSearch,
		URL:    f.baseURL + "/search?" + url.Values{"q": {query}}.Encode(),
		Header: http.Header{"X-Finnhub-Token": {f.apiKey}},
	})
}

func (f *Finnhub) get(ctx context.Context, symbol string, kind core.PayloadKind, path string, q url.Values) (core.RawPayload, error) {
	if err := collector.ValidateSymbol(symbol); err != nil {
		return core.RawPayload{}, err
	}

	return collector.Get(ctx, f.client, collector.Request{
		Source: f.Name(),
		Symbol: symbol,
		Kind:   kind,
		URL:    f.baseURL + path + "?" + q.Encode(),
		Header: http.Header{"X-Finnhub-Token": {f.apiKey}},
	})
}
