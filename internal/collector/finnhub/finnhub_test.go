package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

func TestFinnhub_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*Finnhub)(nil)
}

func TestFinnhub_InitRequiresKey(t *testing.T) {
	err := New().Init(collector.Config{})
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestFinnhub_FetchQuote(t *testing.T) {
	var gotToken, gotSymbol, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Finnhub-Token")
		gotSymbol = r.URL.Query().Get("symbol")
		w.Write([]byte(`{"c":190.5,"pc":188}`))
	}))
	defer srv.Close()

	f := New()
	require.NoError(t, f.Init(collector.Config{APIKey: "secret", BaseURL: srv.URL}))

	payload, err := f.FetchQuote(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "/quote", gotPath)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, "AAPL", gotSymbol)
	assert.Equal(t, "finnhub", payload.Source)
	assert.Equal(t, core.PayloadQuote, payload.Kind)
}

func TestFinnhub_FetchHistoryWindow(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var from, to int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from, _ = strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, _ = strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		assert.Equal(t, "D", r.URL.Query().Get("resolution"))
		w.Write([]byte(`{"s":"no_data"}`))
	}))
	defer srv.Close()

	f := New()
	f.now = func() time.Time { return now }
	require.NoError(t, f.Init(collector.Config{APIKey: "k", BaseURL: srv.URL}))

	_, err := f.FetchHistory(context.Background(), "AAPL", 252)
	require.NoError(t, err)

	assert.Equal(t, now.Unix(), to)
	days := (to - from) / 86400
	assert.GreaterOrEqual(t, days, int64(252*7/5))
}

func TestFinnhub_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New()
	require.NoError(t, f.Init(collector.Config{APIKey: "k", BaseURL: srv.URL}))

	_, err := f.FetchQuote(context.Background(), "AAPL")
	assert.ErrorIs(t, err, core.ErrUpstreamRateLimited)
}

func TestFinnhub_Search(t *testing.T) {
	var gotPath, gotQuery, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("q")
		gotToken = r.Header.Get("X-Finnhub-Token")
		w.Write([]byte(`{"count":0,"result":[]}`))
	}))
	defer srv.Close()

	f := New()
	require.NoError(t, f.Init(collector.Config{APIKey: "secret", BaseURL: srv.URL}))

	payload, err := f.Search(context.Background(), "tesla")
	require.NoError(t, err)

	assert.Equal(t, "/search", gotPath)
	assert.Equal(t, "tesla", gotQuery)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, core.PayloadSearch, payload.Kind)
}
