package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
)

func TestAlphaVantage_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*AlphaVantage)(nil)
}

func newTestClient(t *testing.T, seen *url.Values) *AlphaVantage {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*seen = r.URL.Query()
		w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	a := New()
	require.NoError(t, a.Init(collector.Config{APIKey: "demo", BaseURL: srv.URL}))
	return a
}

func TestAlphaVantage_FetchQuote(t *testing.T) {
	var q url.Values
	a := newTestClient(t, &q)

	payload, err := a.FetchQuote(context.Background(), "IBM")
	require.NoError(t, err)

	assert.Equal(t, "GLOBAL_QUOTE", q.Get("function"))
	assert.Equal(t, "IBM", q.Get("symbol"))
	assert.Equal(t, "demo", q.Get("apikey"))
	assert.Equal(t, "alphavantage", payload.Source)
}

func TestAlphaVantage_OutputSize(t *testing.T) {
	var q url.Values
	a := newTestClient(t, &q)

	_, err := a.FetchHistory(context.Background(), "IBM", 60)
	require.NoError(t, err)
	assert.Equal(t, "compact", q.Get("outputsize"))

	_, err = a.FetchHistory(context.Background(), "IBM", 252)
	require.NoError(t, err)
	assert.Equal(t, "full", q.Get("outputsize"))
	assert.Equal(t, "TIME_SERIES_DAILY", q.Get("function"))
}

func TestAlphaVantage_InitRequiresKey(t *testing.T) {
	assert.ErrorIs(t, New().Init(collector.Config{}), core.ErrConfigMissing)
}
