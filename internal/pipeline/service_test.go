package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/normalize"
	"github.com/newthinker/marketlens/internal/ratelimit"
	"github.com/newthinker/marketlens/internal/storage/snapshot"
)

const testSource = "test"

// testAdapter reads the payloads produced by fakeFetcher
type testAdapter struct{}

type testQuote struct {
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previous_close"`
}

func (testAdapter) Source() string { return testSource }

func (testAdapter) Quote(body []byte) (normalize.QuoteFields, error) {
	var q testQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return normalize.QuoteFields{}, core.WrapError(core.ErrMalformedPayload, err)
	}
	return normalize.QuoteFields{Price: q.Price, PreviousClose: q.PreviousClose}, nil
}

func (testAdapter) History(body []byte) ([]core.PriceBar, error) {
	var bars []core.PriceBar
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, core.WrapError(core.ErrMalformedPayload, err)
	}
	return bars, nil
}

func (testAdapter) Search(body []byte) ([]core.SearchMatch, error) {
	var matches []core.SearchMatch
	if err := json.Unmarshal(body, &matches); err != nil {
		return nil, core.WrapError(core.ErrMalformedPayload, err)
	}
	return matches, nil
}

// fakeFetcher serves canned prices and can be told to fail or to block.
type fakeFetcher struct {
	mu           sync.Mutex
	price        float64
	bars         []core.PriceBar
	err          error
	gate         chan struct{}
	quoteCalls   int
	historyCalls int
	searchCalls  int
}

func (f *fakeFetcher) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	f.mu.Lock()
	f.quoteCalls++
	gate, err, price := f.gate, f.err, f.price
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return core.RawPayload{}, ctx.Err()
		}
	}
	if symbol == "NOPE" {
		return core.RawPayload{}, core.ErrSymbolNotFound
	}
	if err != nil {
		return core.RawPayload{}, err
	}
	body, _ := json.Marshal(testQuote{Price: price, PreviousClose: price - 1})
	return core.RawPayload{Source: testSource, Symbol: symbol, Kind: core.PayloadQuote, Status: 200, Body: body}, nil
}

func (f *fakeFetcher) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	f.mu.Lock()
	f.historyCalls++
	err, bars := f.err, f.bars
	f.mu.Unlock()

	if symbol == "NOPE" {
		return core.RawPayload{}, core.ErrSymbolNotFound
	}
	if err != nil {
		return core.RawPayload{}, err
	}
	body, _ := json.Marshal(bars)
	return core.RawPayload{Source: testSource, Symbol: symbol, Kind: core.PayloadHistory, Status: 200, Body: body}, nil
}

func (f *fakeFetcher) Search(ctx context.Context, query string) (core.RawPayload, error) {
	f.mu.Lock()
	f.searchCalls++
	err := f.err
	f.mu.Unlock()

	if err != nil {
		return core.RawPayload{}, err
	}
	body, _ := json.Marshal([]core.SearchMatch{{Symbol: "AAPL", Name: "Apple Inc.", Type: "Equity"}})
	return core.RawPayload{Source: testSource, Symbol: query, Kind: core.PayloadSearch, Status: 200, Body: body}, nil
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) calls() (quote, history int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls, f.historyCalls
}

type harness struct {
	svc     *Service
	fetcher *fakeFetcher
	clock   *clock.Fake
	limiter *ratelimit.Limiter
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC))
	f := &fakeFetcher{price: 101.5, bars: risingBars(30)}
	lim := ratelimit.New(time.Second, clk)

	svc, err := New(Deps{
		Fetcher:    f,
		Limiter:    lim,
		Cache:      cache.New(snapshot.NewMemory(100), clk),
		Normalizer: normalize.New(clk, testAdapter{}),
		Clock:      clk,
		Metrics:    metrics.NewRegistry(),
	}, cfg)
	require.NoError(t, err)
	return &harness{svc: svc, fetcher: f, clock: clk, limiter: lim}
}

func risingBars(n int) []core.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.PriceBar, n)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = core.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.ErrorIs(t, err, core.ErrConfigMissing)
}

func TestNew_Defaults(t *testing.T) {
	h := newHarness(t, Config{})
	cfg := h.svc.Config()
	assert.Equal(t, core.DefaultLookback, cfg.Lookback)
	assert.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, DefaultBatchMax, cfg.BatchMax)
	assert.Equal(t, core.RiskModerate, cfg.RiskProfile)
}

func TestQuote_FreshThenCached(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.svc.Quote(ctx, "aapl", true)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, first.Status)
	assert.False(t, first.Cached)
	assert.Equal(t, "AAPL", first.Quote.Symbol)
	assert.Equal(t, 101.5, first.Quote.Price)
	assert.InDelta(t, 1.0, first.Quote.Change, 1e-9)

	second, err := h.svc.Quote(ctx, "AAPL", true)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, second.Status)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Quote, second.Quote)

	quoteCalls, _ := h.fetcher.calls()
	assert.Equal(t, 1, quoteCalls)
}

func TestQuote_ForceRefreshBypassesCache(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.svc.Quote(ctx, "AAPL", true)
	require.NoError(t, err)
	res, err := h.svc.Quote(ctx, "AAPL", false)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	quoteCalls, _ := h.fetcher.calls()
	assert.Equal(t, 2, quoteCalls)
}

func TestQuote_ExpiredEntryRefetched(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.svc.Quote(ctx, "AAPL", true)
	require.NoError(t, err)

	h.clock.Advance(cache.DefaultQuoteTTL)
	res, err := h.svc.Quote(ctx, "AAPL", true)
	require.NoError(t, err)

	assert.False(t, res.Cached)
	quoteCalls, _ := h.fetcher.calls()
	assert.Equal(t, 2, quoteCalls)
}

func TestQuote_StaleFallback(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.svc.Quote(ctx, "XYZ", true)
	require.NoError(t, err)

	h.fetcher.fail(core.Errorf(core.ErrUpstreamFailed, "status 502"))

	res, err := h.svc.Quote(ctx, "XYZ", false)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, res.Status)
	assert.True(t, res.Cached)
	assert.Equal(t, first.Quote, res.Quote)
	assert.Equal(t, first.FetchedAt, res.FetchedAt)
	assert.ErrorIs(t, res.Cause, core.ErrUpstreamFailed)
}

func TestQuote_StaleAfterTTL(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.svc.Quote(ctx, "XYZ", true)
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	h.fetcher.fail(core.ErrUpstreamRateLimited)

	res, err := h.svc.Quote(ctx, "XYZ", true)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, res.Status)
	assert.Equal(t, first.Quote.Price, res.Quote.Price)
}

func TestQuote_DegradedWithoutCache(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.fail(core.ErrUpstreamRateLimited)

	res, err := h.svc.Quote(context.Background(), "XYZ", true)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Nil(t, res.Quote)
	assert.True(t, core.IsRetryable(res.Cause))
}

func TestQuote_SymbolNotFoundIsAnError(t *testing.T) {
	h := newHarness(t, Config{})

	res, err := h.svc.Quote(context.Background(), "NOPE", true)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)
}

func TestQuote_MalformedPayloadIsAnError(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.price = -3

	_, err := h.svc.Quote(context.Background(), "AAPL", true)
	assert.ErrorIs(t, err, core.ErrMalformedPayload)
}

func TestQuote_InvalidSymbolNeverCallsUpstream(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.svc.Quote(context.Background(), "not a symbol!", true)
	assert.ErrorIs(t, err, core.ErrInvalidSymbol)

	quoteCalls, _ := h.fetcher.calls()
	assert.Zero(t, quoteCalls)
	assert.Zero(t, h.limiter.Stats().Grants)
}

func TestQuote_TimeoutBecomesDegraded(t *testing.T) {
	h := newHarness(t, Config{CallTimeout: 20 * time.Millisecond})
	h.fetcher.gate = make(chan struct{}) // never opened

	res, err := h.svc.Quote(context.Background(), "SLOW", true)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, res.Status)
	assert.ErrorIs(t, res.Cause, core.ErrUpstreamTimeout)
}

func TestQuote_ConcurrentMissesCoalesce(t *testing.T) {
	h := newHarness(t, Config{})
	gate := make(chan struct{})
	h.fetcher.gate = gate

	var wg sync.WaitGroup
	results := make([]*QuoteResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.svc.Quote(context.Background(), "MSFT", true)
		}()
	}

	require.Eventually(t, func() bool {
		q, _ := h.fetcher.calls()
		return q == 1
	}, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, StatusFresh, results[i].Status)
	}
	assert.Equal(t, results[0].Quote, results[1].Quote)

	quoteCalls, _ := h.fetcher.calls()
	assert.Equal(t, 1, quoteCalls)
	assert.Equal(t, int64(1), h.limiter.Stats().Grants)
}

func TestQuote_CancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	h := newHarness(t, Config{})
	gate := make(chan struct{})
	h.fetcher.gate = gate

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.svc.Quote(firstCtx, "MSFT", false)
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		q, _ := h.fetcher.calls()
		return q == 1
	}, time.Second, time.Millisecond)

	type outcome struct {
		res *QuoteResult
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := h.svc.Quote(context.Background(), "MSFT", false)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, StatusFresh, got.res.Status)
	require.NotNil(t, got.res.Quote)
	assert.Equal(t, 101.5, got.res.Quote.Price)

	quoteCalls, _ := h.fetcher.calls()
	assert.Equal(t, 1, quoteCalls)
}

func TestHistory_CachesPerLookback(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	res, err := h.svc.History(ctx, "AAPL", 10, true)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, res.Status)
	assert.Len(t, res.Bars, 10)
	assert.Equal(t, 129.0, res.Bars[9].Close)

	again, err := h.svc.History(ctx, "AAPL", 10, true)
	require.NoError(t, err)
	assert.True(t, again.Cached)

	full, err := h.svc.History(ctx, "AAPL", 0, true)
	require.NoError(t, err)
	assert.Equal(t, core.DefaultLookback, full.Lookback)
	assert.Len(t, full.Bars, 30)

	_, historyCalls := h.fetcher.calls()
	assert.Equal(t, 2, historyCalls)
}

func TestHistory_StaleFallback(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	first, err := h.svc.History(ctx, "AAPL", 20, true)
	require.NoError(t, err)

	h.fetcher.fail(core.ErrUpstreamTimeout)
	res, err := h.svc.History(ctx, "AAPL", 20, false)
	require.NoError(t, err)
	assert.Equal(t, StatusStale, res.Status)
	assert.Equal(t, first.Bars, res.Bars)
}

func TestVerifySymbol_NeverUsesCache(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	require.NoError(t, h.svc.VerifySymbol(ctx, "AAPL"))

	h.fetcher.fail(core.ErrUpstreamFailed)
	err := h.svc.VerifySymbol(ctx, "AAPL")
	assert.ErrorIs(t, err, core.ErrUpstreamFailed)

	assert.ErrorIs(t, h.svc.VerifySymbol(ctx, "NOPE"), core.ErrSymbolNotFound)
	assert.ErrorIs(t, h.svc.VerifySymbol(ctx, ""), core.ErrInvalidSymbol)
}

func TestAnalyze_DegradedOmitsAllocation(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.fail(core.ErrUpstreamTimeout)

	a, err := h.svc.Analyze(context.Background(), "XYZ", AnalyzeOptions{UseCache: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, a.Status)
	assert.Nil(t, a.Allocation)
	assert.Nil(t, a.Quote)
	assert.Zero(t, a.Indicators.Bars)
	assert.False(t, a.Indicators.SMA20.Valid)
	assert.NotNil(t, a.Signals)
	assert.Empty(t, a.Signals)
	assert.ErrorIs(t, a.Cause, core.ErrUpstreamTimeout)
}

func TestAnalyze_StaleKeepsAllocation(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.svc.Analyze(ctx, "XYZ", AnalyzeOptions{UseCache: true})
	require.NoError(t, err)

	h.fetcher.fail(core.ErrUpstreamFailed)
	a, err := h.svc.Analyze(ctx, "XYZ", AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusStale, a.Status)
	assert.NotNil(t, a.Allocation)
}

func TestAnalyze_NotFound(t *testing.T) {
	h := newHarness(t, Config{})

	a, err := h.svc.Analyze(context.Background(), "NOPE", AnalyzeOptions{})
	assert.Nil(t, a)
	assert.ErrorIs(t, err, core.ErrSymbolNotFound)
}

func TestAnalyze_RuleSubset(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.bars = sawtooth(60)
	h.fetcher.price = 109

	a, err := h.svc.Analyze(context.Background(), "SAW", AnalyzeOptions{Rules: []string{"macd"}})
	require.NoError(t, err)
	require.Len(t, a.Signals, 1)
	assert.Equal(t, "MACD", a.Signals[0].Indicator)
}

func TestBatch_PartialSuccess(t *testing.T) {
	h := newHarness(t, Config{Workers: 2})

	items, err := h.svc.Batch(context.Background(), []string{"aapl", "NOPE", "MSFT", "bad sym"}, true)
	require.NoError(t, err)
	require.Len(t, items, 4)

	assert.Equal(t, "AAPL", items[0].Symbol)
	assert.NoError(t, items[0].Err)
	assert.Equal(t, StatusFresh, items[0].Result.Status)

	assert.Equal(t, "NOPE", items[1].Symbol)
	assert.Nil(t, items[1].Result)
	assert.ErrorIs(t, items[1].Err, core.ErrSymbolNotFound)

	assert.Equal(t, "MSFT", items[2].Symbol)
	assert.NoError(t, items[2].Err)

	assert.ErrorIs(t, items[3].Err, core.ErrInvalidSymbol)
}

func TestBatch_SharesLimiterBudget(t *testing.T) {
	h := newHarness(t, Config{})

	_, err := h.svc.Batch(context.Background(), []string{"A", "B", "C"}, true)
	require.NoError(t, err)

	assert.Equal(t, int64(3), h.limiter.Stats().Grants)
	assert.GreaterOrEqual(t, h.clock.Slept(), 2*time.Second)
}

func TestBatch_TooLarge(t *testing.T) {
	h := newHarness(t, Config{})

	symbols := make([]string, DefaultBatchMax+1)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%d", i)
	}

	items, err := h.svc.Batch(context.Background(), symbols, true)
	assert.Nil(t, items)
	assert.ErrorIs(t, err, core.ErrBatchTooLarge)

	quoteCalls, _ := h.fetcher.calls()
	assert.Zero(t, quoteCalls)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, StatusFresh, worse(StatusFresh, StatusFresh))
	assert.Equal(t, StatusStale, worse(StatusFresh, StatusStale))
	assert.Equal(t, StatusDegraded, worse(StatusDegraded, StatusStale))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "ok", errorCode(nil))
	assert.Equal(t, "UPSTREAM_TIMEOUT", errorCode(fmt.Errorf("wrap: %w", core.ErrUpstreamTimeout)))
	assert.Equal(t, "CANCELED", errorCode(context.Canceled))
}

func TestSearch_ReturnsMatches(t *testing.T) {
	h := newHarness(t, Config{})

	matches, err := h.svc.Search(context.Background(), "  apple ")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "AAPL", matches[0].Symbol)
	assert.Equal(t, "Apple Inc.", matches[0].Name)
	assert.Equal(t, int64(1), h.limiter.Stats().Grants)
}

func TestSearch_ShortQueryNeverCallsUpstream(t *testing.T) {
	h := newHarness(t, Config{})

	for _, q := range []string{"", "a", "  b  "} {
		_, err := h.svc.Search(context.Background(), q)
		assert.ErrorIs(t, err, core.ErrInvalidQuery, q)
	}
	assert.Zero(t, h.fetcher.searchCalls)
	assert.Zero(t, h.limiter.Stats().Grants)
}

func TestSearch_SharesRateLimit(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	_, err := h.svc.Quote(ctx, "AAPL", false)
	require.NoError(t, err)
	_, err = h.svc.Search(ctx, "apple")
	require.NoError(t, err)

	assert.Equal(t, int64(2), h.limiter.Stats().Grants)
	assert.GreaterOrEqual(t, h.clock.Slept(), time.Second)
}

func TestSearch_UpstreamFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.fail(core.ErrUpstreamRateLimited)

	_, err := h.svc.Search(context.Background(), "apple")
	assert.ErrorIs(t, err, core.ErrUpstreamRateLimited)
}

// quoteOnlyFetcher hides fakeFetcher's Search method
type quoteOnlyFetcher struct {
	f *fakeFetcher
}

func (q quoteOnlyFetcher) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	return q.f.FetchQuote(ctx, symbol)
}

func (q quoteOnlyFetcher) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	return q.f.FetchHistory(ctx, symbol, lookback)
}

func TestSearch_FetcherWithoutSearch(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 3, 15, 0, 0, 0, time.UTC))
	svc, err := New(Deps{
		Fetcher:    quoteOnlyFetcher{f: &fakeFetcher{price: 1}},
		Limiter:    ratelimit.New(time.Second, clk),
		Cache:      cache.New(snapshot.NewMemory(10), clk),
		Normalizer: normalize.New(clk, testAdapter{}),
		Clock:      clk,
	}, Config{})
	require.NoError(t, err)

	_, err = svc.Search(context.Background(), "apple")
	assert.ErrorIs(t, err, core.ErrNoProvider)
}
