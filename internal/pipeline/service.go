// Package pipeline ties the rate limiter, cache, normalizer, indicator engine,
// rules and allocation scorer into one resilient lookup path.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/marketlens/internal/allocation"
	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/indicator"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/normalize"
	"github.com/newthinker/marketlens/internal/ratelimit"
	"github.com/newthinker/marketlens/internal/strategy"
	"github.com/newthinker/marketlens/internal/strategy/builtin"
)

// Defaults applied to a zero Config
const (
	DefaultCallTimeout = 10 * time.Second
	DefaultBatchMax    = 20
	DefaultWorkers     = 4
)

// Fetcher is the upstream provider. collector.Registry satisfies it.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error)
	FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error)
}

// Config tunes the service
type Config struct {
	Lookback    int              // history bars when the caller passes 0
	CallTimeout time.Duration    // per upstream call
	BatchMax    int              // symbols per batch
	Workers     int              // concurrent batch workers
	RiskProfile core.RiskProfile // allocation profile when the caller passes none
}

func (c Config) withDefaults() Config {
	if c.Lookback <= 0 {
		c.Lookback = core.DefaultLookback
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.BatchMax <= 0 {
		c.BatchMax = DefaultBatchMax
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RiskProfile == "" {
		c.RiskProfile = core.RiskModerate
	}
	return c
}

// Deps are the collaborators of a Service. Fetcher, Limiter and Cache are
// required; the rest fall back to stock implementations.
type Deps struct {
	Fetcher    Fetcher
	Limiter    *ratelimit.Limiter
	Cache      *cache.Store
	Normalizer *normalize.Normalizer
	Engine     *strategy.Engine
	Scorer     *allocation.Scorer
	Clock      clock.Clock
	Metrics    *metrics.Registry
	Logger     *zap.Logger
}

// Service answers quote, history and analysis requests. Every upstream call
// goes through the shared limiter and is coalesced per cache key.
type Service struct {
	fetcher    Fetcher
	limiter    *ratelimit.Limiter
	cache      *cache.Store
	normalizer *normalize.Normalizer
	engine     *strategy.Engine
	scorer     *allocation.Scorer
	clock      clock.Clock
	metrics    *metrics.Registry
	logger     *zap.Logger
	cfg        Config
}

// New creates a Service
func New(deps Deps, cfg Config) (*Service, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "pipeline: fetcher")
	case deps.Limiter == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "pipeline: rate limiter")
	case deps.Cache == nil:
		return nil, core.Errorf(core.ErrConfigMissing, "pipeline: cache")
	}

	s := &Service{
		fetcher:    deps.Fetcher,
		limiter:    deps.Limiter,
		cache:      deps.Cache,
		normalizer: deps.Normalizer,
		engine:     deps.Engine,
		scorer:     deps.Scorer,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        cfg.withDefaults(),
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.normalizer == nil {
		s.normalizer = normalize.Default(s.clock)
	}
	if s.engine == nil {
		s.engine = strategy.NewEngine(s.logger)
		if err := builtin.Register(s.engine, nil); err != nil {
			return nil, err
		}
	}
	if s.scorer == nil {
		s.scorer = allocation.NewScorer()
	}
	return s, nil
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Quote returns the latest quote for symbol. With useCache a fresh cache entry
// is served without touching the upstream; without it the upstream is always
// asked first. When the upstream fails with a retryable error the cached
// entry is served as stale, or a degraded result when nothing is cached.
// SymbolNotFound and MalformedPayload are returned as errors.
func (s *Service) Quote(ctx context.Context, symbol string, useCache bool) (*QuoteResult, error) {
	sym, err := validSymbol(symbol)
	if err != nil {
		return nil, err
	}
	res, err := s.quote(ctx, sym, useCache)
	s.recordResult("quote", res.status(), err)
	return res, err
}

func (s *Service) quote(ctx context.Context, sym string, useCache bool) (*QuoteResult, error) {
	cached, found := s.cachedQuote(ctx, sym)
	if useCache && found && cached.Fresh {
		q := cached.Quote
		return &QuoteResult{Symbol: sym, Quote: &q, Status: StatusFresh, Cached: true, FetchedAt: cached.FetchedAt}, nil
	}

	v, _, err := s.cache.Do(ctx, cache.QuoteKey(sym), func(ctx context.Context) (any, error) {
		return s.refreshQuote(ctx, sym)
	})
	if err == nil {
		q := v.(core.Quote)
		return &QuoteResult{Symbol: sym, Quote: &q, Status: StatusFresh, FetchedAt: q.FetchedAt}, nil
	}
	if !core.IsRetryable(err) {
		return nil, err
	}

	if found {
		s.logger.Warn("upstream failed, serving cached quote",
			zap.String("symbol", sym),
			zap.Time("fetched_at", cached.FetchedAt),
			zap.Error(err),
		)
		q := cached.Quote
		return &QuoteResult{Symbol: sym, Quote: &q, Status: StatusStale, Cached: true, FetchedAt: cached.FetchedAt, Cause: err}, nil
	}

	s.logger.Warn("upstream failed with nothing cached", zap.String("symbol", sym), zap.String("kind", "quote"), zap.Error(err))
	return &QuoteResult{Symbol: sym, Status: StatusDegraded, Cause: err}, nil
}

func (s *Service) cachedQuote(ctx context.Context, sym string) (cache.QuoteEntry, bool) {
	e, found, err := s.cache.GetQuote(ctx, sym)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("symbol", sym), zap.Error(err))
		return cache.QuoteEntry{}, false
	}
	s.recordLookup("quote", found, e.Fresh)
	return e, found
}

func (s *Service) refreshQuote(ctx context.Context, sym string) (core.Quote, error) {
	raw, err := s.call(ctx, "quote", func(ctx context.Context) (core.RawPayload, error) {
		return s.fetcher.FetchQuote(ctx, sym)
	})
	if err != nil {
		return core.Quote{}, err
	}

	q, err := s.normalizer.Quote(raw)
	if err != nil {
		return core.Quote{}, err
	}
	q.Symbol = sym

	if err := s.cache.PutQuote(ctx, q); err != nil {
		s.logger.Warn("cache write failed", zap.String("symbol", sym), zap.Error(err))
	}
	return q, nil
}

// History returns the most recent lookback daily bars for symbol with the
// same cache and fallback policy as Quote. lookback <= 0 uses the configured
// default.
func (s *Service) History(ctx context.Context, symbol string, lookback int, useCache bool) (*HistoryResult, error) {
	sym, err := validSymbol(symbol)
	if err != nil {
		return nil, err
	}
	res, err := s.history(ctx, sym, s.lookback(lookback), useCache)
	s.recordResult("history", res.status(), err)
	return res, err
}

func (s *Service) lookback(n int) int {
	if n <= 0 {
		return s.cfg.Lookback
	}
	return n
}

func (s *Service) history(ctx context.Context, sym string, lookback int, useCache bool) (*HistoryResult, error) {
	cached, found := s.cachedHistory(ctx, sym, lookback)
	if useCache && found && cached.Fresh {
		return &HistoryResult{Symbol: sym, Lookback: lookback, Bars: cached.Bars, Status: StatusFresh, Cached: true, FetchedAt: cached.FetchedAt}, nil
	}

	v, _, err := s.cache.Do(ctx, cache.HistoryKey(sym, lookback), func(ctx context.Context) (any, error) {
		return s.refreshHistory(ctx, sym, lookback)
	})
	if err == nil {
		f := v.(fetchedBars)
		return &HistoryResult{Symbol: sym, Lookback: lookback, Bars: f.bars, Status: StatusFresh, FetchedAt: f.at}, nil
	}
	if !core.IsRetryable(err) {
		return nil, err
	}

	if found {
		s.logger.Warn("upstream failed, serving cached history",
			zap.String("symbol", sym),
			zap.Int("lookback", lookback),
			zap.Time("fetched_at", cached.FetchedAt),
			zap.Error(err),
		)
		return &HistoryResult{Symbol: sym, Lookback: lookback, Bars: cached.Bars, Status: StatusStale, Cached: true, FetchedAt: cached.FetchedAt, Cause: err}, nil
	}

	s.logger.Warn("upstream failed with nothing cached", zap.String("symbol", sym), zap.String("kind", "history"), zap.Error(err))
	return &HistoryResult{Symbol: sym, Lookback: lookback, Status: StatusDegraded, Cause: err}, nil
}

type fetchedBars struct {
	bars []core.PriceBar
	at   time.Time
}

func (s *Service) cachedHistory(ctx context.Context, sym string, lookback int) (cache.HistoryEntry, bool) {
	e, found, err := s.cache.GetHistory(ctx, sym, lookback)
	if err != nil {
		s.logger.Warn("cache read failed", zap.String("symbol", sym), zap.Error(err))
		return cache.HistoryEntry{}, false
	}
	s.recordLookup("history", found, e.Fresh)
	return e, found
}

func (s *Service) refreshHistory(ctx context.Context, sym string, lookback int) (fetchedBars, error) {
	raw, err := s.call(ctx, "history", func(ctx context.Context) (core.RawPayload, error) {
		return s.fetcher.FetchHistory(ctx, sym, lookback)
	})
	if err != nil {
		return fetchedBars{}, err
	}

	bars, err := s.normalizer.History(raw, lookback)
	if err != nil {
		return fetchedBars{}, err
	}
	if len(bars) == 0 {
		return fetchedBars{}, core.Errorf(core.ErrSymbolNotFound, "%s: empty history", sym)
	}

	at := s.clock.Now()
	if err := s.cache.PutHistory(ctx, sym, lookback, bars); err != nil {
		s.logger.Warn("cache write failed", zap.String("symbol", sym), zap.Error(err))
	}
	return fetchedBars{bars: bars, at: at}, nil
}

// call gates fn behind the limiter and bounds it with the per-call timeout.
// Uncoded failures are classified so a deadline always surfaces as
// ErrUpstreamTimeout.
func (s *Service) call(ctx context.Context, kind string, fn func(context.Context) (core.RawPayload, error)) (core.RawPayload, error) {
	wait, err := s.limiter.Acquire(ctx)
	if err != nil {
		return core.RawPayload{}, collector.ClassifyTransport(ctx, err)
	}
	if s.metrics != nil {
		s.metrics.RecordLimiterWait(wait.Seconds())
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	raw, err := fn(callCtx)
	if err != nil {
		var coded *core.Error
		if !errors.As(err, &coded) {
			err = collector.ClassifyTransport(callCtx, err)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordUpstream(kind, errorCode(err), time.Since(start).Seconds())
	}
	s.logger.Debug("upstream call",
		zap.String("kind", kind),
		zap.Duration("limiter_wait", wait),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	return raw, err
}

// AnalyzeOptions tune one analysis
type AnalyzeOptions struct {
	UseCache    bool
	Lookback    int              // 0 uses the configured default
	RiskProfile core.RiskProfile // empty uses the configured profile
	Rules       []string         // empty runs every registered rule
}

// Analyze fetches quote and history, computes the indicator snapshot,
// evaluates the rules and scores an allocation. The analysis takes the worse
// status of its two inputs; a degraded analysis carries no allocation.
func (s *Service) Analyze(ctx context.Context, symbol string, opts AnalyzeOptions) (*Analysis, error) {
	sym, err := validSymbol(symbol)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	a, err := s.analyze(ctx, sym, opts)
	s.recordResult("analyze", a.status(), err)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		for _, sig := range a.Signals {
			s.metrics.RecordSignal(sig.Indicator, string(sig.Action))
		}
		if a.Allocation != nil {
			s.metrics.RecordAllocation(string(a.Allocation.RiskProfile), a.Allocation.Percentage)
		}
		s.metrics.RecordAnalysis(time.Since(start).Seconds())
	}
	return a, nil
}

func (s *Service) analyze(ctx context.Context, sym string, opts AnalyzeOptions) (*Analysis, error) {
	lookback := s.lookback(opts.Lookback)

	var (
		qr *QuoteResult
		hr *HistoryResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		qr, err = s.quote(gctx, sym, opts.UseCache)
		return err
	})
	g.Go(func() error {
		var err error
		hr, err = s.history(gctx, sym, lookback, opts.UseCache)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a := &Analysis{
		Symbol:     sym,
		Status:     worse(qr.Status, hr.Status),
		Quote:      qr.Quote,
		Indicators: indicator.Compute(hr.Bars),
		AnalyzedAt: s.clock.Now(),
		Cause:      errors.Join(qr.Cause, hr.Cause),
	}
	switch {
	case qr.Quote != nil:
		a.Price = qr.Quote.Price
	case len(hr.Bars) > 0:
		a.Price = hr.Bars[len(hr.Bars)-1].Close
	}

	actx := strategy.AnalysisContext{
		Symbol:   sym,
		Price:    a.Price,
		Snapshot: a.Indicators,
		Now:      a.AnalyzedAt,
	}
	var err error
	if len(opts.Rules) > 0 {
		a.Signals, err = s.engine.AnalyzeWith(ctx, actx, opts.Rules)
	} else {
		a.Signals, err = s.engine.Analyze(ctx, actx)
	}
	if err != nil {
		return nil, err
	}

	if a.Status != StatusDegraded {
		profile := opts.RiskProfile
		if profile == "" {
			profile = s.cfg.RiskProfile
		}
		alloc := s.scorer.Score(a.Signals, profile)
		a.Allocation = &alloc
	}

	s.logger.Debug("analysis complete",
		zap.String("symbol", sym),
		zap.String("status", string(a.Status)),
		zap.Int("bars", a.Indicators.Bars),
		zap.Int("signals", len(a.Signals)),
	)
	return a, nil
}

// VerifySymbol asks the upstream whether symbol exists. It never falls back
// to cached data: an upstream failure is returned as is.
func (s *Service) VerifySymbol(ctx context.Context, symbol string) error {
	sym, err := validSymbol(symbol)
	if err != nil {
		return err
	}
	_, _, err = s.cache.Do(ctx, cache.QuoteKey(sym), func(ctx context.Context) (any, error) {
		return s.refreshQuote(ctx, sym)
	})
	return err
}

// Batch looks up quotes for symbols with a bounded worker pool. Per-symbol
// failures are attached to their item; the returned slice follows the input
// order. More than the configured batch maximum is rejected up front.
func (s *Service) Batch(ctx context.Context, symbols []string, useCache bool) ([]BatchItem, error) {
	if len(symbols) > s.cfg.BatchMax {
		return nil, core.Errorf(core.ErrBatchTooLarge, "%d symbols, max %d", len(symbols), s.cfg.BatchMax)
	}

	items := make([]BatchItem, len(symbols))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			res, err := s.Quote(ctx, symbol, useCache)
			items[i] = BatchItem{Symbol: core.NormalizeSymbol(symbol), Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
		}
	}
	s.logger.Info("batch complete",
		zap.Int("symbols", len(symbols)),
		zap.Int("failed", failed),
		zap.Bool("use_cache", useCache),
	)
	return items, nil
}

// Search looks symbols up by ticker or company name. The query is trimmed and
// must be at least core.MinSearchQuery characters; shorter queries never reach
// the upstream. Results are not cached and have no fallback.
func (s *Service) Search(ctx context.Context, query string) ([]core.SearchMatch, error) {
	matches, err := s.search(ctx, strings.TrimSpace(query))
	s.recordResult("search", StatusFresh, err)
	return matches, err
}

func (s *Service) search(ctx context.Context, query string) ([]core.SearchMatch, error) {
	if utf8.RuneCountInString(query) < core.MinSearchQuery {
		return nil, core.Errorf(core.ErrInvalidQuery, "%q", query)
	}
	searcher, ok := s.fetcher.(collector.Searcher)
	if !ok {
		return nil, core.Errorf(core.ErrNoProvider, "symbol search unsupported")
	}

	raw, err := s.call(ctx, "search", func(ctx context.Context) (core.RawPayload, error) {
		return searcher.Search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	matches, err := s.normalizer.Search(raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("symbol search", zap.String("query", query), zap.Int("matches", len(matches)))
	return matches, nil
}

func validSymbol(symbol string) (string, error) {
	sym := core.NormalizeSymbol(symbol)
	if err := collector.ValidateSymbol(sym); err != nil {
		return "", err
	}
	return sym, nil
}

func (s *Service) recordLookup(kind string, found, fresh bool) {
	if s.metrics == nil {
		return
	}
	result := "miss"
	if found {
		result = "stale"
		if fresh {
			result = "fresh"
		}
	}
	s.metrics.RecordCacheLookup(kind, result)
}

func (s *Service) recordResult(op string, status Status, err error) {
	if s.metrics == nil {
		return
	}
	label := string(status)
	if err != nil {
		label = errorCode(err)
	}
	s.metrics.RecordResult(op, label)
}

// errorCode labels err for metrics: "ok", the core error code, or "error".
func errorCode(err error) string {
	if err == nil {
		return "ok"
	}
	var coded *core.Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	if errors.Is(err, context.Canceled) {
		return "CANCELED"
	}
	return "error"
}
