package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/api"
	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/pipeline"
)

// App owns the pipeline and its scheduled watchlist jobs
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	service   *pipeline.Service
	cache     *cache.Store
	watchlist *Watchlist
	metrics   *metrics.Registry
	server    *api.Server

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	cron    *cron.Cron
}

// Build wires every component described by cfg. The caller owns the returned
// App and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	reg := metrics.NewRegistry()

	providers, err := BuildRegistry(cfg.Providers, logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenSnapshotStore(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("opening %s cache: %w", cfg.Cache.Type, err)
	}

	svc, c, err := BuildService(cfg, providers, store, clock.Real{}, reg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return New(cfg, svc, c, reg, logger), nil
}

// New assembles an App around an already built pipeline
func New(cfg *config.Config, svc *pipeline.Service, c *cache.Store, reg *metrics.Registry, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		service:   svc,
		cache:     c,
		metrics:   reg,
		watchlist: NewWatchlist(svc, cfg.Watchlist.Max, svc.Config().BatchMax, reg, logger),
	}
	if cfg.Metrics.Enabled && reg != nil {
		a.server = api.NewServer(api.Config{
			Addr:        cfg.Metrics.Addr,
			MetricsPath: cfg.Metrics.Path,
			Health:      a.health,
		}, reg, logger)
	}
	return a
}

// Service returns the underlying pipeline
func (a *App) Service() *pipeline.Service { return a.service }

// Watchlist returns the managed watchlist
func (a *App) Watchlist() *Watchlist { return a.watchlist }

// LoadWatchlist verifies and adds the configured symbols. Symbols that fail
// verification are logged and skipped.
func (a *App) LoadWatchlist(ctx context.Context) int {
	added := 0
	for _, sym := range a.cfg.Watchlist.Symbols {
		if err := a.watchlist.Add(ctx, sym); err != nil {
			a.logger.Warn("skipping watchlist symbol", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		added++
	}
	return added
}

// Start loads the watchlist, schedules refresh and sweep jobs and blocks until
// ctx is cancelled or Stop is called.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app already running")
	}
	a.running = true
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	a.LoadWatchlist(ctx)

	c, err := a.schedule(ctx)
	if err != nil {
		cancel()
		return err
	}
	a.mu.Lock()
	a.cron = c
	a.mu.Unlock()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() { serverErr <- a.server.Start() }()
	}

	a.logger.Info("marketlens starting",
		zap.Int("watchlist_count", a.watchlist.Len()),
		zap.String("refresh", a.cfg.Watchlist.Refresh),
		zap.String("sweep", a.cfg.Watchlist.Sweep),
	)

	c.Start()
	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-serverErr:
		if err != nil {
			runErr = err
		}
		cancel()
	}

	a.logger.Info("marketlens shutting down")
	<-c.Stop().Done()

	if a.server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func (a *App) schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithLogger(cronLogger{a.logger.Sugar()}), cron.WithChain(cron.SkipIfStillRunning(cronLogger{a.logger.Sugar()})))
	if spec := a.cfg.Watchlist.Refresh; spec != "" {
		if _, err := c.AddFunc(spec, func() { a.RunOnce(ctx) }); err != nil {
			return nil, core.Errorf(core.ErrConfigInvalid, "refresh spec %q: %v", spec, err)
		}
	}
	if spec := a.cfg.Watchlist.Sweep; spec != "" {
		if _, err := c.AddFunc(spec, func() { a.Sweep(ctx) }); err != nil {
			return nil, core.Errorf(core.ErrConfigInvalid, "sweep spec %q: %v", spec, err)
		}
	}
	return c, nil
}

// Stop cancels a running Start
func (a *App) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
}

// RunOnce refreshes every watchlist symbol from upstream and logs the outcome
func (a *App) RunOnce(ctx context.Context) []pipeline.BatchItem {
	runID := uuid.NewString()
	logger := a.logger.With(zap.String("run_id", runID))

	if a.watchlist.Len() == 0 {
		logger.Debug("no symbols in watchlist")
		return nil
	}

	start := time.Now()
	items, err := a.watchlist.Refresh(ctx)
	if err != nil {
		logger.Error("watchlist refresh failed", zap.Error(err))
		a.recordRefresh("error")
		return items
	}

	counts := map[pipeline.Status]int{}
	failed := 0
	for _, it := range items {
		if it.Err != nil {
			failed++
			logger.Warn("symbol refresh failed", zap.String("symbol", it.Symbol), zap.Error(it.Err))
			continue
		}
		counts[it.Result.Status]++
	}

	status := "ok"
	if failed > 0 || counts[pipeline.StatusDegraded] > 0 || counts[pipeline.StatusStale] > 0 {
		status = "partial"
	}
	a.recordRefresh(status)

	logger.Info("watchlist refreshed",
		zap.Int("symbols", len(items)),
		zap.Int("fresh", counts[pipeline.StatusFresh]),
		zap.Int("stale", counts[pipeline.StatusStale]),
		zap.Int("degraded", counts[pipeline.StatusDegraded]),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)),
	)
	return items
}

// Sweep drops cache entries older than the configured retention
func (a *App) Sweep(ctx context.Context) (int, error) {
	removed, err := a.cache.Sweep(ctx, a.cfg.Cache.Retention)
	if err != nil {
		a.logger.Error("cache sweep failed", zap.Error(err))
		return removed, err
	}
	if a.metrics != nil {
		a.metrics.RecordCacheSweep(removed)
	}
	a.logger.Debug("cache swept", zap.Int("removed", removed), zap.Duration("retention", a.cfg.Cache.Retention))
	return removed, nil
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()

	return map[string]any{
		"running":   running,
		"watchlist": a.watchlist.Len(),
		"lookback":  a.service.Config().Lookback,
		"batch_max": a.service.Config().BatchMax,
	}
}

// Close releases the cache substrate
func (a *App) Close() error {
	return a.cache.Close()
}

// health checks the cache substrate with a lookup that is expected to miss
func (a *App) health(ctx context.Context) error {
	if _, _, err := a.cache.Get(ctx, "healthz"); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}

func (a *App) recordRefresh(status string) {
	if a.metrics != nil {
		a.metrics.RecordRefresh(status)
	}
}

// cronLogger routes scheduler logs through zap
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
