package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/allocation"
	"github.com/newthinker/marketlens/internal/cache"
	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/collector"
	"github.com/newthinker/marketlens/internal/collector/alphavantage"
	"github.com/newthinker/marketlens/internal/collector/finnhub"
	"github.com/newthinker/marketlens/internal/collector/yahoo"
	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/normalize"
	"github.com/newthinker/marketlens/internal/pipeline"
	"github.com/newthinker/marketlens/internal/ratelimit"
	"github.com/newthinker/marketlens/internal/storage/archive"
	"github.com/newthinker/marketlens/internal/storage/snapshot"
	"github.com/newthinker/marketlens/internal/strategy"
	"github.com/newthinker/marketlens/internal/strategy/builtin"
)

// NewCollector returns an uninitialized collector by provider name
func NewCollector(name string) (collector.Collector, error) {
	switch name {
	case "yahoo":
		return yahoo.New(), nil
	case "finnhub":
		return finnhub.New(), nil
	case "alphavantage":
		return alphavantage.New(), nil
	}
	return nil, core.Errorf(core.ErrConfigInvalid, "unknown provider %q", name)
}

// BuildRegistry initializes the configured providers in fallback order
func BuildRegistry(cfg config.ProvidersConfig, logger *zap.Logger) (*collector.Registry, error) {
	reg := collector.NewRegistry(logger)
	for _, name := range cfg.Order {
		c, err := NewCollector(name)
		if err != nil {
			return nil, err
		}
		pc := cfg.Provider(name)
		if err := c.Init(collector.Config{
			Enabled: true,
			APIKey:  pc.APIKey,
			BaseURL: pc.BaseURL,
			Timeout: cfg.Timeout,
		}); err != nil {
			return nil, fmt.Errorf("init %s: %w", name, err)
		}
		reg.Register(c)
	}
	return reg, nil
}

// OpenSnapshotStore connects the configured cache substrate
func OpenSnapshotStore(ctx context.Context, cfg config.CacheConfig) (snapshot.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return snapshot.NewMemory(cfg.MaxEntries), nil
	case "redis":
		return snapshot.DialRedis(ctx, snapshot.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			Expiry:   cfg.Redis.Expiry,
		})
	case "postgres":
		return snapshot.ConnectPostgres(ctx, cfg.Postgres.DSN)
	case "archive":
		store, err := openArchive(cfg.Archive)
		if err != nil {
			return nil, err
		}
		return snapshot.NewArchive(store), nil
	}
	return nil, core.Errorf(core.ErrConfigInvalid, "unknown cache type %q", cfg.Type)
}

func openArchive(cfg config.ArchiveConfig) (archive.Storage, error) {
	switch cfg.Type {
	case "", "localfs":
		return archive.NewLocalFS(cfg.Path)
	case "s3":
		return archive.NewS3(archive.S3Config{
			Bucket:    cfg.S3.Bucket,
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Prefix:    cfg.S3.Prefix,
		})
	}
	return nil, core.Errorf(core.ErrConfigInvalid, "unknown archive type %q", cfg.Type)
}

// RuleConfigs converts configured rules into strategy configs
func RuleConfigs(rules map[string]config.RuleConfig) map[string]strategy.Config {
	out := make(map[string]strategy.Config, len(rules))
	for name, r := range rules {
		out[name] = strategy.Config{Enabled: r.Enabled, Params: r.Params}
	}
	return out
}

// Lookback resolves the history window: a configured period wins over the
// bar count.
func Lookback(cfg config.PipelineConfig) (int, error) {
	if cfg.Period != "" {
		return collector.LookbackForPeriod(cfg.Period)
	}
	if cfg.Lookback > 0 {
		return cfg.Lookback, nil
	}
	return core.DefaultLookback, nil
}

// BuildService assembles the pipeline over an already opened cache substrate.
func BuildService(cfg *config.Config, fetcher pipeline.Fetcher, store snapshot.Store, clk clock.Clock, reg *metrics.Registry, logger *zap.Logger) (*pipeline.Service, *cache.Store, error) {
	if clk == nil {
		clk = clock.Real{}
	}

	engine := strategy.NewEngine(logger)
	if err := builtin.Register(engine, RuleConfigs(cfg.Rules)); err != nil {
		return nil, nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	profile, ok := core.ParseRiskProfile(cfg.Allocation.RiskProfile)
	if !ok {
		return nil, nil, core.Errorf(core.ErrConfigInvalid, "unknown risk_profile %q", cfg.Allocation.RiskProfile)
	}

	lookback, err := Lookback(cfg.Pipeline)
	if err != nil {
		return nil, nil, core.WrapError(core.ErrConfigInvalid, err)
	}

	store2 := cache.New(store, clk,
		cache.WithTTL(cfg.Cache.QuoteTTL, cfg.Cache.HistoryTTL),
		cache.WithLogger(logger),
	)

	svc, err := pipeline.New(pipeline.Deps{
		Fetcher:    fetcher,
		Limiter:    ratelimit.New(cfg.RateLimit.MinInterval, clk),
		Cache:      store2,
		Normalizer: normalize.Default(clk),
		Engine:     engine,
		Scorer:     allocation.NewScorer(allocation.WithCeiling(cfg.Allocation.Ceiling)),
		Clock:      clk,
		Metrics:    reg,
		Logger:     logger,
	}, pipeline.Config{
		Lookback:    lookback,
		CallTimeout: cfg.Pipeline.CallTimeout,
		BatchMax:    cfg.Pipeline.BatchMax,
		Workers:     cfg.Pipeline.Workers,
		RiskProfile: profile,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, store2, nil
}
