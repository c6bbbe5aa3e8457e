package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/newthinker/marketlens/internal/core"
)

type Config struct {
	Log        LogConfig             `mapstructure:"log"`
	Providers  ProvidersConfig       `mapstructure:"providers"`
	RateLimit  RateLimitConfig       `mapstructure:"ratelimit"`
	Cache      CacheConfig           `mapstructure:"cache"`
	Pipeline   PipelineConfig        `mapstructure:"pipeline"`
	Allocation AllocationConfig      `mapstructure:"allocation"`
	Rules      map[string]RuleConfig `mapstructure:"rules"`
	Watchlist  WatchlistConfig       `mapstructure:"watchlist"`
	Metrics    MetricsConfig         `mapstructure:"metrics"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

// ProvidersConfig lists upstream providers in fallback order
type ProvidersConfig struct {
	Order        []string       `mapstructure:"order" validate:"min=1,unique,dive,oneof=yahoo finnhub alphavantage"`
	Timeout      time.Duration  `mapstructure:"timeout" validate:"gte=0"`
	Yahoo        ProviderConfig `mapstructure:"yahoo"`
	Finnhub      ProviderConfig `mapstructure:"finnhub"`
	AlphaVantage ProviderConfig `mapstructure:"alphavantage"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// Provider returns the settings for a provider name
func (p ProvidersConfig) Provider(name string) ProviderConfig {
	switch name {
	case "yahoo":
		return p.Yahoo
	case "finnhub":
		return p.Finnhub
	case "alphavantage":
		return p.AlphaVantage
	}
	return ProviderConfig{}
}

type RateLimitConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gt=0"`
}

type CacheConfig struct {
	Type       string         `mapstructure:"type" validate:"oneof=memory redis postgres archive"`
	QuoteTTL   time.Duration  `mapstructure:"quote_ttl" validate:"gt=0"`
	HistoryTTL time.Duration  `mapstructure:"history_ttl" validate:"gt=0"`
	MaxEntries int            `mapstructure:"max_entries" validate:"gte=0"`
	Retention  time.Duration  `mapstructure:"retention" validate:"gt=0"`
	Redis      RedisConfig    `mapstructure:"redis"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	Archive    ArchiveConfig  `mapstructure:"archive"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	Prefix   string        `mapstructure:"prefix"`
	Expiry   time.Duration `mapstructure:"expiry" validate:"gte=0"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type" validate:"oneof=localfs s3"`
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint" validate:"omitempty,url"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

type PipelineConfig struct {
	Lookback    int           `mapstructure:"lookback" validate:"gt=0"`
	Period      string        `mapstructure:"period" validate:"omitempty,oneof=1d 5d 1mo 3mo 6mo 1y 2y 5y 10y"`
	CallTimeout time.Duration `mapstructure:"call_timeout" validate:"gt=0"`
	BatchMax    int           `mapstructure:"batch_max" validate:"gt=0,lte=100"`
	Workers     int           `mapstructure:"workers" validate:"gt=0,lte=32"`
}

type AllocationConfig struct {
	RiskProfile string `mapstructure:"risk_profile"`
	Ceiling     int    `mapstructure:"ceiling" validate:"gte=0,lte=100"`
}

type RuleConfig struct {
	Enabled bool           `mapstructure:"enabled"`
	Params  map[string]any `mapstructure:"params"`
}

type WatchlistConfig struct {
	Max     int      `mapstructure:"max" validate:"gt=0"`
	Symbols []string `mapstructure:"symbols"`
	Refresh string   `mapstructure:"refresh"` // cron spec; empty disables
	Sweep   string   `mapstructure:"sweep"`   // cron spec; empty disables
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// Load reads configuration from file over Defaults. A .env file in the
// working directory is loaded into the environment first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.SetEnvPrefix("MARKETLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val, ok := v.Get(key).(string)
		if ok && strings.Contains(val, "${") {
			v.Set(key, os.ExpandEnv(val))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Providers: ProvidersConfig{
			Order:   []string{"yahoo"},
			Timeout: 10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MinInterval: time.Second,
		},
		Cache: CacheConfig{
			Type:       "memory",
			QuoteTTL:   5 * time.Minute,
			HistoryTTL: time.Hour,
			MaxEntries: 1000,
			Retention:  24 * time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "marketlens",
			},
			Archive: ArchiveConfig{
				Type: "localfs",
				Path: "./data/cache",
			},
		},
		Pipeline: PipelineConfig{
			Lookback:    core.DefaultLookback,
			CallTimeout: 10 * time.Second,
			BatchMax:    20,
			Workers:     4,
		},
		Allocation: AllocationConfig{
			RiskProfile: string(core.RiskModerate),
		},
		Watchlist: WatchlistConfig{
			Max:     50,
			Refresh: "*/15 * * * *",
			Sweep:   "0 * * * *",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
			Path:    "/metrics",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return core.Errorf(core.ErrConfigInvalid, "%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return core.WrapError(core.ErrConfigInvalid, err)
	}

	for _, name := range c.Providers.Order {
		if name != "yahoo" && c.Providers.Provider(name).APIKey == "" {
			return core.Errorf(core.ErrConfigMissing, "%s api_key required when listed in providers.order", name)
		}
	}

	switch c.Cache.Type {
	case "redis":
		if c.Cache.Redis.Addr == "" {
			return core.Errorf(core.ErrConfigMissing, "cache.redis.addr required for redis cache")
		}
	case "postgres":
		if c.Cache.Postgres.DSN == "" {
			return core.Errorf(core.ErrConfigMissing, "cache.postgres.dsn required for postgres cache")
		}
	case "archive":
		if c.Cache.Archive.Type == "s3" && c.Cache.Archive.S3.Bucket == "" {
			return core.Errorf(core.ErrConfigMissing, "cache.archive.s3.bucket required for s3 archive")
		}
		if c.Cache.Archive.Type == "localfs" && c.Cache.Archive.Path == "" {
			return core.Errorf(core.ErrConfigMissing, "cache.archive.path required for localfs archive")
		}
	}

	if _, ok := core.ParseRiskProfile(c.Allocation.RiskProfile); !ok {
		return core.Errorf(core.ErrConfigInvalid, "unknown risk_profile %q", c.Allocation.RiskProfile)
	}

	if len(c.Watchlist.Symbols) > c.Watchlist.Max {
		return core.Errorf(core.ErrConfigInvalid, "watchlist has %d symbols, max %d", len(c.Watchlist.Symbols), c.Watchlist.Max)
	}
	for _, spec := range []string{c.Watchlist.Refresh, c.Watchlist.Sweep} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return core.Errorf(core.ErrConfigInvalid, "cron spec %q: %v", spec, err)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return core.Errorf(core.ErrConfigMissing, "metrics.addr required when metrics are enabled")
	}

	return nil
}
