package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/app"
	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/logger"
)

// loadConfig reads --config, or falls back to defaults, and validates it
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if cfgFile != "" {
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Debug("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setup builds the logger, config and application for a command
func setup(ctx context.Context) (*app.App, *config.Config, *zap.Logger, error) {
	log := logger.Must(debug, "")

	cfg, err := loadConfig(log)
	if err != nil {
		return nil, nil, log, err
	}
	if !debug {
		l, err := logger.New(cfg.Log.Development, cfg.Log.Level)
		if err != nil {
			return nil, nil, log, err
		}
		log = l
	}

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, nil, log, fmt.Errorf("building app: %w", err)
	}
	return a, cfg, log, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
