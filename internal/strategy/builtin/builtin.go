// Package builtin assembles the stock signal rules.
package builtin

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/strategy"
	"github.com/newthinker/marketlens/internal/strategy/bollinger"
	"github.com/newthinker/marketlens/internal/strategy/levels"
	"github.com/newthinker/marketlens/internal/strategy/ma_alignment"
	"github.com/newthinker/marketlens/internal/strategy/macd"
	"github.com/newthinker/marketlens/internal/strategy/rsi"
)

// Rules returns every stock rule with default parameters, in evaluation order.
func Rules() []strategy.Rule {
	return []strategy.Rule{
		rsi.New(),
		ma_alignment.New(),
		macd.New(),
		bollinger.New(),
		levels.New(),
	}
}

// Names lists the stock rule names in evaluation order.
func Names() []string {
	rules := Rules()
	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name()
	}
	return names
}

// Register initializes and registers the stock rules on e. A rule missing
// from cfgs is registered with defaults; one present but disabled is skipped.
func Register(e *strategy.Engine, cfgs map[string]strategy.Config) error {
	for _, r := range Rules() {
		cfg, ok := cfgs[r.Name()]
		if ok && !cfg.Enabled {
			continue
		}
		if err := r.Init(cfg); err != nil {
			return fmt.Errorf("init rule %s: %w", r.Name(), err)
		}
		e.Register(r)
	}
	return nil
}
