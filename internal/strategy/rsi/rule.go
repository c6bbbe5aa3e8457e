package rsi

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

// Default RSI thresholds
const (
	DefaultOverbought = 70.0
	DefaultOversold   = 30.0
)

// Rule flags overbought and oversold RSI readings
type Rule struct {
	overbought float64
	oversold   float64
}

// New creates an RSI rule with the default thresholds
func New() *Rule {
	return &Rule{overbought: DefaultOverbought, oversold: DefaultOversold}
}

func (r *Rule) Name() string {
	return "rsi"
}

func (r *Rule) Description() string {
	return fmt.Sprintf("RSI(14) overbought above %.0f, oversold below %.0f", r.overbought, r.oversold)
}

func (r *Rule) Init(cfg strategy.Config) error {
	r.overbought = cfg.Float("overbought", r.overbought)
	r.oversold = cfg.Float("oversold", r.oversold)
	if r.oversold >= r.overbought {
		return fmt.Errorf("rsi: oversold %.2f must be below overbought %.2f", r.oversold, r.overbought)
	}
	return nil
}

func (r *Rule) Evaluate(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	if !ctx.Snapshot.RSI14.Valid {
		return nil, nil
	}
	rsi := ctx.Snapshot.RSI14.Float64

	switch {
	case rsi > r.overbought:
		return []core.Signal{{
			Action:    core.ActionSell,
			Indicator: "RSI",
			Strength:  core.StrengthStrong,
			Reason:    "Overbought condition",
		}}, nil
	case rsi < r.oversold:
		return []core.Signal{{
			Action:    core.ActionBuy,
			Indicator: "RSI",
			Strength:  core.StrengthStrong,
			Reason:    "Oversold condition",
		}}, nil
	}
	return nil, nil
}
