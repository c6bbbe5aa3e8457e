package ma_alignment

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

// Rule votes on price, SMA20 and SMA50 all stacked in one direction
type Rule struct{}

// New creates a moving average alignment rule
func New() *Rule {
	return &Rule{}
}

func (r *Rule) Name() string {
	return "ma_alignment"
}

func (r *Rule) Description() string {
	return "Price / SMA20 / SMA50 alignment"
}

func (r *Rule) Init(cfg strategy.Config) error {
	return nil
}

func (r *Rule) Evaluate(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	snap := ctx.Snapshot
	if ctx.Price <= 0 || !snap.SMA20.Valid || !snap.SMA50.Valid {
		return nil, nil
	}

	price, fast, slow := ctx.Price, snap.SMA20.Float64, snap.SMA50.Float64

	switch {
	case price > fast && fast > slow:
		return []core.Signal{{
			Action:    core.ActionBuy,
			Indicator: "MA",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("Bullish alignment: price %.2f > SMA20 %.2f > SMA50 %.2f", price, fast, slow),
		}}, nil
	case price < fast && fast < slow:
		return []core.Signal{{
			Action:    core.ActionSell,
			Indicator: "MA",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("Bearish alignment: price %.2f < SMA20 %.2f < SMA50 %.2f", price, fast, slow),
		}}, nil
	}
	return nil, nil
}
