package bollinger

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

// Rule treats a close outside the bands as a mean-reversion vote
type Rule struct{}

// New creates a Bollinger band rule
func New() *Rule {
	return &Rule{}
}

func (r *Rule) Name() string {
	return "bollinger"
}

func (r *Rule) Description() string {
	return "Bollinger(20,2) breakout"
}

func (r *Rule) Init(cfg strategy.Config) error {
	return nil
}

func (r *Rule) Evaluate(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	b := ctx.Snapshot.Bollinger
	if b == nil || ctx.Price <= 0 {
		return nil, nil
	}

	switch {
	case ctx.Price > b.Upper:
		return []core.Signal{{
			Action:    core.ActionSell,
			Indicator: "BOLLINGER",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("Price %.2f above upper band %.2f", ctx.Price, b.Upper),
		}}, nil
	case ctx.Price < b.Lower:
		return []core.Signal{{
			Action:    core.ActionBuy,
			Indicator: "BOLLINGER",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("Price %.2f below lower band %.2f", ctx.Price, b.Lower),
		}}, nil
	}
	return nil, nil
}
