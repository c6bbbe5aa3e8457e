package macd

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

// Rule compares the MACD line against its signal line
type Rule struct{}

// New creates a MACD rule
func New() *Rule {
	return &Rule{}
}

func (r *Rule) Name() string {
	return "macd"
}

func (r *Rule) Description() string {
	return "MACD(12,26,9) line vs signal"
}

func (r *Rule) Init(cfg strategy.Config) error {
	return nil
}

func (r *Rule) Evaluate(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	m := ctx.Snapshot.MACD
	if m == nil {
		return nil, nil
	}

	switch {
	case m.Line > m.Signal:
		return []core.Signal{{
			Action:    core.ActionBuy,
			Indicator: "MACD",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("MACD %.4f above signal %.4f", m.Line, m.Signal),
		}}, nil
	case m.Line < m.Signal:
		return []core.Signal{{
			Action:    core.ActionSell,
			Indicator: "MACD",
			Strength:  core.StrengthMedium,
			Reason:    fmt.Sprintf("MACD %.4f below signal %.4f", m.Line, m.Signal),
		}}, nil
	}
	return nil, nil
}
