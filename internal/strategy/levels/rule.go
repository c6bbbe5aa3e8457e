package levels

import (
	"fmt"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

// DefaultProximity is the fractional distance that counts as "near" a level.
const DefaultProximity = 0.02

// Rule votes when price trades close to 20-bar support or resistance. Both
// sides are evaluated independently, so a narrow range can emit two signals.
type Rule struct {
	proximity float64
}

// New creates a support/resistance rule
func New() *Rule {
	return &Rule{proximity: DefaultProximity}
}

func (r *Rule) Name() string {
	return "levels"
}

func (r *Rule) Description() string {
	return fmt.Sprintf("Within %.1f%% of 20-bar support/resistance", r.proximity*100)
}

func (r *Rule) Init(cfg strategy.Config) error {
	r.proximity = cfg.Float("proximity", r.proximity)
	if r.proximity <= 0 {
		return fmt.Errorf("levels: proximity must be positive, got %v", r.proximity)
	}
	return nil
}

func (r *Rule) Evaluate(ctx strategy.AnalysisContext) ([]core.Signal, error) {
	snap := ctx.Snapshot
	price := ctx.Price
	if price <= 0 {
		return nil, nil
	}

	var signals []core.Signal

	if snap.Support20.Valid && snap.Support20.Float64 > 0 {
		support := snap.Support20.Float64
		if (price-support)/support < r.proximity {
			signals = append(signals, core.Signal{
				Action:    core.ActionBuy,
				Indicator: "SUPPORT",
				Strength:  core.StrengthStrong,
				Reason:    fmt.Sprintf("Near support %.2f", support),
			})
		}
	}

	if snap.Resistance20.Valid {
		resistance := snap.Resistance20.Float64
		if (resistance-price)/price < r.proximity {
			signals = append(signals, core.Signal{
				Action:    core.ActionSell,
				Indicator: "RESISTANCE",
				Strength:  core.StrengthStrong,
				Reason:    fmt.Sprintf("Near resistance %.2f", resistance),
			})
		}
	}

	return signals, nil
}
