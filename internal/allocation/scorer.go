package allocation

import (
	"github.com/shopspring/decimal"

	"github.com/newthinker/marketlens/internal/core"
)

// Base percentages before the risk multiplier.
const (
	BullishBase    = 25
	BullishStep    = 10
	BullishCap     = 40
	BearishBase    = 5
	BearishStep    = 5
	NeutralPercent = 15
)

var multipliers = map[core.RiskProfile]decimal.Decimal{
	core.RiskConservative: decimal.RequireFromString("0.7"),
	core.RiskModerate:     decimal.NewFromInt(1),
	core.RiskAggressive:   decimal.RequireFromString("1.3"),
}

// Scorer folds signals into a risk-adjusted allocation percentage.
type Scorer struct {
	ceiling int // 0 leaves the multiplied result unclamped
}

// Option configures a Scorer
type Option func(*Scorer)

// WithCeiling clamps the final percentage to ceiling. Zero disables the clamp.
func WithCeiling(ceiling int) Option {
	return func(s *Scorer) {
		s.ceiling = ceiling
	}
}

// NewScorer creates a Scorer
func NewScorer(opts ...Option) *Scorer {
	s := &Scorer{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score counts STRONG votes on each side and maps them to a percentage. An
// unknown risk profile is scored as MODERATE.
func (s *Scorer) Score(signals []core.Signal, profile core.RiskProfile) core.Allocation {
	var strongBuy, strongSell int
	for _, sig := range signals {
		if sig.Strength != core.StrengthStrong {
			continue
		}
		switch sig.Action {
		case core.ActionBuy:
			strongBuy++
		case core.ActionSell:
			strongSell++
		}
	}

	mult, ok := multipliers[profile]
	if !ok {
		profile = core.RiskModerate
		mult = multipliers[profile]
	}

	pct := int(decimal.NewFromInt(int64(Base(strongBuy, strongSell))).
		Mul(mult).
		Round(0).
		IntPart())

	if pct < 0 {
		pct = 0
	}
	if s.ceiling > 0 && pct > s.ceiling {
		pct = s.ceiling
	}

	return core.Allocation{
		Percentage:  pct,
		RiskProfile: profile,
		StrongBuy:   strongBuy,
		StrongSell:  strongSell,
	}
}

// Base is the pre-multiplier percentage for the given STRONG vote counts.
func Base(strongBuy, strongSell int) int {
	switch {
	case strongBuy > strongSell:
		return min(BullishBase+BullishStep*strongBuy, BullishCap)
	case strongSell > strongBuy:
		return max(BearishBase-BearishStep*strongSell, 0)
	}
	return NeutralPercent
}
