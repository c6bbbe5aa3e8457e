package bollinger

import (
	"testing"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/strategy"
)

func TestRule_ImplementsRule(t *testing.T) {
	var _ strategy.Rule = (*Rule)(nil)
}

func TestRule_Evaluate(t *testing.T) {
	bands := &core.Bollinger{Upper: 110, Middle: 100, Lower: 90}

	tests := []struct {
		name  string
		bands *core.Bollinger
		price float64
		want  core.Action
	}{
		{"absent", nil, 120, ""},
		{"breakout up", bands, 111, core.ActionSell},
		{"breakout down", bands, 89, core.ActionBuy},
		{"inside", bands, 100, ""},
		{"on band", bands, 110, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signals, err := New().Evaluate(strategy.AnalysisContext{
				Price:    tt.price,
				Snapshot: core.IndicatorSnapshot{Bollinger: tt.bands},
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == "" {
				if len(signals) != 0 {
					t.Errorf("expected no signal, got %v", signals)
				}
				return
			}
			if len(signals) != 1 || signals[0].Action != tt.want {
				t.Fatalf("expected %s, got %v", tt.want, signals)
			}
		})
	}
}
