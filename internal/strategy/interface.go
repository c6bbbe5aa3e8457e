package strategy

import (
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Config holds rule configuration
type Config struct {
	Enabled bool
	Params  map[string]any
}

// Float reads a numeric param, accepting the int and float64 forms YAML decoding produces.
func (c Config) Float(key string, def float64) float64 {
	switch v := c.Params[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return def
}

// AnalysisContext provides the evaluated snapshot to rules
type AnalysisContext struct {
	Symbol   string
	Price    float64 // Latest price; 0 when unknown
	Snapshot core.IndicatorSnapshot
	Now      time.Time
}

// Rule evaluates an indicator snapshot into zero or more signals. A rule
// whose inputs are absent from the snapshot emits nothing.
type Rule interface {
	Name() string
	Description() string
	Init(cfg Config) error
	Evaluate(ctx AnalysisContext) ([]core.Signal, error)
}
