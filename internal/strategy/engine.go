package strategy

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
)

// Engine runs rules in registration order
type Engine struct {
	mu     sync.RWMutex
	rules  []Rule
	logger *zap.Logger
}

// NewEngine creates a new rule engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{logger: l}
}

// Register adds a rule to the engine. Registering a name twice replaces the
// earlier rule in place.
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, existing := range e.rules {
		if existing.Name() == r.Name() {
			e.rules[i] = r
			return
		}
	}
	e.rules = append(e.rules, r)
}

// Get retrieves a rule by name
func (e *Engine) Get(name string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, r := range e.rules {
		if r.Name() == name {
			return r, true
		}
	}
	return nil, false
}

// GetAll returns all registered rules in registration order
func (e *Engine) GetAll() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Rule, len(e.rules))
	copy(result, e.rules)
	return result
}

// Analyze runs all rules on the given context
func (e *Engine) Analyze(ctx context.Context, analysisCtx AnalysisContext) ([]core.Signal, error) {
	return e.run(ctx, analysisCtx, e.GetAll())
}

// AnalyzeWith runs the named rules only, in the order given
func (e *Engine) AnalyzeWith(ctx context.Context, analysisCtx AnalysisContext, names []string) ([]core.Signal, error) {
	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		if r, ok := e.Get(name); ok {
			rules = append(rules, r)
		}
	}
	return e.run(ctx, analysisCtx, rules)
}

func (e *Engine) run(ctx context.Context, analysisCtx AnalysisContext, rules []Rule) ([]core.Signal, error) {
	allSignals := []core.Signal{}

	for _, r := range rules {
		select {
		case <-ctx.Done():
			return allSignals, ctx.Err()
		default:
		}

		signals, err := r.Evaluate(analysisCtx)
		if err != nil {
			e.logger.Warn("rule evaluation failed",
				zap.String("rule", r.Name()),
				zap.String("symbol", analysisCtx.Symbol),
				zap.Error(err),
			)
			continue
		}

		for i := range signals {
			signals[i].Symbol = analysisCtx.Symbol
			signals[i].Price = analysisCtx.Price
		}

		allSignals = append(allSignals, signals...)
	}

	return allSignals, nil
}
