package collector

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
)

// Registry manages collectors in fallback order
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Registry{logger: l}
}

// Register appends a collector; earlier registrations are tried first.
// Registering a name twice replaces the earlier collector in place.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.collectors {
		if existing.Name() == c.Name() {
			r.collectors[i] = c
			return
		}
	}
	r.collectors = append(r.collectors, c)
}

// Get retrieves a collector by name
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.collectors {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// GetAll returns all registered collectors in fallback order
func (r *Registry) GetAll() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// FetchQuote fetches a quote payload from the first collector that answers.
func (r *Registry) FetchQuote(ctx context.Context, symbol string) (core.RawPayload, error) {
	return r.fetch(ctx, symbol, "quote", func(c Collector) (core.RawPayload, error) {
		return c.FetchQuote(ctx, symbol)
	})
}

// FetchHistory fetches a history payload from the first collector that answers.
func (r *Registry) FetchHistory(ctx context.Context, symbol string, lookback int) (core.RawPayload, error) {
	return r.fetch(ctx, symbol, "history", func(c Collector) (core.RawPayload, error) {
		return c.FetchHistory(ctx, symbol, lookback)
	})
}

// Search asks the collectors that support symbol lookup, in fallback order.
func (r *Registry) Search(ctx context.Context, query string) (core.RawPayload, error) {
	var searchers []Collector
	for _, c := range r.GetAll() {
		if _, ok := c.(Searcher); ok {
			searchers = append(searchers, c)
		}
	}
	return r.fetchFrom(ctx, searchers, query, "search", func(c Collector) (core.RawPayload, error) {
		return c.(Searcher).Search(ctx, query)
	})
}

func (r *Registry) fetch(ctx context.Context, symbol, kind string, call func(Collector) (core.RawPayload, error)) (core.RawPayload, error) {
	return r.fetchFrom(ctx, r.GetAll(), symbol, kind, call)
}

// fetchFrom walks collectors in order. Only retryable upstream failures move
// on to the next collector; SymbolNotFound from any collector is final.
func (r *Registry) fetchFrom(ctx context.Context, collectors []Collector, symbol, kind string, call func(Collector) (core.RawPayload, error)) (core.RawPayload, error) {
	if len(collectors) == 0 {
		return core.RawPayload{}, core.ErrNoProvider
	}

	var lastErr error
	for _, c := range collectors {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return core.RawPayload{}, lastErr
			}
			return core.RawPayload{}, ClassifyTransport(ctx, err)
		}

		payload, err := call(c)
		if err == nil {
			return payload, nil
		}
		if !core.IsRetryable(err) || errors.Is(err, context.Canceled) {
			return core.RawPayload{}, err
		}

		r.logger.Warn("collector failed, trying next",
			zap.String("collector", c.Name()),
			zap.String("symbol", symbol),
			zap.String("kind", kind),
			zap.Error(err),
		)
		lastErr = err
	}
	return core.RawPayload{}, lastErr
}
