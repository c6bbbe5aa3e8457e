package app

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/metrics"
	"github.com/newthinker/marketlens/internal/pipeline"
)

// DefaultWatchlistMax caps how many symbols a watchlist holds
const DefaultWatchlistMax = 50

// Quoter is the part of the pipeline the watchlist needs
type Quoter interface {
	VerifySymbol(ctx context.Context, symbol string) error
	Batch(ctx context.Context, symbols []string, useCache bool) ([]pipeline.BatchItem, error)
}

// Watchlist is an ordered set of verified symbols
type Watchlist struct {
	quoter    Quoter
	max       int
	batchSize int
	metrics   *metrics.Registry
	logger    *zap.Logger

	mu      sync.RWMutex
	symbols []string
	set     map[string]struct{}
}

// NewWatchlist creates an empty watchlist. Lookups are split into batches of
// batchSize symbols.
func NewWatchlist(q Quoter, max, batchSize int, reg *metrics.Registry, logger *zap.Logger) *Watchlist {
	if max <= 0 {
		max = DefaultWatchlistMax
	}
	if batchSize <= 0 {
		batchSize = pipeline.DefaultBatchMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watchlist{
		quoter:    q,
		max:       max,
		batchSize: batchSize,
		metrics:   reg,
		logger:    logger,
		set:       make(map[string]struct{}),
	}
}

// Add verifies symbol upstream and appends it. Unverifiable symbols are
// rejected; cached data is never taken as proof of existence.
func (w *Watchlist) Add(ctx context.Context, symbol string) error {
	sym := core.NormalizeSymbol(symbol)

	w.mu.RLock()
	_, dup := w.set[sym]
	full := len(w.symbols) >= w.max
	w.mu.RUnlock()
	if dup {
		return core.Errorf(core.ErrWatchlistDuplicate, "%s", sym)
	}
	if full {
		return core.Errorf(core.ErrWatchlistFull, "max %d symbols", w.max)
	}

	if err := w.quoter.VerifySymbol(ctx, sym); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// Re-check: another Add may have won while we were verifying.
	if _, ok := w.set[sym]; ok {
		return core.Errorf(core.ErrWatchlistDuplicate, "%s", sym)
	}
	if len(w.symbols) >= w.max {
		return core.Errorf(core.ErrWatchlistFull, "max %d symbols", w.max)
	}
	w.set[sym] = struct{}{}
	w.symbols = append(w.symbols, sym)
	w.setSize()

	w.logger.Info("watchlist symbol added", zap.String("symbol", sym), zap.Int("size", len(w.symbols)))
	return nil
}

// Remove drops symbol from the watchlist
func (w *Watchlist) Remove(symbol string) error {
	sym := core.NormalizeSymbol(symbol)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.set[sym]; !ok {
		return core.Errorf(core.ErrNotInWatchlist, "%s", sym)
	}
	delete(w.set, sym)
	for i, s := range w.symbols {
		if s == sym {
			w.symbols = append(w.symbols[:i], w.symbols[i+1:]...)
			break
		}
	}
	w.setSize()
	return nil
}

// Symbols returns the watchlist in insertion order
func (w *Watchlist) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.symbols))
	copy(out, w.symbols)
	return out
}

// Len returns the number of symbols
func (w *Watchlist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.symbols)
}

// List quotes every symbol cache-first to conserve the upstream budget
func (w *Watchlist) List(ctx context.Context) ([]pipeline.BatchItem, error) {
	return w.lookup(ctx, true)
}

// Refresh forces an upstream quote for every symbol
func (w *Watchlist) Refresh(ctx context.Context) ([]pipeline.BatchItem, error) {
	return w.lookup(ctx, false)
}

func (w *Watchlist) lookup(ctx context.Context, useCache bool) ([]pipeline.BatchItem, error) {
	symbols := w.Symbols()
	items := make([]pipeline.BatchItem, 0, len(symbols))
	for start := 0; start < len(symbols); start += w.batchSize {
		end := min(start+w.batchSize, len(symbols))
		batch, err := w.quoter.Batch(ctx, symbols[start:end], useCache)
		if err != nil {
			return items, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

// setSize must be called with w.mu held
func (w *Watchlist) setSize() {
	if w.metrics != nil {
		w.metrics.SetWatchlistSize(len(w.symbols))
	}
}
