package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/storage/snapshot"
)

// QuoteEntry is a cached quote with its age verdict
type QuoteEntry struct {
	Quote     core.Quote
	FetchedAt time.Time
	Fresh     bool
}

// HistoryEntry is cached history with its age verdict
type HistoryEntry struct {
	Bars      []core.PriceBar
	FetchedAt time.Time
	Fresh     bool
}

// GetQuote returns the cached quote for symbol. An entry that no longer
// decodes is reported as a miss.
func (s *Store) GetQuote(ctx context.Context, symbol string) (QuoteEntry, bool, error) {
	e, found, err := s.Get(ctx, QuoteKey(symbol))
	if err != nil || !found {
		return QuoteEntry{}, false, err
	}

	var q core.Quote
	if !s.decode(e, &q) {
		return QuoteEntry{}, false, nil
	}
	return QuoteEntry{Quote: q, FetchedAt: e.FetchedAt, Fresh: s.IsFresh(e, s.quoteTTL)}, true, nil
}

// PutQuote caches q under its symbol
func (s *Store) PutQuote(ctx context.Context, q core.Quote) error {
	return s.Put(ctx, QuoteKey(q.Symbol), q)
}

// GetHistory returns the cached bars for symbol at lookback
func (s *Store) GetHistory(ctx context.Context, symbol string, lookback int) (HistoryEntry, bool, error) {
	e, found, err := s.Get(ctx, HistoryKey(symbol, lookback))
	if err != nil || !found {
		return HistoryEntry{}, false, err
	}

	var bars []core.PriceBar
	if !s.decode(e, &bars) {
		return HistoryEntry{}, false, nil
	}
	return HistoryEntry{Bars: bars, FetchedAt: e.FetchedAt, Fresh: s.IsFresh(e, s.historyTTL)}, true, nil
}

// PutHistory caches bars for symbol at lookback
func (s *Store) PutHistory(ctx context.Context, symbol string, lookback int, bars []core.PriceBar) error {
	return s.Put(ctx, HistoryKey(symbol, lookback), bars)
}

func (s *Store) decode(e snapshot.Entry, v any) bool {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		s.logger.Warn("dropping undecodable cache entry", zap.String("key", e.Key), zap.Error(err))
		return false
	}
	return true
}
