package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/storage/snapshot"
)

// Default time-to-live per payload kind
const (
	DefaultQuoteTTL   = 5 * time.Minute
	DefaultHistoryTTL = time.Hour
)

// QuoteKey is the cache key of a symbol's quote snapshot
func QuoteKey(symbol string) string {
	return "quote:" + core.NormalizeSymbol(symbol)
}

// HistoryKey is the cache key of a symbol's history at a given lookback
func HistoryKey(symbol string, lookback int) string {
	return fmt.Sprintf("history:%s:%d", core.NormalizeSymbol(symbol), lookback)
}

// Store is the per-symbol snapshot cache. It stamps writes with its clock,
// judges freshness against a TTL and coalesces concurrent refreshes of the
// same key.
type Store struct {
	backend    snapshot.Store
	clock      clock.Clock
	quoteTTL   time.Duration
	historyTTL time.Duration
	logger     *zap.Logger

	group singleflight.Group
}

// Option configures a Store
type Option func(*Store)

// WithTTL overrides the quote and history TTLs; zero keeps the default.
func WithTTL(quote, history time.Duration) Option {
	return func(s *Store) {
		if quote > 0 {
			s.quoteTTL = quote
		}
		if history > 0 {
			s.historyTTL = history
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Store over backend. A nil clock means the wall clock.
func New(backend snapshot.Store, clk clock.Clock, opts ...Option) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &Store{
		backend:    backend,
		clock:      clk,
		quoteTTL:   DefaultQuoteTTL,
		historyTTL: DefaultHistoryTTL,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the raw entry for key
func (s *Store) Get(ctx context.Context, key string) (snapshot.Entry, bool, error) {
	e, found, err := s.backend.Get(ctx, key)
	if err != nil {
		return snapshot.Entry{}, false, core.WrapError(core.ErrCacheFailed, err)
	}
	return e, found, nil
}

// Put upserts payload under key with FetchedAt set to now
func (s *Store) Put(ctx context.Context, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return core.WrapError(core.ErrCacheFailed, fmt.Errorf("encode %s: %w", key, err))
	}
	entry := snapshot.Entry{Key: key, Payload: data, FetchedAt: s.clock.Now()}
	if err := s.backend.Put(ctx, entry); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}

// IsFresh reports whether now - entry.FetchedAt < ttl
func (s *Store) IsFresh(entry snapshot.Entry, ttl time.Duration) bool {
	return s.clock.Now().Sub(entry.FetchedAt) < ttl
}

// Delete removes key
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.backend.Delete(ctx, key); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}

// Do runs fn once per key among concurrent callers; the others wait and
// receive the same result. shared reports whether the result was shared.
//
// fn runs detached from the cancellation of whichever caller started it, so
// one caller giving up never fails the others. A caller whose own ctx ends
// first returns ctx.Err() while fn carries on for the rest.
func (s *Store) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (v any, shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// Sweep removes entries older than retention
func (s *Store) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-retention)
	n, err := s.backend.Sweep(ctx, cutoff)
	if err != nil {
		return n, core.WrapError(core.ErrCacheFailed, err)
	}
	s.logger.Debug("cache swept", zap.Int("removed", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// QuoteTTL returns the quote freshness window
func (s *Store) QuoteTTL() time.Duration { return s.quoteTTL }

// HistoryTTL returns the history freshness window
func (s *Store) HistoryTTL() time.Duration { return s.historyTTL }

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}
