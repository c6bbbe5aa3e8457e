package normalize

import (
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/guregu/null/v6"

	"github.com/newthinker/marketlens/internal/clock"
	"github.com/newthinker/marketlens/internal/core"
)

// QuoteFields is what an adapter extracts from a quote payload. Change and
// ChangePercent stay invalid when the provider does not report them.
type QuoteFields struct {
	Name          string
	Price         float64
	Change        null.Float
	ChangePercent null.Float
	Volume        int64
	High          float64
	Low           float64
	Open          float64
	PreviousClose float64
	MarketCap     float64
	Currency      string
	Exchange      string
}

// Adapter understands one provider's payload shape
type Adapter interface {
	Source() string
	Quote(body []byte) (QuoteFields, error)
	History(body []byte) ([]core.PriceBar, error)
}

// SearchAdapter is implemented by adapters whose provider supports symbol
// lookup
type SearchAdapter interface {
	Search(body []byte) ([]core.SearchMatch, error)
}

// Normalizer maps raw payloads onto canonical records using the adapter
// registered for the payload's source.
type Normalizer struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	clock    clock.Clock
}

// New creates a Normalizer with the given adapters
func New(clk clock.Clock, adapters ...Adapter) *Normalizer {
	if clk == nil {
		clk = clock.Real{}
	}
	n := &Normalizer{
		adapters: make(map[string]Adapter),
		clock:    clk,
	}
	for _, a := range adapters {
		n.Register(a)
	}
	return n
}

// Default creates a Normalizer that understands every built-in provider
func Default(clk clock.Clock) *Normalizer {
	return New(clk, Yahoo{}, Finnhub{}, AlphaVantage{})
}

// Register adds or replaces the adapter for a.Source()
func (n *Normalizer) Register(a Adapter) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.adapters[a.Source()] = a
}

func (n *Normalizer) adapter(source string) (Adapter, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	a, ok := n.adapters[source]
	if !ok {
		return nil, core.Errorf(core.ErrUnknownPayload, "source %q", source)
	}
	return a, nil
}

// Quote converts a raw quote payload into a Quote stamped with the current time
func (n *Normalizer) Quote(raw core.RawPayload) (core.Quote, error) {
	a, err := n.adapter(raw.Source)
	if err != nil {
		return core.Quote{}, err
	}
	if len(raw.Body) == 0 {
		return core.Quote{}, core.Errorf(core.ErrMalformedPayload, "%s: empty body", raw.Source)
	}

	f, err := a.Quote(raw.Body)
	if err != nil {
		return core.Quote{}, err
	}
	if !finite(f.Price) || f.Price <= 0 {
		return core.Quote{}, core.Errorf(core.ErrMalformedPayload, "%s: price %v", raw.Source, f.Price)
	}

	change, changePct := derivedChange(f)

	return core.Quote{
		Symbol:        core.NormalizeSymbol(raw.Symbol),
		Name:          f.Name,
		Price:         f.Price,
		Change:        change,
		ChangePercent: changePct,
		Volume:        f.Volume,
		High:          f.High,
		Low:           f.Low,
		Open:          f.Open,
		PreviousClose: f.PreviousClose,
		MarketCap:     f.MarketCap,
		Currency:      f.Currency,
		Exchange:      f.Exchange,
		Source:        raw.Source,
		FetchedAt:     n.clock.Now(),
	}, nil
}

// derivedChange prefers the provider's figures and falls back to computing
// them from the previous close. A zero previous close still yields a change
// but a zero percent.
func derivedChange(f QuoteFields) (float64, float64) {
	change := f.Change.Float64
	if !f.Change.Valid || !finite(change) {
		change = f.Price - f.PreviousClose
	}

	pct := f.ChangePercent.Float64
	if !f.ChangePercent.Valid || !finite(pct) {
		pct = 0
		if f.PreviousClose != 0 {
			pct = (f.Price - f.PreviousClose) / f.PreviousClose * 100
		}
	}
	return change, pct
}

// History converts a raw history payload into bars sorted ascending by date,
// de-duplicated by day (last occurrence wins) and windowed to the most recent
// lookback bars. lookback <= 0 means core.DefaultLookback.
func (n *Normalizer) History(raw core.RawPayload, lookback int) ([]core.PriceBar, error) {
	a, err := n.adapter(raw.Source)
	if err != nil {
		return nil, err
	}
	if len(raw.Body) == 0 {
		return nil, core.Errorf(core.ErrMalformedPayload, "%s: empty body", raw.Source)
	}

	bars, err := a.History(raw.Body)
	if err != nil {
		return nil, err
	}
	return Bars(bars, lookback)
}

// Search converts a raw search payload into at most core.MaxSearchResults
// matches in provider order. Hits without a symbol are dropped.
func (n *Normalizer) Search(raw core.RawPayload) ([]core.SearchMatch, error) {
	a, err := n.adapter(raw.Source)
	if err != nil {
		return nil, err
	}
	sa, ok := a.(SearchAdapter)
	if !ok {
		return nil, core.Errorf(core.ErrUnknownPayload, "source %q has no search", raw.Source)
	}
	if len(raw.Body) == 0 {
		return nil, core.Errorf(core.ErrMalformedPayload, "%s: empty body", raw.Source)
	}

	matches, err := sa.Search(raw.Body)
	if err != nil {
		return nil, err
	}

	out := make([]core.SearchMatch, 0, min(len(matches), core.MaxSearchResults))
	for _, m := range matches {
		if m.Symbol == "" {
			continue
		}
		out = append(out, m)
		if len(out) == core.MaxSearchResults {
			break
		}
	}
	return out, nil
}

// Bars validates, orders, de-duplicates and windows bars.
func Bars(bars []core.PriceBar, lookback int) ([]core.PriceBar, error) {
	if lookback <= 0 {
		lookback = core.DefaultLookback
	}

	sorted := make([]core.PriceBar, len(bars))
	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, core.Errorf(core.ErrMalformedPayload, "bar %d (%s): %v", i, b.Date.Format(time.DateOnly), err)
		}
		b.Date = day(b.Date)
		sorted[i] = b
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	out := make([]core.PriceBar, 0, len(sorted))
	for _, b := range sorted {
		if len(out) > 0 && out[len(out)-1].Date.Equal(b.Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}

	if len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out, nil
}

var (
	errMissingDate   = errors.New("missing date")
	errBadClose      = errors.New("non-positive close")
	errNonFinite     = errors.New("non-finite price")
	errInvertedRange = errors.New("high below low")
)

func validateBar(b core.PriceBar) error {
	if b.Date.IsZero() {
		return errMissingDate
	}
	if !finite(b.Close) || b.Close <= 0 {
		return errBadClose
	}
	if !finite(b.Open) || !finite(b.High) || !finite(b.Low) {
		return errNonFinite
	}
	if b.High < b.Low {
		return errInvertedRange
	}
	return nil
}

func day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
