package pipeline

import (
	"encoding/json"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// Status tags where the data in a result came from
type Status string

const (
	// StatusFresh is live upstream data or a cache entry inside its TTL
	StatusFresh Status = "fresh"
	// StatusStale is a cached entry served because the upstream failed
	StatusStale Status = "stale"
	// StatusDegraded means the upstream failed and nothing was cached.
	// A degraded result carries no data.
	StatusDegraded Status = "degraded"
)

func (s Status) rank() int {
	switch s {
	case StatusFresh:
		return 0
	case StatusStale:
		return 1
	}
	return 2
}

// worse returns the less trustworthy of two statuses
func worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Failure describes the error behind a stale, degraded or failed result
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func describe(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Code: errorCode(err), Message: err.Error()}
}

// QuoteResult is the outcome of a quote lookup
type QuoteResult struct {
	Symbol    string      `json:"symbol"`
	Quote     *core.Quote `json:"quote,omitempty"` // nil when degraded
	Status    Status      `json:"status"`
	Cached    bool        `json:"cached"`
	FetchedAt time.Time   `json:"fetched_at"`

	// Cause is the upstream failure behind a stale or degraded result
	Cause error `json:"-"`
}

// MarshalJSON adds the cause of a stale or degraded result
func (r QuoteResult) MarshalJSON() ([]byte, error) {
	type plain QuoteResult
	return json.Marshal(struct {
		plain
		Cause *Failure `json:"cause,omitempty"`
	}{plain(r), describe(r.Cause)})
}

func (r *QuoteResult) status() Status {
	if r == nil {
		return ""
	}
	return r.Status
}

// HistoryResult is the outcome of a history lookup. Bars may be shared with
// concurrent callers and must not be modified.
type HistoryResult struct {
	Symbol    string          `json:"symbol"`
	Lookback  int             `json:"lookback"`
	Bars      []core.PriceBar `json:"bars"`
	Status    Status          `json:"status"`
	Cached    bool            `json:"cached"`
	FetchedAt time.Time       `json:"fetched_at"`
	Cause     error           `json:"-"`
}

func (r HistoryResult) MarshalJSON() ([]byte, error) {
	type plain HistoryResult
	return json.Marshal(struct {
		plain
		Cause *Failure `json:"cause,omitempty"`
	}{plain(r), describe(r.Cause)})
}

func (r *HistoryResult) status() Status {
	if r == nil {
		return ""
	}
	return r.Status
}

// Analysis is the full indicators, signals and allocation view of a symbol
type Analysis struct {
	Symbol     string                 `json:"symbol"`
	Status     Status                 `json:"status"`
	Price      float64                `json:"price"`
	Quote      *core.Quote            `json:"quote,omitempty"`
	Indicators core.IndicatorSnapshot `json:"indicators"`
	Signals    []core.Signal          `json:"signals"`
	Allocation *core.Allocation       `json:"allocation,omitempty"` // omitted when degraded
	AnalyzedAt time.Time              `json:"analyzed_at"`
	Cause      error                  `json:"-"`
}

func (a Analysis) MarshalJSON() ([]byte, error) {
	type plain Analysis
	return json.Marshal(struct {
		plain
		Cause *Failure `json:"cause,omitempty"`
	}{plain(a), describe(a.Cause)})
}

func (a *Analysis) status() Status {
	if a == nil {
		return ""
	}
	return a.Status
}

// BatchItem is one symbol's slot in a batch. Exactly one of Result and Err
// is set.
type BatchItem struct {
	Symbol string       `json:"symbol"`
	Result *QuoteResult `json:"result,omitempty"`
	Err    error        `json:"-"`
}

func (b BatchItem) MarshalJSON() ([]byte, error) {
	type plain BatchItem
	return json.Marshal(struct {
		plain
		Err *Failure `json:"error,omitempty"`
	}{plain(b), describe(b.Err)})
}
