package core

import (
	"strings"
	"time"

	"github.com/guregu/null/v6"
)

// PayloadKind distinguishes raw quote payloads from raw history payloads
type PayloadKind string

const (
	PayloadQuote   PayloadKind = "quote"
	PayloadHistory PayloadKind = "history"
	PayloadSearch  PayloadKind = "search"
)

// RawPayload is an opaque provider response. Source names the adapter that can parse it.
type RawPayload struct {
	Source string
	Symbol string
	Kind   PayloadKind
	Status int // HTTP status of the response, 0 when not applicable
	Body   []byte
}

// SearchMatch is one symbol-lookup hit
type SearchMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// Quote represents the latest quote snapshot for a symbol
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Open          float64   `json:"open"`
	PreviousClose float64   `json:"previous_close"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	Currency      string    `json:"currency,omitempty"`
	Exchange      string    `json:"exchange,omitempty"`
	Source        string    `json:"source"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// IsValid checks if the quote has required fields
func (q Quote) IsValid() bool {
	return q.Symbol != "" && q.Price > 0
}

// DefaultLookback is one trading year of daily bars
const DefaultLookback = 252

// Symbol search limits
const (
	MinSearchQuery   = 2
	MaxSearchResults = 10
)

// PriceBar represents one trading day's OHLCV
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Closes extracts closing prices in bar order
func Closes(bars []PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

// MACD holds the MACD(12,26,9) triple
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds Bollinger(20,2) bands
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Stochastic holds the %K/%D pair
type Stochastic struct {
	K float64 `json:"k"`
	D float64 `json:"d"`
}

// IndicatorSnapshot holds computed technicals for a symbol. A field that could
// not be computed from the available history is invalid (or nil), never zero.
type IndicatorSnapshot struct {
	Bars         int         `json:"bars"`
	SMA20        null.Float  `json:"sma20"`
	SMA50        null.Float  `json:"sma50"`
	EMA12        null.Float  `json:"ema12"`
	EMA26        null.Float  `json:"ema26"`
	RSI14        null.Float  `json:"rsi14"`
	MACD         *MACD       `json:"macd,omitempty"`
	Bollinger    *Bollinger  `json:"bollinger,omitempty"`
	Stochastic   *Stochastic `json:"stochastic,omitempty"`
	Volatility   null.Float  `json:"volatility_annualized"`
	Momentum10   null.Float  `json:"momentum10"`
	Support20    null.Float  `json:"support20"`
	Resistance20 null.Float  `json:"resistance20"`
}

// Action represents a signal direction
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Strength grades how much weight a signal carries
type Strength string

const (
	StrengthWeak   Strength = "WEAK"
	StrengthMedium Strength = "MEDIUM"
	StrengthStrong Strength = "STRONG"
)

// Signal represents one directional inference from an indicator family
type Signal struct {
	Symbol    string   `json:"symbol"`
	Action    Action   `json:"action"`
	Indicator string   `json:"indicator"`
	Strength  Strength `json:"strength"`
	Reason    string   `json:"reason"`
	Price     float64  `json:"price"` // Price the rule was evaluated against
}

// RiskProfile scales the allocation suggestion
type RiskProfile string

const (
	RiskConservative RiskProfile = "CONSERVATIVE"
	RiskModerate     RiskProfile = "MODERATE"
	RiskAggressive   RiskProfile = "AGGRESSIVE"
)

// ParseRiskProfile accepts any casing; empty input means MODERATE
func ParseRiskProfile(s string) (RiskProfile, bool) {
	switch RiskProfile(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskConservative:
		return RiskConservative, true
	case RiskModerate, "":
		return RiskModerate, true
	case RiskAggressive:
		return RiskAggressive, true
	}
	return "", false
}

// Allocation is the suggested portfolio weight for a symbol
type Allocation struct {
	Percentage  int         `json:"percentage"`
	RiskProfile RiskProfile `json:"risk_profile"`
	StrongBuy   int         `json:"strong_buy"`
	StrongSell  int         `json:"strong_sell"`
}

// NormalizeSymbol upper-cases and trims a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
