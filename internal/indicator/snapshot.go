package indicator

import (
	"github.com/guregu/null/v6"

	"github.com/newthinker/marketlens/internal/core"
)

// Periods used by Compute.
const (
	ShortSMAPeriod  = 20
	LongSMAPeriod   = 50
	FastEMAPeriod   = 12
	SlowEMAPeriod   = 26
	SignalEMAPeriod = 9
	RSIPeriod       = 14
	BollingerPeriod = 20
	BollingerWidth  = 2.0
	StochasticK     = 14
	StochasticD     = 3
	MomentumPeriod  = 10
	LevelsPeriod    = 20
)

// Compute derives the full indicator snapshot from bars ordered ascending by
// date. Fields without enough history are left invalid.
func Compute(bars []core.PriceBar) core.IndicatorSnapshot {
	closes := core.Closes(bars)
	snap := core.IndicatorSnapshot{Bars: len(bars)}

	snap.SMA20 = fromSeries(SMA(closes, ShortSMAPeriod))
	snap.SMA50 = fromSeries(SMA(closes, LongSMAPeriod))
	snap.EMA12 = fromSeries(EMA(closes, FastEMAPeriod))
	snap.EMA26 = fromSeries(EMA(closes, SlowEMAPeriod))
	snap.RSI14 = fromValue(RSI(closes, RSIPeriod))
	snap.Volatility = fromValue(Volatility(closes))
	snap.Momentum10 = fromValue(Momentum(closes, MomentumPeriod))

	if m, ok := MACD(closes, FastEMAPeriod, SlowEMAPeriod, SignalEMAPeriod); ok {
		snap.MACD = &m
	}
	if b, ok := Bollinger(closes, BollingerPeriod, BollingerWidth); ok {
		snap.Bollinger = &b
	}
	if s, ok := Stochastic(bars, StochasticK, StochasticD); ok {
		snap.Stochastic = &s
	}
	if support, resistance, ok := Levels(bars, LevelsPeriod); ok {
		snap.Support20 = null.FloatFrom(support)
		snap.Resistance20 = null.FloatFrom(resistance)
	}

	return snap
}

func fromSeries(series []float64) null.Float {
	return fromValue(last(series))
}

func fromValue(v float64, ok bool) null.Float {
	return null.NewFloat(v, ok)
}
