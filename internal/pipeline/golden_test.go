package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/core"
)

// sawtooth climbs 100..109 and drops back, repeating; high/low are close±1.
func sawtooth(n int) []core.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.PriceBar, n)
	for i := range bars {
		c := 100 + float64(i%10)
		bars[i] = core.PriceBar{Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return bars
}

type voteKey struct {
	Action    core.Action
	Indicator string
	Strength  core.Strength
}

func TestAnalyze_GoldenSawtooth(t *testing.T) {
	h := newHarness(t, Config{})
	h.fetcher.bars = sawtooth(60)
	h.fetcher.price = 109

	a, err := h.svc.Analyze(context.Background(), "SAW", AnalyzeOptions{RiskProfile: core.RiskModerate})
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, a.Status)
	assert.Equal(t, 109.0, a.Price)

	ind := a.Indicators
	const tol = 1e-9
	assert.Equal(t, 60, ind.Bars)
	assert.InDelta(t, 104.5, ind.SMA20.Float64, tol)
	assert.InDelta(t, 104.5, ind.SMA50.Float64, tol)
	assert.InDelta(t, 105.81731481011886, ind.EMA12.Float64, tol)
	assert.InDelta(t, 105.11402073556293, ind.EMA26.Float64, tol)
	assert.InDelta(t, 59.99646937573769, ind.RSI14.Float64, tol)
	require.NotNil(t, ind.MACD)
	assert.InDelta(t, 0.7032940745559273, ind.MACD.Line, tol)
	assert.InDelta(t, 0.18780280562206203, ind.MACD.Signal, tol)
	assert.InDelta(t, 0.5154912689338653, ind.MACD.Histogram, tol)
	require.NotNil(t, ind.Bollinger)
	assert.InDelta(t, 110.39379691754502, ind.Bollinger.Upper, tol)
	assert.InDelta(t, 104.5, ind.Bollinger.Middle, tol)
	assert.InDelta(t, 98.60620308245498, ind.Bollinger.Lower, tol)
	require.NotNil(t, ind.Stochastic)
	assert.InDelta(t, 90.9090909090909, ind.Stochastic.K, tol)
	assert.InDelta(t, 81.81818181818183, ind.Stochastic.D, tol)
	assert.InDelta(t, 0.4110965005496121, ind.Volatility.Float64, tol)
	assert.InDelta(t, 0.0, ind.Momentum10.Float64, tol)
	assert.True(t, ind.Momentum10.Valid)
	assert.Equal(t, 99.0, ind.Support20.Float64)
	assert.Equal(t, 110.0, ind.Resistance20.Float64)

	votes := make([]voteKey, len(a.Signals))
	for i, s := range a.Signals {
		votes[i] = voteKey{s.Action, s.Indicator, s.Strength}
		assert.Equal(t, "SAW", s.Symbol)
		assert.Equal(t, 109.0, s.Price)
	}
	assert.Equal(t, []voteKey{
		{core.ActionBuy, "MACD", core.StrengthMedium},
		{core.ActionSell, "RESISTANCE", core.StrengthStrong},
	}, votes)

	require.NotNil(t, a.Allocation)
	assert.Equal(t, core.Allocation{
		Percentage:  0,
		RiskProfile: core.RiskModerate,
		StrongBuy:   0,
		StrongSell:  1,
	}, *a.Allocation)
}

func TestAnalyze_GoldenIsDeterministic(t *testing.T) {
	run := func() *Analysis {
		h := newHarness(t, Config{})
		h.fetcher.bars = sawtooth(60)
		h.fetcher.price = 109
		a, err := h.svc.Analyze(context.Background(), "SAW", AnalyzeOptions{})
		require.NoError(t, err)
		return a
	}

	first, second := run(), run()
	assert.Equal(t, first.Indicators, second.Indicators)
	assert.Equal(t, first.Signals, second.Signals)
	assert.Equal(t, first.Allocation, second.Allocation)
}
