package indicator

import (
	"math"

	"github.com/newthinker/marketlens/internal/core"
)

// RSI computes Wilder's Relative Strength Index over period. It needs
// period+1 prices; when there are no losses the result is 100.
func RSI(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal EMA and the
// histogram. It needs slow+signal prices.
func MACD(prices []float64, fast, slow, signal int) (core.MACD, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(prices) < slow+signal {
		return core.MACD{}, false
	}

	fastEMA := EMA(prices, fast)
	slowEMA := EMA(prices, slow)

	// fastEMA[i] is aligned to prices[i+fast-1], slowEMA[j] to prices[j+slow-1].
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for j := range slowEMA {
		line[j] = fastEMA[j+offset] - slowEMA[j]
	}

	signalSeries := EMA(line, signal)
	sig, ok := last(signalSeries)
	if !ok {
		return core.MACD{}, false
	}
	l := line[len(line)-1]
	return core.MACD{Line: l, Signal: sig, Histogram: l - sig}, true
}

// Stochastic computes %K over kPeriod bars and %D as the SMA of the last
// dPeriod %K values. It needs kPeriod+dPeriod bars. A flat range yields %K 50.
func Stochastic(bars []core.PriceBar, kPeriod, dPeriod int) (core.Stochastic, bool) {
	if kPeriod <= 0 || dPeriod <= 0 || len(bars) < kPeriod+dPeriod {
		return core.Stochastic{}, false
	}

	ks := make([]float64, 0, dPeriod)
	for end := len(bars) - dPeriod + 1; end <= len(bars); end++ {
		window := bars[end-kPeriod : end]
		low, high := window[0].Low, window[0].High
		for _, b := range window[1:] {
			low = math.Min(low, b.Low)
			high = math.Max(high, b.High)
		}
		k := 50.0
		if high > low {
			k = (window[len(window)-1].Close - low) / (high - low) * 100
		}
		ks = append(ks, k)
	}

	return core.Stochastic{K: ks[len(ks)-1], D: mean(ks)}, true
}

// Momentum is the percentage change between the last price and the price
// period bars earlier. It needs period+1 prices.
func Momentum(prices []float64, period int) (float64, bool) {
	if period <= 0 || len(prices) < period+1 {
		return 0, false
	}
	base := prices[len(prices)-1-period]
	if base == 0 {
		return 0, false
	}
	return (prices[len(prices)-1] - base) / base * 100, true
}
