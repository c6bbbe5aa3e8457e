package indicator

import (
	"math"

	"github.com/newthinker/marketlens/internal/core"
)

// TradingDaysPerYear annualizes daily volatility.
const TradingDaysPerYear = 252

// Bollinger computes middle = SMA(period) and upper/lower = middle ± k sample
// standard deviations of the trailing period prices.
func Bollinger(prices []float64, period int, k float64) (core.Bollinger, bool) {
	if period <= 0 || len(prices) < period {
		return core.Bollinger{}, false
	}
	window := prices[len(prices)-period:]
	mid := mean(window)
	dev := k * StdDev(window)
	return core.Bollinger{Upper: mid + dev, Middle: mid, Lower: mid - dev}, true
}

// Volatility is the annualized sample standard deviation of daily simple
// returns. It needs at least two prices.
func Volatility(prices []float64) (float64, bool) {
	if len(prices) < 2 {
		return 0, false
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			return 0, false
		}
		returns = append(returns, prices[i]/prices[i-1]-1)
	}
	return StdDev(returns) * math.Sqrt(TradingDaysPerYear), true
}

// Levels returns support (lowest low) and resistance (highest high) over the
// trailing period bars.
func Levels(bars []core.PriceBar, period int) (support, resistance float64, ok bool) {
	if period <= 0 || len(bars) < period {
		return 0, 0, false
	}
	window := bars[len(bars)-period:]
	support, resistance = window[0].Low, window[0].High
	for _, b := range window[1:] {
		support = math.Min(support, b.Low)
		resistance = math.Max(resistance, b.High)
	}
	return support, resistance, true
}
