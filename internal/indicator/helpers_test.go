package indicator

import (
	"math"
	"time"

	"github.com/newthinker/marketlens/internal/core"
)

// wave returns a deterministic, non-constant price series.
func wave(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/3) + 0.2*float64(i)
	}
	return prices
}

// barsFrom builds daily bars whose high/low straddle each close by one unit.
func barsFrom(closes []float64) []core.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]core.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = core.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

func constant(n int, price float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = price
	}
	return prices
}
