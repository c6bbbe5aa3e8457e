package collector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/marketlens/internal/core"
)

// validSymbol matches tickers like AAPL, BRK.B, 0700.HK, BRK-B and ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9]{1,10}([.-][A-Za-z]{1,4})?$`)

// ValidateSymbol checks if a symbol has valid format
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return core.Errorf(core.ErrInvalidSymbol, "symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return core.Errorf(core.ErrInvalidSymbol, "symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return core.Errorf(core.ErrInvalidSymbol, "invalid symbol format: %s", symbol)
	}
	return nil
}

var periodBars = []struct {
	period string
	bars   int
}{
	{"1d", 1},
	{"5d", 5},
	{"1mo", 21},
	{"3mo", 63},
	{"6mo", 126},
	{"1y", 252},
	{"2y", 504},
	{"5y", 1260},
	{"10y", 2520},
}

// LookbackForPeriod converts a period string (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y,
// 5y, 10y) to a number of daily bars. An empty period is one year.
func LookbackForPeriod(period string) (int, error) {
	p := strings.ToLower(strings.TrimSpace(period))
	if p == "" {
		return core.DefaultLookback, nil
	}
	for _, pb := range periodBars {
		if pb.period == p {
			return pb.bars, nil
		}
	}
	return 0, fmt.Errorf("unsupported period %q", period)
}

// RangeForLookback returns the shortest period string covering lookback bars.
func RangeForLookback(lookback int) string {
	for _, pb := range periodBars {
		if lookback <= pb.bars {
			return pb.period
		}
	}
	return "max"
}

// CalendarDays estimates how many calendar days span lookback trading days.
func CalendarDays(lookback int) int {
	return lookback*7/5 + 10
}
