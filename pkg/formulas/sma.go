package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA calculates the simple moving average over the given period
// and returns the latest value, or nil when the series is too short.
func CalculateSMA(closes []float64, period int) *float64 {
	if len(closes) < period || period <= 0 {
		return nil
	}

	sma := talib.Sma(closes, period)

	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	return nil
}

// isNaN checks if a float64 is NaN
func isNaN(f float64) bool {
	return f != f
}
