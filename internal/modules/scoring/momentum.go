// Package scoring turns price histories into strategy scores.
package scoring

import (
	"time"

	"github.com/quantrank/quantrank/pkg/formulas"
)

// Lookback periods in trading days, sized for ~249 days of history
const (
	lookback122   = 180 // ~9 months
	lookback6m    = 100 // ~5 months
	lookback3m    = 50  // ~2.5 months
	lookback1m    = 15  // ~3 weeks
	skipRecent    = 15  // most recent 3 weeks excluded from 12-2
	volWindow     = 60
	smoothWindow  = 120
	fipMonths     = 10
	fipMinMonths  = 8
	minMomentumN  = 120 // bars required for a momentum score
	consistWindow = 60
)

// MomentumResult carries the total quality momentum score and every
// intermediate value for transparency.
type MomentumResult struct {
	TotalScore         float64
	Momentum122        *float64
	FIPQuality         *float64
	RawReturn6m        float64
	RawReturn3m        float64
	RawReturn1m        *float64
	TrueMomentum6m     float64
	TrueMomentum3m     float64
	TrueMomentum1m     *float64
	VolatilityAdjusted float64
	SmoothMomentum     float64
	ConsistencyScore   float64
	TrendStrength      float64
}

// rawMomentum is the total return over the trailing period:
// (P[n-1] - P[n-1-period]) / P[n-1-period)
func rawMomentum(closes []float64, period int) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	past := closes[len(closes)-1-period]
	if past == 0 {
		return nil
	}
	v := (closes[len(closes)-1] - past) / past
	return &v
}

// momentum122 is the 12-2 measure: trailing return excluding the most
// recent month. Alpha Architect's primary momentum signal.
func momentum122(closes []float64) *float64 {
	total := lookback122 + skipRecent
	if len(closes) < total+1 {
		return nil
	}
	past := closes[len(closes)-1-total]
	if past == 0 {
		return nil
	}
	v := (closes[len(closes)-1] - past) / past
	return &v
}

// volatilityAdjusted is a Sharpe-like ratio over the trailing window:
// mean daily return divided by their standard deviation, zero when flat.
func volatilityAdjusted(returns []float64, period int) float64 {
	if len(returns) < period {
		return 0
	}
	recent := formulas.Tail(returns, period)
	vol := formulas.StdDev(recent)
	if vol == 0 {
		return 0
	}
	return formulas.Mean(recent) / vol
}

// smoothMomentum multiplies the trailing return by the fraction of
// positive days in the window. The Frog-in-the-Pan consistency adjustment:
// the same return earned steadily scores higher than one earned in jumps.
func smoothMomentum(closes []float64, period int) float64 {
	raw := rawMomentum(closes, period)
	if raw == nil {
		return 0
	}
	returns := formulas.CalculateReturns(closes)
	recent := formulas.Tail(returns, period)
	return *raw * formulas.PositiveFraction(recent)
}

// trueMomentum is the per-period smooth-adjusted return: trailing return
// scaled by the positive-day fraction within that same window.
func trueMomentum(closes []float64, period int) *float64 {
	raw := rawMomentum(closes, period)
	if raw == nil {
		return nil
	}
	returns := formulas.CalculateReturns(closes)
	recent := formulas.Tail(returns, period)
	v := *raw * formulas.PositiveFraction(recent)
	return &v
}

// fipQuality measures information discreteness over month-end returns:
// (fraction positive - fraction negative) * sign(cumulative return).
// Requires at least fipMinMonths monthly observations.
func fipQuality(dates []time.Time, closes []float64) *float64 {
	monthly := formulas.MonthEndCloses(dates, closes)
	monthlyReturns := formulas.CalculateReturns(monthly)
	monthlyReturns = formulas.Tail(monthlyReturns, fipMonths)

	if len(monthlyReturns) < fipMinMonths {
		return nil
	}

	p := formulas.PositiveFraction(monthlyReturns)
	q := formulas.NegativeFraction(monthlyReturns)

	cumulative := 1.0
	for _, r := range monthlyReturns {
		cumulative *= 1 + r
	}
	cumulative -= 1

	sign := 0.0
	if cumulative > 0 {
		sign = 1.0
	} else if cumulative < 0 {
		sign = -1.0
	}

	v := (p - q) * sign
	return &v
}

// trendStrength scores moving-average alignment: 1.0 for the strict
// uptrend ordering price > sma20 > sma50, 0.5 for partial alignment,
// 0.0 otherwise.
func trendStrength(closes []float64) float64 {
	sma20 := formulas.CalculateSMA(closes, 20)
	sma50 := formulas.CalculateSMA(closes, 50)
	if sma20 == nil || sma50 == nil {
		return 0
	}

	current := closes[len(closes)-1]
	if current > *sma20 && *sma20 > *sma50 {
		return 1.0
	}
	if current > *sma20 || current > *sma50 {
		return 0.5
	}
	return 0.0
}

// CalculateQualityMomentum computes the blended quality momentum score.
// Dates and closes must be aligned and ascending by trading day. Returns
// nil when fewer than minMomentumN bars are available.
func CalculateQualityMomentum(dates []time.Time, closes []float64, weights Weights) *MomentumResult {
	if len(closes) < minMomentumN || len(dates) != len(closes) {
		return nil
	}

	returns := formulas.CalculateReturns(closes)

	raw6m := rawMomentum(closes, lookback6m)
	raw3m := rawMomentum(closes, lookback3m)
	raw1m := rawMomentum(closes, lookback1m)
	if raw6m == nil || raw3m == nil {
		return nil
	}

	result := &MomentumResult{
		Momentum122:        momentum122(closes),
		FIPQuality:         fipQuality(dates, closes),
		RawReturn6m:        *raw6m,
		RawReturn3m:        *raw3m,
		RawReturn1m:        raw1m,
		TrueMomentum6m:     *trueMomentum(closes, lookback6m),
		TrueMomentum3m:     *trueMomentum(closes, lookback3m),
		TrueMomentum1m:     trueMomentum(closes, lookback1m),
		VolatilityAdjusted: volatilityAdjusted(returns, volWindow),
		SmoothMomentum:     smoothMomentum(closes, smoothWindow),
		ConsistencyScore:   formulas.PositiveFraction(formulas.Tail(returns, consistWindow)),
		TrendStrength:      trendStrength(closes),
	}

	// Normalize sub-scores into [0, 1] via affine clips over their
	// assumed natural ranges.
	norm6m := formulas.Clip((result.RawReturn6m+0.5)/1.0, 0, 1)    // -50% .. +50%
	norm3m := formulas.Clip((result.RawReturn3m+0.3)/0.6, 0, 1)    // -30% .. +30%
	normSmooth := formulas.Clip((result.SmoothMomentum+0.3)/0.6, 0, 1)
	normVol := formulas.Clip((result.VolatilityAdjusted+1)/2, 0, 1) // -1 .. +1

	result.TotalScore = weights.TrueMomentum6m*norm6m +
		weights.TrueMomentum3m*norm3m +
		weights.SmoothMomentum*normSmooth +
		weights.VolatilityAdjusted*normVol +
		weights.ConsistencyScore*result.ConsistencyScore +
		weights.TrendStrength*result.TrendStrength

	return result
}
