package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// weekdayDates returns n consecutive weekdays starting at start
func weekdayDates(start time.Time, n int) []time.Time {
	dates := make([]time.Time, 0, n)
	d := start
	for len(dates) < n {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return dates
}

// linearCloses interpolates n closes from lo to hi
func linearCloses(n int, lo, hi float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return closes
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func TestQualityMomentumSteadyUptrend(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := weekdayDates(start, 200)
	closes := linearCloses(200, 100, 200)

	result := CalculateQualityMomentum(dates, closes, DefaultWeights())
	require.NotNil(t, result)

	// Every day is up, so the consistency measures max out
	assert.Equal(t, 1.0, result.ConsistencyScore)
	assert.Equal(t, 1.0, result.TrendStrength)

	require.NotNil(t, result.FIPQuality)
	assert.Equal(t, 1.0, *result.FIPQuality)

	assert.InDelta(t, 0.33557, result.RawReturn6m, 1e-4)
	assert.InDelta(t, 0.14368, result.RawReturn3m, 1e-4)

	assert.InDelta(t, 0.8986, result.TotalScore, 0.01)
	assert.GreaterOrEqual(t, result.TotalScore, 0.85)
	assert.LessOrEqual(t, result.TotalScore, 1.0)
}

func TestQualityMomentumFlatSeries(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := weekdayDates(start, 260)
	closes := flatCloses(260, 100)

	result := CalculateQualityMomentum(dates, closes, DefaultWeights())
	require.NotNil(t, result)

	// Zero returns normalize to the 0.5 midpoint on the return blends;
	// consistency, trend and FIP all read zero.
	assert.InDelta(t, 0.45, result.TotalScore, 1e-9)
	assert.Equal(t, 0.0, result.ConsistencyScore)
	assert.Equal(t, 0.0, result.TrendStrength)

	require.NotNil(t, result.FIPQuality)
	assert.Equal(t, 0.0, *result.FIPQuality)
}

func TestQualityMomentumIsDeterministic(t *testing.T) {
	start := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	dates := weekdayDates(start, 200)
	closes := linearCloses(200, 50, 90)

	first := CalculateQualityMomentum(dates, closes, DefaultWeights())
	second := CalculateQualityMomentum(dates, closes, DefaultWeights())

	require.NotNil(t, first)
	require.Equal(t, first, second)
}

func TestQualityMomentumInsufficientHistory(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := weekdayDates(start, 119)
	closes := linearCloses(119, 100, 120)

	assert.Nil(t, CalculateQualityMomentum(dates, closes, DefaultWeights()))

	// Mismatched lengths are rejected outright
	assert.Nil(t, CalculateQualityMomentum(dates[:100], linearCloses(200, 100, 120), DefaultWeights()))
}

func TestFIPRequiresEnoughMonths(t *testing.T) {
	// 180 consecutive calendar days cover under six months, which yields
	// too few monthly returns for the FIP measure.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := make([]time.Time, 180)
	for i := range dates {
		dates[i] = start.AddDate(0, 0, i)
	}
	closes := linearCloses(180, 100, 150)

	result := CalculateQualityMomentum(dates, closes, DefaultWeights())
	require.NotNil(t, result)
	assert.Nil(t, result.FIPQuality)
}

// monthlySpreadDates returns perMonth weekdays from the start of each of
// months consecutive calendar months
func monthlySpreadDates(start time.Time, months, perMonth int) []time.Time {
	var dates []time.Time
	for m := 0; m < months; m++ {
		d := start.AddDate(0, m, 0)
		count := 0
		for count < perMonth {
			if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
				dates = append(dates, d)
				count++
			}
			d = d.AddDate(0, 0, 1)
		}
	}
	return dates
}

func TestFIPAcceptsSparseHistorySpanningEnoughMonths(t *testing.T) {
	// 170 bars is short by daily count but spans ten calendar months, so
	// the monthly-return threshold is met.
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := monthlySpreadDates(start, 10, 17)
	require.Len(t, dates, 170)
	closes := linearCloses(len(dates), 100, 150)

	fip := fipQuality(dates, closes)
	require.NotNil(t, fip)
	assert.Equal(t, 1.0, *fip)
}

func TestMomentum122(t *testing.T) {
	closes := linearCloses(196, 100, 200)
	m := momentum122(closes)
	require.NotNil(t, m)
	// First close is exactly lookback+skip bars before the last, so the
	// measure is the full-series return.
	assert.InDelta(t, 1.0, *m, 1e-9)

	assert.Nil(t, momentum122(closes[:195]))
}

func TestMomentum122BaseIndex(t *testing.T) {
	// The base price sits lookback+skip bars before the last close. A
	// decoy one bar later catches an off-by-one read.
	closes := flatCloses(196, 200)
	closes[0] = 100
	closes[1] = 50

	m := momentum122(closes)
	require.NotNil(t, m)
	assert.InDelta(t, 1.0, *m, 1e-9)
}

func TestTrendStrengthPartialAlignment(t *testing.T) {
	// Long decline with a sharp rally at the end: price above both
	// averages but sma20 still below sma50.
	closes := linearCloses(60, 200, 100)
	closes = append(closes, 250)

	assert.Equal(t, 0.5, trendStrength(closes))

	// Monotonic decline: price below both averages
	assert.Equal(t, 0.0, trendStrength(linearCloses(60, 200, 100)))
}
