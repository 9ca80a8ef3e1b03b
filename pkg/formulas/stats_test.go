package formulas

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanAndStdDev(t *testing.T) {
	data := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	assert.InDelta(t, 5.0, Mean(data), 1e-9)
	// Sample standard deviation
	assert.InDelta(t, 2.138, StdDev(data), 0.001)

	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 0.0, StdDev(nil))
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)

	assert.Empty(t, CalculateReturns([]float64{100}))
}

func TestCalculateReturnsSkipsZeroPrices(t *testing.T) {
	returns := CalculateReturns([]float64{0, 100, 110})

	require.Len(t, returns, 2)
	assert.Equal(t, 0.0, returns[0])
	assert.InDelta(t, 0.10, returns[1], 1e-9)
}

func TestPositiveAndNegativeFraction(t *testing.T) {
	data := []float64{1, -1, 0, 2, -3}

	assert.InDelta(t, 0.4, PositiveFraction(data), 1e-9)
	assert.InDelta(t, 0.4, NegativeFraction(data), 1e-9)
	assert.Equal(t, 0.0, PositiveFraction(nil))
}

func TestClip(t *testing.T) {
	assert.Equal(t, 0.0, Clip(-0.5, 0, 1))
	assert.Equal(t, 1.0, Clip(1.5, 0, 1))
	assert.Equal(t, 0.5, Clip(0.5, 0, 1))
}

func TestTail(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, []float64{4, 5}, Tail(data, 2))
	assert.Equal(t, data, Tail(data, 10))
}

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma := CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 3.0, *sma, 1e-9)

	assert.Nil(t, CalculateSMA(closes, 6))
	assert.Nil(t, CalculateSMA(closes, 0))
}

func TestMonthEndCloses(t *testing.T) {
	dates := []time.Time{
		time.Date(2026, 1, 29, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
	closes := []float64{10, 11, 12, 13, 14}

	monthly := MonthEndCloses(dates, closes)
	assert.Equal(t, []float64{11, 12, 14}, monthly)

	assert.Nil(t, MonthEndCloses(dates, closes[:3]))
	assert.Nil(t, MonthEndCloses(nil, nil))
}

func TestAnnualizedVolatility(t *testing.T) {
	flat := []float64{0.01, 0.01, 0.01}
	assert.Equal(t, 0.0, AnnualizedVolatility(flat))
	assert.Equal(t, 0.0, AnnualizedVolatility(nil))
}
