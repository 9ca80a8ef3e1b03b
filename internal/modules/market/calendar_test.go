package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendarAt(t *testing.T, year int, month time.Month, day, hour, minute int) *Calendar {
	t.Helper()

	loc, err := time.LoadLocation("Asia/Kolkata")
	require.NoError(t, err)

	fixed := time.Date(year, month, day, hour, minute, 0, 0, loc)
	cal, err := NewCalendarAt(func() time.Time { return fixed })
	require.NoError(t, err)

	return cal
}

func TestIsMarketOpenBoundaries(t *testing.T) {
	// 2026-08-24 is a Monday
	assert.False(t, calendarAt(t, 2026, 8, 24, 9, 14).IsMarketOpen())
	assert.True(t, calendarAt(t, 2026, 8, 24, 9, 15).IsMarketOpen())
	assert.True(t, calendarAt(t, 2026, 8, 24, 15, 29).IsMarketOpen())
	assert.False(t, calendarAt(t, 2026, 8, 24, 15, 30).IsMarketOpen())
}

func TestMarketClosedOnWeekend(t *testing.T) {
	// 2026-08-22 is a Saturday
	cal := calendarAt(t, 2026, 8, 22, 11, 0)

	assert.False(t, cal.IsMarketOpen())
	assert.False(t, cal.IsPostClose())
	assert.False(t, cal.ShouldUpdateData())
}

func TestPostCloseGate(t *testing.T) {
	assert.False(t, calendarAt(t, 2026, 8, 24, 15, 29).IsPostClose())
	assert.True(t, calendarAt(t, 2026, 8, 24, 15, 30).IsPostClose())
	assert.True(t, calendarAt(t, 2026, 8, 24, 23, 0).ShouldCalculateMomentum())
}

func TestTradingDateRollsWeekendForward(t *testing.T) {
	// Saturday resolves to the following Monday
	cal := calendarAt(t, 2026, 8, 22, 11, 0)
	assert.Equal(t, "2026-08-24", cal.TradingDate().Format("2006-01-02"))

	// Weekday stays put
	cal = calendarAt(t, 2026, 8, 25, 11, 0)
	assert.Equal(t, "2026-08-25", cal.TradingDate().Format("2006-01-02"))
}

func TestPrevTradingDateSkipsWeekend(t *testing.T) {
	// Monday's previous trading day is Friday
	cal := calendarAt(t, 2026, 8, 24, 11, 0)
	assert.Equal(t, "2026-08-21", cal.PrevTradingDate().Format("2006-01-02"))
}

func TestNextMarketOpen(t *testing.T) {
	// Before the open on a weekday: same day
	cal := calendarAt(t, 2026, 8, 24, 8, 0)
	next := cal.NextMarketOpen()
	assert.Equal(t, "2026-08-24", next.Format("2006-01-02"))
	assert.Equal(t, "09:15", next.Format("15:04"))

	// After the close on Friday: next Monday
	cal = calendarAt(t, 2026, 8, 21, 16, 0)
	assert.Equal(t, "2026-08-24", cal.NextMarketOpen().Format("2006-01-02"))
}

func TestCurrentStatus(t *testing.T) {
	cal := calendarAt(t, 2026, 8, 24, 10, 0)
	status := cal.CurrentStatus()

	assert.True(t, status.Open)
	assert.Equal(t, "2026-08-24", status.TradingDate)
}
