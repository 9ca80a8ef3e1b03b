// Package market implements the NSE trading calendar.
package market

import (
	"time"
)

// Market hours for the National Stock Exchange of India.
const (
	OpenHour    = 9
	OpenMinute  = 15
	CloseHour   = 15
	CloseMinute = 30
)

// Calendar answers trading-session questions in IST.
// Exchange holidays are not modelled; weekends only.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar creates a calendar for Asia/Kolkata
func NewCalendar() (*Calendar, error) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return nil, err
	}
	return &Calendar{loc: loc, now: time.Now}, nil
}

// NewCalendarAt creates a calendar with a fixed clock, for tests
func NewCalendarAt(now func() time.Time) (*Calendar, error) {
	cal, err := NewCalendar()
	if err != nil {
		return nil, err
	}
	cal.now = now
	return cal, nil
}

// Location returns the exchange timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in exchange time
func (c *Calendar) Now() time.Time {
	return c.now().In(c.loc)
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (c *Calendar) openAt(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), OpenHour, OpenMinute, 0, 0, c.loc)
}

func (c *Calendar) closeAt(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), CloseHour, CloseMinute, 0, 0, c.loc)
}

// IsMarketOpen reports whether the exchange is currently in session
func (c *Calendar) IsMarketOpen() bool {
	now := c.Now()
	if !isWeekday(now) {
		return false
	}
	return !now.Before(c.openAt(now)) && now.Before(c.closeAt(now))
}

// IsPostClose reports whether today is a weekday and the session has ended
func (c *Calendar) IsPostClose() bool {
	now := c.Now()
	return isWeekday(now) && !now.Before(c.closeAt(now))
}

// ShouldCalculateMomentum reports whether scores may be computed for today:
// weekday and past the close, so the daily bar is final.
func (c *Calendar) ShouldCalculateMomentum() bool {
	return c.IsPostClose()
}

// ShouldUpdateData reports whether the daily price ingest may run
func (c *Calendar) ShouldUpdateData() bool {
	return c.IsPostClose()
}

// TradingDate returns today's date if it is a weekday, else the next Monday
func (c *Calendar) TradingDate() time.Time {
	d := c.Now()
	for !isWeekday(d) {
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
}

// PrevTradingDate returns the most recent weekday strictly before today
func (c *Calendar) PrevTradingDate() time.Time {
	d := c.Now().AddDate(0, 0, -1)
	for !isWeekday(d) {
		d = d.AddDate(0, 0, -1)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, c.loc)
}

// NextMarketOpen returns the next session open strictly after now
func (c *Calendar) NextMarketOpen() time.Time {
	now := c.Now()
	candidate := c.openAt(now)
	if !now.Before(candidate) || !isWeekday(now) {
		candidate = c.openAt(now.AddDate(0, 0, 1))
	}
	for !isWeekday(candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// Status is the market snapshot exposed on the status endpoint
type Status struct {
	Open        bool      `json:"open"`
	TradingDate string    `json:"trading_date"`
	NextOpen    time.Time `json:"next_open"`
	ServerTime  time.Time `json:"server_time"`
}

// CurrentStatus builds a market status snapshot
func (c *Calendar) CurrentStatus() Status {
	return Status{
		Open:        c.IsMarketOpen(),
		TradingDate: c.TradingDate().Format("2006-01-02"),
		NextOpen:    c.NextMarketOpen(),
		ServerTime:  c.Now(),
	}
}
