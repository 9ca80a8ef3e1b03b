package yahoo

import "time"

// Bar is one daily OHLCV observation
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// BatchResult carries the per-symbol outcome of a batch fetch
type BatchResult struct {
	Bars []Bar
	Err  error
}

// Fundamentals holds per-issuer attributes from the quote API.
// All fields are nullable; the provider frequently omits metrics.
type Fundamentals struct {
	Symbol            string
	CompanyName       *string
	Sector            *string
	Industry          *string
	Exchange          *string
	MarketCap         *int64
	CurrentPrice      *float64
	PERatio           *float64
	PBRatio           *float64
	Beta              *float64
	ROE               *float64
	ROA               *float64
	GrossMargin       *float64
	OperatingMargin   *float64
	ProfitMargin      *float64
	DividendYield     *float64
	DebtToEquity      *float64
	CurrentRatio      *float64
	TotalCash         *int64
	TotalDebt         *int64
	EnterpriseValue   *int64
	BookValue         *float64
	Week52High        *float64
	Week52Low         *float64
	Volume            *int64
	SharesOutstanding *int64
}
