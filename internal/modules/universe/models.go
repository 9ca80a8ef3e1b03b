// Package universe holds the stock metadata and price history repositories.
package universe

import "time"

// StockMetadata is one row of the stock_metadata table.
// Fundamentals are nullable; the provider frequently omits metrics.
type StockMetadata struct {
	Symbol            string   `json:"symbol"`
	CompanyName       *string  `json:"company_name"`
	Sector            *string  `json:"sector"`
	Industry          *string  `json:"industry"`
	Exchange          *string  `json:"exchange"`
	MarketCap         *int64   `json:"market_cap"`
	MarketCapRank     *int64   `json:"market_cap_rank"`
	CurrentPrice      *float64 `json:"current_price"`
	LastPriceDate     *string  `json:"last_price_date"`
	PERatio           *float64 `json:"pe_ratio"`
	PBRatio           *float64 `json:"pb_ratio"`
	Beta              *float64 `json:"beta"`
	ROE               *float64 `json:"roe"`
	ROA               *float64 `json:"roa"`
	GrossMargin       *float64 `json:"gross_margin"`
	OperatingMargin   *float64 `json:"operating_margin"`
	ProfitMargin      *float64 `json:"profit_margin"`
	DividendYield     *float64 `json:"dividend_yield"`
	DebtToEquity      *float64 `json:"debt_to_equity"`
	CurrentRatio      *float64 `json:"current_ratio"`
	TotalCash         *int64   `json:"total_cash"`
	TotalDebt         *int64   `json:"total_debt"`
	EnterpriseValue   *int64   `json:"enterprise_value"`
	BookValue         *float64 `json:"book_value"`
	Week52High        *float64 `json:"week52_high"`
	Week52Low         *float64 `json:"week52_low"`
	Volume            *int64   `json:"volume"`
	SharesOutstanding *int64   `json:"shares_outstanding"`
}

// MetadataPatch is a partial update of a stock_metadata row. Nil fields
// are left untouched.
type MetadataPatch struct {
	CompanyName       *string
	Sector            *string
	Industry          *string
	Exchange          *string
	MarketCap         *int64
	CurrentPrice      *float64
	LastPriceDate     *string
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

// MetadataFilter restricts metadata queries. Empty strings mean no filter.
type MetadataFilter struct {
	Industry string
	Sector   string
	Limit    int
}

// PriceBar is one row of the price_bar table
type PriceBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Valid checks the OHLC ordering invariant: low ≤ min(open, close) and
// max(open, close) ≤ high, with non-negative volume.
func (b PriceBar) Valid() bool {
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	return b.Low <= lo && hi <= b.High && b.Volume >= 0
}
