package universe

// AttributesComplete reports whether a symbol's fundamentals are "complete
// enough" to leave the backfill queue: sector and industry present, plus
// at least one metric from the financial families. The provider refuses
// some metrics indefinitely, so demanding every field would retry forever.
func (m StockMetadata) AttributesComplete() bool {
	if m.Sector == nil || m.Industry == nil {
		return false
	}

	metrics := []bool{
		m.PERatio != nil,
		m.PBRatio != nil,
		m.Beta != nil,
		m.ROE != nil,
		m.ROA != nil,
		m.GrossMargin != nil,
		m.OperatingMargin != nil,
		m.ProfitMargin != nil,
		m.DividendYield != nil,
		m.TotalCash != nil,
		m.TotalDebt != nil,
		m.CurrentRatio != nil,
		m.EnterpriseValue != nil,
		m.BookValue != nil,
		m.CurrentPrice != nil,
		m.Volume != nil,
	}

	for _, present := range metrics {
		if present {
			return true
		}
	}
	return false
}

// MissingAttributeKeys lists the still-null attribute names, used as the
// re-enqueue reason for incomplete symbols.
func (m StockMetadata) MissingAttributeKeys() []string {
	var missing []string

	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}

	check("sector", m.Sector != nil)
	check("industry", m.Industry != nil)
	check("current_price", m.CurrentPrice != nil)
	check("market_cap", m.MarketCap != nil)
	check("pe_ratio", m.PERatio != nil)
	check("pb_ratio", m.PBRatio != nil)
	check("beta", m.Beta != nil)
	check("roe", m.ROE != nil)
	check("dividend_yield", m.DividendYield != nil)

	return missing
}
