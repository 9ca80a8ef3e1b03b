package universe

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// metadataColumns is the list of columns for the stock_metadata table.
// Used to avoid SELECT * which can break when schema changes.
const metadataColumns = `symbol, company_name, sector, industry, exchange,
market_cap, market_cap_rank, current_price, last_price_date,
pe_ratio, pb_ratio, beta, roe, roa,
gross_margin, operating_margin, profit_margin, dividend_yield,
debt_to_equity, current_ratio, total_cash, total_debt,
enterprise_value, book_value, week52_high, week52_low,
volume, shares_outstanding`

// MetadataRepository handles stock_metadata database operations
type MetadataRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *sql.DB, log zerolog.Logger) *MetadataRepository {
	return &MetadataRepository{
		db:  db,
		log: log.With().Str("repo", "metadata").Logger(),
	}
}

// GetBySymbol returns metadata for one symbol, or nil when absent
func (r *MetadataRepository) GetBySymbol(symbol string) (*StockMetadata, error) {
	query := "SELECT " + metadataColumns + " FROM stock_metadata WHERE symbol = ?"

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata by symbol: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil // Symbol not found
	}

	meta, err := scanMetadata(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan metadata: %w", err)
	}

	return &meta, nil
}

// List returns metadata rows matching the filter, ordered by
// market_cap_rank ascending with symbol as the tie-breaker.
func (r *MetadataRepository) List(filter MetadataFilter) ([]StockMetadata, error) {
	query := "SELECT " + metadataColumns + " FROM stock_metadata"
	var conditions []string
	var args []interface{}

	if filter.Industry != "" {
		conditions = append(conditions, "industry = ?")
		args = append(args, filter.Industry)
	}
	if filter.Sector != "" {
		conditions = append(conditions, "sector = ?")
		args = append(args, filter.Sector)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY market_cap_rank ASC, symbol ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	return r.queryMetadata(query, args...)
}

// GetTopByMarketCap returns the top n symbols by market cap, optionally
// restricted to an industry and/or sector.
func (r *MetadataRepository) GetTopByMarketCap(n int, industry, sector string) ([]StockMetadata, error) {
	query := "SELECT " + metadataColumns + " FROM stock_metadata WHERE market_cap IS NOT NULL"
	var args []interface{}

	if industry != "" {
		query += " AND industry = ?"
		args = append(args, industry)
	}
	if sector != "" {
		query += " AND sector = ?"
		args = append(args, sector)
	}

	query += " ORDER BY market_cap DESC LIMIT ?"
	args = append(args, n)

	return r.queryMetadata(query, args...)
}

// Upsert inserts or replaces a full metadata row. Used by universe import.
func (r *MetadataRepository) Upsert(meta StockMetadata) error {
	query := `
		INSERT INTO stock_metadata (` + metadataColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			company_name = excluded.company_name,
			sector = excluded.sector,
			industry = excluded.industry,
			exchange = excluded.exchange,
			market_cap = excluded.market_cap,
			market_cap_rank = excluded.market_cap_rank,
			current_price = excluded.current_price,
			last_price_date = excluded.last_price_date,
			pe_ratio = excluded.pe_ratio,
			pb_ratio = excluded.pb_ratio,
			beta = excluded.beta,
			roe = excluded.roe,
			roa = excluded.roa,
			gross_margin = excluded.gross_margin,
			operating_margin = excluded.operating_margin,
			profit_margin = excluded.profit_margin,
			dividend_yield = excluded.dividend_yield,
			debt_to_equity = excluded.debt_to_equity,
			current_ratio = excluded.current_ratio,
			total_cash = excluded.total_cash,
			total_debt = excluded.total_debt,
			enterprise_value = excluded.enterprise_value,
			book_value = excluded.book_value,
			week52_high = excluded.week52_high,
			week52_low = excluded.week52_low,
			volume = excluded.volume,
			shares_outstanding = excluded.shares_outstanding,
			updated_at = datetime('now')`

	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(meta.Symbol)),
		meta.CompanyName, meta.Sector, meta.Industry, meta.Exchange,
		meta.MarketCap, meta.MarketCapRank, meta.CurrentPrice, meta.LastPriceDate,
		meta.PERatio, meta.PBRatio, meta.Beta, meta.ROE, meta.ROA,
		meta.GrossMargin, meta.OperatingMargin, meta.ProfitMargin, meta.DividendYield,
		meta.DebtToEquity, meta.CurrentRatio, meta.TotalCash, meta.TotalDebt,
		meta.EnterpriseValue, meta.BookValue, meta.Week52High, meta.Week52Low,
		meta.Volume, meta.SharesOutstanding,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metadata for %s: %w", meta.Symbol, err)
	}

	return nil
}

// UpdateMetadata applies a partial update; nil patch fields are untouched
func (r *MetadataRepository) UpdateMetadata(symbol string, patch MetadataPatch) error {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}, present bool) {
		if present {
			sets = append(sets, column+" = ?")
			args = append(args, value)
		}
	}

	add("company_name", patch.CompanyName, patch.CompanyName != nil)
	add("sector", patch.Sector, patch.Sector != nil)
	add("industry", patch.Industry, patch.Industry != nil)
	add("exchange", patch.Exchange, patch.Exchange != nil)
	add("market_cap", patch.MarketCap, patch.MarketCap != nil)
	add("current_price", patch.CurrentPrice, patch.CurrentPrice != nil)
	add("last_price_date", patch.LastPriceDate, patch.LastPriceDate != nil)
	add("pe_ratio", patch.PERatio, patch.PERatio != nil)
	add("pb_ratio", patch.PBRatio, patch.PBRatio != nil)
	add("beta", patch.Beta, patch.Beta != nil)
	add("roe", patch.ROE, patch.ROE != nil)
	add("roa", patch.ROA, patch.ROA != nil)
	add("gross_margin", patch.GrossMargin, patch.GrossMargin != nil)
	add("operating_margin", patch.OperatingMargin, patch.OperatingMargin != nil)
	add("profit_margin", patch.ProfitMargin, patch.ProfitMargin != nil)
	add("dividend_yield", patch.DividendYield, patch.DividendYield != nil)
	add("debt_to_equity", patch.DebtToEquity, patch.DebtToEquity != nil)
	add("current_ratio", patch.CurrentRatio, patch.CurrentRatio != nil)
	add("total_cash", patch.TotalCash, patch.TotalCash != nil)
	add("total_debt", patch.TotalDebt, patch.TotalDebt != nil)
	add("enterprise_value", patch.EnterpriseValue, patch.EnterpriseValue != nil)
	add("book_value", patch.BookValue, patch.BookValue != nil)
	add("week52_high", patch.Week52High, patch.Week52High != nil)
	add("week52_low", patch.Week52Low, patch.Week52Low != nil)
	add("volume", patch.Volume, patch.Volume != nil)
	add("shares_outstanding", patch.SharesOutstanding, patch.SharesOutstanding != nil)

	if len(sets) == 0 {
		return nil // Nothing to update
	}

	sets = append(sets, "updated_at = datetime('now')")
	query := "UPDATE stock_metadata SET " + strings.Join(sets, ", ") + " WHERE symbol = ?"
	args = append(args, strings.ToUpper(strings.TrimSpace(symbol)))

	if _, err := r.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to update metadata for %s: %w", symbol, err)
	}

	return nil
}

// SetLastPrice stamps the latest close and its date after a price update
func (r *MetadataRepository) SetLastPrice(symbol string, price float64, date string) error {
	query := `UPDATE stock_metadata
		SET current_price = ?, last_price_date = ?, updated_at = datetime('now')
		WHERE symbol = ?`

	if _, err := r.db.Exec(query, price, date, strings.ToUpper(strings.TrimSpace(symbol))); err != nil {
		return fmt.Errorf("failed to set last price for %s: %w", symbol, err)
	}

	return nil
}

// SymbolsMissingAttributes returns symbols with any of sector, industry,
// current_price or market_cap still null, ordered by market cap descending
// so large caps are filled first.
func (r *MetadataRepository) SymbolsMissingAttributes() ([]string, error) {
	query := `SELECT symbol FROM stock_metadata
		WHERE sector IS NULL OR industry IS NULL OR current_price IS NULL OR market_cap IS NULL
		ORDER BY market_cap DESC`

	return r.querySymbols(query)
}

// RecomputeMarketCapRanks reassigns dense 1-based ranks by market cap
// descending. Symbols without a market cap keep a null rank.
func (r *MetadataRepository) RecomputeMarketCapRanks() error {
	query := `
		UPDATE stock_metadata SET market_cap_rank = (
			SELECT rank FROM (
				SELECT symbol, DENSE_RANK() OVER (ORDER BY market_cap DESC) AS rank
				FROM stock_metadata WHERE market_cap IS NOT NULL
			) ranked WHERE ranked.symbol = stock_metadata.symbol
		)
		WHERE market_cap IS NOT NULL`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to recompute market cap ranks: %w", err)
	}

	return nil
}

// Count returns the number of metadata rows
func (r *MetadataRepository) Count() (int, error) {
	var count int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM stock_metadata").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count metadata rows: %w", err)
	}
	return count, nil
}

func (r *MetadataRepository) queryMetadata(query string, args ...interface{}) ([]StockMetadata, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var result []StockMetadata
	for rows.Next() {
		meta, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		result = append(result, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metadata rows: %w", err)
	}

	return result, nil
}

func (r *MetadataRepository) querySymbols(query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating symbol rows: %w", err)
	}

	return symbols, nil
}

func scanMetadata(rows *sql.Rows) (StockMetadata, error) {
	var m StockMetadata
	err := rows.Scan(
		&m.Symbol, &m.CompanyName, &m.Sector, &m.Industry, &m.Exchange,
		&m.MarketCap, &m.MarketCapRank, &m.CurrentPrice, &m.LastPriceDate,
		&m.PERatio, &m.PBRatio, &m.Beta, &m.ROE, &m.ROA,
		&m.GrossMargin, &m.OperatingMargin, &m.ProfitMargin, &m.DividendYield,
		&m.DebtToEquity, &m.CurrentRatio, &m.TotalCash, &m.TotalDebt,
		&m.EnterpriseValue, &m.BookValue, &m.Week52High, &m.Week52Low,
		&m.Volume, &m.SharesOutstanding,
	)
	return m, err
}
