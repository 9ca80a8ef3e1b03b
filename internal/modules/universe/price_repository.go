package universe

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/database"
)

const dateLayout = "2006-01-02"

// PriceRepository handles price_bar database operations
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "price").Logger(),
	}
}

// UpsertBars writes bars transactionally with overwrite-on-conflict.
// Bars violating the OHLC ordering invariant are discarded, not retried.
// Returns the number of bars written.
func (r *PriceRepository) UpsertBars(bars []PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	written := 0
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO price_bar (symbol, date, open, high, low, close, volume)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, date) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume`)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, bar := range bars {
			if !bar.Valid() {
				r.log.Warn().
					Str("symbol", bar.Symbol).
					Str("date", bar.Date.Format(dateLayout)).
					Msg("Discarding bar that violates OHLC ordering")
				continue
			}

			if _, err := stmt.Exec(
				strings.ToUpper(strings.TrimSpace(bar.Symbol)),
				bar.Date.Format(dateLayout),
				bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
			); err != nil {
				return fmt.Errorf("failed to upsert bar %s %s: %w", bar.Symbol, bar.Date.Format(dateLayout), err)
			}
			written++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return written, nil
}

// GetPriceData returns bars for a symbol in [from, to], ascending by date.
// Nil bounds are open-ended.
func (r *PriceRepository) GetPriceData(symbol string, from, to *time.Time) ([]PriceBar, error) {
	query := "SELECT symbol, date, open, high, low, close, volume FROM price_bar WHERE symbol = ?"
	args := []interface{}{strings.ToUpper(strings.TrimSpace(symbol))}

	if from != nil {
		query += " AND date >= ?"
		args = append(args, from.Format(dateLayout))
	}
	if to != nil {
		query += " AND date <= ?"
		args = append(args, to.Format(dateLayout))
	}

	query += " ORDER BY date ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price data: %w", err)
	}
	defer rows.Close()

	var bars []PriceBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}

	return bars, nil
}

// GetHistory returns the last n bars for a symbol, ascending by date
func (r *PriceRepository) GetHistory(symbol string, days int) ([]PriceBar, error) {
	query := `SELECT symbol, date, open, high, low, close, volume FROM (
			SELECT symbol, date, open, high, low, close, volume FROM price_bar
			WHERE symbol = ? ORDER BY date DESC LIMIT ?
		) ORDER BY date ASC`

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)), days)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var bars []PriceBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bar rows: %w", err)
	}

	return bars, nil
}

// ExistingBarDates returns the set of dates already stored for a symbol
func (r *PriceRepository) ExistingBarDates(symbol string) (map[string]bool, error) {
	rows, err := r.db.Query("SELECT date FROM price_bar WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		return nil, fmt.Errorf("failed to query bar dates: %w", err)
	}
	defer rows.Close()

	dates := make(map[string]bool)
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates[date] = true
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating date rows: %w", err)
	}

	return dates, nil
}

// LatestBarDate returns the most recent bar date for a symbol, or nil
func (r *PriceRepository) LatestBarDate(symbol string) (*string, error) {
	var date sql.NullString
	err := r.db.QueryRow("SELECT MAX(date) FROM price_bar WHERE symbol = ?",
		strings.ToUpper(strings.TrimSpace(symbol))).Scan(&date)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest bar date: %w", err)
	}
	if !date.Valid {
		return nil, nil
	}
	return &date.String, nil
}

// HasBarsForDate reports whether any universe symbol has a bar for the
// given date. The price poller uses this as its once-per-day gate.
func (r *PriceRepository) HasBarsForDate(date string) (bool, error) {
	query := `SELECT COUNT(*) FROM stock_metadata s
		WHERE EXISTS (
			SELECT 1 FROM price_bar p
			WHERE p.symbol = s.symbol AND p.date = ?
		)`

	var count int
	if err := r.db.QueryRow(query, date).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check bars for date: %w", err)
	}

	return count > 0, nil
}

// SymbolsNeedingBars returns universe symbols lacking a bar on all of the
// given dates, ordered by market cap descending.
func (r *PriceRepository) SymbolsNeedingBars(dates []string) ([]string, error) {
	if len(dates) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(dates)), ", ")
	query := `SELECT s.symbol FROM stock_metadata s
		WHERE NOT EXISTS (
			SELECT 1 FROM price_bar p
			WHERE p.symbol = s.symbol AND p.date IN (` + placeholders + `)
		)
		ORDER BY s.market_cap DESC`

	args := make([]interface{}, len(dates))
	for i, d := range dates {
		args[i] = d
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols needing bars: %w", err)
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

func scanBar(rows *sql.Rows) (PriceBar, error) {
	var bar PriceBar
	var date string
	if err := rows.Scan(&bar.Symbol, &date, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
		return bar, err
	}

	parsed, err := time.Parse(dateLayout, date)
	if err != nil {
		return bar, fmt.Errorf("invalid bar date %q: %w", date, err)
	}
	bar.Date = parsed

	return bar, nil
}
