package scoring

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/modules/universe"
)

const scoreColumns = `symbol, calculation_date, strategy, score, insufficient_data,
fip_quality, raw_momentum_12_2, true_momentum_6m, true_momentum_3m, true_momentum_1m,
raw_return_6m, raw_return_3m, raw_return_1m,
ma_50, ma_200, z_score, breakout_ratio, daily_volatility`

// ScoredStock joins a score row with the metadata shown alongside it
type ScoredStock struct {
	ScoreRow
	CompanyName *string `json:"company_name"`
	Sector      *string `json:"sector"`
	Industry    *string `json:"industry"`
	MarketCap   *int64  `json:"market_cap"`
}

// ScoreRepository handles score_row database operations
type ScoreRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *sql.DB, log zerolog.Logger) *ScoreRepository {
	return &ScoreRepository{
		db:  db,
		log: log.With().Str("repo", "score").Logger(),
	}
}

// Upsert writes a score row, idempotent on (symbol, calculation_date, strategy)
func (r *ScoreRepository) Upsert(row ScoreRow) error {
	query := `
		INSERT INTO score_row (` + scoreColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, calculation_date, strategy) DO UPDATE SET
			score = excluded.score,
			insufficient_data = excluded.insufficient_data,
			fip_quality = excluded.fip_quality,
			raw_momentum_12_2 = excluded.raw_momentum_12_2,
			true_momentum_6m = excluded.true_momentum_6m,
			true_momentum_3m = excluded.true_momentum_3m,
			true_momentum_1m = excluded.true_momentum_1m,
			raw_return_6m = excluded.raw_return_6m,
			raw_return_3m = excluded.raw_return_3m,
			raw_return_1m = excluded.raw_return_1m,
			ma_50 = excluded.ma_50,
			ma_200 = excluded.ma_200,
			z_score = excluded.z_score,
			breakout_ratio = excluded.breakout_ratio,
			daily_volatility = excluded.daily_volatility,
			updated_at = datetime('now')`

	_, err := r.db.Exec(query,
		strings.ToUpper(strings.TrimSpace(row.Symbol)), row.CalculationDate, string(row.Strategy),
		row.Score, row.InsufficientData,
		row.FIPQuality, row.RawMomentum122, row.TrueMomentum6m, row.TrueMomentum3m, row.TrueMomentum1m,
		row.RawReturn6m, row.RawReturn3m, row.RawReturn1m,
		row.MA50, row.MA200, row.ZScore, row.BreakoutRatio, row.DailyVolatility,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert score row for %s: %w", row.Symbol, err)
	}

	return nil
}

// GetRowsForDate returns scored stocks for one date and strategy, joined
// with metadata, filtered, and ordered by market_cap desc then score desc.
func (r *ScoreRepository) GetRowsForDate(date string, strategy Strategy, filter universe.MetadataFilter) ([]ScoredStock, error) {
	query := `
		SELECT sr.symbol, sr.calculation_date, sr.strategy, sr.score, sr.insufficient_data,
			sr.fip_quality, sr.raw_momentum_12_2, sr.true_momentum_6m, sr.true_momentum_3m, sr.true_momentum_1m,
			sr.raw_return_6m, sr.raw_return_3m, sr.raw_return_1m,
			sr.ma_50, sr.ma_200, sr.z_score, sr.breakout_ratio, sr.daily_volatility,
			m.company_name, m.sector, m.industry, m.market_cap
		FROM score_row sr
		JOIN stock_metadata m ON sr.symbol = m.symbol
		WHERE sr.calculation_date = ? AND sr.strategy = ?`
	args := []interface{}{date, string(strategy)}

	if filter.Industry != "" {
		query += " AND m.industry = ?"
		args = append(args, filter.Industry)
	}
	if filter.Sector != "" {
		query += " AND m.sector = ?"
		args = append(args, filter.Sector)
	}

	query += " ORDER BY m.market_cap DESC, sr.score DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query score rows: %w", err)
	}
	defer rows.Close()

	var result []ScoredStock
	for rows.Next() {
		var s ScoredStock
		var strategyStr string
		if err := rows.Scan(
			&s.Symbol, &s.CalculationDate, &strategyStr, &s.Score, &s.InsufficientData,
			&s.FIPQuality, &s.RawMomentum122, &s.TrueMomentum6m, &s.TrueMomentum3m, &s.TrueMomentum1m,
			&s.RawReturn6m, &s.RawReturn3m, &s.RawReturn1m,
			&s.MA50, &s.MA200, &s.ZScore, &s.BreakoutRatio, &s.DailyVolatility,
			&s.CompanyName, &s.Sector, &s.Industry, &s.MarketCap,
		); err != nil {
			return nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		s.Strategy = Strategy(strategyStr)
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating score rows: %w", err)
	}

	return result, nil
}

// GetRow returns one score row, or nil when absent
func (r *ScoreRepository) GetRow(symbol, date string, strategy Strategy) (*ScoreRow, error) {
	query := "SELECT " + scoreColumns + " FROM score_row WHERE symbol = ? AND calculation_date = ? AND strategy = ?"

	rows, err := r.db.Query(query, strings.ToUpper(strings.TrimSpace(symbol)), date, string(strategy))
	if err != nil {
		return nil, fmt.Errorf("failed to query score row: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var row ScoreRow
	var strategyStr string
	if err := rows.Scan(
		&row.Symbol, &row.CalculationDate, &strategyStr, &row.Score, &row.InsufficientData,
		&row.FIPQuality, &row.RawMomentum122, &row.TrueMomentum6m, &row.TrueMomentum3m, &row.TrueMomentum1m,
		&row.RawReturn6m, &row.RawReturn3m, &row.RawReturn1m,
		&row.MA50, &row.MA200, &row.ZScore, &row.BreakoutRatio, &row.DailyVolatility,
	); err != nil {
		return nil, fmt.Errorf("failed to scan score row: %w", err)
	}
	row.Strategy = Strategy(strategyStr)

	return &row, nil
}

// GetLatestScoreDate returns the newest calculation date, or nil when the
// table is empty.
func (r *ScoreRepository) GetLatestScoreDate() (*string, error) {
	var date sql.NullString
	if err := r.db.QueryRow("SELECT MAX(calculation_date) FROM score_row").Scan(&date); err != nil {
		return nil, fmt.Errorf("failed to query latest score date: %w", err)
	}
	if !date.Valid {
		return nil, nil
	}
	return &date.String, nil
}

// GetBestScoreDate returns the most recent date whose row count exceeds
// 1000, falling back to the highest-count date among the last 30. Avoids
// serving a partially-scored day.
func (r *ScoreRepository) GetBestScoreDate() (*string, error) {
	query := `SELECT calculation_date FROM score_row
		GROUP BY calculation_date
		HAVING COUNT(*) > 1000
		ORDER BY calculation_date DESC
		LIMIT 1`

	var date string
	err := r.db.QueryRow(query).Scan(&date)
	if err == nil {
		return &date, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query best score date: %w", err)
	}

	// No fully-scored day; pick the densest of the recent dates
	fallback := `SELECT calculation_date FROM (
			SELECT calculation_date, COUNT(*) AS n FROM score_row
			GROUP BY calculation_date
			ORDER BY calculation_date DESC
			LIMIT 30
		) ORDER BY n DESC, calculation_date DESC LIMIT 1`

	err = r.db.QueryRow(fallback).Scan(&date)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query best score date fallback: %w", err)
	}

	return &date, nil
}

// GetStocksNeedingScoring returns symbols without a score row for the
// given date and strategy, largest caps first.
func (r *ScoreRepository) GetStocksNeedingScoring(date string, strategy Strategy, limit int) ([]string, error) {
	query := `SELECT m.symbol FROM stock_metadata m
		WHERE NOT EXISTS (
			SELECT 1 FROM score_row sr
			WHERE sr.symbol = m.symbol AND sr.calculation_date = ? AND sr.strategy = ?
		)
		ORDER BY m.market_cap DESC`
	args := []interface{}{date, string(strategy)}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks needing scoring: %w", err)
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

// CountForDate returns how many score rows exist for a date and strategy
func (r *ScoreRepository) CountForDate(date string, strategy Strategy) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM score_row WHERE calculation_date = ? AND strategy = ?",
		date, string(strategy)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count score rows: %w", err)
	}
	return count, nil
}

// SectorMomentum is average momentum grouped by sector
type SectorMomentum struct {
	Sector       string  `json:"sector"`
	AverageScore float64 `json:"average_score"`
	Count        int     `json:"count"`
}

// GetSectorMomentum aggregates momentum scores by sector for one date
func (r *ScoreRepository) GetSectorMomentum(date string) ([]SectorMomentum, error) {
	query := `
		SELECT m.sector, AVG(sr.score), COUNT(*)
		FROM score_row sr
		JOIN stock_metadata m ON sr.symbol = m.symbol
		WHERE sr.calculation_date = ? AND sr.strategy = ? AND sr.score IS NOT NULL AND m.sector IS NOT NULL
		GROUP BY m.sector
		ORDER BY AVG(sr.score) DESC`

	rows, err := r.db.Query(query, date, string(StrategyMomentum))
	if err != nil {
		return nil, fmt.Errorf("failed to query sector momentum: %w", err)
	}
	defer rows.Close()

	var result []SectorMomentum
	for rows.Next() {
		var s SectorMomentum
		if err := rows.Scan(&s.Sector, &s.AverageScore, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan sector momentum: %w", err)
		}
		result = append(result, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sector rows: %w", err)
	}

	return result, nil
}
