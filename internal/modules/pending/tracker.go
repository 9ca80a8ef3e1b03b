package pending

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// TrackerRepository handles update_status database operations.
// Transitions: pending -> in_progress -> completed | failed,
// failed -> in_progress on retry.
type TrackerRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTrackerRepository creates a new update tracker repository
func NewTrackerRepository(db *sql.DB, log zerolog.Logger) *TrackerRepository {
	return &TrackerRepository{
		db:  db,
		log: log.With().Str("repo", "update_tracker").Logger(),
	}
}

// MarkStarted records that an update is in flight for a symbol
func (r *TrackerRepository) MarkStarted(symbol string) error {
	query := `
		INSERT INTO update_status (symbol, update_status, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(symbol) DO UPDATE SET
			update_status = excluded.update_status,
			updated_at = datetime('now')`

	if _, err := r.db.Exec(query, normalize(symbol), StatusInProgress); err != nil {
		return fmt.Errorf("failed to mark update started for %s: %w", symbol, err)
	}

	return nil
}

// MarkCompleted records a successful update and stamps last_updated = today
func (r *TrackerRepository) MarkCompleted(symbol string, totalRecords int, lastPriceDate string) error {
	query := `
		INSERT INTO update_status (symbol, last_updated, update_status, total_records, last_price_date, updated_at)
		VALUES (?, date('now'), ?, ?, ?, datetime('now'))
		ON CONFLICT(symbol) DO UPDATE SET
			last_updated = date('now'),
			update_status = excluded.update_status,
			total_records = excluded.total_records,
			last_price_date = excluded.last_price_date,
			updated_at = datetime('now')`

	if _, err := r.db.Exec(query, normalize(symbol), StatusCompleted, totalRecords, lastPriceDate); err != nil {
		return fmt.Errorf("failed to mark update completed for %s: %w", symbol, err)
	}

	return nil
}

// MarkFailed records a failed update
func (r *TrackerRepository) MarkFailed(symbol string) error {
	query := `
		INSERT INTO update_status (symbol, update_status, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(symbol) DO UPDATE SET
			update_status = excluded.update_status,
			updated_at = datetime('now')`

	if _, err := r.db.Exec(query, normalize(symbol), StatusFailed); err != nil {
		return fmt.Errorf("failed to mark update failed for %s: %w", symbol, err)
	}

	return nil
}

// GetStatus returns the tracker row for one symbol, or nil when absent
func (r *TrackerRepository) GetStatus(symbol string) (*UpdateStatus, error) {
	query := `SELECT symbol, last_updated, update_status, total_records, last_price_date
		FROM update_status WHERE symbol = ?`

	rows, err := r.db.Query(query, normalize(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query update status: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var status UpdateStatus
	if err := rows.Scan(&status.Symbol, &status.LastUpdated, &status.Status,
		&status.TotalRecords, &status.LastPriceDate); err != nil {
		return nil, fmt.Errorf("failed to scan update status: %w", err)
	}

	return &status, nil
}

// StocksNeedingUpdate returns universe symbols with no tracker row, a
// last_updated before today, or a failed status; largest caps first.
func (r *TrackerRepository) StocksNeedingUpdate() ([]string, error) {
	query := `SELECT s.symbol FROM stock_metadata s
		LEFT JOIN update_status u ON s.symbol = u.symbol
		WHERE u.symbol IS NULL
		   OR u.last_updated < date('now')
		   OR u.update_status = ?
		ORDER BY s.market_cap DESC`

	rows, err := r.db.Query(query, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to query stocks needing update: %w", err)
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
		return nil, fmt.Errorf("error iterating tracker rows: %w", err)
	}

	return symbols, nil
}

// GetStatistics returns aggregate tracker counts across the universe
func (r *TrackerRepository) GetStatistics() (*Statistics, error) {
	query := `
		SELECT
			COUNT(*) AS total_stocks,
			COUNT(CASE WHEN u.update_status = 'completed' THEN 1 END) AS completed,
			COUNT(CASE WHEN u.update_status = 'in_progress' THEN 1 END) AS in_progress,
			COUNT(CASE WHEN u.update_status = 'failed' THEN 1 END) AS failed,
			COUNT(CASE WHEN u.update_status = 'pending' OR u.update_status IS NULL THEN 1 END) AS pending,
			COUNT(CASE WHEN u.last_updated = date('now') THEN 1 END) AS updated_today
		FROM stock_metadata s
		LEFT JOIN update_status u ON s.symbol = u.symbol`

	var stats Statistics
	err := r.db.QueryRow(query).Scan(&stats.TotalStocks, &stats.Completed,
		&stats.InProgress, &stats.Failed, &stats.Pending, &stats.UpdatedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to query update statistics: %w", err)
	}

	return &stats, nil
}

// ClearFailed resets failed rows back to pending
func (r *TrackerRepository) ClearFailed() (int64, error) {
	result, err := r.db.Exec(`UPDATE update_status
		SET update_status = ?, updated_at = datetime('now')
		WHERE update_status = ?`, StatusPending, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to clear failed updates: %w", err)
	}

	affected, _ := result.RowsAffected()
	r.log.Info().Int64("rows", affected).Msg("Reset failed updates to pending")

	return affected, nil
}
