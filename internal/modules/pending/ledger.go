package pending

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// LedgerRepository handles pending_op database operations
type LedgerRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewLedgerRepository creates a new pending-ops ledger repository
func NewLedgerRepository(db *sql.DB, log zerolog.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:  db,
		log: log.With().Str("repo", "pending_ops").Logger(),
	}
}

// Enqueue records a failed operation. A fresh row starts at retry_count 0;
// re-enqueueing an existing row increments its retry count.
func (r *LedgerRepository) Enqueue(symbol string, kind OpKind, reason string, targetDate *string) error {
	query := `
		INSERT INTO pending_op (symbol, op_kind, retry_count, last_attempt, error_message, target_date)
		VALUES (?, ?, 0, datetime('now'), ?, ?)
		ON CONFLICT(symbol, op_kind) DO UPDATE SET
			retry_count = retry_count + 1,
			last_attempt = datetime('now'),
			error_message = excluded.error_message,
			target_date = COALESCE(excluded.target_date, target_date)`

	_, err := r.db.Exec(query, normalize(symbol), string(kind), reason, targetDate)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending op for %s: %w", symbol, err)
	}

	return nil
}

// EnqueueIfAbsent inserts a backlog row only when none exists, leaving the
// retry count of an existing row untouched.
func (r *LedgerRepository) EnqueueIfAbsent(symbol string, kind OpKind, reason string) error {
	query := `
		INSERT OR IGNORE INTO pending_op (symbol, op_kind, retry_count, error_message)
		VALUES (?, ?, 0, ?)`

	_, err := r.db.Exec(query, normalize(symbol), string(kind), reason)
	if err != nil {
		return fmt.Errorf("failed to enqueue pending op for %s: %w", symbol, err)
	}

	return nil
}

// Dequeue returns symbols still under the retry limit, oldest first
func (r *LedgerRepository) Dequeue(kind OpKind, maxRetries int) ([]string, error) {
	query := `SELECT symbol FROM pending_op
		WHERE op_kind = ? AND retry_count < ?
		ORDER BY created_at ASC`

	return r.querySymbols(query, string(kind), maxRetries)
}

// Exhausted returns symbols that have reached the retry limit
func (r *LedgerRepository) Exhausted(kind OpKind) ([]string, error) {
	query := `SELECT symbol FROM pending_op
		WHERE op_kind = ? AND retry_count >= ?
		ORDER BY created_at ASC`

	return r.querySymbols(query, string(kind), MaxRetries)
}

// Remove deletes a backlog row after a successful operation
func (r *LedgerRepository) Remove(symbol string, kind OpKind) error {
	_, err := r.db.Exec("DELETE FROM pending_op WHERE symbol = ? AND op_kind = ?",
		normalize(symbol), string(kind))
	if err != nil {
		return fmt.Errorf("failed to remove pending op for %s: %w", symbol, err)
	}

	return nil
}

// ResetRetries is the admin escape hatch for exhausted rows: retry counts
// go back to zero and error state is cleared.
func (r *LedgerRepository) ResetRetries(kind OpKind) (int64, error) {
	result, err := r.db.Exec(`UPDATE pending_op
		SET retry_count = 0, last_attempt = NULL, error_message = NULL
		WHERE op_kind = ?`, string(kind))
	if err != nil {
		return 0, fmt.Errorf("failed to reset retries for %s: %w", kind, err)
	}

	affected, _ := result.RowsAffected()
	r.log.Info().Str("kind", string(kind)).Int64("rows", affected).Msg("Reset pending retries")

	return affected, nil
}

// CleanupCompleted drops attribute backlog rows for symbols whose sector
// and industry have since been filled in.
func (r *LedgerRepository) CleanupCompleted() (int64, error) {
	query := `DELETE FROM pending_op
		WHERE op_kind = ? AND symbol IN (
			SELECT symbol FROM stock_metadata
			WHERE sector IS NOT NULL AND industry IS NOT NULL
		)`

	result, err := r.db.Exec(query, string(OpAttributes))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup completed pending ops: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected > 0 {
		r.log.Debug().Int64("rows", affected).Msg("Removed completed attribute backlog rows")
	}

	return affected, nil
}

// Get returns one backlog row, or nil when absent
func (r *LedgerRepository) Get(symbol string, kind OpKind) (*PendingOp, error) {
	query := `SELECT symbol, op_kind, retry_count, last_attempt, error_message, target_date, created_at
		FROM pending_op WHERE symbol = ? AND op_kind = ?`

	rows, err := r.db.Query(query, normalize(symbol), string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending op: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}

	var op PendingOp
	var kindStr string
	if err := rows.Scan(&op.Symbol, &kindStr, &op.RetryCount, &op.LastAttempt,
		&op.ErrorMessage, &op.TargetDate, &op.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan pending op: %w", err)
	}
	op.Kind = OpKind(kindStr)

	return &op, nil
}

// Count returns the backlog size for one kind
func (r *LedgerRepository) Count(kind OpKind) (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM pending_op WHERE op_kind = ?", string(kind)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending ops: %w", err)
	}
	return count, nil
}

func (r *LedgerRepository) querySymbols(query string, args ...interface{}) ([]string, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending symbols: %w", err)
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
		return nil, fmt.Errorf("error iterating pending rows: %w", err)
	}

	return symbols, nil
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
