// Package pending tracks the retry backlog and per-symbol update status.
package pending

// OpKind distinguishes the two backlog queues
type OpKind string

const (
	// OpPrices - daily OHLCV ingest retries
	OpPrices OpKind = "prices"
	// OpAttributes - fundamentals backfill retries
	OpAttributes OpKind = "attributes"
)

// MaxRetries is the bounded-retry limit. A row at the limit is skipped
// until an admin reset.
const MaxRetries = 5

// PendingOp is one row of the pending_op table
type PendingOp struct {
	Symbol       string  `json:"symbol"`
	Kind         OpKind  `json:"op_kind"`
	RetryCount   int     `json:"retry_count"`
	LastAttempt  *string `json:"last_attempt"`
	ErrorMessage *string `json:"error_message"`
	TargetDate   *string `json:"target_date"`
	CreatedAt    string  `json:"created_at"`
}

// Update status values
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UpdateStatus is one row of the update_status table
type UpdateStatus struct {
	Symbol        string  `json:"symbol"`
	LastUpdated   *string `json:"last_updated"`
	Status        string  `json:"update_status"`
	TotalRecords  int     `json:"total_records"`
	LastPriceDate *string `json:"last_price_date"`
}

// Statistics summarizes tracker state across the universe
type Statistics struct {
	TotalStocks  int `json:"total_stocks"`
	Completed    int `json:"completed"`
	InProgress   int `json:"in_progress"`
	Failed       int `json:"failed"`
	Pending      int `json:"pending"`
	UpdatedToday int `json:"updated_today"`
}
