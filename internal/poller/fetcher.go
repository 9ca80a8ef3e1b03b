// Package poller runs the scheduled price and fundamentals ingest loops.
package poller

import (
	"context"
	"time"

	"github.com/quantrank/quantrank/internal/clients/yahoo"
)

// Fetcher is the upstream provider surface the pollers depend on.
// *yahoo.Client satisfies it; tests substitute fakes.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, from, to time.Time) ([]yahoo.Bar, error)
	FetchBarsBatch(ctx context.Context, symbols []string, from, to time.Time) (map[string]yahoo.BatchResult, error)
	FetchFundamentals(ctx context.Context, symbol string) (*yahoo.Fundamentals, error)
}
