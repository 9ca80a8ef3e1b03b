package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/clients/yahoo"
	"github.com/quantrank/quantrank/internal/modules/market"
	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/modules/scoring"
	"github.com/quantrank/quantrank/internal/modules/universe"
)

const (
	priceBatchSize = 50
	maxWaves       = 5
	// Fetch window: enough history for every strategy's longest lookback
	historyWindowDays = 400
	// Spacing between per-symbol fallback fetches
	fallbackSpacing = 500 * time.Millisecond
)

// PricePollerStatus is the snapshot exposed on the status endpoint
type PricePollerStatus struct {
	Running       bool       `json:"running"`
	LastCycleAt   *time.Time `json:"last_cycle_at"`
	LastWave      int        `json:"last_wave"`
	LastSuccesses int        `json:"last_successes"`
	LastFailures  int        `json:"last_failures"`
}

// PricePoller maintains price history current to today. It wakes once a
// minute and runs the daily update cycle after the close, retrying
// failures in up to five waves.
type PricePoller struct {
	fetcher   Fetcher
	metaRepo  *universe.MetadataRepository
	priceRepo *universe.PriceRepository
	ledger    *pending.LedgerRepository
	tracker   *pending.TrackerRepository
	scorer    *scoring.Service
	calendar  *market.Calendar
	log       zerolog.Logger

	retryDelay time.Duration

	mu      sync.Mutex
	running bool
	stopped bool
	status  PricePollerStatus
}

// NewPricePoller creates a price poller
func NewPricePoller(
	fetcher Fetcher,
	metaRepo *universe.MetadataRepository,
	priceRepo *universe.PriceRepository,
	ledger *pending.LedgerRepository,
	tracker *pending.TrackerRepository,
	scorer *scoring.Service,
	calendar *market.Calendar,
	log zerolog.Logger,
) *PricePoller {
	return &PricePoller{
		fetcher:    fetcher,
		metaRepo:   metaRepo,
		priceRepo:  priceRepo,
		ledger:     ledger,
		tracker:    tracker,
		scorer:     scorer,
		calendar:   calendar,
		log:        log.With().Str("component", "price_poller").Logger(),
		retryDelay: 5 * time.Minute,
	}
}

// Name implements scheduler.Job
func (p *PricePoller) Name() string {
	return "price_poller"
}

// Run is the minute tick: it runs the update cycle when today is a
// weekday past the close and no bar exists for today yet. Re-running
// after a successful cycle is a no-op thanks to the bar-exists gate.
func (p *PricePoller) Run() error {
	if !p.calendar.ShouldUpdateData() {
		return nil
	}

	today := p.calendar.TradingDate().Format("2006-01-02")
	done, err := p.priceRepo.HasBarsForDate(today)
	if err != nil {
		return fmt.Errorf("failed to check daily gate: %w", err)
	}
	if done {
		return nil
	}

	return p.RunCycle(context.Background())
}

// Stop prevents the poller from entering another wave or batch.
// In-flight fetches complete.
func (p *PricePoller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

func (p *PricePoller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Status returns a copy of the poller status
func (p *PricePoller) Status() PricePollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	status.Running = p.running
	return status
}

// SetRetryDelay overrides the inter-wave delay
func (p *PricePoller) SetRetryDelay(d time.Duration) {
	p.retryDelay = d
}

// RunCycle executes the full update cycle: wave 1 over the stale
// universe, then up to four retry waves over the pending backlog.
func (p *PricePoller) RunCycle(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		p.log.Warn().Msg("Update cycle already running")
		return nil
	}
	p.running = true
	now := time.Now()
	p.status.LastCycleAt = &now
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	today := p.calendar.TradingDate()
	yesterday := p.calendar.PrevTradingDate()

	universeSymbols, err := p.priceRepo.SymbolsNeedingBars([]string{
		today.Format("2006-01-02"),
		yesterday.Format("2006-01-02"),
	})
	if err != nil {
		return fmt.Errorf("failed to compute stale universe: %w", err)
	}

	exhausted, err := p.ledger.Exhausted(pending.OpPrices)
	if err != nil {
		return fmt.Errorf("failed to list exhausted symbols: %w", err)
	}
	if len(exhausted) > 0 {
		p.log.Warn().
			Int("count", len(exhausted)).
			Strs("sample", sample(exhausted, 5)).
			Msg("Skipping symbols past the price retry limit")
		universeSymbols = exclude(universeSymbols, exhausted)
	}

	if len(universeSymbols) == 0 {
		p.log.Info().Msg("All symbols have recent price data")
		return nil
	}

	p.log.Info().Int("count", len(universeSymbols)).Msg("Starting price update cycle")

	successes := p.runWave(ctx, universeSymbols, 1)

	for wave := 2; wave <= maxWaves; wave++ {
		if p.isStopped() || ctx.Err() != nil {
			break
		}

		p.log.Info().
			Dur("delay", p.retryDelay).
			Int("wave", wave).
			Msg("Waiting before retry wave")

		select {
		case <-time.After(p.retryDelay):
		case <-ctx.Done():
			return nil
		}

		backlog, err := p.ledger.Dequeue(pending.OpPrices, pending.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to read pending backlog: %w", err)
		}
		if len(backlog) == 0 {
			p.log.Info().Msg("All symbols updated successfully")
			break
		}

		p.log.Info().Int("count", len(backlog)).Int("wave", wave).Msg("Retrying pending symbols")
		successes += p.runWave(ctx, backlog, wave)
	}

	remaining, err := p.ledger.Count(pending.OpPrices)
	if err == nil {
		p.log.Info().
			Int("successes", successes).
			Int("still_pending", remaining).
			Msg("Price update cycle completed")
	}

	return nil
}

// runWave processes one pass over the given symbols in batches,
// returning the success count.
func (p *PricePoller) runWave(ctx context.Context, symbols []string, wave int) int {
	from := time.Now().AddDate(0, 0, -historyWindowDays)
	to := time.Now()

	successes := 0
	failures := 0

	for start := 0; start < len(symbols); start += priceBatchSize {
		if p.isStopped() || ctx.Err() != nil {
			break
		}

		end := start + priceBatchSize
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		results, err := p.fetcher.FetchBarsBatch(ctx, batch, from, to)
		if err != nil {
			// Aggregate batch failure: degrade to per-symbol fetches
			p.log.Warn().Err(err).Msg("Batch fetch failed, falling back to per-symbol processing")
			results = p.fallbackFetch(ctx, batch, from, to)
		}

		for _, symbol := range batch {
			result, ok := results[symbol]
			if !ok {
				result = yahoo.BatchResult{Err: fmt.Errorf("no result for symbol: %w", yahoo.ErrTransient)}
			}

			if result.Err != nil {
				failures++
				p.recordFailure(symbol, result.Err)
				continue
			}

			if err := p.processSymbol(symbol, result.Bars); err != nil {
				failures++
				p.recordFailure(symbol, err)
				continue
			}
			successes++
		}
	}

	p.mu.Lock()
	p.status.LastWave = wave
	p.status.LastSuccesses = successes
	p.status.LastFailures = failures
	p.mu.Unlock()

	p.log.Info().
		Int("wave", wave).
		Int("successes", successes).
		Int("failures", failures).
		Msg("Wave completed")

	return successes
}

// fallbackFetch retrieves each symbol individually with fixed spacing
func (p *PricePoller) fallbackFetch(ctx context.Context, symbols []string, from, to time.Time) map[string]yahoo.BatchResult {
	results := make(map[string]yahoo.BatchResult, len(symbols))

	for i, symbol := range symbols {
		if p.isStopped() || ctx.Err() != nil {
			break
		}
		if i > 0 {
			select {
			case <-time.After(fallbackSpacing):
			case <-ctx.Done():
				return results
			}
		}

		bars, err := p.fetcher.FetchBars(ctx, symbol, from, to)
		results[symbol] = yahoo.BatchResult{Bars: bars, Err: err}
	}

	return results
}

// processSymbol upserts new bars, stamps the latest price, scores the
// symbol, and clears its backlog state.
func (p *PricePoller) processSymbol(symbol string, bars []yahoo.Bar) error {
	if err := p.tracker.MarkStarted(symbol); err != nil {
		return err
	}

	existing, err := p.priceRepo.ExistingBarDates(symbol)
	if err != nil {
		return err
	}

	var newBars []universe.PriceBar
	for _, bar := range bars {
		if existing[bar.Date.Format("2006-01-02")] {
			continue
		}
		newBars = append(newBars, universe.PriceBar{
			Symbol: symbol,
			Date:   bar.Date,
			Open:   bar.Open,
			High:   bar.High,
			Low:    bar.Low,
			Close:  bar.Close,
			Volume: bar.Volume,
		})
	}

	written, err := p.priceRepo.UpsertBars(newBars)
	if err != nil {
		return err
	}

	if len(bars) > 0 {
		last := bars[len(bars)-1]
		lastDate := last.Date.Format("2006-01-02")

		if err := p.metaRepo.SetLastPrice(symbol, last.Close, lastDate); err != nil {
			return err
		}

		// Score synchronously after the upsert so score rows never
		// pre-date their contributing bars.
		today := p.calendar.TradingDate().Format("2006-01-02")
		if err := p.scorer.ScoreSymbol(symbol, today); err != nil {
			return err
		}

		if err := p.ledger.Remove(symbol, pending.OpPrices); err != nil {
			return err
		}
		if err := p.tracker.MarkCompleted(symbol, len(existing)+written, lastDate); err != nil {
			return err
		}

		p.log.Debug().
			Str("symbol", symbol).
			Int("new_bars", written).
			Str("last_date", lastDate).
			Msg("Price update succeeded")

		return nil
	}

	// Provider returned an empty series
	return fmt.Errorf("no bars returned for %s: %w", symbol, yahoo.ErrSymbolUnknown)
}

func (p *PricePoller) recordFailure(symbol string, cause error) {
	p.log.Warn().Err(cause).Str("symbol", symbol).Msg("Price update failed")

	today := p.calendar.TradingDate().Format("2006-01-02")
	if err := p.ledger.Enqueue(symbol, pending.OpPrices, cause.Error(), &today); err != nil {
		p.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to enqueue pending op")
	}
	if err := p.tracker.MarkFailed(symbol); err != nil {
		p.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to mark update failed")
	}
}

func exclude(symbols, blocked []string) []string {
	blockedSet := make(map[string]bool, len(blocked))
	for _, s := range blocked {
		blockedSet[s] = true
	}

	var out []string
	for _, s := range symbols {
		if !blockedSet[s] {
			out = append(out, s)
		}
	}
	return out
}

func sample(symbols []string, n int) []string {
	if len(symbols) <= n {
		return symbols
	}
	return symbols[:n]
}
