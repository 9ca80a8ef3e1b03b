package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quantrank/quantrank/internal/clients/yahoo"
	"github.com/quantrank/quantrank/internal/modules/pending"
	"github.com/quantrank/quantrank/internal/modules/universe"
)

const (
	attrBatchSize   = 50
	attrConcurrency = 10
	cooldownPeriod  = 5 * time.Minute
)

// AttributePollerStatus is the snapshot exposed on the status endpoint
type AttributePollerStatus struct {
	Running       bool       `json:"running"`
	LastCycleAt   *time.Time `json:"last_cycle_at"`
	CooldownUntil *time.Time `json:"cooldown_until"`
	LastUpdated   int        `json:"last_updated"`
	LastFailed    int        `json:"last_failed"`
}

// AttributePoller backfills fundamentals for symbols whose sector,
// industry, price or market cap is still missing. Runs every five
// minutes; a rate-limit response pauses the whole loop for the
// cooldown period. Two instances may run side by side, sharding the
// backlog by even/odd position.
type AttributePoller struct {
	fetcher  Fetcher
	metaRepo *universe.MetadataRepository
	ledger   *pending.LedgerRepository
	log      zerolog.Logger

	instanceID int
	now        func() time.Time

	mu            sync.Mutex
	running       bool
	cooldownUntil time.Time
	status        AttributePollerStatus
}

// NewAttributePoller creates an attribute poller. instanceID must be 1
// or 2; instance 1 takes even backlog positions, instance 2 odd.
func NewAttributePoller(
	fetcher Fetcher,
	metaRepo *universe.MetadataRepository,
	ledger *pending.LedgerRepository,
	instanceID int,
	log zerolog.Logger,
) *AttributePoller {
	return &AttributePoller{
		fetcher:    fetcher,
		metaRepo:   metaRepo,
		ledger:     ledger,
		instanceID: instanceID,
		now:        time.Now,
		log:        log.With().Str("component", "attribute_poller").Int("instance", instanceID).Logger(),
	}
}

// Name implements scheduler.Job
func (p *AttributePoller) Name() string {
	return "attribute_poller"
}

// Run executes one backfill cycle unless the poller is cooling down
func (p *AttributePoller) Run() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if until := p.cooldownUntil; p.now().Before(until) {
		p.mu.Unlock()
		p.log.Debug().Time("until", until).Msg("In rate-limit cooldown, skipping cycle")
		return nil
	}
	p.running = true
	now := p.now()
	p.status.LastCycleAt = &now
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	return p.runCycle(context.Background())
}

// Status returns a copy of the poller status
func (p *AttributePoller) Status() AttributePollerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	status := p.status
	status.Running = p.running
	if !p.cooldownUntil.IsZero() && p.now().Before(p.cooldownUntil) {
		until := p.cooldownUntil
		status.CooldownUntil = &until
	}
	return status
}

// SetClock overrides the poller's clock
func (p *AttributePoller) SetClock(now func() time.Time) {
	p.now = now
}

// CoolingDown reports whether the poller is currently paused
func (p *AttributePoller) CoolingDown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now().Before(p.cooldownUntil)
}

// TriggerUpdate enqueues the given symbols for attribute backfill,
// bypassing the discovery scan. Used by the admin endpoint.
func (p *AttributePoller) TriggerUpdate(symbols []string) error {
	for _, symbol := range symbols {
		if err := p.ledger.EnqueueIfAbsent(symbol, pending.OpAttributes, "manual trigger"); err != nil {
			return err
		}
	}
	return nil
}

func (p *AttributePoller) runCycle(ctx context.Context) error {
	if err := p.ensureMissingInPending(); err != nil {
		return err
	}

	if _, err := p.ledger.CleanupCompleted(); err != nil {
		return err
	}

	backlog, err := p.ledger.Dequeue(pending.OpAttributes, pending.MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to read attribute backlog: %w", err)
	}

	backlog = p.shard(backlog)
	if len(backlog) == 0 {
		return nil
	}

	p.log.Info().Int("count", len(backlog)).Msg("Starting attribute backfill cycle")

	updated := 0
	failed := 0

	for start := 0; start < len(backlog); start += attrBatchSize {
		end := start + attrBatchSize
		if end > len(backlog) {
			end = len(backlog)
		}

		ok, fail, rateLimited := p.processBatch(ctx, backlog[start:end])
		updated += ok
		failed += fail

		if rateLimited {
			p.enterCooldown()
			break
		}
	}

	p.mu.Lock()
	p.status.LastUpdated = updated
	p.status.LastFailed = failed
	p.mu.Unlock()

	p.log.Info().
		Int("updated", updated).
		Int("failed", failed).
		Msg("Attribute backfill cycle completed")

	return nil
}

// ensureMissingInPending seeds the backlog with every symbol whose
// attributes are incomplete, without touching existing retry counts.
func (p *AttributePoller) ensureMissingInPending() error {
	symbols, err := p.metaRepo.SymbolsMissingAttributes()
	if err != nil {
		return fmt.Errorf("failed to scan for missing attributes: %w", err)
	}

	for _, symbol := range symbols {
		if err := p.ledger.EnqueueIfAbsent(symbol, pending.OpAttributes, "attributes missing"); err != nil {
			return err
		}
	}

	return nil
}

// shard keeps this instance's slice of the backlog: instance 1 takes
// even positions, instance 2 odd. A single deployment (instance 1 with
// no sibling) still covers everything over successive cycles because
// completed rows leave the queue and re-shuffle positions.
func (p *AttributePoller) shard(symbols []string) []string {
	want := 0
	if p.instanceID == 2 {
		want = 1
	}

	var out []string
	for i, s := range symbols {
		if i%2 == want {
			out = append(out, s)
		}
	}
	return out
}

// processBatch fetches fundamentals for one batch with a bounded worker
// pool. Returns success count, failure count, and whether the provider
// rate-limited the batch.
func (p *AttributePoller) processBatch(ctx context.Context, symbols []string) (int, int, bool) {
	var mu sync.Mutex
	updated := 0
	failed := 0
	rateLimited := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(attrConcurrency)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			mu.Lock()
			skip := rateLimited
			mu.Unlock()
			if skip {
				return nil
			}

			err := p.processSymbol(gctx, symbol)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				updated++
			case errors.Is(err, yahoo.ErrRateLimited):
				rateLimited = true
				failed++
			default:
				failed++
			}
			return nil
		})
	}

	_ = g.Wait()

	return updated, failed, rateLimited
}

// processSymbol fetches and applies fundamentals for one symbol. The
// symbol leaves the backlog only once its attributes are complete;
// otherwise it is re-enqueued with the missing fields as the reason.
func (p *AttributePoller) processSymbol(ctx context.Context, symbol string) error {
	fund, err := p.fetcher.FetchFundamentals(ctx, symbol)
	if err != nil {
		p.recordFailure(symbol, err)
		return err
	}

	patch := universe.MetadataPatch{
		CompanyName:       fund.CompanyName,
		Sector:            fund.Sector,
		Industry:          fund.Industry,
		Exchange:          fund.Exchange,
		MarketCap:         fund.MarketCap,
		CurrentPrice:      fund.CurrentPrice,
		PERatio:           fund.PERatio,
		PBRatio:           fund.PBRatio,
		Beta:              fund.Beta,
		ROE:               fund.ROE,
		ROA:               fund.ROA,
		GrossMargin:       fund.GrossMargin,
		OperatingMargin:   fund.OperatingMargin,
		ProfitMargin:      fund.ProfitMargin,
		DividendYield:     fund.DividendYield,
		DebtToEquity:      fund.DebtToEquity,
		CurrentRatio:      fund.CurrentRatio,
		TotalCash:         fund.TotalCash,
		TotalDebt:         fund.TotalDebt,
		EnterpriseValue:   fund.EnterpriseValue,
		BookValue:         fund.BookValue,
		Week52High:        fund.Week52High,
		Week52Low:         fund.Week52Low,
		Volume:            fund.Volume,
		SharesOutstanding: fund.SharesOutstanding,
	}

	if err := p.metaRepo.UpdateMetadata(symbol, patch); err != nil {
		p.recordFailure(symbol, err)
		return err
	}

	meta, err := p.metaRepo.GetBySymbol(symbol)
	if err != nil {
		p.recordFailure(symbol, err)
		return err
	}
	if meta == nil {
		err := fmt.Errorf("symbol %s vanished during update: %w", symbol, yahoo.ErrSymbolUnknown)
		p.recordFailure(symbol, err)
		return err
	}

	if meta.AttributesComplete() {
		if err := p.ledger.Remove(symbol, pending.OpAttributes); err != nil {
			return err
		}
		p.log.Debug().Str("symbol", symbol).Msg("Attributes complete")
		return nil
	}

	reason := "incomplete: " + strings.Join(meta.MissingAttributeKeys(), ",")
	if err := p.ledger.Enqueue(symbol, pending.OpAttributes, reason, nil); err != nil {
		return err
	}

	return fmt.Errorf("attributes still incomplete for %s", symbol)
}

func (p *AttributePoller) recordFailure(symbol string, cause error) {
	p.log.Warn().Err(cause).Str("symbol", symbol).Msg("Attribute update failed")

	if err := p.ledger.Enqueue(symbol, pending.OpAttributes, cause.Error(), nil); err != nil {
		p.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to enqueue pending op")
	}
}

func (p *AttributePoller) enterCooldown() {
	p.mu.Lock()
	p.cooldownUntil = p.now().Add(cooldownPeriod)
	until := p.cooldownUntil
	p.mu.Unlock()

	p.log.Warn().Time("until", until).Msg("Provider rate limit hit, entering cooldown")
}
