package scoring

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/modules/universe"
)

// historyDepth is how many bars the service pulls for scoring. The
// longest strategy window is 252 bars; the extra slack covers the 12-2
// lookback plus skip.
const historyDepth = 450

// Service computes, persists, and serves strategy scores
type Service struct {
	metaRepo  *universe.MetadataRepository
	priceRepo *universe.PriceRepository
	scoreRepo *ScoreRepository
	weights   *WeightsManager
	cache     *SnapshotCache
	log       zerolog.Logger
}

// NewService creates a scoring service. The weights manager is created
// here so weight updates clear the snapshot cache.
func NewService(
	metaRepo *universe.MetadataRepository,
	priceRepo *universe.PriceRepository,
	scoreRepo *ScoreRepository,
	log zerolog.Logger,
) *Service {
	s := &Service{
		metaRepo:  metaRepo,
		priceRepo: priceRepo,
		scoreRepo: scoreRepo,
		cache:     NewSnapshotCache(log),
		log:       log.With().Str("component", "scoring").Logger(),
	}
	s.weights = NewWeightsManager(log, s.cache.Clear)
	return s
}

// Weights returns the weights manager
func (s *Service) Weights() *WeightsManager {
	return s.weights
}

// Cache returns the snapshot cache
func (s *Service) Cache() *SnapshotCache {
	return s.cache
}

// ScoreSymbol computes and persists rows for every strategy for one
// symbol on the given date. Called by the price poller after each
// successful bar upsert, so score rows never pre-date their bars.
func (s *Service) ScoreSymbol(symbol, date string) error {
	bars, err := s.priceRepo.GetHistory(symbol, historyDepth)
	if err != nil {
		return fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}

	weights := s.weights.Get()
	for _, strategy := range AllStrategies {
		row := ComputeScore(strategy, symbol, date, bars, weights)
		if err := s.scoreRepo.Upsert(row); err != nil {
			return fmt.Errorf("failed to persist %s score for %s: %w", strategy, symbol, err)
		}
	}

	return nil
}

// ScoreSymbolStrategy returns the persisted row for (symbol, date,
// strategy), computing and persisting it when absent.
func (s *Service) ScoreSymbolStrategy(symbol, date string, strategy Strategy) (*ScoreRow, error) {
	existing, err := s.scoreRepo.GetRow(symbol, date, strategy)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	bars, err := s.priceRepo.GetHistory(symbol, historyDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", symbol, err)
	}

	row := ComputeScore(strategy, symbol, date, bars, s.weights.Get())
	if err := s.scoreRepo.Upsert(row); err != nil {
		return nil, err
	}

	return &row, nil
}

// StrategyScoresResult is the outcome of scoring a universe
type StrategyScoresResult struct {
	Strategy Strategy      `json:"strategy"`
	Date     string        `json:"calculation_date"`
	Stocks   []ScoredStock `json:"stocks"`
	Top      []ScoredStock `json:"top"`
}

// ComputeStrategyScores scores the top-limit universe (optionally
// filtered) for the given date. Symbols already scored today are served
// from the store; the rest are computed fresh. Results come back in
// market-cap order with the topN by score extracted separately.
func (s *Service) ComputeStrategyScores(strategy Strategy, date string, limit int, industry, sector string, topN int) (*StrategyScoresResult, error) {
	key := s.cache.Key(strategy, date, limit, industry, sector)
	if snapshot, ok := s.cache.Get(key); ok {
		return &StrategyScoresResult{
			Strategy: strategy,
			Date:     date,
			Stocks:   snapshot,
			Top:      topByScore(snapshot, topN),
		}, nil
	}

	stocks, err := s.metaRepo.GetTopByMarketCap(limit, industry, sector)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}

	scored := make([]ScoredStock, 0, len(stocks))
	for _, meta := range stocks {
		row, err := s.ScoreSymbolStrategy(meta.Symbol, date, strategy)
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", meta.Symbol).Msg("Failed to score symbol, skipping")
			continue
		}

		scored = append(scored, ScoredStock{
			ScoreRow:    *row,
			CompanyName: meta.CompanyName,
			Sector:      meta.Sector,
			Industry:    meta.Industry,
			MarketCap:   meta.MarketCap,
		})
	}

	s.cache.Put(key, scored)

	return &StrategyScoresResult{
		Strategy: strategy,
		Date:     date,
		Stocks:   scored,
		Top:      topByScore(scored, topN),
	}, nil
}

// topByScore returns the topN stocks by score descending. Rows without a
// score sort last.
func topByScore(stocks []ScoredStock, topN int) []ScoredStock {
	sorted := make([]ScoredStock, len(stocks))
	copy(sorted, stocks)

	sort.SliceStable(sorted, func(i, j int) bool {
		si, sj := sorted[i].Score, sorted[j].Score
		if si == nil {
			return false
		}
		if sj == nil {
			return true
		}
		return *si > *sj
	})

	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}
	return sorted
}
