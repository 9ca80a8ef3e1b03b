// Package pipeline chains scoring strategies into sequential stages.
package pipeline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quantrank/quantrank/internal/modules/scoring"
	"github.com/quantrank/quantrank/internal/modules/universe"
)

// StageSpec describes one pipeline stage. MarketCapLimit and the filters
// apply to stage 1 only; later stages consume the previous output.
type StageSpec struct {
	Strategy       string `json:"strategy_id"`
	MarketCapLimit int    `json:"market_cap_limit"`
	OutputCount    int    `json:"output_count"`
	Industry       string `json:"industry,omitempty"`
	Sector         string `json:"sector,omitempty"`
}

// StageMetrics aggregates the scores a stage emitted
type StageMetrics struct {
	AverageScore float64 `json:"averageScore"`
	TopScore     float64 `json:"topScore"`
	BottomScore  float64 `json:"bottomScore"`
}

// StageResult reports one executed stage
type StageResult struct {
	Strategy        string                `json:"strategy_id"`
	InputCount      int                   `json:"input_count"`
	OutputCount     int                   `json:"output_count"`
	ExecutionTimeMs int64                 `json:"execution_time_ms"`
	Stocks          []scoring.ScoredStock `json:"stocks"`
	Metrics         StageMetrics          `json:"metrics"`
}

// Result is the full pipeline outcome. Halted is true when a stage
// emitted zero rows and execution stopped with partial results.
type Result struct {
	PipelineID  string                `json:"pipeline_id"`
	Date        string                `json:"calculation_date"`
	Stages      []StageResult         `json:"stages"`
	FinalStocks []scoring.ScoredStock `json:"final_stocks"`
	Halted      bool                  `json:"halted"`
}

// Executor runs multi-stage strategy pipelines
type Executor struct {
	metaRepo *universe.MetadataRepository
	scorer   *scoring.Service
	log      zerolog.Logger
}

// NewExecutor creates a pipeline executor
func NewExecutor(metaRepo *universe.MetadataRepository, scorer *scoring.Service, log zerolog.Logger) *Executor {
	return &Executor{
		metaRepo: metaRepo,
		scorer:   scorer,
		log:      log.With().Str("component", "pipeline").Logger(),
	}
}

// Validate rejects malformed stage lists before execution
func Validate(stages []StageSpec) error {
	if len(stages) == 0 {
		return fmt.Errorf("pipeline requires at least one stage")
	}

	for i, stage := range stages {
		if _, err := scoring.ParseStrategy(stage.Strategy); err != nil {
			return fmt.Errorf("stage %d: %w", i+1, err)
		}
		if stage.OutputCount <= 0 {
			return fmt.Errorf("stage %d: output_count must be positive", i+1)
		}
		if i == 0 && stage.MarketCapLimit <= 0 {
			return fmt.Errorf("stage 1: market_cap_limit must be positive")
		}
	}

	return nil
}

// Run executes the stages in order. Each stage scores its input universe,
// sorts descending by score, and keeps the top output_count symbols as
// the next stage's universe.
func (e *Executor) Run(stages []StageSpec, date string) (*Result, error) {
	if err := Validate(stages); err != nil {
		return nil, err
	}

	result := &Result{
		PipelineID: uuid.New().String(),
		Date:       date,
	}

	var inputStocks []universe.StockMetadata

	for i, spec := range stages {
		strategy, _ := scoring.ParseStrategy(spec.Strategy)
		started := time.Now()

		if i == 0 {
			stocks, err := e.metaRepo.GetTopByMarketCap(spec.MarketCapLimit, spec.Industry, spec.Sector)
			if err != nil {
				return nil, fmt.Errorf("stage 1: failed to load universe: %w", err)
			}
			inputStocks = stocks
		}

		scored := make([]scoring.ScoredStock, 0, len(inputStocks))
		for _, meta := range inputStocks {
			row, err := e.scorer.ScoreSymbolStrategy(meta.Symbol, date, strategy)
			if err != nil {
				e.log.Warn().Err(err).
					Str("symbol", meta.Symbol).
					Str("strategy", string(strategy)).
					Msg("Failed to score symbol in pipeline, skipping")
				continue
			}
			if row.Score == nil {
				continue
			}

			scored = append(scored, scoring.ScoredStock{
				ScoreRow:    *row,
				CompanyName: meta.CompanyName,
				Sector:      meta.Sector,
				Industry:    meta.Industry,
				MarketCap:   meta.MarketCap,
			})
		}

		sort.SliceStable(scored, func(a, b int) bool {
			return *scored[a].Score > *scored[b].Score
		})

		if spec.OutputCount < len(scored) {
			scored = scored[:spec.OutputCount]
		}

		sanitizeStocks(scored)

		stageResult := StageResult{
			Strategy:        string(strategy),
			InputCount:      len(inputStocks),
			OutputCount:     len(scored),
			ExecutionTimeMs: time.Since(started).Milliseconds(),
			Stocks:          scored,
			Metrics:         computeMetrics(scored),
		}
		result.Stages = append(result.Stages, stageResult)

		if len(scored) == 0 {
			e.log.Warn().
				Str("pipeline_id", result.PipelineID).
				Int("stage", i+1).
				Msg("Pipeline stage emitted zero rows, halting")
			result.Halted = true
			return result, nil
		}

		// Next stage draws from this stage's output
		inputStocks = inputStocks[:0]
		for _, s := range scored {
			inputStocks = append(inputStocks, universe.StockMetadata{
				Symbol:      s.Symbol,
				CompanyName: s.CompanyName,
				Sector:      s.Sector,
				Industry:    s.Industry,
				MarketCap:   s.MarketCap,
			})
		}

		result.FinalStocks = scored
	}

	e.log.Info().
		Str("pipeline_id", result.PipelineID).
		Int("stages", len(result.Stages)).
		Int("final_count", len(result.FinalStocks)).
		Msg("Pipeline completed")

	return result, nil
}

func computeMetrics(stocks []scoring.ScoredStock) StageMetrics {
	if len(stocks) == 0 {
		return StageMetrics{}
	}

	sum := 0.0
	top := math.Inf(-1)
	bottom := math.Inf(1)
	for _, s := range stocks {
		v := 0.0
		if s.Score != nil {
			v = *s.Score
		}
		sum += v
		if v > top {
			top = v
		}
		if v < bottom {
			bottom = v
		}
	}

	return StageMetrics{
		AverageScore: sanitize(sum / float64(len(stocks))),
		TopScore:     sanitize(top),
		BottomScore:  sanitize(bottom),
	}
}

// sanitizeStocks replaces NaN/±Inf in every numeric field with 0.0 before
// rows cross the boundary; callers cannot distinguish them in JSON.
func sanitizeStocks(stocks []scoring.ScoredStock) {
	for i := range stocks {
		row := &stocks[i]
		for _, p := range []*float64{
			row.Score, row.FIPQuality, row.RawMomentum122,
			row.TrueMomentum6m, row.TrueMomentum3m, row.TrueMomentum1m,
			row.RawReturn6m, row.RawReturn3m, row.RawReturn1m,
			row.MA50, row.MA200, row.ZScore, row.BreakoutRatio, row.DailyVolatility,
		} {
			if p != nil {
				*p = sanitize(*p)
			}
		}
	}
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0.0
	}
	return v
}
