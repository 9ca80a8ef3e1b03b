package scoring

import (
	"fmt"
	"time"

	"github.com/quantrank/quantrank/internal/modules/universe"
	"github.com/quantrank/quantrank/pkg/formulas"
)

// Strategy identifies a scoring strategy
type Strategy string

const (
	StrategyMomentum      Strategy = "momentum"
	StrategyWeek52        Strategy = "week52_breakout"
	StrategyMACrossover   Strategy = "ma_crossover"
	StrategyLowVolatility Strategy = "low_volatility"
	StrategyMeanReversion Strategy = "mean_reversion"
)

// AllStrategies lists every supported strategy
var AllStrategies = []Strategy{
	StrategyMomentum,
	StrategyWeek52,
	StrategyMACrossover,
	StrategyLowVolatility,
	StrategyMeanReversion,
}

// ParseStrategy validates a strategy identifier
func ParseStrategy(s string) (Strategy, error) {
	for _, strategy := range AllStrategies {
		if string(strategy) == s {
			return strategy, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// ScoreRow is one row of the score_row table. Strategy-specific
// auxiliaries are nullable.
type ScoreRow struct {
	Symbol           string   `json:"symbol"`
	CalculationDate  string   `json:"calculation_date"`
	Strategy         Strategy `json:"strategy"`
	Score            *float64 `json:"score"`
	InsufficientData bool     `json:"insufficient_data"`

	// Momentum sub-scores
	FIPQuality     *float64 `json:"fip_quality,omitempty"`
	RawMomentum122 *float64 `json:"raw_momentum_12_2,omitempty"`
	TrueMomentum6m *float64 `json:"true_momentum_6m,omitempty"`
	TrueMomentum3m *float64 `json:"true_momentum_3m,omitempty"`
	TrueMomentum1m *float64 `json:"true_momentum_1m,omitempty"`
	RawReturn6m    *float64 `json:"raw_return_6m,omitempty"`
	RawReturn3m    *float64 `json:"raw_return_3m,omitempty"`
	RawReturn1m    *float64 `json:"raw_return_1m,omitempty"`

	// Other strategy auxiliaries
	MA50            *float64 `json:"ma_50,omitempty"`
	MA200           *float64 `json:"ma_200,omitempty"`
	ZScore          *float64 `json:"z_score,omitempty"`
	BreakoutRatio   *float64 `json:"breakout_ratio,omitempty"`
	DailyVolatility *float64 `json:"daily_volatility,omitempty"`
}

// ComputeScore dispatches on strategy over a symbol's ascending bar
// series. Pure: identical inputs produce identical outputs.
func ComputeScore(strategy Strategy, symbol, date string, bars []universe.PriceBar, weights Weights) ScoreRow {
	row := ScoreRow{
		Symbol:          symbol,
		CalculationDate: date,
		Strategy:        strategy,
	}

	switch strategy {
	case StrategyMomentum:
		computeMomentumRow(&row, bars, weights)
	case StrategyWeek52:
		computeWeek52Row(&row, bars)
	case StrategyMACrossover:
		computeMACrossoverRow(&row, bars)
	case StrategyLowVolatility:
		computeLowVolatilityRow(&row, bars)
	case StrategyMeanReversion:
		computeMeanReversionRow(&row, bars)
	default:
		row.InsufficientData = true
	}

	return row
}

func closesOf(bars []universe.PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}

func datesOf(bars []universe.PriceBar) []time.Time {
	dates := make([]time.Time, len(bars))
	for i, b := range bars {
		dates[i] = b.Date
	}
	return dates
}

func computeMomentumRow(row *ScoreRow, bars []universe.PriceBar, weights Weights) {
	result := CalculateQualityMomentum(datesOf(bars), closesOf(bars), weights)
	if result == nil {
		row.InsufficientData = true
		return
	}

	score := result.TotalScore
	row.Score = &score
	row.FIPQuality = result.FIPQuality
	row.RawMomentum122 = result.Momentum122
	row.TrueMomentum6m = &result.TrueMomentum6m
	row.TrueMomentum3m = &result.TrueMomentum3m
	row.TrueMomentum1m = result.TrueMomentum1m
	row.RawReturn6m = &result.RawReturn6m
	row.RawReturn3m = &result.RawReturn3m
	row.RawReturn1m = result.RawReturn1m
}

// computeWeek52Row positions the current close inside the trailing
// 252-day high/low band. A degenerate band scores the midpoint 0.5.
func computeWeek52Row(row *ScoreRow, bars []universe.PriceBar) {
	if len(bars) < 252 {
		row.InsufficientData = true
		return
	}

	window := bars[len(bars)-252:]
	high52 := window[0].High
	low52 := window[0].Low
	for _, b := range window[1:] {
		if b.High > high52 {
			high52 = b.High
		}
		if b.Low < low52 {
			low52 = b.Low
		}
	}

	current := bars[len(bars)-1].Close

	ratio := 0.5
	if high52 != low52 {
		ratio = (current - low52) / (high52 - low52)
	}

	row.Score = &ratio
	row.BreakoutRatio = &ratio
}

func computeMACrossoverRow(row *ScoreRow, bars []universe.PriceBar) {
	if len(bars) < 200 {
		row.InsufficientData = true
		return
	}

	closes := closesOf(bars)
	sma50 := formulas.CalculateSMA(closes, 50)
	sma200 := formulas.CalculateSMA(closes, 200)
	if sma50 == nil || sma200 == nil {
		row.InsufficientData = true
		return
	}

	score := 0.0
	if *sma200 != 0 {
		score = (*sma50 - *sma200) / *sma200
	}

	row.Score = &score
	row.MA50 = sma50
	row.MA200 = sma200
}

// computeLowVolatilityRow negates daily volatility so quieter series rank
// higher under the shared descending sort.
func computeLowVolatilityRow(row *ScoreRow, bars []universe.PriceBar) {
	if len(bars) < 252 {
		row.InsufficientData = true
		return
	}

	closes := formulas.Tail(closesOf(bars), 252)
	returns := formulas.CalculateReturns(closes)
	if len(returns) < 20 {
		row.InsufficientData = true
		return
	}

	dailyVol := formulas.StdDev(returns)
	score := -dailyVol

	row.Score = &score
	row.DailyVolatility = &dailyVol
}

func computeMeanReversionRow(row *ScoreRow, bars []universe.PriceBar) {
	if len(bars) < 200 {
		row.InsufficientData = true
		return
	}

	closes := closesOf(bars)
	window := formulas.Tail(closes, 200)
	sma200 := formulas.Mean(window)
	sd := formulas.StdDev(window)

	if sd == 0 {
		// Flat window: z-score undefined, score stays null
		return
	}

	current := closes[len(closes)-1]
	z := (current - sma200) / sd

	row.Score = &z
	row.ZScore = &z
	row.MA200 = &sma200
}
