package scoring

import (
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// Weights configures the quality momentum blend. Values are unitless
// fractions that should sum to 1.0.
type Weights struct {
	TrueMomentum6m     float64 `json:"true_momentum_6m"`
	TrueMomentum3m     float64 `json:"true_momentum_3m"`
	SmoothMomentum     float64 `json:"smooth_momentum"`
	VolatilityAdjusted float64 `json:"volatility_adjusted"`
	ConsistencyScore   float64 `json:"consistency_score"`
	TrendStrength      float64 `json:"trend_strength"`
}

// DefaultWeights returns the Alpha Architect inspired default blend
func DefaultWeights() Weights {
	return Weights{
		TrueMomentum6m:     0.30,
		TrueMomentum3m:     0.20,
		SmoothMomentum:     0.25,
		VolatilityAdjusted: 0.15,
		ConsistencyScore:   0.05,
		TrendStrength:      0.05,
	}
}

// Sum returns the total of all weights
func (w Weights) Sum() float64 {
	return w.TrueMomentum6m + w.TrueMomentum3m + w.SmoothMomentum +
		w.VolatilityAdjusted + w.ConsistencyScore + w.TrendStrength
}

// Validate checks each weight lies in [0, 1]
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"true_momentum_6m":    w.TrueMomentum6m,
		"true_momentum_3m":    w.TrueMomentum3m,
		"smooth_momentum":     w.SmoothMomentum,
		"volatility_adjusted": w.VolatilityAdjusted,
		"consistency_score":   w.ConsistencyScore,
		"trend_strength":      w.TrendStrength,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("weight %s must be in [0, 1], got %v", name, v)
		}
	}
	return nil
}

// Normalize rescales weights to sum to 1.0. An all-zero struct falls back
// to the defaults.
func (w Weights) Normalize() Weights {
	total := w.Sum()
	if total == 0 {
		return DefaultWeights()
	}
	return Weights{
		TrueMomentum6m:     w.TrueMomentum6m / total,
		TrueMomentum3m:     w.TrueMomentum3m / total,
		SmoothMomentum:     w.SmoothMomentum / total,
		VolatilityAdjusted: w.VolatilityAdjusted / total,
		ConsistencyScore:   w.ConsistencyScore / total,
		TrendStrength:      w.TrendStrength / total,
	}
}

// WeightsManager guards the configured weights behind a mutex and fires a
// callback on every change so cached scores can be invalidated.
type WeightsManager struct {
	mu       sync.RWMutex
	weights  Weights
	onChange func()
	log      zerolog.Logger
}

// NewWeightsManager creates a manager starting from the default weights
func NewWeightsManager(log zerolog.Logger, onChange func()) *WeightsManager {
	return &WeightsManager{
		weights:  DefaultWeights(),
		onChange: onChange,
		log:      log.With().Str("component", "momentum_weights").Logger(),
	}
}

// Get returns the current weights
func (m *WeightsManager) Get() Weights {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weights
}

// Update validates, re-normalizes when off by more than 0.01, and installs
// new weights.
func (m *WeightsManager) Update(w Weights) (Weights, error) {
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}

	if math.Abs(w.Sum()-1.0) >= 0.01 {
		m.log.Warn().Float64("sum", w.Sum()).Msg("Weights do not sum to 1.0, normalizing")
		w = w.Normalize()
	}

	m.mu.Lock()
	m.weights = w
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange()
	}

	m.log.Info().Interface("weights", w).Msg("Updated momentum weights")
	return w, nil
}

// Reset restores the default weights
func (m *WeightsManager) Reset() Weights {
	m.mu.Lock()
	m.weights = DefaultWeights()
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange()
	}

	m.log.Info().Msg("Reset momentum weights to defaults")
	return DefaultWeights()
}
