package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultWeightsSumToOne(t *testing.T) {
	assert.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
	assert.NoError(t, DefaultWeights().Validate())
}

func TestWeightsValidateRejectsOutOfRange(t *testing.T) {
	w := DefaultWeights()
	w.TrueMomentum6m = 1.5
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.TrendStrength = -0.1
	assert.Error(t, w.Validate())
}

func TestWeightsNormalize(t *testing.T) {
	w := Weights{TrueMomentum6m: 1, TrueMomentum3m: 1}
	normalized := w.Normalize()

	assert.InDelta(t, 0.5, normalized.TrueMomentum6m, 1e-9)
	assert.InDelta(t, 0.5, normalized.TrueMomentum3m, 1e-9)
	assert.InDelta(t, 1.0, normalized.Sum(), 1e-9)

	// All-zero weights fall back to the defaults
	assert.Equal(t, DefaultWeights(), Weights{}.Normalize())
}

func TestWeightsManagerUpdate(t *testing.T) {
	changes := 0
	mgr := NewWeightsManager(zerolog.Nop(), func() { changes++ })

	assert.Equal(t, DefaultWeights(), mgr.Get())

	// A blend that is off by more than a percent gets re-normalized
	w := Weights{
		TrueMomentum6m:     0.6,
		TrueMomentum3m:     0.6,
		SmoothMomentum:     0.2,
		VolatilityAdjusted: 0.2,
		ConsistencyScore:   0.2,
		TrendStrength:      0.2,
	}
	updated, err := mgr.Update(w)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, updated.Sum(), 1e-9)
	assert.InDelta(t, 0.3, updated.TrueMomentum6m, 1e-9)
	assert.Equal(t, updated, mgr.Get())
	assert.Equal(t, 1, changes)

	// Invalid weights leave state untouched and fire no callback
	bad := DefaultWeights()
	bad.SmoothMomentum = 2
	_, err = mgr.Update(bad)
	assert.Error(t, err)
	assert.Equal(t, updated, mgr.Get())
	assert.Equal(t, 1, changes)
}

func TestWeightsManagerReset(t *testing.T) {
	changes := 0
	mgr := NewWeightsManager(zerolog.Nop(), func() { changes++ })

	w := DefaultWeights()
	w.TrueMomentum6m = 0.31
	w.TrueMomentum3m = 0.19
	_, err := mgr.Update(w)
	require.NoError(t, err)

	reset := mgr.Reset()
	assert.Equal(t, DefaultWeights(), reset)
	assert.Equal(t, DefaultWeights(), mgr.Get())
	assert.Equal(t, 2, changes)
}
