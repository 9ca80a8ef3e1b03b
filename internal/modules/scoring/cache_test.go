package scoring

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCacheRoundTrip(t *testing.T) {
	cache := NewSnapshotCache(zerolog.Nop())

	score := 0.91
	snapshot := []ScoredStock{{
		ScoreRow: ScoreRow{
			Symbol:          "RELIANCE.NS",
			CalculationDate: "2025-12-19",
			Strategy:        StrategyMomentum,
			Score:           &score,
		},
	}}

	key := cache.Key(StrategyMomentum, "2025-12-19", 50, "", "")
	cache.Put(key, snapshot)

	got, ok := cache.Get(key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "RELIANCE.NS", got[0].Symbol)
	require.NotNil(t, got[0].Score)
	assert.Equal(t, 0.91, *got[0].Score)
}

func TestSnapshotCacheReturnsFreshCopies(t *testing.T) {
	cache := NewSnapshotCache(zerolog.Nop())

	key := cache.Key(StrategyWeek52, "2025-12-19", 10, "", "Energy")
	cache.Put(key, []ScoredStock{{ScoreRow: ScoreRow{Symbol: "ONGC.NS"}}})

	first, ok := cache.Get(key)
	require.True(t, ok)
	first[0].Symbol = "mutated"

	second, ok := cache.Get(key)
	require.True(t, ok)
	assert.Equal(t, "ONGC.NS", second[0].Symbol)
}

func TestSnapshotCacheMiss(t *testing.T) {
	cache := NewSnapshotCache(zerolog.Nop())

	got, ok := cache.Get("absent")
	assert.False(t, ok)
	assert.Nil(t, got)
}

func TestSnapshotCacheClear(t *testing.T) {
	cache := NewSnapshotCache(zerolog.Nop())

	cache.Put(cache.Key(StrategyMomentum, "2025-12-19", 50, "", ""), nil)
	cache.Put(cache.Key(StrategyWeek52, "2025-12-19", 50, "", ""), nil)
	assert.Equal(t, 2, cache.Size())

	cache.Clear()
	assert.Equal(t, 0, cache.Size())

	_, ok := cache.Get(cache.Key(StrategyMomentum, "2025-12-19", 50, "", ""))
	assert.False(t, ok)
}

func TestSnapshotCacheKeyDistinguishesParams(t *testing.T) {
	cache := NewSnapshotCache(zerolog.Nop())

	a := cache.Key(StrategyMomentum, "2025-12-19", 50, "", "")
	b := cache.Key(StrategyMomentum, "2025-12-19", 100, "", "")
	c := cache.Key(StrategyMomentum, "2025-12-18", 50, "", "")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
}
