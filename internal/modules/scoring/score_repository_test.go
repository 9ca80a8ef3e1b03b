package scoring

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrank/quantrank/internal/database"
	"github.com/quantrank/quantrank/internal/modules/universe"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "test.db"),
		Profile: database.ProfileStandard,
		Name:    "test",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedScoredStock(t *testing.T, db *database.DB, symbol, sector string, marketCap int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO stock_metadata (symbol, sector, market_cap) VALUES (?, ?, ?)`,
		symbol, sector, marketCap)
	require.NoError(t, err)
}

func scoreRowFor(symbol, date string, strategy Strategy, score float64) ScoreRow {
	return ScoreRow{
		Symbol:          symbol,
		CalculationDate: date,
		Strategy:        strategy,
		Score:           &score,
	}
}

func TestScoreUpsertIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(scoreRowFor("RELIANCE.NS", "2025-12-19", StrategyMomentum, 0.7)))
	require.NoError(t, repo.Upsert(scoreRowFor("RELIANCE.NS", "2025-12-19", StrategyMomentum, 0.8)))

	row, err := repo.GetRow("RELIANCE.NS", "2025-12-19", StrategyMomentum)
	require.NoError(t, err)
	require.NotNil(t, row)
	require.NotNil(t, row.Score)
	assert.Equal(t, 0.8, *row.Score)

	count, err := repo.CountForDate("2025-12-19", StrategyMomentum)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestGetRowAbsent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	row, err := repo.GetRow("NOSUCH.NS", "2025-12-19", StrategyMomentum)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestGetRowsForDateOrderingAndFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	seedScoredStock(t, db, "BIG.NS", "Energy", 5000)
	seedScoredStock(t, db, "MID.NS", "Energy", 1000)
	seedScoredStock(t, db, "TECH.NS", "Technology", 3000)

	require.NoError(t, repo.Upsert(scoreRowFor("BIG.NS", "2025-12-19", StrategyMomentum, 0.4)))
	require.NoError(t, repo.Upsert(scoreRowFor("MID.NS", "2025-12-19", StrategyMomentum, 0.9)))
	require.NoError(t, repo.Upsert(scoreRowFor("TECH.NS", "2025-12-19", StrategyMomentum, 0.6)))

	rows, err := repo.GetRowsForDate("2025-12-19", StrategyMomentum, universe.MetadataFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Largest market cap first regardless of score
	assert.Equal(t, "BIG.NS", rows[0].Symbol)
	assert.Equal(t, "TECH.NS", rows[1].Symbol)
	assert.Equal(t, "MID.NS", rows[2].Symbol)

	energy, err := repo.GetRowsForDate("2025-12-19", StrategyMomentum, universe.MetadataFilter{Sector: "Energy"})
	require.NoError(t, err)
	require.Len(t, energy, 2)
	assert.Equal(t, "BIG.NS", energy[0].Symbol)

	limited, err := repo.GetRowsForDate("2025-12-19", StrategyMomentum, universe.MetadataFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestGetBestScoreDateFallsBackToDensest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	// Empty table: no date at all
	date, err := repo.GetBestScoreDate()
	require.NoError(t, err)
	assert.Nil(t, date)

	// Two sparse dates: the densest wins even though it is older
	for i := 0; i < 5; i++ {
		symbol := fmt.Sprintf("S%d.NS", i)
		require.NoError(t, repo.Upsert(scoreRowFor(symbol, "2025-12-18", StrategyMomentum, 0.5)))
	}
	require.NoError(t, repo.Upsert(scoreRowFor("S0.NS", "2025-12-19", StrategyMomentum, 0.5)))

	date, err = repo.GetBestScoreDate()
	require.NoError(t, err)
	require.NotNil(t, date)
	assert.Equal(t, "2025-12-18", *date)

	latest, err := repo.GetLatestScoreDate()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-12-19", *latest)
}

func TestGetStocksNeedingScoring(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	seedScoredStock(t, db, "DONE.NS", "Energy", 2000)
	seedScoredStock(t, db, "TODO.NS", "Energy", 1000)

	require.NoError(t, repo.Upsert(scoreRowFor("DONE.NS", "2025-12-19", StrategyMomentum, 0.5)))

	symbols, err := repo.GetStocksNeedingScoring("2025-12-19", StrategyMomentum, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"TODO.NS"}, symbols)

	// A different strategy still needs both
	symbols, err = repo.GetStocksNeedingScoring("2025-12-19", StrategyWeek52, 0)
	require.NoError(t, err)
	assert.Len(t, symbols, 2)
}

func TestGetSectorMomentum(t *testing.T) {
	db := setupTestDB(t)
	repo := NewScoreRepository(db.Conn(), zerolog.Nop())

	seedScoredStock(t, db, "OIL1.NS", "Energy", 2000)
	seedScoredStock(t, db, "OIL2.NS", "Energy", 1000)
	seedScoredStock(t, db, "SOFT.NS", "Technology", 3000)

	require.NoError(t, repo.Upsert(scoreRowFor("OIL1.NS", "2025-12-19", StrategyMomentum, 0.4)))
	require.NoError(t, repo.Upsert(scoreRowFor("OIL2.NS", "2025-12-19", StrategyMomentum, 0.6)))
	require.NoError(t, repo.Upsert(scoreRowFor("SOFT.NS", "2025-12-19", StrategyMomentum, 0.9)))

	sectors, err := repo.GetSectorMomentum("2025-12-19")
	require.NoError(t, err)
	require.Len(t, sectors, 2)
	// Highest average first
	assert.Equal(t, "Technology", sectors[0].Sector)
	assert.Equal(t, 1, sectors[0].Count)
	assert.Equal(t, "Energy", sectors[1].Sector)
	assert.Equal(t, 2, sectors[1].Count)
	assert.InDelta(t, 0.5, sectors[1].AverageScore, 1e-9)
}
