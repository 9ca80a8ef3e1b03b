package universe

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantrank/quantrank/internal/database"
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

func strPtr(s string) *string    { return &s }
func i64Ptr(v int64) *int64      { return &v }
func f64Ptr(v float64) *float64  { return &v }

func seedStock(t *testing.T, repo *MetadataRepository, symbol string, marketCap int64) {
	t.Helper()
	require.NoError(t, repo.Upsert(StockMetadata{
		Symbol:    symbol,
		MarketCap: i64Ptr(marketCap),
	}))
}

func TestMetadataUpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	meta := StockMetadata{
		Symbol:      "reliance.ns",
		CompanyName: strPtr("Reliance Industries"),
		Sector:      strPtr("Energy"),
		MarketCap:   i64Ptr(2000000),
	}
	require.NoError(t, repo.Upsert(meta))

	// Symbols are normalized to upper case
	got, err := repo.GetBySymbol("RELIANCE.NS")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "RELIANCE.NS", got.Symbol)
	require.NotNil(t, got.CompanyName)
	assert.Equal(t, "Reliance Industries", *got.CompanyName)
	assert.Nil(t, got.Industry)

	// Upsert overwrites on conflict
	meta.CompanyName = strPtr("Reliance Industries Ltd")
	require.NoError(t, repo.Upsert(meta))

	got, err = repo.GetBySymbol("reliance.ns")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Reliance Industries Ltd", *got.CompanyName)

	count, err := repo.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetadataGetBySymbolAbsent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	got, err := repo.GetBySymbol("NOSUCH.NS")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetadataListOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	seedStock(t, repo, "SMALL.NS", 100)
	seedStock(t, repo, "BIG.NS", 10000)
	seedStock(t, repo, "MID.NS", 1000)
	require.NoError(t, repo.RecomputeMarketCapRanks())

	listed, err := repo.List(MetadataFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, "BIG.NS", listed[0].Symbol)
	assert.Equal(t, "MID.NS", listed[1].Symbol)
	assert.Equal(t, "SMALL.NS", listed[2].Symbol)

	limited, err := repo.List(MetadataFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMetadataListFiltersBySector(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(StockMetadata{Symbol: "ONGC.NS", Sector: strPtr("Energy")}))
	require.NoError(t, repo.Upsert(StockMetadata{Symbol: "INFY.NS", Sector: strPtr("Technology")}))

	listed, err := repo.List(MetadataFilter{Sector: "Energy"})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "ONGC.NS", listed[0].Symbol)
}

func TestRecomputeMarketCapRanks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	seedStock(t, repo, "A.NS", 300)
	seedStock(t, repo, "B.NS", 200)
	require.NoError(t, repo.Upsert(StockMetadata{Symbol: "C.NS"})) // no market cap
	require.NoError(t, repo.RecomputeMarketCapRanks())

	a, err := repo.GetBySymbol("A.NS")
	require.NoError(t, err)
	require.NotNil(t, a.MarketCapRank)
	assert.Equal(t, int64(1), *a.MarketCapRank)

	b, err := repo.GetBySymbol("B.NS")
	require.NoError(t, err)
	require.NotNil(t, b.MarketCapRank)
	assert.Equal(t, int64(2), *b.MarketCapRank)

	c, err := repo.GetBySymbol("C.NS")
	require.NoError(t, err)
	assert.Nil(t, c.MarketCapRank)
}

func TestUpdateMetadataPatch(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	seedStock(t, repo, "TCS.NS", 500)

	require.NoError(t, repo.UpdateMetadata("TCS.NS", MetadataPatch{
		Sector:   strPtr("Technology"),
		PERatio:  f64Ptr(28.4),
	}))

	got, err := repo.GetBySymbol("TCS.NS")
	require.NoError(t, err)
	require.NotNil(t, got.Sector)
	assert.Equal(t, "Technology", *got.Sector)
	require.NotNil(t, got.PERatio)
	assert.Equal(t, 28.4, *got.PERatio)
	// Untouched fields survive the patch
	require.NotNil(t, got.MarketCap)
	assert.Equal(t, int64(500), *got.MarketCap)

	// Empty patch is a no-op, not an error
	require.NoError(t, repo.UpdateMetadata("TCS.NS", MetadataPatch{}))
}

func TestSymbolsMissingAttributes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	require.NoError(t, repo.Upsert(StockMetadata{
		Symbol:       "DONE.NS",
		Sector:       strPtr("Energy"),
		Industry:     strPtr("Oil & Gas"),
		CurrentPrice: f64Ptr(100),
		MarketCap:    i64Ptr(1000),
	}))
	require.NoError(t, repo.Upsert(StockMetadata{
		Symbol:    "PARTIAL.NS",
		Sector:    strPtr("Energy"),
		MarketCap: i64Ptr(2000),
	}))
	require.NoError(t, repo.Upsert(StockMetadata{Symbol: "EMPTY.NS"}))

	missing, err := repo.SymbolsMissingAttributes()
	require.NoError(t, err)
	require.Len(t, missing, 2)
	// Largest caps first
	assert.Equal(t, "PARTIAL.NS", missing[0])
	assert.Equal(t, "EMPTY.NS", missing[1])
}

func TestSetLastPrice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMetadataRepository(db.Conn(), zerolog.Nop())

	seedStock(t, repo, "SBIN.NS", 900)
	require.NoError(t, repo.SetLastPrice("SBIN.NS", 812.35, "2025-12-19"))

	got, err := repo.GetBySymbol("SBIN.NS")
	require.NoError(t, err)
	require.NotNil(t, got.CurrentPrice)
	assert.Equal(t, 812.35, *got.CurrentPrice)
	require.NotNil(t, got.LastPriceDate)
	assert.Equal(t, "2025-12-19", *got.LastPriceDate)
}

func testBar(symbol string, date string, close float64) PriceBar {
	d, _ := time.Parse("2006-01-02", date)
	return PriceBar{
		Symbol: symbol,
		Date:   d,
		Open:   close,
		High:   close * 1.01,
		Low:    close * 0.99,
		Close:  close,
		Volume: 1000,
	}
}

func TestUpsertBarsDiscardsInvalid(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	valid := testBar("RELIANCE.NS", "2025-12-18", 100)
	invalid := testBar("RELIANCE.NS", "2025-12-19", 100)
	invalid.Low = 150 // low above close violates OHLC ordering

	written, err := repo.UpsertBars([]PriceBar{valid, invalid})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	bars, err := repo.GetPriceData("RELIANCE.NS", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "2025-12-18", bars[0].Date.Format("2006-01-02"))
}

func TestUpsertBarsOverwritesOnConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	_, err := repo.UpsertBars([]PriceBar{testBar("TCS.NS", "2025-12-19", 100)})
	require.NoError(t, err)

	written, err := repo.UpsertBars([]PriceBar{testBar("TCS.NS", "2025-12-19", 105)})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	bars, err := repo.GetPriceData("TCS.NS", nil, nil)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 105.0, bars[0].Close)
}

func TestGetHistoryReturnsLastNAscending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	_, err := repo.UpsertBars([]PriceBar{
		testBar("INFY.NS", "2025-12-15", 100),
		testBar("INFY.NS", "2025-12-16", 101),
		testBar("INFY.NS", "2025-12-17", 102),
		testBar("INFY.NS", "2025-12-18", 103),
	})
	require.NoError(t, err)

	bars, err := repo.GetHistory("INFY.NS", 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2025-12-17", bars[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2025-12-18", bars[1].Date.Format("2006-01-02"))
}

func TestGetPriceDataRange(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	_, err := repo.UpsertBars([]PriceBar{
		testBar("INFY.NS", "2025-12-15", 100),
		testBar("INFY.NS", "2025-12-16", 101),
		testBar("INFY.NS", "2025-12-17", 102),
	})
	require.NoError(t, err)

	from := time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)
	bars, err := repo.GetPriceData("INFY.NS", &from, nil)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, "2025-12-16", bars[0].Date.Format("2006-01-02"))
}

func TestExistingBarDatesAndLatest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPriceRepository(db.Conn(), zerolog.Nop())

	_, err := repo.UpsertBars([]PriceBar{
		testBar("SBIN.NS", "2025-12-18", 800),
		testBar("SBIN.NS", "2025-12-19", 810),
	})
	require.NoError(t, err)

	dates, err := repo.ExistingBarDates("SBIN.NS")
	require.NoError(t, err)
	assert.True(t, dates["2025-12-18"])
	assert.True(t, dates["2025-12-19"])
	assert.False(t, dates["2025-12-20"])

	latest, err := repo.LatestBarDate("SBIN.NS")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "2025-12-19", *latest)

	latest, err = repo.LatestBarDate("NOSUCH.NS")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSymbolsNeedingBars(t *testing.T) {
	db := setupTestDB(t)
	metaRepo := NewMetadataRepository(db.Conn(), zerolog.Nop())
	priceRepo := NewPriceRepository(db.Conn(), zerolog.Nop())

	seedStock(t, metaRepo, "FRESH.NS", 2000)
	seedStock(t, metaRepo, "STALE.NS", 1000)

	_, err := priceRepo.UpsertBars([]PriceBar{testBar("FRESH.NS", "2025-12-19", 100)})
	require.NoError(t, err)

	needing, err := priceRepo.SymbolsNeedingBars([]string{"2025-12-19", "2025-12-18"})
	require.NoError(t, err)
	assert.Equal(t, []string{"STALE.NS"}, needing)

	has, err := priceRepo.HasBarsForDate("2025-12-19")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = priceRepo.HasBarsForDate("2025-12-20")
	require.NoError(t, err)
	assert.False(t, has)
}
