package yahoo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderSymbol(t *testing.T) {
	assert.Equal(t, "RELIANCE.NS", ProviderSymbol("RELIANCE"))
	assert.Equal(t, "RELIANCE.NS", ProviderSymbol("RELIANCE.NS"))
	assert.Equal(t, "TATAMOTORS.BO", ProviderSymbol("TATAMOTORS.BO"))
}

func TestThrottleSpacesConsecutiveRequests(t *testing.T) {
	c := NewClient(zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, c.throttle(ctx, 50*time.Millisecond))
	require.NoError(t, c.throttle(ctx, 50*time.Millisecond))

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleFirstCallIsFree(t *testing.T) {
	c := NewClient(zerolog.Nop())

	// A fresh client must not wait out the full interval before its first
	// request; a long interval would hang this test if it did.
	require.NoError(t, c.throttle(context.Background(), time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.throttle(ctx, time.Hour), context.Canceled)
}

func TestClassifyHTTPError(t *testing.T) {
	assert.True(t, errors.Is(classifyHTTPError(429, ""), ErrRateLimited))
	assert.True(t, errors.Is(classifyHTTPError(200, "Too Many Requests"), ErrRateLimited))
	assert.True(t, errors.Is(classifyHTTPError(404, ""), ErrSymbolUnknown))
	assert.True(t, errors.Is(classifyHTTPError(500, ""), ErrTransient))
	assert.True(t, errors.Is(classifyHTTPError(503, "upstream unavailable"), ErrTransient))
}

func TestValueExtractors(t *testing.T) {
	m := map[string]interface{}{
		"trailingPE": 22.5,
		"marketCap":  float64(5000000),
		"sector":     "Energy",
		"empty":      "",
	}

	pe := getFloat64(m, "trailingPE")
	if assert.NotNil(t, pe) {
		assert.Equal(t, 22.5, *pe)
	}
	assert.Nil(t, getFloat64(m, "absent"))

	mc := getInt64(m, "marketCap")
	if assert.NotNil(t, mc) {
		assert.Equal(t, int64(5000000), *mc)
	}

	sector := getStringPtr(m, "sector")
	if assert.NotNil(t, sector) {
		assert.Equal(t, "Energy", *sector)
	}
	// Empty strings count as absent
	assert.Nil(t, getStringPtr(m, "empty"))
	assert.Nil(t, getStringPtr(m, "absent"))
}
