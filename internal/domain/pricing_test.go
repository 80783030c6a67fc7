package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- QuantizePrice ---

func TestQuantizePrice_RoundsDown(t *testing.T) {
	assert.Equal(t, 0.57, QuantizePrice(0.579, 0.01))
	assert.Equal(t, 0.571, QuantizePrice(0.5719, 0.001))
}

func TestQuantizePrice_SnapsFloatDrift(t *testing.T) {
	// 0.57/0.01 evaluates to 56.99999999999999 without the snap.
	assert.Equal(t, 0.57, QuantizePrice(0.57, 0.01))
	assert.Equal(t, 0.29, QuantizePrice(0.29, 0.01))
}

func TestQuantizePrice_InvalidTickReturnsInput(t *testing.T) {
	for _, tick := range []float64{0, -0.01, math.NaN(), math.Inf(1)} {
		assert.Equal(t, 0.4567, QuantizePrice(0.4567, tick), "tick=%v", tick)
	}
}

func TestQuantizePrice_NeverAboveInputAndOnGrid(t *testing.T) {
	ticks := []float64{0.1, 0.01, 0.001, 0.0001}
	for _, tick := range ticks {
		for i := 1; i < 1000; i++ {
			p := float64(i) * 0.000997
			q := QuantizePrice(p, tick)
			assert.LessOrEqual(t, q, p+FillEpsilon, "p=%v tick=%v", p, tick)
			steps := q / tick
			assert.InDelta(t, math.Round(steps), steps, 1e-6, "p=%v tick=%v", p, tick)
		}
	}
}

// --- SizeFromBudget ---

func TestSizeFromBudget_Basic(t *testing.T) {
	size, err := SizeFromBudget(10, 0.49)
	require.NoError(t, err)
	assert.Equal(t, 20.408163, size)
}

func TestSizeFromBudget_CostMatchesBudget(t *testing.T) {
	for _, usd := range []float64{1, 5, 12.5, 100, 2500} {
		for _, price := range []float64{0.01, 0.17, 0.45, 0.49, 0.9} {
			size, err := SizeFromBudget(usd, price)
			require.NoError(t, err)
			assert.InDelta(t, usd, size*price, 1e-5, "usd=%v price=%v", usd, price)
		}
	}
}

func TestSizeFromBudget_RejectsNonPositive(t *testing.T) {
	cases := []struct{ usd, price float64 }{
		{0, 0.5}, {-1, 0.5}, {10, 0}, {10, -0.2},
	}
	for _, c := range cases {
		_, err := SizeFromBudget(c.usd, c.price)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidArgument))
		assert.True(t, errors.Is(err, ErrConfiguration))
	}
}

// --- Pair edge ---

func TestCheckPairEdge(t *testing.T) {
	assert.InDelta(t, 0.02, PairEdge(0.49), 1e-12)
	assert.NoError(t, CheckPairEdge(0.49, 0.005))

	err := CheckPairEdge(0.499, 0.005)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientEdge)
}

func TestHedgeCeiling(t *testing.T) {
	assert.InDelta(t, 0.50, HedgeCeiling(0.49, 0.01), 1e-12)
}

func TestIsPreTrade(t *testing.T) {
	assert.True(t, IsPreTrade(ErrInvalidArgument))
	assert.True(t, IsPreTrade(ErrUnsafeQuote))
	assert.False(t, IsPreTrade(ErrSubmission))
	assert.False(t, IsPreTrade(ErrTransientRead))
}

func TestFloorTo_TruncatesToOrderPrecision(t *testing.T) {
	assert.Equal(t, 12.5, FloorTo(12.5, ShareDecimals))
	assert.Equal(t, 0.0, FloorTo(0.005, ShareDecimals))
	assert.Equal(t, 3.99, FloorTo(3.999999, ShareDecimals))
	// 0.29*100 evaluates to 28.999999999999996 without the snap.
	assert.Equal(t, 0.29, FloorTo(0.29, ShareDecimals))
}
