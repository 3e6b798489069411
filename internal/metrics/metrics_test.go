package metrics

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/engine/pkg/types"
)

func point(day int, equity float64) types.EquityPoint {
	return types.EquityPoint{
		Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Equity:    decimal.NewFromFloat(equity),
	}
}

func TestComputeOnStrictlyIncreasingCurveHasZeroDrawdown(t *testing.T) {
	curve := []types.EquityPoint{point(0, 100), point(1, 105), point(2, 110), point(3, 120)}

	m := Compute(nil, curve, decimal.Zero)

	assert.True(t, m.MaxDrawdown.IsZero())
	assert.Equal(t, 0, m.MaxDrawdownDurationD)
}

func TestComputeTracksDrawdownDuration(t *testing.T) {
	curve := []types.EquityPoint{
		point(0, 100), point(1, 120), point(2, 90), point(3, 95), point(4, 130),
	}

	m := Compute(nil, curve, decimal.Zero)

	assert.True(t, m.MaxDrawdown.GreaterThan(decimal.Zero))
	assert.True(t, m.MaxDrawdownDurationD > 0)
}

func TestComputeEverythingFinite(t *testing.T) {
	curve := []types.EquityPoint{point(0, 100), point(1, 100), point(2, 100)}

	m := Compute(nil, curve, decimal.Zero)

	for _, v := range []decimal.Decimal{
		m.TotalReturn, m.AnnualizedReturn, m.SharpeRatio, m.SortinoRatio,
		m.MaxDrawdown, m.CalmarRatio, m.VaR95, m.CVaR95, m.VaR99, m.CVaR99, m.WinRate,
	} {
		f, _ := v.Float64()
		assert.False(t, math.IsNaN(f) || math.IsInf(f, 0), "metric must be finite, got %v", v)
	}
}

func TestComputeTradeStats(t *testing.T) {
	win := decimal.NewFromInt(10)
	loss := decimal.NewFromInt(-4)
	trades := []types.TradeRecord{
		{Pnl: &win, EntryTime: time.Now(), ExitTime: time.Now().Add(time.Hour)},
		{Pnl: &loss, EntryTime: time.Now(), ExitTime: time.Now().Add(2 * time.Hour)},
	}
	curve := []types.EquityPoint{point(0, 100), point(1, 106)}

	m := Compute(trades, curve, decimal.Zero)

	require.Equal(t, 1, m.WinningTrades)
	require.Equal(t, 1, m.LosingTrades)
	assert.True(t, m.ProfitFactor.GreaterThan(decimal.Zero))
}
