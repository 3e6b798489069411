package backtest

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/pkg/types"
)

func syntheticBars(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := decimal.NewFromInt(100)
	for i := 0; i < n; i++ {
		// a small deterministic oscillation, no RNG involved
		drift := decimal.NewFromFloat(float64((i%7)-3) * 0.25)
		price = price.Add(drift)
		bars[i] = types.OHLCV{Timestamp: base.Add(time.Duration(i) * time.Hour), Open: price, High: price, Low: price, Close: price, Volume: decimal.NewFromInt(1000)}
	}
	return bars
}

func determinismConfig() types.BacktestConfig {
	return types.BacktestConfig{
		StrategyName:   "mock",
		Instruments:    []string{"BTC-USD"},
		InitialCapital: decimal.NewFromInt(100000),
		Timeframe:      types.Timeframe1h,
		SlippageBps:    decimal.NewFromInt(5),
		CommissionBps:  decimal.NewFromInt(10),
		TrainRatio:     0.6,
		ValidateRatio:  0.2,
		TestRatio:      0.2,
		MaxPositionPct: decimal.NewFromFloat(0.1),
		Seed:           42,
	}
}

func TestRunIsDeterministicAcrossRepeatedRuns(t *testing.T) {
	bars := syntheticBars(500)
	cfg := determinismConfig()
	engine := New()

	result1, err := engine.Run(cfg, strategy.NewMockStrategy(10, 5), bars)
	require.NoError(t, err)
	result2, err := engine.Run(cfg, strategy.NewMockStrategy(10, 5), bars)
	require.NoError(t, err)

	require.Equal(t, len(result1.Trades), len(result2.Trades))
	for i := range result1.Trades {
		assert.Equal(t, result1.Trades[i].EntryTime, result2.Trades[i].EntryTime)
		assert.Equal(t, result1.Trades[i].ExitTime, result2.Trades[i].ExitTime)
		assert.True(t, result1.Trades[i].Pnl.Equal(*result2.Trades[i].Pnl))
	}
	require.NotEmpty(t, result1.EquityCurve)
	require.NotEmpty(t, result2.EquityCurve)
	finalEquity1 := result1.EquityCurve[len(result1.EquityCurve)-1].Equity
	finalEquity2 := result2.EquityCurve[len(result2.EquityCurve)-1].Equity
	assert.True(t, finalEquity1.Equal(finalEquity2), "identical config and bars must produce an identical final equity")
}

func TestRunInitialEquityPointStartsNearInitialCapital(t *testing.T) {
	bars := syntheticBars(500)
	cfg := determinismConfig()
	engine := New()

	result, err := engine.Run(cfg, strategy.NewMockStrategy(10, 5), bars)
	require.NoError(t, err)
	require.NotEmpty(t, result.EquityCurve)

	epsilon := decimal.NewFromInt(1000) // allows for first-bar entry fee/slippage
	first := result.EquityCurve[0].Equity
	lower := cfg.InitialCapital.Sub(epsilon)
	upper := cfg.InitialCapital.Add(epsilon)
	assert.True(t, first.GreaterThanOrEqual(lower) && first.LessThanOrEqual(upper),
		"first equity point %s must stay within epsilon of initial capital %s", first, cfg.InitialCapital)
}

func TestRunRejectsSplitRatiosNotSummingToOne(t *testing.T) {
	bars := syntheticBars(100)
	cfg := determinismConfig()
	cfg.TrainRatio = 0.5
	cfg.ValidateRatio = 0.5
	cfg.TestRatio = 0.5

	_, err := New().Run(cfg, strategy.NewMockStrategy(10, 5), bars)

	assert.Error(t, err)
}

func TestRunClosesOpenPositionAtSplitEnd(t *testing.T) {
	bars := syntheticBars(500)
	cfg := determinismConfig()

	result, err := New().Run(cfg, strategy.NewMockStrategy(10, 5), bars)

	require.NoError(t, err)
	for _, split := range []types.SplitResult{result.InSample, result.Validation, result.OutSample} {
		if len(split.Trades) == 0 {
			continue
		}
		last := split.Trades[len(split.Trades)-1]
		assert.LessOrEqual(t, last.ExitTime.Unix(), bars[split.EndIndex-1].Timestamp.Unix())
		require.NotNil(t, last.Pnl)
	}
}

func TestRunProducesThreeIndependentSplits(t *testing.T) {
	bars := syntheticBars(500)
	cfg := determinismConfig()

	result, err := New().Run(cfg, strategy.NewMockStrategy(10, 5), bars)

	require.NoError(t, err)
	assert.Equal(t, "train", result.InSample.Name)
	assert.Equal(t, "validate", result.Validation.Name)
	assert.Equal(t, "test", result.OutSample.Name)
}
