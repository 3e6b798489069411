package allocator

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func baseConfig() types.CapitalAllocatorConfig {
	return types.CapitalAllocatorConfig{
		BaseWeights:       map[string]decimal.Decimal{"spot": d("1"), "futures": d("1")},
		SharpeFloor:       d("0.5"),
		DDThrottle:        d("0.2"),
		RiskBiasScalars:   map[string]decimal.Decimal{"neutral": d("1")},
		MinStrategyWeight: d("0.01"),
		MaxStrategyWeight: d("0.9"),
	}
}

type fakeDQ struct{ degraded bool }

func (f fakeDQ) Degraded(ctx context.Context) (bool, error) { return f.degraded, nil }

type fakeRecon struct{ count int }

func (f fakeRecon) MismatchCount(ctx context.Context) (int, error) { return f.count, nil }

func TestComputeRefusesOnDegradedDataQuality(t *testing.T) {
	a := New(zap.NewNop(), baseConfig(), nil, fakeDQ{degraded: true}, fakeRecon{})

	_, err := a.Compute(context.Background(), nil, nil, decimal.NewFromInt(100000), decimal.NewFromInt(50000), Regime{})

	require.Error(t, err)
}

func TestComputeRefusesAtReconMismatchThreshold(t *testing.T) {
	a := New(zap.NewNop(), baseConfig(), nil, fakeDQ{}, fakeRecon{count: 3})

	_, err := a.Compute(context.Background(), nil, nil, decimal.NewFromInt(100000), decimal.NewFromInt(50000), Regime{})

	require.Error(t, err)
}

func TestComputeNormalizesWeightsToSimplex(t *testing.T) {
	a := New(zap.NewNop(), baseConfig(), nil, fakeDQ{}, fakeRecon{})
	samples := []PerformanceSample{
		{StrategyID: "s1", Sharpe: d("1.0"), MaxDD: d("0.05")},
		{StrategyID: "s2", Sharpe: d("1.0"), MaxDD: d("0.05")},
	}
	strategyTypes := map[string]string{"s1": "spot", "s2": "futures"}

	allocs, err := a.Compute(context.Background(), strategyTypes, samples, decimal.NewFromInt(100000), decimal.NewFromInt(90000), Regime{Type: "trending", RiskBias: "neutral"})

	require.NoError(t, err)
	require.Len(t, allocs, 2)

	total := decimal.Zero
	for _, al := range allocs {
		total = total.Add(al.Weight)
	}
	assert.True(t, total.Sub(decimal.NewFromInt(1)).Abs().LessThan(d("0.0001")), "weights must sum to ~1, got %s", total)
}

func TestComputeThrottlesUnderperformingStrategy(t *testing.T) {
	a := New(zap.NewNop(), baseConfig(), nil, fakeDQ{}, fakeRecon{})
	samples := []PerformanceSample{
		{StrategyID: "good", Sharpe: d("1.0"), MaxDD: d("0.05")},
		{StrategyID: "bad", Sharpe: d("0.1"), MaxDD: d("0.5")},
	}
	strategyTypes := map[string]string{"good": "spot", "bad": "spot"}

	allocs, err := a.Compute(context.Background(), strategyTypes, samples, decimal.NewFromInt(100000), decimal.NewFromInt(90000), Regime{})
	require.NoError(t, err)

	var good, bad decimal.Decimal
	for _, al := range allocs {
		if al.StrategyID == "good" {
			good = al.Weight
		} else {
			bad = al.Weight
		}
	}
	assert.True(t, good.GreaterThan(bad), "underperforming strategy (low sharpe, high dd) must get a smaller weight")
}

func TestComputeClampsAllocatedCapitalToMaxNotional(t *testing.T) {
	a := New(zap.NewNop(), baseConfig(), nil, fakeDQ{}, fakeRecon{})
	samples := []PerformanceSample{{StrategyID: "s1", Sharpe: d("1"), MaxDD: d("0")}}
	strategyTypes := map[string]string{"s1": "spot"}

	allocs, err := a.Compute(context.Background(), strategyTypes, samples, decimal.NewFromInt(100000), decimal.NewFromInt(1000), Regime{})
	require.NoError(t, err)
	require.Len(t, allocs, 1)
	assert.True(t, allocs[0].AllocatedCapital.LessThanOrEqual(decimal.NewFromInt(1000)))
}

func TestApplyAllocationsScalesIntentByFactor(t *testing.T) {
	intent := types.TradeIntent{
		TargetExposureUsd: decimal.NewFromInt(10000),
		MaxLossUsd:        decimal.NewFromInt(500),
	}
	alloc := Allocation{AllocatedCapital: decimal.NewFromInt(50000), RiskMultiplier: decimal.NewFromFloat(0.5)}

	out := ApplyAllocations(intent, alloc, decimal.NewFromInt(100000), decimal.NewFromInt(100000))

	// factor = min(50000,100000)*0.5/100000 = 0.25
	assert.Equal(t, "2500", out.TargetExposureUsd.String())
	assert.Equal(t, "125", out.MaxLossUsd.String())
}

func TestApplyAllocationsNoopWhenOriginalCapitalZero(t *testing.T) {
	intent := types.TradeIntent{TargetExposureUsd: decimal.NewFromInt(10000)}
	alloc := Allocation{AllocatedCapital: decimal.NewFromInt(50000), RiskMultiplier: decimal.NewFromInt(1)}

	out := ApplyAllocations(intent, alloc, decimal.NewFromInt(100000), decimal.Zero)

	assert.Equal(t, intent.TargetExposureUsd.String(), out.TargetExposureUsd.String())
}
