package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

func TestNewRegistryAssignsDerivedIDWhenMissing(t *testing.T) {
	cfg := types.StrategyRegistryConfig{Strategies: []types.StrategyDefinition{{Name: "trend_follow", Enabled: true}}}

	r := NewRegistry(zap.NewNop(), cfg)

	enabled := r.Enabled()
	assert.Len(t, enabled, 1)
	assert.Equal(t, DeriveID("trend_follow"), enabled[0].ID)
}

func TestDeriveIDIsStableAcrossCalls(t *testing.T) {
	assert.Equal(t, DeriveID("trend_follow"), DeriveID("trend_follow"))
}

func TestGetPrefersRuntimeOverConfig(t *testing.T) {
	cfg := types.StrategyRegistryConfig{Strategies: []types.StrategyDefinition{{ID: "strat-1", MaxRiskPerTrade: decimal.NewFromFloat(0.01)}}}
	r := NewRegistry(zap.NewNop(), cfg)

	r.RegisterRuntime(types.StrategyDefinition{ID: "strat-1", MaxRiskPerTrade: decimal.NewFromFloat(0.05)})

	def, ok := r.Get("strat-1")
	assert.True(t, ok)
	assert.True(t, def.MaxRiskPerTrade.Equal(decimal.NewFromFloat(0.05)))
}

func TestGetMissingReturnsFalse(t *testing.T) {
	r := NewRegistry(zap.NewNop(), types.StrategyRegistryConfig{})

	_, ok := r.Get("nonexistent")

	assert.False(t, ok)
}

func TestEnabledExcludesDisabledDefinitions(t *testing.T) {
	cfg := types.StrategyRegistryConfig{Strategies: []types.StrategyDefinition{
		{ID: "a", Enabled: true}, {ID: "b", Enabled: false},
	}}
	r := NewRegistry(zap.NewNop(), cfg)

	enabled := r.Enabled()

	assert.Len(t, enabled, 1)
	assert.Equal(t, "a", enabled[0].ID)
}

func TestRegisterImplementationAndLookup(t *testing.T) {
	r := NewRegistry(zap.NewNop(), types.StrategyRegistryConfig{})
	mock := NewMockStrategy(5, 2)

	r.RegisterImplementation("mock-1", mock)

	impl, ok := r.Implementation("mock-1")
	assert.True(t, ok)
	assert.Equal(t, "mock", impl.Name())
}

func TestScannerConfigReturnsLoadedTopK(t *testing.T) {
	r := NewRegistry(zap.NewNop(), types.StrategyRegistryConfig{Scanner: types.ScannerConfig{TopK: 5, MaxOpportunities: 20}})

	assert.Equal(t, 5, r.ScannerConfig().TopK)
}

func TestMockStrategyEntersOnScheduleAndExitsAfterHold(t *testing.T) {
	bars := make([]types.OHLCV, 20)
	frame := NewFrame(bars)
	m := NewMockStrategy(5, 3)

	frame = m.PopulateEntryTrend(frame, Meta{})
	frame = m.PopulateExitTrend(frame, Meta{})

	assert.True(t, frame.EnterLong[0])
	assert.True(t, frame.EnterLong[5])
	assert.False(t, frame.EnterLong[1])
	assert.True(t, frame.ExitLong[3])
	assert.True(t, frame.ExitLong[8])
}

func TestMockStrategyNoopWhenEntryEveryZero(t *testing.T) {
	bars := make([]types.OHLCV, 10)
	frame := NewFrame(bars)
	m := NewMockStrategy(0, 3)

	frame = m.PopulateEntryTrend(frame, Meta{})

	for _, v := range frame.EnterLong {
		assert.False(t, v)
	}
}

func TestSMARuleEntersLongOnUpwardCross(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 10, 15, 16, 17}
	bars := make([]types.OHLCV, len(closes))
	for i, c := range closes {
		bars[i] = types.OHLCV{Close: decimal.NewFromFloat(c)}
	}
	frame := NewFrame(bars)
	rule := NewSMARule(10)

	frame = rule.PopulateIndicators(frame, Meta{})
	frame = rule.PopulateEntryTrend(frame, Meta{})

	assert.True(t, frame.EnterLong[10] || frame.EnterLong[11] || frame.EnterLong[12])
}

func TestSMARuleDefaultsPeriodWhenNonPositive(t *testing.T) {
	rule := NewSMARule(0)

	assert.Equal(t, 10, rule.Period)
}
