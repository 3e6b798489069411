package supervisor

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/pkg/types"
)

func TestRiskDefinitionReturnsConfiguredMaxRiskPerTrade(t *testing.T) {
	registry := strategy.NewRegistry(zap.NewNop(), types.StrategyRegistryConfig{
		Strategies: []types.StrategyDefinition{{ID: "strat-1", MaxRiskPerTrade: decimal.NewFromFloat(0.02), Enabled: true}},
	})
	src := strategyRiskSource{registry: registry}

	def, err := src.RiskDefinition("strat-1")

	require.NoError(t, err)
	assert.True(t, def.MaxRiskPerTrade.Equal(decimal.NewFromFloat(0.02)))
}

func TestRiskDefinitionErrorsOnUnknownStrategy(t *testing.T) {
	registry := strategy.NewRegistry(zap.NewNop(), types.StrategyRegistryConfig{})
	src := strategyRiskSource{registry: registry}

	_, err := src.RiskDefinition("nonexistent")

	assert.Error(t, err)
}
