package supervisor

import (
	"fmt"

	"github.com/atlas-desktop/engine/internal/risk"
	"github.com/atlas-desktop/engine/internal/strategy"
)

// strategyRiskSource adapts the strategy registry's config-derived
// per-strategy max-risk-per-trade into risk.RiskDefinition, satisfying
// oms.StrategyRiskSource.
type strategyRiskSource struct {
	registry *strategy.Registry
}

func (s strategyRiskSource) RiskDefinition(strategyID string) (risk.RiskDefinition, error) {
	def, ok := s.registry.Get(strategyID)
	if !ok {
		return risk.RiskDefinition{}, fmt.Errorf("unknown strategy %q", strategyID)
	}
	return risk.RiskDefinition{MaxRiskPerTrade: def.MaxRiskPerTrade}, nil
}
