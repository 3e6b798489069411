// Package allocator implements the §4.C8 capital allocator: a periodic
// weight computation across enabled strategies that blends a base weight
// with performance, regime and cluster multipliers, normalises to a
// simplex, clamps to configured bounds and scales trade intents by the
// resulting per-strategy allocation.
package allocator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Regime is the market-regime input the allocator's regimeMul/biasMul
// lookups consume. Produced by whatever regime classifier is wired in;
// the allocator only needs the two labels.
type Regime struct {
	Type     string // e.g. "trending", "mean_reverting", "high_vol", "low_vol"
	RiskBias string // key into CapitalAllocatorConfig.RiskBiasScalars
}

// PerformanceSample is a strategy's trailing performance input to perfMul.
type PerformanceSample struct {
	StrategyID string
	Sharpe     decimal.Decimal
	MaxDD      decimal.Decimal // positive fraction, e.g. 0.12 for 12%
	Cluster    string
}

// RegimeMultiplierTable maps a regime type to a multiplier. Missing
// entries default to 1.
type RegimeMultiplierTable map[string]decimal.Decimal

// DataQualitySource reports whether the allocator may run this tick.
type DataQualitySource interface {
	Degraded(ctx context.Context) (bool, error)
}

// ReconMismatchSource reports the current reconciliation mismatch count.
type ReconMismatchSource interface {
	MismatchCount(ctx context.Context) (int, error)
}

// Allocation is the final per-strategy weight and derived risk multiplier.
type Allocation struct {
	StrategyID      string
	Weight          decimal.Decimal
	AllocatedCapital decimal.Decimal
	RiskMultiplier  decimal.Decimal
}

// Allocator computes and applies capital allocations.
type Allocator struct {
	logger       *zap.Logger
	cfg          types.CapitalAllocatorConfig
	regimeTable  RegimeMultiplierTable
	dataQuality  DataQualitySource
	reconMismatch ReconMismatchSource
}

// New builds an allocator.
func New(logger *zap.Logger, cfg types.CapitalAllocatorConfig, regimeTable RegimeMultiplierTable, dq DataQualitySource, recon ReconMismatchSource) *Allocator {
	return &Allocator{logger: logger, cfg: cfg, regimeTable: regimeTable, dataQuality: dq, reconMismatch: recon}
}

// reconMismatchRefuseThreshold: the allocator refuses to run at or above
// this many outstanding reconciliation mismatches.
const reconMismatchRefuseThreshold = 3

// Compute runs one allocator tick across the given strategies and returns
// the normalised, clamped per-strategy allocation. Returns an error (and no
// allocations) if data quality is degraded or recon mismatches are too high.
func (a *Allocator) Compute(ctx context.Context, strategyTypeOf map[string]string, samples []PerformanceSample, totalCapital decimal.Decimal, maxNotional decimal.Decimal, regime Regime) ([]Allocation, error) {
	if a.dataQuality != nil {
		degraded, err := a.dataQuality.Degraded(ctx)
		if err != nil {
			return nil, fmt.Errorf("data quality check: %w", err)
		}
		if degraded {
			return nil, fmt.Errorf("allocator refusing to run: data quality degraded")
		}
	}
	if a.reconMismatch != nil {
		count, err := a.reconMismatch.MismatchCount(ctx)
		if err != nil {
			return nil, fmt.Errorf("recon mismatch check: %w", err)
		}
		if count >= reconMismatchRefuseThreshold {
			return nil, fmt.Errorf("allocator refusing to run: %d outstanding recon mismatches", count)
		}
	}

	overweight := make(map[string]bool, len(a.cfg.OverweightClusters))
	for _, c := range a.cfg.OverweightClusters {
		overweight[c] = true
	}

	scores := make(map[string]decimal.Decimal, len(samples))
	for _, s := range samples {
		stype := strategyTypeOf[s.StrategyID]
		base, ok := a.cfg.BaseWeights[stype]
		if !ok {
			base = decimal.Zero
		}

		perfMul := decimal.NewFromInt(1)
		if s.Sharpe.LessThan(a.cfg.SharpeFloor) {
			perfMul = perfMul.Mul(decimal.NewFromFloat(0.7))
		}
		if s.MaxDD.GreaterThan(a.cfg.DDThrottle) {
			perfMul = perfMul.Mul(decimal.NewFromFloat(0.6))
		}

		regimeMul := decimal.NewFromInt(1)
		if m, ok := a.regimeTable[regime.Type]; ok {
			regimeMul = m
		}

		biasMul := decimal.NewFromInt(1)
		if m, ok := a.cfg.RiskBiasScalars[regime.RiskBias]; ok {
			biasMul = m
		}

		clusterMul := decimal.NewFromInt(1)
		if overweight[s.Cluster] {
			clusterMul = decimal.NewFromFloat(0.95)
		}

		score := base.Mul(perfMul).Mul(regimeMul).Mul(biasMul).Mul(clusterMul)
		if score.IsNegative() {
			score = decimal.Zero
		}
		scores[s.StrategyID] = score
	}

	total := decimal.Zero
	for _, v := range scores {
		total = total.Add(v)
	}

	allocations := make([]Allocation, 0, len(scores))
	if total.IsZero() {
		a.logger.Warn("allocator: all strategy scores zero, no capital allocated this tick")
		return allocations, nil
	}

	for id, score := range scores {
		weight := score.Div(total)
		if weight.LessThan(a.cfg.MinStrategyWeight) {
			weight = decimal.Zero
		} else {
			weight = clamp(weight, a.cfg.MinStrategyWeight, a.cfg.MaxStrategyWeight)
		}
		allocations = append(allocations, Allocation{
			StrategyID:       id,
			Weight:           weight,
			AllocatedCapital: totalCapital.Mul(weight),
			RiskMultiplier:   weight,
		})
	}

	// Re-normalise after the min-weight drop so the simplex sums to 1 over
	// the surviving strategies.
	survivingTotal := decimal.Zero
	for _, al := range allocations {
		survivingTotal = survivingTotal.Add(al.Weight)
	}
	if !survivingTotal.IsZero() && !survivingTotal.Equal(decimal.NewFromInt(1)) {
		for i := range allocations {
			allocations[i].Weight = allocations[i].Weight.Div(survivingTotal)
			allocations[i].AllocatedCapital = totalCapital.Mul(allocations[i].Weight)
			allocations[i].RiskMultiplier = allocations[i].Weight
		}
	}

	for i := range allocations {
		if allocations[i].AllocatedCapital.GreaterThan(maxNotional) {
			allocations[i].AllocatedCapital = maxNotional
		}
	}

	return allocations, nil
}

func clamp(v, min, max decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		return min
	}
	if v.GreaterThan(max) {
		return max
	}
	return v
}

// ApplyAllocations scales a trade intent's exposure/loss caps by
// min(allocatedCapital, maxNotional) * riskMultiplier / originalCapital,
// where originalCapital is the strategy's unscaled book capital the
// intent's targetExposureUsd was originally sized against.
func ApplyAllocations(intent types.TradeIntent, alloc Allocation, maxNotional, originalCapital decimal.Decimal) types.TradeIntent {
	if originalCapital.IsZero() {
		return intent
	}
	capped := alloc.AllocatedCapital
	if capped.GreaterThan(maxNotional) {
		capped = maxNotional
	}
	factor := capped.Mul(alloc.RiskMultiplier).Div(originalCapital)
	intent.TargetExposureUsd = intent.TargetExposureUsd.Mul(factor)
	intent.MaxLossUsd = intent.MaxLossUsd.Mul(factor)
	return intent
}
