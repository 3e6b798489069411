// Package cost implements the §4.C6 edge/cost model: an all-in bps
// execution-cost estimate compared against expected edge plus a buffer.
package cost

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/engine/internal/errs"
	"github.com/atlas-desktop/engine/pkg/types"
)

// FeeTable is a venue's maker/taker fee schedule in bps.
type FeeTable struct {
	MakerBps decimal.Decimal
	TakerBps decimal.Decimal
}

// Breakdown is the itemised cost estimate OMS audit-logs.
type Breakdown struct {
	ExpectedEdgeBps decimal.Decimal
	FeeBps          decimal.Decimal
	SpreadBps       decimal.Decimal
	SlippageBps     decimal.Decimal
	LatencyBps      decimal.Decimal
	FundingBps      decimal.Decimal
	BasisBps        decimal.Decimal
	TotalCostBps    decimal.Decimal
	MinEdgeBps      decimal.Decimal
	Allowed         bool
}

// MinEdgeBuffer is the default buffer added on top of total cost.
var MinEdgeBuffer = decimal.NewFromInt(10)

var (
	maxSlippageBps = decimal.NewFromInt(50)
	maxImpactBps   = decimal.NewFromInt(30)
	maxLatencyBps  = decimal.NewFromInt(10)
)

// Evaluate computes the §4.C6 cost breakdown for a trade intent against a
// market snapshot, a venue fee table and measured venue latency.
func Evaluate(intent types.TradeIntent, snapshot types.MarketSnapshot, fees FeeTable, latencyMs int64, volatilityBps decimal.Decimal) (Breakdown, error) {
	if snapshot.DataQuality == types.DataQualityUnavailable {
		return Breakdown{}, errs.New(errs.KindVenueUnavailable, "snapshot data quality unavailable")
	}

	expectedEdge := intent.Metadata.ExpectedEdgeBps
	if expectedEdge.IsZero() {
		expectedEdge = decimal.NewFromFloat(intent.Confidence).Mul(decimal.NewFromInt(100))
	}

	feeBps := intent.Metadata.FeeBps
	if feeBps.IsZero() {
		if intent.Metadata.OrderStyle == "maker" {
			feeBps = fees.MakerBps
		} else {
			feeBps = fees.TakerBps
		}
	}

	spreadBps := snapshot.SpreadBps

	impactBps := decimal.Zero
	if !snapshot.Volume24h.IsZero() {
		impactBps = intent.TargetExposureUsd.Div(snapshot.Volume24h).Mul(decimal.NewFromInt(10000))
		impactBps = minDecimal(impactBps, maxImpactBps)
	}
	slippageBps := spreadBps.Mul(decimal.NewFromFloat(0.5)).
		Add(volatilityBps.Mul(decimal.NewFromFloat(0.25))).
		Add(impactBps)
	slippageBps = minDecimal(slippageBps, maxSlippageBps)

	latencyBps := decimal.Zero
	if latencyMs > 200 {
		latencyBps = decimal.NewFromInt(latencyMs - 200).Div(decimal.NewFromInt(100))
		latencyBps = minDecimal(latencyBps, maxLatencyBps)
	}

	fundingBps := intent.Metadata.FundingRateBps
	basisBps := intent.Metadata.BasisRiskBps

	totalCost := feeBps.Add(spreadBps).Add(slippageBps).Add(latencyBps).Add(fundingBps).Add(basisBps)
	minEdge := totalCost.Add(MinEdgeBuffer)

	return Breakdown{
		ExpectedEdgeBps: expectedEdge,
		FeeBps:          feeBps,
		SpreadBps:       spreadBps,
		SlippageBps:     slippageBps,
		LatencyBps:      latencyBps,
		FundingBps:      fundingBps,
		BasisBps:        basisBps,
		TotalCostBps:    totalCost,
		MinEdgeBps:      minEdge,
		Allowed:         expectedEdge.GreaterThanOrEqual(minEdge),
	}, nil
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
