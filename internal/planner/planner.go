// Package planner implements the §4.C9 execution planner: leg-by-leg
// submission of a multi-leg ExecutionPlan with a legging-discipline time
// budget and unwind-on-fail, generalising the source repo's Execute/
// ExecuteWithSLTP pipeline and its oppositeSide unwind helper.
package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/internal/errs"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Fill is what a venue adapter returns for a submitted order.
type Fill struct {
	VenueOrderID string
	Status       types.OrderStatus
	FilledSize   decimal.Decimal
	FilledPrice  decimal.Decimal
	LatencyMs    int64
}

// Adapter is the subset of the venue adapter interface (internal/venue)
// the planner needs to submit a leg order.
type Adapter interface {
	PlaceOrder(ctx context.Context, instrument string, side types.OrderSide, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (Fill, error)
}

// AdapterResolver resolves the adapter for a venue name.
type AdapterResolver interface {
	Resolve(venue string) (Adapter, bool)
}

// AuditLogger records a leg lifecycle event.
type AuditLogger interface {
	Log(ctx context.Context, action, resourceType, resourceID string, severity types.AlertSeverity, before, after map[string]interface{})
}

// LegResult captures the outcome of one submitted leg.
type LegResult struct {
	Leg         types.ExecutionLeg
	Fill        Fill
	Err         error
	UnwoundSize decimal.Decimal
	Unwound     bool
}

// PlanResult is the outcome of executing an entire plan.
type PlanResult struct {
	Legs    []LegResult
	Aborted bool
	AbortAt int // index of the leg that failed, -1 if none
}

// Planner executes multi-leg execution plans.
type Planner struct {
	logger   *zap.Logger
	adapters AdapterResolver
	audit    AuditLogger
}

// New builds an execution planner.
func New(logger *zap.Logger, adapters AdapterResolver, audit AuditLogger) *Planner {
	return &Planner{logger: logger, adapters: adapters, audit: audit}
}

// Execute runs every leg of plan in order. If a leg fails (adapter error,
// rejected, cancelled fill, or the inter-leg time budget is blown) and
// plan.UnwindOnFail is set, every already-filled leg is unwound with an
// opposite-side market order before returning.
func (p *Planner) Execute(ctx context.Context, plan types.ExecutionPlan) (PlanResult, error) {
	if err := plan.Validate(); err != nil {
		return PlanResult{}, err
	}

	result := PlanResult{Legs: make([]LegResult, 0, len(plan.Legs)), AbortAt: -1}
	var lastLegTime time.Time

	for i, leg := range plan.Legs {
		if i > 0 && plan.MaxTimeBetweenLegs > 0 {
			if time.Since(lastLegTime) > plan.MaxTimeBetweenLegs {
				p.audit.Log(ctx, "leg_failed", "execution_leg", leg.LegID, types.SeverityCritical, nil,
					map[string]interface{}{"reason": "max_time_between_legs_exceeded"})
				result.Aborted = true
				result.AbortAt = i
				break
			}
		}

		adapter, ok := p.adapters.Resolve(leg.Venue)
		if !ok {
			p.audit.Log(ctx, "leg_failed", "execution_leg", leg.LegID, types.SeverityCritical, nil,
				map[string]interface{}{"reason": "adapter_not_connected", "venue": leg.Venue})
			result.Legs = append(result.Legs, LegResult{Leg: leg, Err: errs.ErrAdapterNotConnected})
			result.Aborted = true
			result.AbortAt = i
			break
		}

		p.audit.Log(ctx, "leg_submitted", "execution_leg", leg.LegID, types.SeverityInfo, nil,
			map[string]interface{}{"venue": leg.Venue, "instrument": leg.Instrument, "side": string(leg.Side)})

		fill, err := adapter.PlaceOrder(ctx, leg.Instrument, leg.Side, leg.Size, leg.OrderType, leg.LimitPrice)
		lastLegTime = time.Now()

		if err != nil {
			p.audit.Log(ctx, "leg_failed", "execution_leg", leg.LegID, types.SeverityCritical, nil,
				map[string]interface{}{"error": err.Error()})
			result.Legs = append(result.Legs, LegResult{Leg: leg, Fill: fill, Err: err})
			result.Aborted = true
			result.AbortAt = i
			break
		}

		if fill.Status == types.OrderStatusRejected || fill.Status == types.OrderStatusCancelled {
			p.audit.Log(ctx, "leg_rejected", "execution_leg", leg.LegID, types.SeverityCritical, nil,
				map[string]interface{}{"status": string(fill.Status)})
			result.Legs = append(result.Legs, LegResult{Leg: leg, Fill: fill})
			result.Aborted = true
			result.AbortAt = i
			break
		}

		p.audit.Log(ctx, "leg_executed", "execution_leg", leg.LegID, types.SeverityInfo, nil,
			map[string]interface{}{"filledSize": fill.FilledSize.String(), "filledPrice": fill.FilledPrice.String()})
		result.Legs = append(result.Legs, LegResult{Leg: leg, Fill: fill})
	}

	if result.Aborted && plan.UnwindOnFail {
		p.unwind(ctx, &result)
	}

	if result.Aborted {
		return result, fmt.Errorf("execution plan aborted at leg %d", result.AbortAt)
	}
	return result, nil
}

// unwind submits an opposite-side market order for max(filledSize, size)
// on every already-filled leg. Unwind failures are logged and never block
// unwinding the remaining legs; the planner raises no alert for them.
func (p *Planner) unwind(ctx context.Context, result *PlanResult) {
	for i := range result.Legs {
		lr := &result.Legs[i]
		if lr.Fill.FilledSize.IsZero() {
			continue // nothing filled on this leg (error, rejection, or cancellation) — nothing to unwind
		}
		unwindSize := lr.Leg.Size
		if lr.Fill.FilledSize.GreaterThan(unwindSize) {
			unwindSize = lr.Fill.FilledSize
		}
		if unwindSize.IsZero() {
			continue
		}

		adapter, ok := p.adapters.Resolve(lr.Leg.Venue)
		if !ok {
			p.logger.Error("unwind failed: adapter unavailable", zap.String("legId", lr.Leg.LegID), zap.String("venue", lr.Leg.Venue))
			continue
		}

		p.audit.Log(ctx, "unwind_submitted", "execution_leg", lr.Leg.LegID, types.SeverityWarning, nil,
			map[string]interface{}{"unwindSize": unwindSize.String()})

		_, err := adapter.PlaceOrder(ctx, lr.Leg.Instrument, lr.Leg.Side.Opposite(), unwindSize, types.OrderTypeMarket, decimal.Zero)
		if err != nil {
			p.logger.Error("unwind order failed", zap.String("legId", lr.Leg.LegID), zap.Error(err))
			continue
		}
		lr.Unwound = true
		lr.UnwoundSize = unwindSize
	}
}
