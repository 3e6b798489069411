// Package oms implements the §4.C10 order management system: the single
// entry point that turns a (possibly allocator-scaled) trade intent into
// persisted orders, running the full kill_switch_gate -> book_gate ->
// venue_health -> risk_gate -> cost_gate -> size_positions -> resolve_plan
// -> execute -> validate_fill -> update_book_exposure -> persist_order
// pipeline. Generalises the source repo's OrderManager (TrackOrder /
// RecordFill / updatePosition) from a flat single-venue model into the
// multi-leg, multi-book pipeline above.
package oms

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/internal/cost"
	"github.com/atlas-desktop/engine/internal/errs"
	"github.com/atlas-desktop/engine/internal/planner"
	"github.com/atlas-desktop/engine/internal/risk"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Store is the persistence surface the OMS writes through. internal/store
// provides the production sqlite-backed implementation.
type Store interface {
	GetBook(ctx context.Context, bookID string) (types.Book, error)
	SaveBook(ctx context.Context, book types.Book) error
	SaveOrder(ctx context.Context, order types.Order) error
	SaveMultiLegIntent(ctx context.Context, intentID string, plan types.ExecutionPlan) error
	UpsertStrategyPosition(ctx context.Context, pos types.StrategyPosition) error
	Audit(ctx context.Context, record types.AuditRecord)
	RaiseAlert(ctx context.Context, alert types.Alert)
}

// MarketSource resolves the current snapshot for a venue/instrument pair,
// used by the cost gate.
type MarketSource interface {
	GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool)
	Volatility(venue, instrument string) decimal.Decimal
}

// FeeSource resolves a venue's fee schedule.
type FeeSource interface {
	Fees(venue string) cost.FeeTable
}

// SingleLegAdapterResolver resolves a venue adapter for a single-order
// (non-legged) submission.
type SingleLegAdapterResolver interface {
	Resolve(venue string) (planner.Adapter, bool)
}

// StrategyRiskSource resolves the risk definition (max risk per trade,
// optional risk multiplier) for a strategy.
type StrategyRiskSource interface {
	RiskDefinition(strategyID string) (risk.RiskDefinition, error)
}

// OMS is the order management system.
type OMS struct {
	logger   *zap.Logger
	store    Store
	market   MarketSource
	fees     FeeSource
	adapters SingleLegAdapterResolver
	riskDefs StrategyRiskSource
	risk     *risk.Engine
	planner  *planner.Planner
	venueID  func(intent types.TradeIntent) string
}

// New builds an OMS.
func New(logger *zap.Logger, store Store, market MarketSource, fees FeeSource, adapters SingleLegAdapterResolver,
	riskDefs StrategyRiskSource, riskEngine *risk.Engine, plan *planner.Planner, venueID func(types.TradeIntent) string) *OMS {
	return &OMS{
		logger: logger, store: store, market: market, fees: fees, adapters: adapters,
		riskDefs: riskDefs, risk: riskEngine, planner: plan, venueID: venueID,
	}
}

// Submit runs the full pipeline for a trade intent and returns the
// resulting order(s). A single-leg intent produces exactly one order; a
// legged intent (intent.Metadata.ExecutionPlan set) produces one order per
// leg result the planner returns, failed legs included as rejected orders.
func (o *OMS) Submit(ctx context.Context, intent types.TradeIntent) ([]types.Order, error) {
	// kill_switch_gate, book_gate, venue_health, risk_gate, cost_gate,
	// size_positions are all folded into risk.Engine.Check plus the cost
	// gate below, in pipeline order.
	venueID := o.venueID(intent)

	riskDef, err := o.riskDefs.RiskDefinition(intent.StrategyID)
	if err != nil {
		return nil, fmt.Errorf("resolve risk definition: %w", err)
	}

	snapshot, ok := o.market.GetSnapshot(venueID, intent.Instrument)
	if !ok {
		return nil, errs.New(errs.KindVenueUnavailable, "no market snapshot for "+venueID+"/"+intent.Instrument)
	}

	entryPrice := snapshot.Mid
	if entryPrice.IsZero() {
		entryPrice = snapshot.Last
	}

	tickSize := decimal.Zero // resolved by the venue adapter in a full wiring; zero disables rounding

	riskResult, err := o.risk.Check(ctx, intent, riskDef, venueID, entryPrice, tickSize)
	if err != nil {
		return nil, fmt.Errorf("risk gate: %w", err)
	}
	if riskResult.Decision == risk.DecisionReject {
		o.store.Audit(ctx, auditRecord("intent_rejected", "trade_intent", intent.ID, intent.BookID, types.SeverityWarning, nil,
			map[string]interface{}{"reasons": riskResult.Reasons, "checksFailed": riskResult.ChecksFailed}))
		return nil, errs.New(errs.KindRiskReject, fmt.Sprintf("risk gate rejected: %v", riskResult.Reasons))
	}

	// cost_gate
	fees := o.fees.Fees(venueID)
	volatility := o.market.Volatility(venueID, intent.Instrument)
	breakdown, err := cost.Evaluate(intent, snapshot, fees, 0, volatility)
	if err != nil {
		return nil, fmt.Errorf("cost gate: %w", err)
	}
	if !breakdown.Allowed {
		o.store.Audit(ctx, auditRecord("intent_rejected", "trade_intent", intent.ID, intent.BookID, types.SeverityWarning, nil,
			map[string]interface{}{"expectedEdgeBps": breakdown.ExpectedEdgeBps.String(), "minEdgeBps": breakdown.MinEdgeBps.String()}))
		return nil, errs.New(errs.KindCostReject, "expected edge below minimum edge threshold")
	}

	// size_positions: riskResult.Size is already targetExposureUsd/entryPrice
	// scaled by SizeScale and tick-rounded down by the risk gate.
	size := riskResult.Size

	// resolve_plan
	if intent.Metadata.ExecutionPlan != nil {
		return o.submitLegged(ctx, intent, *intent.Metadata.ExecutionPlan)
	}
	return o.submitSingleLeg(ctx, intent, venueID, entryPrice, size)
}

func (o *OMS) submitSingleLeg(ctx context.Context, intent types.TradeIntent, venueID string, entryPrice, size decimal.Decimal) ([]types.Order, error) {
	adapter, ok := o.adapters.Resolve(venueID)
	if !ok {
		return nil, errs.ErrVenueNotFound
	}

	order := types.Order{
		ID:         uuid.NewString(),
		BookID:     intent.BookID,
		StrategyID: intent.StrategyID,
		VenueID:    venueID,
		Instrument: intent.Instrument,
		Side:       intent.Direction.ToSide(),
		Size:       size,
		OrderType:  types.OrderTypeMarket,
		Status:     types.OrderStatusOpen,
		IntentID:   intent.ID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	fill, err := adapter.PlaceOrder(ctx, intent.Instrument, order.Side, size, types.OrderTypeMarket, decimal.Zero)
	if err != nil {
		order.Status = types.OrderStatusRejected
		order.UpdatedAt = time.Now()
		o.persistRejected(ctx, order, err.Error())
		return []types.Order{order}, err
	}

	order.VenueOrderID = fill.VenueOrderID
	order.LatencyMs = fill.LatencyMs

	if err := o.validateFill(ctx, &order, fill); err != nil {
		return []types.Order{order}, err
	}

	if err := o.store.SaveOrder(ctx, order); err != nil {
		return []types.Order{order}, fmt.Errorf("persist order: %w", err)
	}
	return []types.Order{order}, nil
}

func (o *OMS) submitLegged(ctx context.Context, intent types.TradeIntent, plan types.ExecutionPlan) ([]types.Order, error) {
	if err := o.store.SaveMultiLegIntent(ctx, intent.ID, plan); err != nil {
		return nil, fmt.Errorf("persist multi-leg intent: %w", err)
	}

	result, execErr := o.planner.Execute(ctx, plan)

	orders := make([]types.Order, 0, len(result.Legs))
	for _, lr := range result.Legs {
		order := types.Order{
			ID:           uuid.NewString(),
			BookID:       intent.BookID,
			StrategyID:   intent.StrategyID,
			VenueID:      lr.Leg.Venue,
			VenueOrderID: lr.Fill.VenueOrderID,
			Instrument:   lr.Leg.Instrument,
			Side:         lr.Leg.Side,
			Size:         lr.Leg.Size,
			OrderType:    lr.Leg.OrderType,
			LegID:        lr.Leg.LegID,
			IntentID:     intent.ID,
			LatencyMs:    lr.Fill.LatencyMs,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		if lr.Err != nil {
			order.Status = types.OrderStatusRejected
			o.persistRejected(ctx, order, lr.Err.Error())
			orders = append(orders, order)
			continue
		}
		if verr := o.validateFill(ctx, &order, lr.Fill); verr != nil {
			orders = append(orders, order)
			continue
		}
		if err := o.store.SaveOrder(ctx, order); err != nil {
			o.logger.Error("persist leg order failed", zap.Error(err))
		}
		orders = append(orders, order)
	}

	if intent.Metadata.StrategyType == "basis" {
		o.updateBasisPosition(ctx, intent, orders)
	}

	return orders, execErr
}

// validateFill applies the §4.C10 post-fill validation: a non-positive
// filled price transitions the order to rejected, never mutates book
// exposure, and raises a critical alert. A valid fill applies
// exposureDelta = signedSize * filledPrice to the book atomically.
func (o *OMS) validateFill(ctx context.Context, order *types.Order, fill Fill) error {
	if fill.FilledPrice.LessThanOrEqual(decimal.Zero) {
		order.Status = types.OrderStatusRejected
		order.UpdatedAt = time.Now()
		o.store.RaiseAlert(ctx, types.Alert{
			ID: uuid.NewString(), Title: "invalid fill price", Severity: types.SeverityCritical,
			Message: fmt.Sprintf("order %s received non-positive filled price", order.ID), Source: "oms",
			CreatedAt: time.Now(),
		})
		o.store.Audit(ctx, auditRecord("order_rejected", "order", order.ID, order.BookID, types.SeverityCritical, nil,
			map[string]interface{}{"reason": "invalid_fill_price"}))
		return errs.New(errs.KindFillPriceInvalid, "filled price must be positive")
	}

	order.FilledSize = fill.FilledSize
	order.FilledPrice = fill.FilledPrice
	if fill.FilledSize.GreaterThanOrEqual(order.Size) {
		order.Status = types.OrderStatusFilled
	} else if fill.FilledSize.IsPositive() {
		order.Status = types.OrderStatusPartial
	}
	order.UpdatedAt = time.Now()

	action := "order_filled"
	if order.Status == types.OrderStatusPartial {
		action = "order_partially_filled"
	}
	o.store.Audit(ctx, auditRecord(action, "order", order.ID, order.BookID, types.SeverityInfo, nil,
		map[string]interface{}{"filledSize": fill.FilledSize.String(), "filledPrice": fill.FilledPrice.String()}))

	book, err := o.store.GetBook(ctx, order.BookID)
	if err != nil {
		return fmt.Errorf("load book for exposure update: %w", err)
	}
	risk.ApplyFill(&book, order.Side, fill.FilledSize, fill.FilledPrice)
	if err := o.store.SaveBook(ctx, book); err != nil {
		return fmt.Errorf("persist book exposure: %w", err)
	}
	return nil
}

func (o *OMS) persistRejected(ctx context.Context, order types.Order, reason string) {
	o.store.Audit(ctx, auditRecord("order_rejected", "order", order.ID, order.BookID, types.SeverityCritical, nil,
		map[string]interface{}{"reason": reason}))
	if err := o.store.SaveOrder(ctx, order); err != nil {
		o.logger.Error("persist rejected order failed", zap.Error(err))
	}
}

func (o *OMS) updateBasisPosition(ctx context.Context, intent types.TradeIntent, orders []types.Order) {
	var spot, deriv decimal.Decimal
	for _, ord := range orders {
		signed := ord.FilledSize
		if ord.Side == types.OrderSideSell {
			signed = signed.Neg()
		}
		switch ord.LegID {
		case "", "basis_spot":
			spot = spot.Add(signed)
		default:
			deriv = deriv.Add(signed)
		}
	}
	hedged := decimal.Zero
	if !deriv.IsZero() {
		hedged = spot.Abs().Div(deriv.Abs())
	}
	_ = o.store.UpsertStrategyPosition(ctx, types.StrategyPosition{
		ID:            uuid.NewString(),
		StrategyID:    intent.StrategyID,
		InstrumentID:  intent.Instrument,
		SpotPosition:  spot,
		DerivPosition: deriv,
		HedgedRatio:   hedged,
		UpdatedAt:     time.Now(),
	})
}

// SetReduceOnly flips a book to reduce_only, audit-logs the transition and
// raises an alert.
func (o *OMS) SetReduceOnly(ctx context.Context, bookID, reason string) error {
	book, err := o.store.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	before := map[string]interface{}{"status": string(book.Status)}
	book.Status = types.BookStatusReduceOnly
	book.UpdatedAt = time.Now()
	if err := o.store.SaveBook(ctx, book); err != nil {
		return err
	}
	o.store.Audit(ctx, auditRecord("book_reduce_only", "book", bookID, bookID, types.SeverityWarning, before,
		map[string]interface{}{"status": string(book.Status), "reason": reason}))
	o.store.RaiseAlert(ctx, types.Alert{
		ID: uuid.NewString(), Title: "book set to reduce-only", Message: reason,
		Severity: types.SeverityWarning, Source: "oms", CreatedAt: time.Now(),
	})
	return nil
}

// Fill is an alias of planner.Fill, so callers of the single-leg path can
// name the type without importing internal/planner.
type Fill = planner.Fill

func auditRecord(action, resourceType, resourceID, bookID string, severity types.AlertSeverity, before, after map[string]interface{}) types.AuditRecord {
	return types.AuditRecord{
		ID: uuid.NewString(), Action: action, ResourceType: resourceType, ResourceID: resourceID,
		BookID: bookID, Severity: severity, BeforeState: before, AfterState: after, Timestamp: time.Now(),
	}
}
