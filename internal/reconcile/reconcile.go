// Package reconcile implements the §4.C11 reconciliation loop: a periodic
// per-venue comparison of internal order/position state against the
// venue's own view, with tolerance bands, a single safe auto-correct case,
// basis hedge-ratio and spot-inventory drift checks, and a per-venue
// mismatch-count escalation ladder. No direct teacher analogue; the
// order/position comparison idiom is generalised from the source repo's
// order-status-transition bookkeeping.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

const (
	orderLookback          = 24 * time.Hour
	orderSizeTolerance     = 0.005
	orderPriceTolerance    = 0.001
	positionSizeTolerance  = 0.005
	spotDriftAlertFraction = 0.02
)

// VenueOrderView and VenuePositionView are the venue's own record of an
// order/position, fetched from the adapter.
type VenueOrderView struct {
	VenueOrderID string
	Status       types.OrderStatus
	FilledSize   decimal.Decimal
	FilledPrice  decimal.Decimal
}

type VenuePositionView struct {
	Instrument string
	Size       decimal.Decimal
}

// VenueSource is the read surface reconciliation pulls from a venue
// adapter.
type VenueSource interface {
	RecentOrders(ctx context.Context, venueID string, since time.Time) (map[string]VenueOrderView, error)
	Positions(ctx context.Context, venueID string) ([]VenuePositionView, error)
}

// Store is the persistence surface reconciliation reads/writes.
type Store interface {
	InternalOrders(ctx context.Context, venueID string, since time.Time) ([]types.Order, error)
	InternalPositions(ctx context.Context, venueID string) ([]types.Position, error)
	SaveOrder(ctx context.Context, order types.Order) error
	Audit(ctx context.Context, record types.AuditRecord)
	RaiseAlert(ctx context.Context, alert types.Alert)
}

// ReduceOnlySetter is called to flip a book to reduce-only on escalation.
type ReduceOnlySetter interface {
	SetReduceOnly(ctx context.Context, bookID, reason string) error
}

// KillSwitchActivator activates circuit breakers on escalation:
// recon_mismatch at the 3-mismatch tier, kill_switch at the 5-mismatch tier.
type KillSwitchActivator interface {
	ActivateBreaker(name, source, reason string)
}

// Mismatch describes one detected discrepancy.
type Mismatch struct {
	VenueID string
	BookID  string // empty when the mismatch has no known book (e.g. a venue order/position with no internal record)
	Kind    string // order_status, order_size, order_price, missing_internal, missing_venue, size_mismatch (CheckBasisHedge/CheckSpotDrift emit no Mismatch)
	Detail  string
}

// Reconciler runs the periodic reconciliation pass.
type Reconciler struct {
	logger      *zap.Logger
	venues      VenueSource
	store       Store
	reduceOnly  ReduceOnlySetter
	killSwitch  KillSwitchActivator

	mu        sync.Mutex
	mismatchN map[string]int // per-venue running mismatch counter, reset on a clean run
}

// New builds a reconciler.
func New(logger *zap.Logger, venues VenueSource, store Store, reduceOnly ReduceOnlySetter, killSwitch KillSwitchActivator) *Reconciler {
	return &Reconciler{
		logger: logger, venues: venues, store: store, reduceOnly: reduceOnly, killSwitch: killSwitch,
		mismatchN: make(map[string]int),
	}
}

// Run executes one reconciliation pass for venueID and returns the
// mismatches found. It applies the single safe auto-correct case
// (venue=filled, internal=pending/open -> filled) before returning.
func (r *Reconciler) Run(ctx context.Context, venueID string) ([]Mismatch, error) {
	since := time.Now().Add(-orderLookback)

	venueOrders, err := r.venues.RecentOrders(ctx, venueID, since)
	if err != nil {
		return nil, fmt.Errorf("fetch venue orders: %w", err)
	}
	internalOrders, err := r.store.InternalOrders(ctx, venueID, since)
	if err != nil {
		return nil, fmt.Errorf("fetch internal orders: %w", err)
	}

	var mismatches []Mismatch
	seen := make(map[string]bool, len(internalOrders))

	for _, order := range internalOrders {
		seen[order.VenueOrderID] = true
		venueView, ok := venueOrders[order.VenueOrderID]
		if !ok {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: order.BookID, Kind: "missing_venue", Detail: order.ID})
			continue
		}

		if venueView.Status == types.OrderStatusFilled && (order.Status == types.OrderStatusOpen || order.Status == types.OrderStatusPartial) {
			before := map[string]interface{}{"status": string(order.Status)}
			order.Status = types.OrderStatusFilled
			order.FilledSize = venueView.FilledSize
			order.FilledPrice = venueView.FilledPrice
			order.UpdatedAt = time.Now()
			if err := r.store.SaveOrder(ctx, order); err == nil {
				r.store.Audit(ctx, auditRecord("order_auto_corrected", "order", order.ID, order.BookID, types.SeverityWarning,
					before, map[string]interface{}{"status": string(order.Status)}))
			}
			continue
		}

		if venueView.Status != order.Status {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: order.BookID, Kind: "order_status",
				Detail: fmt.Sprintf("order %s internal=%s venue=%s", order.ID, order.Status, venueView.Status)})
			continue
		}
		if !withinTolerance(order.FilledSize, venueView.FilledSize, orderSizeTolerance) {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: order.BookID, Kind: "order_size", Detail: order.ID})
		}
		if !withinTolerance(order.FilledPrice, venueView.FilledPrice, orderPriceTolerance) {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: order.BookID, Kind: "order_price", Detail: order.ID})
		}
	}

	for venueOrderID := range venueOrders {
		if !seen[venueOrderID] {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, Kind: "missing_internal", Detail: venueOrderID})
		}
	}

	posMismatches, err := r.reconcilePositions(ctx, venueID)
	if err != nil {
		return nil, err
	}
	mismatches = append(mismatches, posMismatches...)

	r.escalate(ctx, venueID, mismatches)
	return mismatches, nil
}

func (r *Reconciler) reconcilePositions(ctx context.Context, venueID string) ([]Mismatch, error) {
	venuePositions, err := r.venues.Positions(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("fetch venue positions: %w", err)
	}
	internalPositions, err := r.store.InternalPositions(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("fetch internal positions: %w", err)
	}

	byInstrument := make(map[string]decimal.Decimal, len(venuePositions))
	for _, vp := range venuePositions {
		byInstrument[vp.Instrument] = vp.Size
	}

	var mismatches []Mismatch
	seen := make(map[string]bool, len(internalPositions))
	for _, pos := range internalPositions {
		seen[pos.Instrument] = true
		venueSize, ok := byInstrument[pos.Instrument]
		if !ok {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: pos.BookID, Kind: "missing_venue", Detail: pos.Instrument})
			continue
		}
		if !withinTolerance(pos.Size, venueSize, positionSizeTolerance) {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, BookID: pos.BookID, Kind: "size_mismatch", Detail: pos.Instrument})
		}
	}
	for instrument := range byInstrument {
		if !seen[instrument] {
			mismatches = append(mismatches, Mismatch{VenueID: venueID, Kind: "missing_internal", Detail: instrument})
		}
	}
	return mismatches, nil
}

// CheckBasisHedge flags a basis strategy position reduce-only if its
// hedged ratio falls outside [low, high].
func (r *Reconciler) CheckBasisHedge(ctx context.Context, bookID string, pos types.StrategyPosition, low, high decimal.Decimal) {
	if pos.HedgedRatio.LessThan(low) || pos.HedgedRatio.GreaterThan(high) {
		r.store.Audit(ctx, auditRecord("hedge_ratio_out_of_band", "strategy_position", pos.ID, bookID, types.SeverityWarning,
			nil, map[string]interface{}{"hedgedRatio": pos.HedgedRatio.String()}))
		if r.reduceOnly != nil {
			_ = r.reduceOnly.SetReduceOnly(ctx, bookID, "basis hedge ratio out of band")
		}
	}
}

// CheckSpotDrift alerts and sets reduce-only when spot inventory has
// drifted more than 2% from its target.
func (r *Reconciler) CheckSpotDrift(ctx context.Context, bookID string, actual, target decimal.Decimal) {
	if target.IsZero() {
		return
	}
	drift := actual.Sub(target).Div(target).Abs()
	if drift.GreaterThan(decimal.NewFromFloat(spotDriftAlertFraction)) {
		r.store.RaiseAlert(ctx, types.Alert{
			ID: uuid.NewString(), Title: "spot inventory drift", Severity: types.SeverityWarning,
			Message: fmt.Sprintf("book %s spot inventory drifted %s", bookID, drift.String()), Source: "reconcile",
			CreatedAt: time.Now(),
		})
		if r.reduceOnly != nil {
			_ = r.reduceOnly.SetReduceOnly(ctx, bookID, "spot inventory drift exceeded 2%")
		}
	}
}

// escalate applies the per-venue mismatch counter ladder: 1 -> warning
// audit, 3 -> critical alert + recon_mismatch breaker + reduce-only, 5 ->
// kill switch. The counter resets to zero on a clean (mismatch-free) run.
func (r *Reconciler) escalate(ctx context.Context, venueID string, mismatches []Mismatch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(mismatches) == 0 {
		r.mismatchN[venueID] = 0
		return
	}

	r.mismatchN[venueID]++
	count := r.mismatchN[venueID]

	switch {
	case count >= 5:
		if r.killSwitch != nil {
			r.killSwitch.ActivateBreaker("kill_switch", "reconcile", fmt.Sprintf("venue %s mismatch count reached %d", venueID, count))
		}
		r.store.Audit(ctx, auditRecord("recon_kill_switch", "venue", venueID, "", types.SeverityCritical, nil,
			map[string]interface{}{"mismatchCount": count}))
	case count >= 3:
		if r.killSwitch != nil {
			r.killSwitch.ActivateBreaker("recon_mismatch", "reconcile", fmt.Sprintf("venue %s mismatch count reached %d", venueID, count))
		}
		r.store.RaiseAlert(ctx, types.Alert{
			ID: uuid.NewString(), Title: "reconciliation mismatch escalation", Severity: types.SeverityCritical,
			Message: fmt.Sprintf("venue %s has %d consecutive reconciliation mismatches", venueID, count), Source: "reconcile",
			CreatedAt: time.Now(),
		})
		if r.reduceOnly != nil {
			for _, bookID := range affectedBooks(mismatches) {
				_ = r.reduceOnly.SetReduceOnly(ctx, bookID, fmt.Sprintf("venue %s reconciliation mismatch escalation (count=%d)", venueID, count))
			}
		}
	case count >= 1:
		r.store.Audit(ctx, auditRecord("recon_mismatch_detected", "venue", venueID, "", types.SeverityWarning, nil,
			map[string]interface{}{"mismatchCount": count, "mismatches": len(mismatches)}))
	}
}

// affectedBooks returns the distinct, non-empty book IDs named by mismatches.
func affectedBooks(mismatches []Mismatch) []string {
	seen := make(map[string]bool, len(mismatches))
	var books []string
	for _, m := range mismatches {
		if m.BookID == "" || seen[m.BookID] {
			continue
		}
		seen[m.BookID] = true
		books = append(books, m.BookID)
	}
	return books
}

func withinTolerance(a, b decimal.Decimal, tolerance float64) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	denom := a
	if denom.IsZero() {
		denom = b
	}
	diff := a.Sub(b).Abs().Div(denom.Abs())
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

func auditRecord(action, resourceType, resourceID, bookID string, severity types.AlertSeverity, before, after map[string]interface{}) types.AuditRecord {
	return types.AuditRecord{
		ID: uuid.NewString(), Action: action, ResourceType: resourceType, ResourceID: resourceID,
		BookID: bookID, Severity: severity, BeforeState: before, AfterState: after, Timestamp: time.Now(),
	}
}
