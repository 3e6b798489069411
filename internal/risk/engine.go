// Package risk implements the §4.C7 risk/portfolio engine: the ordered
// kill-switch/book/exposure/venue-health/correlation gate sequence, circuit
// breakers, and the book-exposure portfolio bookkeeping that C10 calls on
// confirmed fills. Generalises the source repo's RiskManager (which checked
// a single flat order against static limits) into a per-book, per-strategy
// gate pipeline driven by the store.
package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Decision is the risk gate's approve/reject verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// CheckResult is returned by Check.
type CheckResult struct {
	Decision     Decision
	Reasons      []string
	ChecksFailed []string
	SizeScale    decimal.Decimal // 1 normally, 0.5 when venue degraded
	Size         decimal.Decimal // targetExposureUsd/expectedEntryPrice, tick-rounded down
}

// ClusterConfig maps a correlation cluster name to its member instruments
// and its USD exposure cap.
type ClusterConfig struct {
	Name        string
	Instruments map[string]bool
	CapUsd      decimal.Decimal
}

// Store is the subset of the persistence facade the risk engine needs:
// kill-switch state and book lookups. internal/store provides the
// production implementation.
type Store interface {
	GlobalKillSwitch(ctx context.Context) (bool, error)
	BookKillSwitch(ctx context.Context, bookID string) (bool, error)
	GetBook(ctx context.Context, bookID string) (types.Book, error)
	HasOpenPosition(ctx context.Context, bookID, instrument string) (bool, error)
}

// VenueHealthSource resolves current venue health for the health gate.
type VenueHealthSource interface {
	GetHealth(venueID string) (types.VenueHealth, bool)
}

// Engine is the risk/portfolio engine.
type Engine struct {
	logger  *zap.Logger
	store   Store
	health  VenueHealthSource

	mu       sync.RWMutex
	clusters []ClusterConfig

	cbMu     sync.Mutex
	breakers map[string]*types.CircuitBreaker
}

// New builds a risk engine.
func New(logger *zap.Logger, store Store, health VenueHealthSource, clusters []ClusterConfig) *Engine {
	return &Engine{
		logger:   logger,
		store:    store,
		health:   health,
		clusters: clusters,
		breakers: make(map[string]*types.CircuitBreaker),
	}
}

// Check runs the §4.C7 ordered gate sequence; the first failure rejects.
func (e *Engine) Check(ctx context.Context, intent types.TradeIntent, def RiskDefinition, venueID string, expectedEntryPrice, tickSize decimal.Decimal) (CheckResult, error) {
	// 1. Kill switch.
	if active, err := e.store.GlobalKillSwitch(ctx); err != nil {
		return CheckResult{}, fmt.Errorf("global kill switch lookup: %w", err)
	} else if active {
		return reject("kill_switch_active", "global kill switch active"), nil
	}
	if active, err := e.store.BookKillSwitch(ctx, intent.BookID); err != nil {
		return CheckResult{}, fmt.Errorf("book kill switch lookup: %w", err)
	} else if active {
		return reject("kill_switch_active", "book kill switch active"), nil
	}
	if e.BreakerActive("recon_mismatch") {
		return reject("recon_mismatch", "recon_mismatch circuit breaker active"), nil
	}

	book, err := e.store.GetBook(ctx, intent.BookID)
	if err != nil {
		return CheckResult{}, fmt.Errorf("load book: %w", err)
	}

	// 2. Book status.
	if book.Status == types.BookStatusHalted {
		return reject("book_status", "book halted"), nil
	}
	if book.Status == types.BookStatusReduceOnly {
		reduces, err := e.store.HasOpenPosition(ctx, intent.BookID, intent.Instrument)
		if err != nil {
			return CheckResult{}, fmt.Errorf("check reducing: %w", err)
		}
		if !reduces {
			return reject("book_status", "book is reduce_only and intent does not reduce a position"), nil
		}
	}

	// 3. Per-intent exposure cap.
	cap := book.CapitalAllocated.Mul(def.MaxRiskPerTrade).Mul(def.RiskMultiplier())
	if intent.TargetExposureUsd.GreaterThan(cap) {
		return reject("per_intent_exposure", "exceeds max risk per trade"), nil
	}

	// 4. Book exposure cap.
	if book.CurrentExposure.Add(intent.TargetExposureUsd).GreaterThan(book.MaxExposure) {
		return reject("book_exposure", "exceeds book max exposure"), nil
	}

	// 5. Venue health.
	sizeScale := decimal.NewFromInt(1)
	if e.health != nil {
		if h, ok := e.health.GetHealth(venueID); ok {
			switch h.Status {
			case types.VenueStatusOffline:
				return reject("venue_health", "venue offline"), nil
			case types.VenueStatusDegraded:
				sizeScale = decimal.NewFromFloat(0.5)
			}
		}
	}

	// 6. Correlation cluster cap.
	if clusterName, clusterExposure, clusterCap, overCap := e.clusterCheck(intent); overCap {
		e.logger.Warn("correlation cluster cap exceeded", zap.String("cluster", clusterName),
			zap.String("exposure", clusterExposure.String()), zap.String("cap", clusterCap.String()))
		return reject("correlation_cluster", "cluster exposure cap exceeded"), nil
	}

	size := intent.TargetExposureUsd.Mul(sizeScale).Div(expectedEntryPrice)
	if !tickSize.IsZero() {
		size = size.Div(tickSize).Floor().Mul(tickSize)
	}

	return CheckResult{Decision: DecisionApprove, SizeScale: sizeScale, Size: size}, nil
}

func (e *Engine) clusterCheck(intent types.TradeIntent) (string, decimal.Decimal, decimal.Decimal, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.clusters {
		if !c.Instruments[intent.Instrument] {
			continue
		}
		if intent.TargetExposureUsd.GreaterThan(c.CapUsd) {
			return c.Name, intent.TargetExposureUsd, c.CapUsd, true
		}
	}
	return "", decimal.Zero, decimal.Zero, false
}

func reject(check, reason string) CheckResult {
	return CheckResult{Decision: DecisionReject, Reasons: []string{reason}, ChecksFailed: []string{check}}
}

// RiskDefinition is the subset of a strategy definition the risk engine
// consumes, decoupled so risk doesn't import internal/strategy.
type RiskDefinition struct {
	MaxRiskPerTrade  decimal.Decimal
	riskMultiplier   decimal.Decimal
}

// WithRiskMultiplier scales the per-intent exposure cap (used by the
// allocator's riskMultiplier output).
func (d RiskDefinition) WithRiskMultiplier(m decimal.Decimal) RiskDefinition {
	d.riskMultiplier = m
	return d
}

// RiskMultiplier defaults to 1 when unset.
func (d RiskDefinition) RiskMultiplier() decimal.Decimal {
	if d.riskMultiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return d.riskMultiplier
}

// ActivateBreaker sets a named circuit breaker.
func (e *Engine) ActivateBreaker(name, source, reason string) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	e.breakers[name] = &types.CircuitBreaker{Name: name, Active: true, Source: source, Reason: reason, ActivatedAt: time.Now()}
}

// DeactivateBreaker clears a circuit breaker; only an operator action
// should call this.
func (e *Engine) DeactivateBreaker(name string) {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	if b, ok := e.breakers[name]; ok {
		now := time.Now()
		b.Active = false
		b.ClearedAt = &now
	}
}

// BreakerActive reports whether the named breaker is currently set.
func (e *Engine) BreakerActive(name string) bool {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	b, ok := e.breakers[name]
	return ok && b.Active
}

// Breakers returns a snapshot of all circuit breakers.
func (e *Engine) Breakers() []types.CircuitBreaker {
	e.cbMu.Lock()
	defer e.cbMu.Unlock()
	out := make([]types.CircuitBreaker, 0, len(e.breakers))
	for _, b := range e.breakers {
		out = append(out, *b)
	}
	return out
}

// ApplyFill updates book exposure atomically on a confirmed fill:
// exposureDelta = signedSize * filledPrice.
func ApplyFill(book *types.Book, side types.OrderSide, filledSize, filledPrice decimal.Decimal) {
	delta := filledSize.Mul(filledPrice)
	if side == types.OrderSideSell {
		delta = delta.Neg()
	}
	book.CurrentExposure = book.CurrentExposure.Add(delta)
	book.UpdatedAt = time.Now()
}
