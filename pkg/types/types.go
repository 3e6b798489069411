// Package types defines the domain model shared across the trading engine:
// orders, positions, books, intents, execution plans, opportunities, venue
// health, market snapshots and the backtest/metrics records derived from them.
package types

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrAtomicPlanMultiLeg is a programmer error: an atomic plan was built with
// more than one leg. It should never reach a live venue call.
var ErrAtomicPlanMultiLeg = errors.New("atomic execution plan may not carry more than one leg")

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the opposite side, used to build unwind orders.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType is the order style submitted to a venue.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// OrderStatus is the OMS order lifecycle state. Transitions are defined in
// the OMS state machine: open -> partial -> filled | rejected | cancelled,
// and partial -> filled | cancelled. rejected, cancelled and expired are
// terminal. expired is kept distinct from cancelled rather than collapsed
// into it (see DESIGN.md open question #1).
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// IsTerminal reports whether no further transitions are expected.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Order is created and mutated only by the OMS (internal/oms).
type Order struct {
	ID           string          `json:"id"`
	BookID       string          `json:"bookId"`
	StrategyID   string          `json:"strategyId"`
	VenueID      string          `json:"venueId"`
	VenueOrderID string          `json:"venueOrderId,omitempty"`
	Instrument   string          `json:"instrument"`
	Side         OrderSide       `json:"side"`
	Size         decimal.Decimal `json:"size"`
	OrderType    OrderType       `json:"orderType"`
	Price        decimal.Decimal `json:"price,omitempty"`
	Status       OrderStatus     `json:"status"`
	FilledSize   decimal.Decimal `json:"filledSize"`
	FilledPrice  decimal.Decimal `json:"filledPrice,omitempty"`
	Slippage     decimal.Decimal `json:"slippage,omitempty"`
	LatencyMs    int64           `json:"latencyMs,omitempty"`
	LegID        string          `json:"legId,omitempty"`
	IntentID     string          `json:"intentId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Remaining returns the unfilled size.
func (o *Order) Remaining() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// PositionSide mirrors OrderSide for an open position's directional exposure.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Position is created/updated on confirmed fills and closed when aggregated
// size reaches zero. Owned exclusively by the portfolio engine (internal/risk).
type Position struct {
	ID            string          `json:"id"`
	BookID        string          `json:"bookId"`
	VenueID       string          `json:"venueId"`
	Instrument    string          `json:"instrument"`
	Side          PositionSide    `json:"side"`
	Size          decimal.Decimal `json:"size"`
	EntryPrice    decimal.Decimal `json:"entryPrice"`
	MarkPrice     decimal.Decimal `json:"markPrice"`
	UnrealizedPnl decimal.Decimal `json:"unrealizedPnl"`
	RealizedPnl   decimal.Decimal `json:"realizedPnl"`
	IsOpen        bool            `json:"isOpen"`
	OpenedAt      time.Time       `json:"openedAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Value returns the signed notional value of the position at its mark
// price: positionValue(long) = size*price, positionValue(short) = size*(2*entry-price).
func (p *Position) Value() decimal.Decimal {
	if p.Side == PositionSideShort {
		two := decimal.NewFromInt(2)
		return p.Size.Mul(two.Mul(p.EntryPrice).Sub(p.MarkPrice))
	}
	return p.Size.Mul(p.MarkPrice)
}

// BookType distinguishes the strategy family the book is dedicated to.
type BookType string

const (
	BookTypeSpot      BookType = "spot"
	BookTypeFutures   BookType = "futures"
	BookTypeArbitrage BookType = "arbitrage"
	BookTypeExecution BookType = "execution"
)

// BookStatus gates which intents the risk engine allows through.
type BookStatus string

const (
	BookStatusActive     BookStatus = "active"
	BookStatusReduceOnly BookStatus = "reduce_only"
	BookStatusHalted     BookStatus = "halted"
)

// Book is a trading account sub-unit with its own capital, limits and
// status. Status changes are always audit-logged.
type Book struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Type             BookType        `json:"type"`
	CapitalAllocated decimal.Decimal `json:"capitalAllocated"`
	CurrentExposure  decimal.Decimal `json:"currentExposure"`
	MaxExposure      decimal.Decimal `json:"maxExposure"`
	MaxDrawdownLimit decimal.Decimal `json:"maxDrawdownLimit"`
	Status           BookStatus      `json:"status"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// IntentDirection is bullish/bearish, mirrored onto OrderSide by the planner.
type IntentDirection string

const (
	IntentDirectionLong  IntentDirection = "long"
	IntentDirectionShort IntentDirection = "short"
)

// ToSide maps a direction onto the opening order side.
func (d IntentDirection) ToSide() OrderSide {
	if d == IntentDirectionShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// IntentMetadata is a tagged-variant carrier: gates consume the typed
// fields below directly and never inspect Freeform. This replaces an
// open dict-based metadata bag.
type IntentMetadata struct {
	ExpectedEdgeBps decimal.Decimal        `json:"expectedEdgeBps"`
	FeeBps          decimal.Decimal        `json:"feeBps,omitempty"`
	OrderStyle      string                 `json:"orderStyle,omitempty"` // "maker" | "taker"
	FundingRateBps  decimal.Decimal        `json:"fundingRateBps,omitempty"`
	BasisRiskBps    decimal.Decimal        `json:"basisRiskBps,omitempty"`
	StrategyType    string                 `json:"strategyType,omitempty"`
	TenantID        string                 `json:"tenantId,omitempty"`
	ExecutionPlan   *ExecutionPlan         `json:"executionPlan,omitempty"`
	Freeform        map[string]interface{} `json:"freeform,omitempty"`
}

// TradeIntent is a strategy's expression of desire to trade, not yet an
// order. Immutable after allocator scaling.
type TradeIntent struct {
	ID                string          `json:"id"`
	BookID            string          `json:"bookId"`
	StrategyID        string          `json:"strategyId"`
	Instrument        string          `json:"instrument"`
	Direction         IntentDirection `json:"direction"`
	TargetExposureUsd decimal.Decimal `json:"targetExposureUsd"`
	MaxLossUsd        decimal.Decimal `json:"maxLossUsd"`
	InvalidationPrice decimal.Decimal `json:"invalidationPrice,omitempty"`
	HorizonMinutes    int             `json:"horizonMinutes"`
	Confidence        float64         `json:"confidence"`
	Metadata          IntentMetadata  `json:"metadata"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// ExecutionMode distinguishes a single atomic order from a legged sequence.
type ExecutionMode string

const (
	ExecutionModeAtomic ExecutionMode = "atomic"
	ExecutionModeLegged ExecutionMode = "legged"
)

// ExecutionLeg is one venue-side order inside a multi-leg execution plan.
type ExecutionLeg struct {
	LegID          string          `json:"legId"`
	Venue          string          `json:"venue"`
	Instrument     string          `json:"instrument"`
	Side           OrderSide       `json:"side"`
	Size           decimal.Decimal `json:"size"`
	OrderType      OrderType       `json:"orderType"`
	LimitPrice     decimal.Decimal `json:"limitPrice,omitempty"`
	MaxSlippageBps decimal.Decimal `json:"maxSlippageBps,omitempty"`
	LegType        string          `json:"legType,omitempty"`
}

// ExecutionPlan is a single- or multi-leg order sequence with legging
// discipline and unwind-on-fail.
type ExecutionPlan struct {
	ID                 string                 `json:"id"`
	Mode               ExecutionMode          `json:"mode"`
	Legs               []ExecutionLeg         `json:"legs"`
	MaxLegSlippageBps  decimal.Decimal        `json:"maxLegSlippageBps"`
	MaxTimeBetweenLegs time.Duration          `json:"maxTimeBetweenLegsMs"`
	UnwindOnFail       bool                   `json:"unwindOnFail"`
	Metadata           map[string]interface{} `json:"metadata,omitempty"`
}

// Validate rejects an atomic plan with more than one leg up front.
func (p *ExecutionPlan) Validate() error {
	if p.Mode == ExecutionModeAtomic && len(p.Legs) > 1 {
		return ErrAtomicPlanMultiLeg
	}
	return nil
}

// OpportunityType classifies the scanner output.
type OpportunityType string

const (
	OpportunityTypeSpot      OpportunityType = "spot"
	OpportunityTypeFutures   OpportunityType = "futures"
	OpportunityTypeArbitrage OpportunityType = "arbitrage"
)

// Opportunity is a scanner-ranked candidate, possibly with a pre-shaped
// multi-leg plan.
type Opportunity struct {
	ID              string          `json:"id"`
	Type            OpportunityType `json:"type"`
	Instrument      string          `json:"instrument"`
	Direction       IntentDirection `json:"direction"`
	Venue           string          `json:"venue"`
	Confidence      float64         `json:"confidence"`
	ExpectedEdgeBps decimal.Decimal `json:"expectedEdgeBps"`
	HorizonMinutes  int             `json:"horizonMinutes"`
	DataQuality     DataQuality     `json:"dataQuality"`
	SignalStack     []string        `json:"signalStack,omitempty"`
	ExecutionPlan   *ExecutionPlan  `json:"executionPlan,omitempty"`
	Explanation     string          `json:"explanation"`
	StrategyID      string          `json:"strategyId"`
	Metadata        IntentMetadata  `json:"metadata,omitempty"`
}

// Score ranks opportunities by expectedEdgeBps * confidence, descending.
func (o *Opportunity) Score() decimal.Decimal {
	return o.ExpectedEdgeBps.Mul(decimal.NewFromFloat(o.Confidence))
}

// VenueStatus is the adapter's observed health.
type VenueStatus string

const (
	VenueStatusHealthy  VenueStatus = "healthy"
	VenueStatusDegraded VenueStatus = "degraded"
	VenueStatusOffline  VenueStatus = "offline"
)

// VenueHealth is produced by a venue adapter's healthCheck() and updated by
// the health tick loop.
type VenueHealth struct {
	VenueID              string      `json:"venueId"`
	Name                 string      `json:"name"`
	Status               VenueStatus `json:"status"`
	LatencyMs            int64       `json:"latencyMs"`
	ErrorRate            float64     `json:"errorRate"`
	LastHeartbeat        time.Time   `json:"lastHeartbeat"`
	IsEnabled            bool        `json:"isEnabled"`
	SupportedInstruments []string    `json:"supportedInstruments"`
	ConsecutiveErrors    int         `json:"consecutiveErrors"`
}

// DataQuality tags a market snapshot's provenance.
type DataQuality string

const (
	DataQualityRealtime    DataQuality = "realtime"
	DataQualityDelayed     DataQuality = "delayed"
	DataQualityDerived     DataQuality = "derived"
	DataQualitySimulated   DataQuality = "simulated"
	DataQualityUnavailable DataQuality = "unavailable"
)

// OrderBookLevel is one price/size rung of an L2 book.
type OrderBookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// L2Book is a depth snapshot, optionally attached to a MarketSnapshot.
type L2Book struct {
	Bids []OrderBookLevel `json:"bids"`
	Asks []OrderBookLevel `json:"asks"`
}

// MarketSnapshot is the market-data service's per-(venue,instrument) record
// and the pub/sub wire payload.
type MarketSnapshot struct {
	Venue       string          `json:"venue"`
	Instrument  string          `json:"instrument"`
	Bid         decimal.Decimal `json:"bid"`
	Ask         decimal.Decimal `json:"ask"`
	Last        decimal.Decimal `json:"last"`
	Mid         decimal.Decimal `json:"mid"`
	Spread      decimal.Decimal `json:"spread"`
	SpreadBps   decimal.Decimal `json:"spreadBps"`
	BidSize     decimal.Decimal `json:"bidSize,omitempty"`
	AskSize     decimal.Decimal `json:"askSize,omitempty"`
	Volume24h   decimal.Decimal `json:"volume24h,omitempty"`
	EventTime   time.Time       `json:"eventTime"`
	ReceiveTime time.Time       `json:"receiveTime"`
	DataQuality DataQuality     `json:"dataQuality"`
	L2          *L2Book         `json:"l2,omitempty"`
}

// Recompute derives mid/spread/spreadBps from bid/ask.
func (m *MarketSnapshot) Recompute() {
	if m.Bid.IsZero() && m.Ask.IsZero() {
		return
	}
	m.Mid = m.Bid.Add(m.Ask).Div(decimal.NewFromInt(2))
	m.Spread = m.Ask.Sub(m.Bid)
	if !m.Mid.IsZero() {
		m.SpreadBps = m.Spread.Div(m.Mid).Mul(decimal.NewFromInt(10000))
	}
}

// OHLCV is one bar of historical data consumed by the backtester.
type OHLCV struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// EquityPoint is one sample of the backtest equity curve.
type EquityPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	Equity    decimal.Decimal `json:"equity"`
	Cash      decimal.Decimal `json:"cash"`
	Drawdown  decimal.Decimal `json:"drawdown"`
}

// TradeRecord is a closed (or still-open, Pnl nil) backtest trade.
type TradeRecord struct {
	Instrument  string           `json:"instrument"`
	Side        OrderSide        `json:"side"`
	EntryTime   time.Time        `json:"entryTime"`
	ExitTime    time.Time        `json:"exitTime,omitempty"`
	EntryPrice  decimal.Decimal  `json:"entryPrice"`
	ExitPrice   decimal.Decimal  `json:"exitPrice,omitempty"`
	Size        decimal.Decimal  `json:"size"`
	Pnl         *decimal.Decimal `json:"pnl"`
	EntryFee    decimal.Decimal  `json:"entryFee"`
	ExitFee     decimal.Decimal  `json:"exitFee"`
	Slippage    decimal.Decimal  `json:"slippage"`
	DurationHrs float64          `json:"durationHours"`
}

// PerformanceMetrics is the output of internal/metrics. Every field is
// guaranteed finite; NaN/Inf intermediates are replaced with 0.
type PerformanceMetrics struct {
	TotalReturn          decimal.Decimal `json:"totalReturn"`
	AnnualizedReturn     decimal.Decimal `json:"annualizedReturn"`
	SharpeRatio          decimal.Decimal `json:"sharpeRatio"`
	SortinoRatio         decimal.Decimal `json:"sortinoRatio"`
	MaxDrawdown          decimal.Decimal `json:"maxDrawdown"`
	MaxDrawdownDurationD int             `json:"maxDrawdownDurationDays"`
	CalmarRatio          decimal.Decimal `json:"calmarRatio"`
	VaR95                decimal.Decimal `json:"var95"`
	CVaR95               decimal.Decimal `json:"cvar95"`
	VaR99                decimal.Decimal `json:"var99"`
	CVaR99               decimal.Decimal `json:"cvar99"`
	WinRate              decimal.Decimal `json:"winRate"`
	WinningTrades        int             `json:"winningTrades"`
	LosingTrades         int             `json:"losingTrades"`
	GrossProfit          decimal.Decimal `json:"grossProfit"`
	GrossLoss            decimal.Decimal `json:"grossLoss"`
	ProfitFactor         decimal.Decimal `json:"profitFactor"`
	AvgWin               decimal.Decimal `json:"avgWin"`
	AvgLoss              decimal.Decimal `json:"avgLoss"`
	LargestWin           decimal.Decimal `json:"largestWin"`
	LargestLoss          decimal.Decimal `json:"largestLoss"`
	AvgDurationHours     float64         `json:"avgDurationHours"`
	TotalTrades          int             `json:"totalTrades"`
}

// CircuitBreaker is a process-wide, operator-cleared flag.
type CircuitBreaker struct {
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	Source      string     `json:"source"`
	Reason      string     `json:"reason"`
	ActivatedAt time.Time  `json:"activatedAt"`
	ClearedAt   *time.Time `json:"clearedAt,omitempty"`
}

// AlertSeverity grades an operator-facing alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
	SeverityInfo     AlertSeverity = "info"
)

// Alert is an operator-facing notification, persisted to the alerts table.
type Alert struct {
	ID        string                 `json:"id"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  AlertSeverity          `json:"severity"`
	Source    string                 `json:"source"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// AuditRecord is an append-only log row covering every state transition the
// engine makes (order, book, circuit-breaker, reconciliation).
type AuditRecord struct {
	ID           string                 `json:"id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resourceType"`
	ResourceID   string                 `json:"resourceId"`
	BookID       string                 `json:"bookId,omitempty"`
	Severity     AlertSeverity          `json:"severity"`
	BeforeState  map[string]interface{} `json:"beforeState,omitempty"`
	AfterState   map[string]interface{} `json:"afterState,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// StrategyPosition tracks a basis strategy's paired spot/derivative legs.
type StrategyPosition struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	StrategyID    string          `json:"strategyId"`
	InstrumentID  string          `json:"instrumentId"`
	SpotPosition  decimal.Decimal `json:"spotPosition"`
	DerivPosition decimal.Decimal `json:"derivPosition"`
	HedgedRatio   decimal.Decimal `json:"hedgedRatio"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
