// Package venue defines the §4.C3 venue adapter capability-set interface
// and a deterministic paper-trading simulator. Generalises the source
// repo's ExchangeAdapter/simulateExecution pair (internal/execution) into
// an explicit interface every real venue adapter (internal/venue/adapters)
// implements, replacing the inheritance-based exchange client hierarchy.
package venue

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/engine/internal/planner"
	"github.com/atlas-desktop/engine/internal/reconcile"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Adapter is the full capability set a venue integration provides. It
// satisfies planner.Adapter (PlaceOrder) for order submission and adds
// the connection/health/reconciliation surface the supervisor and
// reconciler need.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	PlaceOrder(ctx context.Context, instrument string, side types.OrderSide, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (planner.Fill, error)
	CancelOrder(ctx context.Context, venueOrderID string) error
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	GetPositions(ctx context.Context) ([]reconcile.VenuePositionView, error)
	GetOpenOrders(ctx context.Context) (map[string]reconcile.VenueOrderView, error)
	GetTicker(ctx context.Context, instrument string) (types.MarketSnapshot, error)
	HealthCheck(ctx context.Context) (types.VenueHealth, error)
}

var _ planner.Adapter = Adapter(nil)

// PaperConfig configures the deterministic paper simulator's synthetic
// latency and slippage distributions.
type PaperConfig struct {
	VenueID         string
	MinLatencyMs    int64
	MaxLatencyMs    int64
	MinSlippageBps  float64
	MaxSlippageBps  float64
	PartialFillProb float64 // chance of a partial fill landing in [0.5, 0.95] of requested size
	Seed            int64
}

// DefaultPaperConfig mirrors the source repo's simulateExecution defaults:
// 20-100ms latency, 5-20bps slippage, 10% partial-fill chance.
func DefaultPaperConfig(venueID string, seed int64) PaperConfig {
	return PaperConfig{
		VenueID: venueID, MinLatencyMs: 20, MaxLatencyMs: 100,
		MinSlippageBps: 5, MaxSlippageBps: 20, PartialFillProb: 0.10, Seed: seed,
	}
}

// PriceSource resolves the current mid price the paper adapter fills
// against.
type PriceSource interface {
	GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool)
}

// PaperAdapter simulates venue fills deterministically from a seeded RNG so
// backtest/paper-trading runs are reproducible.
type PaperAdapter struct {
	cfg    PaperConfig
	prices PriceSource
	rng    *rand.Rand
	orders map[string]reconcile.VenueOrderView
	seq    int
}

// NewPaperAdapter builds a paper-trading venue simulator.
func NewPaperAdapter(cfg PaperConfig, prices PriceSource) *PaperAdapter {
	seed := cfg.Seed
	if seed == 0 {
		seed = 1
	}
	return &PaperAdapter{cfg: cfg, prices: prices, rng: rand.New(rand.NewSource(seed)), orders: make(map[string]reconcile.VenueOrderView)}
}

func (p *PaperAdapter) Connect(ctx context.Context) error    { return nil }
func (p *PaperAdapter) Disconnect(ctx context.Context) error { return nil }

func (p *PaperAdapter) PlaceOrder(ctx context.Context, instrument string, side types.OrderSide, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (planner.Fill, error) {
	snapshot, ok := p.prices.GetSnapshot(p.cfg.VenueID, instrument)
	if !ok {
		return planner.Fill{}, context.DeadlineExceeded
	}
	price := snapshot.Mid
	if price.IsZero() {
		price = snapshot.Last
	}

	latencyMs := p.cfg.MinLatencyMs + int64(p.rng.Float64()*float64(p.cfg.MaxLatencyMs-p.cfg.MinLatencyMs))
	slippageBps := p.cfg.MinSlippageBps + p.rng.Float64()*(p.cfg.MaxSlippageBps-p.cfg.MinSlippageBps)
	slippageFactor := decimal.NewFromFloat(1 + slippageBps/10000)
	if side == types.OrderSideSell {
		slippageFactor = decimal.NewFromFloat(1 - slippageBps/10000)
	}
	filledPrice := price.Mul(slippageFactor)

	filledSize := size
	if p.rng.Float64() < p.cfg.PartialFillProb {
		fraction := 0.5 + p.rng.Float64()*0.45
		filledSize = size.Mul(decimal.NewFromFloat(fraction))
	}

	p.seq++
	venueOrderID := p.cfg.VenueID + "-sim-" + time.Now().Format("150405.000000") + "-" + itoa(p.seq)
	status := types.OrderStatusFilled
	if filledSize.LessThan(size) {
		status = types.OrderStatusPartial
	}
	p.orders[venueOrderID] = reconcile.VenueOrderView{VenueOrderID: venueOrderID, Status: status, FilledSize: filledSize, FilledPrice: filledPrice}

	return planner.Fill{VenueOrderID: venueOrderID, Status: status, FilledSize: filledSize, FilledPrice: filledPrice, LatencyMs: latencyMs}, nil
}

func (p *PaperAdapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	if o, ok := p.orders[venueOrderID]; ok {
		o.Status = types.OrderStatusCancelled
		p.orders[venueOrderID] = o
	}
	return nil
}

func (p *PaperAdapter) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (p *PaperAdapter) GetPositions(ctx context.Context) ([]reconcile.VenuePositionView, error) {
	return nil, nil
}

func (p *PaperAdapter) GetOpenOrders(ctx context.Context) (map[string]reconcile.VenueOrderView, error) {
	out := make(map[string]reconcile.VenueOrderView, len(p.orders))
	for k, v := range p.orders {
		out[k] = v
	}
	return out, nil
}

func (p *PaperAdapter) GetTicker(ctx context.Context, instrument string) (types.MarketSnapshot, error) {
	snapshot, _ := p.prices.GetSnapshot(p.cfg.VenueID, instrument)
	return snapshot, nil
}

func (p *PaperAdapter) HealthCheck(ctx context.Context) (types.VenueHealth, error) {
	return types.VenueHealth{VenueID: p.cfg.VenueID, Status: types.VenueStatusHealthy, IsEnabled: true, LastHeartbeat: time.Now()}, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
