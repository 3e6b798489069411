package adapters

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/internal/planner"
	"github.com/atlas-desktop/engine/internal/reconcile"
	"github.com/atlas-desktop/engine/pkg/types"
)

// OnChainConfig configures an on-chain perpetuals venue (a DEX perp
// market identified by its contract address rather than a REST endpoint).
type OnChainConfig struct {
	VenueID         string
	MarketAddress   common.Address
	RPCEndpoint     string
	TraderAddress   common.Address
}

// OnChainPerpAdapter represents a decentralised perpetuals venue whose
// orders are signed transactions against a market contract rather than a
// REST call. It uses go-ethereum's address/hex types to keep contract
// identifiers checksum-validated at the type level instead of passing
// raw strings around, matching how the pack's on-chain examples type
// addresses.
type OnChainPerpAdapter struct {
	cfg    OnChainConfig
	logger *zap.Logger

	consecutiveErrors int
}

// NewOnChainPerpAdapter builds an on-chain perpetuals adapter.
func NewOnChainPerpAdapter(cfg OnChainConfig, logger *zap.Logger) *OnChainPerpAdapter {
	return &OnChainPerpAdapter{cfg: cfg, logger: logger}
}

func (a *OnChainPerpAdapter) Connect(ctx context.Context) error    { return nil }
func (a *OnChainPerpAdapter) Disconnect(ctx context.Context) error { return nil }

// PlaceOrder submits a taker order against the perp market contract. The
// venue order id is the tx hash, hex-encoded per hexutil convention rather
// than a venue-assigned numeric id.
func (a *OnChainPerpAdapter) PlaceOrder(ctx context.Context, instrument string, side types.OrderSide, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (planner.Fill, error) {
	start := time.Now()

	// Production wiring builds and signs a transaction against
	// cfg.MarketAddress via an RPC client; abstracted here since the ABI
	// is market-specific.
	txHash := hexutil.Encode([]byte(fmt.Sprintf("%s-%s-%d", a.cfg.MarketAddress.Hex(), instrument, time.Now().UnixNano())))

	a.consecutiveErrors = 0
	return planner.Fill{
		VenueOrderID: txHash,
		Status:       types.OrderStatusFilled,
		FilledSize:   size,
		FilledPrice:  limitPrice,
		LatencyMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (a *OnChainPerpAdapter) CancelOrder(ctx context.Context, venueOrderID string) error {
	return nil // on-chain fills are atomic with submission; nothing to cancel post-fill
}

func (a *OnChainPerpAdapter) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (a *OnChainPerpAdapter) GetPositions(ctx context.Context) ([]reconcile.VenuePositionView, error) {
	return nil, nil
}

func (a *OnChainPerpAdapter) GetOpenOrders(ctx context.Context) (map[string]reconcile.VenueOrderView, error) {
	return map[string]reconcile.VenueOrderView{}, nil
}

func (a *OnChainPerpAdapter) GetTicker(ctx context.Context, instrument string) (types.MarketSnapshot, error) {
	return types.MarketSnapshot{Venue: a.cfg.VenueID, Instrument: instrument, DataQuality: types.DataQualityDerived, ReceiveTime: time.Now()}, nil
}

func (a *OnChainPerpAdapter) HealthCheck(ctx context.Context) (types.VenueHealth, error) {
	status := types.VenueStatusHealthy
	if a.consecutiveErrors >= 5 {
		status = types.VenueStatusOffline
	} else if a.consecutiveErrors >= 2 {
		status = types.VenueStatusDegraded
	}
	return types.VenueHealth{VenueID: a.cfg.VenueID, Status: status, LastHeartbeat: time.Now(), IsEnabled: true, ConsecutiveErrors: a.consecutiveErrors}, nil
}
