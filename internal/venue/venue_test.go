package venue

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/engine/pkg/types"
)

type fakePrices struct{ snapshot types.MarketSnapshot }

func (f fakePrices) GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool) {
	return f.snapshot, true
}

func TestPaperAdapterFillsAreDeterministicUnderFixedSeed(t *testing.T) {
	prices := fakePrices{snapshot: types.MarketSnapshot{Mid: decimal.NewFromInt(100)}}
	cfg := DefaultPaperConfig("test-venue", 42)

	a1 := NewPaperAdapter(cfg, prices)
	a2 := NewPaperAdapter(cfg, prices)

	fill1, err := a1.PlaceOrder(context.Background(), "BTC-USD", types.OrderSideBuy, decimal.NewFromInt(1), types.OrderTypeMarket, decimal.Zero)
	require.NoError(t, err)
	fill2, err := a2.PlaceOrder(context.Background(), "BTC-USD", types.OrderSideBuy, decimal.NewFromInt(1), types.OrderTypeMarket, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, fill1.FilledPrice.Equal(fill2.FilledPrice), "same seed must yield identical simulated fill price")
	assert.Equal(t, fill1.FilledSize.String(), fill2.FilledSize.String())
	assert.Equal(t, fill1.LatencyMs, fill2.LatencyMs)
}

func TestPaperAdapterBuySlippageRaisesPriceAboveMid(t *testing.T) {
	prices := fakePrices{snapshot: types.MarketSnapshot{Mid: decimal.NewFromInt(100)}}
	a := NewPaperAdapter(DefaultPaperConfig("v", 7), prices)

	fill, err := a.PlaceOrder(context.Background(), "BTC-USD", types.OrderSideBuy, decimal.NewFromInt(1), types.OrderTypeMarket, decimal.Zero)

	require.NoError(t, err)
	assert.True(t, fill.FilledPrice.GreaterThanOrEqual(decimal.NewFromInt(100)), "buy slippage must not improve fill price below mid")
}

func TestPaperAdapterSellSlippageLowersPriceBelowMid(t *testing.T) {
	prices := fakePrices{snapshot: types.MarketSnapshot{Mid: decimal.NewFromInt(100)}}
	a := NewPaperAdapter(DefaultPaperConfig("v", 7), prices)

	fill, err := a.PlaceOrder(context.Background(), "BTC-USD", types.OrderSideSell, decimal.NewFromInt(1), types.OrderTypeMarket, decimal.Zero)

	require.NoError(t, err)
	assert.True(t, fill.FilledPrice.LessThanOrEqual(decimal.NewFromInt(100)))
}

func TestPaperAdapterMissingSnapshotErrors(t *testing.T) {
	a := NewPaperAdapter(DefaultPaperConfig("v", 1), fakeMissingPrices{})

	_, err := a.PlaceOrder(context.Background(), "BTC-USD", types.OrderSideBuy, decimal.NewFromInt(1), types.OrderTypeMarket, decimal.Zero)

	assert.Error(t, err)
}

type fakeMissingPrices struct{}

func (fakeMissingPrices) GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool) {
	return types.MarketSnapshot{}, false
}

func TestPaperAdapterHealthCheckReportsHealthy(t *testing.T) {
	a := NewPaperAdapter(DefaultPaperConfig("v", 1), fakePrices{})

	h, err := a.HealthCheck(context.Background())

	require.NoError(t, err)
	assert.Equal(t, types.VenueStatusHealthy, h.Status)
	assert.True(t, h.IsEnabled)
}
