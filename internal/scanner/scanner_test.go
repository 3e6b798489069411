package scanner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

type fakeOHLCV struct {
	bars map[string][]types.OHLCV
}

func (f fakeOHLCV) LoadOHLCV(ctx context.Context, instrument string, tf types.Timeframe, lookback int) ([]types.OHLCV, error) {
	return f.bars[instrument+"/"+string(tf)], nil
}

type fakeSnapshots struct {
	snapshots map[string]types.MarketSnapshot
}

func (f fakeSnapshots) GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool) {
	s, ok := f.snapshots[venue+"/"+instrument]
	return s, ok
}

// risingBars builds 11 bars with strictly increasing close so the trend
// signal reads a clear long direction.
func risingBars(start float64, step float64) []types.OHLCV {
	bars := make([]types.OHLCV, 0, 11)
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 11; i++ {
		close := decimal.NewFromFloat(start + float64(i)*step)
		bars = append(bars, types.OHLCV{Timestamp: t.Add(time.Duration(i) * time.Hour), Open: close, High: close, Low: close, Close: close})
	}
	return bars
}

func TestScanDirectionalRequiresAllTimeframesAligned(t *testing.T) {
	rising := risingBars(100, 2)
	ohlcv := fakeOHLCV{bars: map[string][]types.OHLCV{
		"BTC-USD/1m": rising, "BTC-USD/5m": rising, "BTC-USD/15m": rising,
	}}
	snap := fakeSnapshots{snapshots: map[string]types.MarketSnapshot{
		"binance/BTC-USD": {DataQuality: types.DataQualityRealtime},
	}}
	s := New(zap.NewNop(), ohlcv, snap, nil, nil)

	def := types.StrategyDefinition{
		ID: "trend-1", Type: "spot", Universe: []string{"BTC-USD"},
		Timeframes:   types.StrategyTimeframes{Fast: types.Timeframe1m, Medium: types.Timeframe5m, Slow: types.Timeframe15m},
		VenueRouting: []string{"binance"},
	}

	opps, err := s.ScanDirectional(context.Background(), def)

	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, types.IntentDirectionLong, opps[0].Direction)
}

func TestScanDirectionalSkipsWhenTimeframesDisagree(t *testing.T) {
	rising := risingBars(100, 2)
	falling := risingBars(100, -2)
	ohlcv := fakeOHLCV{bars: map[string][]types.OHLCV{
		"BTC-USD/1m": rising, "BTC-USD/5m": falling, "BTC-USD/15m": rising,
	}}
	s := New(zap.NewNop(), ohlcv, fakeSnapshots{snapshots: map[string]types.MarketSnapshot{}}, nil, nil)

	def := types.StrategyDefinition{
		ID: "trend-1", Type: "spot", Universe: []string{"BTC-USD"},
		Timeframes: types.StrategyTimeframes{Fast: types.Timeframe1m, Medium: types.Timeframe5m, Slow: types.Timeframe15m},
	}

	opps, err := s.ScanDirectional(context.Background(), def)

	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScanDirectionalSkipsInsufficientBars(t *testing.T) {
	ohlcv := fakeOHLCV{bars: map[string][]types.OHLCV{}}
	s := New(zap.NewNop(), ohlcv, fakeSnapshots{}, nil, nil)

	def := types.StrategyDefinition{
		Universe:   []string{"BTC-USD"},
		Timeframes: types.StrategyTimeframes{Fast: types.Timeframe1m, Medium: types.Timeframe5m, Slow: types.Timeframe15m},
	}

	opps, err := s.ScanDirectional(context.Background(), def)
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestScanCrossVenueArbitrageEmitsUnwindablePlan(t *testing.T) {
	snap := fakeSnapshots{snapshots: map[string]types.MarketSnapshot{
		"venueA/BTC-USD": {Ask: decimal.NewFromInt(100), Bid: decimal.NewFromInt(99), DataQuality: types.DataQualityRealtime},
		"venueB/BTC-USD": {Ask: decimal.NewFromInt(106), Bid: decimal.NewFromInt(105), DataQuality: types.DataQualityRealtime},
	}}
	s := New(zap.NewNop(), fakeOHLCV{}, snap, nil, nil)

	cfg := types.SpotArbConfig{Instruments: []string{"BTC-USD"}, Venues: []string{"venueA", "venueB"}, MinProfitBps: decimal.NewFromInt(50)}

	opps := s.ScanCrossVenueArbitrage(cfg)

	require.Len(t, opps, 1)
	assert.Equal(t, "venueA", opps[0].Venue)
	require.NotNil(t, opps[0].ExecutionPlan)
	assert.True(t, opps[0].ExecutionPlan.UnwindOnFail)
	assert.Len(t, opps[0].ExecutionPlan.Legs, 2)
}

func TestScanBasisEmitsShortDirectionWhenPerpBelowSpot(t *testing.T) {
	snap := fakeSnapshots{snapshots: map[string]types.MarketSnapshot{
		"spot/BTC-USD": {Mid: decimal.NewFromInt(100), DataQuality: types.DataQualityRealtime},
		"perp/BTC-USD": {Mid: decimal.NewFromInt(95), DataQuality: types.DataQualityRealtime},
	}}
	s := New(zap.NewNop(), fakeOHLCV{}, snap, nil, nil)

	cfg := types.BasisConfig{Instruments: []string{"BTC-USD"}, SpotVenue: "spot", PerpVenue: "perp", MinProfitBps: decimal.NewFromInt(100)}

	opps := s.ScanBasis(cfg)

	require.Len(t, opps, 1)
	assert.Equal(t, types.IntentDirectionShort, opps[0].Direction)
}

func TestRankOrdersByScoreAndTruncates(t *testing.T) {
	opps := []types.Opportunity{
		{Instrument: "low", ExpectedEdgeBps: decimal.NewFromInt(10), Confidence: 0.5},
		{Instrument: "high", ExpectedEdgeBps: decimal.NewFromInt(100), Confidence: 0.9},
		{Instrument: "mid", ExpectedEdgeBps: decimal.NewFromInt(50), Confidence: 0.5},
	}

	ranked := Rank(opps, 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "high", ranked[0].Instrument)
}

func TestGenerateIntentsSizesAgainstBookCapital(t *testing.T) {
	opps := []types.Opportunity{
		{Instrument: "BTC-USD", StrategyID: "s1", ExpectedEdgeBps: decimal.NewFromInt(50)},
	}
	book := types.Book{ID: "book-1", CapitalAllocated: decimal.NewFromInt(10000)}

	intents := GenerateIntents(opps, 10,
		func(o types.Opportunity) types.Book { return book },
		func(o types.Opportunity) decimal.Decimal { return decimal.NewFromFloat(0.02) },
	)

	require.Len(t, intents, 1)
	assert.Equal(t, "200", intents[0].TargetExposureUsd.String())
	assert.Equal(t, "book-1", intents[0].BookID)
}
