package marketdata

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

type fakePublisher struct {
	topic    string
	snapshot types.MarketSnapshot
	err      error
	calls    int
}

func (f *fakePublisher) Publish(topic string, snapshot types.MarketSnapshot) error {
	f.topic = topic
	f.snapshot = snapshot
	f.calls++
	return f.err
}

func TestUpdateQuoteRecomputesMidAndSpreadBps(t *testing.T) {
	pub := &fakePublisher{}
	svc := New(zap.NewNop(), pub, 0)

	svc.UpdateQuote("binance", "BTC-USD", decimal.NewFromFloat(100), decimal.NewFromFloat(101), types.DataQualityRealtime)

	snap, ok := svc.GetSnapshot("binance", "BTC-USD")
	require.True(t, ok)
	assert.True(t, snap.Mid.Equal(decimal.NewFromFloat(100.5)))
	assert.True(t, snap.Spread.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "binance/BTC-USD", pub.topic)
}

func TestGetSnapshotMissingReturnsFalse(t *testing.T) {
	svc := New(zap.NewNop(), nil, 0)

	_, ok := svc.GetSnapshot("binance", "ETH-USD")

	assert.False(t, ok)
}

func TestGetSnapshotMarksUnavailableAfterStaleThreshold(t *testing.T) {
	svc := New(zap.NewNop(), nil, 10*time.Millisecond)
	svc.UpdateQuote("binance", "BTC-USD", decimal.NewFromInt(100), decimal.NewFromInt(101), types.DataQualityRealtime)

	time.Sleep(25 * time.Millisecond)

	snap, ok := svc.GetSnapshot("binance", "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, types.DataQualityUnavailable, snap.DataQuality)
}

func TestCheckDataQualityReportsUnavailableWhenNeverSeen(t *testing.T) {
	svc := New(zap.NewNop(), nil, 0)

	q := svc.CheckDataQuality("binance", "BTC-USD")

	assert.Equal(t, types.DataQualityUnavailable, q)
}

func TestDegradedTrueWhenAnyPairStale(t *testing.T) {
	svc := New(zap.NewNop(), nil, 10*time.Millisecond)
	svc.UpdateQuote("binance", "BTC-USD", decimal.NewFromInt(100), decimal.NewFromInt(101), types.DataQualityRealtime)

	time.Sleep(25 * time.Millisecond)

	degraded, err := svc.Degraded(context.Background())
	require.NoError(t, err)
	assert.True(t, degraded)
}

func TestDegradedFalseWhenFresh(t *testing.T) {
	svc := New(zap.NewNop(), nil, time.Hour)
	svc.UpdateQuote("binance", "BTC-USD", decimal.NewFromInt(100), decimal.NewFromInt(101), types.DataQualityRealtime)

	degraded, err := svc.Degraded(context.Background())
	require.NoError(t, err)
	assert.False(t, degraded)
}

func TestUpdateVolatilityRoundTrips(t *testing.T) {
	svc := New(zap.NewNop(), nil, 0)

	svc.UpdateVolatility("binance", "BTC-USD", decimal.NewFromInt(35))

	assert.True(t, svc.Volatility("binance", "BTC-USD").Equal(decimal.NewFromInt(35)))
}

func TestVolatilityDefaultsZeroWhenUnset(t *testing.T) {
	svc := New(zap.NewNop(), nil, 0)

	assert.True(t, svc.Volatility("binance", "ETH-USD").IsZero())
}

func TestSetPublisherSwapsFanoutTarget(t *testing.T) {
	first := &fakePublisher{}
	second := &fakePublisher{}
	svc := New(zap.NewNop(), first, 0)

	svc.SetPublisher(second)
	svc.UpdateQuote("binance", "BTC-USD", decimal.NewFromInt(100), decimal.NewFromInt(101), types.DataQualityRealtime)

	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}
