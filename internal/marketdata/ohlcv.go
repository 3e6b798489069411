package marketdata

import (
	"context"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/atlas-desktop/engine/pkg/types"
)

// OHLCVCache is an in-memory historical-bar cache keyed by
// instrument/timeframe, msgpack-encoded so a bar series can be persisted
// to or loaded from the store's blob columns compactly. Satisfies
// internal/scanner.OHLCVSource.
type OHLCVCache struct {
	mu   sync.RWMutex
	bars map[string][]types.OHLCV
}

// NewOHLCVCache builds an empty bar cache.
func NewOHLCVCache() *OHLCVCache {
	return &OHLCVCache{bars: make(map[string][]types.OHLCV)}
}

func ohlcvKey(instrument string, tf types.Timeframe) string { return instrument + "/" + string(tf) }

// Put replaces the cached bar series for instrument/tf.
func (c *OHLCVCache) Put(instrument string, tf types.Timeframe, bars []types.OHLCV) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars[ohlcvKey(instrument, tf)] = bars
}

// Append adds new bars to the cached series, keeping it sorted is the
// caller's responsibility (bars normally arrive in time order already).
func (c *OHLCVCache) Append(instrument string, tf types.Timeframe, bar types.OHLCV) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := ohlcvKey(instrument, tf)
	c.bars[k] = append(c.bars[k], bar)
}

// LoadOHLCV returns the most recent lookback bars for instrument/tf.
func (c *OHLCVCache) LoadOHLCV(ctx context.Context, instrument string, tf types.Timeframe, lookback int) ([]types.OHLCV, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	series, ok := c.bars[ohlcvKey(instrument, tf)]
	if !ok {
		return nil, fmt.Errorf("no cached bars for %s/%s", instrument, tf)
	}
	if len(series) <= lookback {
		return series, nil
	}
	return series[len(series)-lookback:], nil
}

// Encode serialises a bar series to msgpack for compact storage.
func Encode(bars []types.OHLCV) ([]byte, error) {
	return msgpack.Marshal(bars)
}

// Decode deserialises a msgpack-encoded bar series.
func Decode(blob []byte) ([]types.OHLCV, error) {
	var bars []types.OHLCV
	if err := msgpack.Unmarshal(blob, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}
