// Package marketdata implements the §4.C2 market-data service: a
// multi-venue (venue, instrument) -> MarketSnapshot cache with
// staleness detection and best-effort pub/sub fanout. Generalises the
// source repo's single-Binance MarketDataService into a venue-keyed store.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Publisher fans out a snapshot update to subscribers. Implementations
// (e.g. the websocket hub) must not block the caller; errors are logged
// and swallowed, never propagated back into the hot update path.
type Publisher interface {
	Publish(topic string, snapshot types.MarketSnapshot) error
}

// Service is the multi-venue market-data cache.
type Service struct {
	logger         *zap.Logger
	publisher      Publisher
	staleThreshold time.Duration

	mu        sync.RWMutex
	snapshots map[string]types.MarketSnapshot // key: venue + "/" + instrument
	heartbeat map[string]time.Time

	volMu sync.RWMutex
	vol   map[string]decimal.Decimal // trailing realised-volatility estimate in bps, keyed the same way
}

// SetPublisher wires the fanout target after construction, for the
// common case where the publisher (the API websocket hub) itself depends
// on a component built after the market-data service.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher = p
}

// New builds a market-data service. staleThreshold defaults to 30s.
func New(logger *zap.Logger, publisher Publisher, staleThreshold time.Duration) *Service {
	if staleThreshold <= 0 {
		staleThreshold = 30 * time.Second
	}
	return &Service{
		logger: logger, publisher: publisher, staleThreshold: staleThreshold,
		snapshots: make(map[string]types.MarketSnapshot),
		heartbeat: make(map[string]time.Time),
		vol:       make(map[string]decimal.Decimal),
	}
}

func key(venue, instrument string) string { return venue + "/" + instrument }

// UpdateQuote ingests a new bid/ask quote, recomputes mid/spread, marks
// the heartbeat fresh, and publishes a best-effort fanout.
func (s *Service) UpdateQuote(venue, instrument string, bid, ask decimal.Decimal, quality types.DataQuality) {
	k := key(venue, instrument)

	s.mu.Lock()
	snapshot := s.snapshots[k]
	snapshot.Venue = venue
	snapshot.Instrument = instrument
	snapshot.Bid = bid
	snapshot.Ask = ask
	snapshot.Last = ask
	snapshot.EventTime = time.Now()
	snapshot.ReceiveTime = time.Now()
	snapshot.DataQuality = quality
	snapshot.Recompute()
	s.snapshots[k] = snapshot
	s.heartbeat[k] = time.Now()
	s.mu.Unlock()

	if s.publisher != nil {
		if err := s.publisher.Publish(k, snapshot); err != nil {
			s.logger.Warn("market data publish failed", zap.String("key", k), zap.Error(err))
		}
	}
}

// UpdateOrderBook attaches an L2 snapshot to an existing quote record.
func (s *Service) UpdateOrderBook(venue, instrument string, book types.L2Book) {
	k := key(venue, instrument)
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshots[k]
	snapshot.L2 = &book
	s.snapshots[k] = snapshot
	s.heartbeat[k] = time.Now()
}

// UpdateVolume sets the rolling 24h volume used by the cost model's
// market-impact estimate.
func (s *Service) UpdateVolume(venue, instrument string, volume24h decimal.Decimal) {
	k := key(venue, instrument)
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.snapshots[k]
	snapshot.Volume24h = volume24h
	s.snapshots[k] = snapshot
}

// UpdateVolatility sets a trailing bps volatility estimate for a venue
// /instrument, consumed by the cost model's slippage estimate.
func (s *Service) UpdateVolatility(venue, instrument string, bps decimal.Decimal) {
	s.volMu.Lock()
	defer s.volMu.Unlock()
	s.vol[key(venue, instrument)] = bps
}

// Volatility returns the trailing bps volatility estimate, or zero if
// none has been recorded.
func (s *Service) Volatility(venue, instrument string) decimal.Decimal {
	s.volMu.RLock()
	defer s.volMu.RUnlock()
	return s.vol[key(venue, instrument)]
}

// GetSnapshot returns the current snapshot for a venue/instrument,
// re-tagging it Unavailable if its heartbeat has gone stale.
func (s *Service) GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool) {
	k := key(venue, instrument)
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[k]
	if !ok {
		return types.MarketSnapshot{}, false
	}
	if hb, ok := s.heartbeat[k]; ok && time.Since(hb) > s.staleThreshold {
		snapshot.DataQuality = types.DataQualityUnavailable
	}
	return snapshot, true
}

// CheckDataQuality reports the current quality tag without mutating state;
// a venue/instrument pair never seen reports unavailable.
func (s *Service) CheckDataQuality(venue, instrument string) types.DataQuality {
	snapshot, ok := s.GetSnapshot(venue, instrument)
	if !ok {
		return types.DataQualityUnavailable
	}
	return snapshot.DataQuality
}

// Degraded reports whether any tracked venue/instrument pair is currently
// stale, satisfying allocator.DataQualitySource.
func (s *Service) Degraded(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, hb := range s.heartbeat {
		if time.Since(hb) > s.staleThreshold {
			s.logger.Debug("market data stale", zap.String("key", k))
			return true, nil
		}
	}
	return false, nil
}
