// Package scanner implements the §4.C5 opportunity scanner: directional
// signals on aligned multi-timeframe trend, cross-venue arbitrage, and
// spot-vs-perp basis arbitrage, ranked into a bounded opportunity list and
// converted into trade intents.
package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
	"github.com/atlas-desktop/engine/pkg/utils"
)

// neutralBand is the 5bps band (as a fraction) below which a trend delta is neutral.
var neutralBand = decimal.NewFromFloat(0.0005)

// OHLCVSource loads historical bars for an instrument/timeframe, used for
// the directional trend signal. Backed in production by marketdata.OHLCVCache.
type OHLCVSource interface {
	LoadOHLCV(ctx context.Context, instrument string, tf types.Timeframe, lookback int) ([]types.OHLCV, error)
}

// SnapshotSource resolves the latest market snapshot for a venue/instrument,
// used for cross-venue and basis quotes and for dataQuality tagging.
type SnapshotSource interface {
	GetSnapshot(venue, instrument string) (types.MarketSnapshot, bool)
}

// Scanner produces ranked opportunities per tick.
type Scanner struct {
	logger   *zap.Logger
	ohlcv    OHLCVSource
	snapshot SnapshotSource

	basisConfigs   []types.BasisConfig
	spotArbConfigs []types.SpotArbConfig
}

// New builds a scanner over the given data sources and cross-venue/basis
// config documents (§6).
func New(logger *zap.Logger, ohlcv OHLCVSource, snapshot SnapshotSource, basis []types.BasisConfig, spotArb []types.SpotArbConfig) *Scanner {
	return &Scanner{logger: logger, ohlcv: ohlcv, snapshot: snapshot, basisConfigs: basis, spotArbConfigs: spotArb}
}

// trendResult is one timeframe's directional read.
type trendResult struct {
	direction  types.IntentDirection
	neutral    bool
	strengthBp decimal.Decimal
	confidence float64
}

// trend computes the §4.C5 directional trend signal for one timeframe:
// delta = (close_last - SMA10(close)) / SMA10(close).
func (s *Scanner) trend(ctx context.Context, instrument string, tf types.Timeframe) (trendResult, error) {
	bars, err := s.ohlcv.LoadOHLCV(ctx, instrument, tf, 11)
	if err != nil {
		return trendResult{}, fmt.Errorf("load ohlcv %s/%s: %w", instrument, tf, err)
	}
	if len(bars) < 11 {
		return trendResult{neutral: true}, nil
	}

	sma := utils.NewSMA(10)
	var smaVal decimal.Decimal
	for _, bar := range bars[:len(bars)-1] {
		smaVal = sma.Add(bar.Close)
	}
	last := bars[len(bars)-1].Close
	if smaVal.IsZero() {
		return trendResult{neutral: true}, nil
	}
	delta := last.Sub(smaVal).Div(smaVal)

	res := trendResult{strengthBp: delta.Abs().Mul(decimal.NewFromInt(10000))}
	if delta.Abs().LessThan(neutralBand) {
		res.neutral = true
		return res, nil
	}
	if delta.IsPositive() {
		res.direction = types.IntentDirectionLong
	} else {
		res.direction = types.IntentDirectionShort
	}
	conf := delta.Abs().Mul(decimal.NewFromInt(200))
	if conf.GreaterThan(decimal.NewFromInt(1)) {
		conf = decimal.NewFromInt(1)
	}
	res.confidence, _ = conf.Float64()
	return res, nil
}

// ScanDirectional emits at most one directional opportunity per strategy
// per instrument in its universe, requiring all three configured
// timeframes to agree on a non-neutral direction.
func (s *Scanner) ScanDirectional(ctx context.Context, def types.StrategyDefinition) ([]types.Opportunity, error) {
	var out []types.Opportunity
	for _, instrument := range def.Universe {
		fast, err := s.trend(ctx, instrument, def.Timeframes.Fast)
		if err != nil {
			return nil, err
		}
		medium, err := s.trend(ctx, instrument, def.Timeframes.Medium)
		if err != nil {
			return nil, err
		}
		slow, err := s.trend(ctx, instrument, def.Timeframes.Slow)
		if err != nil {
			return nil, err
		}
		if fast.neutral || medium.neutral || slow.neutral {
			continue
		}
		if fast.direction != medium.direction || medium.direction != slow.direction {
			continue
		}

		confidence := (fast.confidence + medium.confidence + slow.confidence) / 3
		edgeBps := fast.strengthBp.Add(medium.strengthBp).Add(slow.strengthBp).Div(decimal.NewFromInt(3))

		if confidence < def.MinConfidence {
			continue
		}
		if !def.MinEdgeBps.IsZero() && edgeBps.LessThan(def.MinEdgeBps) {
			continue
		}

		dq := types.DataQualityDerived
		venue := ""
		if len(def.VenueRouting) > 0 {
			venue = def.VenueRouting[0]
			if snap, ok := s.snapshot.GetSnapshot(venue, instrument); ok {
				dq = snap.DataQuality
			} else {
				dq = types.DataQualityUnavailable
			}
		}

		out = append(out, types.Opportunity{
			Type:            opportunityTypeFor(def.Type),
			Instrument:      instrument,
			Direction:       fast.direction,
			Venue:           venue,
			Confidence:      confidence,
			ExpectedEdgeBps: edgeBps,
			HorizonMinutes:  def.ExpectedHoldingMinutes,
			DataQuality:     dq,
			SignalStack:     []string{string(def.Timeframes.Fast), string(def.Timeframes.Medium), string(def.Timeframes.Slow)},
			Explanation:     fmt.Sprintf("aligned %s trend across %s/%s/%s", fast.direction, def.Timeframes.Fast, def.Timeframes.Medium, def.Timeframes.Slow),
			StrategyID:      def.ID,
			Metadata:        types.IntentMetadata{ExpectedEdgeBps: edgeBps, StrategyType: def.Type},
		})
	}
	return out, nil
}

func opportunityTypeFor(strategyType string) types.OpportunityType {
	switch strategyType {
	case "futures":
		return types.OpportunityTypeFutures
	case "arbitrage":
		return types.OpportunityTypeArbitrage
	default:
		return types.OpportunityTypeSpot
	}
}

// ScanCrossVenueArbitrage emits one opportunity per ordered (buy, sell)
// venue pair whose spread clears minProfitBps, with a two-leg plan ready
// for OMS to size.
func (s *Scanner) ScanCrossVenueArbitrage(cfg types.SpotArbConfig) []types.Opportunity {
	var out []types.Opportunity
	for _, instrument := range cfg.Instruments {
		for _, buyVenue := range cfg.Venues {
			for _, sellVenue := range cfg.Venues {
				if buyVenue == sellVenue {
					continue
				}
				buyQuote, ok1 := s.snapshot.GetSnapshot(buyVenue, instrument)
				sellQuote, ok2 := s.snapshot.GetSnapshot(sellVenue, instrument)
				if !ok1 || !ok2 || buyQuote.Ask.IsZero() {
					continue
				}
				profitBps := sellQuote.Bid.Sub(buyQuote.Ask).Div(buyQuote.Ask).Mul(decimal.NewFromInt(10000))
				if profitBps.LessThan(cfg.MinProfitBps) {
					continue
				}
				plan := &types.ExecutionPlan{
					Mode:         types.ExecutionModeLegged,
					UnwindOnFail: true,
					Legs: []types.ExecutionLeg{
						{Venue: buyVenue, Instrument: instrument, Side: types.OrderSideBuy, OrderType: types.OrderTypeMarket, LegType: "arb_buy"},
						{Venue: sellVenue, Instrument: instrument, Side: types.OrderSideSell, OrderType: types.OrderTypeMarket, LegType: "arb_sell"},
					},
				}
				out = append(out, types.Opportunity{
					Type:            types.OpportunityTypeArbitrage,
					Instrument:      instrument,
					Direction:       types.IntentDirectionLong,
					Venue:           buyVenue,
					Confidence:      0.9,
					ExpectedEdgeBps: profitBps,
					DataQuality:     minDataQuality(buyQuote.DataQuality, sellQuote.DataQuality),
					ExecutionPlan:   plan,
					Explanation:     fmt.Sprintf("buy %s @%s sell %s @%s, %.2f bps", buyVenue, instrument, sellVenue, instrument, bpsFloat(profitBps)),
					Metadata:        types.IntentMetadata{ExpectedEdgeBps: profitBps, StrategyType: "arbitrage"},
				})
			}
		}
	}
	return out
}

// ScanBasis emits a basis opportunity when |basisBps| clears minProfitBps.
func (s *Scanner) ScanBasis(cfg types.BasisConfig) []types.Opportunity {
	var out []types.Opportunity
	for _, instrument := range cfg.Instruments {
		spot, ok1 := s.snapshot.GetSnapshot(cfg.SpotVenue, instrument)
		perp, ok2 := s.snapshot.GetSnapshot(cfg.PerpVenue, instrument)
		if !ok1 || !ok2 || spot.Mid.IsZero() {
			continue
		}
		basisBps := perp.Mid.Sub(spot.Mid).Div(spot.Mid).Mul(decimal.NewFromInt(10000))
		if basisBps.Abs().LessThan(cfg.MinProfitBps) {
			continue
		}
		direction := types.IntentDirectionLong
		if basisBps.IsNegative() {
			direction = types.IntentDirectionShort
		}
		plan := &types.ExecutionPlan{
			Mode:         types.ExecutionModeLegged,
			UnwindOnFail: true,
			Legs: []types.ExecutionLeg{
				{Venue: cfg.SpotVenue, Instrument: instrument, Side: direction.ToSide(), OrderType: types.OrderTypeMarket, LegType: "basis_spot"},
				{Venue: cfg.PerpVenue, Instrument: instrument, Side: direction.ToSide().Opposite(), OrderType: types.OrderTypeMarket, LegType: "basis_perp"},
			},
		}
		out = append(out, types.Opportunity{
			Type:            types.OpportunityTypeArbitrage,
			Instrument:      instrument,
			Direction:       direction,
			Venue:           cfg.SpotVenue,
			Confidence:      0.85,
			ExpectedEdgeBps: basisBps.Abs(),
			DataQuality:     minDataQuality(spot.DataQuality, perp.DataQuality),
			ExecutionPlan:   plan,
			Explanation:     fmt.Sprintf("basis %.2f bps between %s spot and %s perp", bpsFloat(basisBps), cfg.SpotVenue, cfg.PerpVenue),
			Metadata:        types.IntentMetadata{ExpectedEdgeBps: basisBps.Abs(), BasisRiskBps: basisBps.Abs(), StrategyType: "arbitrage"},
		})
	}
	return out
}

// Rank orders opportunities by expectedEdgeBps*confidence descending and
// truncates to maxOpportunities.
func Rank(opps []types.Opportunity, maxOpportunities int) []types.Opportunity {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score().GreaterThan(opps[j].Score())
	})
	if maxOpportunities > 0 && len(opps) > maxOpportunities {
		opps = opps[:maxOpportunities]
	}
	return opps
}

// GenerateIntents converts the top-topK opportunities into trade intents,
// sizing against the owning book's capital.
func GenerateIntents(opps []types.Opportunity, topK int, bookOf func(o types.Opportunity) types.Book, riskPerTrade func(o types.Opportunity) decimal.Decimal) []types.TradeIntent {
	if topK > 0 && len(opps) > topK {
		opps = opps[:topK]
	}
	intents := make([]types.TradeIntent, 0, len(opps))
	for _, o := range opps {
		book := bookOf(o)
		rpt := riskPerTrade(o)
		target := book.CapitalAllocated.Mul(rpt)
		maxLoss := target.Mul(decimal.NewFromFloat(0.02))
		meta := o.Metadata
		if meta.ExpectedEdgeBps.IsZero() {
			meta.ExpectedEdgeBps = o.ExpectedEdgeBps
		}
		meta.ExecutionPlan = o.ExecutionPlan
		intents = append(intents, types.TradeIntent{
			BookID:            book.ID,
			Instrument:        o.Instrument,
			Direction:         o.Direction,
			TargetExposureUsd: target,
			MaxLossUsd:        maxLoss,
			HorizonMinutes:    o.HorizonMinutes,
			Confidence:        o.Confidence,
			Metadata:          meta,
			StrategyID:        o.StrategyID,
		})
	}
	return intents
}

func minDataQuality(a, b types.DataQuality) types.DataQuality {
	rank := map[types.DataQuality]int{
		types.DataQualityRealtime:    0,
		types.DataQualityDelayed:     1,
		types.DataQualityDerived:     2,
		types.DataQualitySimulated:   3,
		types.DataQualityUnavailable: 4,
	}
	if rank[a] >= rank[b] {
		return a
	}
	return b
}

func bpsFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
