// Package supervisor wires every component into a typed Services handle
// and drives ordered startup/shutdown plus the periodic tick loops
// (scanner, reconciliation, health) on robfig/cron schedules. The allocator
// is constructed but no tick loop calls it.
// Grounded on the source repo's cmd/server main.go init/shutdown ordering,
// generalised from a package-level global wiring into an explicit struct.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/internal/allocator"
	"github.com/atlas-desktop/engine/internal/api"
	"github.com/atlas-desktop/engine/internal/marketdata"
	"github.com/atlas-desktop/engine/internal/oms"
	"github.com/atlas-desktop/engine/internal/planner"
	"github.com/atlas-desktop/engine/internal/reconcile"
	"github.com/atlas-desktop/engine/internal/risk"
	"github.com/atlas-desktop/engine/internal/scanner"
	"github.com/atlas-desktop/engine/internal/store"
	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/internal/telemetry"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Services is the fully wired set of engine components. Every field is
// populated in dependency order by New; nothing here is a package-level
// global.
type Services struct {
	Logger     *zap.Logger
	Config     types.Config
	Store      *store.Store
	Market     *marketdata.Service
	OHLCV      *marketdata.OHLCVCache
	Venues     *VenueRegistry
	Registry   *strategy.Registry
	Scanner    *scanner.Scanner
	Risk       *risk.Engine
	Allocator  *allocator.Allocator
	Planner    *planner.Planner
	OMS        *oms.OMS
	Reconciler *reconcile.Reconciler
	API        *api.Server
	Metrics    *telemetry.Metrics

	cron *cron.Cron
}

// auditAdapter satisfies planner.AuditLogger over the store's audit sink.
type auditAdapter struct{ db *store.Store }

func (a auditAdapter) Log(ctx context.Context, action, resourceType, resourceID string, severity types.AlertSeverity, before, after map[string]interface{}) {
	a.db.Audit(ctx, types.AuditRecord{
		Action: action, ResourceType: resourceType, ResourceID: resourceID,
		Severity: severity, BeforeState: before, AfterState: after, Timestamp: time.Now(),
	})
}

// New constructs every component in dependency order: store, market data,
// venue registry, strategy registry, scanner, risk engine, allocator,
// planner, OMS, reconciler, API shell, metrics.
func New(logger *zap.Logger, cfg types.Config, clusters []risk.ClusterConfig) (*Services, error) {
	db, err := store.Open(cfg.StoreDSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	market := marketdata.New(logger, nil, cfg.StaleThreshold)
	ohlcv := marketdata.NewOHLCVCache()
	venues := NewVenueRegistry(logger, cfg, market)
	registry := strategy.NewRegistry(logger, cfg.StrategyRegistry)

	scan := scanner.New(logger, ohlcv, market, cfg.Basis, cfg.SpotArb)

	riskEngine := risk.New(logger, db, venues, clusters)

	alloc := allocator.New(logger, cfg.Allocator, nil, market, db)

	plan := planner.New(logger, venues, auditAdapter{db})

	venueIDFor := func(intent types.TradeIntent) string {
		if def, ok := registry.Get(intent.StrategyID); ok && len(def.VenueRouting) > 0 {
			return def.VenueRouting[0]
		}
		if len(cfg.Venues) > 0 {
			return cfg.Venues[0].ID
		}
		return ""
	}

	o := oms.New(logger, db, market, venues, venues, strategyRiskSource{registry}, riskEngine, plan, venueIDFor)

	recon := reconcile.New(logger, venues, db, o, riskEngine)

	apiServer := api.New(logger, cfg.Server, riskEngine)
	market.SetPublisher(apiServer)
	metrics := telemetry.New()

	return &Services{
		Logger: logger, Config: cfg, Store: db, Market: market, OHLCV: ohlcv, Venues: venues, Registry: registry,
		Scanner: scan, Risk: riskEngine, Allocator: alloc, Planner: plan, OMS: o, Reconciler: recon,
		API: apiServer, Metrics: metrics,
		cron: cron.New(),
	}, nil
}

// StartTickLoops schedules the periodic scanner, reconciliation and health
// cron jobs and starts the ambient HTTP server. Blocks until ctx is
// cancelled.
func (s *Services) StartTickLoops(ctx context.Context) error {
	scanEvery := fmt.Sprintf("@every %s", s.Config.ScanInterval.String())
	reconEvery := fmt.Sprintf("@every %s", s.Config.ReconcileInterval.String())
	healthEvery := fmt.Sprintf("@every %s", s.Config.HealthInterval.String())

	if _, err := s.cron.AddFunc(scanEvery, func() { s.scanTick(ctx) }); err != nil {
		return fmt.Errorf("schedule scan tick: %w", err)
	}
	if _, err := s.cron.AddFunc(reconEvery, func() { s.reconTick(ctx) }); err != nil {
		return fmt.Errorf("schedule recon tick: %w", err)
	}
	if _, err := s.cron.AddFunc(healthEvery, func() { s.healthTick(ctx) }); err != nil {
		return fmt.Errorf("schedule health tick: %w", err)
	}

	s.cron.Start()
	defer s.cron.Stop()

	return s.API.Start(ctx)
}

// scanTick scans every enabled directional strategy, ranks the resulting
// opportunities and submits the top-K as trade intents through the OMS.
// Intents are sized from each strategy's max risk per trade; no allocator
// weights are applied.
func (s *Services) scanTick(ctx context.Context) {
	start := time.Now()
	defer func() { s.Metrics.ScanLatency.Observe(time.Since(start).Seconds()) }()

	var all []types.Opportunity
	for _, def := range s.Registry.Enabled() {
		if def.Type != "spot" && def.Type != "futures" {
			continue
		}
		opps, err := s.Scanner.ScanDirectional(ctx, def)
		if err != nil {
			s.Logger.Error("directional scan failed", zap.String("strategy", def.ID), zap.Error(err))
			continue
		}
		all = append(all, opps...)
	}
	for _, cfg := range s.Config.SpotArb {
		all = append(all, s.Scanner.ScanCrossVenueArbitrage(cfg)...)
	}
	for _, cfg := range s.Config.Basis {
		all = append(all, s.Scanner.ScanBasis(cfg)...)
	}

	ranked := scanner.Rank(all, s.Registry.ScannerConfig().MaxOpportunities)
	intents := scanner.GenerateIntents(ranked, s.Registry.ScannerConfig().TopK,
		func(o types.Opportunity) types.Book { return s.bookFor(ctx, o) },
		func(o types.Opportunity) decimal.Decimal { return s.riskPerTradeFor(o) },
	)

	for _, intent := range intents {
		if _, err := s.OMS.Submit(ctx, intent); err != nil {
			s.Logger.Warn("intent submission failed", zap.String("instrument", intent.Instrument), zap.Error(err))
		}
	}
}

func (s *Services) bookFor(ctx context.Context, o types.Opportunity) types.Book {
	def, ok := s.Registry.Get(o.StrategyID)
	bookID := o.StrategyID
	if ok && def.BookID != "" {
		bookID = def.BookID
	}
	book, err := s.Store.GetBook(ctx, bookID)
	if err != nil {
		s.Logger.Debug("book lookup failed, using zero-value book", zap.String("bookId", bookID), zap.Error(err))
	}
	return book
}

func (s *Services) riskPerTradeFor(o types.Opportunity) decimal.Decimal {
	def, ok := s.Registry.Get(o.StrategyID)
	if !ok {
		return decimal.Zero
	}
	return def.MaxRiskPerTrade
}

func (s *Services) reconTick(ctx context.Context) {
	for _, v := range s.Config.Venues {
		mismatches, err := s.Reconciler.Run(ctx, v.ID)
		if err != nil {
			s.Logger.Error("reconciliation failed", zap.String("venue", v.ID), zap.Error(err))
			continue
		}
		if len(mismatches) > 0 {
			s.Metrics.ReconMismatches.WithLabelValues(v.ID).Add(float64(len(mismatches)))
		}
	}

	s.checkBasisAndSpotInventory(ctx)
}

// checkBasisAndSpotInventory runs the hedge-ratio and spot-drift checks
// (§4.C11 steps 3-4) over every enabled arbitrage-family strategy's tracked
// positions. A fully-hedged basis book has SpotPosition == DerivPosition;
// CheckSpotDrift flags the book reduce-only when the spot leg has drifted
// more than 2% away from the size the derivative leg is hedging.
func (s *Services) checkBasisAndSpotInventory(ctx context.Context) {
	for _, def := range s.Registry.Enabled() {
		if def.Type != "arbitrage" {
			continue
		}
		positions, err := s.Store.StrategyPositions(ctx, def.ID)
		if err != nil {
			s.Logger.Error("strategy position lookup failed", zap.String("strategy", def.ID), zap.Error(err))
			continue
		}
		low, high, ok := basisBoundsFor(def.Universe, s.Config.Basis)
		for _, pos := range positions {
			if ok {
				s.Reconciler.CheckBasisHedge(ctx, def.BookID, pos, low, high)
			}
			s.Reconciler.CheckSpotDrift(ctx, def.BookID, pos.SpotPosition, pos.DerivPosition)
		}
	}
}

// basisBoundsFor returns the hedge-ratio band of the first configured basis
// pair that shares an instrument with universe.
func basisBoundsFor(universe []string, basis []types.BasisConfig) (low, high decimal.Decimal, ok bool) {
	instruments := make(map[string]bool, len(universe))
	for _, i := range universe {
		instruments[i] = true
	}
	for _, cfg := range basis {
		for _, i := range cfg.Instruments {
			if instruments[i] {
				return cfg.HedgeRatioLow, cfg.HedgeRatioHigh, true
			}
		}
	}
	return decimal.Zero, decimal.Zero, false
}

// healthTick polls every venue adapter's HealthCheck and refreshes the
// cached health snapshot the risk engine's venue-health gate consults. The
// OMS cost gate does not read it: it evaluates cost with a latency of 0 ms.
func (s *Services) healthTick(ctx context.Context) {
	s.Venues.PollHealth(ctx)
}

// Shutdown stops the cron scheduler and closes the store.
func (s *Services) Shutdown(ctx context.Context) error {
	if s.cron != nil {
		s.cron.Stop()
	}
	return s.Store.Close()
}
