// Package strategy implements the §4.C4 strategy registry and the §6
// strategy interface consumed by both the live scanner and the backtester.
package strategy

import (
	"fmt"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Frame is the OHLCV column set a strategy's pure functions operate over,
// plus whatever indicator/signal columns earlier stages wrote into it.
// Columns are parallel slices indexed by bar, mirroring the frame-of-arrays
// shape described in §6 rather than a row-oriented struct slice, so that
// populateIndicators can append columns cheaply.
type Frame struct {
	Bars       []types.OHLCV
	Indicators map[string][]float64
	EnterLong  []bool
	EnterShort []bool
	ExitLong   []bool
	ExitShort  []bool
}

// NewFrame allocates a frame sized to len(bars) with zeroed signal columns.
func NewFrame(bars []types.OHLCV) *Frame {
	n := len(bars)
	return &Frame{
		Bars:       bars,
		Indicators: make(map[string][]float64),
		EnterLong:  make([]bool, n),
		EnterShort: make([]bool, n),
		ExitLong:   make([]bool, n),
		ExitShort:  make([]bool, n),
	}
}

// Meta carries strategy parameters into the three pure functions.
type Meta struct {
	Instrument string
	Timeframe  types.Timeframe
	Parameters map[string]interface{}
}

// Strategy is the only contract the backtester and the live scanner consume.
// Implementations MUST be deterministic functions of the frame: no network
// calls, no wall-clock reads, no hidden state between calls other than what
// the frame itself carries forward.
type Strategy interface {
	Name() string
	PopulateIndicators(frame *Frame, meta Meta) *Frame
	PopulateEntryTrend(frame *Frame, meta Meta) *Frame
	PopulateExitTrend(frame *Frame, meta Meta) *Frame
}

// DeriveID computes a stable hash of the strategy name, used when a config
// document omits an explicit id so lookups remain deterministic across
// restarts.
func DeriveID(name string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("strat_%x", h.Sum64())
}

// Registry holds two lookup tiers: a read-only set loaded from a config
// document and a mutable runtime-registered set. Lookup returns
// runtime-first, then config. The source repo kept two near-duplicate
// registries (one a pass-through of the other); this consolidates into one.
type Registry struct {
	logger *zap.Logger

	mu          sync.RWMutex
	fromConfig  map[string]types.StrategyDefinition
	fromRuntime map[string]types.StrategyDefinition
	impls       map[string]Strategy

	scanner types.ScannerConfig
}

// NewRegistry builds a registry from a loaded config document.
func NewRegistry(logger *zap.Logger, cfg types.StrategyRegistryConfig) *Registry {
	r := &Registry{
		logger:      logger,
		fromConfig:  make(map[string]types.StrategyDefinition),
		fromRuntime: make(map[string]types.StrategyDefinition),
		impls:       make(map[string]Strategy),
		scanner:     cfg.Scanner,
	}
	for _, def := range cfg.Strategies {
		if def.ID == "" {
			def.ID = DeriveID(def.Name)
		}
		r.fromConfig[def.ID] = def
	}
	return r
}

// ScannerConfig returns the loaded scanner-wide topK/maxOpportunities knobs.
func (r *Registry) ScannerConfig() types.ScannerConfig {
	return r.scanner
}

// RegisterRuntime registers (or overwrites) a mutable, non-config-backed
// strategy definition. Persistence of runtime registrations is best-effort:
// callers that need durability should also write through to the store.
func (r *Registry) RegisterRuntime(def types.StrategyDefinition) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if def.ID == "" {
		def.ID = DeriveID(def.Name)
	}
	r.fromRuntime[def.ID] = def
	return def.ID
}

// RegisterImplementation binds a Strategy implementation to a definition ID
// so the scanner/backtester can invoke its three pure functions.
func (r *Registry) RegisterImplementation(id string, impl Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.impls[id] = impl
}

// Get returns the definition for id, runtime tier first.
func (r *Registry) Get(id string) (types.StrategyDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if def, ok := r.fromRuntime[id]; ok {
		return def, true
	}
	def, ok := r.fromConfig[id]
	return def, ok
}

// Implementation returns the Strategy bound to id, if any.
func (r *Registry) Implementation(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.impls[id]
	return impl, ok
}

// Enabled returns every enabled definition across both tiers, runtime
// entries shadowing config entries of the same ID.
func (r *Registry) Enabled() []types.StrategyDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	merged := make(map[string]types.StrategyDefinition, len(r.fromConfig)+len(r.fromRuntime))
	for id, def := range r.fromConfig {
		merged[id] = def
	}
	for id, def := range r.fromRuntime {
		merged[id] = def
	}
	out := make([]types.StrategyDefinition, 0, len(merged))
	for _, def := range merged {
		if def.Enabled {
			out = append(out, def)
		}
	}
	return out
}
