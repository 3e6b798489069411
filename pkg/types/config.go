package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Timeframe is a bar interval name used by strategy definitions and OHLCV loads.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// StrategyDefinition is one entry in the strategy registry's config
// document (internal/strategy), §4.C4.
type StrategyDefinition struct {
	ID                     string                 `json:"id,omitempty"`
	Name                   string                 `json:"name"`
	Type                   string                 `json:"type"` // spot|futures|arbitrage|execution
	Universe               []string               `json:"universe"`
	Timeframes             StrategyTimeframes     `json:"timeframes"`
	MinConfidence          float64                `json:"minConfidence"`
	MaxRiskPerTrade        decimal.Decimal        `json:"maxRiskPerTrade"`
	ExpectedHoldingMinutes int                    `json:"expectedHoldingMinutes"`
	VenueRouting           []string               `json:"venueRouting"`
	BookType               string                 `json:"bookType,omitempty"`
	BookID                 string                 `json:"bookId,omitempty"`
	MinEdgeBps             decimal.Decimal        `json:"minEdgeBps,omitempty"`
	Parameters             map[string]interface{} `json:"parameters,omitempty"`
	Enabled                bool                   `json:"enabled"`
}

// StrategyTimeframes names the three aligned trend timeframes a directional
// strategy inspects, per §4.C5.
type StrategyTimeframes struct {
	Fast   Timeframe `json:"fast"`
	Medium Timeframe `json:"medium"`
	Slow   Timeframe `json:"slow"`
}

// ScannerConfig is the top-level scanner document, §4.C4.
type ScannerConfig struct {
	TopK             int `json:"topK"`
	MaxOpportunities int `json:"maxOpportunities"`
}

// StrategyRegistryConfig is the full config document the registry loads.
type StrategyRegistryConfig struct {
	Scanner    ScannerConfig        `json:"scanner"`
	Strategies []StrategyDefinition `json:"strategies"`
}

// BasisConfig configures the spot-vs-perp basis scanner.
type BasisConfig struct {
	Instruments    []string        `json:"instruments"`
	SpotVenue      string          `json:"spotVenue"`
	PerpVenue      string          `json:"perpVenue"`
	MinProfitBps   decimal.Decimal `json:"minProfitBps"`
	HedgeRatioLow  decimal.Decimal `json:"hedgeRatioLow"`
	HedgeRatioHigh decimal.Decimal `json:"hedgeRatioHigh"`
}

// SpotArbConfig configures the cross-venue arbitrage scanner.
type SpotArbConfig struct {
	Instruments  []string        `json:"instruments"`
	Venues       []string        `json:"venues"`
	MinProfitBps decimal.Decimal `json:"minProfitBps"`
}

// CapitalAllocatorConfig is the §4.C8 allocator's config document.
type CapitalAllocatorConfig struct {
	BaseWeights        map[string]decimal.Decimal `json:"baseWeights"` // keyed by strategy type
	SharpeFloor        decimal.Decimal            `json:"sharpeFloor"`
	DDThrottle         decimal.Decimal            `json:"ddThrottle"`
	RiskBiasScalars    map[string]decimal.Decimal `json:"riskBiasScalars"`
	OverweightClusters []string                   `json:"overweightClusters"`
	MinStrategyWeight  decimal.Decimal            `json:"minStrategyWeight"`
	MaxStrategyWeight  decimal.Decimal            `json:"maxStrategyWeight"`
	TickInterval       time.Duration              `json:"tickInterval"`
}

// BacktestConfig is the §4.C12 backtest input document.
type BacktestConfig struct {
	StrategyName   string          `json:"strategyName"`
	Instruments    []string        `json:"instruments"`
	StartDate      time.Time       `json:"startDate"`
	EndDate        time.Time       `json:"endDate"`
	InitialCapital decimal.Decimal `json:"initialCapital"`
	Timeframe      Timeframe       `json:"timeframe"`
	SlippageBps    decimal.Decimal `json:"slippageBps"`
	CommissionBps  decimal.Decimal `json:"commissionBps"`
	TrainRatio     float64         `json:"trainRatio"`
	ValidateRatio  float64         `json:"validateRatio"`
	TestRatio      float64         `json:"testRatio"`
	MaxPositionPct decimal.Decimal `json:"maxPositionPct"`
	Seed           int64           `json:"seed"`
}

// WalkForwardConfig is the §4.C12 walk-forward extension document.
type WalkForwardConfig struct {
	Enabled        bool `json:"enabled"`
	WindowSizeDays int  `json:"windowSizeDays"`
	TestWindowDays int  `json:"testWindowDays"`
	StepSizeDays   int  `json:"stepSizeDays"`
	MinSamples     int  `json:"minSamples"`
}

// SplitResult is one split's (train/validate/test, or walk-forward window)
// independent backtest pass output.
type SplitResult struct {
	Name        string             `json:"name"`
	StartIndex  int                `json:"startIndex"`
	EndIndex    int                `json:"endIndex"`
	EquityCurve []EquityPoint      `json:"equityCurve"`
	Trades      []TradeRecord      `json:"trades"`
	Metrics     PerformanceMetrics `json:"metrics"`
}

// BacktestResult is the full output of a backtest run: concatenated overall
// metrics plus the three named per-split results.
type BacktestResult struct {
	ID          string             `json:"id"`
	Config      BacktestConfig     `json:"config"`
	InSample    SplitResult        `json:"inSample"`
	Validation  SplitResult        `json:"validation"`
	OutSample   SplitResult        `json:"outSample"`
	EquityCurve []EquityPoint      `json:"equityCurve"`
	Trades      []TradeRecord      `json:"trades"`
	Metrics     PerformanceMetrics `json:"metrics"`
	CreatedAt   time.Time          `json:"createdAt"`
}

// WalkForwardWindow is one sliding window's in/out-of-sample pair.
type WalkForwardWindow struct {
	WindowIndex int         `json:"windowIndex"`
	TrainStart  time.Time   `json:"trainStart"`
	TrainEnd    time.Time   `json:"trainEnd"`
	TestStart   time.Time   `json:"testStart"`
	TestEnd     time.Time   `json:"testEnd"`
	OutSample   SplitResult `json:"outSample"`
}

// WalkForwardResult aggregates all windows plus concatenated out-of-sample metrics.
type WalkForwardResult struct {
	ID          string              `json:"id"`
	Config      BacktestConfig      `json:"config"`
	WalkForward WalkForwardConfig   `json:"walkForward"`
	Windows     []WalkForwardWindow `json:"windows"`
	EquityCurve []EquityPoint       `json:"equityCurve"`
	Trades      []TradeRecord       `json:"trades"`
	Metrics     PerformanceMetrics  `json:"metrics"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// KillSwitchConfig configures the global kill-switch cooldown behaviour.
type KillSwitchConfig struct {
	MaxDailyLossPct decimal.Decimal `json:"maxDailyLossPct"`
	CooldownPeriod  time.Duration   `json:"cooldownPeriod"`
}

// ServerConfig configures the ambient HTTP/WS operational shell.
type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
	CORSOrigins  []string      `json:"corsOrigins"`
}

// Config is the top-level materialised document the supervisor loads via
// viper, per §6's "assume a typed config struct is materialised".
type Config struct {
	Server            ServerConfig           `json:"server"`
	LogLevel          string                 `json:"logLevel"`
	DataDir           string                 `json:"dataDir"`
	StoreDSN          string                 `json:"storeDsn"`
	PaperTrading      bool                   `json:"paperTrading"`
	StaleThreshold    time.Duration          `json:"staleThreshold"`
	ReconcileInterval time.Duration          `json:"reconcileInterval"`
	HealthInterval    time.Duration          `json:"healthInterval"`
	ScanInterval      time.Duration          `json:"scanInterval"`
	RequestTimeout    time.Duration          `json:"requestTimeout"`
	KillSwitch        KillSwitchConfig       `json:"killSwitch"`
	StrategyRegistry  StrategyRegistryConfig `json:"strategyRegistry"`
	Basis             []BasisConfig          `json:"basis"`
	SpotArb           []SpotArbConfig        `json:"spotArb"`
	Allocator         CapitalAllocatorConfig `json:"allocator"`
	Venues            []VenueConfig          `json:"venues"`
}

// VenueConfig names one configured venue adapter instance.
type VenueConfig struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"` // "paper" | "live"
	BaseURL      string          `json:"baseUrl,omitempty"`
	APIKeyEnv    string          `json:"apiKeyEnv,omitempty"`
	APISecretEnv string          `json:"apiSecretEnv,omitempty"`
	MakerFeeBps  decimal.Decimal `json:"makerFeeBps"`
	TakerFeeBps  decimal.Decimal `json:"takerFeeBps"`
	Instruments  []string        `json:"instruments"`
}
