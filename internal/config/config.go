// Package config loads the engine's layered configuration (defaults,
// config file, environment overrides, local .env secrets) into a typed
// types.Config document via spf13/viper, matching the source repo's
// convention of materialising config into a struct rather than reading
// scattered env lookups at call sites.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/engine/pkg/types"
)

// Load reads configuration from configPath (if non-empty), env vars
// prefixed ENGINE_, and a local .env file (best-effort, missing is not an
// error), and unmarshals the result into a types.Config.
func Load(configPath string) (types.Config, error) {
	_ = godotenv.Load() // local secrets; absence is normal in production

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return types.Config{}, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	var cfg types.Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return types.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("logLevel", "info")
	v.SetDefault("dataDir", "./data")
	v.SetDefault("storeDsn", "./data/engine.db")
	v.SetDefault("paperTrading", true)
	v.SetDefault("staleThreshold", 30*time.Second)
	v.SetDefault("reconcileInterval", 60*time.Second)
	v.SetDefault("healthInterval", 15*time.Second)
	v.SetDefault("scanInterval", 5*time.Second)
	v.SetDefault("requestTimeout", 10*time.Second)
	v.SetDefault("killSwitch.maxDailyLossPct", "0.05")
	v.SetDefault("killSwitch.cooldownPeriod", 15*time.Minute)
	v.SetDefault("strategyRegistry.scanner.topK", 5)
	v.SetDefault("strategyRegistry.scanner.maxOpportunities", 20)
	v.SetDefault("allocator.minStrategyWeight", "0.02")
	v.SetDefault("allocator.maxStrategyWeight", "0.5")
	v.SetDefault("allocator.sharpeFloor", "0.5")
	v.SetDefault("allocator.ddThrottle", "0.15")
	v.SetDefault("allocator.tickInterval", 5*time.Minute)
}

// DefaultHedgeRatioLow/DefaultHedgeRatioHigh are the §9 open-question default for
// types.BasisConfig.HedgeRatioLow/High when a config document omits them.
var (
	DefaultHedgeRatioLow  = decimal.NewFromFloat(0.98)
	DefaultHedgeRatioHigh = decimal.NewFromFloat(1.02)
)

// ApplyDefaults backfills zero-valued optional fields the materialised
// document left unset (e.g. a basis config written before the hedge band
// became configurable).
func ApplyDefaults(cfg *types.Config) {
	for i := range cfg.Basis {
		if cfg.Basis[i].HedgeRatioLow.IsZero() {
			cfg.Basis[i].HedgeRatioLow = DefaultHedgeRatioLow
		}
		if cfg.Basis[i].HedgeRatioHigh.IsZero() {
			cfg.Basis[i].HedgeRatioHigh = DefaultHedgeRatioHigh
		}
	}
}
