package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/engine/pkg/types"
)

const testYAML = `
logLevel: debug
storeDsn: ./testdata/engine.db
reconcileInterval: 45s
allocator:
  minStrategyWeight: "0.03"
  maxStrategyWeight: "0.4"
basis:
  - instruments: ["BTC-USD"]
    spotVenue: spot
    perpVenue: perp
    minProfitBps: "25"
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDecodesDurationsAndDecimalsFromYAML(t *testing.T) {
	path := writeTempConfig(t, testYAML)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.ReconcileInterval)
	assert.True(t, cfg.Allocator.MinStrategyWeight.Equal(decimal.NewFromFloat(0.03)))
	require.Len(t, cfg.Basis, 1)
	assert.True(t, cfg.Basis[0].MinProfitBps.Equal(decimal.NewFromInt(25)))
}

func TestLoadAppliesDefaultsWhenConfigFileOmitsKeys(t *testing.T) {
	path := writeTempConfig(t, "logLevel: info\n")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.StaleThreshold)
	assert.True(t, cfg.PaperTrading)
	assert.Equal(t, 5, cfg.StrategyRegistry.Scanner.TopK)
}

func TestApplyDefaultsBackfillsHedgeBand(t *testing.T) {
	cfg := types.Config{Basis: []types.BasisConfig{{Instruments: []string{"BTC-USD"}}}}

	ApplyDefaults(&cfg)

	assert.True(t, cfg.Basis[0].HedgeRatioLow.Equal(DefaultHedgeRatioLow))
	assert.True(t, cfg.Basis[0].HedgeRatioHigh.Equal(DefaultHedgeRatioHigh))
}

func TestApplyDefaultsLeavesExplicitHedgeBandUntouched(t *testing.T) {
	custom := decimal.NewFromFloat(0.95)
	cfg := types.Config{Basis: []types.BasisConfig{{HedgeRatioLow: custom, HedgeRatioHigh: decimal.NewFromFloat(1.05)}}}

	ApplyDefaults(&cfg)

	assert.True(t, cfg.Basis[0].HedgeRatioLow.Equal(custom))
}
