package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/engine/internal/metrics"
	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/pkg/types"
)

// RunWalkForward slides a (trainWindow+testWindow)-bar window across bars
// with stride stepSize. The strategy's signals are computed once over all
// bars; each window then runs only its test slice through the split engine
// as the window's out-of-sample result. The train slice is not simulated.
// The window config carries trainRatio = trainWindow/(trainWindow+testWindow)
// and validateRatio = 0. Replaces the source repo's hardcoded 80/20 split.
func (e *Engine) RunWalkForward(cfg types.BacktestConfig, wf types.WalkForwardConfig, impl strategy.Strategy, bars []types.OHLCV) (types.WalkForwardResult, error) {
	trainWindow := wf.WindowSizeDays
	testWindow := wf.TestWindowDays
	step := wf.StepSizeDays
	if trainWindow <= 0 || testWindow <= 0 || step <= 0 {
		return types.WalkForwardResult{}, fmt.Errorf("walk-forward window/step sizes must be positive")
	}

	totalWindow := trainWindow + testWindow
	if len(bars) < totalWindow {
		return types.WalkForwardResult{}, fmt.Errorf("insufficient bars (%d) for walk-forward window size %d", len(bars), totalWindow)
	}

	trainRatio := float64(trainWindow) / float64(totalWindow)
	windowCfg := cfg
	windowCfg.TrainRatio = trainRatio
	windowCfg.ValidateRatio = 0
	windowCfg.TestRatio = 1 - trainRatio

	meta := strategy.Meta{Instrument: firstOf(cfg.Instruments), Timeframe: cfg.Timeframe}
	frame := strategy.NewFrame(bars)
	frame = impl.PopulateIndicators(frame, meta)
	frame = impl.PopulateEntryTrend(frame, meta)
	frame = impl.PopulateExitTrend(frame, meta)

	var windows []types.WalkForwardWindow
	var combinedEquity []types.EquityPoint
	var combinedTrades []types.TradeRecord

	windowIndex := 0
	for start := 0; start+totalWindow <= len(bars); start += step {
		trainEnd := start + trainWindow
		testEnd := start + totalWindow

		if testEnd-trainEnd < wf.MinSamples {
			windowIndex++
			continue
		}

		outSample := e.runSplit("test", windowCfg, frame, trainEnd, testEnd, meta.Instrument)

		windows = append(windows, types.WalkForwardWindow{
			WindowIndex: windowIndex,
			TrainStart:  bars[start].Timestamp,
			TrainEnd:    bars[trainEnd-1].Timestamp,
			TestStart:   bars[trainEnd].Timestamp,
			TestEnd:     bars[testEnd-1].Timestamp,
			OutSample:   outSample,
		})
		combinedEquity = append(combinedEquity, outSample.EquityCurve...)
		combinedTrades = append(combinedTrades, outSample.Trades...)
		windowIndex++
	}

	return types.WalkForwardResult{
		Config: cfg, WalkForward: wf, Windows: windows,
		EquityCurve: combinedEquity, Trades: combinedTrades,
		Metrics: metrics.Compute(combinedTrades, combinedEquity, decimal.Zero),
	}, nil
}
