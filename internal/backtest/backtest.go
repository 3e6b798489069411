// Package backtest implements the §4.C12 backtest and walk-forward engine:
// a deterministic train/validate/test split, bar-by-bar simulation using
// the prior bar's signals, and incremental equity/drawdown accounting.
// Generalises the source repo's event-driven Engine (internal/backtester)
// - whose generateSignal was a stub - into a direct strategy.Strategy
// consumer, and its long-only Portfolio into the long/short
// types.Position.Value() accounting.
package backtest

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/engine/internal/metrics"
	"github.com/atlas-desktop/engine/internal/strategy"
	"github.com/atlas-desktop/engine/pkg/types"
)

// Engine runs deterministic backtests over historical OHLCV bars.
type Engine struct{}

// New builds a backtest engine.
func New() *Engine { return &Engine{} }

type openPosition struct {
	side       types.OrderSide
	entryPrice decimal.Decimal
	size       decimal.Decimal
	entryTime  int
	entryFee   decimal.Decimal
}

// Run splits cfg's instrument history into train/validate/test row
// fractions (must sum to 1 +-0.01), runs each split as an independent pass
// with cash/positions/equity reset, and returns the combined result.
func (e *Engine) Run(cfg types.BacktestConfig, impl strategy.Strategy, bars []types.OHLCV) (types.BacktestResult, error) {
	if err := validateRatios(cfg.TrainRatio, cfg.ValidateRatio, cfg.TestRatio); err != nil {
		return types.BacktestResult{}, err
	}

	n := len(bars)
	trainEnd := int(float64(n) * cfg.TrainRatio)
	validateEnd := trainEnd + int(float64(n)*cfg.ValidateRatio)

	frame := strategy.NewFrame(bars)
	meta := strategy.Meta{Instrument: firstOf(cfg.Instruments), Timeframe: cfg.Timeframe}
	frame = impl.PopulateIndicators(frame, meta)
	frame = impl.PopulateEntryTrend(frame, meta)
	frame = impl.PopulateExitTrend(frame, meta)

	trainResult := e.runSplit("train", cfg, frame, 0, trainEnd, meta.Instrument)
	validateResult := e.runSplit("validate", cfg, frame, trainEnd, validateEnd, meta.Instrument)
	testResult := e.runSplit("test", cfg, frame, validateEnd, n, meta.Instrument)

	combined := append(append(append([]types.EquityPoint{}, trainResult.EquityCurve...), validateResult.EquityCurve...), testResult.EquityCurve...)
	combinedTrades := append(append(append([]types.TradeRecord{}, trainResult.Trades...), validateResult.Trades...), testResult.Trades...)

	return types.BacktestResult{
		Config:      cfg,
		InSample:    trainResult,
		Validation:  validateResult,
		OutSample:   testResult,
		EquityCurve: combined,
		Trades:      combinedTrades,
		Metrics:     metrics.Compute(combinedTrades, combined, decimal.Zero),
	}, nil
}

// runSplit executes one independent train/validate/test pass over
// bars[start:end]. Bar i's entry/exit decision uses bar i-1's signals
// (decide at i using i-1's signal), exits are evaluated before entries,
// and commission is split half on entry, half on exit.
func (e *Engine) runSplit(name string, cfg types.BacktestConfig, frame *strategy.Frame, start, end int, instrument string) types.SplitResult {
	if end <= start {
		return types.SplitResult{Name: name, StartIndex: start, EndIndex: end}
	}

	cash := cfg.InitialCapital
	var position *openPosition
	var trades []types.TradeRecord
	var equityCurve []types.EquityPoint
	peak := cfg.InitialCapital

	halfCommission := cfg.CommissionBps.Div(decimal.NewFromInt(2)).Div(decimal.NewFromInt(10000))
	slippageFraction := cfg.SlippageBps.Div(decimal.NewFromInt(10000))

	for i := start + 1; i < end; i++ {
		signalIdx := i - 1
		bar := frame.Bars[i]

		if position != nil && signalExit(frame, signalIdx, position.side) {
			exitSide := sideOf(position.side)
			exitPrice := applySlippage(bar.Close, slippageFraction, exitSide, false)
			exitFee := position.size.Mul(exitPrice).Mul(halfCommission)

			closePos := types.Position{Side: position.side, Size: position.size, EntryPrice: position.entryPrice, MarkPrice: exitPrice}
			value := closePos.Value()
			cash = cash.Add(value).Sub(exitFee)

			pnl := value.Sub(position.size.Mul(position.entryPrice)).Sub(position.entryFee).Sub(exitFee)

			trades = append(trades, types.TradeRecord{
				Instrument: instrument, Side: sideOf(position.side),
				EntryTime: frame.Bars[position.entryTime].Timestamp, ExitTime: bar.Timestamp,
				EntryPrice: position.entryPrice, ExitPrice: exitPrice, Size: position.size,
				Pnl: &pnl, EntryFee: position.entryFee, ExitFee: exitFee,
				DurationHrs: bar.Timestamp.Sub(frame.Bars[position.entryTime].Timestamp).Hours(),
			})
			position = nil
		}

		if position == nil {
			side, enter := signalEntry(frame, signalIdx)
			if enter {
				entryPrice := applySlippage(bar.Close, slippageFraction, side, true)
				notional := cash.Mul(cfg.MaxPositionPct)
				entryFee := notional.Mul(halfCommission)
				size := notional.Sub(entryFee).Div(entryPrice)
				if size.IsPositive() {
					cash = cash.Sub(notional)
					position = &openPosition{side: positionSideOf(side), entryPrice: entryPrice, size: size, entryTime: i, entryFee: entryFee}
				}
			}
		}

		equity := cash
		if position != nil {
			pos := types.Position{Side: position.side, Size: position.size, EntryPrice: position.entryPrice, MarkPrice: bar.Close}
			equity = equity.Add(pos.Value())
		}
		if equity.GreaterThan(peak) {
			peak = equity
		}
		drawdown := decimal.Zero
		if peak.IsPositive() {
			drawdown = peak.Sub(equity).Div(peak)
			if drawdown.IsNegative() {
				drawdown = decimal.Zero
			}
		}
		equityCurve = append(equityCurve, types.EquityPoint{Timestamp: bar.Timestamp, Equity: equity, Cash: cash, Drawdown: drawdown})
	}

	if position != nil {
		lastBar := frame.Bars[end-1]
		exitSide := sideOf(position.side)
		exitPrice := applySlippage(lastBar.Close, slippageFraction, exitSide, false)
		exitFee := position.size.Mul(exitPrice).Mul(halfCommission)

		closePos := types.Position{Side: position.side, Size: position.size, EntryPrice: position.entryPrice, MarkPrice: exitPrice}
		value := closePos.Value()
		cash = cash.Add(value).Sub(exitFee)

		pnl := value.Sub(position.size.Mul(position.entryPrice)).Sub(position.entryFee).Sub(exitFee)

		trades = append(trades, types.TradeRecord{
			Instrument: instrument, Side: exitSide,
			EntryTime: frame.Bars[position.entryTime].Timestamp, ExitTime: lastBar.Timestamp,
			EntryPrice: position.entryPrice, ExitPrice: exitPrice, Size: position.size,
			Pnl: &pnl, EntryFee: position.entryFee, ExitFee: exitFee,
			DurationHrs: lastBar.Timestamp.Sub(frame.Bars[position.entryTime].Timestamp).Hours(),
		})

		if len(equityCurve) > 0 {
			equityCurve[len(equityCurve)-1].Equity = cash
			equityCurve[len(equityCurve)-1].Cash = cash
			equityCurve[len(equityCurve)-1].Drawdown = decimal.Zero
			if peak.IsPositive() && cash.LessThan(peak) {
				equityCurve[len(equityCurve)-1].Drawdown = peak.Sub(cash).Div(peak)
			}
		}
	}

	return types.SplitResult{
		Name: name, StartIndex: start, EndIndex: end,
		EquityCurve: equityCurve, Trades: trades,
		Metrics: metrics.Compute(trades, equityCurve, decimal.Zero),
	}
}

func signalEntry(frame *strategy.Frame, i int) (types.OrderSide, bool) {
	if i < 0 || i >= len(frame.Bars) {
		return "", false
	}
	if i < len(frame.EnterLong) && frame.EnterLong[i] {
		return types.OrderSideBuy, true
	}
	if i < len(frame.EnterShort) && frame.EnterShort[i] {
		return types.OrderSideSell, true
	}
	return "", false
}

func signalExit(frame *strategy.Frame, i int, side types.PositionSide) bool {
	if i < 0 || i >= len(frame.Bars) {
		return false
	}
	if side == types.PositionSideLong && i < len(frame.ExitLong) {
		return frame.ExitLong[i]
	}
	if side == types.PositionSideShort && i < len(frame.ExitShort) {
		return frame.ExitShort[i]
	}
	return false
}

func applySlippage(price, fraction decimal.Decimal, side types.OrderSide, isEntry bool) decimal.Decimal {
	adverse := side == types.OrderSideBuy
	if !isEntry {
		adverse = side == types.OrderSideSell // exiting a long sells; exiting a short buys
	}
	if adverse {
		return price.Mul(decimal.NewFromInt(1).Add(fraction))
	}
	return price.Mul(decimal.NewFromInt(1).Sub(fraction))
}

func signedPnl(side types.PositionSide, entry, exit, size decimal.Decimal) decimal.Decimal {
	if side == types.PositionSideShort {
		return entry.Sub(exit).Mul(size)
	}
	return exit.Sub(entry).Mul(size)
}

func positionSideOf(side types.OrderSide) types.PositionSide {
	if side == types.OrderSideSell {
		return types.PositionSideShort
	}
	return types.PositionSideLong
}

func sideOf(side types.PositionSide) types.OrderSide {
	if side == types.PositionSideShort {
		return types.OrderSideSell
	}
	return types.OrderSideBuy
}

func firstOf(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[0]
}

func validateRatios(train, validate, test float64) error {
	sum := train + validate + test
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("split ratios must sum to 1 (+-0.01), got %.4f", sum)
	}
	return nil
}
