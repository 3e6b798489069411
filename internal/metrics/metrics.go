// Package metrics implements the §4.C13 performance metrics: return,
// risk-adjusted ratios, drawdown, VaR/CVaR and trade statistics, all
// guaranteed finite (NaN/Inf collapse to zero). Generalises and corrects
// several formula deltas found in the source repo's backtester metrics
// (e.g. the Sortino denominator and the max-drawdown-duration definition).
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/atlas-desktop/engine/pkg/types"
)

const tradingDaysPerYear = 252.0

// Compute derives the full PerformanceMetrics record from a trade list and
// an equity curve. riskFreeRate is annualised (e.g. 0.02 for 2%).
func Compute(trades []types.TradeRecord, equity []types.EquityPoint, riskFreeRate decimal.Decimal) types.PerformanceMetrics {
	m := types.PerformanceMetrics{TotalTrades: len(trades)}
	if len(equity) == 0 {
		return m
	}

	initial, _ := equity[0].Equity.Float64()
	final, _ := equity[len(equity)-1].Equity.Float64()

	totalReturn := 0.0
	if initial != 0 {
		totalReturn = final/initial - 1
	}
	m.TotalReturn = decimalOf(totalReturn)

	days := equity[len(equity)-1].Timestamp.Sub(equity[0].Timestamp).Hours() / 24
	annualized := 0.0
	if days > 0 {
		annualized = math.Pow(1+totalReturn, tradingDaysPerYear/days) - 1
	}
	m.AnnualizedReturn = decimalOf(annualized)

	returns := periodReturns(equity)
	riskFreePerPeriod := toFloat(riskFreeRate) / tradingDaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFreePerPeriod
	}

	meanExcess, stdExcess := meanStd(excess)
	sharpe := 0.0
	if stdExcess != 0 {
		sharpe = (meanExcess / stdExcess) * math.Sqrt(tradingDaysPerYear)
	}
	m.SharpeRatio = decimalOf(sharpe)

	downside := rmsNegative(excess)
	sortino := 0.0
	if downside != 0 {
		sortino = (meanExcess / downside) * math.Sqrt(tradingDaysPerYear)
	}
	m.SortinoRatio = decimalOf(sortino)

	maxDD, ddDurationDays := maxDrawdownAndDuration(equity)
	m.MaxDrawdown = decimalOf(maxDD)
	m.MaxDrawdownDurationD = ddDurationDays

	calmar := 0.0
	if maxDD != 0 {
		calmar = annualized / math.Abs(maxDD)
	}
	m.CalmarRatio = decimalOf(calmar)

	m.VaR95, m.CVaR95 = varCVaR(returns, 0.95)
	m.VaR99, m.CVaR99 = varCVaR(returns, 0.99)

	populateTradeStats(&m, trades)

	return m
}

func periodReturns(equity []types.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev, _ := equity[i-1].Equity.Float64()
		cur, _ := equity[i].Equity.Float64()
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, cur/prev-1)
	}
	return out
}

func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	mean := stat.Mean(xs, nil)
	std := stat.StdDev(xs, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return mean, std
}

// rmsNegative is the root-mean-square of min(x, 0) over every value in xs,
// used as the Sortino denominator (downside deviation).
func rmsNegative(xs []float64) float64 {
	var sumSq float64
	var n int
	for _, x := range xs {
		if x < 0 {
			sumSq += x * x
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// maxDrawdownAndDuration walks the equity curve once, tracking an
// expanding peak, the maximum (peak-equity)/peak drawdown, and the
// longest calendar-day run strictly below the running peak.
func maxDrawdownAndDuration(equity []types.EquityPoint) (float64, int) {
	if len(equity) == 0 {
		return 0, 0
	}
	peak, _ := equity[0].Equity.Float64()
	peakTime := equity[0].Timestamp
	maxDD := 0.0
	maxDurationDays := 0
	inDrawdown := false
	var drawdownStart time.Time

	for _, pt := range equity {
		val, _ := pt.Equity.Float64()
		if val >= peak {
			if inDrawdown {
				duration := int(pt.Timestamp.Sub(drawdownStart).Hours() / 24)
				if duration > maxDurationDays {
					maxDurationDays = duration
				}
				inDrawdown = false
			}
			peak = val
			peakTime = pt.Timestamp
			continue
		}
		if !inDrawdown {
			inDrawdown = true
			drawdownStart = peakTime
		}
		if peak > 0 {
			dd := (peak - val) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	if inDrawdown {
		duration := int(equity[len(equity)-1].Timestamp.Sub(drawdownStart).Hours() / 24)
		if duration > maxDurationDays {
			maxDurationDays = duration
		}
	}
	return maxDD, maxDurationDays
}

// varCVaR computes Value-at-Risk and Conditional VaR at the given
// confidence level as positive loss magnitudes.
func varCVaR(returns []float64, confidence float64) (decimal.Decimal, decimal.Decimal) {
	if len(returns) == 0 {
		return decimal.Zero, decimal.Zero
	}
	sorted := append([]float64{}, returns...)
	sort.Float64s(sorted)

	pct := (1 - confidence) * 100
	v := percentile(sorted, pct)
	varVal := math.Abs(v)

	var tailSum float64
	var tailN int
	for _, r := range sorted {
		if r <= v {
			tailSum += r
			tailN++
		}
	}
	cvar := 0.0
	if tailN > 0 {
		cvar = math.Abs(tailSum / float64(tailN))
	}
	return decimalOf(varVal), decimalOf(cvar)
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return sorted[0]
	}
	if pct >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := pct / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

func populateTradeStats(m *types.PerformanceMetrics, trades []types.TradeRecord) {
	var grossProfit, grossLoss, sumWin, sumLoss, largestWin, largestLoss decimal.Decimal
	var winCount, lossCount int
	var totalDurationHrs float64
	var closedCount int

	for _, t := range trades {
		if t.Pnl == nil {
			continue
		}
		closedCount++
		totalDurationHrs += t.DurationHrs
		pnl := *t.Pnl
		if pnl.IsPositive() {
			winCount++
			grossProfit = grossProfit.Add(pnl)
			sumWin = sumWin.Add(pnl)
			if pnl.GreaterThan(largestWin) {
				largestWin = pnl
			}
		} else if pnl.IsNegative() {
			lossCount++
			grossLoss = grossLoss.Add(pnl.Abs())
			sumLoss = sumLoss.Add(pnl.Abs())
			if pnl.Abs().GreaterThan(largestLoss) {
				largestLoss = pnl.Abs()
			}
		}
	}

	m.WinningTrades = winCount
	m.LosingTrades = lossCount
	m.GrossProfit = grossProfit
	m.GrossLoss = grossLoss
	m.LargestWin = largestWin
	m.LargestLoss = largestLoss

	if closedCount > 0 {
		m.WinRate = decimal.NewFromInt(int64(winCount)).Div(decimal.NewFromInt(int64(closedCount)))
		m.AvgDurationHours = totalDurationHrs / float64(closedCount)
	}
	if winCount > 0 {
		m.AvgWin = sumWin.Div(decimal.NewFromInt(int64(winCount)))
	}
	if lossCount > 0 {
		m.AvgLoss = sumLoss.Div(decimal.NewFromInt(int64(lossCount)))
	}
	if !grossLoss.IsZero() {
		m.ProfitFactor = grossProfit.Div(grossLoss)
	}
}

func decimalOf(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
