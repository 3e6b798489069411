package strategy

import (
	talib "github.com/markcheno/go-talib"
)

// SMARule is a table-driven strategy in the source repo's Rule idiom
// (indicator name, lookback, threshold) generalised to the three-function
// contract: it enters when price crosses above its SMA(period) and exits
// on the opposite cross. talib computes the reference SMA so the indicator
// math stays a pure library helper rather than hand-rolled (the scanner's
// SMA10 trend signal uses pkg/utils.SMA instead).
type SMARule struct {
	Period int
}

// NewSMARule builds a SMA-cross rule strategy for the given lookback.
func NewSMARule(period int) *SMARule {
	if period <= 0 {
		period = 10
	}
	return &SMARule{Period: period}
}

func (s *SMARule) Name() string { return "sma_cross" }

func (s *SMARule) PopulateIndicators(frame *Frame, meta Meta) *Frame {
	closes := make([]float64, len(frame.Bars))
	for i, bar := range frame.Bars {
		closes[i], _ = bar.Close.Float64()
	}
	var sma []float64
	if len(closes) >= s.Period {
		sma = talib.Sma(closes, s.Period)
	} else {
		sma = make([]float64, len(closes))
	}
	frame.Indicators["sma"] = sma
	frame.Indicators["close"] = closes
	return frame
}

func (s *SMARule) PopulateEntryTrend(frame *Frame, meta Meta) *Frame {
	sma := frame.Indicators["sma"]
	closes := frame.Indicators["close"]
	for i := 1; i < len(frame.Bars); i++ {
		if sma[i] == 0 || sma[i-1] == 0 {
			continue
		}
		crossedUp := closes[i-1] <= sma[i-1] && closes[i] > sma[i]
		crossedDown := closes[i-1] >= sma[i-1] && closes[i] < sma[i]
		frame.EnterLong[i] = crossedUp
		frame.EnterShort[i] = crossedDown
	}
	return frame
}

func (s *SMARule) PopulateExitTrend(frame *Frame, meta Meta) *Frame {
	sma := frame.Indicators["sma"]
	closes := frame.Indicators["close"]
	for i := 1; i < len(frame.Bars); i++ {
		if sma[i] == 0 || sma[i-1] == 0 {
			continue
		}
		frame.ExitLong[i] = closes[i-1] >= sma[i-1] && closes[i] < sma[i]
		frame.ExitShort[i] = closes[i-1] <= sma[i-1] && closes[i] > sma[i]
	}
	return frame
}
