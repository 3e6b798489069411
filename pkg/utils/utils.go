// Package utils holds small rolling-window indicator primitives shared
// between the live scanner and the backtest engine. Trimmed from the
// source repo's larger grab-bag (id generation, symbol parsing, retry/
// batch helpers, validation) down to the moving-average types the
// scanner's §4.C5 trend signal actually drives — the rest of that
// grab-bag had no caller in this engine.
package utils

import (
	"github.com/shopspring/decimal"
)

// SMA is a fixed-window simple moving average accumulator. Values older
// than the window are evicted as new ones arrive, so Add is O(1)
// amortised rather than re-summing the whole window every bar.
type SMA struct {
	period int
	values []decimal.Decimal
	sum    decimal.Decimal
}

// NewSMA builds an SMA accumulator over the given bar window.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		values: make([]decimal.Decimal, 0, period),
	}
}

// Add feeds one new value and returns the updated average.
func (s *SMA) Add(value decimal.Decimal) decimal.Decimal {
	s.values = append(s.values, value)
	s.sum = s.sum.Add(value)

	if len(s.values) > s.period {
		s.sum = s.sum.Sub(s.values[0])
		s.values = s.values[1:]
	}

	return s.Current()
}

// Current returns the average over whatever values are currently in the
// window, without adding a new one.
func (s *SMA) Current() decimal.Decimal {
	if len(s.values) == 0 {
		return decimal.Zero
	}
	return s.sum.Div(decimal.NewFromInt(int64(len(s.values))))
}
