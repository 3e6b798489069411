package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

type fakeAdapter struct {
	fill Fill
	err  error
}

func (f fakeAdapter) PlaceOrder(ctx context.Context, instrument string, side types.OrderSide, size decimal.Decimal, orderType types.OrderType, limitPrice decimal.Decimal) (Fill, error) {
	return f.fill, f.err
}

type fakeResolver struct {
	adapters map[string]Adapter
}

func (f fakeResolver) Resolve(venue string) (Adapter, bool) {
	a, ok := f.adapters[venue]
	return a, ok
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(ctx context.Context, action, resourceType, resourceID string, severity types.AlertSeverity, before, after map[string]interface{}) {
	f.events = append(f.events, action)
}

func TestExecuteTwoLegSuccessPath(t *testing.T) {
	resolver := fakeResolver{adapters: map[string]Adapter{
		"venueA": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(100)}},
		"venueB": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(101)}},
	}}
	audit := &fakeAudit{}
	p := New(zap.NewNop(), resolver, audit)

	plan := types.ExecutionPlan{
		Mode: types.ExecutionModeLegged,
		Legs: []types.ExecutionLeg{
			{LegID: "leg-1", Venue: "venueA", Instrument: "BTC-USD", Side: types.OrderSideBuy, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
			{LegID: "leg-2", Venue: "venueB", Instrument: "BTC-USD", Side: types.OrderSideSell, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
		},
	}

	result, err := p.Execute(context.Background(), plan)

	require.NoError(t, err)
	assert.False(t, result.Aborted)
	require.Len(t, result.Legs, 2)
	assert.False(t, result.Legs[0].Unwound)
}

func TestExecuteUnwindsFilledLegOnSecondLegFailure(t *testing.T) {
	resolver := fakeResolver{adapters: map[string]Adapter{
		"venueA": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(100)}},
		"venueB": fakeAdapter{err: errors.New("rejected by venue")},
	}}
	audit := &fakeAudit{}
	p := New(zap.NewNop(), resolver, audit)

	plan := types.ExecutionPlan{
		Mode:         types.ExecutionModeLegged,
		UnwindOnFail: true,
		Legs: []types.ExecutionLeg{
			{LegID: "leg-1", Venue: "venueA", Instrument: "BTC-USD", Side: types.OrderSideBuy, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
			{LegID: "leg-2", Venue: "venueB", Instrument: "BTC-USD", Side: types.OrderSideSell, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
		},
	}

	result, err := p.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.AbortAt)
	require.Len(t, result.Legs, 2)
	assert.True(t, result.Legs[0].Unwound, "the filled first leg must be unwound after the second leg fails")
	assert.Equal(t, "1", result.Legs[0].UnwoundSize.String())
}

func TestExecuteDoesNotUnwindRejectedLegWithNilError(t *testing.T) {
	resolver := fakeResolver{adapters: map[string]Adapter{
		"venueA": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(100)}},
		"venueB": fakeAdapter{fill: Fill{Status: types.OrderStatusRejected}},
	}}
	audit := &fakeAudit{}
	p := New(zap.NewNop(), resolver, audit)

	plan := types.ExecutionPlan{
		Mode:         types.ExecutionModeLegged,
		UnwindOnFail: true,
		Legs: []types.ExecutionLeg{
			{LegID: "leg-1", Venue: "venueA", Instrument: "BTC-USD", Side: types.OrderSideBuy, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
			{LegID: "leg-2", Venue: "venueB", Instrument: "BTC-USD", Side: types.OrderSideSell, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
		},
	}

	result, err := p.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, result.Aborted)
	require.Len(t, result.Legs, 2)
	assert.True(t, result.Legs[0].Unwound, "the filled first leg must still be unwound")
	assert.False(t, result.Legs[1].Unwound, "a rejected leg with zero fill and nil error must not be unwound")
	assert.True(t, result.Legs[1].UnwoundSize.IsZero())
}

func TestExecuteAbortsOnTimeBudgetExceeded(t *testing.T) {
	resolver := fakeResolver{adapters: map[string]Adapter{
		"venueA": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(100)}},
		"venueB": fakeAdapter{fill: Fill{Status: types.OrderStatusFilled, FilledSize: decimal.NewFromInt(1), FilledPrice: decimal.NewFromInt(100)}},
	}}
	audit := &fakeAudit{}
	p := New(zap.NewNop(), resolver, audit)

	plan := types.ExecutionPlan{
		Mode:               types.ExecutionModeLegged,
		MaxTimeBetweenLegs: 1 * time.Nanosecond,
		Legs: []types.ExecutionLeg{
			{LegID: "leg-1", Venue: "venueA", Instrument: "BTC-USD", Side: types.OrderSideBuy, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
			{LegID: "leg-2", Venue: "venueB", Instrument: "BTC-USD", Side: types.OrderSideSell, Size: decimal.NewFromInt(1), OrderType: types.OrderTypeMarket},
		},
	}

	result, err := p.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.AbortAt)
}

func TestExecuteRejectsAtomicPlanWithMultipleLegs(t *testing.T) {
	p := New(zap.NewNop(), fakeResolver{adapters: map[string]Adapter{}}, &fakeAudit{})

	plan := types.ExecutionPlan{
		Mode: types.ExecutionModeAtomic,
		Legs: []types.ExecutionLeg{{LegID: "a"}, {LegID: "b"}},
	}

	_, err := p.Execute(context.Background(), plan)

	assert.Error(t, err)
}

func TestExecuteAbortsWhenAdapterNotResolved(t *testing.T) {
	p := New(zap.NewNop(), fakeResolver{adapters: map[string]Adapter{}}, &fakeAudit{})

	plan := types.ExecutionPlan{
		Mode: types.ExecutionModeLegged,
		Legs: []types.ExecutionLeg{{LegID: "leg-1", Venue: "missing", Size: decimal.NewFromInt(1)}},
	}

	result, err := p.Execute(context.Background(), plan)

	require.Error(t, err)
	assert.True(t, result.Aborted)
}
