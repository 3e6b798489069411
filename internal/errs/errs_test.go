package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewBuildsKindTaggedError(t *testing.T) {
	err := New(KindValidation, "missing field")

	kind, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, KindValidation, kind)
	assert.Equal(t, "validation_error: missing field", err.Error())
}

func TestWrapPreservesUnderlyingError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindVenueTransient, "place order", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAsFalseForPlainError(t *testing.T) {
	_, ok := As(fmt.Errorf("plain error"))

	assert.False(t, ok)
}

func TestIsMatchesWrappedKind(t *testing.T) {
	err := New(KindRiskReject, "over cap")

	assert.True(t, Is(err, KindRiskReject))
	assert.False(t, Is(err, KindCostReject))
}

func TestAsUnwrapsThroughFmtErrorf(t *testing.T) {
	base := New(KindLegTimeout, "leg 2 timed out")
	wrapped := fmt.Errorf("execute plan: %w", base)

	kind, ok := As(wrapped)

	assert.True(t, ok)
	assert.Equal(t, KindLegTimeout, kind)
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrOrderNotFound, ErrPositionNotFound))
	assert.False(t, errors.Is(ErrBookNotFound, ErrVenueNotFound))
}
