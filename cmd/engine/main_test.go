package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-desktop/engine/internal/errs"
	"github.com/atlas-desktop/engine/pkg/types"
)

func TestStrategyByNameReturnsMockForEmptyOrMockName(t *testing.T) {
	impl, err := strategyByName("")
	require.NoError(t, err)
	assert.Equal(t, "mock", impl.Name())

	impl, err = strategyByName("mock")
	require.NoError(t, err)
	assert.Equal(t, "mock", impl.Name())
}

func TestStrategyByNameReturnsSMARuleForRule(t *testing.T) {
	impl, err := strategyByName("rule")

	require.NoError(t, err)
	assert.Equal(t, "sma_cross", impl.Name())
}

func TestStrategyByNameRejectsUnknownName(t *testing.T) {
	_, err := strategyByName("nonexistent")

	assert.Error(t, err)
	var ve *validationError
	assert.ErrorAs(t, err, &ve)
}

func TestExitForErrValidationKindReturnsExitValidation(t *testing.T) {
	err := errs.New(errs.KindValidation, "bad input")

	assert.Equal(t, exitValidation, exitForErr(err))
}

func TestExitForErrConfigErrorReturnsExitValidation(t *testing.T) {
	err := errs.New(errs.KindConfigError, "bad config")

	assert.Equal(t, exitValidation, exitForErr(err))
}

func TestExitForErrOtherKindReturnsExitRuntime(t *testing.T) {
	err := errs.New(errs.KindRiskReject, "over cap")

	assert.Equal(t, exitRuntime, exitForErr(err))
}

func TestExitForErrValidationErrorTypeReturnsExitValidation(t *testing.T) {
	err := &validationError{msg: "missing flag"}

	assert.Equal(t, exitValidation, exitForErr(err))
}

func TestExitForErrPlainErrorReturnsExitRuntime(t *testing.T) {
	err := os.ErrClosed

	assert.Equal(t, exitRuntime, exitForErr(err))
}

func TestLoadBarsRejectsEmptyPath(t *testing.T) {
	_, err := loadBars("")

	assert.Error(t, err)
	var ve *validationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoadBarsParsesJSONBarArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.json")
	bars := []types.OHLCV{{}, {}}
	raw, err := json.Marshal(bars)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	loaded, err := loadBars(path)

	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestLoadBarsErrorsOnMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := loadBars(path)

	assert.Error(t, err)
}

func TestClustersFromConfigReturnsNilUntilClustersConfigured(t *testing.T) {
	clusters := clustersFromConfig(types.Config{})

	assert.Nil(t, clusters)
}
