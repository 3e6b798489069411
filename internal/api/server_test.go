package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/engine/pkg/types"
)

type fakeKillSwitch struct {
	activated []string
	reason    string
	breakers  []types.CircuitBreaker
}

func (f *fakeKillSwitch) ActivateBreaker(name, source, reason string) {
	f.activated = append(f.activated, name)
	f.reason = reason
}

func (f *fakeKillSwitch) Breakers() []types.CircuitBreaker { return f.breakers }

func newTestServer(ks *fakeKillSwitch) *Server {
	return New(zap.NewNop(), types.ServerConfig{Host: "127.0.0.1", Port: 8080}, ks)
}

func TestHandleHealthReturnsOK(t *testing.T) {
	s := newTestServer(&fakeKillSwitch{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleActivateKillSwitchInvokesController(t *testing.T) {
	ks := &fakeKillSwitch{}
	s := newTestServer(ks)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/kill-switch/activate", bytes.NewBufferString(`{"reason":"manual trip"}`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, ks.activated, 1)
	assert.Equal(t, "kill_switch", ks.activated[0])
	assert.Equal(t, "manual trip", ks.reason)
}

func TestHandleActivateKillSwitchRejectsMalformedBody(t *testing.T) {
	s := newTestServer(&fakeKillSwitch{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/kill-switch/activate", bytes.NewBufferString(`not json`))
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBreakersReturnsControllerState(t *testing.T) {
	ks := &fakeKillSwitch{breakers: []types.CircuitBreaker{{Name: "kill_switch", Active: true}}}
	s := newTestServer(ks)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/breakers", nil)
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "kill_switch")
}

func TestPublishWithNoClientsDoesNotError(t *testing.T) {
	s := newTestServer(&fakeKillSwitch{})

	err := s.Publish("binance/BTC-USD", types.MarketSnapshot{Venue: "binance", Instrument: "BTC-USD"})

	assert.NoError(t, err)
}

func TestFmtAddrDefaultsHostWhenEmpty(t *testing.T) {
	assert.Equal(t, "0.0.0.0:8080", fmtAddr("", 8080))
}

func TestFmtAddrUsesGivenHost(t *testing.T) {
	assert.Equal(t, "127.0.0.1:443", fmtAddr("127.0.0.1", 443))
}

func TestItoaRendersZeroAndPositiveIntegers(t *testing.T) {
	assert.Equal(t, "0", itoa(0))
	assert.Equal(t, "8080", itoa(8080))
}
