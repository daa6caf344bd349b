package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwclock "github.com/ocx/trustgate/internal/gateway/clock"
	"github.com/ocx/trustgate/internal/gateway/metrics"
	"github.com/ocx/trustgate/internal/gateway/models"
	"github.com/ocx/trustgate/internal/gateway/replay"
)

type fakeValidator struct {
	resp models.Response
}

func (f *fakeValidator) Validate(context.Context, string, string) models.Response {
	return f.resp
}

func newTestServer(t *testing.T, v Validator) *Server {
	t.Helper()
	fake := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	c := gwclock.New(fake)
	m := metrics.New(prometheus.NewRegistry(), c)
	suppressor := replay.New(replay.Config{MaxSize: 10, PurgeInterval: time.Hour, ClockDriftSeconds: 5}, c, nil)
	t.Cleanup(suppressor.Stop)
	return New(Config{AppName: "trustgate", AppVersion: "test"}, v, m, suppressor, c, nil)
}

func TestHandleValidate_MissingTokenReturns422(t *testing.T) {
	s := newTestServer(t, &fakeValidator{})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleValidate_ValidRequestReturns200WithDecision(t *testing.T) {
	resp := models.Response{
		Verdict:   models.Allow,
		Score:     80,
		HasScore:  true,
		RequestID: "req-123",
		Timestamp: time.Unix(1_700_000_000, 0).UTC(),
	}
	s := newTestServer(t, &fakeValidator{resp: resp})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"token":"abc"}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out validateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, models.Allow, out.Decision)
	assert.Nil(t, out.Reason)
	require.NotNil(t, out.Score)
	assert.Equal(t, 80, *out.Score)
}

func TestHandleValidate_EchoesRequestIDHeader(t *testing.T) {
	s := newTestServer(t, &fakeValidator{resp: models.Response{Verdict: models.Allow, RequestID: "req-echo"}})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"token":"abc"}`))
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
}

func TestHandleValidate_AssignsFreshRequestIDWhenAbsent(t *testing.T) {
	s := newTestServer(t, &fakeValidator{resp: models.Response{Verdict: models.Allow}})
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewBufferString(`{"token":"abc"}`))
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandleHealth_ReturnsExpectedShape(t *testing.T) {
	s := newTestServer(t, &fakeValidator{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "test", out.Version)
}

func TestHandleMetrics_ReturnsSnapshot(t *testing.T) {
	s := newTestServer(t, &fakeValidator{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out metrics.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Zero(t, out.TotalRequests)
}
