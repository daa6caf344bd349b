package telemetry

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/trustgate/internal/gateway/models"
)

func TestEmitDecision_WritesOneJSONLineWithExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	e := New(Config{Enabled: true}, sink, nil)

	e.EmitDecision(DecisionEvent{
		RequestID:     "req-1",
		Verdict:       models.Deny,
		Reason:        models.ReasonRateLimitExceeded,
		HasReason:     true,
		PrincipalHash: "abc123",
		LatencyMS:     1.5,
	})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "gateway.decision.made", rec["event_type"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "DENY", rec["verdict"])
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", rec["reason"])
	assert.NotContains(t, rec, "score")
	assert.EqualValues(t, 1, rec["version"])
}

func TestEmitDecision_IncludesScoreWhenPresent(t *testing.T) {
	var buf bytes.Buffer
	e := New(Config{Enabled: true}, NewWriterSink(&buf), nil)

	e.EmitDecision(DecisionEvent{RequestID: "r", Verdict: models.Allow, Score: 88, HasScore: true})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.EqualValues(t, 88, rec["score"])
}

func TestEmitError_WritesErrorRecord(t *testing.T) {
	var buf bytes.Buffer
	e := New(Config{Enabled: true}, NewWriterSink(&buf), nil)

	e.EmitError(ErrorEvent{RequestID: "r2", ErrorKind: "panic", ErrorMessage: "boom"})

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "gateway.error", rec["event_type"])
	assert.Equal(t, "panic", rec["error_kind"])
	assert.Equal(t, "boom", rec["error_message"])
}

func TestDisabledEmitter_WritesNothing(t *testing.T) {
	var buf bytes.Buffer
	e := New(Config{Enabled: false}, NewWriterSink(&buf), nil)

	e.EmitDecision(DecisionEvent{RequestID: "r", Verdict: models.Allow})
	e.EmitError(ErrorEvent{RequestID: "r", ErrorKind: "x", ErrorMessage: "y"})

	assert.Empty(t, buf.Bytes())
}

func TestDisabledHelper_WritesNothingEvenWithoutSink(t *testing.T) {
	e := Disabled()
	assert.NotPanics(t, func() {
		e.EmitDecision(DecisionEvent{RequestID: "r", Verdict: models.Monitor})
	})
}

func TestNilEmitter_NeverPanics(t *testing.T) {
	var e *Emitter
	assert.NotPanics(t, func() {
		e.EmitDecision(DecisionEvent{RequestID: "r", Verdict: models.Allow})
		e.EmitError(ErrorEvent{RequestID: "r"})
	})
}

type failingSink struct{}

func (failingSink) Write([]byte) error { return assert.AnError }

func TestEmitDecision_SinkFailureIsSwallowed(t *testing.T) {
	e := New(Config{Enabled: true}, failingSink{}, nil)
	assert.NotPanics(t, func() {
		e.EmitDecision(DecisionEvent{RequestID: "r", Verdict: models.Allow})
	})
}
