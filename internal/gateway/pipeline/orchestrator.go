// Package pipeline wires the gateway's components into the single
// request path (C7): rate limit, verify, replay-check, score, decide.
// Grounded on the OCX backend's internal/service orchestration style (a
// struct holding every collaborator by interface, one top-level method
// that never lets an internal error escape to its caller).
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ocx/trustgate/internal/gateway/clock"
	"github.com/ocx/trustgate/internal/gateway/metrics"
	"github.com/ocx/trustgate/internal/gateway/models"
	"github.com/ocx/trustgate/internal/gateway/ratelimit"
	"github.com/ocx/trustgate/internal/gateway/replay"
	"github.com/ocx/trustgate/internal/gateway/score"
	"github.com/ocx/trustgate/internal/gateway/telemetry"
	"github.com/ocx/trustgate/internal/gateway/verifier"
)

// Verifier is the capability the Orchestrator needs from C3. Declared
// here (rather than depended on concretely) so tests can substitute a
// fake without constructing real key material.
type Verifier interface {
	Verify(credential string) (models.Claims, error)
}

// Decider is the capability the Orchestrator needs from C6.
type Decider interface {
	Decide(scoreValue int) models.Verdict
}

// Orchestrator implements component C7. All fields are set once at
// construction and never reassigned; the only mutable state lives inside
// the collaborators themselves.
type Orchestrator struct {
	limiter    *ratelimit.Limiter
	verifier   Verifier
	suppressor *replay.Suppressor
	scorer     score.Provider
	decider    Decider
	metrics    *metrics.Counters
	telemetry  *telemetry.Emitter
	clock      clock.Clock
	logger     *slog.Logger
}

// Collaborators groups the Orchestrator's dependencies for New.
type Collaborators struct {
	Limiter    *ratelimit.Limiter
	Verifier   Verifier
	Suppressor *replay.Suppressor
	Scorer     score.Provider
	Decider    Decider
	Metrics    *metrics.Counters
	Telemetry  *telemetry.Emitter
	Clock      clock.Clock
	Logger     *slog.Logger
}

// New constructs an Orchestrator. Logger defaults to slog.Default if nil.
func New(c Collaborators) *Orchestrator {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		limiter:    c.Limiter,
		verifier:   c.Verifier,
		suppressor: c.Suppressor,
		scorer:     c.Scorer,
		decider:    c.Decider,
		metrics:    c.Metrics,
		telemetry:  c.Telemetry,
		clock:      c.Clock,
		logger:     logger,
	}
}

// Validate runs one credential through the full pipeline, producing a
// well-formed Response in every case. It never returns an error and never
// lets a panic from any collaborator escape; any such failure collapses
// to DENY/INTERNAL_ERROR.
func (o *Orchestrator) Validate(ctx context.Context, credential, requestID string) (resp models.Response) {
	start := o.clock.NowMonotonic()
	o.metrics.IncrementTotal()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline panic recovered, failing closed", "request_id", requestID, "recover", r)
			o.metrics.RecordDeny()
			o.telemetry.EmitError(telemetry.ErrorEvent{
				RequestID:    requestID,
				ErrorKind:    "panic",
				ErrorMessage: fmt.Sprintf("%v", r),
			})
			resp = o.denyResponse(requestID, models.ReasonInternalError, 0, false)
		}
	}()

	if !o.limiter.AdmitGlobal() {
		o.metrics.RecordRateLimitHit()
		latency := o.latencyMS(start)
		o.telemetry.EmitDecision(telemetry.DecisionEvent{
			RequestID: requestID,
			Verdict:   models.Deny,
			Reason:    models.ReasonRateLimitExceeded,
			HasReason: true,
			LatencyMS: latency,
		})
		return o.denyResponse(requestID, models.ReasonRateLimitExceeded, 0, false)
	}

	claims, err := o.verifier.Verify(credential)
	if err != nil {
		reason := mapVerificationFailure(err)
		o.metrics.RecordDeny()
		latency := o.latencyMS(start)
		o.telemetry.EmitDecision(telemetry.DecisionEvent{
			RequestID: requestID,
			Verdict:   models.Deny,
			Reason:    reason,
			HasReason: true,
			LatencyMS: latency,
		})
		return o.denyResponse(requestID, reason, 0, false)
	}

	if o.suppressor.CheckAndRecord(claims.JTI, claims.ExpiresAt) {
		o.metrics.RecordReplayDetection()
		latency := o.latencyMS(start)
		o.telemetry.EmitDecision(telemetry.DecisionEvent{
			RequestID: requestID,
			Verdict:   models.Deny,
			Reason:    models.ReasonReplayDetected,
			HasReason: true,
			LatencyMS: latency,
		})
		return o.denyResponse(requestID, models.ReasonReplayDetected, 0, false)
	}

	scoreValue := o.scorer.GetScore(ctx, claims.Subject)
	verdict := o.decider.Decide(scoreValue)
	latency := o.latencyMS(start)

	event := telemetry.DecisionEvent{
		RequestID:     requestID,
		Verdict:       verdict,
		Score:         scoreValue,
		HasScore:      true,
		PrincipalHash: score.HashPrincipal(claims.Subject),
		LatencyMS:     latency,
	}
	if verdict == models.Deny {
		event.Reason = models.ReasonLowScore
		event.HasReason = true
	}
	o.telemetry.EmitDecision(event)
	o.metrics.RecordRequest(string(verdict), latency)

	return models.Response{
		Verdict:   verdict,
		Reason:    event.Reason,
		HasReason: event.HasReason,
		Score:     scoreValue,
		HasScore:  true,
		RequestID: requestID,
		Timestamp: time.Unix(o.clock.Now(), 0).UTC(),
	}
}

func (o *Orchestrator) denyResponse(requestID string, reason models.DenyReason, scoreValue int, hasScore bool) models.Response {
	return models.Response{
		Verdict:   models.Deny,
		Reason:    reason,
		HasReason: true,
		Score:     scoreValue,
		HasScore:  hasScore,
		RequestID: requestID,
		Timestamp: time.Unix(o.clock.Now(), 0).UTC(),
	}
}

func (o *Orchestrator) latencyMS(startMonotonic float64) float64 {
	return (o.clock.NowMonotonic() - startMonotonic) * 1000
}

func mapVerificationFailure(err error) models.DenyReason {
	failure, ok := verifier.AsFailure(err)
	if !ok {
		return models.ReasonInternalError
	}
	switch failure.Kind {
	case verifier.FailureExpired:
		return models.ReasonExpiredToken
	case verifier.FailureNotYetValid:
		return models.ReasonNotYetValid
	case verifier.FailureInvalidSignature:
		return models.ReasonInvalidSignature
	case verifier.FailureMalformed:
		return models.ReasonMalformedToken
	default:
		return models.ReasonInternalError
	}
}
