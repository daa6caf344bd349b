// Package models holds the shared value types that flow through the
// admission pipeline: verdicts, deny reasons, credential claims and the
// wire-level response shape.
package models

import "time"

// Verdict is the pipeline's enforcement output.
type Verdict string

const (
	Allow   Verdict = "ALLOW"
	Monitor Verdict = "MONITOR"
	Deny    Verdict = "DENY"
)

// DenyReason enumerates why a request was denied. Only meaningful when
// Verdict == Deny.
type DenyReason string

const (
	ReasonExpiredToken       DenyReason = "EXPIRED_TOKEN"
	ReasonNotYetValid        DenyReason = "NOT_YET_VALID"
	ReasonReplayDetected     DenyReason = "REPLAY_DETECTED"
	ReasonRateLimitExceeded  DenyReason = "RATE_LIMIT_EXCEEDED"
	ReasonInvalidSignature   DenyReason = "INVALID_SIGNATURE"
	ReasonLowScore           DenyReason = "LOW_SCORE"
	ReasonMalformedToken     DenyReason = "MALFORMED_TOKEN"
	ReasonInternalError      DenyReason = "INTERNAL_ERROR"
)

// Claims carries the verified claims of a credential. Sub and JTI are
// guaranteed non-empty by the verifier once returned successfully.
type Claims struct {
	Subject   string
	JTI       string
	ExpiresAt int64
	IssuedAt  int64
	NotBefore int64
	HasNBF    bool
}

// Response is the result of running the pipeline on one request. Reason
// is only set when Verdict == Deny; Score is only set once verification
// succeeded (it is never populated on an early DENY from rate limiting,
// verification, or replay).
type Response struct {
	Verdict   Verdict
	Reason    DenyReason
	HasReason bool
	Score     int
	HasScore  bool
	RequestID string
	Timestamp time.Time
}
