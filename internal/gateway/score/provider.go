// Package score implements trusted-score retrieval (component C5): a
// fail-closed, backend-selectable provider that is never permitted to
// read its answer from the credential under evaluation.
//
// Three backends (direct / cached / remote) are grounded on the OCX
// backend's own adapters:
// Store on cmd/server/main.go's lib/pq-backed *sql.DB, Cache on
// internal/infra/redis_adapter.go's go-redis v9 wrapper, and the remote
// HTTP client on internal/service/trust_engine.go's bounded-timeout
// http.Client.
package score

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is the record-store capability backing the "direct" backend.
type Store interface {
	// GetScore returns the stored score for principalID. found is false
	// when no record exists; callers treat that the same as an error —
	// fail-closed to 0.
	GetScore(ctx context.Context, principalID string) (s int, found bool, err error)
}

// Cache is the TTL-keyed capability backing the "cached" backend. It may
// be satisfied by an in-process store or a remote one (e.g. Redis); cache
// write failures are always best-effort and must never surface as a
// GetScore error.
type Cache interface {
	Get(ctx context.Context, principalID string) (s int, found bool, err error)
	Set(ctx context.Context, principalID string, s int) error
}

// Provider is the interface the Orchestrator depends on. Every
// implementation is fail-closed: any error path, absent record, or
// out-of-range value yields 0.
type Provider interface {
	GetScore(ctx context.Context, principalID string) int
}

// clampScore enforces the [0, 100] invariant on a raw value, whatever its
// source. Out-of-range values fail closed to 0 rather than clamping to
// the nearer bound — an out-of-range score indicates a corrupt or
// untrusted record, not a merely extreme one.
func clampScore(s int) int {
	if s < 0 || s > 100 {
		return 0
	}
	return s
}

// HashPrincipal returns the lowercase hex SHA-256 digest of id, used by
// telemetry so principal identifiers never appear in plaintext in logs.
// It is pure and deterministic: same input always yields the same
// 64-character digest.
func HashPrincipal(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
