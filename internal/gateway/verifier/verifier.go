// Package verifier implements cryptographic credential verification with
// temporal-window checks (component C3 of the admission pipeline).
//
// It is grounded on the same asymmetric-signature discipline as the
// OCX backend's internal/federation crypto provider (explicit algorithm
// selection, PEM-encoded keys, constant-time comparisons left to the
// underlying crypto library) but verifies third-party-issued JWTs rather
// than signing the gateway's own handshake challenges, using
// go-jose/go-jose's JWS parsing instead of hand-rolled signature checks.
package verifier

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	jose "github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/ocx/trustgate/internal/gateway/clock"
	"github.com/ocx/trustgate/internal/gateway/models"
)

// FailureKind is the closed set of ways verification can fail, a sum
// type so the Orchestrator's mapping to a DenyReason is exhaustive by
// construction.
type FailureKind int

const (
	FailureMalformed FailureKind = iota
	FailureInvalidSignature
	FailureExpired
	FailureNotYetValid
)

// Failure is returned by Verify on any validation failure.
type Failure struct {
	Kind FailureKind
}

func (f *Failure) Error() string {
	switch f.Kind {
	case FailureMalformed:
		return "malformed credential"
	case FailureInvalidSignature:
		return "invalid signature"
	case FailureExpired:
		return "expired credential"
	case FailureNotYetValid:
		return "credential not yet valid"
	default:
		return "credential verification failed"
	}
}

// AllowedAlgorithms is the asymmetric signature-algorithm allow-list the
// spec restricts verification to. Anything outside this set — including
// "none" and HMAC families — is rejected as an invalid signature,
// regardless of whether the signature itself would check out.
var AllowedAlgorithms = map[jose.SignatureAlgorithm]bool{
	jose.RS256: true,
	jose.RS384: true,
	jose.RS512: true,
	jose.ES256: true,
	jose.ES384: true,
	jose.ES512: true,
}

// parseAlgorithms is the broad set of signature algorithms go-jose is
// permitted to structurally parse before we apply our own allow-list.
// It intentionally includes algorithms we will go on to reject (HS*,
// none) so that a token presenting one of them parses successfully and
// is rejected by our allow-list check as FailureInvalidSignature, rather
// than failing inside go-jose as an opaque parse error that would
// otherwise be misclassified as FailureMalformed.
var parseAlgorithms = []jose.SignatureAlgorithm{
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.HS256, jose.HS384, jose.HS512,
	jose.SignatureAlgorithm("none"),
}

// Config configures the verifier.
type Config struct {
	PublicKeyPath     string
	Algorithm         string // one of AllowedAlgorithms, as a string
	ClockDriftSeconds int64
}

// Verifier performs signature verification and temporal-claim checks.
// Fail-closed: construction fails (and must abort startup) if the public
// key cannot be loaded or is not usable with the configured algorithm.
type Verifier struct {
	publicKey  any
	algorithm  jose.SignatureAlgorithm
	clockDrift int64
	clock      clock.Clock
}

// New loads the configured public key and returns a ready Verifier, or a
// fatal error. Callers MUST treat a non-nil error as reason to abort
// service startup — there is no request-time fallback.
func New(cfg Config, c clock.Clock) (*Verifier, error) {
	alg := jose.SignatureAlgorithm(cfg.Algorithm)
	if !AllowedAlgorithms[alg] {
		return nil, fmt.Errorf("jwt algorithm %q is not in the asymmetric allow-list", cfg.Algorithm)
	}

	pemBytes, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt public key %q: %w", cfg.PublicKeyPath, err)
	}

	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("jwt public key %q is not valid PEM", cfg.PublicKeyPath)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jwt public key %q: %w", cfg.PublicKeyPath, err)
	}

	switch alg {
	case jose.RS256, jose.RS384, jose.RS512:
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return nil, fmt.Errorf("jwt algorithm %q requires an RSA public key, got %T", cfg.Algorithm, pub)
		}
	case jose.ES256, jose.ES384, jose.ES512:
		if _, ok := pub.(*ecdsa.PublicKey); !ok {
			return nil, fmt.Errorf("jwt algorithm %q requires an ECDSA public key, got %T", cfg.Algorithm, pub)
		}
	}

	return &Verifier{
		publicKey:  pub,
		algorithm:  alg,
		clockDrift: cfg.ClockDriftSeconds,
		clock:      c,
	}, nil
}

// rawClaims mirrors the registered claims this gateway cares about.
// Deliberately does NOT embed jwt.Claims.Validate-driven checks: exp/nbf
// are re-checked manually below with clock-drift tolerance, so go-jose's
// own (drift-less) temporal validation is never invoked.
type rawClaims struct {
	Subject   string               `json:"sub"`
	JTI       string               `json:"jti"`
	Expiry    *josejwt.NumericDate `json:"exp"`
	NotBefore *josejwt.NumericDate `json:"nbf"`
	IssuedAt  *josejwt.NumericDate `json:"iat"`
}

// Verify validates credential's signature and temporal claims. It never
// panics and never returns a generic error — failures are always *Failure
// so callers can exhaustively switch on Kind.
func (v *Verifier) Verify(credential string) (models.Claims, error) {
	if credential == "" {
		return models.Claims{}, &Failure{Kind: FailureMalformed}
	}

	token, err := josejwt.ParseSigned(credential, parseAlgorithms)
	if err != nil {
		return models.Claims{}, &Failure{Kind: FailureMalformed}
	}

	headers := token.Headers
	if len(headers) != 1 || jose.SignatureAlgorithm(headers[0].Algorithm) != v.algorithm {
		// Either an unsupported family (none, HMAC, ...) or a mismatch
		// against the one algorithm this verifier's key was loaded for.
		return models.Claims{}, &Failure{Kind: FailureInvalidSignature}
	}

	var claims rawClaims
	if err := token.Claims(v.publicKey, &claims); err != nil {
		return models.Claims{}, &Failure{Kind: FailureInvalidSignature}
	}

	if claims.Expiry == nil {
		return models.Claims{}, &Failure{Kind: FailureMalformed}
	}

	now := v.clock.Now()
	exp := int64(*claims.Expiry)
	if now > exp+v.clockDrift {
		return models.Claims{}, &Failure{Kind: FailureExpired}
	}

	if claims.NotBefore != nil {
		nbf := int64(*claims.NotBefore)
		if now < nbf-v.clockDrift {
			return models.Claims{}, &Failure{Kind: FailureNotYetValid}
		}
	}

	if claims.Subject == "" || claims.JTI == "" {
		return models.Claims{}, &Failure{Kind: FailureMalformed}
	}

	result := models.Claims{
		Subject:   claims.Subject,
		JTI:       claims.JTI,
		ExpiresAt: exp,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = int64(*claims.IssuedAt)
	}
	if claims.NotBefore != nil {
		result.NotBefore = int64(*claims.NotBefore)
		result.HasNBF = true
	}
	return result, nil
}

// AsFailure extracts *Failure from err, returning ok=false for any other
// error shape (which should not occur given Verify's contract, but keeps
// callers from panicking on an unexpected error type).
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
