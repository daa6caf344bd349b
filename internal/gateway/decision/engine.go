// Package decision implements the stateless score-to-verdict mapping
// (component C6).
package decision

import "github.com/ocx/trustgate/internal/gateway/models"

const (
	AllowThreshold   = 70
	MonitorThreshold = 50
)

// Decide maps a trusted score in [0, 100] to a verdict. It is pure and
// cannot fail; callers are responsible for clamping/validating score
// before calling if they want a stricter contract, though out-of-range
// scores are classified the same as their nearest bound's neighbor
// (anything below MonitorThreshold is DENY, including negative scores).
func Decide(score int) models.Verdict {
	switch {
	case score >= AllowThreshold:
		return models.Allow
	case score >= MonitorThreshold:
		return models.Monitor
	default:
		return models.Deny
	}
}
