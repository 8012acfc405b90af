package plan

import (
	"fmt"
	"strings"

	"remig/internal/risk"
)

// SafetyLevel controls how much risk the engine accepts automatically
type SafetyLevel string

const (
	// SafetyHigh enforces strict dependency order, forbids bridges, and
	// halts on cascading risk
	SafetyHigh SafetyLevel = "high"
	// SafetyMedium allows bridges; cascading risk still halts
	SafetyMedium SafetyLevel = "medium"
	// SafetyLow allows bridges and only halts on fatal structural failures;
	// cascading risk is logged but does not block
	SafetyLow SafetyLevel = "low"
)

// ParseSafetyLevel parses a safety level string
func ParseSafetyLevel(s string) (SafetyLevel, error) {
	switch SafetyLevel(strings.ToLower(strings.TrimSpace(s))) {
	case SafetyHigh:
		return SafetyHigh, nil
	case SafetyMedium:
		return SafetyMedium, nil
	case SafetyLow:
		return SafetyLow, nil
	default:
		return "", fmt.Errorf("invalid safety level %q (want low, medium or high)", s)
	}
}

// AllowsBridges reports whether forward-looking bridge steps are permitted
func (l SafetyLevel) AllowsBridges() bool {
	return l != SafetyHigh
}

// ForbidsUnreachable reports whether the level refuses to operate on
// irreducible units with no externally reachable component
func (l SafetyLevel) ForbidsUnreachable() bool {
	return l == SafetyHigh
}

// PermitsTier reports whether a step classified at the given tier may
// proceed automatically under this level
func (l SafetyLevel) PermitsTier(t risk.Tier) bool {
	if l == SafetyLow {
		return true
	}
	return risk.AtMost(t, risk.TierContained)
}

// DefaultCoverageThreshold is the per-component coverage the classifier
// requires at this level unless the goal overrides it
func (l SafetyLevel) DefaultCoverageThreshold() float64 {
	switch l {
	case SafetyHigh:
		return 0.8
	case SafetyMedium:
		return 0.5
	default:
		return 0.0
	}
}

// Policy builds the classifier policy for this level, honoring any
// per-level override declared in the goal
func (l SafetyLevel) Policy(g *Goal) risk.Policy {
	threshold := l.DefaultCoverageThreshold()
	if g != nil {
		if v, ok := g.CoverageThresholds[string(l)]; ok {
			threshold = v
		}
	}
	return risk.Policy{CoverageThreshold: threshold}
}
