package risk

import (
	"fmt"
	"sort"

	"remig/internal/graph"
	"remig/internal/partition"
)

// Tier is a qualitative bound on how far a change's effects reach through
// the dependency graph
type Tier string

const (
	// TierNone indicates no observable impact, or impact fully covered by
	// passing test signals
	TierNone Tier = "none"
	// TierContained indicates impact confined to the touched migration unit
	TierContained Tier = "contained"
	// TierCascading indicates impact leaking across units, reaching an
	// external boundary, or lacking required test coverage
	TierCascading Tier = "cascading"
)

var tierRank = map[Tier]int{
	TierNone:      0,
	TierContained: 1,
	TierCascading: 2,
}

// Max returns the higher of two tiers. Cascading risk is a maximum over all
// affected components, never an average.
func Max(a, b Tier) Tier {
	if tierRank[a] >= tierRank[b] {
		return a
	}
	return b
}

// AtMost reports whether tier a is no higher than tier b
func AtMost(a, b Tier) bool {
	return tierRank[a] <= tierRank[b]
}

// Signal is a per-component coverage/pass signal from the verification
// collaborator. A component with no signal is treated as uncovered.
type Signal struct {
	ComponentID string  `json:"componentId"`
	Passing     bool    `json:"passing"`
	Coverage    float64 `json:"coverage"` // 0.0 - 1.0
}

// Policy carries the safety-level parameters the classifier needs
type Policy struct {
	// CoverageThreshold is the minimum per-component coverage required for
	// an affected component to avoid the cascading tier
	CoverageThreshold float64
}

// Report is the classification result for one attempted step
type Report struct {
	Tier Tier `json:"tier"`
	// Touched is the normalized touched set the classification used
	Touched []string `json:"touched"`
	// Affected is the touched components plus everything that transitively
	// depends on them
	Affected []string `json:"affected"`
	// PropagationEdges are the edges that carry the effect through the
	// affected set
	PropagationEdges []graph.Edge `json:"propagationEdges,omitempty"`
	// Rule names the classification rule that produced the tier, for
	// halted-plan reporting
	Rule string `json:"rule"`
}

// Classify computes the regression report for a change touching the given
// components on an immutable snapshot.
func (c *Classifier) Classify(g *graph.Graph, part *partition.Result, touched []string, signals map[string]Signal, pol Policy) *Report {
	// Drop ids the snapshot does not know; a deleted component cannot
	// propagate anything
	present := make([]string, 0, len(touched))
	seen := make(map[string]bool, len(touched))
	for _, id := range touched {
		if _, ok := g.Component(id); ok && !seen[id] {
			seen[id] = true
			present = append(present, id)
		}
	}
	sort.Strings(present)

	if len(present) == 0 {
		return &Report{Tier: TierNone, Touched: present, Affected: []string{}, Rule: "empty touched set"}
	}

	touchedUnits := make(map[string]bool)
	for _, id := range present {
		if u, ok := part.UnitOf(id); ok {
			touchedUnits[u] = true
		}
	}

	// The affected set includes the touched components themselves: a changed
	// component is affected by definition, and keeping it in the set makes
	// risk monotonic in the touched set
	affectedSet := c.reachableBackward(g, present)
	for _, id := range present {
		affectedSet[id] = true
	}
	affected := graph.SortedIDs(affectedSet)

	report := &Report{
		Touched:          present,
		Affected:         affected,
		PropagationEdges: propagationEdges(g, affectedSet),
	}

	if len(touchedUnits) > 1 {
		report.Tier = TierCascading
		report.Rule = "touched components span multiple migration units"
		return report
	}

	tier := TierNone
	rule := "affected set fully covered by passing test signals"
	for _, id := range affected {
		compTier, compRule := classifyComponent(g, part, id, touchedUnits, signals, pol)
		if tierRank[compTier] > tierRank[tier] {
			tier, rule = compTier, compRule
		}
		if tier == TierCascading {
			break
		}
	}

	report.Tier = tier
	report.Rule = rule
	return report
}

// classifyComponent applies the tier rules to a single affected component
func classifyComponent(g *graph.Graph, part *partition.Result, id string, touchedUnits map[string]bool, signals map[string]Signal, pol Policy) (Tier, string) {
	comp, _ := g.Component(id)

	if u, ok := part.UnitOf(id); ok && !touchedUnits[u] {
		return TierCascading, fmt.Sprintf("affected component %s is outside the touched unit", id)
	}
	if comp.ExternalBoundary {
		return TierCascading, fmt.Sprintf("affected component %s is an external boundary", id)
	}

	sig, hasSig := signals[id]
	coverage := 0.0
	if hasSig {
		coverage = sig.Coverage
	}
	if coverage < pol.CoverageThreshold {
		return TierCascading, fmt.Sprintf("coverage %.2f for affected component %s below required %.2f", coverage, id, pol.CoverageThreshold)
	}

	if hasSig && sig.Passing {
		return TierNone, ""
	}
	return TierContained, fmt.Sprintf("affected component %s stays inside the touched unit", id)
}

// propagationEdges returns the edges whose both endpoints lie in the
// affected set; these are the edges that carry the effect
func propagationEdges(g *graph.Graph, affected map[string]bool) []graph.Edge {
	var out []graph.Edge
	for _, e := range g.Edges() {
		if affected[e.From] && affected[e.To] {
			out = append(out, e)
		}
	}
	return out
}
