package plan

import (
	"context"
	"time"

	"github.com/google/uuid"

	"remig/internal/collab"
	"remig/internal/errors"
	"remig/internal/graph"
	"remig/internal/logging"
	"remig/internal/partition"
)

// namespace for deterministic plan and step identifiers
var idNamespace = uuid.MustParse("7f1c6e1a-52d4-4b7e-9f0a-3c8d2b6e4a15")

func planID(snapshotHash, goalName string, level SafetyLevel) string {
	return uuid.NewSHA1(idNamespace, []byte(snapshotHash+"|"+goalName+"|"+string(level))).String()
}

func stepID(plan, unit string, kind StepKind, bridgeFor string) string {
	return uuid.NewSHA1(idNamespace, []byte(plan+"|"+unit+"|"+string(kind)+"|"+bridgeFor)).String()
}

// Synthesizer turns a unit partial order plus a goal into an ordered Plan.
type Synthesizer struct {
	logger   *logging.Logger
	rewriter collab.Rewriter
	now      func() time.Time
}

func NewSynthesizer(logger *logging.Logger, rewriter collab.Rewriter) *Synthesizer {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Synthesizer{logger: logger, rewriter: rewriter, now: time.Now}
}

// Synthesize emits one migrate step per unit in dependency order. Units
// named in goal.PriorityUnits are hoisted ahead of their position when the
// safety level allows bridges; each hoisted unit gets a bridge step per
// not-yet-scheduled dependency so the rest of the graph keeps compiling
// against the old shape. At high safety an irreducible unit with no
// externally reachable component aborts synthesis.
func (s *Synthesizer) Synthesize(ctx context.Context, g *graph.Graph, part *partition.Result, goal *Goal, level SafetyLevel) (*Plan, error) {
	if err := goal.Validate(); err != nil {
		return nil, err
	}

	if level.ForbidsUnreachable() {
		for _, u := range part.Units {
			if u.Irreducible && !part.ExternallyReachable(g, u.ID) {
				return nil, errors.New(errors.CycleWithoutEntryPoint,
					"irreducible unit has no externally reachable component", nil).
					WithDetail("unit", u.ID).
					WithDetail("components", u.Components)
			}
		}
	}

	order := scheduleOrder(part, goal, level)

	p := &Plan{
		ID:                planID(g.Hash(), goal.Name, level),
		CreatedAt:         s.now().UTC(),
		SnapshotHash:      g.Hash(),
		GoalName:          goal.Name,
		SafetyLevel:       level,
		CoverageThreshold: level.Policy(goal).CoverageThreshold,
	}

	scheduled := make(map[string]bool, len(order))
	for _, unitID := range order {
		u, _ := part.Unit(unitID)

		// Dependencies not yet scheduled need a bridge shim so this unit
		// can move first.
		var bridges []string
		var pre []Condition
		for _, dep := range part.DependenciesOf(unitID) {
			if scheduled[dep] {
				pre = append(pre, Condition{Kind: CondUnitVerified, Unit: dep})
			} else {
				bridges = append(bridges, dep)
			}
		}
		if len(bridges) > 0 && !level.AllowsBridges() {
			return nil, errors.New(errors.InternalError,
				"schedule placed a unit before its dependency without bridge support", nil).
				WithDetail("unit", unitID)
		}

		for _, dep := range bridges {
			desc, err := s.rewriter.Describe(ctx, collab.DescribeRequest{
				UnitID:     unitID,
				Components: u.Components,
				Goal:       goal.Name,
				Kind:       string(KindBridge),
				BridgeFor:  dep,
			})
			if err != nil {
				return nil, errors.New(errors.InternalError, "rewrite collaborator rejected bridge descriptor", err).
					WithDetail("unit", unitID).
					WithDetail("bridgeFor", dep)
			}
			p.Steps = append(p.Steps, Step{
				ID:             stepID(p.ID, unitID, KindBridge, dep),
				Kind:           KindBridge,
				UnitID:         unitID,
				Components:     u.Components,
				BridgeFor:      dep,
				Transformation: desc,
				Status:         StatusPending,
			})
		}

		desc, err := s.rewriter.Describe(ctx, collab.DescribeRequest{
			UnitID:     unitID,
			Components: u.Components,
			Goal:       goal.Name,
			Kind:       string(KindMigrate),
		})
		if err != nil {
			return nil, errors.New(errors.InternalError, "rewrite collaborator rejected transformation descriptor", err).
				WithDetail("unit", unitID)
		}

		var post []Condition
		for _, c := range u.Components {
			post = append(post, Condition{Kind: CondComponentPresent, Component: c})
		}

		p.Steps = append(p.Steps, Step{
			ID:             stepID(p.ID, unitID, KindMigrate, ""),
			Kind:           KindMigrate,
			UnitID:         unitID,
			Components:     u.Components,
			Transformation: desc,
			Preconditions:  pre,
			Postconditions: post,
			Status:         StatusPending,
		})
		scheduled[unitID] = true
	}

	s.logger.Info("plan synthesized", map[string]interface{}{
		"planId":      p.ID,
		"goal":        goal.Name,
		"safetyLevel": string(level),
		"steps":       len(p.Steps),
	})
	return p, nil
}

// scheduleOrder returns unit ids in execution order. The base order is the
// partition's dependencies-first order; when bridges are allowed, units in
// goal.PriorityUnits are hoisted to the front (in their declared order)
// along with nothing else, leaving the remainder in partition order.
func scheduleOrder(part *partition.Result, goal *Goal, level SafetyLevel) []string {
	base := make([]string, 0, len(part.Units))
	for _, u := range part.Units {
		base = append(base, u.ID)
	}
	if !level.AllowsBridges() || len(goal.PriorityUnits) == 0 {
		return base
	}

	hoisted := make([]string, 0, len(goal.PriorityUnits))
	seen := make(map[string]bool, len(goal.PriorityUnits))
	for _, id := range goal.PriorityUnits {
		if _, ok := part.Unit(id); ok && !seen[id] {
			hoisted = append(hoisted, id)
			seen[id] = true
		}
	}
	if len(hoisted) == 0 {
		return base
	}
	order := hoisted
	for _, id := range base {
		if !seen[id] {
			order = append(order, id)
		}
	}
	return order
}
