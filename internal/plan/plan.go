package plan

import (
	"crypto/sha256"
	"fmt"
	"time"

	"remig/internal/collab"
)

// StepKind distinguishes real migrations from compatibility shims
type StepKind string

const (
	// KindMigrate transforms a unit toward the goal architecture
	KindMigrate StepKind = "migrate"
	// KindBridge installs a compatibility shim so a unit can be migrated
	// ahead of a dependency that still has its old shape
	KindBridge StepKind = "bridge"
)

// StepStatus is the execution state of a step
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusApplied    StepStatus = "applied"
	StatusVerified   StepStatus = "verified"
	StatusFailed     StepStatus = "failed"
	StatusRolledBack StepStatus = "rolled-back"
	StatusBlocked    StepStatus = "blocked"
)

// ConditionKind names a checkable graph fact
type ConditionKind string

const (
	// CondUnitVerified requires another unit's migrate step to have reached
	// verified status
	CondUnitVerified ConditionKind = "unit-verified"
	// CondComponentPresent requires a component to exist in the snapshot
	CondComponentPresent ConditionKind = "component-present"
)

// Condition is a graph fact required before (precondition) or asserted
// after (postcondition) a step
type Condition struct {
	Kind      ConditionKind `json:"kind"`
	Unit      string        `json:"unit,omitempty"`
	Component string        `json:"component,omitempty"`
}

// Step is one atomic migration action over a single unit
type Step struct {
	ID             string            `json:"id"`
	Kind           StepKind          `json:"kind"`
	UnitID         string            `json:"unitId"`
	Components     []string          `json:"components"`
	BridgeFor      string            `json:"bridgeFor,omitempty"` // dependency unit the shim covers
	Transformation collab.Descriptor `json:"transformation"`
	Preconditions  []Condition       `json:"preconditions,omitempty"`
	Postconditions []Condition       `json:"postconditions,omitempty"`
	Status         StepStatus        `json:"status"`
}

// Plan is an immutable ordered sequence of steps over the unit partial
// order. Step status is the only field the execution orchestrator mutates;
// re-synthesis always produces a new Plan.
type Plan struct {
	ID string `json:"id"`
	// CreatedAt records when synthesis ran. It is not part of plan
	// identity: ID and Fingerprint derive from the snapshot, goal and
	// safety level only, so re-synthesis yields the same plan with a
	// fresh timestamp.
	CreatedAt    time.Time   `json:"createdAt"`
	SnapshotHash string      `json:"snapshotHash"`
	GoalName     string      `json:"goalName"`
	SafetyLevel  SafetyLevel `json:"safetyLevel"`
	// CoverageThreshold is the classifier threshold resolved from the
	// safety level and goal at synthesis time, so execution does not need
	// the goal file
	CoverageThreshold float64 `json:"coverageThreshold"`
	Steps             []Step  `json:"steps"`
}

// Fingerprint hashes the plan's identity and ordered step structure.
// Synthesizing twice from the same snapshot, goal and safety level yields
// the same fingerprint.
func (p *Plan) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%g\n", p.ID, p.SnapshotHash, p.GoalName, p.SafetyLevel, p.CoverageThreshold)
	for _, s := range p.Steps {
		fmt.Fprintf(h, "%s|%s|%s|%s\n", s.ID, s.Kind, s.UnitID, s.BridgeFor)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// StepByID returns the index of the step with the given id, or -1
func (p *Plan) StepByID(id string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return i
		}
	}
	return -1
}
