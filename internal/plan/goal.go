package plan

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// GoalFile is the conventional name of the target-architecture declaration
const GoalFile = "GOAL.toml"

// Goal is the target-architecture declaration supplied to the engine. The
// engine does not judge whether the target is correct; it only parameterizes
// the rewrite collaborator with it.
type Goal struct {
	// Name of the target architecture, e.g. "event-driven", "microservices"
	Name string `toml:"name"`

	// Description is free-form context for operators
	Description string `toml:"description,omitempty"`

	// Parameters are forwarded opaquely to the rewrite collaborator
	Parameters map[string]string `toml:"parameters,omitempty"`

	// PriorityUnits lists units to migrate ahead of dependency order.
	// Honored only when the safety level permits bridge steps.
	PriorityUnits []string `toml:"priorityUnits,omitempty"`

	// CoverageThresholds overrides the per-safety-level coverage threshold,
	// keyed by level name
	CoverageThresholds map[string]float64 `toml:"coverageThresholds,omitempty"`
}

// LoadGoal reads and validates a goal declaration from a TOML file
func LoadGoal(path string) (*Goal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read goal file: %w", err)
	}

	var g Goal
	if err := toml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse goal file %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &g, nil
}

// Validate checks the goal declaration for internal consistency
func (g *Goal) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("goal must declare a target architecture name")
	}
	for level, v := range g.CoverageThresholds {
		if _, err := ParseSafetyLevel(level); err != nil {
			return fmt.Errorf("coverage threshold for unknown safety level %q", level)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("coverage threshold for %s must be within [0,1], got %v", level, v)
		}
	}
	return nil
}
