package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"remig/internal/plan"
)

var planSafety string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Synthesize a migration plan from GOAL.toml",
	Long: `Build the current dependency graph, decompose it into migration units, and
synthesize an ordered plan toward the goal declared in GOAL.toml. The plan
is persisted so it can be executed, paused and resumed by id.

Synthesis is deterministic: the same graph, goal and safety level always
produce the same plan id and steps.

Examples:
  remig plan
  remig plan --safety=low --format=json`,
	Run: runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planSafety, "safety", "", "Safety level (low, medium, high; default from config)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()
	ctx := newContext()

	g, part := e.snapshot(ctx)
	goal := e.loadGoal()
	level := e.safetyLevel(planSafety)

	synth := plan.NewSynthesizer(e.logger, e.rewriter())
	p, err := synth.Synthesize(ctx, g, part, goal, level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error synthesizing plan: %v\n", err)
		os.Exit(1)
	}

	if err := e.stores.Plans.Save(p); err != nil {
		fmt.Fprintf(os.Stderr, "Error persisting plan: %v\n", err)
		os.Exit(1)
	}
	if err := e.stores.Snapshots.Put(g); err != nil {
		fmt.Fprintf(os.Stderr, "Error persisting snapshot: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput() {
		printJSON(p)
		return
	}

	fmt.Printf("plan %s\n", p.ID)
	fmt.Printf("goal %s, safety %s, snapshot %s\n", p.GoalName, p.SafetyLevel, p.SnapshotHash[:12])
	for i, st := range p.Steps {
		switch st.Kind {
		case plan.KindBridge:
			fmt.Printf("%3d bridge  %-20s shim for %s\n", i+1, st.UnitID, st.BridgeFor)
		default:
			fmt.Printf("%3d migrate %-20s %d component(s)\n", i+1, st.UnitID, len(st.Components))
		}
	}
	fmt.Printf("\nrun with: remig run %s\n", p.ID)
}
