package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"remig/internal/errors"
)

var statusCmd = &cobra.Command{
	Use:   "status [planId]",
	Short: "Show persisted plans and their progress",
	Long: `Without arguments, list all persisted plans. With a plan id, show each
step's status and the latest checkpoint.

Examples:
  remig status
  remig status 6b4e...`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	if len(args) == 0 {
		listPlans(e)
		return
	}
	showPlan(e, args[0])
}

func listPlans(e *env) {
	sums, err := e.stores.Plans.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput() {
		printJSON(sums)
		return
	}
	if len(sums) == 0 {
		fmt.Println("no plans; create one with 'remig plan'")
		return
	}
	for _, s := range sums {
		fmt.Printf("%s  %-20s %-6s %d/%d verified  %s\n",
			s.ID, s.GoalName, s.SafetyLevel, s.Verified, s.Steps,
			s.CreatedAt.Format("2006-01-02 15:04"))
	}
}

func showPlan(e *env, planID string) {
	p, err := e.stores.Plans.Get(planID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cp, cpErr := e.stores.Checkpoints.Latest(planID)

	if jsonOutput() {
		out := map[string]interface{}{"plan": p}
		if cpErr == nil {
			out["checkpoint"] = cp
		}
		printJSON(out)
		return
	}

	fmt.Printf("plan %s\n", p.ID)
	fmt.Printf("goal %s, safety %s, snapshot %s\n", p.GoalName, p.SafetyLevel, p.SnapshotHash[:12])
	for i, st := range p.Steps {
		bridge := ""
		if st.BridgeFor != "" {
			bridge = " (shim for " + st.BridgeFor + ")"
		}
		fmt.Printf("%3d %-7s %-20s %s%s\n", i+1, st.Kind, st.UnitID, st.Status, bridge)
	}
	if cpErr == nil {
		fmt.Printf("\nlast checkpoint: step %d, snapshot %s, vcs ref %s\n",
			cp.StepIndex+1, cp.GraphSnapshotHash[:12], cp.VCSRef)
	} else if errors.HasCode(cpErr, errors.PlanNotFound) {
		fmt.Println("\nno checkpoint yet")
	}
}
