package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"remig/internal/gitvcs"
	"remig/internal/orchestrator"
)

var runForce bool

var runCmd = &cobra.Command{
	Use:   "run <planId>",
	Short: "Execute a persisted plan step by step",
	Long: `Execute a plan: each step is applied by the rewrite collaborator,
re-classified against the fresh graph, and either committed to git with a
checkpoint or rolled back. Interrupting with Ctrl-C pauses between steps;
resume later with 'remig resume'.

Execution refuses to start on a dirty working tree unless --force is given,
because a rollback discards all uncommitted changes.

Examples:
  remig run 6b4e...
  remig run 6b4e... --force`,
	Args: cobra.ExactArgs(1),
	Run:  runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "Run even if the working tree is dirty")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vcs := gitvcs.New(repoFlag, e.logger)
	guardCleanTree(ctx, vcs)

	p, err := e.stores.Plans.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	g, _ := e.snapshot(ctx)
	if g.Hash() != p.SnapshotHash {
		fmt.Fprintf(os.Stderr, "Error: the graph has changed since this plan was synthesized (snapshot %s, plan expects %s); re-run 'remig plan'\n",
			g.Hash()[:12], p.SnapshotHash[:12])
		os.Exit(1)
	}

	out, err := e.orchestratorFor(vcs).Run(ctx, p, g)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reportOutcome(out)
}

func guardCleanTree(ctx context.Context, vcs *gitvcs.Git) {
	if runForce {
		return
	}
	dirty, err := vcs.Dirty(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error checking working tree: %v\n", err)
		os.Exit(1)
	}
	if dirty {
		fmt.Fprintln(os.Stderr, "Error: working tree has uncommitted changes; commit or stash them, or pass --force")
		os.Exit(1)
	}
}

func reportOutcome(out *orchestrator.Outcome) {
	if jsonOutput() {
		printJSON(out)
		return
	}

	switch {
	case out.Completed:
		fmt.Printf("plan %s completed; final snapshot %s\n", out.PlanID, out.FinalHash[:12])
	case out.Paused:
		fmt.Printf("plan %s paused; resume with: remig resume %s\n", out.PlanID, out.PlanID)
	case out.BlockedStep >= 0:
		fmt.Printf("plan %s halted at step %d for manual review\n", out.PlanID, out.BlockedStep+1)
		if out.Report != nil {
			fmt.Printf("  tier: %s\n", out.Report.Tier)
			fmt.Printf("  rule: %s\n", out.Rule)
			fmt.Printf("  affected: %v\n", out.Report.Affected)
		}
		fmt.Printf("approve with: remig approve %s\nreject with:  remig reject %s\n", out.PlanID, out.PlanID)
	}
}
