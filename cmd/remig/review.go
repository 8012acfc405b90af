package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"remig/internal/gitvcs"
)

var approveCmd = &cobra.Command{
	Use:   "approve <planId>",
	Short: "Approve a blocked step and continue execution",
	Long: `Resolve a plan halted for manual review: the blocked step is re-executed
with the risk gate bypassed for that one attempt, then execution continues
under the normal safety rules.

Examples:
  remig approve 6b4e...`,
	Args: cobra.ExactArgs(1),
	Run:  runApprove,
}

var rejectCmd = &cobra.Command{
	Use:   "reject <planId>",
	Short: "Reject a blocked step and cancel the plan",
	Long: `Mark a blocked step failed. The plan will not execute further; synthesize
a new plan (possibly under a different safety level or goal) instead.

Examples:
  remig reject 6b4e...`,
	Args: cobra.ExactArgs(1),
	Run:  runReject,
}

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
}

func runApprove(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vcs := gitvcs.New(repoFlag, e.logger)
	guardCleanTree(ctx, vcs)

	out, err := e.orchestratorFor(vcs).Approve(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reportOutcome(out)
}

func runReject(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	if err := e.orchestratorFor(nil).Reject(context.Background(), args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("plan %s rejected\n", args[0])
}
