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

var resumeCmd = &cobra.Command{
	Use:   "resume <planId>",
	Short: "Resume a paused plan from its last checkpoint",
	Long: `Continue executing a plan that was paused or interrupted. Execution picks
up at the step after the last checkpoint, against the checkpointed graph
snapshot.

Examples:
  remig resume 6b4e...`,
	Args: cobra.ExactArgs(1),
	Run:  runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vcs := gitvcs.New(repoFlag, e.logger)
	guardCleanTree(ctx, vcs)

	out, err := e.orchestratorFor(vcs).Resume(ctx, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	reportOutcome(out)
}
