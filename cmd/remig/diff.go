package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"remig/internal/graph"
)

var diffCmd = &cobra.Command{
	Use:   "diff <snapshotHash>",
	Short: "Show the structural delta against a stored snapshot",
	Long: `Compare the current dependency graph with a previously stored snapshot and
report added/removed components and edges. Useful for seeing what a
migration step (or unrelated development) actually changed structurally.

Examples:
  remig diff 4f2a91c0...
  remig diff 4f2a91c0... --format=json`,
	Args: cobra.ExactArgs(1),
	Run:  runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	old, err := e.stores.Snapshots.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cur, _ := e.snapshot(newContext())

	delta := graph.Diff(old, cur)

	if jsonOutput() {
		printJSON(delta)
		return
	}

	if delta.Empty() {
		fmt.Println("no structural changes")
		return
	}
	for _, c := range delta.AddedComponents {
		fmt.Printf("+ component %s (%s)\n", c.ID, c.Kind)
	}
	for _, c := range delta.RemovedComponents {
		fmt.Printf("- component %s (%s)\n", c.ID, c.Kind)
	}
	for _, ed := range delta.AddedEdges {
		fmt.Printf("+ edge %s -> %s (%s)\n", ed.From, ed.To, ed.Kind)
	}
	for _, ed := range delta.RemovedEdges {
		fmt.Printf("- edge %s -> %s (%s)\n", ed.From, ed.To, ed.Kind)
	}
}
