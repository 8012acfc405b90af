package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Decompose the dependency graph into ordered migration units",
	Long: `Compute strongly-connected components of the current dependency graph and
print them in dependency order: a unit never precedes a unit it depends on.
Units holding a true cycle are flagged irreducible; they can only be
migrated as a whole.

Examples:
  remig partition
  remig partition --format=json`,
	Run: runPartition,
}

func init() {
	rootCmd.AddCommand(partitionCmd)
}

func runPartition(cmd *cobra.Command, args []string) {
	e := mustLoadEnv()
	defer e.close()

	g, part := e.snapshot(newContext())

	if jsonOutput() {
		printJSON(map[string]interface{}{
			"snapshotHash": g.Hash(),
			"units":        part.Units,
		})
		return
	}

	fmt.Printf("snapshot %s: %d components, %d units\n", g.Hash()[:12], g.NumComponents(), len(part.Units))
	for i, u := range part.Units {
		marker := " "
		if u.Irreducible {
			marker = "*"
		}
		fmt.Printf("%3d %s %-20s %s\n", i+1, marker, u.ID, strings.Join(u.Components, ", "))
	}
	fmt.Println("\n* irreducible (cycle, migrated as a whole)")
}
