package main

import (
	"remig/internal/version"

	"github.com/spf13/cobra"
)

var (
	// repoFlag is the repository root containing .remig state and facts
	repoFlag string
	// formatFlag selects command output: json or human
	formatFlag string
)

var rootCmd = &cobra.Command{
	Use:   "remig",
	Short: "remig - regression-aware migration planner",
	Long: `remig plans and executes incremental architecture migrations. It builds a
dependency graph from parsed component facts, decomposes cycles into ordered
migration units, classifies the regression risk of each step, and drives
external rewrite/verification collaborators through a transactional,
checkpointed execution loop.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("remig version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", ".", "Repository root")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "human", "Output format (json, human)")
}
