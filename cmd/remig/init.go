package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"remig/internal/config"
	"remig/internal/plan"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize remig in a repository",
	Long: `Create the .remig state directory with a default config.json, and a
GOAL.toml template if none exists.

Examples:
  remig init`,
	Run: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

const goalTemplate = `# Target-architecture declaration consumed by 'remig plan'.
name = "modular"
description = "describe the target architecture here"

# Units to migrate ahead of dependency order (needs safety medium or low):
# priorityUnits = ["billing"]

# Per-safety-level coverage threshold overrides:
# [coverageThresholds]
# high = 0.9
`

func runInit(cmd *cobra.Command, args []string) {
	cfgPath := filepath.Join(repoFlag, ".remig", "config.json")
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("%s already exists\n", cfgPath)
	} else {
		if err := config.DefaultConfig().Save(repoFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", cfgPath)
	}

	goalPath := filepath.Join(repoFlag, plan.GoalFile)
	if _, err := os.Stat(goalPath); err == nil {
		fmt.Printf("%s already exists\n", goalPath)
		return
	}
	if err := os.WriteFile(goalPath, []byte(goalTemplate), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing goal template: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", goalPath)
}
