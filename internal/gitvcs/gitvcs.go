// Package gitvcs implements the version-control collaborator contract on
// top of the git CLI. One verified step becomes one commit; a discarded
// step resets the working tree to HEAD.
package gitvcs

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"remig/internal/logging"
)

// Git runs against a repository working tree rooted at Root
type Git struct {
	root   string
	logger *logging.Logger
}

func New(root string, logger *logging.Logger) *Git {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Git{root: root, logger: logger}
}

// Commit stages everything and records a commit for the step, returning the
// resulting commit hash as the checkpoint reference.
func (g *Git) Commit(ctx context.Context, stepID string, delta json.RawMessage) (string, error) {
	if _, err := g.run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("failed to stage step changes: %w", err)
	}

	msg := fmt.Sprintf("remig: apply step %s", stepID)
	if _, err := g.run(ctx, "commit", "--allow-empty", "-m", msg); err != nil {
		return "", fmt.Errorf("failed to commit step changes: %w", err)
	}

	ref, err := g.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve commit ref: %w", err)
	}

	g.logger.Debug("step committed", map[string]interface{}{
		"step": stepID,
		"ref":  ref,
	})
	return ref, nil
}

// Discard drops all uncommitted changes for a rolled-back or blocked step
func (g *Git) Discard(ctx context.Context, stepID string) error {
	if _, err := g.run(ctx, "reset", "--hard", "HEAD"); err != nil {
		return fmt.Errorf("failed to reset working tree: %w", err)
	}
	if _, err := g.run(ctx, "clean", "-fd"); err != nil {
		return fmt.Errorf("failed to remove untracked files: %w", err)
	}

	g.logger.Debug("step changes discarded", map[string]interface{}{
		"step": stepID,
	})
	return nil
}

// Head returns the current HEAD commit hash
func (g *Git) Head(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// Dirty reports whether the working tree has uncommitted or untracked
// changes. Execution refuses to start on a dirty tree so rollbacks cannot
// destroy unrelated work.
func (g *Git) Dirty(ctx context.Context) (bool, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("failed to read working tree status: %w", err)
	}
	return out != "", nil
}

func (g *Git) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.root

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}
