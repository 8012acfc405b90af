// Package collab defines the call/response contracts toward the engine's
// external collaborators: source parsing, code rewriting, verification
// signals and version control. The engine never parses source or rewrites
// code itself; it only decides ordering and safety.
package collab

import (
	"context"
	"encoding/json"

	"remig/internal/graph"
	"remig/internal/risk"
)

// Transformation kinds, shared wire vocabulary with the rewrite
// collaborator.
const (
	KindMigrate = "migrate"
	KindBridge  = "bridge"
)

// Descriptor is an opaque transformation descriptor produced by the rewrite
// collaborator for one migration unit and consumed back verbatim on apply.
// The engine stores and forwards the payload but never interprets it; the
// identity fields (UnitID, Kind, BridgeFor) let the collaborator tell a
// full migration from a compatibility shim when the descriptor comes back
// on Apply.
type Descriptor struct {
	UnitID    string          `json:"unitId"`
	Goal      string          `json:"goal"`
	Kind      string          `json:"kind"`
	BridgeFor string          `json:"bridgeFor,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// DescribeRequest parameterizes a descriptor request. Kind distinguishes a
// full unit migration from a bridge shim; for a bridge, BridgeFor names the
// dependency unit the shim must keep serving while this unit moves early.
type DescribeRequest struct {
	UnitID     string   `json:"unitId"`
	Components []string `json:"components"`
	Goal       string   `json:"goal"`
	Kind       string   `json:"kind"`
	BridgeFor  string   `json:"bridgeFor,omitempty"`
}

// ApplyResult is the outcome of applying a transformation to the working
// tree. Exactly one of Delta or Failure is set.
type ApplyResult struct {
	// Delta describes the working-tree change, opaque to the engine; it is
	// forwarded to the version-control collaborator on commit
	Delta json.RawMessage `json:"delta,omitempty"`
	// DeletedComponents lists components the transformation declares
	// removed; the engine drops their postcondition checks
	DeletedComponents []string `json:"deletedComponents,omitempty"`
	// Failure is the structured reason the transformation could not be
	// applied
	Failure string `json:"failure,omitempty"`
}

// Parser supplies component/edge facts for graph snapshots. It must report
// every component exactly once per call and every edge with both endpoints
// present in the same report.
type Parser interface {
	SnapshotFacts(ctx context.Context) (graph.Facts, error)
}

// Rewriter produces and applies transformations. Describe is called during
// plan synthesis; Apply during execution.
type Rewriter interface {
	Describe(ctx context.Context, req DescribeRequest) (Descriptor, error)
	Apply(ctx context.Context, desc Descriptor) (ApplyResult, error)
}

// Verifier supplies per-component coverage/pass signals. A component absent
// from the returned map is treated as uncovered.
type Verifier interface {
	Signals(ctx context.Context, componentIDs []string) (map[string]risk.Signal, error)
}

// VCS consumes commit and discard requests for applied steps. Commit returns
// a reference recorded in the checkpoint.
type VCS interface {
	Commit(ctx context.Context, stepID string, delta json.RawMessage) (string, error)
	Discard(ctx context.Context, stepID string) error
}
