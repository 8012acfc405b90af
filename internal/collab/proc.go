package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"remig/internal/graph"
	"remig/internal/risk"
)

// runJSON invokes an external collaborator command, writing the request as
// JSON on stdin and decoding the reply from stdout. Collaborator processes
// are one-shot: one request, one reply, exit.
func runJSON(ctx context.Context, argv []string, req, resp interface{}) error {
	if len(argv) == 0 {
		return fmt.Errorf("no collaborator command configured")
	}

	input, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal collaborator request: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("collaborator %s failed: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return fmt.Errorf("collaborator %s returned malformed JSON: %w", argv[0], err)
	}
	return nil
}

// CommandRewriter runs the rewrite collaborator as an external command
type CommandRewriter struct {
	Argv []string
}

type describeEnvelope struct {
	Op string `json:"op"`
	DescribeRequest
}

type applyRequest struct {
	Op         string     `json:"op"`
	Descriptor Descriptor `json:"descriptor"`
}

func (r *CommandRewriter) Describe(ctx context.Context, req DescribeRequest) (Descriptor, error) {
	var desc Descriptor
	if err := runJSON(ctx, r.Argv, describeEnvelope{Op: "describe", DescribeRequest: req}, &desc); err != nil {
		return desc, err
	}
	// identity fields come from the request, not the reply
	desc.UnitID = req.UnitID
	desc.Kind = req.Kind
	desc.BridgeFor = req.BridgeFor
	return desc, nil
}

func (r *CommandRewriter) Apply(ctx context.Context, desc Descriptor) (ApplyResult, error) {
	var res ApplyResult
	err := runJSON(ctx, r.Argv, applyRequest{Op: "apply", Descriptor: desc}, &res)
	return res, err
}

// CommandVerifier runs the verification collaborator as an external command
type CommandVerifier struct {
	Argv []string
}

type signalsRequest struct {
	Op         string   `json:"op"`
	Components []string `json:"components"`
}

func (v *CommandVerifier) Signals(ctx context.Context, componentIDs []string) (map[string]risk.Signal, error) {
	var signals map[string]risk.Signal
	err := runJSON(ctx, v.Argv, signalsRequest{Op: "signals", Components: componentIDs}, &signals)
	return signals, err
}

// StaticRewriter produces descriptors locally, for planning with no rewrite
// collaborator configured. Applying always fails: planning is as far as a
// static descriptor goes.
type StaticRewriter struct{}

func (StaticRewriter) Describe(ctx context.Context, req DescribeRequest) (Descriptor, error) {
	desc := Descriptor{
		UnitID:    req.UnitID,
		Goal:      req.Goal,
		Kind:      req.Kind,
		BridgeFor: req.BridgeFor,
	}
	if req.Kind == KindBridge {
		desc.Summary = fmt.Sprintf("compatibility shim over %s while %s moves toward %s", req.BridgeFor, req.UnitID, req.Goal)
	} else {
		desc.Summary = fmt.Sprintf("transform %d component(s) toward %s", len(req.Components), req.Goal)
	}
	return desc, nil
}

func (StaticRewriter) Apply(ctx context.Context, desc Descriptor) (ApplyResult, error) {
	return ApplyResult{}, fmt.Errorf("no rewrite collaborator configured")
}

// NoSignals is the verifier used when no verification collaborator is
// configured: every component is uncovered, the most conservative reading.
type NoSignals struct{}

func (NoSignals) Signals(ctx context.Context, componentIDs []string) (map[string]risk.Signal, error) {
	return map[string]risk.Signal{}, nil
}

// StaticFacts is a Parser over facts the caller already holds
type StaticFacts struct {
	Facts graph.Facts
}

func (s StaticFacts) SnapshotFacts(ctx context.Context) (graph.Facts, error) {
	return s.Facts, nil
}
