package collab

import (
	"context"
	"os/exec"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandRewriterDescribe(t *testing.T) {
	requireShell(t)

	// echo back a fixed descriptor regardless of input
	r := &CommandRewriter{Argv: []string{"sh", "-c",
		`cat > /dev/null; echo '{"unitId":"other","goal":"modular","summary":"split"}'`}}

	desc, err := r.Describe(context.Background(), DescribeRequest{
		UnitID:     "billing",
		Components: []string{"billing"},
		Goal:       "modular",
		Kind:       KindBridge,
		BridgeFor:  "ledger",
	})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if desc.Summary != "split" {
		t.Errorf("descriptor = %+v", desc)
	}
	// identity fields reflect the request even when the reply disagrees
	if desc.UnitID != "billing" || desc.Kind != KindBridge || desc.BridgeFor != "ledger" {
		t.Errorf("descriptor identity = %+v, want request's billing/bridge/ledger", desc)
	}
}

func TestCommandVerifierSignals(t *testing.T) {
	requireShell(t)

	v := &CommandVerifier{Argv: []string{"sh", "-c",
		`cat > /dev/null; echo '{"api":{"componentId":"api","passing":true,"coverage":0.9}}'`}}

	signals, err := v.Signals(context.Background(), []string{"api"})
	if err != nil {
		t.Fatalf("Signals failed: %v", err)
	}
	s, ok := signals["api"]
	if !ok || !s.Passing || s.Coverage != 0.9 {
		t.Errorf("signals = %+v", signals)
	}
}

func TestCommandFailureIncludesStderr(t *testing.T) {
	requireShell(t)

	r := &CommandRewriter{Argv: []string{"sh", "-c", `echo "patch rejected" >&2; exit 3`}}
	_, err := r.Describe(context.Background(), DescribeRequest{UnitID: "u", Goal: "g", Kind: KindMigrate})
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "patch rejected") {
		t.Errorf("error should carry stderr, got: %v", err)
	}
}

func TestMalformedReplyIsAnError(t *testing.T) {
	requireShell(t)

	r := &CommandRewriter{Argv: []string{"sh", "-c", `cat > /dev/null; echo "not json"`}}
	if _, err := r.Describe(context.Background(), DescribeRequest{UnitID: "u", Goal: "g", Kind: KindMigrate}); err == nil {
		t.Error("expected malformed JSON error")
	}
}

func TestUnconfiguredCommand(t *testing.T) {
	r := &CommandRewriter{}
	if _, err := r.Describe(context.Background(), DescribeRequest{UnitID: "u", Goal: "g"}); err == nil {
		t.Error("expected error for empty argv")
	}
}

func TestStaticRewriter(t *testing.T) {
	desc, err := StaticRewriter{}.Describe(context.Background(), DescribeRequest{
		UnitID:     "u1",
		Components: []string{"a", "b"},
		Goal:       "event-driven",
		Kind:       KindMigrate,
	})
	if err != nil {
		t.Fatal(err)
	}
	if desc.UnitID != "u1" || desc.Goal != "event-driven" || desc.Kind != KindMigrate {
		t.Errorf("descriptor = %+v", desc)
	}

	shim, err := StaticRewriter{}.Describe(context.Background(), DescribeRequest{
		UnitID:     "u1",
		Components: []string{"a", "b"},
		Goal:       "event-driven",
		Kind:       KindBridge,
		BridgeFor:  "u2",
	})
	if err != nil {
		t.Fatal(err)
	}
	if shim.Kind != KindBridge || shim.BridgeFor != "u2" || shim.Summary == desc.Summary {
		t.Errorf("bridge descriptor = %+v, must be distinguishable from migrate", shim)
	}

	if _, err := (StaticRewriter{}).Apply(context.Background(), desc); err == nil {
		t.Error("static rewriter must refuse to apply")
	}
}
