package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"remig/internal/collab"
	"remig/internal/errors"
	"remig/internal/graph"
	"remig/internal/logging"
	"remig/internal/partition"
	"remig/internal/plan"
	"remig/internal/risk"
	"remig/internal/store"
)

type fakeParser struct {
	facts graph.Facts
	err   error
}

func (f *fakeParser) SnapshotFacts(ctx context.Context) (graph.Facts, error) {
	if f.err != nil {
		return graph.Facts{}, f.err
	}
	return f.facts, nil
}

type fakeRewriter struct {
	applied  []string
	failures int // fail the first N Apply calls
	onApply  func()
	block    bool // block until the context expires
}

func (f *fakeRewriter) Describe(ctx context.Context, req collab.DescribeRequest) (collab.Descriptor, error) {
	return collab.Descriptor{UnitID: req.UnitID, Goal: req.Goal, Kind: req.Kind, BridgeFor: req.BridgeFor}, nil
}

func (f *fakeRewriter) Apply(ctx context.Context, desc collab.Descriptor) (collab.ApplyResult, error) {
	if f.block {
		<-ctx.Done()
		return collab.ApplyResult{}, ctx.Err()
	}
	if f.failures > 0 {
		f.failures--
		return collab.ApplyResult{Failure: "patch does not apply"}, nil
	}
	f.applied = append(f.applied, desc.UnitID)
	if f.onApply != nil {
		f.onApply()
	}
	return collab.ApplyResult{Delta: []byte(`{"files":1}`)}, nil
}

type fakeVerifier struct {
	signals map[string]risk.Signal
}

func (f *fakeVerifier) Signals(ctx context.Context, ids []string) (map[string]risk.Signal, error) {
	return f.signals, nil
}

type fakeVCS struct {
	commits  []string
	discards []string
}

func (f *fakeVCS) Commit(ctx context.Context, stepID string, delta json.RawMessage) (string, error) {
	f.commits = append(f.commits, stepID)
	return fmt.Sprintf("ref-%d", len(f.commits)), nil
}

func (f *fakeVCS) Discard(ctx context.Context, stepID string) error {
	f.discards = append(f.discards, stepID)
	return nil
}

type harness struct {
	orch     *Orchestrator
	rewriter *fakeRewriter
	vcs      *fakeVCS
	stores   Stores
	graph    *graph.Graph
	db       *store.DB
}

// independentFacts has no edges, so every step classifies none when its
// component carries a passing signal
func independentFacts(ids ...string) graph.Facts {
	var facts graph.Facts
	for _, id := range ids {
		facts.Components = append(facts.Components, graph.Component{ID: id, Kind: graph.KindModule})
	}
	return facts
}

func passingSignals(ids ...string) map[string]risk.Signal {
	out := make(map[string]risk.Signal, len(ids))
	for _, id := range ids {
		out[id] = risk.Signal{ComponentID: id, Passing: true, Coverage: 1.0}
	}
	return out
}

func newHarness(t *testing.T, facts graph.Facts, signals map[string]risk.Signal, opts Options) *harness {
	t.Helper()
	g, err := graph.Build(facts)
	if err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(t.TempDir(), logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	snaps, err := store.NewSnapshotStore(db)
	if err != nil {
		t.Fatal(err)
	}
	stores := Stores{
		Plans:       store.NewPlanStore(db),
		Checkpoints: store.NewCheckpointStore(db),
		Snapshots:   snaps,
	}

	classifier, err := risk.NewClassifier(logging.Nop(), 0)
	if err != nil {
		t.Fatal(err)
	}

	rewriter := &fakeRewriter{}
	vcs := &fakeVCS{}
	collabs := Collaborators{
		Parser:   &fakeParser{facts: facts},
		Rewriter: rewriter,
		Verifier: &fakeVerifier{signals: signals},
		VCS:      vcs,
	}

	return &harness{
		orch:     New(logging.Nop(), classifier, collabs, stores, opts),
		rewriter: rewriter,
		vcs:      vcs,
		stores:   stores,
		graph:    g,
		db:       db,
	}
}

func migrateStep(id, unit string) plan.Step {
	return plan.Step{
		ID:             id,
		Kind:           plan.KindMigrate,
		UnitID:         unit,
		Components:     []string{unit},
		Transformation: collab.Descriptor{UnitID: unit, Goal: "modular"},
		Postconditions: []plan.Condition{{Kind: plan.CondComponentPresent, Component: unit}},
		Status:         plan.StatusPending,
	}
}

func twoStepPlan(h *harness, level plan.SafetyLevel) *plan.Plan {
	return &plan.Plan{
		ID:                "p1",
		CreatedAt:         time.Now().UTC(),
		SnapshotHash:      h.graph.Hash(),
		GoalName:          "modular",
		SafetyLevel:       level,
		CoverageThreshold: level.DefaultCoverageThreshold(),
		Steps:             []plan.Step{migrateStep("s0", "A"), migrateStep("s1", "B")},
	}
}

func TestRunCompletesPlan(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyHigh)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, want completed", out)
	}
	if len(h.vcs.commits) != 2 {
		t.Errorf("commits = %v, want one per step", h.vcs.commits)
	}

	reloaded, err := h.stores.Plans.Get(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range reloaded.Steps {
		if st.Status != plan.StatusVerified {
			t.Errorf("step %d status = %s, want verified", i, st.Status)
		}
	}

	cp, err := h.stores.Checkpoints.Latest(p.ID)
	if err != nil {
		t.Fatalf("no checkpoint after run: %v", err)
	}
	if cp.StepIndex != 1 || cp.VCSRef != "ref-2" {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestApplyFailureRetriesAfterRollback(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"), DefaultOptions())
	h.rewriter.failures = 1
	p := twoStepPlan(h, plan.SafetyHigh)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, want completed after retry", out)
	}
	if len(h.vcs.discards) != 1 || h.vcs.discards[0] != "s0" {
		t.Errorf("discards = %v, want one rollback of s0", h.vcs.discards)
	}
}

func TestRetriesExhaustedSurfacesFailure(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"),
		Options{MaxRetries: 1, CollabTimeout: time.Second})
	h.rewriter.failures = 10
	p := twoStepPlan(h, plan.SafetyHigh)

	_, err := h.orch.Run(context.Background(), p, h.graph)
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if !errors.HasCode(err, errors.StepApplyFailure) {
		t.Errorf("error = %v, want STEP_APPLY_FAILURE", err)
	}
	if len(h.vcs.discards) != 2 {
		t.Errorf("discards = %v, want one per attempt", h.vcs.discards)
	}
}

func TestTimeoutTreatedAsFailure(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"),
		Options{MaxRetries: 0, CollabTimeout: 20 * time.Millisecond})
	h.rewriter.block = true
	p := twoStepPlan(h, plan.SafetyHigh)

	_, err := h.orch.Run(context.Background(), p, h.graph)
	if !errors.HasCode(err, errors.Timeout) {
		t.Errorf("error = %v, want TIMEOUT", err)
	}
}

// coupledFacts makes B depend on A, so touching A affects B across units
func coupledFacts() graph.Facts {
	return graph.Facts{
		Components: []graph.Component{
			{ID: "A", Kind: graph.KindModule},
			{ID: "B", Kind: graph.KindModule},
		},
		Edges: []graph.Edge{{From: "B", To: "A", Kind: graph.EdgeCalls, Strength: 1}},
	}
}

func TestCascadingRiskBlocksAtMediumSafety(t *testing.T) {
	h := newHarness(t, coupledFacts(), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyMedium)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out.Completed || out.BlockedStep != 0 {
		t.Fatalf("outcome = %+v, want blocked at step 0", out)
	}
	if out.Report == nil || out.Report.Tier != risk.TierCascading {
		t.Errorf("blocked report = %+v", out.Report)
	}
	if out.Rule == "" {
		t.Error("halted outcome must name the rule that triggered it")
	}
	// applied changes are discarded so the tree is clean while waiting
	if len(h.vcs.discards) != 1 {
		t.Errorf("discards = %v", h.vcs.discards)
	}

	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusBlocked {
		t.Errorf("step 0 status = %s, want blocked", reloaded.Steps[0].Status)
	}
}

func TestContainedRiskProceedsAtHighSafety(t *testing.T) {
	// a 3-cycle is one irreducible unit; migrating it as a whole affects
	// nothing outside the unit, and C's full coverage without a green run
	// lands the change at contained rather than none
	facts := graph.Facts{
		Components: []graph.Component{
			{ID: "A", Kind: graph.KindModule},
			{ID: "B", Kind: graph.KindModule},
			{ID: "C", Kind: graph.KindModule},
		},
		Edges: []graph.Edge{
			{From: "A", To: "B", Kind: graph.EdgeCalls, Strength: 1},
			{From: "B", To: "C", Kind: graph.EdgeCalls, Strength: 1},
			{From: "C", To: "A", Kind: graph.EdgeCalls, Strength: 1},
		},
	}
	signals := passingSignals("A", "B")
	signals["C"] = risk.Signal{ComponentID: "C", Passing: false, Coverage: 1.0}

	h := newHarness(t, facts, signals, DefaultOptions())
	step := migrateStep("s0", "A")
	step.Components = []string{"A", "B", "C"}
	step.Postconditions = []plan.Condition{
		{Kind: plan.CondComponentPresent, Component: "A"},
		{Kind: plan.CondComponentPresent, Component: "B"},
		{Kind: plan.CondComponentPresent, Component: "C"},
	}
	p := &plan.Plan{
		ID:                "p-cycle",
		CreatedAt:         time.Now().UTC(),
		SnapshotHash:      h.graph.Hash(),
		GoalName:          "modular",
		SafetyLevel:       plan.SafetyHigh,
		CoverageThreshold: plan.SafetyHigh.DefaultCoverageThreshold(),
		Steps:             []plan.Step{step},
	}

	// the fixture must actually classify contained, not none
	report := h.orch.classifier.Classify(h.graph, partition.Partition(h.graph),
		step.Components, signals, risk.Policy{CoverageThreshold: p.CoverageThreshold})
	if report.Tier != risk.TierContained {
		t.Fatalf("fixture tier = %s, want contained", report.Tier)
	}

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, contained risk must auto-proceed at high safety", out)
	}
	if len(h.vcs.commits) != 1 || len(h.vcs.discards) != 0 {
		t.Errorf("commits=%v discards=%v, want one commit and no discards", h.vcs.commits, h.vcs.discards)
	}

	cp, err := h.stores.Checkpoints.Latest(p.ID)
	if err != nil {
		t.Fatalf("no checkpoint after contained step: %v", err)
	}
	if cp.StepIndex != 0 || cp.VCSRef != "ref-1" {
		t.Errorf("checkpoint = %+v", cp)
	}
	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusVerified {
		t.Errorf("step status = %s, want verified", reloaded.Steps[0].Status)
	}
}

func TestCascadingRiskProceedsAtLowSafety(t *testing.T) {
	h := newHarness(t, coupledFacts(), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyLow)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, low safety must not block on cascading risk", out)
	}
}

func TestApproveResumesBlockedPlan(t *testing.T) {
	h := newHarness(t, coupledFacts(), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyMedium)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil || out.BlockedStep != 0 {
		t.Fatalf("setup: out=%+v err=%v", out, err)
	}

	out, err = h.orch.Approve(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	// nothing depends on B, so the remaining step classifies contained and
	// the run finishes
	if !out.Completed {
		t.Fatalf("outcome = %+v, want completed after approval", out)
	}

	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusVerified {
		t.Errorf("approved step status = %s, want verified", reloaded.Steps[0].Status)
	}
}

func TestApproveBypassesRiskGateOnce(t *testing.T) {
	// C depends on both A and B, so touching either cascades across units
	facts := graph.Facts{
		Components: []graph.Component{
			{ID: "A", Kind: graph.KindModule},
			{ID: "B", Kind: graph.KindModule},
			{ID: "C", Kind: graph.KindModule},
		},
		Edges: []graph.Edge{
			{From: "C", To: "A", Kind: graph.EdgeCalls, Strength: 1},
			{From: "C", To: "B", Kind: graph.EdgeCalls, Strength: 1},
		},
	}
	h := newHarness(t, facts, passingSignals("A", "B", "C"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyMedium)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil || out.BlockedStep != 0 {
		t.Fatalf("setup: out=%+v err=%v", out, err)
	}

	out, err = h.orch.Approve(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	// the bypass covers only the approved step; B blocks on its own merits
	if out.Completed || out.BlockedStep != 1 {
		t.Fatalf("outcome = %+v, want blocked again at step 1", out)
	}
}

func TestApproveSurfacesCheckpointReadFailure(t *testing.T) {
	// A is independent, touching B reaches C across units: step 0 verifies
	// and checkpoints, step 1 blocks at medium safety
	facts := graph.Facts{
		Components: []graph.Component{
			{ID: "A", Kind: graph.KindModule},
			{ID: "B", Kind: graph.KindModule},
			{ID: "C", Kind: graph.KindModule},
		},
		Edges: []graph.Edge{{From: "C", To: "B", Kind: graph.EdgeCalls, Strength: 1}},
	}
	h := newHarness(t, facts, passingSignals("A", "B", "C"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyMedium)

	out, err := h.orch.Run(context.Background(), p, h.graph)
	if err != nil || out.BlockedStep != 1 {
		t.Fatalf("setup: out=%+v err=%v", out, err)
	}

	// an unreadable checkpoint must fail the approval, not silently fall
	// back to the plan's initial snapshot
	if _, err := h.db.Conn().Exec(
		`UPDATE checkpoints SET step_statuses = 'not-json' WHERE plan_id = ?`, p.ID,
	); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.Approve(context.Background(), p.ID); err == nil {
		t.Fatal("expected Approve to surface the checkpoint read failure")
	}
	// the step stays blocked for a later, successful approval
	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[1].Status != plan.StatusBlocked {
		t.Errorf("step 1 status = %s, want blocked", reloaded.Steps[1].Status)
	}
}

func TestRejectMarksBlockedStepFailed(t *testing.T) {
	h := newHarness(t, coupledFacts(), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyMedium)

	if _, err := h.orch.Run(context.Background(), p, h.graph); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Reject(context.Background(), p.ID); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusFailed {
		t.Errorf("rejected step status = %s, want failed", reloaded.Steps[0].Status)
	}
}

func TestCancellationPausesBetweenSteps(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyHigh)

	ctx, cancel := context.WithCancel(context.Background())
	h.rewriter.onApply = cancel // cancel mid-run; the loop notices at the top

	out, err := h.orch.Run(ctx, p, h.graph)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !out.Paused || out.Completed {
		t.Fatalf("outcome = %+v, want paused", out)
	}

	// step 0 finished cleanly before the pause
	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusVerified {
		t.Errorf("step 0 status = %s, want verified", reloaded.Steps[0].Status)
	}
	if reloaded.Steps[1].Status != plan.StatusPending {
		t.Errorf("step 1 status = %s, want pending", reloaded.Steps[1].Status)
	}
}

func TestResumeContinuesFromCheckpoint(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"), DefaultOptions())
	p := twoStepPlan(h, plan.SafetyHigh)

	ctx, cancel := context.WithCancel(context.Background())
	h.rewriter.onApply = cancel
	if out, err := h.orch.Run(ctx, p, h.graph); err != nil || !out.Paused {
		t.Fatalf("setup: out=%+v err=%v", out, err)
	}

	h.rewriter.onApply = nil
	out, err := h.orch.Resume(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, want completed", out)
	}
	// A was applied before the pause and must not be re-applied
	if len(h.rewriter.applied) != 2 {
		t.Errorf("applied = %v, want exactly [A B]", h.rewriter.applied)
	}
}

// mutatingParser simulates a working tree whose facts change on apply and
// revert on discard
type mutatingParser struct {
	clean   graph.Facts
	mutated graph.Facts
	dirty   bool
}

func (m *mutatingParser) SnapshotFacts(ctx context.Context) (graph.Facts, error) {
	if m.dirty {
		return m.mutated, nil
	}
	return m.clean, nil
}

func TestRollbackRestoresPriorSnapshot(t *testing.T) {
	clean := independentFacts("A", "B")
	mutated := independentFacts("A", "B", "LEFTOVER")

	h := newHarness(t, clean, passingSignals("A", "B"),
		Options{MaxRetries: 0, CollabTimeout: time.Second})
	parser := &mutatingParser{clean: clean, mutated: mutated}
	h.orch.collabs.Parser = parser
	h.rewriter.onApply = func() { parser.dirty = true }

	p := twoStepPlan(h, plan.SafetyHigh)
	// the mutated tree is missing this component, so the step fails verify
	p.Steps[0].Postconditions = append(p.Steps[0].Postconditions,
		plan.Condition{Kind: plan.CondComponentPresent, Component: "expected"})

	discard := &fakeVCS{}
	h.orch.collabs.VCS = &revertingVCS{inner: discard, parser: parser}

	_, err := h.orch.Run(context.Background(), p, h.graph)
	if err == nil {
		t.Fatal("expected step failure")
	}

	// after rollback the parser reports the same structure as before apply
	facts, _ := parser.SnapshotFacts(context.Background())
	restored, buildErr := graph.Build(facts)
	if buildErr != nil {
		t.Fatal(buildErr)
	}
	if d := graph.Diff(h.graph, restored); !d.Empty() {
		t.Errorf("rollback left structural changes: %+v", d)
	}
}

// revertingVCS reverts the parser's facts on discard, like git reset does
// for a real working tree
type revertingVCS struct {
	inner  *fakeVCS
	parser *mutatingParser
}

func (r *revertingVCS) Commit(ctx context.Context, stepID string, delta json.RawMessage) (string, error) {
	return r.inner.Commit(ctx, stepID, delta)
}

func (r *revertingVCS) Discard(ctx context.Context, stepID string) error {
	r.parser.dirty = false
	return r.inner.Discard(ctx, stepID)
}

func TestResumeSkipsCheckpointedSteps(t *testing.T) {
	ids := []string{"A", "B", "C", "D", "E"}
	h := newHarness(t, independentFacts(ids...), passingSignals(ids...), DefaultOptions())

	steps := make([]plan.Step, len(ids))
	for i, id := range ids {
		steps[i] = migrateStep(fmt.Sprintf("s%d", i), id)
	}
	p := &plan.Plan{
		ID:           "p5",
		CreatedAt:    time.Now().UTC(),
		SnapshotHash: h.graph.Hash(),
		GoalName:     "modular",
		SafetyLevel:  plan.SafetyHigh,
		Steps:        steps,
	}

	// persist the plan as if steps 1-3 already ran, checkpointed at index 2
	if err := h.stores.Plans.Save(p); err != nil {
		t.Fatal(err)
	}
	statuses := make([]plan.StepStatus, len(steps))
	for i := range statuses {
		statuses[i] = plan.StatusPending
	}
	for i := 0; i <= 2; i++ {
		if err := h.stores.Plans.UpdateStepStatus(p.ID, i, plan.StatusVerified); err != nil {
			t.Fatal(err)
		}
		statuses[i] = plan.StatusVerified
	}
	if err := h.stores.Snapshots.Put(h.graph); err != nil {
		t.Fatal(err)
	}
	if err := h.stores.Checkpoints.Write(store.Checkpoint{
		PlanID:            p.ID,
		StepIndex:         2,
		GraphSnapshotHash: h.graph.Hash(),
		VCSRef:            "ref-3",
		StepStatuses:      statuses,
	}); err != nil {
		t.Fatal(err)
	}

	out, err := h.orch.Resume(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !out.Completed {
		t.Fatalf("outcome = %+v, want completed", out)
	}
	// steps 1-3 must not be reapplied
	if len(h.rewriter.applied) != 2 || h.rewriter.applied[0] != "D" || h.rewriter.applied[1] != "E" {
		t.Errorf("applied = %v, want exactly [D E]", h.rewriter.applied)
	}
}

func TestPostconditionFailureRollsBack(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"),
		Options{MaxRetries: 0, CollabTimeout: time.Second})
	p := twoStepPlan(h, plan.SafetyHigh)
	p.Steps[0].Postconditions = append(p.Steps[0].Postconditions,
		plan.Condition{Kind: plan.CondComponentPresent, Component: "vanished"})

	_, err := h.orch.Run(context.Background(), p, h.graph)
	if !errors.HasCode(err, errors.StepVerifyFailure) {
		t.Errorf("error = %v, want STEP_VERIFY_FAILURE", err)
	}

	reloaded, _ := h.stores.Plans.Get(p.ID)
	if reloaded.Steps[0].Status != plan.StatusRolledBack {
		t.Errorf("step 0 status = %s, want rolled-back", reloaded.Steps[0].Status)
	}
}

func TestPreconditionGuardsUnverifiedDependency(t *testing.T) {
	h := newHarness(t, independentFacts("A", "B"), passingSignals("A", "B"),
		Options{MaxRetries: 0, CollabTimeout: time.Second})
	p := twoStepPlan(h, plan.SafetyHigh)
	// force step 1 to require a unit that never ran
	p.Steps[1].Preconditions = []plan.Condition{{Kind: plan.CondUnitVerified, Unit: "ghost"}}

	_, err := h.orch.Run(context.Background(), p, h.graph)
	if !errors.HasCode(err, errors.StepVerifyFailure) {
		t.Errorf("error = %v, want STEP_VERIFY_FAILURE", err)
	}
}
