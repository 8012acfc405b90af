// Package orchestrator drives plan execution as a strictly sequential state
// machine. At most one step is ever in the applied state: a single exclusive
// lock is held across the apply, classify and commit-or-rollback sequence,
// because applying a step mutates the shared working tree that every later
// classification depends on.
package orchestrator

import (
	"context"
	"sync"
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

// Options tunes retries, collaborator deadlines and the optional parallel
// pre-classification phase.
type Options struct {
	// MaxRetries is how many times a failed step is rolled back and retried
	// before its failure surfaces to the caller
	MaxRetries int
	// CollabTimeout bounds each call into the rewrite, parsing, verification
	// and version-control collaborators; an expired deadline is treated as a
	// step failure
	CollabTimeout time.Duration
	// Workers sizes the what-if pre-classification pool; zero disables it
	Workers int
}

// DefaultOptions returns the options used when the caller supplies none
func DefaultOptions() Options {
	return Options{
		MaxRetries:    2,
		CollabTimeout: 60 * time.Second,
		Workers:       4,
	}
}

// Stores groups the persistence the orchestrator writes through
type Stores struct {
	Plans       *store.PlanStore
	Checkpoints *store.CheckpointStore
	Snapshots   *store.SnapshotStore
}

// Collaborators groups the external systems the orchestrator calls into
type Collaborators struct {
	Parser   collab.Parser
	Rewriter collab.Rewriter
	Verifier collab.Verifier
	VCS      collab.VCS
}

// Orchestrator owns all plan and checkpoint mutation. The graph snapshot is
// shared read-only with the classifier and synthesizer; only a committed
// step replaces it.
type Orchestrator struct {
	logger     *logging.Logger
	classifier *risk.Classifier
	collabs    Collaborators
	stores     Stores
	opts       Options

	// applyMu is the single serialization point: no step may begin
	// application while a prior step is applied but not yet verified or
	// rolled back
	applyMu sync.Mutex
}

func New(logger *logging.Logger, classifier *risk.Classifier, collabs Collaborators, stores Stores, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.CollabTimeout <= 0 {
		opts.CollabTimeout = DefaultOptions().CollabTimeout
	}
	return &Orchestrator{
		logger:     logger,
		classifier: classifier,
		collabs:    collabs,
		stores:     stores,
		opts:       opts,
	}
}

// Outcome reports how far a run got and why it stopped
type Outcome struct {
	PlanID string
	// Completed is true when every step reached verified status
	Completed bool
	// Paused is true when cooperative cancellation stopped the run between
	// steps; the plan resumes later from its last checkpoint
	Paused bool
	// BlockedStep is the index of the step awaiting manual review, or -1
	BlockedStep int
	// Report is the regression report of the blocked or halted step
	Report *risk.Report
	// Rule names the safety-level rule that triggered the halt
	Rule string
	// FinalHash is the graph snapshot hash after the last verified step
	FinalHash string
}

// Run executes a plan from its first pending step. The plan and initial
// snapshot are persisted before the first apply so a crash can resume.
func (o *Orchestrator) Run(ctx context.Context, p *plan.Plan, g *graph.Graph) (*Outcome, error) {
	if err := o.stores.Plans.Save(p); err != nil {
		return nil, err
	}
	if err := o.stores.Snapshots.Put(g); err != nil {
		return nil, err
	}

	start := 0
	for start < len(p.Steps) && p.Steps[start].Status == plan.StatusVerified {
		start++
	}

	if o.opts.Workers > 0 {
		o.preClassify(ctx, g, p, start)
	}

	return o.runFrom(ctx, p, g, start, false)
}

// Resume continues a plan from its last checkpoint after a pause or restart
func (o *Orchestrator) Resume(ctx context.Context, planID string) (*Outcome, error) {
	p, cp, g, err := o.restore(planID)
	if err != nil {
		return nil, err
	}
	return o.runFrom(ctx, p, g, cp.StepIndex+1, false)
}

// Approve resolves a blocked step: the step is re-executed with the risk
// gate bypassed for this one attempt, then the run continues normally.
func (o *Orchestrator) Approve(ctx context.Context, planID string) (*Outcome, error) {
	p, g, idx, err := o.blockedStep(planID)
	if err != nil {
		return nil, err
	}
	o.logger.Warn("blocked step approved for execution", map[string]interface{}{
		"planId": planID,
		"step":   p.Steps[idx].ID,
		"unit":   p.Steps[idx].UnitID,
	})
	return o.runFrom(ctx, p, g, idx, true)
}

// Reject cancels a blocked plan: the blocked step is marked failed and the
// plan will not execute further without re-synthesis.
func (o *Orchestrator) Reject(ctx context.Context, planID string) error {
	p, _, idx, err := o.blockedStep(planID)
	if err != nil {
		return err
	}
	if err := o.setStatus(p, idx, plan.StatusFailed); err != nil {
		return err
	}
	o.logger.Info("blocked plan rejected", map[string]interface{}{
		"planId": planID,
		"step":   p.Steps[idx].ID,
	})
	return nil
}

func (o *Orchestrator) restore(planID string) (*plan.Plan, store.Checkpoint, *graph.Graph, error) {
	p, err := o.stores.Plans.Get(planID)
	if err != nil {
		return nil, store.Checkpoint{}, nil, err
	}
	cp, err := o.stores.Checkpoints.Latest(planID)
	if err != nil {
		return nil, store.Checkpoint{}, nil, err
	}
	g, err := o.stores.Snapshots.Get(cp.GraphSnapshotHash)
	if err != nil {
		return nil, store.Checkpoint{}, nil, err
	}
	return p, cp, g, nil
}

func (o *Orchestrator) blockedStep(planID string) (*plan.Plan, *graph.Graph, int, error) {
	p, err := o.stores.Plans.Get(planID)
	if err != nil {
		return nil, nil, 0, err
	}
	idx := -1
	for i := range p.Steps {
		if p.Steps[i].Status == plan.StatusBlocked {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil, 0, errors.New(errors.PlanNotFound, "plan has no blocked step", nil).
			WithDetail("planId", planID)
	}

	// the working snapshot is the last checkpoint's, or the plan's initial
	// snapshot when the very first step blocked; any other checkpoint read
	// failure surfaces rather than approving against the wrong snapshot
	hash := p.SnapshotHash
	cp, err := o.stores.Checkpoints.Latest(planID)
	switch {
	case err == nil:
		hash = cp.GraphSnapshotHash
	case !errors.HasCode(err, errors.PlanNotFound):
		return nil, nil, 0, err
	}
	g, err := o.stores.Snapshots.Get(hash)
	if err != nil {
		return nil, nil, 0, err
	}
	return p, g, idx, nil
}

// runFrom is the sequential phase. Cancellation is checked only at the top
// of the loop, never inside an apply/verify sequence, so pausing cannot
// leave the working tree partially applied.
func (o *Orchestrator) runFrom(ctx context.Context, p *plan.Plan, g *graph.Graph, start int, bypassGate bool) (*Outcome, error) {
	out := &Outcome{PlanID: p.ID, BlockedStep: -1, FinalHash: g.Hash()}

	for i := start; i < len(p.Steps); i++ {
		if err := ctx.Err(); err != nil {
			out.Paused = true
			o.logger.Info("run paused between steps", map[string]interface{}{
				"planId": p.ID,
				"step":   i,
			})
			return out, nil
		}

		next, res, err := o.runStep(ctx, p, g, i, bypassGate)
		bypassGate = false // the bypass covers exactly one step
		if err != nil {
			return out, err
		}
		if res != nil {
			// halted for review
			out.BlockedStep = i
			out.Report = res
			out.Rule = res.Rule
			return out, nil
		}
		g = next
		out.FinalHash = g.Hash()
	}

	out.Completed = true
	o.logger.Info("plan completed", map[string]interface{}{
		"planId":    p.ID,
		"steps":     len(p.Steps),
		"finalHash": out.FinalHash,
	})
	return out, nil
}

// runStep drives one step through the state machine, retrying recoverable
// failures after rollback. It returns the new snapshot on success, or a
// non-nil report when the step blocked for review.
func (o *Orchestrator) runStep(ctx context.Context, p *plan.Plan, g *graph.Graph, idx int, bypassGate bool) (*graph.Graph, *risk.Report, error) {
	o.applyMu.Lock()
	defer o.applyMu.Unlock()

	step := &p.Steps[idx]
	if err := o.checkPreconditions(p, g, idx); err != nil {
		return nil, nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			o.logger.Warn("retrying step after rollback", map[string]interface{}{
				"planId":  p.ID,
				"step":    step.ID,
				"attempt": attempt,
			})
			if err := o.setStatus(p, idx, plan.StatusPending); err != nil {
				return nil, nil, err
			}
		}

		next, report, err := o.applyAndVerify(ctx, p, g, idx, bypassGate)
		if err == nil && report != nil {
			return nil, report, nil
		}
		if err == nil {
			return next, nil, nil
		}
		if !errors.Recoverable(err) {
			return nil, nil, err
		}

		lastErr = err
		if rbErr := o.rollback(ctx, p, idx, err); rbErr != nil {
			return nil, nil, rbErr
		}
	}

	return nil, nil, errors.New(errors.CodeOf(lastErr), "step failed after exhausting retries", lastErr).
		WithDetail("planId", p.ID).
		WithDetail("step", step.ID).
		WithDetail("unit", step.UnitID).
		WithDetail("retries", o.opts.MaxRetries)
}

// applyAndVerify walks one step through pending -> applied -> verified. A
// disallowed risk tier returns a non-nil report instead of an error; the
// caller records the block.
func (o *Orchestrator) applyAndVerify(ctx context.Context, p *plan.Plan, g *graph.Graph, idx int, bypassGate bool) (*graph.Graph, *risk.Report, error) {
	step := &p.Steps[idx]

	res, err := o.apply(ctx, step)
	if err != nil {
		return nil, nil, err
	}
	if err := o.setStatus(p, idx, plan.StatusApplied); err != nil {
		return nil, nil, err
	}

	next, err := o.rebuildSnapshot(ctx, step)
	if err != nil {
		return nil, nil, err
	}

	if err := o.checkPostconditions(step, next, res.DeletedComponents); err != nil {
		return nil, nil, err
	}

	report, err := o.classify(ctx, p, next, step)
	if err != nil {
		return nil, nil, err
	}

	if !bypassGate && !p.SafetyLevel.PermitsTier(report.Tier) {
		if err := o.block(ctx, p, idx, report); err != nil {
			return nil, nil, err
		}
		return nil, report, nil
	}
	if report.Tier == risk.TierCascading {
		// reachable only at low safety or under an approval bypass
		o.logger.Warn("proceeding despite cascading risk", map[string]interface{}{
			"planId": p.ID,
			"step":   step.ID,
			"rule":   report.Rule,
		})
	}

	ref, err := o.commit(ctx, step, res)
	if err != nil {
		return nil, nil, err
	}
	if err := o.setStatus(p, idx, plan.StatusVerified); err != nil {
		return nil, nil, err
	}
	if err := o.stores.Snapshots.Put(next); err != nil {
		return nil, nil, err
	}
	if err := o.writeCheckpoint(p, idx, next.Hash(), ref); err != nil {
		return nil, nil, err
	}

	o.logger.Info("step verified", map[string]interface{}{
		"planId": p.ID,
		"step":   step.ID,
		"unit":   step.UnitID,
		"kind":   string(step.Kind),
		"tier":   string(report.Tier),
		"vcsRef": ref,
	})
	return next, nil, nil
}

func (o *Orchestrator) apply(ctx context.Context, step *plan.Step) (collab.ApplyResult, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()

	res, err := o.collabs.Rewriter.Apply(cctx, step.Transformation)
	if err != nil {
		return res, o.collabFailure(cctx, err, errors.StepApplyFailure, "rewrite collaborator failed to apply transformation", step)
	}
	if res.Failure != "" {
		return res, errors.New(errors.StepApplyFailure, "rewrite collaborator reported a structured failure", nil).
			WithDetail("step", step.ID).
			WithDetail("unit", step.UnitID).
			WithDetail("failure", res.Failure)
	}
	return res, nil
}

func (o *Orchestrator) rebuildSnapshot(ctx context.Context, step *plan.Step) (*graph.Graph, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()

	facts, err := o.collabs.Parser.SnapshotFacts(cctx)
	if err != nil {
		return nil, o.collabFailure(cctx, err, errors.StepApplyFailure, "parsing collaborator failed after apply", step)
	}
	return graph.Build(facts)
}

func (o *Orchestrator) classify(ctx context.Context, p *plan.Plan, g *graph.Graph, step *plan.Step) (*risk.Report, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()

	signals, err := o.collabs.Verifier.Signals(cctx, g.ComponentIDs())
	if err != nil {
		return nil, o.collabFailure(cctx, err, errors.StepVerifyFailure, "verification collaborator failed", step)
	}

	part := partition.Partition(g)
	pol := risk.Policy{CoverageThreshold: p.CoverageThreshold}
	return o.classifier.Classify(g, part, step.Components, signals, pol), nil
}

func (o *Orchestrator) commit(ctx context.Context, step *plan.Step, res collab.ApplyResult) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()

	ref, err := o.collabs.VCS.Commit(cctx, step.ID, res.Delta)
	if err != nil {
		return "", o.collabFailure(cctx, err, errors.StepVerifyFailure, "version-control collaborator failed to commit", step)
	}
	return ref, nil
}

// rollback restores the prior snapshot state by discarding the working
// changes; the in-memory graph was never replaced, so nothing else moves.
func (o *Orchestrator) rollback(ctx context.Context, p *plan.Plan, idx int, cause error) error {
	step := &p.Steps[idx]
	if err := o.setStatus(p, idx, plan.StatusFailed); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()
	if err := o.collabs.VCS.Discard(cctx, step.ID); err != nil {
		return errors.New(errors.InternalError, "failed to discard working changes during rollback", err).
			WithDetail("step", step.ID)
	}

	o.logger.Warn("step rolled back", map[string]interface{}{
		"planId": p.ID,
		"step":   step.ID,
		"unit":   step.UnitID,
		"cause":  cause.Error(),
	})
	return o.setStatus(p, idx, plan.StatusRolledBack)
}

// block discards the applied changes and parks the step for manual review,
// so a paused plan never holds a partially-applied working tree.
func (o *Orchestrator) block(ctx context.Context, p *plan.Plan, idx int, report *risk.Report) error {
	step := &p.Steps[idx]

	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()
	if err := o.collabs.VCS.Discard(cctx, step.ID); err != nil {
		return errors.New(errors.InternalError, "failed to discard working changes for blocked step", err).
			WithDetail("step", step.ID)
	}

	o.logger.Warn("step blocked for review", map[string]interface{}{
		"planId": p.ID,
		"step":   step.ID,
		"unit":   step.UnitID,
		"tier":   string(report.Tier),
		"rule":   report.Rule,
	})
	return o.setStatus(p, idx, plan.StatusBlocked)
}

func (o *Orchestrator) checkPreconditions(p *plan.Plan, g *graph.Graph, idx int) error {
	step := &p.Steps[idx]
	for _, cond := range step.Preconditions {
		switch cond.Kind {
		case plan.CondUnitVerified:
			if !unitVerified(p, idx, cond.Unit) {
				return errors.New(errors.StepVerifyFailure, "precondition unmet: dependency unit not verified", nil).
					WithDetail("step", step.ID).
					WithDetail("unit", cond.Unit)
			}
		case plan.CondComponentPresent:
			if _, ok := g.Component(cond.Component); !ok {
				return errors.New(errors.StepVerifyFailure, "precondition unmet: component missing from snapshot", nil).
					WithDetail("step", step.ID).
					WithDetail("component", cond.Component)
			}
		}
	}
	return nil
}

func (o *Orchestrator) checkPostconditions(step *plan.Step, g *graph.Graph, deleted []string) error {
	gone := make(map[string]bool, len(deleted))
	for _, id := range deleted {
		gone[id] = true
	}
	for _, cond := range step.Postconditions {
		if cond.Kind != plan.CondComponentPresent || gone[cond.Component] {
			continue
		}
		if _, ok := g.Component(cond.Component); !ok {
			return errors.New(errors.StepVerifyFailure, "postcondition unmet: component missing after apply", nil).
				WithDetail("step", step.ID).
				WithDetail("component", cond.Component)
		}
	}
	return nil
}

func (o *Orchestrator) writeCheckpoint(p *plan.Plan, idx int, hash, vcsRef string) error {
	statuses := make([]plan.StepStatus, len(p.Steps))
	for i := range p.Steps {
		statuses[i] = p.Steps[i].Status
	}
	return o.stores.Checkpoints.Write(store.Checkpoint{
		PlanID:            p.ID,
		StepIndex:         idx,
		GraphSnapshotHash: hash,
		VCSRef:            vcsRef,
		StepStatuses:      statuses,
	})
}

func (o *Orchestrator) setStatus(p *plan.Plan, idx int, status plan.StepStatus) error {
	p.Steps[idx].Status = status
	return o.stores.Plans.UpdateStepStatus(p.ID, idx, status)
}

// collabFailure maps a collaborator error to the step failure taxonomy,
// distinguishing deadline expiry.
func (o *Orchestrator) collabFailure(ctx context.Context, err error, code errors.ErrorCode, msg string, step *plan.Step) error {
	if ctx.Err() == context.DeadlineExceeded {
		code = errors.Timeout
		msg = "collaborator call exceeded its deadline"
	}
	return errors.New(code, msg, err).
		WithDetail("step", step.ID).
		WithDetail("unit", step.UnitID)
}

// preClassify runs what-if classification for all still-pending steps in
// parallel against the immutable starting snapshot. Results are advisory:
// they are logged so an operator can see trouble coming, and they warm the
// classifier's reachability memo for the sequential phase.
func (o *Orchestrator) preClassify(ctx context.Context, g *graph.Graph, p *plan.Plan, start int) {
	var cands []risk.Candidate
	for i := start; i < len(p.Steps); i++ {
		if p.Steps[i].Kind == plan.KindMigrate {
			cands = append(cands, risk.Candidate{StepID: p.Steps[i].ID, Touched: p.Steps[i].Components})
		}
	}
	if len(cands) == 0 {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, o.opts.CollabTimeout)
	defer cancel()
	signals, err := o.collabs.Verifier.Signals(cctx, g.ComponentIDs())
	if err != nil {
		o.logger.Warn("pre-classification skipped: verifier unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	part := partition.Partition(g)
	pol := risk.Policy{CoverageThreshold: p.CoverageThreshold}
	reports, err := o.classifier.ClassifyCandidates(cctx, g, part, cands, signals, pol, o.opts.Workers)
	if err != nil {
		o.logger.Warn("pre-classification aborted", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	for _, r := range reports {
		o.logger.Debug("what-if classification", map[string]interface{}{
			"planId": p.ID,
			"step":   r.StepID,
			"tier":   string(r.Report.Tier),
		})
	}
}

func unitVerified(p *plan.Plan, before int, unit string) bool {
	for i := 0; i < before; i++ {
		st := &p.Steps[i]
		if st.UnitID == unit && st.Kind == plan.KindMigrate {
			return st.Status == plan.StatusVerified
		}
	}
	return false
}
