package risk

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"remig/internal/graph"
	"remig/internal/logging"
	"remig/internal/partition"
)

// DefaultCacheSize bounds the reachable-set memo. Entries are keyed by
// snapshot hash, so stale snapshots age out naturally.
const DefaultCacheSize = 4096

// Classifier computes regression reports over immutable snapshots. It is
// safe for concurrent use: the only mutable state is the LRU memo, which is
// internally synchronized.
type Classifier struct {
	logger *logging.Logger
	memo   *lru.Cache[string, []string]
}

// NewClassifier creates a classifier with a reachability memo of the given
// size (DefaultCacheSize if <= 0)
func NewClassifier(logger *logging.Logger, cacheSize int) (*Classifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	memo, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create reachability cache: %w", err)
	}
	return &Classifier{logger: logger, memo: memo}, nil
}

// reachableBackward unions the per-component backward closures of the given
// ids. Per-component closures are memoized by (snapshot hash, component);
// the union of closures equals the closure of the union.
func (c *Classifier) reachableBackward(g *graph.Graph, ids []string) map[string]bool {
	out := make(map[string]bool)
	for _, id := range ids {
		key := g.Hash() + "|b|" + id
		cached, ok := c.memo.Get(key)
		if !ok {
			cached = graph.SortedIDs(g.ReachableFrom([]string{id}, graph.Backward))
			c.memo.Add(key, cached)
		}
		for _, r := range cached {
			out[r] = true
		}
	}
	return out
}

// Candidate is a what-if step to pre-classify before execution begins
type Candidate struct {
	StepID  string
	Touched []string
}

// CandidateReport pairs a candidate with its classification
type CandidateReport struct {
	StepID string
	Report *Report
}

// ClassifyCandidates classifies independent candidate steps in parallel over
// one immutable snapshot. Results are returned in candidate order. All
// workers complete (or the context cancels them) before this returns, so the
// caller can safely enter its sequential phase afterwards.
func (c *Classifier) ClassifyCandidates(ctx context.Context, g *graph.Graph, part *partition.Result, candidates []Candidate, signals map[string]Signal, pol Policy, workers int) ([]CandidateReport, error) {
	if workers <= 0 {
		workers = 4
	}

	reports := make([]CandidateReport, len(candidates))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for i, cand := range candidates {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			reports[i] = CandidateReport{
				StepID: cand.StepID,
				Report: c.Classify(g, part, cand.Touched, signals, pol),
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	c.logger.Debug("pre-classified candidate steps", map[string]interface{}{
		"candidates": len(candidates),
		"snapshot":   g.Hash()[:12],
	})
	return reports, nil
}
