package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"remig/internal/collab"
	"remig/internal/config"
	"remig/internal/graph"
	"remig/internal/logging"
	"remig/internal/orchestrator"
	"remig/internal/partition"
	"remig/internal/plan"
	"remig/internal/risk"
	"remig/internal/store"
)

// env bundles everything a command needs: configuration, logging, the
// current graph snapshot and the persistence layer.
type env struct {
	cfg    *config.Config
	logger *logging.Logger
	db     *store.DB
	stores orchestrator.Stores
}

func mustLoadEnv() *env {
	cfg, err := config.LoadConfig(repoFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
	})

	db, err := store.Open(repoFlag, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening state database: %v\n", err)
		os.Exit(1)
	}

	snaps, err := store.NewSnapshotStore(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	return &env{
		cfg:    cfg,
		logger: logger,
		db:     db,
		stores: orchestrator.Stores{
			Plans:       store.NewPlanStore(db),
			Checkpoints: store.NewCheckpointStore(db),
			Snapshots:   snaps,
		},
	}
}

func (e *env) close() {
	e.db.Close()
}

// snapshot builds the current graph from the configured facts file
func (e *env) snapshot(ctx context.Context) (*graph.Graph, *partition.Result) {
	parser := e.parser()
	facts, err := parser.SnapshotFacts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading facts: %v\n", err)
		os.Exit(1)
	}
	g, err := graph.Build(facts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building graph: %v\n", err)
		os.Exit(1)
	}
	return g, partition.Partition(g)
}

func (e *env) parser() collab.Parser {
	return &collab.FactsFile{Path: filepath.Join(repoFlag, e.cfg.Facts.Path)}
}

func (e *env) rewriter() collab.Rewriter {
	if len(e.cfg.Collaborators.Rewriter) > 0 {
		return &collab.CommandRewriter{Argv: e.cfg.Collaborators.Rewriter}
	}
	return collab.StaticRewriter{}
}

func (e *env) verifier() collab.Verifier {
	if len(e.cfg.Collaborators.Verifier) > 0 {
		return &collab.CommandVerifier{Argv: e.cfg.Collaborators.Verifier}
	}
	return collab.NoSignals{}
}

func (e *env) classifier() *risk.Classifier {
	c, err := risk.NewClassifier(e.logger, e.cfg.Classifier.CacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return c
}

func (e *env) safetyLevel(flag string) plan.SafetyLevel {
	s := flag
	if s == "" {
		s = e.cfg.Safety
	}
	level, err := plan.ParseSafetyLevel(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return level
}

func (e *env) loadGoal() *plan.Goal {
	g, err := plan.LoadGoal(filepath.Join(repoFlag, plan.GoalFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", plan.GoalFile, err)
		os.Exit(1)
	}
	return g
}

func (e *env) orchestratorFor(vcs collab.VCS) *orchestrator.Orchestrator {
	return orchestrator.New(e.logger, e.classifier(), orchestrator.Collaborators{
		Parser:   e.parser(),
		Rewriter: e.rewriter(),
		Verifier: e.verifier(),
		VCS:      vcs,
	}, e.stores, orchestrator.Options{
		MaxRetries:    e.cfg.Execution.MaxRetries,
		CollabTimeout: time.Duration(e.cfg.Execution.CollabTimeoutMs) * time.Millisecond,
		Workers:       e.cfg.Execution.Workers,
	})
}

func newContext() context.Context {
	return context.Background()
}
