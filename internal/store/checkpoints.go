package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"remig/internal/errors"
	"remig/internal/plan"
)

// Checkpoint is the durable record written after each verified step. It is
// the unit of resume: a restarted run continues at StepIndex+1 against the
// recorded graph snapshot.
type Checkpoint struct {
	PlanID            string            `json:"planId"`
	StepIndex         int               `json:"stepIndex"`
	GraphSnapshotHash string            `json:"graphSnapshotHash"`
	VCSRef            string            `json:"vcsRef"`
	StepStatuses      []plan.StepStatus `json:"stepStatuses"`
}

// CheckpointStore persists checkpoints keyed by plan id
type CheckpointStore struct {
	db *DB
}

func NewCheckpointStore(db *DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Write records a checkpoint. Re-writing the same (plan, step) replaces the
// earlier record, which happens when a step is retried after rollback.
func (s *CheckpointStore) Write(cp Checkpoint) error {
	statuses, err := json.Marshal(cp.StepStatuses)
	if err != nil {
		return fmt.Errorf("failed to marshal step statuses: %w", err)
	}
	return s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO checkpoints (plan_id, step_index, graph_snapshot_hash, vcs_ref, step_statuses)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(plan_id, step_index) DO UPDATE SET
			   graph_snapshot_hash = excluded.graph_snapshot_hash,
			   vcs_ref = excluded.vcs_ref,
			   step_statuses = excluded.step_statuses,
			   created_at = datetime('now')`,
			cp.PlanID, cp.StepIndex, cp.GraphSnapshotHash, cp.VCSRef, string(statuses),
		)
		if err != nil {
			return fmt.Errorf("failed to write checkpoint: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent checkpoint for a plan, or a PlanNotFound
// error if none exists.
func (s *CheckpointStore) Latest(planID string) (Checkpoint, error) {
	cp := Checkpoint{PlanID: planID}
	var statuses string
	err := s.db.conn.QueryRow(
		`SELECT step_index, graph_snapshot_hash, vcs_ref, step_statuses
		 FROM checkpoints WHERE plan_id = ? ORDER BY step_index DESC LIMIT 1`,
		planID,
	).Scan(&cp.StepIndex, &cp.GraphSnapshotHash, &cp.VCSRef, &statuses)
	if err == sql.ErrNoRows {
		return cp, errors.New(errors.PlanNotFound, "no checkpoint for this plan", nil).
			WithDetail("planId", planID)
	}
	if err != nil {
		return cp, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if err := json.Unmarshal([]byte(statuses), &cp.StepStatuses); err != nil {
		return cp, fmt.Errorf("failed to unmarshal step statuses: %w", err)
	}
	return cp, nil
}
