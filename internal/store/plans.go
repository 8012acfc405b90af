package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"remig/internal/errors"
	"remig/internal/plan"
)

// PlanStore persists plans and their step statuses
type PlanStore struct {
	db *DB
}

func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

// Save writes a plan and all its steps in one transaction. An existing plan
// with the same id is replaced wholesale.
func (s *PlanStore) Save(p *plan.Plan) error {
	return s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM plans WHERE id = ?`, p.ID); err != nil {
			return fmt.Errorf("failed to clear existing plan: %w", err)
		}
		_, err := tx.Exec(
			`INSERT INTO plans (id, created_at, snapshot_hash, goal_name, safety_level, coverage_threshold, fingerprint)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.CreatedAt.Format(time.RFC3339Nano), p.SnapshotHash, p.GoalName, string(p.SafetyLevel), p.CoverageThreshold, p.Fingerprint(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert plan: %w", err)
		}
		for i, st := range p.Steps {
			payload, err := json.Marshal(st)
			if err != nil {
				return fmt.Errorf("failed to marshal step %s: %w", st.ID, err)
			}
			_, err = tx.Exec(
				`INSERT INTO steps (plan_id, idx, id, unit_id, kind, status, payload)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, i, st.ID, st.UnitID, string(st.Kind), string(st.Status), string(payload),
			)
			if err != nil {
				return fmt.Errorf("failed to insert step %s: %w", st.ID, err)
			}
		}
		return nil
	})
}

// Get loads a plan by id, with step statuses reflecting the latest updates
func (s *PlanStore) Get(id string) (*plan.Plan, error) {
	p := &plan.Plan{ID: id}

	var createdAt, level string
	err := s.db.conn.QueryRow(
		`SELECT created_at, snapshot_hash, goal_name, safety_level, coverage_threshold FROM plans WHERE id = ?`, id,
	).Scan(&createdAt, &p.SnapshotHash, &p.GoalName, &level, &p.CoverageThreshold)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.PlanNotFound, "no persisted plan with this id", nil).
			WithDetail("planId", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	p.SafetyLevel = plan.SafetyLevel(level)
	if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse plan timestamp: %w", err)
	}

	rows, err := s.db.conn.Query(
		`SELECT status, payload FROM steps WHERE plan_id = ? ORDER BY idx`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, payload string
		if err := rows.Scan(&status, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		var st plan.Step
		if err := json.Unmarshal([]byte(payload), &st); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step: %w", err)
		}
		// the status column is authoritative; the payload holds the shape
		// the step had at synthesis time
		st.Status = plan.StepStatus(status)
		p.Steps = append(p.Steps, st)
	}
	return p, rows.Err()
}

// UpdateStepStatus records a step's state transition
func (s *PlanStore) UpdateStepStatus(planID string, stepIndex int, status plan.StepStatus) error {
	res, err := s.db.conn.Exec(
		`UPDATE steps SET status = ? WHERE plan_id = ? AND idx = ?`,
		string(status), planID, stepIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to update step status: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return errors.New(errors.PlanNotFound, "no step at this index", nil).
			WithDetail("planId", planID).
			WithDetail("stepIndex", stepIndex)
	}
	return err
}

// PlanSummary is one row of the plan listing
type PlanSummary struct {
	ID          string
	CreatedAt   time.Time
	GoalName    string
	SafetyLevel plan.SafetyLevel
	Steps       int
	Verified    int
}

// List returns summaries of all persisted plans, newest first
func (s *PlanStore) List() ([]PlanSummary, error) {
	rows, err := s.db.conn.Query(
		`SELECT p.id, p.created_at, p.goal_name, p.safety_level,
		        COUNT(st.idx), SUM(CASE WHEN st.status = 'verified' THEN 1 ELSE 0 END)
		 FROM plans p LEFT JOIN steps st ON st.plan_id = p.id
		 GROUP BY p.id ORDER BY p.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var out []PlanSummary
	for rows.Next() {
		var sum PlanSummary
		var createdAt, level string
		var verified sql.NullInt64
		if err := rows.Scan(&sum.ID, &createdAt, &sum.GoalName, &level, &sum.Steps, &verified); err != nil {
			return nil, fmt.Errorf("failed to scan plan summary: %w", err)
		}
		sum.SafetyLevel = plan.SafetyLevel(level)
		sum.Verified = int(verified.Int64)
		if sum.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse plan timestamp: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
