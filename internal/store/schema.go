package store

import (
	"database/sql"
	"fmt"
)

const currentSchemaVersion = 1

// initializeSchema creates all tables for a new database
func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE TABLE IF NOT EXISTS plans (
				id TEXT PRIMARY KEY,
				created_at TEXT NOT NULL,
				snapshot_hash TEXT NOT NULL,
				goal_name TEXT NOT NULL,
				safety_level TEXT NOT NULL,
				coverage_threshold REAL NOT NULL DEFAULT 0,
				fingerprint TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS steps (
				plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
				idx INTEGER NOT NULL,
				id TEXT NOT NULL,
				unit_id TEXT NOT NULL,
				kind TEXT NOT NULL,
				status TEXT NOT NULL,
				payload TEXT NOT NULL,
				PRIMARY KEY (plan_id, idx)
			)`,
			`CREATE TABLE IF NOT EXISTS checkpoints (
				plan_id TEXT NOT NULL REFERENCES plans(id) ON DELETE CASCADE,
				step_index INTEGER NOT NULL,
				graph_snapshot_hash TEXT NOT NULL,
				vcs_ref TEXT NOT NULL,
				step_statuses TEXT NOT NULL,
				created_at TEXT NOT NULL DEFAULT (datetime('now')),
				PRIMARY KEY (plan_id, step_index)
			)`,
			`CREATE TABLE IF NOT EXISTS snapshots (
				hash TEXT PRIMARY KEY,
				facts BLOB NOT NULL,
				created_at TEXT NOT NULL DEFAULT (datetime('now'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_steps_status ON steps(plan_id, status)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("failed to create table: %w", err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}

		db.logger.Info("State database schema initialized", map[string]interface{}{
			"version": currentSchemaVersion,
		})
		return nil
	})
}

// runMigrations runs any pending schema migrations
func (db *DB) runMigrations() error {
	var version int
	err := db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version == currentSchemaVersion {
		return nil
	}

	db.logger.Info("Running state database migrations", map[string]interface{}{
		"from_version": version,
		"to_version":   currentSchemaVersion,
	})
	// Migration functions are added here as the schema evolves
	return nil
}
