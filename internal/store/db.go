package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"remig/internal/logging"
)

// DB represents a database connection with transaction helpers
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	dbPath string
}

// Open opens or creates the engine state database at .remig/remig.db under
// the given root. A fresh database gets the full schema.
func Open(root string, logger *logging.Logger) (*DB, error) {
	stateDir := filepath.Join(root, ".remig")
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .remig directory: %w", err)
	}

	dbPath := filepath.Join(stateDir, "remig.db")
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Pragmas for performance and reliability
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger,
		dbPath: dbPath,
	}

	if !dbExists {
		logger.Info("Creating new state database", map[string]interface{}{
			"path": dbPath,
		})
		if err := db.initializeSchema(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else {
		if err := db.runMigrations(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// WithTx executes a function within a transaction. If the function returns
// an error, the transaction is rolled back; otherwise it is committed.
func (db *DB) WithTx(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("failed to rollback transaction", map[string]interface{}{
				"error":          err.Error(),
				"rollback_error": rbErr.Error(),
			})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
