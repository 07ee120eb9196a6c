package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with pooling and prepared statements.
type DB struct {
	*sql.DB
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// NewDB opens (or creates) the database under dataDir and runs
// migrations.
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "reviver.db")
	connStr := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Model reads are rare (startup + reload) and writes are serialized
	// by the trainer, so a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &DB{
		DB:       db,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := database.initPreparedStatements(); err != nil {
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("model store initialized", "path", dbPath)
	return database, nil
}

// migrate creates the model and corpus tables.
func (db *DB) migrate() error {
	queries := []string{
		// One row per prediction target, replaced wholesale on retrain.
		`CREATE TABLE IF NOT EXISTS trained_models (
			target_name TEXT PRIMARY KEY,
			algorithm TEXT NOT NULL,
			schema_version INTEGER NOT NULL,
			weights TEXT NOT NULL, -- JSON array, bias last
			feature_means TEXT,    -- JSON array when standardized
			feature_stds TEXT,     -- JSON array when standardized
			accuracy REAL NOT NULL,
			sample_count INTEGER NOT NULL,
			trained_at DATETIME NOT NULL
		)`,

		// The training corpus. Append/replace, never update in place.
		`CREATE TABLE IF NOT EXISTS training_samples (
			id TEXT PRIMARY KEY,
			source_repository TEXT NOT NULL,
			features TEXT NOT NULL, -- JSON array, schema order
			is_abandoned BOOLEAN NOT NULL,
			revival_success_probability REAL NOT NULL,
			estimated_effort_days INTEGER NOT NULL,
			community_adoption_likelihood REAL NOT NULL,
			observed_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_samples_repo ON training_samples(source_repository)`,
		`CREATE INDEX IF NOT EXISTS idx_training_samples_observed ON training_samples(observed_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// initPreparedStatements prepares the hot-path queries.
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"upsert_model": `INSERT INTO trained_models (
			target_name, algorithm, schema_version, weights, feature_means,
			feature_stds, accuracy, sample_count, trained_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target_name) DO UPDATE SET
			algorithm = excluded.algorithm,
			schema_version = excluded.schema_version,
			weights = excluded.weights,
			feature_means = excluded.feature_means,
			feature_stds = excluded.feature_stds,
			accuracy = excluded.accuracy,
			sample_count = excluded.sample_count,
			trained_at = excluded.trained_at`,

		"insert_sample": `INSERT INTO training_samples (
			id, source_repository, features, is_abandoned,
			revival_success_probability, estimated_effort_days,
			community_adoption_likelihood, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,

		"load_models": `SELECT target_name, algorithm, schema_version, weights,
			feature_means, feature_stds, accuracy, sample_count, trained_at
			FROM trained_models`,

		"load_samples": `SELECT id, source_repository, features, is_abandoned,
			revival_success_probability, estimated_effort_days,
			community_adoption_likelihood, observed_at
			FROM training_samples ORDER BY observed_at ASC`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt
	}
	return nil
}

// stmt retrieves a prepared statement by name.
func (db *DB) stmt(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}
	return stmt, nil
}

// Close closes prepared statements and the connection.
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)
	return db.DB.Close()
}
