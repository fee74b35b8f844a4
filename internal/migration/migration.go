package migration

import (
	"context"
	"time"

	"gospatial/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner creates the results schema. Statements are portable between
// SQLite and PostgreSQL and safe to re-run.
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createSchemaVersionTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create schema_version table")
	}

	if err := r.createResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create kfunction_results table")
	}

	if err := r.createRunsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create kfunction_runs table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	if err := r.recordVersion(ctx, db); err != nil {
		return errors.Wrap(err, "failed to record schema version")
	}

	return nil
}

func (r *MigrationRunner) createSchemaVersionTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// kfunction_results is keyed by the full result identity; the primary key is
// what makes appends refuse to overwrite.
func (r *MigrationRunner) createResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kfunction_results (
			phenotype1_column TEXT NOT NULL,
			phenotype1_value TEXT NOT NULL,
			phenotype2_column TEXT NOT NULL,
			phenotype2_value TEXT NOT NULL,
			intensity TEXT NOT NULL,
			radius DOUBLE PRECISION NOT NULL,
			kind TEXT NOT NULL,
			group_id TEXT NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			variance DOUBLE PRECISION NOT NULL,
			skew DOUBLE PRECISION NOT NULL,
			kurtosis DOUBLE PRECISION NOT NULL,
			n INTEGER NOT NULL,
			degenerate INTEGER NOT NULL DEFAULT 0,
			reduction TEXT NOT NULL,
			run_id TEXT NOT NULL,
			computed_at TEXT NOT NULL,
			PRIMARY KEY (phenotype1_column, phenotype1_value, phenotype2_column, phenotype2_value,
				intensity, radius, kind, group_id)
		)
	`)
	return err
}

func (r *MigrationRunner) createRunsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kfunction_runs (
			run_id TEXT PRIMARY KEY,
			phenotype1_column TEXT NOT NULL,
			phenotype1_value TEXT NOT NULL,
			phenotype2_column TEXT NOT NULL,
			phenotype2_value TEXT NOT NULL,
			intensity TEXT NOT NULL,
			radii TEXT NOT NULL,
			kinds TEXT NOT NULL,
			group_by TEXT NOT NULL,
			reduction TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			fields_total INTEGER NOT NULL,
			fields_computed INTEGER NOT NULL,
			fields_excluded INTEGER NOT NULL,
			fields_failed INTEGER NOT NULL,
			records_written INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_kfunction_results_run ON kfunction_results(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_kfunction_results_radius ON kfunction_results(radius)`,
		`CREATE INDEX IF NOT EXISTS idx_kfunction_runs_started ON kfunction_runs(started_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *MigrationRunner) recordVersion(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx,
		db.Rebind(`INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`),
		r.version, time.Now().UTC().Format(time.RFC3339))
	return err
}

// AppliedVersions returns the recorded schema versions
func AppliedVersions(ctx context.Context, db *sqlx.DB) ([]string, error) {
	var versions []string
	if err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_version ORDER BY version`); err != nil {
		return nil, errors.DatabaseError("failed to read schema versions", err)
	}
	return versions, nil
}
