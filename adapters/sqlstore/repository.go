package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal"
	apperrors "gospatial/internal/errors"
	"gospatial/ports"

	"github.com/jmoiron/sqlx"
)

// resultRow mirrors kfunction_results
type resultRow struct {
	Phenotype1Column string  `db:"phenotype1_column"`
	Phenotype1Value  string  `db:"phenotype1_value"`
	Phenotype2Column string  `db:"phenotype2_column"`
	Phenotype2Value  string  `db:"phenotype2_value"`
	Intensity        string  `db:"intensity"`
	Radius           float64 `db:"radius"`
	Kind             string  `db:"kind"`
	GroupID          string  `db:"group_id"`
	Mean             float64 `db:"mean"`
	Variance         float64 `db:"variance"`
	Skew             float64 `db:"skew"`
	Kurtosis         float64 `db:"kurtosis"`
	N                int     `db:"n"`
	Degenerate       int     `db:"degenerate"`
	Reduction        string  `db:"reduction"`
	RunID            string  `db:"run_id"`
	ComputedAt       string  `db:"computed_at"`
}

const resultColumns = `phenotype1_column, phenotype1_value, phenotype2_column, phenotype2_value,
	intensity, radius, kind, group_id, mean, variance, skew, kurtosis, n, degenerate,
	reduction, run_id, computed_at`

// timeLayout is fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t core.Timestamp) string {
	return t.Time().UTC().Format(timeLayout)
}

func parseTime(s string) (core.Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return core.Timestamp{}, fmt.Errorf("bad stored timestamp %q: %w", s, err)
	}
	return core.NewTimestamp(t), nil
}

func toRow(rec moments.Record) resultRow {
	k := rec.Key
	degenerate := 0
	if rec.Moments.Degenerate {
		degenerate = 1
	}
	return resultRow{
		Phenotype1Column: k.Phenotype1.Column,
		Phenotype1Value:  k.Phenotype1.Value,
		Phenotype2Column: k.Phenotype2.Column,
		Phenotype2Value:  k.Phenotype2.Value,
		Intensity:        k.Intensity,
		Radius:           k.Radius,
		Kind:             string(k.Kind),
		GroupID:          string(k.Group),
		Mean:             rec.Moments.Mean,
		Variance:         rec.Moments.Variance,
		Skew:             rec.Moments.Skew,
		Kurtosis:         rec.Moments.Kurtosis,
		N:                rec.Moments.N,
		Degenerate:       degenerate,
		Reduction:        string(rec.Reduction),
		RunID:            string(rec.RunID),
		ComputedAt:       formatTime(rec.ComputedAt),
	}
}

func (r resultRow) record() (moments.Record, error) {
	at, err := parseTime(r.ComputedAt)
	if err != nil {
		return moments.Record{}, err
	}
	return moments.Record{
		Key: moments.Key{
			Params: moments.Params{
				Phenotype1: spatial.PhenotypePredicate{Column: r.Phenotype1Column, Value: r.Phenotype1Value},
				Phenotype2: spatial.PhenotypePredicate{Column: r.Phenotype2Column, Value: r.Phenotype2Value},
				Intensity:  r.Intensity,
			},
			Radius: r.Radius,
			Kind:   spatial.StatisticKind(r.Kind),
			Group:  core.GroupID(r.GroupID),
		},
		Moments: moments.Summary{
			Mean:       r.Mean,
			Variance:   r.Variance,
			Skew:       r.Skew,
			Kurtosis:   r.Kurtosis,
			N:          r.N,
			Degenerate: r.Degenerate != 0,
		},
		RunID:      core.RunID(r.RunID),
		Reduction:  moments.Reduction(r.Reduction),
		ComputedAt: at,
	}, nil
}

// ResultRepository implements ports.ResultRepository over sqlx
type ResultRepository struct {
	db     *sqlx.DB
	logger *internal.Logger
}

var _ ports.ResultRepository = (*ResultRepository)(nil)

// NewResultRepository creates a new result repository
func NewResultRepository(db *sqlx.DB, logger *internal.Logger) *ResultRepository {
	return &ResultRepository{db: db, logger: internal.OrDefault(logger).With("sqlstore")}
}

// Radii returns the distinct stored radii for params in ascending order
func (r *ResultRepository) Radii(ctx context.Context, params moments.Params) ([]float64, error) {
	query := r.db.Rebind(`
		SELECT DISTINCT radius FROM kfunction_results
		WHERE phenotype1_column = ? AND phenotype1_value = ?
			AND phenotype2_column = ? AND phenotype2_value = ?
			AND intensity = ?
		ORDER BY radius`)

	var radii []float64
	err := r.db.SelectContext(ctx, &radii, query,
		params.Phenotype1.Column, params.Phenotype1.Value,
		params.Phenotype2.Column, params.Phenotype2.Value,
		params.Intensity)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query stored radii", err)
	}
	return radii, nil
}

// ExistingRadii returns the requested radii that already have rows
func (r *ResultRepository) ExistingRadii(ctx context.Context, params moments.Params, radii []float64) ([]float64, error) {
	stored, err := r.Radii(ctx, params)
	if err != nil {
		return nil, err
	}
	have := make(map[float64]bool, len(stored))
	for _, s := range stored {
		have[s] = true
	}
	var out []float64
	for _, rad := range radii {
		if have[rad] {
			out = append(out, rad)
		}
	}
	return out, nil
}

// Append inserts every record in one transaction. A conflicting key rolls the
// whole batch back and returns core.ErrDuplicateComputation.
func (r *ResultRepository) Append(ctx context.Context, records []moments.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `INSERT INTO kfunction_results (`+resultColumns+`) VALUES (
		:phenotype1_column, :phenotype1_value, :phenotype2_column, :phenotype2_value,
		:intensity, :radius, :kind, :group_id, :mean, :variance, :skew, :kurtosis, :n, :degenerate,
		:reduction, :run_id, :computed_at)`)
	if err != nil {
		return 0, apperrors.DatabaseError("failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, toRow(rec)); err != nil {
			if isUniqueViolation(err) {
				return 0, fmt.Errorf("%w: %s radius %s kind %s group %s", core.ErrDuplicateComputation,
					rec.Key.Params, spatial.FormatRadius(rec.Key.Radius), rec.Key.Kind, rec.Key.Group)
			}
			return 0, apperrors.DatabaseError("failed to insert result", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperrors.DatabaseError("failed to commit results", err)
	}
	r.logger.Debug("appended %d result rows", len(records))
	return len(records), nil
}

// List returns records matching filter ordered by parameters, kind, radius and group
func (r *ResultRepository) List(ctx context.Context, filter moments.Filter) ([]moments.Record, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(cond string, v interface{}) {
		where = append(where, cond)
		args = append(args, v)
	}
	if p := filter.Phenotype1; p != nil {
		add("phenotype1_column = ?", p.Column)
		add("phenotype1_value = ?", p.Value)
	}
	if p := filter.Phenotype2; p != nil {
		add("phenotype2_column = ?", p.Column)
		add("phenotype2_value = ?", p.Value)
	}
	if filter.Intensity != nil {
		add("intensity = ?", *filter.Intensity)
	}
	if filter.Radius != nil {
		add("radius = ?", *filter.Radius)
	}
	if filter.Kind != nil {
		add("kind = ?", string(*filter.Kind))
	}
	if filter.Group != nil {
		add("group_id = ?", string(*filter.Group))
	}
	if filter.RunID != nil {
		add("run_id = ?", string(*filter.RunID))
	}

	query := `SELECT ` + resultColumns + ` FROM kfunction_results`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY phenotype1_column, phenotype1_value, phenotype2_column, phenotype2_value, intensity, kind, radius, group_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.DatabaseError("failed to list results", err)
	}
	out := make([]moments.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// runRow mirrors kfunction_runs
type runRow struct {
	RunID            string `db:"run_id"`
	Phenotype1Column string `db:"phenotype1_column"`
	Phenotype1Value  string `db:"phenotype1_value"`
	Phenotype2Column string `db:"phenotype2_column"`
	Phenotype2Value  string `db:"phenotype2_value"`
	Intensity        string `db:"intensity"`
	Radii            string `db:"radii"`
	Kinds            string `db:"kinds"`
	GroupBy          string `db:"group_by"`
	Reduction        string `db:"reduction"`
	Fingerprint      string `db:"fingerprint"`
	FieldsTotal      int    `db:"fields_total"`
	FieldsComputed   int    `db:"fields_computed"`
	FieldsExcluded   int    `db:"fields_excluded"`
	FieldsFailed     int    `db:"fields_failed"`
	RecordsWritten   int    `db:"records_written"`
	StartedAt        string `db:"started_at"`
	FinishedAt       string `db:"finished_at"`
}

// SaveRun stores the provenance of one sweep
func (r *ResultRepository) SaveRun(ctx context.Context, run *moments.RunSummary) error {
	radii, err := json.Marshal(run.Radii)
	if err != nil {
		return fmt.Errorf("failed to marshal radii: %w", err)
	}
	kinds, err := json.Marshal(run.Kinds)
	if err != nil {
		return fmt.Errorf("failed to marshal kinds: %w", err)
	}
	row := runRow{
		RunID:            string(run.RunID),
		Phenotype1Column: run.Params.Phenotype1.Column,
		Phenotype1Value:  run.Params.Phenotype1.Value,
		Phenotype2Column: run.Params.Phenotype2.Column,
		Phenotype2Value:  run.Params.Phenotype2.Value,
		Intensity:        run.Params.Intensity,
		Radii:            string(radii),
		Kinds:            string(kinds),
		GroupBy:          string(run.GroupBy),
		Reduction:        string(run.Reduction),
		Fingerprint:      string(run.Fingerprint),
		FieldsTotal:      run.FieldsTotal,
		FieldsComputed:   run.FieldsComputed,
		FieldsExcluded:   run.FieldsExcluded,
		FieldsFailed:     run.FieldsFailed,
		RecordsWritten:   run.RecordsWritten,
		StartedAt:        formatTime(run.StartedAt),
		FinishedAt:       formatTime(run.FinishedAt),
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO kfunction_runs (
			run_id, phenotype1_column, phenotype1_value, phenotype2_column, phenotype2_value,
			intensity, radii, kinds, group_by, reduction, fingerprint,
			fields_total, fields_computed, fields_excluded, fields_failed, records_written,
			started_at, finished_at
		) VALUES (
			:run_id, :phenotype1_column, :phenotype1_value, :phenotype2_column, :phenotype2_value,
			:intensity, :radii, :kinds, :group_by, :reduction, :fingerprint,
			:fields_total, :fields_computed, :fields_excluded, :fields_failed, :records_written,
			:started_at, :finished_at
		)`, row)
	if err != nil {
		return apperrors.DatabaseError("failed to save run", err)
	}
	return nil
}

// ListRuns returns the most recent runs first; limit <= 0 returns all
func (r *ResultRepository) ListRuns(ctx context.Context, limit int) ([]moments.RunSummary, error) {
	query := `SELECT * FROM kfunction_runs ORDER BY started_at DESC, run_id DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}

	out := make([]moments.RunSummary, 0, len(rows))
	for _, row := range rows {
		run := moments.RunSummary{
			RunID: core.RunID(row.RunID),
			Params: moments.Params{
				Phenotype1: spatial.PhenotypePredicate{Column: row.Phenotype1Column, Value: row.Phenotype1Value},
				Phenotype2: spatial.PhenotypePredicate{Column: row.Phenotype2Column, Value: row.Phenotype2Value},
				Intensity:  row.Intensity,
			},
			GroupBy:        moments.GroupBy(row.GroupBy),
			Reduction:      moments.Reduction(row.Reduction),
			Fingerprint:    core.Hash(row.Fingerprint),
			FieldsTotal:    row.FieldsTotal,
			FieldsComputed: row.FieldsComputed,
			FieldsExcluded: row.FieldsExcluded,
			FieldsFailed:   row.FieldsFailed,
			RecordsWritten: row.RecordsWritten,
		}
		if err := json.Unmarshal([]byte(row.Radii), &run.Radii); err != nil {
			return nil, fmt.Errorf("bad stored radii for run %s: %w", row.RunID, err)
		}
		if err := json.Unmarshal([]byte(row.Kinds), &run.Kinds); err != nil {
			return nil, fmt.Errorf("bad stored kinds for run %s: %w", row.RunID, err)
		}
		var err error
		if run.StartedAt, err = parseTime(row.StartedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(row.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}
