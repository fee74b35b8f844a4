package ports

import (
	"context"

	"gospatial/domain/moments"
)

// ResultRepository persists moment summaries. Rows are append-only: a
// parameter set and radius that already has rows is never rewritten.
type ResultRepository interface {
	// ExistingRadii returns the subset of radii already stored for params
	ExistingRadii(ctx context.Context, params moments.Params, radii []float64) ([]float64, error)
	// Append inserts records in one transaction and returns the number written
	Append(ctx context.Context, records []moments.Record) (int, error)
	// List returns stored records matching the filter
	List(ctx context.Context, filter moments.Filter) ([]moments.Record, error)
	// Radii returns the distinct stored radii for params
	Radii(ctx context.Context, params moments.Params) ([]float64, error)
	// SaveRun records sweep provenance
	SaveRun(ctx context.Context, run *moments.RunSummary) error
	// ListRuns returns the most recent sweeps first
	ListRuns(ctx context.Context, limit int) ([]moments.RunSummary, error)
}
