package app

import (
	"context"

	"gospatial/domain/moments"
	"gospatial/ports"
)

// ResultsService answers read-only queries over stored summaries
type ResultsService struct {
	repo ports.ResultRepository
}

// NewResultsService creates a results service
func NewResultsService(repo ports.ResultRepository) *ResultsService {
	return &ResultsService{repo: repo}
}

// List returns stored records matching filter
func (s *ResultsService) List(ctx context.Context, filter moments.Filter) ([]moments.Record, error) {
	return s.repo.List(ctx, filter)
}

// Radii returns the stored radii of one parameter set
func (s *ResultsService) Radii(ctx context.Context, params moments.Params) ([]float64, error) {
	return s.repo.Radii(ctx, params)
}

// Runs returns recent sweeps, newest first
func (s *ResultsService) Runs(ctx context.Context, limit int) ([]moments.RunSummary, error) {
	return s.repo.ListRuns(ctx, limit)
}

// Snapshot assembles a snapshot of the stored records of one run
func (s *ResultsService) Snapshot(ctx context.Context, run moments.RunSummary) (*moments.Snapshot, error) {
	id := run.RunID
	recs, err := s.repo.List(ctx, moments.Filter{RunID: &id})
	if err != nil {
		return nil, err
	}
	return &moments.Snapshot{
		RunID:     run.RunID,
		Params:    run.Params,
		Radii:     run.Radii,
		Kinds:     run.Kinds,
		GroupBy:   run.GroupBy,
		Reduction: run.Reduction,
		CreatedAt: run.FinishedAt,
		Records:   recs,
	}, nil
}
