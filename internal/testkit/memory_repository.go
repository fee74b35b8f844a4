package testkit

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/ports"
)

// MemoryResultRepository is an in-memory ports.ResultRepository for tests
type MemoryResultRepository struct {
	mu      sync.RWMutex
	records []moments.Record
	runs    []moments.RunSummary
	// AppendErr, when set, is returned by Append without storing anything
	AppendErr error
}

var _ ports.ResultRepository = (*MemoryResultRepository)(nil)

// NewMemoryResultRepository creates an empty repository
func NewMemoryResultRepository() *MemoryResultRepository {
	return &MemoryResultRepository{}
}

func (m *MemoryResultRepository) ExistingRadii(ctx context.Context, params moments.Params, radii []float64) ([]float64, error) {
	stored, err := m.Radii(ctx, params)
	if err != nil {
		return nil, err
	}
	have := make(map[float64]bool, len(stored))
	for _, r := range stored {
		have[r] = true
	}
	var out []float64
	for _, r := range radii {
		if have[r] {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryResultRepository) Append(ctx context.Context, records []moments.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return 0, m.AppendErr
	}
	seen := make(map[moments.Key]bool, len(m.records))
	for _, r := range m.records {
		seen[r.Key] = true
	}
	for _, r := range records {
		if seen[r.Key] {
			return 0, fmt.Errorf("%w: %s radius %v kind %s group %s", core.ErrDuplicateComputation, r.Key.Params, r.Key.Radius, r.Key.Kind, r.Key.Group)
		}
		seen[r.Key] = true
	}
	m.records = append(m.records, records...)
	return len(records), nil
}

func (m *MemoryResultRepository) List(ctx context.Context, filter moments.Filter) ([]moments.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []moments.Record
	for _, r := range m.records {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	moments.SortRecords(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryResultRepository) Radii(ctx context.Context, params moments.Params) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f := moments.ForParams(params)
	seen := make(map[float64]bool)
	var out []float64
	for _, r := range m.records {
		if f.Matches(r) && !seen[r.Key.Radius] {
			seen[r.Key.Radius] = true
			out = append(out, r.Key.Radius)
		}
	}
	sort.Float64s(out)
	return out, nil
}

func (m *MemoryResultRepository) SaveRun(ctx context.Context, run *moments.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *MemoryResultRepository) ListRuns(ctx context.Context, limit int) ([]moments.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]moments.RunSummary, 0, len(m.runs))
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Count returns the number of stored records
func (m *MemoryResultRepository) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
