// Package pipeline fans field computations out over a bounded worker pool and
// feeds their results, one at a time, to a single consumer.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gospatial/domain/core"
	"gospatial/domain/spatial"
	"gospatial/internal"
	apperrors "gospatial/internal/errors"
	"gospatial/internal/field"
	"gospatial/ports"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when a non-positive worker count is given
const DefaultWorkers = 4

// FieldFailure reports one field that was not pooled
type FieldFailure struct {
	Field core.FieldID `json:"field"`
	Code  string       `json:"code"`
	Error string       `json:"error"`
}

// Sink consumes field results. It is only ever called from one goroutine.
type Sink func(*spatial.FieldResult) error

// Runner loads and computes fields concurrently
type Runner struct {
	source   ports.CellTableSource
	computer *field.Computer
	workers  int
	logger   *internal.Logger
}

// NewRunner creates a runner with at most workers concurrent fields
func NewRunner(source ports.CellTableSource, computer *field.Computer, workers int, logger *internal.Logger) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{source: source, computer: computer, workers: workers, logger: internal.OrDefault(logger).With("pipeline")}
}

// Workers returns the concurrency limit
func (r *Runner) Workers() int { return r.workers }

// Preflight loads the first field and checks it carries every column the
// parameters need, so a misnamed column fails before any work is scheduled.
func (r *Runner) Preflight(ctx context.Context, fields []ports.FieldInput, p field.Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	t, err := r.source.Load(ctx, fields[0])
	if err != nil {
		return fmt.Errorf("preflight load of %s: %w", fields[0].Field, err)
	}
	if err := t.RequireColumns(p.RequiredColumns()...); err != nil {
		return fmt.Errorf("preflight: %w", err)
	}
	return nil
}

type outcome struct {
	field  core.FieldID
	result *spatial.FieldResult
	err    error
}

// Run computes every field and hands each result to sink. A field whose load,
// computation or sink call fails is reported in the returned failures and
// skipped; only cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, fields []ports.FieldInput, p field.Params, sink Sink) ([]FieldFailure, error) {
	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	results := make(chan outcome)

	var groupErr error
	go func() {
		defer close(results)
		for _, in := range fields {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				o := outcome{field: in.Field}
				o.result, o.err = r.computeOne(gctx, in, p)
				select {
				case results <- o:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		groupErr = g.Wait()
	}()

	var failures []FieldFailure
	computed := 0
	for o := range results {
		err := o.err
		if err == nil {
			err = sink(o.result)
		}
		if err != nil {
			failErr := apperrors.FieldFailed(o.field.String(), err)
			r.logger.Error("%v", failErr)
			failures = append(failures, FieldFailure{Field: o.field, Code: apperrors.GetCode(failErr), Error: err.Error()})
			continue
		}
		computed++
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Field < failures[j].Field })

	if groupErr != nil {
		return failures, groupErr
	}
	if err := ctx.Err(); err != nil {
		return failures, err
	}
	r.logger.Info("computed %d/%d fields in %s (%d failed)", computed, len(fields), time.Since(start).Round(time.Millisecond), len(failures))
	return failures, nil
}

func (r *Runner) computeOne(ctx context.Context, in ports.FieldInput, p field.Params) (*spatial.FieldResult, error) {
	t, err := r.source.Load(ctx, in)
	if err != nil {
		return nil, err
	}
	return r.computer.Compute(ctx, in.Field, t, p)
}
