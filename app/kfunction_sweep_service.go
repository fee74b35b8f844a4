package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gospatial/adapters/stats/kfunction"
	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal"
	"gospatial/internal/aggregate"
	apperrors "gospatial/internal/errors"
	"gospatial/internal/field"
	"gospatial/internal/pipeline"
	"gospatial/ports"
)

// KFunctionSweepService runs one parameter sweep end to end: duplicate guard,
// per-field computation, aggregation, persistence and an optional snapshot.
type KFunctionSweepService struct {
	source    ports.CellTableSource
	lookup    ports.MetadataLookup
	repo      ports.ResultRepository
	snapshots ports.SnapshotWriter
	logger    *internal.Logger
}

// SweepRequest defines the inputs of one sweep
type SweepRequest struct {
	Params      field.Params
	Engine      spatial.EngineOptions
	GroupBy     moments.GroupBy
	Reduction   moments.Reduction
	EmptyPolicy field.EmptyPolicy
	Workers     int
	// SnapshotPath, when set, receives the full sweep output
	SnapshotPath string
	RunID        core.RunID // optional, generated if empty
}

// SweepReport summarises a finished sweep
type SweepReport struct {
	RunID             core.RunID              `json:"run_id"`
	FieldsTotal       int                     `json:"fields_total"`
	FieldsComputed    int                     `json:"fields_computed"`
	FieldsExcludedQC  int                     `json:"fields_excluded_qc"`
	Exclusions        []aggregate.Exclusion   `json:"exclusions,omitempty"`
	FieldFailures     []pipeline.FieldFailure `json:"field_failures,omitempty"`
	EmptyWarnings     int                     `json:"empty_warnings"`
	RecordsWritten    int                     `json:"records_written"`
	SkippedEmptyPools []aggregate.SkippedPool `json:"skipped_empty_pools,omitempty"`
	SnapshotPath      string                  `json:"snapshot_path,omitempty"`
	Fingerprint       core.Hash               `json:"fingerprint"`
	RuntimeMs         int64                   `json:"runtime_ms"`
}

// NewKFunctionSweepService creates a sweep service; snapshots may be nil
func NewKFunctionSweepService(source ports.CellTableSource, lookup ports.MetadataLookup, repo ports.ResultRepository, snapshots ports.SnapshotWriter, logger *internal.Logger) *KFunctionSweepService {
	return &KFunctionSweepService{
		source:    source,
		lookup:    lookup,
		repo:      repo,
		snapshots: snapshots,
		logger:    internal.OrDefault(logger).With("sweep"),
	}
}

// ResultParams returns the radius-independent identity results are stored under
func (r SweepRequest) ResultParams() moments.Params {
	p := moments.Params{Phenotype1: r.Params.Phenotype1, Phenotype2: r.Params.Phenotype2}
	if r.Params.NeedsIntensity() {
		p.Intensity = r.Params.Intensity
	}
	return p
}

// Fingerprint hashes every option that changes the stored numbers
func (r SweepRequest) Fingerprint() core.Hash {
	kinds := make([]string, len(r.Params.Kinds))
	for i, k := range r.Params.Kinds {
		kinds[i] = string(k)
	}
	return core.ComputeParamsHash(map[string]interface{}{
		"params":          r.ResultParams().String(),
		"radii":           r.Params.Radii.String(),
		"kinds":           kinds,
		"group_by":        string(r.GroupBy),
		"reduction":       string(r.Reduction),
		"empty_policy":    string(r.EmptyPolicy),
		"edge_correction": r.Engine.EdgeCorrection,
		"distance_floor":  r.Engine.DistanceFloor,
		"x":               r.Params.Columns.X,
		"y":               r.Params.Columns.Y,
	})
}

func (r *SweepRequest) applyDefaults() {
	if r.GroupBy == "" {
		r.GroupBy = moments.GroupByPatientRegion
	}
	if r.Reduction == "" {
		r.Reduction = moments.ReductionPooled
	}
	if r.EmptyPolicy == "" {
		r.EmptyPolicy = field.EmptyWarn
	}
	r.Params.Columns = r.Params.Columns.WithDefaults()
}

// Run executes the sweep. A radius already stored for the same parameters
// refuses the whole sweep before any field is read.
func (s *KFunctionSweepService) Run(ctx context.Context, req SweepRequest) (*SweepReport, error) {
	startTime := time.Now()
	req.applyDefaults()

	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	if err := req.Params.Validate(); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeValidationError, err)
	}
	params := req.ResultParams()

	// 1. Duplicate guard
	existing, err := s.repo.ExistingRadii(ctx, params, req.Params.Radii)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to check stored radii")
	}
	if len(existing) > 0 {
		dup := core.NewDuplicateComputationError(params.String(), existing)
		s.logger.Warn("%v", dup)
		return nil, apperrors.DuplicateComputation(dup)
	}

	// 2. Field discovery and input pairing
	fields, err := s.source.Fields(ctx)
	if err != nil {
		if errors.Is(err, core.ErrInputMismatch) {
			return nil, apperrors.InputMismatch(err)
		}
		return nil, apperrors.Wrap(err, "failed to list fields")
	}

	engine := kfunction.NewEngine(req.Engine)
	computer := field.NewComputer(engine, req.EmptyPolicy, s.logger)
	runner := pipeline.NewRunner(s.source, computer, req.Workers, s.logger)
	if err := runner.Preflight(ctx, fields, req.Params); err != nil {
		return nil, apperrors.WithCode(apperrors.CodeInvalidInput, err)
	}

	// 3. Fan out, pooling into groups from the collector goroutine
	agg := aggregate.NewAggregator(s.lookup, req.GroupBy, req.Reduction, s.logger)
	report := &SweepReport{RunID: runID, FieldsTotal: len(fields), Fingerprint: req.Fingerprint()}
	failures, err := runner.Run(ctx, fields, req.Params, func(fr *spatial.FieldResult) error {
		pooled, err := agg.Add(fr)
		if err != nil {
			return err
		}
		report.EmptyWarnings += len(fr.Warnings)
		if pooled {
			report.FieldsComputed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep %s aborted: %w", runID, err)
	}
	report.FieldFailures = failures
	report.Exclusions = agg.Excluded()
	report.FieldsExcludedQC = len(report.Exclusions)

	// 4. Reduce
	summaries, skipped, err := agg.Summaries()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to reduce pools")
	}
	report.SkippedEmptyPools = skipped

	computedAt := core.Now()
	records := make([]moments.Record, 0, len(summaries))
	for _, gs := range summaries {
		records = append(records, moments.Record{
			Key:        moments.Key{Params: params, Radius: gs.Key.Radius, Kind: gs.Key.Kind, Group: gs.Group},
			Moments:    gs.Summary,
			RunID:      runID,
			Reduction:  req.Reduction,
			ComputedAt: computedAt,
		})
	}
	moments.SortRecords(records)

	// 5. Persist
	written, err := s.repo.Append(ctx, records)
	if err != nil {
		if core.IsDuplicateComputation(err) {
			return nil, apperrors.DuplicateComputation(err)
		}
		return nil, apperrors.Wrap(err, "failed to store results")
	}
	report.RecordsWritten = written

	run := &moments.RunSummary{
		RunID:          runID,
		Params:         params,
		Radii:          req.Params.Radii,
		Kinds:          req.Params.Kinds,
		GroupBy:        req.GroupBy,
		Reduction:      req.Reduction,
		Fingerprint:    report.Fingerprint,
		FieldsTotal:    report.FieldsTotal,
		FieldsComputed: report.FieldsComputed,
		FieldsExcluded: report.FieldsExcludedQC,
		FieldsFailed:   len(report.FieldFailures),
		RecordsWritten: written,
		StartedAt:      core.NewTimestamp(startTime),
		FinishedAt:     core.Now(),
	}
	if err := s.repo.SaveRun(ctx, run); err != nil {
		return nil, apperrors.Wrap(err, "failed to store run summary")
	}

	// 6. Snapshot
	if req.SnapshotPath != "" && s.snapshots != nil {
		snap := &moments.Snapshot{
			RunID:     runID,
			Params:    params,
			Radii:     req.Params.Radii,
			Kinds:     req.Params.Kinds,
			GroupBy:   req.GroupBy,
			Reduction: req.Reduction,
			CreatedAt: computedAt,
			Records:   records,
		}
		if err := s.snapshots.Write(ctx, snap, req.SnapshotPath); err != nil {
			return report, apperrors.Wrap(err, "results stored but snapshot failed")
		}
		report.SnapshotPath = req.SnapshotPath
	}

	report.RuntimeMs = time.Since(startTime).Milliseconds()
	s.logger.Info("sweep %s: %d/%d fields pooled, %d excluded, %d failed, %d records written",
		runID, report.FieldsComputed, report.FieldsTotal, report.FieldsExcludedQC, len(report.FieldFailures), written)
	return report, nil
}

// ComputeField runs the field-level computation for a single field without
// aggregating or storing anything
func (s *KFunctionSweepService) ComputeField(ctx context.Context, name core.FieldID, req SweepRequest) (*spatial.FieldResult, error) {
	req.applyDefaults()
	fields, err := s.source.Fields(ctx)
	if err != nil {
		return nil, err
	}
	for _, in := range fields {
		if in.Field != name {
			continue
		}
		t, err := s.source.Load(ctx, in)
		if err != nil {
			return nil, err
		}
		computer := field.NewComputer(kfunction.NewEngine(req.Engine), req.EmptyPolicy, s.logger)
		return computer.Compute(ctx, in.Field, t, req.Params)
	}
	return nil, fmt.Errorf("%w: %s", core.ErrFieldNotFound, name)
}
