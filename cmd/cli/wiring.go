package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"gospatial/adapters/metadata"
	"gospatial/adapters/snapshot"
	"gospatial/adapters/sqlstore"
	"gospatial/adapters/table"
	"gospatial/app"
	"gospatial/internal"
	"gospatial/internal/config"
	"gospatial/ports"
)

// env is the process-level configuration every command shares
type env struct {
	cfg    *config.Config
	logger *internal.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level))}, nil
}

func (e *env) openDB(ctx context.Context) (*sqlx.DB, error) {
	return sqlstore.OpenAndMigrate(ctx, e.cfg.Database.URL, e.logger)
}

// buildSource picks the cell table layout named by the run file
func buildSource(rc *config.RunConfig, logger *internal.Logger) ports.CellTableSource {
	if rc.Input.MergedGlob != "" {
		return table.NewMergedGlobSource(rc.Input.MergedGlob, rc.Input.IndexColumn, logger)
	}
	return table.NewPairedDirectorySource(rc.Input.DetectionDir, rc.Input.PhenotypeDir, rc.Columns.CellID, logger)
}

// buildLookup opens the metadata tables, or falls back to field names
func buildLookup(rc *config.RunConfig, logger *internal.Logger) (ports.MetadataLookup, error) {
	if rc.Metadata.FieldTable == "" {
		internal.OrDefault(logger).Info("no metadata tables configured, deriving patient and region from field names")
		return metadata.FieldNameLookup{}, nil
	}
	return metadata.Open(rc.Metadata.FieldTable, rc.Metadata.SampleTable, logger)
}

// buildRequest turns a validated run file into a sweep request. Non-zero
// overrides replace the file's workers and snapshot settings.
func buildRequest(rc *config.RunConfig, defaultWorkers, workers int, snapshotPath string) (app.SweepRequest, error) {
	params, err := rc.FieldParams()
	if err != nil {
		return app.SweepRequest{}, err
	}
	groupBy, err := rc.Grouping()
	if err != nil {
		return app.SweepRequest{}, err
	}
	reduction, err := rc.ReductionMode()
	if err != nil {
		return app.SweepRequest{}, err
	}
	policy, err := rc.Policy()
	if err != nil {
		return app.SweepRequest{}, err
	}

	req := app.SweepRequest{
		Params:       params,
		Engine:       rc.EngineOptions(),
		GroupBy:      groupBy,
		Reduction:    reduction,
		EmptyPolicy:  policy,
		Workers:      defaultWorkers,
		SnapshotPath: rc.Snapshot,
	}
	if rc.Workers > 0 {
		req.Workers = rc.Workers
	}
	if workers > 0 {
		req.Workers = workers
	}
	if snapshotPath != "" {
		req.SnapshotPath = snapshotPath
	}
	return req, nil
}

func snapshotWriter(path string) (ports.SnapshotWriter, error) {
	if path == "" {
		return nil, nil
	}
	w, err := snapshot.NewWriter(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return w, nil
}
