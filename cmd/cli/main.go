package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gospatial/adapters/snapshot"
	"gospatial/adapters/sqlstore"
	"gospatial/app"
	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal/config"
	"gospatial/internal/migration"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gospatial",
		Short: "Spatial K-function sweeps over multiplexed imaging fields",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newFieldCmd(),
		newResultsCmd(),
		newSnapshotCmd(),
		newMigrateCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var configPath, snapshotPath string
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a K-function sweep described by a run file",
		Long: `Compute the requested K-functions for every field, pool them per group and
store the moment summaries.

A radius already stored for the same phenotype pair and intensity channel
refuses the whole run before any field is read.

Example: gospatial run --config sweep.yaml --workers 8 --snapshot out/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd.Context(), configPath, workers, snapshotPath)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Run file (YAML)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent fields (default: run file, then WORKERS)")
	cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Snapshot file or directory (.json or .xlsx)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runSweep(ctx context.Context, configPath string, workers int, snapshotPath string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	rc, err := config.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	req, err := buildRequest(rc, e.cfg.Compute.Workers, workers, snapshotPath)
	if err != nil {
		return err
	}
	lookup, err := buildLookup(rc, e.logger)
	if err != nil {
		return err
	}
	writer, err := snapshotWriter(req.SnapshotPath)
	if err != nil {
		return err
	}

	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	svc := app.NewKFunctionSweepService(buildSource(rc, e.logger), lookup, sqlstore.NewResultRepository(db, e.logger), writer, e.logger)
	report, err := svc.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n", report.RunID)
	fmt.Printf("  fields:   %d total, %d pooled, %d excluded by QC, %d failed\n",
		report.FieldsTotal, report.FieldsComputed, report.FieldsExcludedQC, len(report.FieldFailures))
	fmt.Printf("  records:  %d written\n", report.RecordsWritten)
	if report.EmptyWarnings > 0 {
		fmt.Printf("  warnings: %d empty phenotype selections\n", report.EmptyWarnings)
	}
	for _, f := range report.FieldFailures {
		fmt.Printf("  ✗ %s: %s\n", f.Field, f.Error)
	}
	for _, s := range report.SkippedEmptyPools {
		fmt.Printf("  - skipped empty pool %s %s\n", s.Group, s.Key)
	}
	if report.SnapshotPath != "" {
		fmt.Printf("  snapshot: %s\n", report.SnapshotPath)
	}
	fmt.Printf("  runtime:  %dms\n", report.RuntimeMs)
	return nil
}

func newFieldCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "field [field-name]",
		Short: "Compute one field without aggregating or storing",
		Long: `Compute the run file's statistics for a single field and print the mean
over reference cells per kind and radius.

Example: gospatial field P01_ovary_1000_2000_1 --config sweep.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runField(cmd.Context(), configPath, core.FieldID(args[0]))
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Run file (YAML)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runField(ctx context.Context, configPath string, name core.FieldID) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	rc, err := config.LoadRunConfig(configPath)
	if err != nil {
		return err
	}
	req, err := buildRequest(rc, e.cfg.Compute.Workers, 0, "")
	if err != nil {
		return err
	}

	svc := app.NewKFunctionSweepService(buildSource(rc, e.logger), nil, nil, nil, e.logger)
	fr, err := svc.ComputeField(ctx, name, req)
	if err != nil {
		return err
	}

	fmt.Printf("Field %s: %d reference cells, %d measured cells\n", fr.Field, fr.ReferenceCount, fr.MeasuredCount)
	for _, w := range fr.Warnings {
		fmt.Printf("  ⚠ %s\n", w)
	}
	for _, key := range fr.Keys() {
		values := fr.Values[key]
		mean := 0.0
		for _, v := range values {
			mean += v
		}
		if len(values) > 0 {
			mean /= float64(len(values))
		}
		fmt.Printf("  %-24s mean=%.6g\n", key, mean)
	}
	return nil
}

func newResultsCmd() *cobra.Command {
	var p1, p2, intensity, kind, group, runID string
	var radius float64
	var limit int
	var asJSON, flat bool

	cmd := &cobra.Command{
		Use:   "results",
		Short: "List stored moment summaries",
		Long: `List stored summaries, optionally filtered.

Phenotypes are given as column=value.

Example: gospatial results --p1 Phenotype=Tumor --p2 Phenotype=Immune --radius 50`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := moments.Filter{Limit: limit}
			if p1 != "" {
				p, err := parsePredicate(p1)
				if err != nil {
					return err
				}
				filter.Phenotype1 = &p
			}
			if p2 != "" {
				p, err := parsePredicate(p2)
				if err != nil {
					return err
				}
				filter.Phenotype2 = &p
			}
			if cmd.Flags().Changed("intensity") {
				filter.Intensity = &intensity
			}
			if cmd.Flags().Changed("radius") {
				filter.Radius = &radius
			}
			if kind != "" {
				k, err := spatial.ParseStatisticKind(kind)
				if err != nil {
					return err
				}
				filter.Kind = &k
			}
			if group != "" {
				g := core.GroupID(group)
				filter.Group = &g
			}
			if runID != "" {
				id := core.RunID(runID)
				filter.RunID = &id
			}
			return runResults(cmd.Context(), filter, asJSON, flat)
		},
	}

	cmd.Flags().StringVar(&p1, "p1", "", "Reference phenotype as column=value")
	cmd.Flags().StringVar(&p2, "p2", "", "Measured phenotype as column=value")
	cmd.Flags().StringVar(&intensity, "intensity", "", "Intensity channel (empty matches count-only runs)")
	cmd.Flags().Float64Var(&radius, "radius", 0, "Radius")
	cmd.Flags().StringVar(&kind, "kind", "", "Statistic kind")
	cmd.Flags().StringVar(&group, "group", "", "Group identifier")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	cmd.Flags().BoolVar(&flat, "flat", false, "Print flat column names")
	return cmd
}

func parsePredicate(s string) (spatial.PhenotypePredicate, error) {
	col, val, ok := strings.Cut(s, "=")
	if !ok || col == "" || val == "" {
		return spatial.PhenotypePredicate{}, fmt.Errorf("phenotype %q must be column=value", s)
	}
	return spatial.PhenotypePredicate{Column: col, Value: val}, nil
}

func runResults(ctx context.Context, filter moments.Filter, asJSON, flat bool) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := app.NewResultsService(sqlstore.NewResultRepository(db, e.logger)).List(ctx, filter)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	for _, r := range records {
		if flat {
			for _, name := range moments.MomentNames() {
				v, _ := r.Moments.Value(name)
				fmt.Printf("%s\t%s\t%.6g\n", r.Key.Group, r.Key.ColumnName(name), v)
			}
			continue
		}
		fmt.Printf("%s\t%s\tR=%s\t%s\tmean=%.6g var=%.6g skew=%.6g kurt=%.6g n=%d\n",
			r.Key.Group, r.Key.Params, spatial.FormatRadius(r.Key.Radius), r.Key.Kind,
			r.Moments.Mean, r.Moments.Variance, r.Moments.Skew, r.Moments.Kurtosis, r.Moments.N)
	}
	fmt.Printf("%d records\n", len(records))
	return nil
}

func newSnapshotCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "snapshot [run-id]",
		Short: "Export the stored results of one run",
		Long: `Write the stored summaries of a run as a JSON document or XLSX workbook.
A directory output gets the default p1=...,p2=...,I=...,R=... file name.

Example: gospatial snapshot 0190f5c2-... --out results.xlsx`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshot(cmd.Context(), core.RunID(args[0]), out)
		},
	}

	cmd.Flags().StringVar(&out, "out", ".", "Output file or directory")
	return cmd
}

func runSnapshot(ctx context.Context, runID core.RunID, out string) error {
	e, err := loadEnv()
	if err != nil {
		return err
	}
	writer, err := snapshot.NewWriter(out)
	if err != nil {
		return err
	}
	db, err := e.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	results := app.NewResultsService(sqlstore.NewResultRepository(db, e.logger))
	runs, err := results.Runs(ctx, 0)
	if err != nil {
		return err
	}
	for _, run := range runs {
		if run.RunID != runID {
			continue
		}
		snap, err := results.Snapshot(ctx, run)
		if err != nil {
			return err
		}
		if err := writer.Write(ctx, snap, out); err != nil {
			return err
		}
		fmt.Printf("Wrote %d records of run %s to %s\n", len(snap.Records), runID, out)
		return nil
	}
	return fmt.Errorf("%w: run %s", core.ErrResultsNotFound, runID)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the results schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			db, err := e.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			versions, err := migration.AppliedVersions(cmd.Context(), db)
			if err != nil {
				return err
			}
			fmt.Printf("%s schema at %s (applied: %s)\n",
				sqlstore.DriverFor(e.cfg.Database.URL), migration.NewRunner().Version(), strings.Join(versions, ", "))
			return nil
		},
	}
}
