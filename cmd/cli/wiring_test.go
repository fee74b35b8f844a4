package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gospatial/adapters/metadata"
	"gospatial/adapters/snapshot"
	"gospatial/adapters/table"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal/config"
	"gospatial/internal/field"
	"gospatial/internal/testkit"
)

func parse(t *testing.T, doc string) *config.RunConfig {
	t.Helper()
	rc, err := config.ParseRunConfig([]byte(doc))
	require.NoError(t, err)
	return rc
}

const pairedRun = `
phenotype1: {column: Phenotype, value: Tumor}
phenotype2: {column: Phenotype, value: Immune}
radii: [25, 50]
kinds: [count]
input: {detection_dir: det, phenotype_dir: phe}
snapshot: out.json
workers: 3
`

func TestBuildRequest(t *testing.T) {
	rc := parse(t, pairedRun)

	req, err := buildRequest(rc, 4, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 3, req.Workers)
	assert.Equal(t, "out.json", req.SnapshotPath)
	assert.Equal(t, spatial.RadiusSet{25, 50}, req.Params.Radii)
	assert.Equal(t, moments.GroupByPatientRegion, req.GroupBy)
	assert.Equal(t, moments.ReductionPooled, req.Reduction)
	assert.Equal(t, field.EmptyWarn, req.EmptyPolicy)
	assert.Empty(t, req.ResultParams().Intensity)

	req, err = buildRequest(rc, 4, 9, "x.xlsx")
	require.NoError(t, err)
	assert.Equal(t, 9, req.Workers)
	assert.Equal(t, "x.xlsx", req.SnapshotPath)

	rc.Workers = 0
	req, err = buildRequest(rc, 4, 0, "")
	require.NoError(t, err)
	assert.Equal(t, 4, req.Workers)
}

func TestBuildSourceAndLookup(t *testing.T) {
	rc := parse(t, pairedRun)
	assert.IsType(t, &table.PairedDirectorySource{}, buildSource(rc, nil))
	lookup, err := buildLookup(rc, nil)
	require.NoError(t, err)
	assert.IsType(t, metadata.FieldNameLookup{}, lookup)

	merged := parse(t, `
phenotype1: {column: Phenotype, value: Tumor}
phenotype2: {column: Phenotype, value: Immune}
radii: 10
kinds: [count]
input: {merged_glob: "tables/*.csv", index_column: field}
metadata: {field_table: missing_fields.csv, sample_table: missing_samples.csv}
`)
	src := buildSource(merged, nil)
	require.IsType(t, &table.MergedGlobSource{}, src)
	assert.Equal(t, "field", src.(*table.MergedGlobSource).IndexColumn)
	_, err = buildLookup(merged, nil)
	assert.Error(t, err)
}

func TestSnapshotWriterSelection(t *testing.T) {
	w, err := snapshotWriter("")
	require.NoError(t, err)
	assert.Nil(t, w)

	w, err = snapshotWriter("a.xlsx")
	require.NoError(t, err)
	assert.IsType(t, snapshot.XLSXWriter{}, w)

	_, err = snapshotWriter("a.parquet")
	assert.Error(t, err)
}

func TestParsePredicate(t *testing.T) {
	p, err := parsePredicate("Phenotype=CD8 T cell")
	require.NoError(t, err)
	assert.Equal(t, spatial.PhenotypePredicate{Column: "Phenotype", Value: "CD8 T cell"}, p)

	for _, bad := range []string{"Phenotype", "=x", "x="} {
		_, err := parsePredicate(bad)
		assert.Error(t, err, bad)
	}
}

func TestMergedSourceFromRunFile(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"P1_a_0_0_1", "P1_a_0_0_2"} {
		cfg := testkit.DefaultFieldConfig()
		cfg.Name, cfg.Seed = name, int64(i+1)
		_, err := testkit.GenerateField(cfg).WriteMerged(dir)
		require.NoError(t, err)
	}
	rc := parse(t, `
phenotype1: {column: Phenotype, value: Tumor}
phenotype2: {column: Phenotype, value: Immune}
radii: [20]
kinds: [count, intensity]
intensity: "CD8: Cell: Mean"
input: {merged_glob: "`+filepath.Join(dir, "*")+`", index_column: field}
`)
	src := buildSource(rc, nil)
	fields, err := src.Fields(context.Background())
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "P1_a_0_0_1", fields[0].Field.String())
}
