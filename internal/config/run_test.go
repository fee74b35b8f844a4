package config

import (
	"os"
	"path/filepath"
	"testing"

	"gospatial/domain/celltable"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	apperrors "gospatial/internal/errors"
	"gospatial/internal/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullRun = `
phenotype1: {column: Phenotype, value: Tumor}
phenotype2: {column: Phenotype, value: CD8}
radii: [30, 60]
kinds: [count, idk]
intensity: "CD8: Cell: Mean"
group_by: patient
reduction: weighted_moments
empty_policy: strict
distance_floor: 0.5
edge_correction: true
neighbor_index: kdtree
columns: {x: cx, y: cy}
input:
  detection_dir: /data/detections
  phenotype_dir: /data/phenotypes
metadata:
  field_table: fields.csv
  sample_table: samples.csv
snapshot: out.xlsx
workers: 2
`

func TestParseFullRunConfig(t *testing.T) {
	rc, err := ParseRunConfig([]byte(fullRun))
	require.NoError(t, err)

	fp, err := rc.FieldParams()
	require.NoError(t, err)
	assert.Equal(t, spatial.RadiusSet{30, 60}, fp.Radii)
	assert.Equal(t, []spatial.StatisticKind{spatial.KindCount, spatial.KindIntensityDistance}, fp.Kinds)
	assert.Equal(t, "CD8: Cell: Mean", fp.Intensity)
	assert.Equal(t, celltable.Columns{CellID: "cell_id", X: "cx", Y: "cy"}, fp.Columns)

	opts := rc.EngineOptions()
	assert.True(t, opts.EdgeCorrection)
	assert.Equal(t, 0.5, opts.DistanceFloor)
	assert.Equal(t, spatial.IndexKDTree, opts.Index)

	g, err := rc.Grouping()
	require.NoError(t, err)
	assert.Equal(t, moments.GroupByPatient, g)
	red, err := rc.ReductionMode()
	require.NoError(t, err)
	assert.Equal(t, moments.ReductionWeightedMoments, red)
	pol, err := rc.Policy()
	require.NoError(t, err)
	assert.Equal(t, field.EmptyStrict, pol)
}

func TestRadiiForms(t *testing.T) {
	base := "phenotype1: {column: P, value: A}\nphenotype2: {column: P, value: B}\nkinds: [count]\ninput: {merged_glob: '*.tsv'}\n"
	tests := []struct {
		radii string
		want  spatial.RadiusSet
	}{
		{"radii: 50", spatial.RadiusSet{50}},
		{"radii: [10, 20.5]", spatial.RadiusSet{10, 20.5}},
		{"radii: {start: 1, stop: 100, num: 10}", spatial.LinSpace(1, 100, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.radii, func(t *testing.T) {
			rc, err := ParseRunConfig([]byte(base + tt.radii + "\n"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, spatial.RadiusSet(rc.Radii))
			assert.Empty(t, rc.Params().Intensity, "count-only runs carry no intensity")
		})
	}
}

func TestRunConfigDefaults(t *testing.T) {
	rc, err := ParseRunConfig([]byte(`
phenotype1: {column: P, value: A}
phenotype2: {column: P, value: B}
radii: 25
intensity: CD8
input: {merged_glob: "cells/*.tsv", index_column: field}
`))
	require.NoError(t, err)
	kinds, err := rc.StatisticKinds()
	require.NoError(t, err)
	assert.Equal(t, spatial.AllKinds(), kinds)
	assert.Equal(t, celltable.DefaultColumns(), rc.Columns)
	g, _ := rc.Grouping()
	assert.Equal(t, moments.GroupByPatientRegion, g)
	assert.Equal(t, spatial.IndexDense, rc.EngineOptions().Index)
}

func TestRunConfigInvalid(t *testing.T) {
	head := "phenotype1: {column: P, value: A}\nphenotype2: {column: P, value: B}\n"
	tests := map[string]string{
		"missing radii":          head + "kinds: [count]\ninput: {merged_glob: x}\n",
		"negative radius":        head + "radii: [-5]\nkinds: [count]\ninput: {merged_glob: x}\n",
		"duplicate radius":       head + "radii: [5, 5]\nkinds: [count]\ninput: {merged_glob: x}\n",
		"intensity needed":       head + "radii: 5\nkinds: [intensity]\ninput: {merged_glob: x}\n",
		"unknown kind":           head + "radii: 5\nkinds: [ripley]\ninput: {merged_glob: x}\n",
		"no input":               head + "radii: 5\nkinds: [count]\n",
		"both inputs":            head + "radii: 5\nkinds: [count]\ninput: {merged_glob: x, detection_dir: d, phenotype_dir: p}\n",
		"detections without phe": head + "radii: 5\nkinds: [count]\ninput: {detection_dir: d}\n",
		"half metadata":          head + "radii: 5\nkinds: [count]\ninput: {merged_glob: x}\nmetadata: {field_table: f.csv}\n",
		"unknown key":            head + "radii: 5\nkinds: [count]\ninput: {merged_glob: x}\nradius: 5\n",
		"bad policy":             head + "radii: 5\nkinds: [count]\ninput: {merged_glob: x}\nempty_policy: ignore\n",
		"empty predicate":        "phenotype1: {column: P}\nphenotype2: {column: P, value: B}\nradii: 5\nkinds: [count]\ninput: {merged_glob: x}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRunConfig([]byte(doc))
			require.Error(t, err)
			assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
		})
	}
}

func TestLoadRunConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullRun), 0o644))
	rc, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "out.xlsx", rc.Snapshot)

	_, err = LoadRunConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
