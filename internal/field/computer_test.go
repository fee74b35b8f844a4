package field

import (
	"context"
	"testing"

	"gospatial/adapters/stats/kfunction"
	"gospatial/domain/celltable"
	"gospatial/domain/core"
	"gospatial/domain/spatial"
	"gospatial/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tumorImmuneParams(radii spatial.RadiusSet, kinds ...spatial.StatisticKind) Params {
	return Params{
		Phenotype1: spatial.PhenotypePredicate{Column: testkit.PhenotypeColumn, Value: testkit.Tumor},
		Phenotype2: spatial.PhenotypePredicate{Column: testkit.PhenotypeColumn, Value: testkit.Immune},
		Radii:      radii,
		Kinds:      kinds,
		Intensity:  testkit.IntensityColumn,
	}
}

func TestComputeMatchesEngine(t *testing.T) {
	f := testkit.GenerateField(testkit.DefaultFieldConfig())
	engine := kfunction.NewEngine(spatial.DefaultEngineOptions())
	c := NewComputer(engine, EmptyWarn, nil)
	radii := spatial.RadiusSet{30, 60}

	res, err := c.Compute(context.Background(), core.FieldID(f.Name), f.Table(), tumorImmuneParams(radii, spatial.AllKinds()...))
	require.NoError(t, err)
	assert.Equal(t, 41, res.ReferenceCount)
	assert.Equal(t, 17, res.MeasuredCount)
	assert.Empty(t, res.Warnings)
	assert.Len(t, res.Values, 6)

	want, err := engine.Count(f.Points(testkit.Tumor), f.Points(testkit.Immune), radii, true)
	require.NoError(t, err)
	row, err := want.Row(1)
	require.NoError(t, err)
	assert.Equal(t, row, res.Values[spatial.StatKey{Kind: spatial.KindCount, Radius: 60}])

	wantI, err := engine.Intensity(f.Points(testkit.Tumor), f.Points(testkit.Immune), spatial.RadiusSet{30}, f.Intensities(testkit.Immune), true)
	require.NoError(t, err)
	assert.InDeltaSlice(t, wantI.Data, res.Values[spatial.StatKey{Kind: spatial.KindIntensity, Radius: 30}], 1e-12)
}

func TestComputeCountOnlySkipsIntensityColumn(t *testing.T) {
	f := testkit.GenerateField(testkit.DefaultFieldConfig())
	tbl := f.Table().Drop(testkit.IntensityColumn)
	c := NewComputer(kfunction.NewEngine(spatial.DefaultEngineOptions()), EmptyWarn, nil)

	res, err := c.Compute(context.Background(), "f", tbl, tumorImmuneParams(spatial.RadiusSet{50}, spatial.KindCount))
	require.NoError(t, err)
	assert.Len(t, res.Values, 1)

	_, err = c.Compute(context.Background(), "f", tbl, tumorImmuneParams(spatial.RadiusSet{50}, spatial.KindIntensity))
	assert.ErrorIs(t, err, core.ErrMissingColumn)
}

func TestEmptySelectionPolicies(t *testing.T) {
	cfg := testkit.DefaultFieldConfig()
	cfg.ImmuneCount = 0
	f := testkit.GenerateField(cfg)
	engine := kfunction.NewEngine(spatial.DefaultEngineOptions())
	p := tumorImmuneParams(spatial.RadiusSet{50}, spatial.KindCount)

	res, err := NewComputer(engine, EmptyWarn, nil).Compute(context.Background(), "f", f.Table(), p)
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "phenotype2")
	vals := res.Values[spatial.StatKey{Kind: spatial.KindCount, Radius: 50}]
	assert.Len(t, vals, cfg.TumorCount)
	for _, v := range vals {
		assert.Zero(t, v)
	}

	_, err = NewComputer(engine, EmptyStrict, nil).Compute(context.Background(), "f", f.Table(), p)
	assert.ErrorIs(t, err, core.ErrEmptyPhenotype)
}

func TestMalformedCoordinate(t *testing.T) {
	tbl := celltable.NewTable("f", []string{celltable.DefaultXColumn, celltable.DefaultYColumn, testkit.PhenotypeColumn},
		[][]string{{"1", "x", testkit.Tumor}, {"2", "2", testkit.Immune}})
	c := NewComputer(kfunction.NewEngine(spatial.DefaultEngineOptions()), EmptyWarn, nil)

	_, err := c.Compute(context.Background(), "f", tbl, tumorImmuneParams(spatial.RadiusSet{5}, spatial.KindCount))
	assert.ErrorIs(t, err, core.ErrMalformedTable)
}

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr bool
	}{
		{"valid", func(*Params) {}, false},
		{"no radii", func(p *Params) { p.Radii = nil }, true},
		{"negative radius", func(p *Params) { p.Radii = spatial.RadiusSet{-1} }, true},
		{"no kinds", func(p *Params) { p.Kinds = nil }, true},
		{"no intensity", func(p *Params) { p.Intensity = "" }, true},
		{"count without intensity", func(p *Params) { p.Intensity = ""; p.Kinds = []spatial.StatisticKind{spatial.KindCount} }, false},
		{"empty predicate", func(p *Params) { p.Phenotype2.Value = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tumorImmuneParams(spatial.RadiusSet{10}, spatial.AllKinds()...)
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseEmptyPolicy(t *testing.T) {
	p, err := ParseEmptyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, EmptyWarn, p)
	p, err = ParseEmptyPolicy("STRICT")
	require.NoError(t, err)
	assert.Equal(t, EmptyStrict, p)
	_, err = ParseEmptyPolicy("abort")
	assert.Error(t, err)
}
