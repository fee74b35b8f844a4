package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testSnapshot() *moments.Snapshot {
	params := moments.Params{
		Phenotype1: spatial.PhenotypePredicate{Column: "Phenotype", Value: "Tumor"},
		Phenotype2: spatial.PhenotypePredicate{Column: "Phenotype", Value: "CD8"},
		Intensity:  "CD8",
	}
	rec := func(r float64, kind spatial.StatisticKind, g core.GroupID, mean float64) moments.Record {
		return moments.Record{
			Key:     moments.Key{Params: params, Radius: r, Kind: kind, Group: g},
			Moments: moments.Summary{Mean: mean, Variance: 1, N: 3},
		}
	}
	return &moments.Snapshot{
		RunID:     "run-1",
		Params:    params,
		Radii:     spatial.RadiusSet{30, 60},
		Kinds:     []spatial.StatisticKind{spatial.KindCount, spatial.KindIntensity},
		GroupBy:   moments.GroupByPatientRegion,
		Reduction: moments.ReductionPooled,
		CreatedAt: core.Now(),
		Records: []moments.Record{
			rec(60, spatial.KindCount, "P2/ovary", 4),
			rec(30, spatial.KindCount, "P1/ovary", 1),
			rec(60, spatial.KindCount, "P1/ovary", 2),
			rec(30, spatial.KindIntensity, "P1/ovary", 7),
		},
	}
}

func TestNewWriter(t *testing.T) {
	w, err := NewWriter("out.xlsx")
	require.NoError(t, err)
	assert.IsType(t, XLSXWriter{}, w)
	w, err = NewWriter("out.json")
	require.NoError(t, err)
	assert.IsType(t, JSONWriter{}, w)
	_, err = NewWriter("out.npy")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	snap := testSnapshot()
	dir := t.TempDir()

	got, err := Resolve(snap, dir, ExtJSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "p1=Tumor,p2=CD8,I=CD8,R=[30,60].json"), got)

	got, err = Resolve(snap, filepath.Join(dir, "sweep"), ExtXLSX)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sweep.xlsx"), got)

	_, err = Resolve(snap, "", ExtJSON)
	assert.Error(t, err)
}

func TestWideTable(t *testing.T) {
	cols, groups, cells := WideTable(testSnapshot())
	assert.Len(t, cols, 12)
	assert.Contains(t, cols, "PhenotypeTumor_PhenotypeCD8_60_count_CD8_mean")
	assert.Equal(t, []core.GroupID{"P1/ovary", "P2/ovary"}, groups)
	assert.Equal(t, 2.0, cells["P1/ovary"]["PhenotypeTumor_PhenotypeCD8_60_count_CD8_mean"])
	_, ok := cells["P2/ovary"]["PhenotypeTumor_PhenotypeCD8_30_count_CD8_mean"]
	assert.False(t, ok)
}

func TestJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sweep.json")
	snap := testSnapshot()
	require.NoError(t, JSONWriter{}.Write(context.Background(), snap, path))

	doc, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, snap.RunID, doc.RunID)
	assert.Equal(t, snap.Radii, doc.Radii)
	assert.Equal(t, 7.0, doc.Results[spatial.KindIntensity]["30"]["P1/ovary"].Mean)
	assert.Equal(t, 4.0, doc.Results[spatial.KindCount]["60"]["P2/ovary"].Mean)
	assert.Equal(t, 1.0, doc.Wide["P1/ovary"]["PhenotypeTumor_PhenotypeCD8_30_count_CD8_mean"])
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sweep.xlsx")
	require.NoError(t, XLSXWriter{}.Write(context.Background(), testSnapshot(), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetParams, "count", "intensity", SheetWide}, f.GetSheetList())

	rows, err := f.GetRows("count")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "group", rows[0][0])
	assert.Equal(t, []string{"P1/ovary", "30", "1"}, rows[1][:3])
	assert.Equal(t, "P2/ovary", rows[3][0])

	wide, err := f.GetRows(SheetWide)
	require.NoError(t, err)
	require.Len(t, wide, 3)
	assert.Len(t, wide[0], 13)

	params, err := f.GetRows(SheetParams)
	require.NoError(t, err)
	assert.Equal(t, []string{"phenotype1", "Phenotype=Tumor"}, params[1])
}

func TestWriteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "x.json")
	assert.Error(t, JSONWriter{}.Write(ctx, testSnapshot(), path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
