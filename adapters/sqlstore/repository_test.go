package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal/migration"

	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := OpenAndMigrate(context.Background(), filepath.Join(t.TempDir(), "results.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

var testParams = moments.Params{
	Phenotype1: spatial.PhenotypePredicate{Column: "Phenotype", Value: "Tumor"},
	Phenotype2: spatial.PhenotypePredicate{Column: "Phenotype", Value: "CD8"},
	Intensity:  "CD8: Cell: Mean",
}

func record(radius float64, kind spatial.StatisticKind, group core.GroupID, mean float64) moments.Record {
	return moments.Record{
		Key:        moments.Key{Params: testParams, Radius: radius, Kind: kind, Group: group},
		Moments:    moments.Summary{Mean: mean, Variance: 1.5, Skew: -0.25, Kurtosis: 0.75, N: 12},
		RunID:      "run-1",
		Reduction:  moments.ReductionPooled,
		ComputedAt: core.NewTimestamp(time.Date(2025, 3, 1, 12, 0, 0, 123, time.UTC)),
	}
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, DriverPostgres, DriverFor("postgres://u:p@localhost/db"))
	assert.Equal(t, DriverPostgres, DriverFor("PostgreSQL://localhost/db"))
	assert.Equal(t, DriverSQLite, DriverFor("file:results.db"))
	assert.Equal(t, DriverSQLite, DriverFor("/tmp/results.db"))
}

func TestMigrationIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, migration.NewRunner().Run(context.Background(), db))
	versions, err := migration.AppliedVersions(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0.0"}, versions)
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(openTestDB(t), nil)

	recs := []moments.Record{
		record(60, spatial.KindIntensity, "P1/ovary", 2),
		record(30, spatial.KindCount, "P1/ovary", 1),
		record(60, spatial.KindCount, "P2/ovary", 3),
	}
	recs[1].Moments.Degenerate = true
	n, err := repo.Append(ctx, recs)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := repo.List(ctx, moments.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 30.0, all[0].Key.Radius)
	assert.Equal(t, spatial.KindIntensity, all[2].Key.Kind)
	if diff := cmp.Diff(recs[1].Key, all[0].Key); diff != "" {
		t.Errorf("key mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(recs[1].Moments, all[0].Moments); diff != "" {
		t.Errorf("moments mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, recs[1].ComputedAt.Time().Equal(all[0].ComputedAt.Time()))

	r := 60.0
	kind := spatial.KindCount
	filtered, err := repo.List(ctx, moments.Filter{Radius: &r, Kind: &kind})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, core.GroupID("P2/ovary"), filtered[0].Key.Group)

	limited, err := repo.List(ctx, moments.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	other := moments.ForParams(moments.Params{Phenotype1: testParams.Phenotype2, Phenotype2: testParams.Phenotype1, Intensity: testParams.Intensity})
	none, err := repo.List(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDuplicateAppendLeavesRowsUntouched(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(openTestDB(t), nil)

	_, err := repo.Append(ctx, []moments.Record{record(60, spatial.KindCount, "P1/ovary", 1)})
	require.NoError(t, err)

	_, err = repo.Append(ctx, []moments.Record{
		record(90, spatial.KindCount, "P1/ovary", 5),
		record(60, spatial.KindCount, "P1/ovary", 99),
	})
	assert.ErrorIs(t, err, core.ErrDuplicateComputation)

	all, err := repo.List(ctx, moments.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1, "failed batch must roll back")
	assert.Equal(t, 1.0, all[0].Moments.Mean)
}

func TestRadiiAndExistingRadii(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(openTestDB(t), nil)
	_, err := repo.Append(ctx, []moments.Record{
		record(60, spatial.KindCount, "a", 1),
		record(60, spatial.KindIntensity, "a", 1),
		record(15.5, spatial.KindCount, "a", 1),
	})
	require.NoError(t, err)

	radii, err := repo.Radii(ctx, testParams)
	require.NoError(t, err)
	assert.Equal(t, []float64{15.5, 60}, radii)

	existing, err := repo.ExistingRadii(ctx, testParams, []float64{10, 60, 15.5})
	require.NoError(t, err)
	assert.Equal(t, []float64{60, 15.5}, existing)

	other := testParams
	other.Intensity = "PanCK"
	existing, err = repo.ExistingRadii(ctx, other, []float64{60})
	require.NoError(t, err)
	assert.Empty(t, existing)
}

func TestRuns(t *testing.T) {
	ctx := context.Background()
	repo := NewResultRepository(openTestDB(t), nil)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []core.RunID{"older", "newer"} {
		run := &moments.RunSummary{
			RunID:          id,
			Params:         testParams,
			Radii:          spatial.RadiusSet{30, 60},
			Kinds:          []spatial.StatisticKind{spatial.KindCount},
			GroupBy:        moments.GroupByPatientRegion,
			Reduction:      moments.ReductionPooled,
			Fingerprint:    "abc",
			FieldsTotal:    3,
			FieldsComputed: 2,
			FieldsFailed:   1,
			RecordsWritten: 4,
			StartedAt:      core.NewTimestamp(base.Add(time.Duration(i) * time.Hour)),
			FinishedAt:     core.NewTimestamp(base.Add(time.Duration(i)*time.Hour + time.Minute)),
		}
		require.NoError(t, repo.SaveRun(ctx, run))
	}

	runs, err := repo.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, core.RunID("newer"), runs[0].RunID)
	assert.Equal(t, spatial.RadiusSet{30, 60}, runs[0].Radii)
	assert.Equal(t, []spatial.StatisticKind{spatial.KindCount}, runs[0].Kinds)
	assert.Equal(t, testParams, runs[0].Params)

	one, err := repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, one, 1)
}
