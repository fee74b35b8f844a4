package aggregate

import (
	"testing"

	"gospatial/adapters/metadata"
	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup map[core.FieldID]moments.FieldContext

func (m mapLookup) Resolve(field core.FieldID) (moments.FieldContext, error) {
	fc, ok := m[field]
	if !ok {
		return moments.FieldContext{}, core.ErrFieldNotFound
	}
	return fc, nil
}

var count50 = spatial.StatKey{Kind: spatial.KindCount, Radius: 50}

func result(field core.FieldID, values ...float64) *spatial.FieldResult {
	return &spatial.FieldResult{
		Field:          field,
		ReferenceCount: len(values),
		Values:         map[spatial.StatKey][]float64{count50: values},
	}
}

func TestPoolingIsOrderIndependent(t *testing.T) {
	a := result("P1_core_0_0_1", 1, 4, 4, 9)
	b := result("P1_core_0_0_2", 0, 2, 7)

	forward := NewAccumulator(moments.ReductionPooled)
	require.NoError(t, forward.Absorb(a))
	require.NoError(t, forward.Absorb(b))
	backward := NewAccumulator(moments.ReductionPooled)
	require.NoError(t, backward.Absorb(b))
	require.NoError(t, backward.Absorb(a))

	f, _, err := forward.Reduce()
	require.NoError(t, err)
	r, _, err := backward.Reduce()
	require.NoError(t, err)
	direct, err := ComputeMoments([]float64{1, 4, 4, 9, 0, 2, 7})
	require.NoError(t, err)

	for _, got := range []moments.Summary{f[count50], r[count50]} {
		assert.InDelta(t, direct.Mean, got.Mean, 1e-12)
		assert.InDelta(t, direct.Variance, got.Variance, 1e-12)
		assert.InDelta(t, direct.Skew, got.Skew, 1e-12)
		assert.InDelta(t, direct.Kurtosis, got.Kurtosis, 1e-12)
		assert.Equal(t, 7, got.N)
	}
}

func TestWeightedReductionEqualSizes(t *testing.T) {
	a := result("f1", 1, 2, 3, 10)
	b := result("f2", 5, 5, 6, 0)

	acc := NewAccumulator(moments.ReductionWeightedMoments)
	require.NoError(t, acc.Absorb(a))
	require.NoError(t, acc.Absorb(b))
	got, _, err := acc.Reduce()
	require.NoError(t, err)

	sa, err := ComputeMoments(a.Values[count50])
	require.NoError(t, err)
	sb, err := ComputeMoments(b.Values[count50])
	require.NoError(t, err)
	assert.InDelta(t, (sa.Mean+sb.Mean)/2, got[count50].Mean, 1e-12)
	assert.InDelta(t, (sa.Variance+sb.Variance)/2, got[count50].Variance, 1e-12)
	assert.InDelta(t, (sa.Skew+sb.Skew)/2, got[count50].Skew, 1e-12)
	assert.InDelta(t, (sa.Kurtosis+sb.Kurtosis)/2, got[count50].Kurtosis, 1e-12)
	assert.Nil(t, acc.Pool(count50))
}

func TestEmptyPoolIsSkipped(t *testing.T) {
	for _, red := range []moments.Reduction{moments.ReductionPooled, moments.ReductionWeightedMoments} {
		acc := NewAccumulator(red)
		require.NoError(t, acc.Absorb(result("f1")))
		got, skipped, err := acc.Reduce()
		require.NoError(t, err, red)
		assert.Empty(t, got, red)
		assert.Equal(t, []spatial.StatKey{count50}, skipped, red)
	}
}

func TestAggregatorGroupsAndQC(t *testing.T) {
	lookup := mapLookup{
		"f1": {Field: "f1", Patient: "P1", Region: "ovary", Included: true},
		"f2": {Field: "f2", Patient: "P1", Region: "ovary", Included: true},
		"f3": {Field: "f3", Patient: "P1", Region: "omentum", Included: true},
		"f4": {Field: "f4", Patient: "P1", Region: "ovary", Included: false, Reason: "field failed QC"},
	}
	agg := NewAggregator(lookup, moments.GroupByPatientRegion, moments.ReductionPooled, nil)

	for _, fr := range []*spatial.FieldResult{
		result("f1", 1, 2),
		result("f2", 3),
		result("f3", 8, 8),
		result("f4", 100, 200),
	} {
		_, err := agg.Add(fr)
		require.NoError(t, err)
	}
	_, err := agg.Add(result("unknown", 1))
	assert.ErrorIs(t, err, core.ErrFieldNotFound)

	assert.Equal(t, []core.GroupID{"P1/omentum", "P1/ovary"}, agg.Groups())
	assert.Equal(t, []Exclusion{{Field: "f4", Reason: "field failed QC"}}, agg.Excluded())
	acc, ok := agg.Group("P1/ovary")
	require.True(t, ok)
	assert.Equal(t, []core.FieldID{"f1", "f2"}, acc.Fields())
	assert.Equal(t, []float64{1, 2, 3}, acc.Pool(count50))

	sums, skipped, err := agg.Summaries()
	require.NoError(t, err)
	assert.Empty(t, skipped)
	require.Len(t, sums, 2)
	assert.Equal(t, core.GroupID("P1/omentum"), sums[0].Group)
	assert.True(t, sums[0].Summary.Degenerate)
	assert.InDelta(t, 2, sums[1].Summary.Mean, 1e-12)
	assert.InDelta(t, 2.0/3.0, sums[1].Summary.Variance, 1e-12)
}

func TestAggregatorWithFieldNameFallback(t *testing.T) {
	agg := NewAggregator(metadata.FieldNameLookup{}, moments.GroupByPatient, "", nil)
	pooled, err := agg.Add(result("P7_core_1_2_3", 1, 2))
	require.NoError(t, err)
	assert.True(t, pooled)
	_, err = agg.Add(result("P7_margin_1_2_4", 3))
	require.NoError(t, err)

	assert.Equal(t, []core.GroupID{"P7"}, agg.Groups())
	assert.Equal(t, moments.ReductionPooled, agg.Reduction())
}
