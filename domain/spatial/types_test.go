package spatial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gospatial/domain/core"
)

func TestLinSpace(t *testing.T) {
	rs := LinSpace(1, 100, 10)
	require.Len(t, rs, 10)
	assert.Equal(t, 1.0, rs[0])
	assert.Equal(t, 12.0, rs[1])
	assert.Equal(t, 100.0, rs[9])
	assert.Equal(t, RadiusSet{5}, LinSpace(5, 9, 1))
	assert.Empty(t, LinSpace(0, 1, 0))
}

func TestRadiusSetValidate(t *testing.T) {
	assert.NoError(t, RadiusSet{0.5, 50}.Validate())
	for _, bad := range []RadiusSet{nil, {0}, {-1}, {10, 0}} {
		assert.ErrorIs(t, bad.Validate(), core.ErrInvalidRadius, "%v", bad)
	}
}

func TestRadiusSetString(t *testing.T) {
	assert.Equal(t, "50", RadiusSet{50}.String())
	assert.Equal(t, "[1,12.5,100]", RadiusSet{1, 12.5, 100}.String())
	assert.Equal(t, 100.0, RadiusSet{1, 100, 12.5}.Max())
	assert.Equal(t, RadiusSet{1, 12.5, 100}, RadiusSet{100, 1, 12.5}.Sorted())
}

func TestParseStatisticKind(t *testing.T) {
	tests := map[string]StatisticKind{
		"count":              KindCount,
		"CK":                 KindCount,
		"ik":                 KindIntensity,
		"intensity_distance": KindIntensityDistance,
		"distance":           KindIntensityDistance,
	}
	for in, want := range tests {
		got, err := ParseStatisticKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseStatisticKind("ripley")
	assert.Error(t, err)

	assert.False(t, KindCount.RequiresIntensity())
	assert.True(t, KindIntensityDistance.RequiresIntensity())
}

func TestOutputShaped(t *testing.T) {
	single := &Output{Radii: RadiusSet{5}, Values: [][]float64{{1, 2, 3}}}
	assert.Equal(t, []int{3}, single.Shaped(true).Shape)
	s, err := single.Shaped(false).Scalar()
	require.NoError(t, err)
	assert.Equal(t, 2.0, s)

	multi := &Output{Radii: RadiusSet{5, 10}, Values: [][]float64{{1, 3}, {2, 6}}}
	list := multi.Shaped(true)
	assert.Equal(t, []int{2, 2}, list.Shape)
	row, err := list.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 6}, row)
	assert.Equal(t, Array{Shape: []int{2}, Data: []float64{2, 4}}, multi.Shaped(false))
}

func TestSortStatKeys(t *testing.T) {
	keys := []StatKey{
		{Kind: KindIntensity, Radius: 5},
		{Kind: KindCount, Radius: 10},
		{Kind: KindCount, Radius: 5},
	}
	SortStatKeys(keys)
	assert.Equal(t, []StatKey{{KindCount, 5}, {KindCount, 10}, {KindIntensity, 5}}, keys)
	assert.Equal(t, "count@5", keys[0].String())
}
