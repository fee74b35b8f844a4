package spatial

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gospatial/domain/core"
)

// Point is a cell centroid in micrometres
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointSet is an ordered set of centroids selected by one phenotype predicate
type PointSet []Point

// Bounds returns the bounding rectangle of the set; ok is false for an empty set
func (ps PointSet) Bounds() (b Bounds, ok bool) {
	if len(ps) == 0 {
		return Bounds{}, false
	}
	b = Bounds{MinX: ps[0].X, MaxX: ps[0].X, MinY: ps[0].Y, MaxY: ps[0].Y}
	for _, p := range ps[1:] {
		b.MinX = math.Min(b.MinX, p.X)
		b.MaxX = math.Max(b.MaxX, p.X)
		b.MinY = math.Min(b.MinY, p.Y)
		b.MaxY = math.Max(b.MaxY, p.Y)
	}
	return b, true
}

// Bounds is an axis-aligned observation window
type Bounds struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// IntensityVector holds one marker intensity per point, index-aligned with a PointSet
type IntensityVector []float64

// Ones returns an all-ones intensity vector of length n
func Ones(n int) IntensityVector {
	v := make(IntensityVector, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// RadiusSet is an ordered set of positive distance thresholds.
// A single-element set behaves exactly like a scalar radius.
type RadiusSet []float64

// LinSpace returns n evenly spaced radii over [start, end]
func LinSpace(start, end float64, n int) RadiusSet {
	if n <= 0 {
		return RadiusSet{}
	}
	if n == 1 {
		return RadiusSet{start}
	}
	rs := make(RadiusSet, n)
	step := (end - start) / float64(n-1)
	for i := range rs {
		rs[i] = start + float64(i)*step
	}
	rs[n-1] = end
	return rs
}

// Validate checks the set is non-empty and every radius is positive and finite
func (rs RadiusSet) Validate() error {
	if len(rs) == 0 {
		return fmt.Errorf("%w: no radii given", core.ErrInvalidRadius)
	}
	for _, r := range rs {
		if !(r > 0) || math.IsInf(r, 0) {
			return fmt.Errorf("%w: %v", core.ErrInvalidRadius, r)
		}
	}
	return nil
}

// Max returns the largest radius, or 0 for an empty set
func (rs RadiusSet) Max() float64 {
	m := 0.0
	for _, r := range rs {
		m = math.Max(m, r)
	}
	return m
}

// Sorted returns a sorted copy
func (rs RadiusSet) Sorted() RadiusSet {
	out := append(RadiusSet(nil), rs...)
	sort.Float64s(out)
	return out
}

// String renders the set the way run labels and file names show it
func (rs RadiusSet) String() string {
	if len(rs) == 1 {
		return FormatRadius(rs[0])
	}
	parts := make([]string, len(rs))
	for i, r := range rs {
		parts[i] = FormatRadius(r)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// FormatRadius renders a radius without trailing zeros
func FormatRadius(r float64) string {
	return strconv.FormatFloat(r, 'f', -1, 64)
}

// StatisticKind selects the per-pair reduction
type StatisticKind string

const (
	KindCount             StatisticKind = "count"
	KindIntensity         StatisticKind = "intensity"
	KindIntensityDistance StatisticKind = "intensity_distance"
)

// AllKinds lists every statistic kind in canonical order
func AllKinds() []StatisticKind {
	return []StatisticKind{KindCount, KindIntensity, KindIntensityDistance}
}

// ParseStatisticKind accepts the canonical names plus the short aliases used in run files
func ParseStatisticKind(s string) (StatisticKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "ck":
		return KindCount, nil
	case "intensity", "ik":
		return KindIntensity, nil
	case "intensity_distance", "intensity-distance", "distance", "idk":
		return KindIntensityDistance, nil
	default:
		return "", fmt.Errorf("unknown statistic kind %q", s)
	}
}

// RequiresIntensity reports whether the kind consumes an intensity vector
func (k StatisticKind) RequiresIntensity() bool {
	return k == KindIntensity || k == KindIntensityDistance
}

func (k StatisticKind) String() string { return string(k) }

// PhenotypePredicate selects cells whose Column equals Value
type PhenotypePredicate struct {
	Column string `json:"column" yaml:"column" validate:"required"`
	Value  string `json:"value" yaml:"value" validate:"required"`
}

// Label concatenates column and value, as used in flat result column names
func (p PhenotypePredicate) Label() string {
	return p.Column + p.Value
}

func (p PhenotypePredicate) String() string {
	return p.Column + "=" + p.Value
}

// NeighborIndex selects how pairwise distances are evaluated
type NeighborIndex string

const (
	// IndexDense materialises the full N1 x N2 distance matrix
	IndexDense NeighborIndex = "dense"
	// IndexKDTree queries a k-d tree over the measured set out to the largest radius
	IndexKDTree NeighborIndex = "kdtree"
)

// EngineOptions tunes the statistic engine
type EngineOptions struct {
	// EdgeCorrection reweights reference points whose search disk leaves the
	// bounding rectangle of the reference set
	EdgeCorrection bool `json:"edge_correction"`
	// DistanceFloor clamps distances below it in the distance-weighted kind.
	// Zero excludes zero-distance pairs instead.
	DistanceFloor float64       `json:"distance_floor"`
	Index         NeighborIndex `json:"neighbor_index"`
}

// DefaultEngineOptions returns the dense, uncorrected engine configuration
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{Index: IndexDense}
}

// StatKey identifies one pooled vector inside a field result
type StatKey struct {
	Kind   StatisticKind `json:"kind"`
	Radius float64       `json:"radius"`
}

func (k StatKey) String() string {
	return fmt.Sprintf("%s@%s", k.Kind, FormatRadius(k.Radius))
}

// FieldResult holds the per-reference-point statistic vectors of one field
type FieldResult struct {
	Field          core.FieldID          `json:"field"`
	ReferenceCount int                   `json:"reference_count"`
	MeasuredCount  int                   `json:"measured_count"`
	Values         map[StatKey][]float64 `json:"-"`
	Warnings       []string              `json:"warnings,omitempty"`
}

// Keys returns the result's stat keys in a stable order
func (fr *FieldResult) Keys() []StatKey {
	keys := make([]StatKey, 0, len(fr.Values))
	for k := range fr.Values {
		keys = append(keys, k)
	}
	SortStatKeys(keys)
	return keys
}

// SortStatKeys orders keys by kind then radius
func SortStatKeys(keys []StatKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind.Order() < keys[j].Kind.Order()
		}
		return keys[i].Radius < keys[j].Radius
	})
}

// Order is the kind's position in AllKinds; unknown kinds sort last
func (k StatisticKind) Order() int {
	for i, kk := range AllKinds() {
		if kk == k {
			return i
		}
	}
	return len(AllKinds())
}
