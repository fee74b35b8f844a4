package kfunction

import (
	"gospatial/domain/spatial"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// DistanceMatrix returns the N1 x N2 Euclidean distance matrix, or nil when
// either set is empty.
func DistanceMatrix(p1, p2 spatial.PointSet) *mat.Dense {
	if len(p1) == 0 || len(p2) == 0 {
		return nil
	}
	d := mat.NewDense(len(p1), len(p2), nil)
	for i, a := range p1 {
		for j, b := range p2 {
			d.Set(i, j, euclid(a, b))
		}
	}
	return d
}

func denseNeighbors(d *mat.Dense, maxRadius float64) [][]neighbor {
	rows, cols := d.Dims()
	nb := make([][]neighbor, rows)
	for i := 0; i < rows; i++ {
		row := d.RawRowView(i)
		for j := 0; j < cols; j++ {
			if row[j] <= maxRadius {
				nb[i] = append(nb[i], neighbor{index: j, dist: row[j]})
			}
		}
	}
	return nb
}

// kdNeighbors finds the same neighbor lists as denseNeighbors without the full
// matrix. The tree works on squared distances, so the search bound is padded
// and the exact Euclidean distance decides membership.
func kdNeighbors(p1, p2 spatial.PointSet, maxRadius float64) [][]neighbor {
	pts := make(indexedPoints, len(p2))
	for j, p := range p2 {
		pts[j] = indexedPoint{Point: p, index: j}
	}
	tree := kdtree.New(pts, false)
	bound := maxRadius * maxRadius * (1 + 1e-9)

	nb := make([][]neighbor, len(p1))
	for i, a := range p1 {
		keeper := kdtree.NewDistKeeper(bound)
		tree.NearestSet(keeper, indexedPoint{Point: a, index: -1})
		for _, item := range keeper.Heap {
			q, ok := item.Comparable.(indexedPoint)
			if !ok {
				continue // sentinel
			}
			d := euclid(a, q.Point)
			if d <= maxRadius {
				nb[i] = append(nb[i], neighbor{index: q.index, dist: d})
			}
		}
	}
	return nb
}

// indexedPoint carries its position in the measured set through the tree
type indexedPoint struct {
	spatial.Point
	index int
}

// Compare implements the kdtree.Comparable interface
func (p indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(indexedPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p indexedPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p indexedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(indexedPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

type indexedPoints []indexedPoint

func (p indexedPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p indexedPoints) Len() int                              { return len(p) }
func (p indexedPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p indexedPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{indexedPoints: p, Dim: d}, kdtree.MedianOfRandoms(plane{indexedPoints: p, Dim: d}, 100))
}

// plane implements sort.Interface and kdtree.SortSlicer along one axis
type plane struct {
	indexedPoints
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.indexedPoints[i].X < p.indexedPoints[j].X
	case 1:
		return p.indexedPoints[i].Y < p.indexedPoints[j].Y
	default:
		panic("illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{indexedPoints: p.indexedPoints[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.indexedPoints[i], p.indexedPoints[j] = p.indexedPoints[j], p.indexedPoints[i]
}
