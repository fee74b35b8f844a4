package kfunction

import (
	"math"

	"gospatial/domain/spatial"
)

// EdgeWeights returns, for each radius and each reference point, the factor
// 1/f where f is the fraction of the search disk inside the bounding
// rectangle of p1. Each axis is treated independently against its nearer
// boundary and the larger of the two axis weights is kept.
func EdgeWeights(p1 spatial.PointSet, radii spatial.RadiusSet) [][]float64 {
	weights := make([][]float64, len(radii))
	bounds, ok := p1.Bounds()
	for ri, r := range radii {
		row := make([]float64, len(p1))
		for i, p := range p1 {
			if !ok {
				row[i] = 1
				continue
			}
			dx := math.Min(p.X-bounds.MinX, bounds.MaxX-p.X)
			dy := math.Min(p.Y-bounds.MinY, bounds.MaxY-p.Y)
			row[i] = math.Max(axisWeight(dx, r), axisWeight(dy, r))
		}
		weights[ri] = row
	}
	return weights
}

// axisWeight is the reciprocal of the in-window fraction of a disk of radius r
// whose centre sits d from a straight boundary.
func axisWeight(d, r float64) float64 {
	if d >= r {
		return 1
	}
	if d < 0 {
		d = 0
	}
	inside := 1 - SegmentArea(d, r)/(math.Pi*r*r)
	return 1 / inside
}

// SegmentArea is the area of the circular segment cut from a disk of radius r
// by a chord at distance d from the centre.
func SegmentArea(d, r float64) float64 {
	if d >= r {
		return 0
	}
	return r*r*math.Acos(d/r) - d*math.Sqrt(r*r-d*d)
}
