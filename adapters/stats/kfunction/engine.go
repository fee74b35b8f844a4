// Package kfunction computes the counting, intensity and distance-weighted
// intensity K-functions between two phenotype point sets.
package kfunction

import (
	"fmt"
	"math"

	"gospatial/domain/core"
	"gospatial/domain/spatial"
)

// Engine evaluates K-function statistics for a pair of point sets
type Engine struct {
	opts spatial.EngineOptions
}

// NewEngine creates an engine; an empty Index defaults to the dense matrix
func NewEngine(opts spatial.EngineOptions) *Engine {
	if opts.Index == "" {
		opts.Index = spatial.IndexDense
	}
	return &Engine{opts: opts}
}

// Options returns the engine configuration
func (e *Engine) Options() spatial.EngineOptions {
	return e.opts
}

// Count returns the number of p2 points within each radius of every p1 point
func (e *Engine) Count(p1, p2 spatial.PointSet, radii spatial.RadiusSet, list bool) (spatial.Array, error) {
	return e.shaped(spatial.KindCount, p1, p2, radii, nil, list)
}

// Intensity returns the summed p2 intensity within each radius of every p1 point
func (e *Engine) Intensity(p1, p2 spatial.PointSet, radii spatial.RadiusSet, intensity spatial.IntensityVector, list bool) (spatial.Array, error) {
	return e.shaped(spatial.KindIntensity, p1, p2, radii, intensity, list)
}

// IntensityDistance returns the p2 intensity within each radius weighted by distance^-3
func (e *Engine) IntensityDistance(p1, p2 spatial.PointSet, radii spatial.RadiusSet, intensity spatial.IntensityVector, list bool) (spatial.Array, error) {
	return e.shaped(spatial.KindIntensityDistance, p1, p2, radii, intensity, list)
}

func (e *Engine) shaped(kind spatial.StatisticKind, p1, p2 spatial.PointSet, radii spatial.RadiusSet, intensity spatial.IntensityVector, list bool) (spatial.Array, error) {
	outs, err := e.Compute([]spatial.StatisticKind{kind}, p1, p2, radii, intensity)
	if err != nil {
		return spatial.Array{}, err
	}
	return outs[kind].Shaped(list), nil
}

// Compute evaluates every requested kind at every radius. Pairwise distances
// are computed once and shared by all kinds.
func (e *Engine) Compute(kinds []spatial.StatisticKind, p1, p2 spatial.PointSet, radii spatial.RadiusSet, intensity spatial.IntensityVector) (map[spatial.StatisticKind]*spatial.Output, error) {
	if err := radii.Validate(); err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("no statistic kinds requested")
	}
	for _, kind := range kinds {
		if !kind.RequiresIntensity() {
			continue
		}
		if len(intensity) != len(p2) {
			return nil, fmt.Errorf("%w: %d points, %d intensities", core.ErrLengthMismatch, len(p2), len(intensity))
		}
	}

	nb := e.neighbors(p1, p2, radii.Max())

	var weights [][]float64
	if e.opts.EdgeCorrection {
		weights = EdgeWeights(p1, radii)
	}

	outs := make(map[spatial.StatisticKind]*spatial.Output, len(kinds))
	for _, kind := range kinds {
		contrib, err := e.contribution(kind, intensity)
		if err != nil {
			return nil, err
		}
		values := make([][]float64, len(radii))
		for ri, r := range radii {
			row := make([]float64, len(p1))
			for i := range p1 {
				sum := 0.0
				for _, n := range nb[i] {
					if n.dist <= r {
						sum += contrib(n)
					}
				}
				if weights != nil {
					sum *= weights[ri][i]
				}
				row[i] = sum
			}
			values[ri] = row
		}
		outs[kind] = &spatial.Output{Kind: kind, Radii: append(spatial.RadiusSet(nil), radii...), Values: values}
	}
	return outs, nil
}

// contribution returns the per-pair term of a kind
func (e *Engine) contribution(kind spatial.StatisticKind, intensity spatial.IntensityVector) (func(neighbor) float64, error) {
	switch kind {
	case spatial.KindCount:
		return func(neighbor) float64 { return 1 }, nil
	case spatial.KindIntensity:
		return func(n neighbor) float64 { return intensity[n.index] }, nil
	case spatial.KindIntensityDistance:
		floor := e.opts.DistanceFloor
		return func(n neighbor) float64 {
			d := n.dist
			if d < floor {
				d = floor
			}
			if d == 0 {
				return 0
			}
			return intensity[n.index] / (d * d * d)
		}, nil
	default:
		return nil, fmt.Errorf("unknown statistic kind %q", kind)
	}
}

// neighbor is one measured point within the largest radius of a reference point
type neighbor struct {
	index int
	dist  float64
}

func (e *Engine) neighbors(p1, p2 spatial.PointSet, maxRadius float64) [][]neighbor {
	if len(p1) == 0 || len(p2) == 0 {
		return make([][]neighbor, len(p1))
	}
	switch e.opts.Index {
	case spatial.IndexKDTree:
		return kdNeighbors(p1, p2, maxRadius)
	default:
		return denseNeighbors(DistanceMatrix(p1, p2), maxRadius)
	}
}

func euclid(a, b spatial.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
