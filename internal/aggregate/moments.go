// Package aggregate pools per-field statistic vectors into groups and
// reduces each pool to a moment summary.
package aggregate

import (
	"fmt"
	"math"

	"gospatial/domain/core"
	"gospatial/domain/moments"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// ComputeMoments returns the population mean, variance, skew and excess
// kurtosis of values. An empty pool returns core.ErrEmptyPool. A constant pool
// has no defined shape moments: skew and kurtosis are 0 and Degenerate is set.
func ComputeMoments(values []float64) (moments.Summary, error) {
	if len(values) == 0 {
		return moments.Summary{}, core.ErrEmptyPool
	}
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return moments.Summary{}, fmt.Errorf("pool contains non-finite value %v", v)
		}
	}

	data := stats.Float64Data(values)
	mean, err := stats.Mean(data)
	if err != nil {
		return moments.Summary{}, fmt.Errorf("mean: %w", err)
	}
	variance, err := stats.PopulationVariance(data)
	if err != nil {
		return moments.Summary{}, fmt.Errorf("variance: %w", err)
	}

	s := moments.Summary{Mean: mean, Variance: variance, N: len(values)}
	if constant(values) {
		s.Variance = 0
		s.Degenerate = true
		return s, nil
	}

	m2 := stat.Moment(2, values, nil)
	m3 := stat.Moment(3, values, nil)
	m4 := stat.Moment(4, values, nil)
	s.Skew = m3 / math.Pow(m2, 1.5)
	s.Kurtosis = m4/(m2*m2) - 3
	return s, nil
}

func constant(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return false
		}
	}
	return true
}

// CombineWeighted averages moment vectors weighted by their N:
// combined = sum(moment_f * N_f) / sum(N_f). This is not the moment summary of
// the pooled data; it only approximates it when the parts are similar.
func CombineWeighted(parts []moments.Summary) (moments.Summary, error) {
	var out moments.Summary
	total := 0
	degenerate := true
	for _, p := range parts {
		if p.N <= 0 {
			continue
		}
		w := float64(p.N)
		out.Mean += p.Mean * w
		out.Variance += p.Variance * w
		out.Skew += p.Skew * w
		out.Kurtosis += p.Kurtosis * w
		total += p.N
		degenerate = degenerate && p.Degenerate
	}
	if total == 0 {
		return moments.Summary{}, core.ErrEmptyPool
	}
	n := float64(total)
	out.Mean /= n
	out.Variance /= n
	out.Skew /= n
	out.Kurtosis /= n
	out.N = total
	out.Degenerate = degenerate
	return out, nil
}
