package spatial

import "fmt"

// Array is a small row-major n-dimensional result with an explicit shape.
// A zero-length Shape denotes a scalar held in Data[0].
type Array struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// IsScalar reports whether the array is zero-dimensional
func (a Array) IsScalar() bool { return len(a.Shape) == 0 }

// Scalar returns the single value of a zero-dimensional array
func (a Array) Scalar() (float64, error) {
	if !a.IsScalar() || len(a.Data) != 1 {
		return 0, fmt.Errorf("array of shape %v is not a scalar", a.Shape)
	}
	return a.Data[0], nil
}

// Row returns row i of a two-dimensional array
func (a Array) Row(i int) ([]float64, error) {
	if len(a.Shape) != 2 {
		return nil, fmt.Errorf("array of shape %v has no rows", a.Shape)
	}
	if i < 0 || i >= a.Shape[0] {
		return nil, fmt.Errorf("row %d out of range for shape %v", i, a.Shape)
	}
	cols := a.Shape[1]
	return a.Data[i*cols : (i+1)*cols], nil
}

// Output is the raw engine result: one row per radius, one column per reference point
type Output struct {
	Kind   StatisticKind `json:"kind"`
	Radii  RadiusSet     `json:"radii"`
	Values [][]float64   `json:"values"`
}

// ReferenceCount returns N1
func (o *Output) ReferenceCount() int {
	if len(o.Values) == 0 {
		return 0
	}
	return len(o.Values[0])
}

// Means returns the mean over reference points for each radius.
// An empty reference set yields zeros.
func (o *Output) Means() []float64 {
	means := make([]float64, len(o.Values))
	for i, row := range o.Values {
		if len(row) == 0 {
			continue
		}
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		means[i] = sum / float64(len(row))
	}
	return means
}

// Shaped applies the list/mean shape policy:
//
//	|R| == 1, list      -> (N1,)
//	|R| == 1, not list  -> ()
//	|R| == k, list      -> (k, N1)
//	|R| == k, not list  -> (k,)
func (o *Output) Shaped(list bool) Array {
	k := len(o.Values)
	n := o.ReferenceCount()
	if list {
		if k == 1 {
			return Array{Shape: []int{n}, Data: append([]float64(nil), o.Values[0]...)}
		}
		data := make([]float64, 0, k*n)
		for _, row := range o.Values {
			data = append(data, row...)
		}
		return Array{Shape: []int{k, n}, Data: data}
	}
	means := o.Means()
	if k == 1 {
		return Array{Shape: []int{}, Data: means}
	}
	return Array{Shape: []int{k}, Data: means}
}
