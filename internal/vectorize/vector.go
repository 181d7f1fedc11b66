package vectorize

import "sort"

// FeatureVector is a fixed-length vector stored sparsely. Indices are strictly
// increasing and every index is below Dim.
type FeatureVector struct {
	Dim     int
	Indices []int
	Values  []float64
}

// Len returns the full dimension of the vector, not the number of non-zeros.
func (v FeatureVector) Len() int {
	return v.Dim
}

// NNZ returns the number of stored non-zero coordinates.
func (v FeatureVector) NNZ() int {
	return len(v.Indices)
}

// At returns coordinate j, which is zero when not stored.
func (v FeatureVector) At(j int) float64 {
	k := sort.SearchInts(v.Indices, j)
	if k < len(v.Indices) && v.Indices[k] == j {
		return v.Values[k]
	}
	return 0
}

// Dense materialises the vector.
func (v FeatureVector) Dense() []float64 {
	out := make([]float64, v.Dim)
	for k, j := range v.Indices {
		out[j] = v.Values[k]
	}
	return out
}
