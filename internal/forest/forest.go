// Package forest is a random forest classifier over sparse TF-IDF vectors.
// Fitting is deterministic for a given Params.Seed; a fitted Forest is
// read-only and safe for concurrent prediction.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

// ModelType is recorded in artifact metadata.
const ModelType = "RandomForestClassifier"

// Params are the forest hyperparameters. MaxDepth 0 grows trees until leaves
// are pure or too small to split.
type Params struct {
	NEstimators     int    `json:"n_estimators"`
	MaxDepth        int    `json:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf"`
	MaxFeatures     string `json:"max_features"`
	Bootstrap       bool   `json:"bootstrap"`
	Seed            uint64 `json:"seed"`
}

// DefaultParams returns single-configuration defaults.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     "sqrt",
		Bootstrap:       true,
		Seed:            42,
	}
}

func (p Params) normalized() Params {
	if p.NEstimators <= 0 {
		p.NEstimators = 100
	}
	if p.MinSamplesSplit < 2 {
		p.MinSamplesSplit = 2
	}
	if p.MinSamplesLeaf < 1 {
		p.MinSamplesLeaf = 1
	}
	if p.MaxFeatures == "" {
		p.MaxFeatures = "sqrt"
	}
	return p
}

func (p Params) mtry(nFeatures int) int {
	var m int
	switch p.MaxFeatures {
	case "log2":
		m = int(math.Log2(float64(nFeatures)))
	case "all":
		m = nFeatures
	default:
		m = int(math.Sqrt(float64(nFeatures)))
	}
	if m < 1 {
		m = 1
	}
	return m
}

// Forest is a fitted random forest.
type Forest struct {
	Classes   []string `json:"classes"`
	Params    Params   `json:"params"`
	NFeatures int      `json:"n_features"`
	Trees     []Tree   `json:"trees"`
}

// Fit grows p.NEstimators trees. y holds indices into classes.
func Fit(x []vectorize.FeatureVector, y []int, classes []string, p Params) (*Forest, error) {
	if len(x) == 0 {
		return nil, errors.New("no training samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("got %d samples but %d labels", len(x), len(y))
	}
	for _, c := range y {
		if c < 0 || c >= len(classes) {
			return nil, fmt.Errorf("label index %d outside %d classes", c, len(classes))
		}
	}
	p = p.normalized()
	nFeatures := x[0].Len()

	f := &Forest{
		Classes:   append([]string(nil), classes...),
		Params:    p,
		NFeatures: nFeatures,
		Trees:     make([]Tree, p.NEstimators),
	}
	for t := range f.Trees {
		rng := rand.New(rand.NewPCG(p.Seed, uint64(t)))
		samples := make([]int, len(x))
		if p.Bootstrap {
			for i := range samples {
				samples[i] = rng.IntN(len(x))
			}
		} else {
			for i := range samples {
				samples[i] = i
			}
		}
		b := &builder{
			x:        x,
			y:        y,
			nClasses: len(classes),
			params:   p,
			mtry:     p.mtry(nFeatures),
			rng:      rng,
			tree:     &f.Trees[t],
		}
		b.grow(samples, 0)
	}
	return f, nil
}

// PredictProba averages the leaf class distributions of all trees. The
// result sums to one and follows the order of Classes.
func (f *Forest) PredictProba(x vectorize.FeatureVector) []float64 {
	proba := make([]float64, len(f.Classes))
	for i := range f.Trees {
		for c, p := range f.Trees[i].predict(x) {
			proba[c] += p
		}
	}
	n := float64(len(f.Trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba
}

// Predict returns the index of the most probable class; ties go to the
// lower index.
func (f *Forest) Predict(x vectorize.FeatureVector) int {
	return argmax(f.PredictProba(x))
}

// ClassNames returns the class labels in probability order.
func (f *Forest) ClassNames() []string {
	return f.Classes
}

// Score is the accuracy of the forest on a labeled set.
func (f *Forest) Score(x []vectorize.FeatureVector, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	correct := 0
	for i := range x {
		if f.Predict(x[i]) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

// Validate checks the structure of a forest restored from storage.
func (f *Forest) Validate() error {
	if len(f.Classes) < 2 {
		return fmt.Errorf("forest has %d classes", len(f.Classes))
	}
	if len(f.Trees) == 0 {
		return errors.New("forest has no trees")
	}
	for t, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d is empty", t)
		}
		for i, n := range tree.Nodes {
			if n.Feature == leaf {
				if len(n.Value) != len(f.Classes) {
					return fmt.Errorf("tree %d node %d: leaf has %d values for %d classes", t, i, len(n.Value), len(f.Classes))
				}
				continue
			}
			if n.Left <= i || n.Right <= i || n.Left >= len(tree.Nodes) || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", t, i)
			}
		}
	}
	return nil
}

func argmax(xs []float64) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
