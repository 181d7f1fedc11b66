package train

import "github.com/TobiSchelling/ReviewLens/internal/forest"

// Grid is the hyperparameter space searched during training. A MaxDepth of 0
// means unlimited depth.
type Grid struct {
	NEstimators     []int `yaml:"n_estimators" json:"n_estimators" validate:"min=1,dive,gt=0"`
	MaxDepth        []int `yaml:"max_depth" json:"max_depth" validate:"min=1,dive,gte=0"`
	MinSamplesSplit []int `yaml:"min_samples_split" json:"min_samples_split" validate:"min=1,dive,gte=2"`
	MinSamplesLeaf  []int `yaml:"min_samples_leaf" json:"min_samples_leaf" validate:"min=1,dive,gte=1"`
}

// DefaultGrid is the search space the production model is tuned over.
func DefaultGrid() Grid {
	return Grid{
		NEstimators:     []int{100, 200},
		MaxDepth:        []int{10, 20, 0},
		MinSamplesSplit: []int{2, 5},
		MinSamplesLeaf:  []int{1, 2},
	}
}

// Size is the number of configurations in the grid.
func (g Grid) Size() int {
	return len(g.NEstimators) * len(g.MaxDepth) * len(g.MinSamplesSplit) * len(g.MinSamplesLeaf)
}

// Expand enumerates every configuration in a fixed order, varying the last
// dimension fastest. base supplies the remaining forest parameters.
func (g Grid) Expand(base forest.Params) []forest.Params {
	out := make([]forest.Params, 0, g.Size())
	for _, n := range g.NEstimators {
		for _, d := range g.MaxDepth {
			for _, s := range g.MinSamplesSplit {
				for _, l := range g.MinSamplesLeaf {
					p := base
					p.NEstimators = n
					p.MaxDepth = d
					p.MinSamplesSplit = s
					p.MinSamplesLeaf = l
					out = append(out, p)
				}
			}
		}
	}
	return out
}
