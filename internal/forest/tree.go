package forest

import (
	"math/rand/v2"
	"sort"

	"github.com/TobiSchelling/ReviewLens/internal/vectorize"
)

const leaf = -1

// Node is one node of a fitted tree, stored flat. Leaves have Feature == -1
// and carry the class distribution of the training samples that reached them.
type Node struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Value     []float64 `json:"v,omitempty"`
}

// Tree is a CART classification tree grown with Gini impurity.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// predict walks x down to a leaf and returns its class distribution.
func (t *Tree) predict(x vectorize.FeatureVector) []float64 {
	i := 0
	for t.Nodes[i].Feature != leaf {
		n := t.Nodes[i]
		if x.At(n.Feature) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// entry is one non-zero coordinate of a sample at a node.
type entry struct {
	value float64
	class int
}

type builder struct {
	x        []vectorize.FeatureVector
	y        []int
	nClasses int
	params   Params
	mtry     int
	rng      *rand.Rand
	tree     *Tree
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
}

func (b *builder) grow(samples []int, depth int) int {
	counts := b.classCounts(samples)
	id := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: leaf})

	n := len(samples)
	stop := n < b.params.MinSamplesSplit ||
		n < 2*b.params.MinSamplesLeaf ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		isPure(counts)
	if !stop {
		if s, ok := b.bestSplit(samples, counts); ok {
			left, right := partition(samples, b.x, s)
			b.tree.Nodes[id].Feature = s.feature
			b.tree.Nodes[id].Threshold = s.threshold
			l := b.grow(left, depth+1)
			r := b.grow(right, depth+1)
			b.tree.Nodes[id].Left = l
			b.tree.Nodes[id].Right = r
			return id
		}
	}

	value := make([]float64, b.nClasses)
	for c, k := range counts {
		value[c] = float64(k) / float64(n)
	}
	b.tree.Nodes[id].Value = value
	return id
}

// bestSplit looks at features that are non-zero for at least one sample at
// the node, in a random order, until mtry non-constant features have been
// evaluated.
func (b *builder) bestSplit(samples []int, counts []int) (split, bool) {
	buckets := make(map[int][]entry)
	for _, s := range samples {
		x := b.x[s]
		for k, j := range x.Indices {
			buckets[j] = append(buckets[j], entry{value: x.Values[k], class: b.y[s]})
		}
	}
	features := make([]int, 0, len(buckets))
	for j := range buckets {
		features = append(features, j)
	}
	sort.Ints(features)

	best := split{impurity: 2}
	found := false
	visited := 0
	for i := 0; i < len(features) && visited < b.mtry; i++ {
		k := i + b.rng.IntN(len(features)-i)
		features[i], features[k] = features[k], features[i]
		j := features[i]

		threshold, impurity, ok, constant := b.scan(buckets[j], counts, len(samples))
		if constant {
			continue
		}
		visited++
		if ok && impurity < best.impurity {
			best = split{feature: j, threshold: threshold, impurity: impurity}
			found = true
		}
	}
	return best, found
}

// scan finds the best threshold on one feature. Samples without the feature
// sit at value zero.
func (b *builder) scan(entries []entry, counts []int, n int) (threshold, impurity float64, ok, constant bool) {
	sort.Slice(entries, func(a, c int) bool { return entries[a].value < entries[c].value })

	zeroCounts := make([]int, b.nClasses)
	copy(zeroCounts, counts)
	for _, e := range entries {
		zeroCounts[e.class]--
	}
	zeros := n - len(entries)

	type group struct {
		value  float64
		counts []int
		size   int
	}
	var groups []group
	zeroPlaced := zeros == 0
	add := func(v float64, class int, c []int, size int) {
		if len(groups) > 0 && groups[len(groups)-1].value == v {
			g := &groups[len(groups)-1]
			if c != nil {
				for i := range c {
					g.counts[i] += c[i]
				}
			} else {
				g.counts[class]++
			}
			g.size += size
			return
		}
		g := group{value: v, counts: make([]int, b.nClasses), size: size}
		if c != nil {
			copy(g.counts, c)
		} else {
			g.counts[class]++
		}
		groups = append(groups, g)
	}
	for _, e := range entries {
		if !zeroPlaced && e.value >= 0 {
			add(0, 0, zeroCounts, zeros)
			zeroPlaced = true
		}
		add(e.value, e.class, nil, 1)
	}
	if !zeroPlaced {
		add(0, 0, zeroCounts, zeros)
	}
	if len(groups) < 2 {
		return 0, 0, false, true
	}

	left := make([]int, b.nClasses)
	leftN := 0
	impurity = 2
	for g := 0; g < len(groups)-1; g++ {
		for c := range left {
			left[c] += groups[g].counts[c]
		}
		leftN += groups[g].size
		rightN := n - leftN
		if leftN < b.params.MinSamplesLeaf || rightN < b.params.MinSamplesLeaf {
			continue
		}
		right := make([]int, b.nClasses)
		for c := range right {
			right[c] = counts[c] - left[c]
		}
		imp := (float64(leftN)*gini(left, leftN) + float64(rightN)*gini(right, rightN)) / float64(n)
		if imp < impurity {
			impurity = imp
			threshold = groups[g].value/2 + groups[g+1].value/2
			if threshold >= groups[g+1].value {
				threshold = groups[g].value
			}
			ok = true
		}
	}
	return threshold, impurity, ok, false
}

func (b *builder) classCounts(samples []int) []int {
	counts := make([]int, b.nClasses)
	for _, s := range samples {
		counts[b.y[s]]++
	}
	return counts
}

func partition(samples []int, x []vectorize.FeatureVector, s split) (left, right []int) {
	for _, i := range samples {
		if x[i].At(s.feature) <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, c := range counts {
		p := float64(c) / float64(n)
		g -= p * p
	}
	return g
}

func isPure(counts []int) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
