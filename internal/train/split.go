package train

import (
	"math"
	"math/rand/v2"
)

// SplitIndices returns a reproducible train/test partition of n samples. The
// test share is rounded up, so any non-zero testSize holds out at least one
// sample when n > 1.
func SplitIndices(n int, testSize float64, seed uint64) (trainIdx, testIdx []int) {
	perm := rand.New(rand.NewPCG(seed, 0)).Perm(n)
	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest >= n {
		nTest = n - 1
	}
	if nTest < 0 {
		nTest = 0
	}
	return perm[nTest:], perm[:nTest]
}

// stratifiedFolds assigns each sample to one of k folds, dealing the members
// of every class round-robin in their original order.
func stratifiedFolds(y []int, nClasses, k int) []int {
	fold := make([]int, len(y))
	seen := make([]int, nClasses)
	for i, c := range y {
		fold[i] = seen[c] % k
		seen[c]++
	}
	return fold
}
