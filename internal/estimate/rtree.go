package estimate

import (
	"errors"
	"sort"
)

// RegressionTree is a CART regression tree splitting on variance reduction.
type RegressionTree struct {
	MaxDepth        int // 0 => unbounded
	MinSamplesSplit int
	MinSamplesLeaf  int

	root *rtNode
}

type rtNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64 // x <= threshold => left
	left      *rtNode
	right     *rtNode
}

// NewRegressionTree returns a fully grown tree configuration (min split 2,
// min leaf 1, no depth limit).
func NewRegressionTree() *RegressionTree {
	return &RegressionTree{MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// Fit trains the tree on the rows of X selected by idx. A nil idx selects
// every row; idx may repeat rows (bootstrap samples).
func (t *RegressionTree) Fit(X [][]float64, y []float64, idx []int) error {
	if len(X) == 0 {
		return errors.New("rtree: empty X")
	}
	if len(y) != len(X) {
		return errors.New("rtree: X and y length mismatch")
	}
	p := len(X[0])
	for i := range X {
		if len(X[i]) != p {
			return errors.New("rtree: inconsistent number of features in X rows")
		}
	}
	if idx == nil {
		idx = make([]int, len(X))
		for i := range idx {
			idx[i] = i
		}
	}
	if len(idx) == 0 {
		return errors.New("rtree: empty sample")
	}
	work := append([]int(nil), idx...)
	t.root = t.build(X, y, work, 0, p)
	return nil
}

func (t *RegressionTree) build(X [][]float64, y []float64, idx []int, depth, p int) *rtNode {
	var sum float64
	constant := true
	for k, i := range idx {
		sum += y[i]
		if k > 0 && y[i] != y[idx[0]] {
			constant = false
		}
	}
	n := len(idx)
	mean := sum / float64(n)
	minSplit := t.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	minLeaf := t.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}
	if constant || n < minSplit || n < 2*minLeaf || (t.MaxDepth > 0 && depth >= t.MaxDepth) {
		return &rtNode{leaf: true, value: mean}
	}

	bestFeature := -1
	var bestScore, bestThr float64
	for j := 0; j < p; j++ {
		sort.SliceStable(idx, func(a, b int) bool { return X[idx[a]][j] < X[idx[b]][j] })
		var left float64
		for k := 1; k < n; k++ {
			left += y[idx[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := X[idx[k-1]][j], X[idx[k]][j]
			if lo == hi {
				continue
			}
			right := sum - left
			// maximizing this term minimizes the summed squared error of the children
			score := left*left/float64(k) + right*right/float64(n-k)
			if bestFeature < 0 || score > bestScore {
				bestFeature, bestScore = j, score
				bestThr = lo + (hi-lo)/2
			}
		}
	}
	if bestFeature < 0 {
		return &rtNode{leaf: true, value: mean}
	}

	var leftIdx, rightIdx []int
	for _, i := range idx {
		if X[i][bestFeature] <= bestThr {
			leftIdx = append(leftIdx, i)
		} else {
			rightIdx = append(rightIdx, i)
		}
	}
	return &rtNode{
		feature:   bestFeature,
		threshold: bestThr,
		left:      t.build(X, y, leftIdx, depth+1, p),
		right:     t.build(X, y, rightIdx, depth+1, p),
	}
}

// Predict returns the leaf mean for every row of X.
func (t *RegressionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = t.predictOne(x)
	}
	return out
}

func (t *RegressionTree) predictOne(x []float64) float64 {
	n := t.root
	for n != nil && !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	if n == nil {
		return 0
	}
	return n.value
}
