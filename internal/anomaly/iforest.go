package anomaly

import (
	"errors"
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

// IsolationForest is an unsupervised outlier model: points that random
// axis-aligned splits separate quickly get scores close to 1.
type IsolationForest struct {
	Trees      int
	MaxSamples int
	Seed       int64

	psi   int
	roots []*iNode
}

type iNode struct {
	leaf      bool
	size      int
	feature   int
	threshold float64 // x < threshold => left
	left      *iNode
	right     *iNode
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

func WithTrees(n int) Option { return func(f *IsolationForest) { f.Trees = n } }
func WithMaxSamples(n int) Option { return func(f *IsolationForest) { f.MaxSamples = n } }
func WithSeed(seed int64) Option { return func(f *IsolationForest) { f.Seed = seed } }

// NewIsolationForest returns a forest with 100 trees, 256-row subsamples and
// seed 42.
func NewIsolationForest(opts ...Option) *IsolationForest {
	f := &IsolationForest{Trees: 100, MaxSamples: 256, Seed: 42}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fit grows the trees on X (n rows x p features). Trees are grown
// sequentially from one seeded source so the fit is reproducible.
func (f *IsolationForest) Fit(X [][]float64) error {
	n := len(X)
	if n < 2 {
		return errors.New("iforest: need at least 2 samples")
	}
	p := len(X[0])
	if p == 0 {
		return errors.New("iforest: no features")
	}
	for i := range X {
		if len(X[i]) != p {
			return errors.New("iforest: inconsistent number of features in X rows")
		}
	}
	if f.Trees < 1 {
		return errors.New("iforest: Trees must be >= 1")
	}
	f.psi = f.MaxSamples
	if f.psi <= 0 || f.psi > n {
		f.psi = n
	}
	limit := int(math.Ceil(math.Log2(float64(f.psi))))
	rnd := rand.New(rand.NewSource(f.Seed))

	f.roots = make([]*iNode, f.Trees)
	for t := range f.roots {
		var idx []int
		if f.psi < n {
			idx = rnd.Perm(n)[:f.psi]
		} else {
			idx = make([]int, n)
			for i := range idx {
				idx[i] = i
			}
		}
		f.roots[t] = grow(X, idx, 0, limit, p, rnd)
	}
	return nil
}

func grow(X [][]float64, idx []int, depth, limit, p int, rnd *rand.Rand) *iNode {
	if depth >= limit || len(idx) <= 1 {
		return &iNode{leaf: true, size: len(idx)}
	}
	// only features that still vary can split this node
	var cand []int
	lo := make([]float64, p)
	hi := make([]float64, p)
	for j := 0; j < p; j++ {
		lo[j], hi[j] = math.Inf(1), math.Inf(-1)
		for _, i := range idx {
			v := X[i][j]
			if v < lo[j] {
				lo[j] = v
			}
			if v > hi[j] {
				hi[j] = v
			}
		}
		if lo[j] < hi[j] {
			cand = append(cand, j)
		}
	}
	if len(cand) == 0 {
		return &iNode{leaf: true, size: len(idx)}
	}
	q := cand[rnd.Intn(len(cand))]
	thr := lo[q] + rnd.Float64()*(hi[q]-lo[q])
	if thr <= lo[q] {
		thr = (lo[q] + hi[q]) / 2
	}
	var left, right []int
	for _, i := range idx {
		if X[i][q] < thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return &iNode{
		feature:   q,
		threshold: thr,
		left:      grow(X, left, depth+1, limit, p, rnd),
		right:     grow(X, right, depth+1, limit, p, rnd),
	}
}

// Score returns the anomaly score in (0, 1] for every row of X.
func (f *IsolationForest) Score(X [][]float64) ([]float64, error) {
	if len(f.roots) == 0 {
		return nil, errors.New("iforest: model not fitted")
	}
	norm := avgPathLength(f.psi)
	out := make([]float64, len(X))
	for i, x := range X {
		var sum float64
		for _, root := range f.roots {
			sum += pathLength(x, root, 0)
		}
		mean := sum / float64(len(f.roots))
		out[i] = math.Pow(2, -mean/norm)
	}
	return out, nil
}

func pathLength(x []float64, n *iNode, depth int) float64 {
	for !n.leaf {
		if x[n.feature] < n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + avgPathLength(n.size)
}

// avgPathLength is the expected path length of an unsuccessful search in a
// binary search tree of n points.
func avgPathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}
