package estimate

import (
	"errors"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Forest is a bagged ensemble of regression trees.
type Forest struct {
	Trees      int
	Seed       int64
	MaxWorkers int // 0 => GOMAXPROCS

	trees []*RegressionTree
}

// NewForest returns a forest of n trees seeded from seed.
func NewForest(n int, seed int64) *Forest {
	return &Forest{Trees: n, Seed: seed}
}

// Fit grows every tree on its own bootstrap sample of X. Tree i draws its
// sample from a source seeded Seed+i, so the fitted forest does not depend on
// how the goroutines are scheduled.
func (f *Forest) Fit(X [][]float64, y []float64) error {
	if f.Trees < 1 {
		return errors.New("forest: Trees must be >= 1")
	}
	n := len(X)
	if n == 0 {
		return errors.New("forest: empty X")
	}
	workers := f.MaxWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	trees := make([]*RegressionTree, f.Trees)
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			rnd := rand.New(rand.NewSource(f.Seed + int64(i)))
			idx := make([]int, n)
			for k := range idx {
				idx[k] = rnd.Intn(n)
			}
			t := NewRegressionTree()
			if err := t.Fit(X, y, idx); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	f.trees = trees
	return nil
}

// Predict averages the tree predictions for every row of X.
func (f *Forest) Predict(X [][]float64) ([]float64, error) {
	if len(f.trees) == 0 {
		return nil, errors.New("forest: model not fitted")
	}
	out := make([]float64, len(X))
	for _, t := range f.trees {
		for i, v := range t.Predict(X) {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(f.trees))
	}
	return out, nil
}
