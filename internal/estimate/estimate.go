// Package estimate attaches a synthetic Company_Size feature and a
// Predicted_Sales estimate to annotated CRM records.
//
// The target the forest learns is itself random, so the estimate is a
// demonstration value and carries no business meaning.
package estimate

import (
	"fmt"
	"math/rand"
	"strconv"

	"github.com/KaramelBytes/crmlens/internal/table"
)

// Output columns.
const (
	ColCompanySize = "Company_Size"
	ColPredicted   = "Predicted_Sales"
)

// Source supplies the random draws for the synthetic feature and target.
// *rand.Rand satisfies it.
type Source interface {
	Intn(n int) int
}

// NewSource returns the default seeded source.
func NewSource(seed int64) Source {
	return rand.New(rand.NewSource(seed))
}

// Options configures the estimator. Ranges are half-open: [Min, Max).
type Options struct {
	Trees      int
	Seed       int64
	SizeMin    int
	SizeMax    int
	TargetMin  int
	TargetMax  int
	MaxWorkers int
}

// DefaultOptions returns 100 trees, seed 42, sizes in [1, 1000) and targets
// in [1000, 10000).
func DefaultOptions() Options {
	return Options{
		Trees:     100,
		Seed:      42,
		SizeMin:   1,
		SizeMax:   1000,
		TargetMin: 1000,
		TargetMax: 10000,
	}
}

// EmptyTableError is returned when there are no records to estimate.
type EmptyTableError struct{}

func (e *EmptyTableError) Error() string { return "no records to estimate" }

// Estimation is the full outcome of an estimation pass.
type Estimation struct {
	Table       *table.Table
	Sizes       []int
	Targets     []int
	Predictions []float64
}

// Estimate returns annotated with Company_Size and Predicted_Sales appended.
func Estimate(annotated *table.Table, opt Options, src Source) (*table.Table, error) {
	e, err := EstimateWithDetails(annotated, opt, src)
	if err != nil {
		return nil, err
	}
	return e.Table, nil
}

// EstimateWithDetails is Estimate that also returns the synthetic draws and
// raw predictions.
func EstimateWithDetails(annotated *table.Table, opt Options, src Source) (*Estimation, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	n := annotated.Len()
	if n == 0 {
		return nil, &EmptyTableError{}
	}
	if src == nil {
		src = NewSource(opt.Seed)
	}
	sizes, targets := Synthesize(n, opt, src)

	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{float64(sizes[i])}
		y[i] = float64(targets[i])
	}
	forest := &Forest{Trees: opt.Trees, Seed: opt.Seed, MaxWorkers: opt.MaxWorkers}
	if err := forest.Fit(X, y); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}
	// in-sample on purpose: there is no held-out set
	pred, err := forest.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	sizeCol := make([]string, n)
	predCol := make([]string, n)
	for i := range sizes {
		sizeCol[i] = strconv.Itoa(sizes[i])
		predCol[i] = strconv.FormatFloat(pred[i], 'f', 2, 64)
	}
	out, err := annotated.WithColumn(ColCompanySize, table.Int, sizeCol)
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", ColCompanySize, err)
	}
	out, err = out.WithColumn(ColPredicted, table.Float, predCol)
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", ColPredicted, err)
	}
	return &Estimation{Table: out, Sizes: sizes, Targets: targets, Predictions: pred}, nil
}

// Synthesize draws n sizes and then n targets from src.
func Synthesize(n int, opt Options, src Source) (sizes, targets []int) {
	sizes = make([]int, n)
	for i := range sizes {
		sizes[i] = opt.SizeMin + src.Intn(opt.SizeMax-opt.SizeMin)
	}
	targets = make([]int, n)
	for i := range targets {
		targets[i] = opt.TargetMin + src.Intn(opt.TargetMax-opt.TargetMin)
	}
	return sizes, targets
}

func (o Options) validate() error {
	if o.Trees < 1 {
		return fmt.Errorf("trees must be >= 1, got %d", o.Trees)
	}
	if o.SizeMax <= o.SizeMin {
		return fmt.Errorf("size range [%d, %d) is empty", o.SizeMin, o.SizeMax)
	}
	if o.TargetMax <= o.TargetMin {
		return fmt.Errorf("target range [%d, %d) is empty", o.TargetMin, o.TargetMax)
	}
	if o.MaxWorkers < 0 {
		return fmt.Errorf("max workers must be >= 0, got %d", o.MaxWorkers)
	}
	return nil
}
