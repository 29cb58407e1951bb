package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// ColScore is the column written by Detect.
const ColScore = "Anomaly_Score"

// Labels written into ColScore.
const (
	LabelAnomalous = "-1"
	LabelNormal    = "1"
)

// Policy decides what happens to records without a usable phone feature.
type Policy string

const (
	// PolicyNormal labels unscorable records as normal.
	PolicyNormal Policy = "normal"
	// PolicyMissing leaves the label empty for unscorable records.
	PolicyMissing Policy = "missing"
	// PolicyError fails the detection when any record is unscorable.
	PolicyError Policy = "error"
)

// Options configures the detector.
type Options struct {
	// Contamination is the expected anomaly fraction, in (0, 0.5].
	Contamination float64
	Trees         int
	MaxSamples    int
	// MinSamples is the smallest number of scorable records accepted.
	MinSamples int
	Seed       int64
	Unscorable Policy
}

// DefaultOptions returns contamination 0.1, 100 trees and seed 42.
func DefaultOptions() Options {
	return Options{
		Contamination: 0.1,
		Trees:         100,
		MaxSamples:    256,
		MinSamples:    3,
		Seed:          42,
		Unscorable:    PolicyNormal,
	}
}

// InsufficientDataError reports too few scorable records to fit the model.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for anomaly detection: %d records with a usable phone, need at least %d", e.Have, e.Need)
}

// UnscorableError lists records (1-based) without a usable phone when the
// policy forbids them.
type UnscorableError struct {
	Rows []int
}

func (e *UnscorableError) Error() string {
	const show = 10
	parts := make([]string, 0, show)
	for i, r := range e.Rows {
		if i == show {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, fmt.Sprint(r))
	}
	return fmt.Sprintf("%d records have no usable phone (rows %s)", len(e.Rows), strings.Join(parts, ", "))
}

// Detection is the full outcome of a detection pass.
type Detection struct {
	Anomalous *table.Table
	Annotated *table.Table
	// Fitted is the number of records the model was fitted on.
	Fitted int
	// Unscorable holds 0-based positions of records excluded from the fit.
	Unscorable []int
	Threshold  float64
	// Scores holds one score per record; NaN for unscorable records.
	Scores []float64
}

// Detect labels every record of clean as anomalous or normal and returns the
// anomalous subset together with the annotated table.
func Detect(clean *table.Table, opt Options) (anomalous, annotated *table.Table, err error) {
	d, err := DetectWithDetails(clean, opt)
	if err != nil {
		return nil, nil, err
	}
	return d.Anomalous, d.Annotated, nil
}

// DetectWithDetails is Detect that also returns scores and fit bookkeeping.
func DetectWithDetails(clean *table.Table, opt Options) (*Detection, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	phones, err := clean.Column(normalize.ColPhone)
	if err != nil {
		return nil, &normalize.SchemaError{Missing: []string{normalize.ColPhone}}
	}

	var X [][]float64
	var fitted []int
	var unscorable []int
	for i, ph := range phones {
		n := normalize.DigitCount(ph)
		if n == 0 {
			unscorable = append(unscorable, i)
			continue
		}
		X = append(X, []float64{float64(n)})
		fitted = append(fitted, i)
	}
	if len(unscorable) > 0 && opt.Unscorable == PolicyError {
		rows := make([]int, len(unscorable))
		for i, r := range unscorable {
			rows[i] = r + 1
		}
		return nil, &UnscorableError{Rows: rows}
	}
	if len(X) < opt.MinSamples {
		return nil, &InsufficientDataError{Have: len(X), Need: opt.MinSamples}
	}

	forest := NewIsolationForest(WithTrees(opt.Trees), WithMaxSamples(opt.MaxSamples), WithSeed(opt.Seed))
	if err := forest.Fit(X); err != nil {
		return nil, fmt.Errorf("fit isolation forest: %w", err)
	}
	fs, err := forest.Score(X)
	if err != nil {
		return nil, fmt.Errorf("score isolation forest: %w", err)
	}
	thr := Threshold(fs, opt.Contamination)

	labels := make([]string, clean.Len())
	scores := make([]float64, clean.Len())
	for _, i := range unscorable {
		scores[i] = math.NaN()
		if opt.Unscorable == PolicyMissing {
			labels[i] = ""
		} else {
			labels[i] = LabelNormal
		}
	}
	for k, i := range fitted {
		scores[i] = fs[k]
		if fs[k] > thr {
			labels[i] = LabelAnomalous
		} else {
			labels[i] = LabelNormal
		}
	}

	annotated, err := clean.WithColumn(ColScore, table.Int, labels)
	if err != nil {
		return nil, fmt.Errorf("annotate: %w", err)
	}
	return &Detection{
		Anomalous:  annotated.Filter(func(i int) bool { return labels[i] == LabelAnomalous }),
		Annotated:  annotated,
		Fitted:     len(fitted),
		Unscorable: unscorable,
		Threshold:  thr,
		Scores:     scores,
	}, nil
}

// Threshold returns the score above which a record is anomalous: the
// (1 - contamination) quantile of scores. Ties at the threshold are normal,
// so a sample of identical points yields no anomalies.
func Threshold(scores []float64, contamination float64) float64 {
	cp := append([]float64(nil), scores...)
	sort.Float64s(cp)
	return quantile(cp, 1-contamination)
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo] + w*(sorted[hi]-sorted[lo])
}

func (o Options) validate() error {
	if !(o.Contamination > 0 && o.Contamination <= 0.5) {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", o.Contamination)
	}
	if o.Trees < 1 {
		return fmt.Errorf("trees must be >= 1, got %d", o.Trees)
	}
	if o.MinSamples < 2 {
		return fmt.Errorf("min samples must be >= 2, got %d", o.MinSamples)
	}
	switch o.Unscorable {
	case PolicyNormal, PolicyMissing, PolicyError:
	default:
		return fmt.Errorf("unknown unscorable policy %q", o.Unscorable)
	}
	return nil
}
