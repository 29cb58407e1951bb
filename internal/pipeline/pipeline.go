// Package pipeline runs normalize, detect and estimate over one table.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
	"github.com/KaramelBytes/crmlens/internal/config"
	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/logging"
	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/table"
)

// Stage names used in logs, metrics and errors.
const (
	StageNormalize = "normalize"
	StageDetect    = "detect"
	StageEstimate  = "estimate"
)

// Observer receives stage and run timings.
type Observer interface {
	StageDone(stage string, d time.Duration, err error)
	RunDone(records, anomalies int, d time.Duration, err error)
}

// Runner holds what one invocation needs. A zero Runner uses the default
// configuration, a discarding logger and seeded sources.
type Runner struct {
	Config   *config.Global
	Logger   *slog.Logger
	Observer Observer
	// NewSource builds the estimator's random source for each run.
	NewSource func(seed int64) estimate.Source
}

// Result is the output of one run.
type Result struct {
	RunID string
	// Table is the normalized table annotated with every derived column.
	Table     *table.Table
	Anomalies *table.Table
	Normalize normalize.Stats
	Threshold float64
	// Fitted counts records the detector was fitted on; Unscorable holds
	// 0-based positions of the rest.
	Fitted     int
	Unscorable []int
	Duration   time.Duration
}

// StageError wraps the error of a failed stage.
type StageError struct {
	RunID string
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

// Run executes the three stages on raw. raw is not modified.
func (r *Runner) Run(ctx context.Context, raw *table.Table) (res *Result, err error) {
	cfg := r.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := r.Logger
	if log == nil {
		log = logging.Discard()
	}
	newSource := r.NewSource
	if newSource == nil {
		newSource = estimate.NewSource
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	start := time.Now()
	log.InfoContext(ctx, "pipeline started", "rows", raw.Len())
	defer func() {
		d := time.Since(start)
		if r.Observer != nil {
			if err != nil {
				r.Observer.RunDone(0, 0, d, err)
			} else {
				r.Observer.RunDone(res.Table.Len(), res.Anomalies.Len(), d, nil)
			}
		}
		if err != nil {
			log.ErrorContext(ctx, "pipeline failed", "error", err, "duration", d)
		}
	}()

	stage := func(name string, in int, fn func() (int, error)) error {
		if err := ctx.Err(); err != nil {
			return &StageError{RunID: runID, Stage: name, Err: err}
		}
		t0 := time.Now()
		log.DebugContext(ctx, "stage started", "stage", name, "rows_in", in)
		out, err := fn()
		d := time.Since(t0)
		if r.Observer != nil {
			r.Observer.StageDone(name, d, err)
		}
		if err != nil {
			return &StageError{RunID: runID, Stage: name, Err: err}
		}
		log.InfoContext(ctx, "stage finished", "stage", name, "rows_in", in, "rows_out", out, "duration", d)
		return nil
	}

	res = &Result{RunID: runID}
	var clean *table.Table
	if err := stage(StageNormalize, raw.Len(), func() (int, error) {
		var err error
		clean, res.Normalize, err = normalize.NormalizeWithStats(raw, cfg.NormalizeOptions())
		return clean.Len(), err
	}); err != nil {
		return nil, err
	}

	var det *anomaly.Detection
	if err := stage(StageDetect, clean.Len(), func() (int, error) {
		var err error
		det, err = anomaly.DetectWithDetails(clean, cfg.AnomalyOptions())
		if err != nil {
			return 0, err
		}
		return det.Anomalous.Len(), nil
	}); err != nil {
		return nil, err
	}
	res.Threshold = det.Threshold
	res.Fitted = det.Fitted
	res.Unscorable = det.Unscorable
	if len(det.Unscorable) > 0 {
		log.WarnContext(ctx, "records without a usable phone", "count", len(det.Unscorable), "policy", cfg.Anomaly.Unscorable)
	}

	if err := stage(StageEstimate, det.Annotated.Len(), func() (int, error) {
		eopt := cfg.EstimateOptions()
		var err error
		res.Table, err = estimate.Estimate(det.Annotated, eopt, newSource(eopt.Seed))
		return res.Table.Len(), err
	}); err != nil {
		return nil, err
	}

	// the anomalous subset carries the estimate columns too
	res.Anomalies = res.Table.Filter(func(i int) bool {
		return res.Table.Value(i, anomaly.ColScore) == anomaly.LabelAnomalous
	})
	res.Duration = time.Since(start)
	log.InfoContext(ctx, "pipeline finished", "records", res.Table.Len(), "anomalies", res.Anomalies.Len(), "duration", res.Duration)
	return res, nil
}
