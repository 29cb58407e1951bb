package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/crmlens/internal/anomaly"
	"github.com/KaramelBytes/crmlens/internal/config"
	"github.com/KaramelBytes/crmlens/internal/estimate"
	"github.com/KaramelBytes/crmlens/internal/logging"
	"github.com/KaramelBytes/crmlens/internal/normalize"
	"github.com/KaramelBytes/crmlens/internal/pipeline"
	"github.com/KaramelBytes/crmlens/internal/table"
)

type recorder struct {
	mu     sync.Mutex
	stages []string
	runs   int
	errs   int
}

func (r *recorder) StageDone(stage string, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recorder) RunDone(_, _ int, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	if err != nil {
		r.errs++
	}
}

func raw(t *testing.T) *table.Table {
	t.Helper()
	tb, err := table.New([]string{"Email", "Phone", "Company", "Region"}, [][]string{
		{"a@x.com", "1234567890", "", "north"},
		{"a@x.com", "555-000-1111", "Acme", "north"},
		{"b@x.com", "(555) 123-4567", "Globex", "south"},
		{"c@x.com", "123", "Initech", "east"},
		{"d@x.com", "555.987.6543", "NA", "west"},
	})
	require.NoError(t, err)
	return tb
}

func TestRunProducesAnnotatedTable(t *testing.T) {
	var logs bytes.Buffer
	obs := &recorder{}
	r := &pipeline.Runner{Logger: logging.New(&logs, "debug", "json"), Observer: obs}
	res, err := r.Run(context.Background(), raw(t))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"Email", "Phone", "Company", "Region", "Anomaly_Score", "Company_Size", "Predicted_Sales"}, res.Table.Header())
	assert.Equal(t, 4, res.Table.Len())
	assert.Equal(t, 1, res.Normalize.DuplicatesRemoved)
	assert.Equal(t, "123-456-7890", res.Table.Value(0, "Phone"))
	assert.Equal(t, "", res.Table.Value(3, "Company"))
	assert.Equal(t, 4, res.Fitted)

	require.Equal(t, 1, res.Anomalies.Len())
	assert.Equal(t, "123", res.Anomalies.Value(0, "Phone"))
	assert.True(t, res.Anomalies.Has(estimate.ColPredicted))
	for i := 0; i < res.Table.Len(); i++ {
		assert.NotEmpty(t, res.Table.Value(i, estimate.ColPredicted))
	}

	assert.Equal(t, []string{pipeline.StageNormalize, pipeline.StageDetect, pipeline.StageEstimate}, obs.stages)
	assert.Equal(t, 1, obs.runs)
	assert.Contains(t, logs.String(), `"run_id":"`+res.RunID+`"`)
	assert.Contains(t, logs.String(), `"stage":"estimate"`)
}

func TestRunIsReproducible(t *testing.T) {
	r := &pipeline.Runner{}
	a, err := r.Run(context.Background(), raw(t))
	require.NoError(t, err)
	b, err := r.Run(context.Background(), raw(t))
	require.NoError(t, err)
	assert.True(t, a.Table.Equal(b.Table))
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRunUsesInjectedSource(t *testing.T) {
	seeds := []int64{}
	r := &pipeline.Runner{NewSource: func(seed int64) estimate.Source {
		seeds = append(seeds, seed)
		return estimate.NewSource(seed)
	}}
	cfg := config.Default()
	cfg.Estimate.Seed = 99
	r.Config = cfg
	_, err := r.Run(context.Background(), raw(t))
	require.NoError(t, err)
	assert.Equal(t, []int64{99}, seeds)
}

func TestRunWrapsStageErrors(t *testing.T) {
	obs := &recorder{}
	r := &pipeline.Runner{Observer: obs}

	noCompany, err := table.New([]string{"Email", "Phone"}, [][]string{{"a", "1"}})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), noCompany)
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageNormalize, se.Stage)
	var schema *normalize.SchemaError
	assert.ErrorAs(t, err, &schema)

	tiny, err := table.New([]string{"Email", "Phone", "Company"}, [][]string{{"a", "1", "x"}})
	require.NoError(t, err)
	_, err = r.Run(context.Background(), tiny)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, pipeline.StageDetect, se.Stage)
	var ie *anomaly.InsufficientDataError
	assert.ErrorAs(t, err, &ie)

	assert.Equal(t, 2, obs.errs)
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&pipeline.Runner{}).Run(ctx, raw(t))
	assert.True(t, errors.Is(err, context.Canceled))
}
