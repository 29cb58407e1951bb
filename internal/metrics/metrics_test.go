package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDoneCounts(t *testing.T) {
	c := New()
	c.RunDone(10, 2, time.Second, nil)
	c.RunDone(5, 1, time.Second, nil)
	c.RunDone(0, 0, time.Second, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("error")))
	assert.Equal(t, 15.0, testutil.ToFloat64(c.records))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.anomalies))
}

func TestStageAndRequest(t *testing.T) {
	c := New()
	c.StageDone("normalize", 3*time.Millisecond, nil)
	c.StageDone("detect", time.Millisecond, errors.New("x"))
	c.Request("/api/v1/analyze", "200")

	assert.Equal(t, 2, testutil.CollectAndCount(c.stages))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("/api/v1/analyze", "200")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := New()
	c.RunDone(1, 0, 0, nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "crmlens_pipeline_runs_total")
	assert.Contains(t, string(body), "go_goroutines")
}
