// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records pipeline and HTTP activity on its own registry.
type Collector struct {
	Registry *prometheus.Registry

	runs      *prometheus.CounterVec
	stages    *prometheus.HistogramVec
	records   prometheus.Counter
	anomalies prometheus.Counter
	requests  *prometheus.CounterVec
}

// New registers the crmlens collectors plus the Go runtime collectors.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmlens",
			Name:      "pipeline_runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crmlens",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage", "outcome"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crmlens",
			Name:      "records_processed_total",
			Help:      "Records that reached the end of the pipeline.",
		}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crmlens",
			Name:      "anomalies_flagged_total",
			Help:      "Records labeled anomalous.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crmlens",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}
	c.Registry.MustRegister(
		c.runs, c.stages, c.records, c.anomalies, c.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StageDone observes one finished stage.
func (c *Collector) StageDone(stage string, d time.Duration, err error) {
	c.stages.WithLabelValues(stage, outcome(err)).Observe(d.Seconds())
}

// RunDone observes one finished pipeline run.
func (c *Collector) RunDone(records, anomalies int, _ time.Duration, err error) {
	c.runs.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return
	}
	c.records.Add(float64(records))
	c.anomalies.Add(float64(anomalies))
}

// Request counts one HTTP response.
func (c *Collector) Request(route, code string) {
	c.requests.WithLabelValues(route, code).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{Registry: c.Registry})
}
