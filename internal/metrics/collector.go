// Package metrics exposes Prometheus metrics for stream sessions and
// backend queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leapstack-labs/sqlstream/internal/stream"
)

const namespace = "sqlstream"

// Tick outcomes.
const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Collector is a prometheus.Collector for session and query metrics.
// It implements stream.Observer and query.Recorder.
type Collector struct {
	activeSessions prometheus.Gauge
	ticks          *prometheus.CounterVec
	skippedTicks   prometheus.Counter
	bufferedRows   *prometheus.GaugeVec
	queryDuration  *prometheus.HistogramVec
	queryErrors    *prometheus.CounterVec
}

// NewCollector returns a new Collector.
func NewCollector() *Collector {
	return &Collector{
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "The number of running stream sessions.",
			},
		),
		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_ticks_total",
				Help:      "The number of completed session ticks.",
			}, []string{"state", "outcome"},
		),
		skippedTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_ticks_skipped_total",
				Help:      "The number of ticks skipped because a query was still running.",
			},
		),
		bufferedRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_buffered_rows",
				Help:      "The number of rows held in a session's frame.",
			}, []string{"session", "ref_id"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "query_duration_seconds",
				Help:      "The time taken by backend queries.",
				Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30},
			}, []string{"backend"},
		),
		queryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "query_errors_total",
				Help:      "The number of failed backend queries.",
			}, []string{"backend"},
		),
	}
}

// NewRegistry returns a registry holding c plus the Go and process collectors.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	r := prometheus.NewRegistry()
	if err := r.Register(prometheus.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := r.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	if err := r.Register(c); err != nil {
		return nil, err
	}
	return r, nil
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.activeSessions.Describe(ch)
	c.ticks.Describe(ch)
	c.skippedTicks.Describe(ch)
	c.bufferedRows.Describe(ch)
	c.queryDuration.Describe(ch)
	c.queryErrors.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.activeSessions.Collect(ch)
	c.ticks.Collect(ch)
	c.skippedTicks.Collect(ch)
	c.bufferedRows.Collect(ch)
	c.queryDuration.Collect(ch)
	c.queryErrors.Collect(ch)
}

// SessionStarted implements stream.Observer.
func (c *Collector) SessionStarted(stream.SessionInfo) {
	c.activeSessions.Inc()
}

// TickCompleted implements stream.Observer.
func (c *Collector) TickCompleted(info stream.SessionInfo, state stream.State, rows int, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	c.ticks.WithLabelValues(state.String(), outcome).Inc()
	c.bufferedRows.WithLabelValues(info.ID, info.RefID).Set(float64(rows))
}

// TickSkipped implements stream.Observer.
func (c *Collector) TickSkipped(stream.SessionInfo) {
	c.skippedTicks.Inc()
}

// SessionStopped implements stream.Observer.
func (c *Collector) SessionStopped(info stream.SessionInfo) {
	c.activeSessions.Dec()
	c.bufferedRows.DeleteLabelValues(info.ID, info.RefID)
}

// ObserveQuery implements query.Recorder.
func (c *Collector) ObserveQuery(backend string, d time.Duration, err error) {
	c.queryDuration.WithLabelValues(backend).Observe(d.Seconds())
	if err != nil {
		c.queryErrors.WithLabelValues(backend).Inc()
	}
}

var _ stream.Observer = (*Collector)(nil)
