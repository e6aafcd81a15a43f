// Package telemetry holds the Prometheus metrics for the engine.
package telemetry

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Metrics is the engine's metric registry.
type Metrics struct {
	registry *prometheus.Registry

	FetchDuration *prometheus.HistogramVec
	FetchErrors   *prometheus.CounterVec

	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CacheHitRatio prometheus.Gauge

	SnapshotsStored prometheus.Counter
	Detections      *prometheus.CounterVec
	Signals         *prometheus.CounterVec

	JobRuns     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec

	StreamTrades     *prometheus.CounterVec
	StreamReconnects *prometheus.CounterVec

	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics builds and registers all engine metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookpulse_fetch_duration_seconds",
				Help:    "Duration of venue order-book fetches",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"venue", "result"},
		),

		FetchErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_fetch_errors_total",
				Help: "Total venue fetch failures by venue and error kind",
			},
			[]string{"venue", "kind"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_cache_hits_total",
				Help: "Total hot-cache hits by entry type",
			},
			[]string{"entry"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_cache_misses_total",
				Help: "Total hot-cache misses by entry type",
			},
			[]string{"entry"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bookpulse_cache_hit_ratio",
				Help: "Current hot-cache hit ratio (0.0 to 1.0)",
			},
		),

		SnapshotsStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bookpulse_snapshots_stored_total",
				Help: "Total snapshots persisted",
			},
		),

		Detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_detections_total",
				Help: "Total detector hits by kind",
			},
			[]string{"kind"},
		),

		Signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_signals_total",
				Help: "Total pulse signals by direction and validity",
			},
			[]string{"direction", "valid"},
		),

		JobRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_job_runs_total",
				Help: "Total scheduled job executions by job and status",
			},
			[]string{"job", "status"},
		),

		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookpulse_job_duration_seconds",
				Help:    "Duration of scheduled job executions",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"job"},
		),

		StreamTrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_stream_trades_total",
				Help: "Total trade prints consumed from venue streams",
			},
			[]string{"venue"},
		),

		StreamReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookpulse_stream_reconnects_total",
				Help: "Total websocket reconnects by venue",
			},
			[]string{"venue"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookpulse_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"route", "method", "code"},
		),
	}

	m.registry.MustRegister(
		m.FetchDuration,
		m.FetchErrors,
		m.CacheHits,
		m.CacheMisses,
		m.CacheHitRatio,
		m.SnapshotsStored,
		m.Detections,
		m.Signals,
		m.JobRuns,
		m.JobDuration,
		m.StreamTrades,
		m.StreamReconnects,
		m.HTTPDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one venue fetch.
func (m *Metrics) ObserveFetch(venue string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
		m.FetchErrors.WithLabelValues(venue, errorKind(err)).Inc()
	}
	m.FetchDuration.WithLabelValues(venue, result).Observe(d.Seconds())
}

// RecordCacheHit records a hot-cache hit and refreshes the ratio gauge.
func (m *Metrics) RecordCacheHit(entry string) {
	m.CacheHits.WithLabelValues(entry).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a hot-cache miss and refreshes the ratio gauge.
func (m *Metrics) RecordCacheMiss(entry string) {
	m.CacheMisses.WithLabelValues(entry).Inc()
	m.updateCacheHitRatio()
}

// RecordSignal counts one generated signal.
func (m *Metrics) RecordSignal(direction string, valid bool) {
	v := "false"
	if valid {
		v = "true"
	}
	m.Signals.WithLabelValues(direction, v).Inc()
}

// JobTimer times one scheduled job run.
type JobTimer struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// StartJob begins timing a scheduled job.
func (m *Metrics) StartJob(job string) *JobTimer {
	return &JobTimer{metrics: m, job: job, start: time.Now()}
}

// Stop completes the timing and records status.
func (t *JobTimer) Stop(err error) {
	d := time.Since(t.start)
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.JobRuns.WithLabelValues(t.job, status).Inc()
	t.metrics.JobDuration.WithLabelValues(t.job).Observe(d.Seconds())

	log.Debug().Str("job", t.job).Str("status", status).Dur("duration", d).
		Msg("scheduled job finished")
}

// updateCacheHitRatio recomputes the ratio gauge from the counters.
func (m *Metrics) updateCacheHitRatio() {
	var hits, misses float64
	metric := &io_prometheus_client.Metric{}

	for _, entry := range []string{"snapshot", "signal"} {
		if c, err := m.CacheHits.GetMetricWithLabelValues(entry); err == nil {
			if err := c.Write(metric); err == nil {
				hits += metric.GetCounter().GetValue()
			}
		}
		if c, err := m.CacheMisses.GetMetricWithLabelValues(entry); err == nil {
			if err := c.Write(metric); err == nil {
				misses += metric.GetCounter().GetValue()
			}
		}
	}

	if total := hits + misses; total > 0 {
		m.CacheHitRatio.Set(hits / total)
	}
}

func errorKind(err error) string {
	if err == nil {
		return "none"
	}
	// Coarse classification keeps label cardinality bounded.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unreachable"), strings.Contains(msg, "connection"):
		return "unreachable"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "circuit"):
		return "breaker_open"
	default:
		return "other"
	}
}
