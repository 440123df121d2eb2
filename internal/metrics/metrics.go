// Package metrics defines the Prometheus collectors for the query, report and
// materialization paths and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scan kinds.
const (
	ScanUnranked = "unranked"
	ScanRanked   = "ranked"
	ScanCount    = "count"
)

// Metrics holds all collectors. Every recording method is safe on a nil *Metrics,
// so components can run without metrics wired.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ScanLatency          *prometheus.HistogramVec
	ScanResults          *prometheus.HistogramVec
	CappedCountsTotal    prometheus.Counter
	ReportLatency        *prometheus.HistogramVec
	ReportSectionErrors  *prometheus.CounterVec
	ReportCacheTotal     *prometheus.CounterVec
	MaterializeDuration  prometheus.Histogram
	MaterializeTotal     *prometheus.CounterVec
	SourceRanges         prometheus.Gauge
	TriggerEventsTotal   *prometheus.CounterVec
}

// New creates all collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhcorpus_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhcorpus_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zhcorpus_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ScanLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhcorpus_scan_latency_seconds",
				Help:    "Term index scan latency by kind (unranked, ranked, count).",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		ScanResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhcorpus_scan_results",
				Help:    "Number of ids returned per term index scan.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000, 10000},
			},
			[]string{"kind"},
		),
		CappedCountsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "zhcorpus_capped_counts_total",
				Help: "Counts that reached their cap and were reported as a lower bound.",
			},
		),
		ReportLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zhcorpus_report_latency_seconds",
				Help:    "Word report build latency by mode.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"mode"},
		),
		ReportSectionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhcorpus_report_section_errors_total",
				Help: "Report sections that failed, by section.",
			},
			[]string{"section"},
		),
		ReportCacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhcorpus_report_cache_total",
				Help: "Report cache lookups by result (hit, miss, shared, error).",
			},
			[]string{"result"},
		),
		MaterializeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zhcorpus_materialize_duration_seconds",
				Help:    "Source range materialization duration.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		MaterializeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhcorpus_materialize_total",
				Help: "Source range materializations by status.",
			},
			[]string{"status"},
		),
		SourceRanges: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "zhcorpus_source_ranges",
				Help: "Number of sources in the current range snapshot.",
			},
		),
		TriggerEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zhcorpus_trigger_events_total",
				Help: "Ingest events dispatched by kind and status.",
			},
			[]string{"kind", "status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ScanLatency,
		m.ScanResults,
		m.CappedCountsTotal,
		m.ReportLatency,
		m.ReportSectionErrors,
		m.ReportCacheTotal,
		m.MaterializeDuration,
		m.MaterializeTotal,
		m.SourceRanges,
		m.TriggerEventsTotal,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus scrape HTTP handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveScan records one term index scan.
func (m *Metrics) ObserveScan(kind string, took time.Duration, results int) {
	if m == nil {
		return
	}
	m.ScanLatency.WithLabelValues(kind).Observe(took.Seconds())
	m.ScanResults.WithLabelValues(kind).Observe(float64(results))
}

// CountCapped records a count that hit its cap.
func (m *Metrics) CountCapped() {
	if m == nil {
		return
	}
	m.CappedCountsTotal.Inc()
}

// ObserveReport records one report build.
func (m *Metrics) ObserveReport(mode string, took time.Duration) {
	if m == nil {
		return
	}
	m.ReportLatency.WithLabelValues(mode).Observe(took.Seconds())
}

// ReportSectionFailed records a failed report section.
func (m *Metrics) ReportSectionFailed(section string) {
	if m == nil {
		return
	}
	m.ReportSectionErrors.WithLabelValues(section).Inc()
}

// ReportCache records a report cache lookup result.
func (m *Metrics) ReportCache(result string) {
	if m == nil {
		return
	}
	m.ReportCacheTotal.WithLabelValues(result).Inc()
}

// ObserveMaterialize records one materialization attempt and, on success,
// the resulting number of ranges.
func (m *Metrics) ObserveMaterialize(took time.Duration, ranges int, err error) {
	if m == nil {
		return
	}
	m.MaterializeDuration.Observe(took.Seconds())
	if err != nil {
		m.MaterializeTotal.WithLabelValues("error").Inc()
		return
	}
	m.MaterializeTotal.WithLabelValues("ok").Inc()
	m.SourceRanges.Set(float64(ranges))
}

// SetSourceRanges sets the range count gauge, e.g. after loading a persisted table.
func (m *Metrics) SetSourceRanges(n int) {
	if m == nil {
		return
	}
	m.SourceRanges.Set(float64(n))
}

// TriggerEvent records one dispatched ingest event.
func (m *Metrics) TriggerEvent(kind string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TriggerEventsTotal.WithLabelValues(kind, status).Inc()
}
