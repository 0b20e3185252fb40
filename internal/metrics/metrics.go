package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration *prometheus.HistogramVec // labels: route

	ProviderFetches  *prometheus.CounterVec   // labels: provider, outcome
	ProviderDuration *prometheus.HistogramVec // labels: provider
	CacheLookups     *prometheus.CounterVec   // labels: result

	IndicatorComputeDur prometheus.Histogram
	IndicatorRows       prometheus.Counter

	Inferences        *prometheus.CounterVec   // labels: model, outcome
	InferenceDuration *prometheus.HistogramVec // labels: model

	DatasetSamples *prometheus.CounterVec // labels: label
	ScannedSymbols *prometheus.CounterVec // labels: outcome
}

// New creates the metrics on a dedicated registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patternscope_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		ProviderFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_provider_fetches_total",
			Help: "Market data fetches by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patternscope_provider_fetch_duration_seconds",
			Help:    "Market data fetch latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_cache_lookups_total",
			Help: "Series cache lookups (hit, miss, error)",
		}, []string{"result"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "patternscope_indicator_compute_duration_seconds",
			Help:    "Indicator engine latency per series",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		IndicatorRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "patternscope_indicator_rows_total",
			Help: "Indicator rows computed",
		}),

		Inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_inferences_total",
			Help: "Model detections by model and outcome",
		}, []string{"model", "outcome"}),
		InferenceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "patternscope_inference_duration_seconds",
			Help:    "Model detection latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),

		DatasetSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_dataset_samples_total",
			Help: "Labelled windows written to datasets",
		}, []string{"label"}),
		ScannedSymbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "patternscope_scanned_symbols_total",
			Help: "Symbols processed by the scanner",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.HTTPDuration,
		m.ProviderFetches,
		m.ProviderDuration,
		m.CacheLookups,
		m.IndicatorComputeDur,
		m.IndicatorRows,
		m.Inferences,
		m.InferenceDuration,
		m.DatasetSamples,
		m.ScannedSymbols,
	)
	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveFetch records one provider call
func (m *Metrics) ObserveFetch(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderFetches.WithLabelValues(provider, outcome(err)).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// CacheResult records a cache hit, miss or error
func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// ObserveCompute records one indicator computation
func (m *Metrics) ObserveCompute(rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.IndicatorRows.Add(float64(rows))
	m.IndicatorComputeDur.Observe(d.Seconds())
}

// ObserveInference records one model detection
func (m *Metrics) ObserveInference(model string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.Inferences.WithLabelValues(model, outcome(err)).Inc()
	m.InferenceDuration.WithLabelValues(model).Observe(d.Seconds())
}

// AddSamples counts dataset windows written for a label
func (m *Metrics) AddSamples(label string, n int) {
	if m == nil {
		return
	}
	m.DatasetSamples.WithLabelValues(label).Add(float64(n))
}

// ObserveScan records one scanned symbol
func (m *Metrics) ObserveScan(err error) {
	if m == nil {
		return
	}
	m.ScannedSymbols.WithLabelValues(outcome(err)).Inc()
}
