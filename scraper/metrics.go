package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	VersesTotal     prometheus.Counter
	ChaptersTotal   prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bible_scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bible_scraper_request_duration_seconds",
			Help:    "HTTP request latency for verse page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	verses := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bible_scraper_verses_scraped_total",
			Help: "Total number of verse records assembled.",
		},
	)
	chapters := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bible_scraper_chapters_completed_total",
			Help: "Total number of chapters with all verses resolved.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bible_scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bible_scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, verses, chapters, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		VersesTotal:     verses,
		ChaptersTotal:   chapters,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncVerses increments the assembled-verses counter.
func (m *Metrics) IncVerses() {
	if m == nil {
		return
	}
	m.VersesTotal.Inc()
}

// IncChapters increments the completed-chapters counter.
func (m *Metrics) IncChapters() {
	if m == nil {
		return
	}
	m.ChaptersTotal.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
