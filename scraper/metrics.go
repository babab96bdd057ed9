package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry      *prometheus.Registry
	PagesTotal    *prometheus.CounterVec
	PageDuration  prometheus.Histogram
	ItemsTotal    *prometheus.CounterVec
	RetriesTotal  prometheus.Counter
	ErrorsTotal   *prometheus.CounterVec
	RunsTotal     *prometheus.CounterVec
	LastRunPrices *prometheus.GaugeVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Result pages processed by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_page_duration_seconds",
			Help:    "Time spent loading, scrolling and extracting one page.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
		},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_total",
			Help: "Items extracted by record status.",
		},
		[]string{"status"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of page load retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	runs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_runs_total",
			Help: "Completed runs by mode and result.",
		},
		[]string{"mode", "result"},
	)
	prices := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scraper_last_run_price",
			Help: "Price aggregates of the last successful run.",
		},
		[]string{"stat"},
	)

	registry.MustRegister(pages, pageDuration, items, retries, errorsTotal, runs, prices)

	return &Metrics{
		Registry:      registry,
		PagesTotal:    pages,
		PageDuration:  pageDuration,
		ItemsTotal:    items,
		RetriesTotal:  retries,
		ErrorsTotal:   errorsTotal,
		RunsTotal:     runs,
		LastRunPrices: prices,
	}
}

// IncPage increments the page counter for an outcome label.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records how long one page took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

// IncItems increments the items counter for a record status.
func (m *Metrics) IncItems(status string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(status).Inc()
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

// IncRun records a finished run.
func (m *Metrics) IncRun(mode, result string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(mode, result).Inc()
}

// SetPrices publishes the summary aggregates.
func (m *Metrics) SetPrices(avg, min, max int) {
	if m == nil {
		return
	}
	m.LastRunPrices.WithLabelValues("avg").Set(float64(avg))
	m.LastRunPrices.WithLabelValues("min").Set(float64(min))
	m.LastRunPrices.WithLabelValues("max").Set(float64(max))
}
