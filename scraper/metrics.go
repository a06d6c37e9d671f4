package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry           *prometheus.Registry
	PagesTotal         *prometheus.CounterVec
	ItemsTotal         *prometheus.CounterVec
	RetriesTotal       prometheus.Counter
	SessionRestarts    prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	CompactionsTotal   *prometheus.CounterVec
	FetchDuration      prometheus.Histogram
	NavigationDuration prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Listing pages completed, by flow.",
		},
		[]string{"flow"},
	)
	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_total",
			Help: "Items handled, by flow and outcome.",
		},
		[]string{"flow", "outcome"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	restarts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_session_restarts_total",
			Help: "Browser sessions recreated after fatal faults.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Units given up on, by error type.",
		},
		[]string{"error_type"},
	)
	compactions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_compactions_total",
			Help: "Snapshot rebuilds from the record log, by flow.",
		},
		[]string{"flow"},
	)
	fetches := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Latency of plain HTTP fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	navigation := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_navigation_duration_seconds",
			Help:    "Latency of browser page navigations.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(pages, items, retries, restarts, errorsTotal, compactions, fetches, navigation)

	return &Metrics{
		Registry:           registry,
		PagesTotal:         pages,
		ItemsTotal:         items,
		RetriesTotal:       retries,
		SessionRestarts:    restarts,
		ErrorsTotal:        errorsTotal,
		CompactionsTotal:   compactions,
		FetchDuration:      fetches,
		NavigationDuration: navigation,
	}
}

// IncPage increments the pages counter for a flow.
func (m *Metrics) IncPage(flow string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(flow).Inc()
}

// IncItem increments the items counter for a flow and outcome.
func (m *Metrics) IncItem(flow, outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(flow, outcome).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncRestarts increments the session restarts counter.
func (m *Metrics) IncRestarts() {
	if m == nil {
		return
	}
	m.SessionRestarts.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncCompaction increments the compactions counter for a flow.
func (m *Metrics) IncCompaction(flow string) {
	if m == nil {
		return
	}
	m.CompactionsTotal.WithLabelValues(flow).Inc()
}

// ObserveFetch records an HTTP fetch duration.
func (m *Metrics) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// ObserveNavigation records a browser navigation duration.
func (m *Metrics) ObserveNavigation(d time.Duration) {
	if m == nil {
		return
	}
	m.NavigationDuration.Observe(d.Seconds())
}
