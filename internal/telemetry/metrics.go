// Package telemetry owns the process metrics registry and trace provider.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "filebot"

// Metrics groups the bot's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	updates        *prometheus.CounterVec
	searches       *prometheus.CounterVec
	searchResults  prometheus.Histogram
	searchDuration prometheus.Histogram
	apiCalls       *prometheus.CounterVec
	queueWait      prometheus.Histogram
	broadcast      *prometheus.CounterVec
	shortened      *prometheus.CounterVec
	indexed        prometheus.Counter
}

// NewMetrics creates and registers every collector, plus the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by bot and update type.",
		}, []string{"bot", "type"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Search requests, by outcome.",
		}, []string{"outcome"}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of documents returned per search.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Time spent querying the document index.",
			Buckets:   prometheus.DefBuckets,
		}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "telegram_calls_total",
			Help:      "Queued Bot API calls, by method and result.",
		}, []string{"method", "result"}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_queue_wait_seconds",
			Help:      "Time a call spent queued and throttled before completing.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		broadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_messages_total",
			Help:      "Broadcast deliveries, by result.",
		}, []string{"result"}),
		shortened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_total",
			Help:      "Download links handed out, by kind (direct or shortened).",
		}, []string{"kind"}),
		indexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_indexed_total",
			Help:      "Documents added to the search index.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.updates, m.searches, m.searchResults, m.searchDuration,
		m.apiCalls, m.queueWait, m.broadcast, m.shortened, m.indexed,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RegisterGauge adds a gauge whose value is read from fn at scrape time.
func (m *Metrics) RegisterGauge(name, help string, fn func() float64) error {
	if m == nil {
		return nil
	}
	return m.registry.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Update counts one received update.
func (m *Metrics) Update(bot, kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(bot, kind).Inc()
}

// Search records one search attempt. results and d are ignored unless the
// search reached the index.
func (m *Metrics) Search(outcome string, results int, d time.Duration) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
	if d > 0 {
		m.searchResults.Observe(float64(results))
		m.searchDuration.Observe(d.Seconds())
	}
}

// APICall records one queued Bot API call. It matches
// telegram.SendObserver.
func (m *Metrics) APICall(method string, wait time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.apiCalls.WithLabelValues(method, result).Inc()
	m.queueWait.Observe(wait.Seconds())
}

// Broadcast counts one broadcast delivery result: sent, failed or removed.
func (m *Metrics) Broadcast(result string) {
	if m == nil {
		return
	}
	m.broadcast.WithLabelValues(result).Inc()
}

// Link counts one handed-out download link.
func (m *Metrics) Link(shortened bool) {
	if m == nil {
		return
	}
	kind := "direct"
	if shortened {
		kind = "shortened"
	}
	m.shortened.WithLabelValues(kind).Inc()
}

// Indexed counts one indexed document.
func (m *Metrics) Indexed() {
	if m == nil {
		return
	}
	m.indexed.Inc()
}
