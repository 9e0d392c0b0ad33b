// Package metrics exports Prometheus metrics for the ledger and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockwise/internal/domain/movements"
)

const namespace = "stockwise"

// Recorder owns a private registry so tests and several binaries never clash
// on the global one.
type Recorder struct {
	registry *prometheus.Registry

	movementsPosted *prometheus.CounterVec
	movementsFailed *prometheus.CounterVec
	postDuration    *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	outboxDelivered *prometheus.CounterVec
}

var _ movements.Recorder = (*Recorder)(nil)

// New creates a Recorder with Go runtime and process collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		movementsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_posted_total",
			Help:      "Stock movements posted, by type and reason.",
		}, []string{"type", "reason"}),
		movementsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "movements_failed_total",
			Help:      "Stock movement posts that failed, by type, reason and error code.",
		}, []string{"type", "reason", "code"}),
		postDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "post_duration_seconds",
			Help:      "Time to post a movement, lock wait included.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		outboxDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox deliveries to the broker by event type and result.",
		}, []string{"event_type", "result"}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.movementsPosted,
		r.movementsFailed,
		r.postDuration,
		r.httpRequests,
		r.httpDuration,
		r.outboxDelivered,
	)
	return r
}

// Registry exposes the registry for extra collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// MovementPosted implements movements.Recorder.
func (r *Recorder) MovementPosted(typ movements.Type, reason movements.Reason, took time.Duration) {
	r.movementsPosted.WithLabelValues(string(typ), string(reason)).Inc()
	r.postDuration.WithLabelValues(string(typ)).Observe(took.Seconds())
}

// MovementFailed implements movements.Recorder.
func (r *Recorder) MovementFailed(typ movements.Type, reason movements.Reason, code string) {
	r.movementsFailed.WithLabelValues(string(typ), string(reason), code).Inc()
}

// ObserveHTTP records one served request. route is the matched pattern,
// never the raw path, to keep label cardinality bounded.
func (r *Recorder) ObserveHTTP(route, method string, status int, took time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

// OutboxDelivered records one relay attempt.
func (r *Recorder) OutboxDelivered(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.outboxDelivered.WithLabelValues(eventType, result).Inc()
}
