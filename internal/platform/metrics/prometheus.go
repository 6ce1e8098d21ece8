package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service metrics. Collectors are registered lazily on
// first use so an unused Collector leaves the registry untouched.
type Collector struct {
	reg       prometheus.Registerer
	gatherer  prometheus.Gatherer
	namespace string
	once      sync.Once

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	outboxPublished   prometheus.Counter
	outboxRelayErrors prometheus.Counter
	outboxCycles      prometheus.Counter
}

// New creates a collector. A nil registry falls back to the process default
// registry; an empty namespace becomes "d21vote".
func New(reg *prometheus.Registry, namespace string) *Collector {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	if namespace == "" {
		namespace = "d21vote"
	}
	return &Collector{reg: registerer, gatherer: gatherer, namespace: namespace}
}

func (c *Collector) ensureRegistered() {
	c.once.Do(func() {
		c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "method", "status"})

		c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: c.namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"})

		c.outboxPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Election events handed to the event bus.",
		})

		c.outboxRelayErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "outbox",
			Name:      "relay_errors_total",
			Help:      "Relay cycles that stopped on a failure.",
		})

		c.outboxCycles = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: c.namespace,
			Subsystem: "outbox",
			Name:      "relay_cycles_total",
			Help:      "Completed or failed relay cycles.",
		})

		c.reg.MustRegister(c.httpRequests)
		c.reg.MustRegister(c.httpDuration)
		c.reg.MustRegister(c.outboxPublished)
		c.reg.MustRegister(c.outboxRelayErrors)
		c.reg.MustRegister(c.outboxCycles)
	})
}

func (c *Collector) ObserveHTTP(route string, method string, status int, elapsed time.Duration) {
	c.ensureRegistered()
	c.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveRelayCycle records one OutboxRelay.RunOnce outcome.
func (c *Collector) ObserveRelayCycle(published int, err error) {
	c.ensureRegistered()
	c.outboxCycles.Inc()
	if published > 0 {
		c.outboxPublished.Add(float64(published))
	}
	if err != nil {
		c.outboxRelayErrors.Inc()
	}
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	c.ensureRegistered()
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps next and records its status and latency under route.
func (c *Collector) Instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		c.ObserveHTTP(route, r.Method, recorder.status, time.Since(started))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
