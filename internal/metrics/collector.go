package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"buildd/internal/expiry"
)

// Collector owns a private registry and the buildd instruments.
type Collector struct {
	registry *prometheus.Registry

	// CacheRequests counts lookups by result (hit or miss).
	CacheRequests *prometheus.CounterVec
	// CachePuts counts stores by result (ok or error).
	CachePuts *prometheus.CounterVec
	// CheckVerdicts counts check outcomes by check name and verdict status.
	CheckVerdicts *prometheus.CounterVec
	// CheckFailures counts check errors, panics, and timeouts.
	CheckFailures *prometheus.CounterVec
	// DaemonState is 0 running, 1 draining, 2 stopped.
	DaemonState prometheus.Gauge
	// InFlightWork tracks work admitted by the daemon and not yet finished.
	InFlightWork prometheus.Gauge
	// MemoryThreshold is the configured low-memory threshold in bytes.
	MemoryThreshold prometheus.Gauge
}

// New registers the buildd instruments plus Go runtime and process
// collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildd_cache_requests_total",
				Help: "Total number of task cache lookups by result",
			},
			[]string{"result"},
		),
		CachePuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildd_cache_puts_total",
				Help: "Total number of task cache stores by result",
			},
			[]string{"result"},
		),
		CheckVerdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildd_expiry_check_verdicts_total",
				Help: "Total number of expiration check verdicts by check and status",
			},
			[]string{"check", "status"},
		),
		CheckFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buildd_expiry_check_failures_total",
				Help: "Total number of expiration checks that failed, panicked, or timed out",
			},
			[]string{"check"},
		),
		DaemonState: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buildd_daemon_state",
				Help: "Daemon lifecycle state (0 running, 1 draining, 2 stopped)",
			},
		),
		InFlightWork: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buildd_daemon_inflight_work",
				Help: "Work items admitted by the daemon and still running",
			},
		),
		MemoryThreshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "buildd_memory_threshold_bytes",
				Help: "Free memory threshold below which the daemon expires",
			},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// CacheLookup implements taskcache.Observer.
func (c *Collector) CacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}

// CachePut implements taskcache.Observer.
func (c *Collector) CachePut(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.CachePuts.WithLabelValues(result).Inc()
}

// CheckEvaluated implements expiry.Observer.
func (c *Collector) CheckEvaluated(check string, status expiry.Status, err error) {
	if err != nil {
		c.CheckFailures.WithLabelValues(check).Inc()
		return
	}
	c.CheckVerdicts.WithLabelValues(check, status.String()).Inc()
}

// StateChanged implements expiry.Observer.
func (c *Collector) StateChanged(state expiry.State) {
	c.DaemonState.Set(float64(state))
}
