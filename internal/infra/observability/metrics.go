package observability

import (
	"time"

	"github.com/boddenberg/cadastro-clientes-pf-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	storeErrors       *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	customerEvents    *prometheus.CounterVec
	logins            *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadastro_operation_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadastro_store_errors_total",
				Help: "Total infrastructure errors from the customer store.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadastro_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadastro_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		customerEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadastro_customer_events_total",
				Help: "Customer lifecycle events (registered, updated, deleted, conflict).",
			},
			[]string{"event"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadastro_logins_total",
				Help: "Login attempts by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordOperationDuration records the duration of a service operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrCustomerEvent counts a customer lifecycle event.
func (m *Metrics) IncrCustomerEvent(event string) {
	m.customerEvents.WithLabelValues(event).Inc()
}

// IncrLogin counts a login attempt with result "success" or "failure".
func (m *Metrics) IncrLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// Snapshot returns the counters behind GET /metrics/customers.
func (m *Metrics) Snapshot() *domain.CustomerMetrics {
	succeeded := getCounterValue(m.logins, "success")
	failed := getCounterValue(m.logins, "failure")
	hits := getCounterValue(m.cacheHits, "customer")
	misses := getCounterValue(m.cacheMisses, "customer")

	failureRate := float64(0)
	if succeeded+failed > 0 {
		failureRate = failed / (succeeded + failed)
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.CustomerMetrics{
		Registrations:    int64(getCounterValue(m.customerEvents, "registered")),
		Conflicts:        int64(getCounterValue(m.customerEvents, "conflict")),
		LoginsSucceeded:  int64(succeeded),
		LoginsFailed:     int64(failed),
		LoginFailureRate: failureRate,
		CacheHitRate:     hitRate,
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
