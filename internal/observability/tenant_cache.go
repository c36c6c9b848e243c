package observability

import "github.com/prometheus/client_golang/prometheus"

// TenantCacheMetrics tracks the tenant connection cache. All methods are
// safe on a nil receiver so the cache works without metrics wired in.
type TenantCacheMetrics struct {
	events *prometheus.CounterVec
}

// NewTenantCacheMetrics registers the tenant cache counters.
func NewTenantCacheMetrics(registerer prometheus.Registerer) *TenantCacheMetrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chalkboard_tenant_cache_events_total",
		Help: "Tenant connection cache events by kind.",
	}, []string{"event"})
	if registerer != nil {
		registerer.MustRegister(events)
	}
	return &TenantCacheMetrics{events: events}
}

// Hit records a cache hit with a healthy handle.
func (m *TenantCacheMetrics) Hit() {
	if m != nil {
		m.events.WithLabelValues("hit").Inc()
	}
}

// Miss records a cache miss.
func (m *TenantCacheMetrics) Miss() {
	if m != nil {
		m.events.WithLabelValues("miss").Inc()
	}
}

// Dial records a completed connection setup.
func (m *TenantCacheMetrics) Dial() {
	if m != nil {
		m.events.WithLabelValues("dial").Inc()
	}
}

// Eviction records an explicit or probe-driven eviction.
func (m *TenantCacheMetrics) Eviction() {
	if m != nil {
		m.events.WithLabelValues("eviction").Inc()
	}
}

// ProbeFailure records a failed liveness probe on a cached handle.
func (m *TenantCacheMetrics) ProbeFailure() {
	if m != nil {
		m.events.WithLabelValues("probe_failure").Inc()
	}
}
