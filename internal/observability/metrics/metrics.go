package metrics

import "github.com/prometheus/client_golang/prometheus"

// PortalMetrics exposes counters/histograms for controller operations.
type PortalMetrics struct {
	operations      *prometheus.CounterVec
	validation      *prometheus.CounterVec
	backendLatency  *prometheus.HistogramVec
	activeWorkspace prometheus.Gauge
}

func NewPortalMetrics(reg prometheus.Registerer) *PortalMetrics {
	m := &PortalMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "care_portal",
			Subsystem: "controller",
			Name:      "operations_total",
			Help:      "Controller operations by outcome",
		}, []string{"operation", "status"}),
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "care_portal",
			Subsystem: "controller",
			Name:      "validation_errors_total",
			Help:      "Input validation failures surfaced to the user",
		}, []string{"kind"}),
		backendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "care_portal",
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Latency of collaborator calls made by the controller",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		activeWorkspace: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "care_portal",
			Subsystem: "registry",
			Name:      "workspaces",
			Help:      "Portal clients with a live controller",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operations, m.validation, m.backendLatency, m.activeWorkspace)
	return m
}

func (m *PortalMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, status).Inc()
}

func (m *PortalMetrics) ObserveValidation(kind string) {
	if m == nil {
		return
	}
	m.validation.WithLabelValues(kind).Inc()
}

func (m *PortalMetrics) ObserveBackendLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.backendLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *PortalMetrics) SetWorkspaces(n int) {
	if m == nil {
		return
	}
	m.activeWorkspace.Set(float64(n))
}
