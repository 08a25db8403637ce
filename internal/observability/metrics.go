package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// weatherline server.
type Metrics struct {
	ConnectionsTotal  prometheus.Counter
	ConnectionsActive prometheus.Gauge
	ServerRunning     prometheus.Gauge

	CommandsTotal   *prometheus.CounterVec // labels: command, outcome={ok,error}
	SessionDuration prometheus.Histogram

	RegistrationsTotal *prometheus.CounterVec // labels: outcome={registered,duplicate,invalid}
	LoginsTotal        *prometheus.CounterVec // labels: outcome={success,failure}
	ProvisionBatches   *prometheus.CounterVec // labels: outcome={applied,rejected}

	SinkErrors *prometheus.CounterVec // labels: event={user_registered,weather_provisioned}
}

// NewMetrics creates and registers all server metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.ServerRunning,
		m.CommandsTotal,
		m.SessionDuration,
		m.RegistrationsTotal,
		m.LoginsTotal,
		m.ProvisionBatches,
		m.SinkErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without touching the default registry
// to avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "connections_total",
			Help:      "Total accepted client connections.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherline",
			Name:      "connections_active",
			Help:      "Currently open client sessions.",
		}),
		ServerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weatherline",
			Name:      "server_running",
			Help:      "1 while the accept loop is running, 0 after STOP or shutdown.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "commands_total",
			Help:      "Protocol commands processed, by command and outcome.",
		}, []string{"command", "outcome"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weatherline",
			Name:      "session_duration_seconds",
			Help:      "Lifetime of a client session from accept to disconnect.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 30, 60, 300, 1800, 3600},
		}),
		RegistrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "registrations_total",
			Help:      "REGISTER attempts, by outcome.",
		}, []string{"outcome"}),
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "logins_total",
			Help:      "LOGIN attempts, by outcome.",
		}, []string{"outcome"}),
		ProvisionBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "provision_batches_total",
			Help:      "Provisioning batches, by outcome.",
		}, []string{"outcome"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weatherline",
			Name:      "sink_errors_total",
			Help:      "Failures mirroring mutations to external sinks.",
		}, []string{"event"}),
	}
}
