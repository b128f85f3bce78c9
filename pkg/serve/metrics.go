package serve

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "surveyd"
	httpSubsystem    = "http"
)

// Metrics holds the Prometheus collectors of one server.
type Metrics struct {
	// RequestsTotal counts requests. Labels: endpoint, code.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration measures handler latency. Labels: endpoint.
	RequestDuration *prometheus.HistogramVec

	SessionsCreated    prometheus.Counter
	Completions        prometheus.Counter
	UnresolvedBranches prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"endpoint"},
		),
		SessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Sessions issued by /newsession",
		}),
		Completions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "evaluations_total",
			Help:      "Successful /analyse calls",
		}),
		UnresolvedBranches: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unresolved_branches_total",
			Help:      "Answers whose question id matched no branch",
		}),
	}
}

func (m *Metrics) observe(endpoint string, status int, latency time.Duration) {
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(latency.Seconds())
}
