// Package metrics exposes Prometheus collectors for the HTTP server, agent
// runs, tool executions and session store operations.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics holds all collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Agent metrics
	AgentRunsTotal   *prometheus.CounterVec
	AgentRunDuration *prometheus.HistogramVec

	// Tool metrics
	ToolExecutionsTotal *prometheus.CounterVec

	// Session metrics
	SessionOperationsTotal   *prometheus.CounterVec
	SessionOperationDuration *prometheus.HistogramVec
}

// New creates and registers all collectors. Go runtime and process
// collectors are registered as well.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AgentRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_runs_total",
				Help: "Total number of agent runs",
			},
			[]string{"app", "status"},
		),
		AgentRunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_run_duration_seconds",
				Help:    "Duration of agent runs in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"app"},
		),

		ToolExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tool_executions_total",
				Help: "Total number of tool executions",
			},
			[]string{"tool", "status"},
		),

		SessionOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "session_operations_total",
				Help: "Total number of session store operations",
			},
			[]string{"backend", "op", "status"},
		),
		SessionOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "session_operation_duration_seconds",
				Help:    "Duration of session store operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AgentRunsTotal,
		m.AgentRunDuration,
		m.ToolExecutionsTotal,
		m.SessionOperationsTotal,
		m.SessionOperationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveAgentRun records a finished agent run.
func (m *Metrics) ObserveAgentRun(app string, err error, d time.Duration) {
	m.AgentRunsTotal.WithLabelValues(app, status(err)).Inc()
	m.AgentRunDuration.WithLabelValues(app).Observe(d.Seconds())
}

// ObserveTool records one tool execution.
func (m *Metrics) ObserveTool(tool string, failed bool) {
	s := StatusSuccess
	if failed {
		s = StatusError
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, s).Inc()
}

// ObserveSessionOp records one session store call.
func (m *Metrics) ObserveSessionOp(backend, op string, err error, d time.Duration) {
	m.SessionOperationsTotal.WithLabelValues(backend, op, status(err)).Inc()
	m.SessionOperationDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
