package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/topoplan/topoplan/pkg/topology"
)

// Metrics provides Prometheus metrics for topology orchestration. A
// disabled config yields a no-op instance whose methods are safe to call.
type Metrics struct {
	config MetricsConfig

	// Orchestration metrics
	orchestrations *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec

	// Phase metrics
	phaseRuns *prometheus.CounterVec

	// Topology metrics
	nodeGroups      prometheus.Gauge
	targetInstances prometheus.Gauge

	// Error metrics
	topologyErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		orchestrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orchestrations_total",
				Help:      "Total number of orchestration operations by outcome",
			},
			[]string{"op", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of orchestration runs in seconds",
				Buckets:   buckets,
			},
			[]string{"op"},
		),
		phaseRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "phase_runs_total",
				Help:      "Total number of phase executions by outcome",
			},
			[]string{"phase", "status"},
		),
		nodeGroups: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_groups",
				Help:      "Node-groups in the most recently computed diff",
			},
		),
		targetInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "target_instances",
				Help:      "Total target instances in the most recently computed diff",
			},
		),
		topologyErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topology_errors_total",
				Help:      "Total number of failures by topology error code",
			},
			[]string{"code"},
		),
	}

	registry.MustRegister(
		m.orchestrations,
		m.runDuration,
		m.phaseRuns,
		m.nodeGroups,
		m.targetInstances,
		m.topologyErrors,
	)

	return m, nil
}

// RecordOrchestration counts one finished orchestration operation.
func (m *Metrics) RecordOrchestration(op string, err error) {
	if m.orchestrations == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.orchestrations.WithLabelValues(op, status).Inc()
}

// ObserveRunDuration records how long one orchestration run took.
func (m *Metrics) ObserveRunDuration(op string, duration time.Duration) {
	if m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPhase counts one phase execution across a node-group.
func (m *Metrics) RecordPhase(phase string, err error) {
	if m.phaseRuns == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.phaseRuns.WithLabelValues(phase, status).Inc()
}

// SetTopologyTargets publishes the shape of the last computed diff.
func (m *Metrics) SetTopologyTargets(groups, instances int) {
	if m.nodeGroups == nil {
		return
	}
	m.nodeGroups.Set(float64(groups))
	m.targetInstances.Set(float64(instances))
}

// RecordTopologyError counts a failure under its topology error code.
// Failures that are not topology errors count as "internal".
func (m *Metrics) RecordTopologyError(err error) {
	if m.topologyErrors == nil {
		return
	}
	code := "internal"
	var terr *topology.TopologyError
	if errors.As(err, &terr) {
		code = string(terr.Code)
	}
	m.topologyErrors.WithLabelValues(code).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartServer starts an HTTP server exposing the metrics endpoint. It
// returns immediately; serve errors are logged, not fatal.
func (m *Metrics) StartServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server stopped")
		}
	}()

	return nil
}
