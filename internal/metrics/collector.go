package mongomgrmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "mongomgr"
	subsystem = "connmgr"
)

// Label names for connection-manager metrics.
const (
	labelDeployment = "deployment"
	labelRole       = "role"
	labelStage      = "stage"
)

// -------------------------------------------------------------------------
// Collector — Prometheus connmgr Metrics
// -------------------------------------------------------------------------

// Collector holds all connection-manager Prometheus metrics.
//
//   - Connections tracks the currently registered connections, by
//     deployment and classified role.
//   - Failures counts recoverable acquisition failures by stage (dial,
//     auth, ping).
//   - SelectionsTotal counts server-selection calls, separately from
//     selection failures (no candidate servers).
//   - DiscoveryRounds counts topology discovery passes per deployment.
type Collector struct {
	// Connections tracks the number of currently registered connections.
	Connections *prometheus.GaugeVec

	// Failures counts recoverable failures at each acquisition stage.
	Failures *prometheus.CounterVec

	// SelectionsTotal counts successful server-selection calls.
	SelectionsTotal *prometheus.CounterVec

	// SelectionFailuresTotal counts selection calls that found no
	// candidate servers.
	SelectionFailuresTotal *prometheus.CounterVec

	// DiscoveryRoundsTotal counts topology discovery passes.
	DiscoveryRoundsTotal *prometheus.CounterVec
}

// NewCollector creates a Collector with all connmgr metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "mongomgr_connmgr_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.Failures,
		c.SelectionsTotal,
		c.SelectionFailuresTotal,
		c.DiscoveryRoundsTotal,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	connectionLabels := []string{labelDeployment, labelRole}
	failureLabels := []string{labelDeployment, labelStage}
	deploymentLabels := []string{labelDeployment}

	return &Collector{
		Connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently registered connections.",
		}, connectionLabels),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "failures_total",
			Help:      "Total recoverable connection failures, by acquisition stage.",
		}, failureLabels),

		SelectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "selections_total",
			Help:      "Total successful server-selection calls.",
		}, deploymentLabels),

		SelectionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "selection_failures_total",
			Help:      "Total server-selection calls that found no candidate servers.",
		}, deploymentLabels),

		DiscoveryRoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "discovery_rounds_total",
			Help:      "Total replica-set topology discovery passes.",
		}, deploymentLabels),
	}
}

// -------------------------------------------------------------------------
// Connection Lifecycle
// -------------------------------------------------------------------------

// RegisterConnection increments the registered-connections gauge for the
// given deployment and role. Called when a Connection is registered.
func (c *Collector) RegisterConnection(deployment, role string) {
	c.Connections.WithLabelValues(deployment, role).Inc()
}

// UnregisterConnection decrements the registered-connections gauge. Called
// when a Connection is deregistered or destroyed.
func (c *Collector) UnregisterConnection(deployment, role string) {
	c.Connections.WithLabelValues(deployment, role).Dec()
}

// -------------------------------------------------------------------------
// Failures
// -------------------------------------------------------------------------

// IncFailure increments the failure counter for the given deployment and
// acquisition stage ("dial", "auth", "ping").
func (c *Collector) IncFailure(deployment, stage string) {
	c.Failures.WithLabelValues(deployment, stage).Inc()
}

// -------------------------------------------------------------------------
// Selection and Discovery
// -------------------------------------------------------------------------

// IncSelection increments the successful-selection counter for a deployment.
func (c *Collector) IncSelection(deployment string) {
	c.SelectionsTotal.WithLabelValues(deployment).Inc()
}

// IncSelectionFailure increments the no-candidate-servers counter for a
// deployment.
func (c *Collector) IncSelectionFailure(deployment string) {
	c.SelectionFailuresTotal.WithLabelValues(deployment).Inc()
}

// IncDiscoveryRound increments the topology-discovery-pass counter for a
// deployment.
func (c *Collector) IncDiscoveryRound(deployment string) {
	c.DiscoveryRoundsTotal.WithLabelValues(deployment).Inc()
}
