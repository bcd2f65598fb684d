// Package metrics exposes the Prometheus metrics a naia-server process
// publishes about its connections, replication traffic, and liveness.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "naia"
	subsystem = "server"
)

// Label names.
const (
	labelPeerAddr   = "peer_addr"
	labelActionType = "action_type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus replication metrics
// -------------------------------------------------------------------------

// Collector holds all naia-server Prometheus metrics.
//
//   - Connections tracks currently active client connections.
//   - ObjectsReplicated/EntitiesReplicated track live per-connection
//     replicated-record counts.
//   - ActionsSent/PacketsAcked/PacketsDropped track replication traffic
//     and ack-tracker outcomes.
//   - RTT/Jitter histograms track the ping-based liveness estimators.
type Collector struct {
	// Connections tracks the number of currently active client
	// connections. Incremented on handshake completion, decremented on
	// disconnection.
	Connections prometheus.Gauge

	// ObjectsReplicated tracks the number of Created replicated objects
	// summed across all connections.
	ObjectsReplicated prometheus.Gauge

	// EntitiesReplicated tracks the number of Created replicated
	// entities summed across all connections.
	EntitiesReplicated prometheus.Gauge

	// ActionsSent counts replication actions written to outgoing
	// packets, labeled by action type (CreateObject, UpdateReplicate,
	// ...).
	ActionsSent *prometheus.CounterVec

	// PacketsAcked counts outgoing packets the ack tracker resolved as
	// delivered, per peer.
	PacketsAcked *prometheus.CounterVec

	// PacketsDropped counts outgoing packets the ack tracker resolved
	// as dropped, per peer.
	PacketsDropped *prometheus.CounterVec

	// CommandsExecuted counts commands the server inbox accepted for
	// execution (after bundle dedup), per peer.
	CommandsExecuted *prometheus.CounterVec

	// RTT observes round-trip time samples, per peer, in seconds.
	RTT *prometheus.HistogramVec

	// Jitter observes RTT jitter samples, per peer, in seconds.
	Jitter *prometheus.HistogramVec
}

// NewCollector creates a Collector with all metrics registered against
// the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Connections,
		c.ObjectsReplicated,
		c.EntitiesReplicated,
		c.ActionsSent,
		c.PacketsAcked,
		c.PacketsDropped,
		c.CommandsExecuted,
		c.RTT,
		c.Jitter,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	peerLabels := []string{labelPeerAddr}
	actionLabels := []string{labelPeerAddr, labelActionType}

	return &Collector{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "connections",
			Help:      "Number of currently active client connections.",
		}),

		ObjectsReplicated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "objects_replicated",
			Help:      "Number of currently Created replicated objects across all connections.",
		}),

		EntitiesReplicated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "entities_replicated",
			Help:      "Number of currently Created replicated entities across all connections.",
		}),

		ActionsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "actions_sent_total",
			Help:      "Total replication actions written to outgoing packets, by action type.",
		}, actionLabels),

		PacketsAcked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_acked_total",
			Help:      "Total outgoing packets resolved as delivered by the ack tracker.",
		}, peerLabels),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "packets_dropped_total",
			Help:      "Total outgoing packets resolved as dropped by the ack tracker.",
		}, peerLabels),

		CommandsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_executed_total",
			Help:      "Total commands accepted for execution from a connection's bundled command stream.",
		}, peerLabels),

		RTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rtt_seconds",
			Help:      "Round-trip time samples observed via ping, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, peerLabels),

		Jitter: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "jitter_seconds",
			Help:      "RTT jitter samples observed via ping, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, peerLabels),
	}
}

// -------------------------------------------------------------------------
// Connection lifecycle
// -------------------------------------------------------------------------

// RegisterConnection increments the active connections gauge. Called
// once a handshake completes.
func (c *Collector) RegisterConnection() {
	c.Connections.Inc()
}

// UnregisterConnection decrements the active connections gauge. Called
// on disconnection.
func (c *Collector) UnregisterConnection() {
	c.Connections.Dec()
}

// SetObjectsReplicated overwrites the current cross-connection Created
// object count.
func (c *Collector) SetObjectsReplicated(n int) {
	c.ObjectsReplicated.Set(float64(n))
}

// SetEntitiesReplicated overwrites the current cross-connection Created
// entity count.
func (c *Collector) SetEntitiesReplicated(n int) {
	c.EntitiesReplicated.Set(float64(n))
}

// -------------------------------------------------------------------------
// Replication & ack traffic
// -------------------------------------------------------------------------

// IncActionsSent increments the per-action-type outgoing action counter
// for peer.
func (c *Collector) IncActionsSent(peer, actionType string) {
	c.ActionsSent.WithLabelValues(peer, actionType).Inc()
}

// IncPacketsAcked increments the delivered-packet counter for peer.
func (c *Collector) IncPacketsAcked(peer string) {
	c.PacketsAcked.WithLabelValues(peer).Inc()
}

// IncPacketsDropped increments the dropped-packet counter for peer.
func (c *Collector) IncPacketsDropped(peer string) {
	c.PacketsDropped.WithLabelValues(peer).Inc()
}

// IncCommandsExecuted increments the executed-command counter for peer.
func (c *Collector) IncCommandsExecuted(peer string) {
	c.CommandsExecuted.WithLabelValues(peer).Inc()
}

// -------------------------------------------------------------------------
// Liveness
// -------------------------------------------------------------------------

// ObserveRTT records an RTT sample, in seconds, for peer.
func (c *Collector) ObserveRTT(peer string, seconds float64) {
	c.RTT.WithLabelValues(peer).Observe(seconds)
}

// ObserveJitter records an RTT jitter sample, in seconds, for peer.
func (c *Collector) ObserveJitter(peer string, seconds float64) {
	c.Jitter.WithLabelValues(peer).Observe(seconds)
}
