// Package metrics exposes the launcher's Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts sessions launched successfully.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_sessions_started_total",
		Help: "Number of hebi sessions launched",
	})

	// SessionsStopped counts sessions stopped by user request.
	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_sessions_stopped_total",
		Help: "Number of hebi sessions stopped on request",
	})

	// SessionsReaped counts sessions destroyed for inactivity.
	SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_sessions_reaped_total",
		Help: "Number of hebi sessions reaped for inactivity",
	})

	// HeartbeatsBroadcast counts heartbeat-request broadcasts.
	HeartbeatsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_heartbeats_broadcast_total",
		Help: "Number of heartbeat-request broadcasts to session clients",
	})

	// HeartbeatResponses counts activity signals absorbed from clients.
	HeartbeatResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_heartbeat_responses_total",
		Help: "Number of session-connect and heartbeat-response events absorbed",
	})

	// SnapshotWrites counts activity snapshot writes.
	SnapshotWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hebi_activity_snapshot_writes_total",
		Help: "Number of activity snapshot writes to the persistent volume",
	})

	// ConnectedClients tracks event channel connections.
	ConnectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hebi_event_channel_clients",
		Help: "Number of connected event channel clients",
	})
)
