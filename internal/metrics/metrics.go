// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorelay_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	// Chat engine metrics
	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gorelay_rooms_active",
			Help: "Rooms with at least one member",
		},
	)

	MembersJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorelay_members_joined_total",
			Help: "Total successful room joins",
		},
	)

	MembersLeft = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorelay_members_left_total",
			Help: "Total members removed on disconnect",
		},
	)

	MessagesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_messages_delivered_total",
			Help: "Total messages accepted and broadcast",
		},
		[]string{"kind"}, // "user" or "system"
	)

	MessagesDuplicate = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gorelay_messages_duplicate_total",
			Help: "Total messages suppressed by the dedup window",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gorelay_messages_rejected_total",
			Help: "Total messages rejected before broadcast",
		},
		[]string{"reason"},
	)
)
