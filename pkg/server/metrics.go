package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "scenesync"

// metrics holds the server's Prometheus collectors.
type metrics struct {
	connectionsTotal   prometheus.Counter
	connections        prometheus.Gauge
	peers              prometheus.Gauge
	widgets            prometheus.Gauge
	envelopesIn        *prometheus.CounterVec
	envelopesOut       *prometheus.CounterVec
	framesDropped      prometheus.Counter
	authFailures       prometheus.Counter
	ownershipConflicts prometheus.Counter
	sendQueueOverflows prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)

	return &metrics{
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total number of accepted peer connections",
		}),

		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Number of open peer connections",
		}),

		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "validated_peers",
			Help:      "Number of authenticated peers",
		}),

		widgets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "widgets",
			Help:      "Number of widgets in the scene",
		}),

		envelopesIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_received_total",
			Help:      "Total envelopes received from peers by message type",
		}, []string{"type"}),

		envelopesOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "envelopes_sent_total",
			Help:      "Total envelopes queued for peers by message type",
		}, []string{"type"}),

		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_dropped_total",
			Help:      "Total frames discarded for a checksum mismatch",
		}),

		authFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "auth_failures_total",
			Help:      "Total rejected session credentials",
		}),

		ownershipConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ownership_conflicts_total",
			Help:      "Total updates dropped because another peer owned the object",
		}),

		sendQueueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_queue_overflows_total",
			Help:      "Total peers disconnected because their send queue was full",
		}),
	}
}
