package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "collab_ws_active_connections",
			Help: "Number of active websocket connections per room kind.",
		},
		[]string{"kind"},
	)
	roomOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_room_ops_total",
			Help: "Total number of document operations committed by the authority.",
		},
		[]string{"kind", "op"},
	)
	duplicatesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collab_duplicates_dropped_total",
			Help: "Inbound events dropped because their id was already applied.",
		},
		[]string{"kind"},
	)
	malformedDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_malformed_payloads_dropped_total",
			Help: "Inbound payloads dropped because they failed to decode.",
		},
	)
	sendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_channel_send_failures_total",
			Help: "Outbound channel sends that returned an error.",
		},
	)
	cacheWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collab_cache_write_failures_total",
			Help: "Local cache writes that failed and were swallowed.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		wsActiveConnections,
		roomOpsTotal,
		duplicatesDroppedTotal,
		malformedDroppedTotal,
		sendFailuresTotal,
		cacheWriteFailuresTotal,
	)
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncRoomOp(kind, op string) {
	roomOpsTotal.WithLabelValues(kind, op).Inc()
}

func IncDuplicateDropped(kind string) {
	duplicatesDroppedTotal.WithLabelValues(kind).Inc()
}

func IncMalformedDropped() {
	malformedDroppedTotal.Inc()
}

func IncSendFailure() {
	sendFailuresTotal.Inc()
}

func IncCacheWriteFailure() {
	cacheWriteFailuresTotal.Inc()
}
