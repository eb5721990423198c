package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersPlaced counts limit orders that came to rest, by side (ask/bid)
var OrdersPlaced = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_orders_placed_total",
		Help: "Total number of limit orders posted to a book",
	},
	[]string{"side"},
)

// OrdersCancelled counts resting orders removed by their owner
var OrdersCancelled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_orders_cancelled_total",
		Help: "Total number of resting orders cancelled",
	},
	[]string{"side"},
)

// OrdersEvicted counts resting orders evicted to make room for better prices
var OrdersEvicted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_orders_evicted_total",
		Help: "Total number of resting orders evicted from a full book",
	},
	[]string{"side"},
)

// Fills counts maker fills by maker side
var Fills = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_fills_total",
		Help: "Total number of fills against resting orders",
	},
	[]string{"side"},
)

// TakerFees accumulates assessed taker fees, in quote subunits
var TakerFees = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_taker_fees_total",
		Help: "Taker fees assessed, in quote subunits",
	},
	[]string{"market"},
)

// OperationLatency records how long an exchange operation held the book
var OperationLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "clob_operation_latency_seconds",
		Help:    "Latency in seconds of exchange operations",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
	},
	[]string{"operation"},
)

// Rollbacks counts aborted operations by abort module and code
var Rollbacks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clob_rollbacks_total",
		Help: "Total number of aborted and rolled back operations",
	},
	[]string{"module", "code"},
)

// Event pipeline metrics
var (
	EventsCommitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clob_events_committed_total",
			Help: "Total number of maker and taker events committed",
		},
	)

	PublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clob_publish_failures_total",
			Help: "Number of failed event publish attempts",
		},
		[]string{"publisher"},
	)

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clob_ws_clients",
			Help: "Connected websocket event subscribers",
		},
	)

	WSDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clob_ws_dropped_total",
			Help: "Messages dropped for slow websocket subscribers",
		},
	)

	SnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clob_snapshot_duration_seconds",
			Help:    "Time taken to write an exchange snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersCancelled, OrdersEvicted, Fills, TakerFees)
	prometheus.MustRegister(OperationLatency, Rollbacks)
	prometheus.MustRegister(EventsCommitted, PublishFailures, WSClients, WSDropped, SnapshotDuration)
}
