package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the geofence engine and its HTTP surface
var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geopush_runs_total",
			Help: "Total number of engine runs by result",
		},
		[]string{"result"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geopush_deliveries_total",
			Help: "Total number of delivery log entries by reason",
		},
		[]string{"reason"},
	)

	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geopush_run_duration_seconds",
			Help:    "Duration of engine runs",
			Buckets: prometheus.DefBuckets,
		},
	)

	BroadcastDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geopush_broadcast_duration_seconds",
			Help:    "Duration of broadcast endpoint calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
)

// Register registers all Prometheus metrics with reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(RunsTotal)
	reg.MustRegister(DeliveriesTotal)
	reg.MustRegister(RunDuration)
	reg.MustRegister(BroadcastDuration)
	reg.MustRegister(HTTPRequestsTotal)
}
