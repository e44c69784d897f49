package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the realtime subsystem's collectors.
type Registry struct {
	ConnectionsActive *prometheus.GaugeVec
	JoinsTotal        *prometheus.CounterVec
	IngestTotal       *prometheus.CounterVec
	PersistDuration   prometheus.Histogram
	FanoutDeliveries  *prometheus.CounterVec
	InboundDropped    prometheus.Counter
}

// NewRegistry creates the collectors and registers them with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "studyroom_ws_connections_active",
				Help: "Registered realtime connections by role",
			},
			[]string{"role"},
		),
		JoinsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyroom_ws_joins_total",
				Help: "Join attempts by role and result",
			},
			[]string{"role", "result"},
		),
		IngestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyroom_ingest_total",
				Help: "Inbound telemetry frames by result code",
			},
			[]string{"result"},
		),
		PersistDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "studyroom_ingest_persist_duration_seconds",
				Help:    "Time spent appending a metric to the store",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		FanoutDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "studyroom_fanout_deliveries_total",
				Help: "Broadcast deliveries to room subscribers by outcome",
			},
			[]string{"outcome"},
		),
		InboundDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "studyroom_ws_inbound_dropped_total",
				Help: "Inbound frames rejected because the connection queue was full",
			},
		),
	}

	reg.MustRegister(
		r.ConnectionsActive,
		r.JoinsTotal,
		r.IngestTotal,
		r.PersistDuration,
		r.FanoutDeliveries,
		r.InboundDropped,
	)
	return r
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}
