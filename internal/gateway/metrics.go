package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OnlineDevices prometheus.Gauge
	SessionEvents *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec
	FramesIn      *prometheus.CounterVec
	FramesOut     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OnlineDevices: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "workphone",
			Subsystem: "gateway",
			Name:      "online_devices",
			Help:      "Number of registered device sessions.",
		}),
		SessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workphone",
			Subsystem: "gateway",
			Name:      "session_events_total",
			Help:      "Device session lifecycle events.",
		}, []string{"event"}),
		AuthFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workphone",
			Subsystem: "gateway",
			Name:      "auth_failures_total",
			Help:      "Rejected device connection attempts by cause.",
		}, []string{"reason"}),
		FramesIn: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workphone",
			Subsystem: "gateway",
			Name:      "frames_in_total",
			Help:      "Frames received from devices by type.",
		}, []string{"type"}),
		FramesOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "workphone",
			Subsystem: "gateway",
			Name:      "frames_out_total",
			Help:      "Frames delivered to device send queues by type.",
		}, []string{"type"}),
	}
}
