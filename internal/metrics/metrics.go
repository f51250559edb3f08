package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Connections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ws_active_connections",
		Help: "Active websocket connections",
	})

	InboundEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_inbound_events_total",
		Help: "Inbound gateway events by name and outcome",
	}, []string{"event", "outcome"})

	Notifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_chat_notifications_total",
		Help: "Chat notifications sent to personal rooms",
	})

	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ws_dropped_frames_total",
		Help: "Outbound frames dropped because a client send buffer was full",
	})
)

var once sync.Once

// Init registers the collectors with the default registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(Connections, InboundEvents, Notifications, DroppedFrames)
	})
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
