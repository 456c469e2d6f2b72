// Package metrics exposes Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EnqueueRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karabox_enqueue_requests_total",
			Help: "Enqueue requests by result code",
		},
		[]string{"result"},
	)

	PlayerEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karabox_player_events_total",
			Help: "Player status reports by event and result code",
		},
		[]string{"event", "result"},
	)

	Broadcasts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "karabox_broadcasts_total",
			Help: "Events broadcast by topic and type",
		},
		[]string{"topic", "type"},
	)

	Subscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "karabox_subscribers",
			Help: "Connected subscribers by topic",
		},
		[]string{"topic"},
	)

	QueueLength = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "karabox_queue_length",
			Help: "Entries waiting in the playlist",
		},
	)
)

func init() {
	prometheus.MustRegister(EnqueueRequests, PlayerEvents, Broadcasts, Subscribers, QueueLength)
}

// Result returns the label for an operation outcome: "ok" or the given code.
func Result(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}

// Handler serves the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}
