package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dm_messages_sent_total",
			Help: "Total number of direct messages persisted",
		},
	)

	SendRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_send_rejected_total",
			Help: "Total number of sends rejected, by reason",
		},
		[]string{"kind"},
	)

	Pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dm_push_total",
			Help: "Push attempts by event and result (delivered or dropped)",
		},
		[]string{"event", "result"},
	)

	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dm_active_connections",
			Help: "Number of live realtime connections in this process",
		},
	)
)

var registerOnce sync.Once

// Init registra las métricas en el registry por defecto. Se puede llamar
// más de una vez.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(MessagesSent)
		prometheus.MustRegister(SendRejected)
		prometheus.MustRegister(Pushes)
		prometheus.MustRegister(ActiveConnections)
	})
}

// Handler expone las métricas registradas para /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
