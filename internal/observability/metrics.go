// Package observability exposes the daemon's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/danmuck/ttp/internal/protocol"
)

var (
	registerOnce sync.Once

	connections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttp",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Accepted client connections.",
		},
		[]string{"transport", "mode"},
	)
	exchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ttp",
			Subsystem: "server",
			Name:      "exchanges_total",
			Help:      "Evaluated request/response exchanges.",
		},
		[]string{"mode", "request", "response"},
	)
	exchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ttp",
			Subsystem: "server",
			Name:      "exchange_duration_seconds",
			Help:      "Evaluator latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connections, exchanges, exchangeDuration)
	})
}

func RecordConnection(transport, mode string) {
	RegisterMetrics()
	connections.WithLabelValues(transport, mode).Inc()
}

func RecordExchange(mode string, reqHeader, respHeader int32, duration time.Duration) {
	RegisterMetrics()
	exchanges.WithLabelValues(mode, headerLabel(reqHeader), headerLabel(respHeader)).Inc()
	exchangeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// Unknown masks keep their numeric form so foreign packets stay countable.
func headerLabel(mask int32) string {
	if name, ok := protocol.Std.Name(mask); ok {
		return name
	}
	return strconv.Itoa(int(mask))
}

// Handler serves the exposition endpoint.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
