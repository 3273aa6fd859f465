package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repair_tracker"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	busPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_tracker",
			Subsystem: "bus",
			Name:      "publishes_total",
			Help:      "Total number of messages published, by channel class.",
		},
		[]string{"channel"},
	)

	busDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_tracker",
			Subsystem: "bus",
			Name:      "deliveries_total",
			Help:      "Subscriber notifications, by outcome.",
		},
		[]string{"result"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "repair_tracker",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Current number of registered websocket connections.",
		},
	)

	wsCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_tracker",
			Subsystem: "ws",
			Name:      "commands_total",
			Help:      "Client commands handled, by command and outcome.",
		},
		[]string{"command", "result"},
	)

	wsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "repair_tracker",
			Subsystem: "ws",
			Name:      "dropped_messages_total",
			Help:      "Outbound messages dropped because a connection queue was full.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "repair_tracker",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "repair_tracker",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		busPublishes,
		busDeliveries,
		wsConnections,
		wsCommands,
		wsDropped,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ChannelClass collapses per-order channels into one label value.
func ChannelClass(channel string) string {
	if _, ok := repair_tracker.OrderKeyFromChannel(channel); ok {
		return "order"
	}
	if repair_tracker.IsListChannel(channel) || channel == repair_tracker.ChannelMessages {
		return channel
	}
	return "other"
}

func RecordPublish(channel string) {
	busPublishes.WithLabelValues(ChannelClass(channel)).Inc()
}

// Delivery outcomes.
const (
	DeliveryOK    = "ok"
	DeliveryError = "error"
	DeliveryPanic = "panic"
)

func RecordDelivery(result string) {
	busDeliveries.WithLabelValues(result).Inc()
}

func ConnectionOpened() { wsConnections.Inc() }
func ConnectionClosed() { wsConnections.Dec() }

func RecordCommand(command string, ok bool) {
	if command == "" {
		command = "unknown"
	}
	wsCommands.WithLabelValues(command, strconv.FormatBool(ok)).Inc()
}

func RecordDropped() { wsDropped.Inc() }

// GinMiddleware records request counts and durations keyed by the matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := strings.ToUpper(c.Request.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
