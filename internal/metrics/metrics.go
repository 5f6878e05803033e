package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clippy_ws_connections",
		Help: "Current number of active websocket connections",
	})
	MessagesPersisted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clippy_messages_persisted_total",
		Help: "Total number of messages appended to room logs",
	}, []string{"type"})
	MessagesRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clippy_messages_rejected_total",
		Help: "Total number of inbound messages rejected by validation",
	})
	BroadcastDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clippy_broadcast_deliveries_total",
		Help: "Total number of per-connection broadcast deliveries",
	})
	BroadcastDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clippy_broadcast_drops_total",
		Help: "Total number of broadcast deliveries dropped on full send queues",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(WsConnections, MessagesPersisted, MessagesRejected,
		BroadcastDeliveries, BroadcastDrops, HttpRequestsTotal, HttpRequestDuration)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
