package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the broadcast engine.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	campaignsCreatedTotal  *prometheus.CounterVec
	deliveriesFannedOut    *prometheus.CounterVec
	fanoutDuration         prometheus.Histogram
	liveSubscriptions      *prometheus.GaugeVec
	snapshotPushesTotal    *prometheus.CounterVec
	cascadeDeletesTotal    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "broadcast_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		campaignsCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "campaigns_created_total",
				Help:      "Total number of campaigns created, by category.",
			},
			[]string{"category"},
		),
		deliveriesFannedOut: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "deliveries_fanned_out_total",
				Help:      "Per-recipient fan-out writes by result (created, duplicate, failed).",
			},
			[]string{"result"},
		),
		fanoutDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "broadcast_engine",
				Name:      "fanout_duration_seconds",
				Help:      "Wall time of a full campaign fan-out.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		liveSubscriptions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "broadcast_engine",
				Name:      "live_subscriptions",
				Help:      "Currently connected live subscriptions by view (inbox, admin_feed, counters).",
			},
			[]string{"view"},
		),
		snapshotPushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "snapshot_pushes_total",
				Help:      "Full snapshots pushed to subscribers by view.",
			},
			[]string{"view"},
		),
		cascadeDeletesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "cascade_deletes_total",
				Help:      "Admin campaign-wide cascade deletes executed.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.campaignsCreatedTotal,
		m.deliveriesFannedOut,
		m.fanoutDuration,
		m.liveSubscriptions,
		m.snapshotPushesTotal,
		m.cascadeDeletesTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncCampaignCreated(category string) {
	if m == nil {
		return
	}
	m.campaignsCreatedTotal.WithLabelValues(normalizeLabel(category)).Inc()
}

func (m *Metrics) IncDeliveryFannedOut(result string) {
	if m == nil {
		return
	}
	m.deliveriesFannedOut.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveFanoutDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.fanoutDuration.Observe(seconds)
}

func (m *Metrics) IncLiveSubscriptions(view string) {
	if m == nil {
		return
	}
	m.liveSubscriptions.WithLabelValues(normalizeLabel(view)).Inc()
}

func (m *Metrics) DecLiveSubscriptions(view string) {
	if m == nil {
		return
	}
	m.liveSubscriptions.WithLabelValues(normalizeLabel(view)).Dec()
}

func (m *Metrics) IncSnapshotPush(view string) {
	if m == nil {
		return
	}
	m.snapshotPushesTotal.WithLabelValues(normalizeLabel(view)).Inc()
}

func (m *Metrics) IncCascadeDelete() {
	if m == nil {
		return
	}
	m.cascadeDeletesTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
