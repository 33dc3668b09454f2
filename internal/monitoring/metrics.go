// Package monitoring defines the Prometheus metrics exported on /metrics.
package monitoring

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/realtime"
)

type Metrics struct {
	MergesTotal      *prometheus.CounterVec
	MergeDuration    prometheus.Histogram
	DispatchedTotal  *prometheus.CounterVec
	DispatchErrors   prometheus.Counter
	DroppedChanges   *prometheus.CounterVec
	TimelineStreams  *prometheus.GaugeVec
	HTTPRequestTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. Registration failures are
// logged, not fatal.
func NewMetrics(log *slog.Logger, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_merges_total",
				Help: "Total number of customer merges by result",
			},
			[]string{"result"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crm_merge_duration_seconds",
				Help:    "Duration of customer merges in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		DispatchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_scheduled_messages_total",
				Help: "Scheduled messages processed by the dispatcher by result",
			},
			[]string{"result"},
		),
		DispatchErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crm_dispatch_errors_total",
				Help: "Dispatcher passes aborted by a store error",
			},
		),
		DroppedChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_realtime_dropped_total",
				Help: "Realtime changes dropped because a subscriber was too slow",
			},
			[]string{"table"},
		),
		TimelineStreams: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crm_timeline_streams",
				Help: "Open timeline streams by transport",
			},
			[]string{"transport"},
		),
		HTTPRequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crm_http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}
	if reg == nil {
		return m
	}
	for _, c := range []prometheus.Collector{
		m.MergesTotal,
		m.MergeDuration,
		m.DispatchedTotal,
		m.DispatchErrors,
		m.DroppedChanges,
		m.TimelineStreams,
		m.HTTPRequestTotal,
	} {
		if err := reg.Register(c); err != nil && log != nil {
			log.Error("failed to register metric", slog.Any("error", err))
		}
	}
	return m
}

func (m *Metrics) ObserveMerge(result string, elapsed time.Duration) {
	m.MergesTotal.WithLabelValues(result).Inc()
	if result == "success" {
		m.MergeDuration.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveDispatch(result messaging.DispatchResult, err error) {
	m.DispatchedTotal.WithLabelValues("sent").Add(float64(result.Sent))
	m.DispatchedTotal.WithLabelValues("failed").Add(float64(result.Failed))
	m.DispatchedTotal.WithLabelValues("skipped").Add(float64(result.Skipped))
	if err != nil {
		m.DispatchErrors.Inc()
	}
}

func (m *Metrics) ObserveDrop(change realtime.Change) {
	m.DroppedChanges.WithLabelValues(change.Table).Inc()
}

// StreamOpened tracks an open timeline stream and returns the matching close func.
func (m *Metrics) StreamOpened(transport string) func() {
	gauge := m.TimelineStreams.WithLabelValues(transport)
	gauge.Inc()
	return gauge.Dec
}

func (m *Metrics) ObserveRequest(method, route string, status int) {
	m.HTTPRequestTotal.WithLabelValues(method, route, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
