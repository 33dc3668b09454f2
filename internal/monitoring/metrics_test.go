package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/messaging"
	"github.com/memohai/deckcrm/internal/realtime"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(logger.Nop(), reg)

	m.ObserveMerge("success", 20*time.Millisecond)
	m.ObserveMerge("not_found", time.Millisecond)
	m.ObserveDispatch(messaging.DispatchResult{Sent: 2, Failed: 1}, nil)
	m.ObserveDispatch(messaging.DispatchResult{}, errors.New("db gone"))
	m.ObserveDrop(realtime.Change{Table: "sms_logs"})
	m.ObserveRequest("GET", "/timeline", 404)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.MergeDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DispatchedTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchedTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DispatchErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DroppedChanges.WithLabelValues("sms_logs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestTotal.WithLabelValues("GET", "/timeline", "4xx")))
}

func TestStreamGauge(t *testing.T) {
	m := NewMetrics(logger.Nop(), prometheus.NewRegistry())
	done := m.StreamOpened("sse")
	m.StreamOpened("ws")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TimelineStreams.WithLabelValues("sse")))
	done()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TimelineStreams.WithLabelValues("sse")))
}

func TestNewMetricsDuplicateRegistrationIsNotFatal(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(logger.Nop(), reg)
	m := NewMetrics(logger.Nop(), reg)
	m.ObserveMerge("error", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MergesTotal.WithLabelValues("error")))
}
