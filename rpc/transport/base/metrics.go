package base

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

// maxMethodLabels bounds the number of per method series. Methods seen after
// the limit is reached are counted as "other".
const maxMethodLabels = 32

// otherMethod is the label of methods beyond maxMethodLabels
const otherMethod = "other"

// clientMetrics are the metrics of one client transport. Each transport owns
// its own set so that several clients in one process do not share counters.
type clientMetrics struct {
	set *metrics.Set

	connects        *metrics.Counter
	connectFailures *metrics.Counter
	events          *metrics.Counter
	malformed       *metrics.Counter
	unmatched       *metrics.Counter
	unrecognized    *metrics.Counter
	handlerFailures *metrics.Counter

	methods     *xsync.MapOf[string, struct{}]
	methodCount atomic.Int32
}

func newClientMetrics(pending func() float64) *clientMetrics {
	set := metrics.NewSet()
	m := &clientMetrics{
		set:             set,
		connects:        set.NewCounter("gamelink_connects_total"),
		connectFailures: set.NewCounter("gamelink_connect_failures_total"),
		events:          set.NewCounter("gamelink_events_total"),
		malformed:       set.NewCounter("gamelink_malformed_messages_total"),
		unmatched:       set.NewCounter("gamelink_unmatched_responses_total"),
		unrecognized:    set.NewCounter("gamelink_unrecognized_messages_total"),
		handlerFailures: set.NewCounter("gamelink_event_handler_failures_total"),
		methods:         xsync.NewMapOf[string, struct{}](),
	}
	set.NewGauge("gamelink_pending_requests", pending)
	return m
}

// methodLabel returns the label a method is counted under
func (m *clientMetrics) methodLabel(method string) string {
	if _, ok := m.methods.Load(method); ok {
		return method
	}
	if m.methodCount.Add(1) > maxMethodLabels {
		m.methodCount.Add(-1)
		return otherMethod
	}
	if _, loaded := m.methods.LoadOrStore(method, struct{}{}); loaded {
		m.methodCount.Add(-1)
	}
	return method
}

func (m *clientMetrics) requests(method string) *metrics.Counter {
	return m.set.GetOrCreateCounter(fmt.Sprintf(`gamelink_requests_total{method=%q}`, method))
}

func (m *clientMetrics) requestErrors(method string) *metrics.Counter {
	return m.set.GetOrCreateCounter(fmt.Sprintf(`gamelink_request_errors_total{method=%q}`, method))
}

func (m *clientMetrics) requestTimeouts(method string) *metrics.Counter {
	return m.set.GetOrCreateCounter(fmt.Sprintf(`gamelink_request_timeouts_total{method=%q}`, method))
}

func (m *clientMetrics) requestDuration(method string) *metrics.Histogram {
	return m.set.GetOrCreateHistogram(fmt.Sprintf(`gamelink_request_duration_seconds{method=%q}`, method))
}
