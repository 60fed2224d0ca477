package server

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// --------------------------------------------------------------------------
// Server Metrics
// --------------------------------------------------------------------------

// serverMetrics holds the metrics of one server. Every server has its own set,
// so that multiple servers in one process (e.g. tests) do not share counters.
type serverMetrics struct {
	set *metrics.Set

	accepted    *metrics.Counter
	failed      *metrics.Counter
	panics      *metrics.Counter
	messagesIn  *metrics.Counter
	messagesOut *metrics.Counter
}

// newServerMetrics creates the metric set of a server
func newServerMetrics(s *Server) *serverMetrics {
	set := metrics.NewSet()
	m := &serverMetrics{
		set:         set,
		accepted:    set.NewCounter("cqrpc_calls_accepted_total"),
		failed:      set.NewCounter("cqrpc_calls_failed_total"),
		panics:      set.NewCounter("cqrpc_handler_panics_total"),
		messagesIn:  set.NewCounter("cqrpc_messages_received_total"),
		messagesOut: set.NewCounter("cqrpc_messages_sent_total"),
	}

	set.NewGauge("cqrpc_calls_active", func() float64 {
		return float64(s.calls.Size())
	})
	set.NewGauge("cqrpc_protocol_violations", func() float64 {
		return float64(s.transport.Stats().Violations)
	})
	set.NewGauge("cqrpc_max_outstanding_operations", func() float64 {
		return float64(s.transport.Stats().MaxOutstanding)
	})
	set.NewGauge("cqrpc_workers", func() float64 {
		return float64(s.config.WorkerThreads)
	})

	return m
}

// observeFinished records the end of a call
func (m *serverMetrics) observeFinished(desc *MethodDescriptor, code string, duration time.Duration) {
	m.set.GetOrCreateCounter(fmt.Sprintf(`cqrpc_calls_finished_total{method=%q,code=%q}`, desc.FullName(), code)).Inc()
	m.set.GetOrCreateHistogram(fmt.Sprintf(`cqrpc_call_duration_seconds{method=%q}`, desc.FullName())).Update(duration.Seconds())
}

// write writes all metrics in the Prometheus text format
func (m *serverMetrics) write(w io.Writer) {
	m.set.WritePrometheus(w)
}
