package store

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

// handleMetrics are the counters of one handle, labeled with the database name.
// Handles with the same name share their counters.
type handleMetrics struct {
	name       string
	opens      *metrics.Counter
	openErrors *metrics.Counter
	reconnects *metrics.Counter
	queued     *metrics.Counter
}

func newHandleMetrics(name string) *handleMetrics {
	return &handleMetrics{
		name:       name,
		opens:      metrics.GetOrCreateCounter(fmt.Sprintf(`skv_connection_opens_total{name=%q}`, name)),
		openErrors: metrics.GetOrCreateCounter(fmt.Sprintf(`skv_connection_open_errors_total{name=%q}`, name)),
		reconnects: metrics.GetOrCreateCounter(fmt.Sprintf(`skv_connection_reconnects_total{name=%q}`, name)),
		queued:     metrics.GetOrCreateCounter(fmt.Sprintf(`skv_transactions_queued_total{name=%q}`, name)),
	}
}

func (m *handleMetrics) operation(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`skv_operations_total{name=%q,op=%q}`, m.name, op)).Inc()
}

func (m *handleMetrics) operationError(op string) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`skv_operation_errors_total{name=%q,op=%q}`, m.name, op)).Inc()
}
