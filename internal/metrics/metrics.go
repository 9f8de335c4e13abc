package metrics

import (
	"errors"

	"incentive-ledger-go/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_total",
			Help: "Total number of committed ledger entries",
		},
		[]string{"kind"},
	)

	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_workflow_transitions_total",
			Help: "Total number of workflow transitions by outcome",
		},
		[]string{"workflow", "transition", "result"},
	)

	RelayMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_relay_messages_total",
			Help: "Total number of outbox messages handed to a sink",
		},
		[]string{"sink", "result"},
	)

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// RecordTransition counts one workflow transition attempt
func RecordTransition(workflow, transition string, err error) {
	WorkflowTransitionsTotal.WithLabelValues(workflow, transition, Result(err)).Inc()
}

// Result maps an operation error to a low-cardinality label value
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, store.ErrAlreadyProcessed):
		return "already_processed"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrExpired):
		return "expired"
	case errors.Is(err, store.ErrLimitExceeded):
		return "limit_exceeded"
	default:
		return "error"
	}
}
