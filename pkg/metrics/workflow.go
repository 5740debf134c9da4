// Package metrics provides the prometheus collectors of the deal workflow
// and the HTTP layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm/internal/core/apperror"
)

// Workflow records workflow operation outcomes. A nil *Workflow is a no-op.
type Workflow struct {
	operations        *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	insufficientStock prometheus.Counter
	auditFailures     prometheus.Counter
	txRetries         prometheus.Counter
}

// NewWorkflow registers the workflow metrics on the provided registerer.
func NewWorkflow(reg prometheus.Registerer) *Workflow {
	if reg == nil {
		return nil
	}
	w := &Workflow{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crm_workflow_operations_total",
			Help: "Workflow operations by operation and result code.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crm_workflow_operation_duration_seconds",
			Help:    "Duration of workflow operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		insufficientStock: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_inventory_insufficient_stock_total",
			Help: "Outbound movements rejected by the stock guard.",
		}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_audit_record_failures_total",
			Help: "Audit entries that could not be recorded.",
		}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crm_tx_serialization_retries_total",
			Help: "Transactions re-run after a serialization failure or deadlock.",
		}),
	}
	reg.MustRegister(w.operations, w.duration, w.insufficientStock, w.auditFailures, w.txRetries)
	return w
}

// ObserveOperation counts one operation and its duration. The result label
// is "ok" or the AppError code.
func (w *Workflow) ObserveOperation(op string, started time.Time, err error) {
	if w == nil {
		return
	}
	op = normalizeLabel(op)
	w.operations.WithLabelValues(op, ResultLabel(err)).Inc()
	w.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
	if apperror.IsInsufficientStock(err) {
		w.insufficientStock.Inc()
	}
}

// IncAuditFailure counts a dropped audit entry.
func (w *Workflow) IncAuditFailure() {
	if w == nil {
		return
	}
	w.auditFailures.Inc()
}

// IncTxRetry counts a transaction retry.
func (w *Workflow) IncTxRetry() {
	if w == nil {
		return
	}
	w.txRetries.Inc()
}

// ResultLabel maps err to a low-cardinality label.
func ResultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.Code
	}
	return apperror.CodeInternal
}

// Handler serves the registry in the prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
