package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	ConsentGrants       prometheus.Counter
	ConsentWithdrawals  *prometheus.CounterVec
	ConsentVerifies     *prometheus.CounterVec
	EligibilityDenials  *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	AuditStreamDropped  prometheus.Counter
	NotificationResults *prometheus.CounterVec
}

// New registers all metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers all metrics on the given registerer. Tests pass a fresh
// registry so repeated construction does not collide.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentGrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyledger_consent_grants_total",
			Help: "Total consent grants recorded.",
		}),
		ConsentWithdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyledger_consent_withdrawals_total",
			Help: "Total consent withdrawals by scope.",
		}, []string{"scope"}),
		ConsentVerifies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyledger_consent_verifications_total",
			Help: "Total consent verification decisions by outcome.",
		}, []string{"outcome"}),
		EligibilityDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyledger_distribution_denials_total",
			Help: "Distribution eligibility denials by reason.",
		}, []string{"reason"}),
		AuditWriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyledger_audit_write_failures_total",
			Help: "Audit entries dropped because the store write failed.",
		}),
		AuditStreamDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "storyledger_audit_stream_dropped_total",
			Help: "Audit entries dropped by the stream publisher buffer.",
		}),
		NotificationResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storyledger_notifications_total",
			Help: "Notification dispatch outcomes (sent, failed, simulated).",
		}, []string{"outcome"}),
	}
}
