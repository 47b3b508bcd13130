// Package observability exposes Prometheus metrics for the policy engine:
// decision outcomes, request lifecycle transitions, and checkout results.
// Served at /metrics by the admin API when enabled.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the policy engine's Prometheus collectors.
type Metrics struct {
	// SpendDecisions counts tracker decisions by outcome
	// (allowed, denied_daily, denied_monthly, denied_approval).
	SpendDecisions *prometheus.CounterVec

	// PermissionDecisions counts ledger decisions by outcome
	// (allowed, pending, approval_required).
	PermissionDecisions *prometheus.CounterVec

	// RequestTransitions counts request status transitions by new status.
	RequestTransitions *prometheus.CounterVec

	// Checkouts counts checkout attempts by final result
	// (completed, pending_approval, denied, failed).
	Checkouts *prometheus.CounterVec

	// SpentCents accumulates successfully recorded spend.
	SpentCents prometheus.Counter
}

// New creates the metric set on the given registerer. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpendDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "spend_decisions_total",
			Help:      "Period tracker decisions by outcome.",
		}, []string{"outcome"}),
		PermissionDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "permission_decisions_total",
			Help:      "Permission ledger decisions by outcome.",
		}, []string{"outcome"}),
		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "request_transitions_total",
			Help:      "Permission request status transitions by new status.",
		}, []string{"status"}),
		Checkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "checkouts_total",
			Help:      "Checkout attempts by final result.",
		}, []string{"result"}),
		SpentCents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spendguard",
			Name:      "spent_cents_total",
			Help:      "Total successfully recorded spend in cents.",
		}),
	}
}
