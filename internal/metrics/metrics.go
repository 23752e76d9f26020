package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger
type Metrics struct {
	LoansCreated        prometheus.Counter
	PaymentsApplied     prometheus.Counter
	AppliedAmount       *prometheus.CounterVec
	InstallmentsRepaid  prometheus.Counter
	OperationFailures   *prometheus.CounterVec
	BalanceDriftsFound  prometheus.Counter
	ReconciledLoans     prometheus.Counter
	ReconcileLastDrifts prometheus.Gauge
}

// New creates the ledger metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LoansCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_ledger_loans_created_total",
			Help: "Total number of loans originated with a schedule",
		}),
		PaymentsApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_ledger_payments_applied_total",
			Help: "Total number of payments allocated to an installment",
		}),
		AppliedAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_ledger_applied_amount_minor_units_total",
			Help: "Sum of applied payment amounts in minor currency units",
		}, []string{"currency"}),
		InstallmentsRepaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_ledger_installments_repaid_total",
			Help: "Total number of installments that reached the repaid status",
		}),
		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "loan_ledger_operation_failures_total",
			Help: "Failed ledger operations by operation and error code",
		}, []string{"operation", "code"}),
		BalanceDriftsFound: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_ledger_balance_drifts_total",
			Help: "Loans whose stored outstanding amount differed from the recomputed one",
		}),
		ReconciledLoans: factory.NewCounter(prometheus.CounterOpts{
			Name: "loan_ledger_reconciled_loans_total",
			Help: "Loans checked by balance reconciliation",
		}),
		ReconcileLastDrifts: factory.NewGauge(prometheus.GaugeOpts{
			Name: "loan_ledger_reconcile_last_drifts",
			Help: "Number of drifting loans found by the last reconciliation run",
		}),
	}
}

func (m *Metrics) IncrementLoansCreated() {
	m.LoansCreated.Inc()
}

// ObservePayment records one allocation.
func (m *Metrics) ObservePayment(currency string, applied int64, installmentRepaid bool) {
	m.PaymentsApplied.Inc()
	m.AppliedAmount.WithLabelValues(currency).Add(float64(applied))
	if installmentRepaid {
		m.InstallmentsRepaid.Inc()
	}
}

func (m *Metrics) IncrementFailure(operation, code string) {
	m.OperationFailures.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) ObserveReconciliation(checked, drifts int) {
	m.ReconciledLoans.Add(float64(checked))
	m.BalanceDriftsFound.Add(float64(drifts))
	m.ReconcileLastDrifts.Set(float64(drifts))
}
