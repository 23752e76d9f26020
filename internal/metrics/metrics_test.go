package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePayment(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePayment("VND", 200, false)
	m.ObservePayment("VND", 300, true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.PaymentsApplied))
	assert.Equal(t, float64(500), testutil.ToFloat64(m.AppliedAmount.WithLabelValues("VND")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.InstallmentsRepaid))
}

func TestObserveReconciliation(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReconciliation(10, 2)
	m.ObserveReconciliation(10, 0)

	assert.Equal(t, float64(20), testutil.ToFloat64(m.ReconciledLoans))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BalanceDriftsFound))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ReconcileLastDrifts))
}

func TestIncrementFailure(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncrementFailure("apply_payment", "NO_DUE_INSTALLMENT")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.OperationFailures.WithLabelValues("apply_payment", "NO_DUE_INSTALLMENT")))
}
