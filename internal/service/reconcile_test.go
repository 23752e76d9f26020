package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
)

func TestReconcileBalances_NoDrift(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, m := newTestService(store)

	for i := 0; i < 5; i++ {
		loan := createTestLoan(t, svc, 1000, 3)
		_, err := pay(svc, loan.ID, 250)
		require.NoError(t, err)
	}

	report, err := svc.ReconcileBalances(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Checked)
	assert.Empty(t, report.Drifts)
	assert.Zero(t, report.Failures)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.ReconciledLoans))
}

func TestReconcileBalances_ReportsDrift(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, m := newTestService(store)
	ctx := context.Background()

	healthy := createTestLoan(t, svc, 1000, 3)
	drifted := createTestLoan(t, svc, 1000, 3)
	require.NoError(t, store.Loans().UpdateBalance(ctx, drifted.ID, 900, domain.LoanStatusDue, time.Now()))

	report, err := svc.ReconcileBalances(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Checked)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, domain.BalanceDrift{LoanID: drifted.ID, Stored: 900, Recomputed: 1000}, report.Drifts[0])
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BalanceDriftsFound))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReconcileLastDrifts))

	// nothing is written without repair
	loan, err := store.Loans().GetByID(ctx, drifted.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), loan.OutstandingAmount)

	loan, err = store.Loans().GetByID(ctx, healthy.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), loan.OutstandingAmount)
}

func TestReconcileBalances_Repairs(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	loan := createTestLoan(t, svc, 1000, 3)
	require.NoError(t, store.Loans().UpdateBalance(ctx, loan.ID, 1, domain.LoanStatusDue, time.Now()))

	report, err := svc.ReconcileBalances(ctx, true)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.True(t, report.Drifts[0].Repaired)

	assertBalanceConsistent(t, store, loan.ID)

	// a second run finds nothing left to fix
	report, err = svc.ReconcileBalances(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, report.Drifts)
}

func TestReconcileBalances_ClosesSettledLoan(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)
	ctx := context.Background()

	loan := createTestLoan(t, svc, 100, 1)
	err := store.RunInTx(ctx, func(tx repository.Store) error {
		schedule, err := tx.Schedules().ListByLoanID(ctx, loan.ID)
		if err != nil {
			return err
		}
		// settle the installment without touching the loan row
		return tx.Schedules().UpdateOutstanding(ctx, schedule[0].ID, 0, domain.RepaymentStatusRepaid, time.Now())
	})
	require.NoError(t, err)

	report, err := svc.ReconcileBalances(ctx, true)
	require.NoError(t, err)
	require.Len(t, report.Drifts, 1)
	assert.Equal(t, int64(100), report.Drifts[0].Stored)
	assert.Equal(t, int64(0), report.Drifts[0].Recomputed)

	repaired, err := store.Loans().GetByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, repaired.IsRepaid())
	assert.Equal(t, int64(0), repaired.OutstandingAmount)
}

func TestReconcileBalances_SkipsRepaidLoans(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)

	loan := createTestLoan(t, svc, 100, 1)
	_, err := pay(svc, loan.ID, 100)
	require.NoError(t, err)

	report, err := svc.ReconcileBalances(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, report.Checked)
}

func TestReconcileBalances_CanceledContext(t *testing.T) {
	store := repository.NewMemoryStore()
	svc, _ := newTestService(store)
	createTestLoan(t, svc, 1000, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.ReconcileBalances(ctx, true)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Zero(t, report.Checked)
}
