package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/metrics"
	"github.com/segyhp/loan-ledger/internal/mocks"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

func newMockedService(store *mocks.MockStore, loanCache *mocks.MockLoanCache) *LoanService {
	return NewLoanService(store, loanCache, metrics.New(prometheus.NewRegistry()), zap.NewNop(), testConfig(),
		WithClock(func() time.Time { return testNow }))
}

func TestApplyPayment_StoreErrors(t *testing.T) {
	loanID := uuid.New()
	loan := &domain.Loan{ID: loanID, Amount: 1000, OutstandingAmount: 1000, CurrencyCode: "USD", Status: domain.LoanStatusDue}
	installment := &domain.ScheduledRepayment{ID: uuid.New(), LoanID: loanID, Amount: 500, OutstandingAmount: 500, Status: domain.RepaymentStatusDue}
	dbErr := errors.New("connection reset")

	tests := []struct {
		name         string
		setupMocks   func(*mocks.MockStore)
		expectedCode string
	}{
		{
			name: "loan lookup fails",
			setupMocks: func(s *mocks.MockStore) {
				s.LoanRepo.On("GetByIDForUpdate", mock.Anything, loanID).Return(nil, dbErr)
			},
			expectedCode: customError.ErrCodeDatabaseError,
		},
		{
			name: "installment selection fails",
			setupMocks: func(s *mocks.MockStore) {
				s.LoanRepo.On("GetByIDForUpdate", mock.Anything, loanID).Return(loan, nil)
				s.ScheduleRepo.On("EarliestDue", mock.Anything, loanID).Return(nil, dbErr)
			},
			expectedCode: customError.ErrCodeDatabaseError,
		},
		{
			name: "no due installment",
			setupMocks: func(s *mocks.MockStore) {
				s.LoanRepo.On("GetByIDForUpdate", mock.Anything, loanID).Return(loan, nil)
				s.ScheduleRepo.On("EarliestDue", mock.Anything, loanID).Return(nil, repository.ErrNotFound)
			},
			expectedCode: customError.ErrCodeNoDueInstallment,
		},
		{
			name: "negative recomputed balance",
			setupMocks: func(s *mocks.MockStore) {
				s.LoanRepo.On("GetByIDForUpdate", mock.Anything, loanID).Return(loan, nil)
				s.ScheduleRepo.On("EarliestDue", mock.Anything, loanID).Return(installment, nil)
				s.ScheduleRepo.On("UpdateOutstanding", mock.Anything, installment.ID, int64(400), domain.RepaymentStatusDue, mock.Anything).Return(nil)
				s.ReceiptRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
				s.ScheduleRepo.On("SumOutstanding", mock.Anything, loanID).Return(int64(-1), nil)
			},
			expectedCode: customError.ErrCodeConsistencyViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockStore()
			tt.setupMocks(store)
			svc := newMockedService(store, &mocks.MockLoanCache{})

			installment.OutstandingAmount = 500
			installment.Status = domain.RepaymentStatusDue

			receipt, err := pay(svc, loanID, 100)

			assert.Nil(t, receipt)
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, customError.CodeOf(err))
			store.LoanRepo.AssertExpectations(t)
			store.ScheduleRepo.AssertExpectations(t)
			store.LoanRepo.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestApplyPayment_InvalidatesCache(t *testing.T) {
	loanID := uuid.New()
	loan := &domain.Loan{ID: loanID, Amount: 500, OutstandingAmount: 500, CurrencyCode: "USD", Status: domain.LoanStatusDue}
	installment := &domain.ScheduledRepayment{ID: uuid.New(), LoanID: loanID, Amount: 500, OutstandingAmount: 500, Status: domain.RepaymentStatusDue}

	store := mocks.NewMockStore()
	store.LoanRepo.On("GetByIDForUpdate", mock.Anything, loanID).Return(loan, nil)
	store.ScheduleRepo.On("EarliestDue", mock.Anything, loanID).Return(installment, nil)
	store.ScheduleRepo.On("UpdateOutstanding", mock.Anything, installment.ID, int64(0), domain.RepaymentStatusRepaid, testNow).Return(nil)
	store.ReceiptRepo.On("Create", mock.Anything, mock.MatchedBy(func(r *domain.ReceivedRepayment) bool {
		return r.Amount == 500 && r.LoanID == loanID
	})).Return(nil)
	store.ScheduleRepo.On("SumOutstanding", mock.Anything, loanID).Return(int64(0), nil)
	store.LoanRepo.On("UpdateBalance", mock.Anything, loanID, int64(0), domain.LoanStatusRepaid, testNow).Return(nil)

	loanCache := &mocks.MockLoanCache{}
	// a failing cache never fails the payment
	loanCache.On("Invalidate", mock.Anything, loanID).Return(errors.New("redis down"))

	svc := newMockedService(store, loanCache)

	receipt, err := pay(svc, loanID, 700)
	require.NoError(t, err)
	assert.Equal(t, int64(500), receipt.Amount)

	store.LoanRepo.AssertExpectations(t)
	store.ScheduleRepo.AssertExpectations(t)
	store.ReceiptRepo.AssertExpectations(t)
	loanCache.AssertExpectations(t)
}

func TestGetLoan_CacheHit(t *testing.T) {
	loanID := uuid.New()
	cached := &domain.Loan{ID: loanID, Amount: 1000, OutstandingAmount: 400}

	store := mocks.NewMockStore()
	loanCache := &mocks.MockLoanCache{}
	loanCache.On("GetLoan", mock.Anything, loanID).Return(cached, nil)

	svc := newMockedService(store, loanCache)

	loan, err := svc.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), loan.OutstandingAmount)
	store.LoanRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestGetLoan_CacheMissLoadsAndStores(t *testing.T) {
	loanID := uuid.New()
	stored := &domain.Loan{ID: loanID, Amount: 1000, OutstandingAmount: 1000}

	tests := []struct {
		name     string
		cacheErr error
	}{
		{name: "miss", cacheErr: cache.ErrCacheMiss},
		{name: "cache unavailable", cacheErr: errors.New("dial tcp: connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMockStore()
			store.LoanRepo.On("GetByID", mock.Anything, loanID).Return(stored, nil).Twice()

			loanCache := &mocks.MockLoanCache{}
			loanCache.On("GetLoan", mock.Anything, loanID).Return(nil, tt.cacheErr)
			loanCache.On("SetLoan", mock.Anything, stored).Return(nil)

			svc := newMockedService(store, loanCache)

			loan, err := svc.GetLoan(context.Background(), loanID)
			require.NoError(t, err)
			assert.Equal(t, stored.ID, loan.ID)

			// callers get their own copy
			loan.OutstandingAmount = 0
			assert.Equal(t, int64(1000), stored.OutstandingAmount)

			store.LoanRepo.AssertExpectations(t)
			loanCache.AssertExpectations(t)
		})
	}
}

func TestGetLoan_DropsSnapshotChangedDuringFill(t *testing.T) {
	loanID := uuid.New()
	before := &domain.Loan{ID: loanID, Amount: 1000, OutstandingAmount: 1000, Status: domain.LoanStatusDue}
	after := &domain.Loan{ID: loanID, Amount: 1000, OutstandingAmount: 667, Status: domain.LoanStatusDue}

	store := mocks.NewMockStore()
	store.LoanRepo.On("GetByID", mock.Anything, loanID).Return(before, nil).Once()
	store.LoanRepo.On("GetByID", mock.Anything, loanID).Return(after, nil).Once()

	loanCache := &mocks.MockLoanCache{}
	loanCache.On("GetLoan", mock.Anything, loanID).Return(nil, cache.ErrCacheMiss)
	loanCache.On("SetLoan", mock.Anything, before).Return(nil).Once()
	loanCache.On("Invalidate", mock.Anything, loanID).Return(nil).Once()

	svc := newMockedService(store, loanCache)

	loan, err := svc.GetLoan(context.Background(), loanID)
	require.NoError(t, err)
	assert.Equal(t, int64(667), loan.OutstandingAmount)

	store.LoanRepo.AssertExpectations(t)
	loanCache.AssertExpectations(t)
}

func TestGetLoan_StoreError(t *testing.T) {
	loanID := uuid.New()

	store := mocks.NewMockStore()
	store.LoanRepo.On("GetByID", mock.Anything, loanID).Return(nil, errors.New("timeout"))

	loanCache := &mocks.MockLoanCache{}
	loanCache.On("GetLoan", mock.Anything, loanID).Return(nil, cache.ErrCacheMiss)

	svc := newMockedService(store, loanCache)

	_, err := svc.GetLoan(context.Background(), loanID)
	assert.Equal(t, customError.ErrCodeDatabaseError, customError.CodeOf(err))
	loanCache.AssertNotCalled(t, "SetLoan", mock.Anything, mock.Anything)
}
