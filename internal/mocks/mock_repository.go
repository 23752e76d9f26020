package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
)

type MockLoanRepository struct {
	mock.Mock
}

func (m *MockLoanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanRepository) UpdateBalance(ctx context.Context, id uuid.UUID, outstanding int64, status domain.LoanStatus, updatedAt time.Time) error {
	args := m.Called(ctx, id, outstanding, status, updatedAt)
	return args.Error(0)
}

func (m *MockLoanRepository) ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]uuid.UUID, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) CreateBatch(ctx context.Context, installments []*domain.ScheduledRepayment) error {
	args := m.Called(ctx, installments)
	return args.Error(0)
}

func (m *MockScheduleRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockScheduleRepository) EarliestDue(ctx context.Context, loanID uuid.UUID) (*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockScheduleRepository) UpdateOutstanding(ctx context.Context, id uuid.UUID, outstanding int64, status domain.RepaymentStatus, updatedAt time.Time) error {
	args := m.Called(ctx, id, outstanding, status, updatedAt)
	return args.Error(0)
}

func (m *MockScheduleRepository) SumOutstanding(ctx context.Context, loanID uuid.UUID) (int64, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).(int64), args.Error(1)
}

type MockReceiptRepository struct {
	mock.Mock
}

func (m *MockReceiptRepository) Create(ctx context.Context, receipt *domain.ReceivedRepayment) error {
	args := m.Called(ctx, receipt)
	return args.Error(0)
}

func (m *MockReceiptRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReceivedRepayment), args.Error(1)
}

// MockStore hands out the mock repositories and runs transactions inline
// against the same repositories.
type MockStore struct {
	mock.Mock
	LoanRepo     *MockLoanRepository
	ScheduleRepo *MockScheduleRepository
	ReceiptRepo  *MockReceiptRepository
}

func NewMockStore() *MockStore {
	return &MockStore{
		LoanRepo:     &MockLoanRepository{},
		ScheduleRepo: &MockScheduleRepository{},
		ReceiptRepo:  &MockReceiptRepository{},
	}
}

func (m *MockStore) Loans() repository.LoanRepository {
	return m.LoanRepo
}

func (m *MockStore) Schedules() repository.ScheduleRepository {
	return m.ScheduleRepo
}

func (m *MockStore) Receipts() repository.ReceiptRepository {
	return m.ReceiptRepo
}

func (m *MockStore) RunInTx(ctx context.Context, fn func(repository.Store) error) error {
	return fn(m)
}
