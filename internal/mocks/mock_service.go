package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/segyhp/loan-ledger/internal/domain"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.Loan), args.Get(1).([]*domain.ScheduledRepayment), args.Error(2)
}

func (m *MockLoanService) ApplyPayment(ctx context.Context, loanID uuid.UUID, request *domain.RepaymentRequest) (*domain.ReceivedRepayment, error) {
	args := m.Called(ctx, loanID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ReceivedRepayment), args.Error(1)
}

func (m *MockLoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanService) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ScheduledRepayment), args.Error(1)
}

func (m *MockLoanService) GetOutstanding(ctx context.Context, loanID uuid.UUID) (*domain.OutstandingResponse, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutstandingResponse), args.Error(1)
}

func (m *MockLoanService) ListReceipts(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ReceivedRepayment), args.Error(1)
}

type MockLoanCache struct {
	mock.Mock
}

func (m *MockLoanCache) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Loan), args.Error(1)
}

func (m *MockLoanCache) SetLoan(ctx context.Context, loan *domain.Loan) error {
	args := m.Called(ctx, loan)
	return args.Error(0)
}

func (m *MockLoanCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
