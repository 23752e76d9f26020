package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/loan-ledger/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist or is soft-deleted.
var ErrNotFound = errors.New("record not found")

// LoanRepository defines the interface for loan data operations
type LoanRepository interface {
	// Create creates a new loan
	Create(ctx context.Context, loan *domain.Loan) error

	// GetByID retrieves a loan by its ID
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// GetByIDForUpdate retrieves a loan and locks its row until the unit of work ends
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error)

	// UpdateBalance writes a recomputed outstanding amount and status
	UpdateBalance(ctx context.Context, id uuid.UUID, outstanding int64, status domain.LoanStatus, updatedAt time.Time) error

	// ListIDsByStatus lists the IDs of every loan in the given status
	ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]uuid.UUID, error)
}

// ScheduleRepository defines the interface for installment data operations
type ScheduleRepository interface {
	// CreateBatch inserts all installments of a schedule at once
	CreateBatch(ctx context.Context, installments []*domain.ScheduledRepayment) error

	// ListByLoanID retrieves a loan's installments ordered by due date
	ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error)

	// EarliestDue locks and returns the due installment with the earliest due date
	EarliestDue(ctx context.Context, loanID uuid.UUID) (*domain.ScheduledRepayment, error)

	// UpdateOutstanding writes the remaining amount and status of one installment
	UpdateOutstanding(ctx context.Context, id uuid.UUID, outstanding int64, status domain.RepaymentStatus, updatedAt time.Time) error

	// SumOutstanding sums the outstanding amount of a loan's installments that are not repaid
	SumOutstanding(ctx context.Context, loanID uuid.UUID) (int64, error)
}

// ReceiptRepository defines the interface for received payment operations
type ReceiptRepository interface {
	// Create appends a payment receipt
	Create(ctx context.Context, receipt *domain.ReceivedRepayment) error

	// ListByLoanID retrieves all receipts for a loan, oldest first
	ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error)
}

// Store groups the repositories of one connection or transaction.
type Store interface {
	Loans() LoanRepository
	Schedules() ScheduleRepository
	Receipts() ReceiptRepository
}

// Transactor runs fn inside a unit of work. Everything fn writes through the
// given Store is committed when fn returns nil and discarded otherwise.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(Store) error) error
}

// UnitOfWork is a Store that can also open transactions.
type UnitOfWork interface {
	Store
	Transactor
}
