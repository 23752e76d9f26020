//go:build integration

package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/segyhp/loan-ledger/internal/domain"
)

type PostgresStoreSuite struct {
	suite.Suite
	container *tcpostgres.PostgresContainer
	db        *sqlx.DB
	store     *PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("loan_ledger"),
		tcpostgres.WithUsername("ledger"),
		tcpostgres.WithPassword("ledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = sqlx.Connect("postgres", dsn)
	s.Require().NoError(err)
	s.Require().NoError(Migrate(ctx, s.db))

	// applying the schema twice is a no-op
	s.Require().NoError(Migrate(ctx, s.db))

	s.store = NewPostgresStore(s.db, 10*time.Second)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.container != nil {
		_ = testcontainers.TerminateContainer(s.container)
	}
}

func (s *PostgresStoreSuite) seed(ctx context.Context, amounts ...int64) (*domain.Loan, []*domain.ScheduledRepayment) {
	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	var total int64
	for _, amount := range amounts {
		total += amount
	}

	loan := &domain.Loan{
		ID:                uuid.New(),
		UserID:            uuid.New(),
		Amount:            total,
		Terms:             len(amounts),
		OutstandingAmount: total,
		CurrencyCode:      "USD",
		ProcessedAt:       start,
		Status:            domain.LoanStatusDue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	installments := make([]*domain.ScheduledRepayment, 0, len(amounts))
	for i, amount := range amounts {
		installments = append(installments, &domain.ScheduledRepayment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			Amount:            amount,
			OutstandingAmount: amount,
			CurrencyCode:      "USD",
			DueDate:           start.AddDate(0, i+1, 0),
			Status:            domain.RepaymentStatusDue,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	err := s.store.RunInTx(ctx, func(tx Store) error {
		if err := tx.Loans().Create(ctx, loan); err != nil {
			return err
		}
		return tx.Schedules().CreateBatch(ctx, installments)
	})
	s.Require().NoError(err)

	return loan, installments
}

func (s *PostgresStoreSuite) TestCreateAndRead() {
	ctx := context.Background()
	loan, installments := s.seed(ctx, 333, 333, 334)

	got, err := s.store.Loans().GetByID(ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), got.Amount)
	s.Equal(int64(1000), got.OutstandingAmount)
	s.Equal("USD", got.CurrencyCode)
	s.Equal(domain.LoanStatusDue, got.Status)

	listed, err := s.store.Schedules().ListByLoanID(ctx, loan.ID)
	s.Require().NoError(err)
	s.Require().Len(listed, 3)
	for i, installment := range listed {
		s.Equal(installments[i].ID, installment.ID)
		s.Equal(installments[i].Amount, installment.Amount)
	}

	sum, err := s.store.Schedules().SumOutstanding(ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), sum)
}

func (s *PostgresStoreSuite) TestGetByID_NotFound() {
	_, err := s.store.Loans().GetByID(context.Background(), uuid.New())
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestRollbackDiscardsWrites() {
	ctx := context.Background()
	loan, installments := s.seed(ctx, 500, 500)

	err := s.store.RunInTx(ctx, func(tx Store) error {
		if err := tx.Schedules().UpdateOutstanding(ctx, installments[0].ID, 0, domain.RepaymentStatusRepaid, time.Now()); err != nil {
			return err
		}
		// the foreign key rejects a receipt for an unknown loan
		return tx.Receipts().Create(ctx, &domain.ReceivedRepayment{
			ID: uuid.New(), LoanID: uuid.New(), Amount: 500, CurrencyCode: "USD",
			ReceivedAt: time.Now(), CreatedAt: time.Now(),
		})
	})
	s.Require().Error(err)

	sum, err := s.store.Schedules().SumOutstanding(ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), sum)
}

func (s *PostgresStoreSuite) TestEarliestDueSerializesOnLoanLock() {
	ctx := context.Background()
	loan, _ := s.seed(ctx, 500, 500)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.store.RunInTx(ctx, func(tx Store) error {
				if _, err := tx.Loans().GetByIDForUpdate(ctx, loan.ID); err != nil {
					return err
				}
				installment, err := tx.Schedules().EarliestDue(ctx, loan.ID)
				if err != nil {
					return err
				}
				if err := tx.Schedules().UpdateOutstanding(ctx, installment.ID, 0, domain.RepaymentStatusRepaid, time.Now()); err != nil {
					return err
				}
				sum, err := tx.Schedules().SumOutstanding(ctx, loan.ID)
				if err != nil {
					return err
				}
				return tx.Loans().UpdateBalance(ctx, loan.ID, sum, domain.LoanStatusDue, time.Now())
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	// each transaction settled a different installment
	sum, err := s.store.Schedules().SumOutstanding(ctx, loan.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), sum)

	_, err = s.store.Schedules().EarliestDue(ctx, loan.ID)
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestReceiptsListedOldestFirst() {
	ctx := context.Background()
	loan, _ := s.seed(ctx, 1000)
	now := time.Now().UTC().Truncate(time.Microsecond)

	later := &domain.ReceivedRepayment{ID: uuid.New(), LoanID: loan.ID, Amount: 200, CurrencyCode: "USD", ReceivedAt: now.Add(time.Hour), CreatedAt: now}
	earlier := &domain.ReceivedRepayment{ID: uuid.New(), LoanID: loan.ID, Amount: 100, CurrencyCode: "USD", ReceivedAt: now, CreatedAt: now}
	s.Require().NoError(s.store.Receipts().Create(ctx, later))
	s.Require().NoError(s.store.Receipts().Create(ctx, earlier))

	receipts, err := s.store.Receipts().ListByLoanID(ctx, loan.ID)
	s.Require().NoError(err)
	s.Require().Len(receipts, 2)
	s.Equal(earlier.ID, receipts[0].ID)
	s.Equal(int64(200), receipts[1].Amount)
}
