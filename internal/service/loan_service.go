package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/segyhp/loan-ledger/internal/cache"
	"github.com/segyhp/loan-ledger/internal/config"
	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/metrics"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/utils"
)

const tracerName = "github.com/segyhp/loan-ledger/internal/service"

type LoanService struct {
	Store   repository.UnitOfWork
	Cache   cache.LoanCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	config  *config.Config
	tracer  trace.Tracer
	now     func() time.Time
	loads   singleflight.Group
}

// Option configures a LoanService.
type Option func(*LoanService)

// WithClock replaces the wall clock used for timestamps and overdue checks.
func WithClock(now func() time.Time) Option {
	return func(s *LoanService) {
		s.now = now
	}
}

func NewLoanService(
	store repository.UnitOfWork,
	loanCache cache.LoanCache,
	m *metrics.Metrics,
	logger *zap.Logger,
	config *config.Config,
	opts ...Option,
) *LoanService {
	if loanCache == nil {
		loanCache = cache.NoopCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &LoanService{
		Store:   store,
		Cache:   loanCache,
		metrics: m,
		logger:  logger,
		config:  config,
		tracer:  otel.Tracer(tracerName),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateLoan originates a loan and persists it together with its schedule.
func (s *LoanService) CreateLoan(ctx context.Context, request *domain.CreateLoanRequest) (*domain.Loan, []*domain.ScheduledRepayment, error) {
	ctx, span := s.tracer.Start(ctx, "LoanService.CreateLoan")
	defer span.End()

	if err := s.validateCreateLoan(request); err != nil {
		return nil, nil, s.fail(span, "create_loan", err)
	}

	now := s.now().UTC()
	loan := &domain.Loan{
		ID:                uuid.New(),
		UserID:            request.UserID,
		Amount:            request.Amount,
		Terms:             request.Terms,
		OutstandingAmount: request.Amount,
		CurrencyCode:      strings.ToUpper(s.loanCurrency(request.CurrencyCode)),
		ProcessedAt:       utils.TruncateToDate(request.ProcessedAt),
		Status:            domain.LoanStatusDue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	span.SetAttributes(attribute.String("loan.id", loan.ID.String()))

	schedule, err := GenerateSchedule(loan.ID, loan.Amount, loan.Terms, loan.CurrencyCode, loan.ProcessedAt)
	if err != nil {
		return nil, nil, s.fail(span, "create_loan", err)
	}
	for _, installment := range schedule {
		installment.CreatedAt = now
		installment.UpdatedAt = now
	}

	err = s.Store.RunInTx(ctx, func(tx repository.Store) error {
		if err := tx.Loans().Create(ctx, loan); err != nil {
			return err
		}
		return tx.Schedules().CreateBatch(ctx, schedule)
	})
	if err != nil {
		return nil, nil, s.fail(span, "create_loan", asBusinessError(err))
	}

	if s.metrics != nil {
		s.metrics.IncrementLoansCreated()
	}
	s.logger.Info("loan created",
		zap.String("loan_id", loan.ID.String()),
		zap.String("user_id", loan.UserID.String()),
		zap.Int64("amount", loan.Amount),
		zap.String("currency", loan.CurrencyCode),
		zap.Int("terms", loan.Terms),
	)

	return loan, schedule, nil
}

func (s *LoanService) validateCreateLoan(request *domain.CreateLoanRequest) error {
	if request == nil {
		return customError.WrapInvalidArgument("request is required")
	}
	if request.UserID == uuid.Nil {
		return customError.WrapInvalidArgument("user_id is required")
	}
	if request.Amount <= 0 {
		return customError.WrapInvalidArgument("amount must be positive, got %d", request.Amount)
	}
	if request.Terms <= 0 {
		return customError.WrapInvalidArgument("terms must be positive, got %d", request.Terms)
	}
	if s.config != nil && request.Terms > s.config.Business.MaxTerms {
		return customError.WrapInvalidArgument("terms must not exceed %d, got %d", s.config.Business.MaxTerms, request.Terms)
	}
	if currency := s.loanCurrency(request.CurrencyCode); len(currency) != 3 {
		return customError.WrapInvalidArgument("currency_code must be a 3-letter code, got %q", currency)
	}
	if request.ProcessedAt.IsZero() {
		return customError.WrapInvalidArgument("processed_at is required")
	}
	return nil
}

// loanCurrency falls back to the configured default currency.
func (s *LoanService) loanCurrency(requested string) string {
	if requested == "" && s.config != nil {
		return s.config.Business.DefaultCurrency
	}
	return requested
}

// ApplyPayment allocates a payment to the earliest due installment of a loan.
// The installment update, the receipt and the recomputed loan balance are
// written in one unit of work that holds the loan's row lock.
func (s *LoanService) ApplyPayment(ctx context.Context, loanID uuid.UUID, request *domain.RepaymentRequest) (*domain.ReceivedRepayment, error) {
	ctx, span := s.tracer.Start(ctx, "LoanService.ApplyPayment",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())))
	defer span.End()

	if request == nil {
		return nil, s.fail(span, "apply_payment", customError.WrapInvalidArgument("request is required"))
	}
	if request.Amount <= 0 {
		return nil, s.fail(span, "apply_payment", customError.WrapInvalidArgument("amount must be positive, got %d", request.Amount))
	}

	now := s.now().UTC()
	receivedAt := request.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}

	var (
		receipt            *domain.ReceivedRepayment
		installment        *domain.ScheduledRepayment
		outstanding        int64
		installmentSettled bool
	)

	err := s.Store.RunInTx(ctx, func(tx repository.Store) error {
		loan, err := tx.Loans().GetByIDForUpdate(ctx, loanID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapLoanNotFound(loanID.String())
		}
		if err != nil {
			return err
		}

		installment, err = tx.Schedules().EarliestDue(ctx, loanID)
		if errors.Is(err, repository.ErrNotFound) {
			return customError.WrapNoDueInstallment(loanID.String())
		}
		if err != nil {
			return err
		}

		applied := Allocate(installment, request.Amount)
		installmentSettled = installment.IsRepaid()
		if err := tx.Schedules().UpdateOutstanding(ctx, installment.ID, installment.OutstandingAmount, installment.Status, now); err != nil {
			return err
		}

		currency := request.CurrencyCode
		if currency == "" {
			currency = loan.CurrencyCode
		}
		receipt = &domain.ReceivedRepayment{
			ID:           uuid.New(),
			LoanID:       loanID,
			Amount:       applied,
			CurrencyCode: strings.ToUpper(currency),
			ReceivedAt:   receivedAt,
			CreatedAt:    now,
		}
		if err := tx.Receipts().Create(ctx, receipt); err != nil {
			return err
		}

		outstanding, err = s.recomputeBalance(ctx, tx, loan, now)
		return err
	})
	if err != nil {
		return nil, s.fail(span, "apply_payment", asBusinessError(err))
	}

	s.invalidate(ctx, loanID)
	if s.metrics != nil {
		s.metrics.ObservePayment(receipt.CurrencyCode, receipt.Amount, installmentSettled)
	}
	s.logger.Info("payment applied",
		zap.String("loan_id", loanID.String()),
		zap.String("installment_id", installment.ID.String()),
		zap.Int64("requested", request.Amount),
		zap.Int64("applied", receipt.Amount),
		zap.Int64("outstanding", outstanding),
	)

	return receipt, nil
}

// recomputeBalance sums the loan's open installments and writes the result
// back to the loan, closing it once nothing is left.
func (s *LoanService) recomputeBalance(ctx context.Context, tx repository.Store, loan *domain.Loan, now time.Time) (int64, error) {
	outstanding, err := tx.Schedules().SumOutstanding(ctx, loan.ID)
	if err != nil {
		return 0, err
	}
	if outstanding < 0 {
		return 0, customError.WrapConsistencyViolation(
			"loan %s recomputed to negative outstanding %d", loan.ID, outstanding)
	}

	if err := tx.Loans().UpdateBalance(ctx, loan.ID, outstanding, statusFor(outstanding), now); err != nil {
		return 0, err
	}
	return outstanding, nil
}

func statusFor(outstanding int64) domain.LoanStatus {
	if outstanding == 0 {
		return domain.LoanStatusRepaid
	}
	return domain.LoanStatusDue
}

// GetLoan returns a loan, reading through the cache.
func (s *LoanService) GetLoan(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "LoanService.GetLoan",
		trace.WithAttributes(attribute.String("loan.id", loanID.String())))
	defer span.End()

	cached, err := s.Cache.GetLoan(ctx, loanID)
	if err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("loan cache read failed",
			zap.String("loan_id", loanID.String()),
			zap.Error(customError.WrapCacheError(err)))
	}

	// The shared load is detached from the first caller; each caller still
	// stops waiting when its own context ends.
	loadCtx := context.WithoutCancel(ctx)
	results := s.loads.DoChan(loanID.String(), func() (any, error) {
		ctx, cancel := context.WithTimeout(loadCtx, s.loadTimeout())
		defer cancel()
		return s.loadAndCache(ctx, loanID)
	})

	var v any
	select {
	case <-ctx.Done():
		return nil, s.fail(span, "get_loan", ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, s.fail(span, "get_loan", res.Err)
		}
		v = res.Val
	}

	loan := *v.(*domain.Loan)
	return &loan, nil
}

// loadAndCache reads a loan, stores its snapshot and reads the loan again.
// A payment committed in between has already invalidated the key, so a
// changed row means the snapshot just written is stale and is dropped.
func (s *LoanService) loadAndCache(ctx context.Context, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := s.loadLoan(ctx, s.Store, loanID)
	if err != nil {
		return nil, err
	}

	if err := s.Cache.SetLoan(ctx, loan); err != nil {
		s.logger.Warn("loan cache write failed",
			zap.String("loan_id", loanID.String()),
			zap.Error(customError.WrapCacheError(err)))
		return loan, nil
	}

	current, err := s.loadLoan(ctx, s.Store, loanID)
	if err != nil {
		s.invalidate(ctx, loanID)
		return loan, nil
	}
	if !sameSnapshot(loan, current) {
		s.invalidate(ctx, loanID)
		return current, nil
	}
	return loan, nil
}

func (s *LoanService) loadTimeout() time.Duration {
	if s.config != nil && s.config.Database.TxTimeout > 0 {
		return s.config.Database.TxTimeout
	}
	return repository.DefaultTxTimeout
}

func sameSnapshot(a, b *domain.Loan) bool {
	return a.OutstandingAmount == b.OutstandingAmount &&
		a.Status == b.Status &&
		a.UpdatedAt.Equal(b.UpdatedAt)
}

// GetSchedule returns a loan's installments ordered by due date.
func (s *LoanService) GetSchedule(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	if _, err := s.loadLoan(ctx, s.Store, loanID); err != nil {
		return nil, err
	}

	schedule, err := s.Store.Schedules().ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return schedule, nil
}

// GetOutstanding reports what is left to pay on a loan, its next due
// installment and how many open installments are past their due date.
func (s *LoanService) GetOutstanding(ctx context.Context, loanID uuid.UUID) (*domain.OutstandingResponse, error) {
	loan, err := s.loadLoan(ctx, s.Store, loanID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.Store.Schedules().ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	resp := &domain.OutstandingResponse{
		LoanID:            loan.ID,
		OutstandingAmount: loan.OutstandingAmount,
		CurrencyCode:      loan.CurrencyCode,
		Status:            loan.Status,
	}

	now := s.now()
	for _, installment := range schedule {
		if installment.IsRepaid() {
			continue
		}
		if resp.NextDue == nil && installment.Status == domain.RepaymentStatusDue {
			resp.NextDue = installment
		}
		if utils.IsDateOverdue(installment.DueDate, now) {
			resp.OverdueCount++
		}
	}

	return resp, nil
}

// ListReceipts returns every payment recorded against a loan, oldest first.
func (s *LoanService) ListReceipts(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	if _, err := s.loadLoan(ctx, s.Store, loanID); err != nil {
		return nil, err
	}

	receipts, err := s.Store.Receipts().ListByLoanID(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return receipts, nil
}

func (s *LoanService) loadLoan(ctx context.Context, store repository.Store, loanID uuid.UUID) (*domain.Loan, error) {
	loan, err := store.Loans().GetByID(ctx, loanID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapLoanNotFound(loanID.String())
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return loan, nil
}

func (s *LoanService) invalidate(ctx context.Context, loanID uuid.UUID) {
	if err := s.Cache.Invalidate(ctx, loanID); err != nil {
		s.logger.Warn("loan cache invalidation failed",
			zap.String("loan_id", loanID.String()),
			zap.Error(customError.WrapCacheError(err)))
	}
}

// fail records a failed operation on the span, the metrics and the log.
func (s *LoanService) fail(span trace.Span, operation string, err error) error {
	code := customError.CodeOf(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, code)

	if s.metrics != nil {
		s.metrics.IncrementFailure(operation, code)
	}

	switch code {
	case customError.ErrCodeConsistencyViolation, customError.ErrCodeDatabaseError, customError.ErrCodeInternal:
		s.logger.Error("ledger operation failed",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err))
	default:
		s.logger.Debug("ledger operation rejected",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err))
	}

	return err
}

// asBusinessError keeps business errors and wraps anything else as a store failure.
func asBusinessError(err error) error {
	var be *customError.BusinessError
	if errors.As(err, &be) {
		return err
	}
	return customError.WrapDatabaseError(err)
}
