package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/pkg/utils"
)

type scheduledRepaymentRow struct {
	ID                uuid.UUID       `db:"id"`
	LoanID            uuid.UUID       `db:"loan_id"`
	Amount            decimal.Decimal `db:"amount"`
	OutstandingAmount decimal.Decimal `db:"outstanding_amount"`
	CurrencyCode      string          `db:"currency_code"`
	DueDate           time.Time       `db:"due_date"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func newScheduledRepaymentRow(s *domain.ScheduledRepayment) scheduledRepaymentRow {
	return scheduledRepaymentRow{
		ID:                s.ID,
		LoanID:            s.LoanID,
		Amount:            utils.MinorUnitsToDecimal(s.Amount),
		OutstandingAmount: utils.MinorUnitsToDecimal(s.OutstandingAmount),
		CurrencyCode:      s.CurrencyCode,
		DueDate:           s.DueDate,
		Status:            string(s.Status),
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func (r *scheduledRepaymentRow) toDomain() *domain.ScheduledRepayment {
	return &domain.ScheduledRepayment{
		ID:                r.ID,
		LoanID:            r.LoanID,
		Amount:            utils.DecimalToMinorUnits(r.Amount),
		OutstandingAmount: utils.DecimalToMinorUnits(r.OutstandingAmount),
		CurrencyCode:      r.CurrencyCode,
		DueDate:           r.DueDate,
		Status:            domain.RepaymentStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const scheduleColumns = `id, loan_id, amount, outstanding_amount, currency_code, due_date, status, created_at, updated_at`

type scheduleRepository struct {
	db sqlx.ExtContext
}

func NewScheduleRepository(db sqlx.ExtContext) ScheduleRepository {
	return &scheduleRepository{db: db}
}

func (r *scheduleRepository) CreateBatch(ctx context.Context, installments []*domain.ScheduledRepayment) error {
	if len(installments) == 0 {
		return nil
	}

	query := `
		INSERT INTO scheduled_repayments (` + scheduleColumns + `)
		VALUES (:id, :loan_id, :amount, :outstanding_amount, :currency_code, :due_date, :status, :created_at, :updated_at)
	`

	rows := make([]scheduledRepaymentRow, 0, len(installments))
	for _, installment := range installments {
		rows = append(rows, newScheduledRepaymentRow(installment))
	}

	_, err := sqlx.NamedExecContext(ctx, r.db, query, rows)
	return err
}

func (r *scheduleRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM scheduled_repayments
		WHERE loan_id = $1 AND deleted_at IS NULL
		ORDER BY due_date, id
	`

	var rows []scheduledRepaymentRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, loanID); err != nil {
		return nil, err
	}

	installments := make([]*domain.ScheduledRepayment, 0, len(rows))
	for i := range rows {
		installments = append(installments, rows[i].toDomain())
	}

	return installments, nil
}

func (r *scheduleRepository) EarliestDue(ctx context.Context, loanID uuid.UUID) (*domain.ScheduledRepayment, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM scheduled_repayments
		WHERE loan_id = $1 AND status = 'due' AND deleted_at IS NULL
		ORDER BY due_date, id
		LIMIT 1
		FOR UPDATE
	`

	var row scheduledRepaymentRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, loanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *scheduleRepository) UpdateOutstanding(ctx context.Context, id uuid.UUID, outstanding int64, status domain.RepaymentStatus, updatedAt time.Time) error {
	query := `
		UPDATE scheduled_repayments
		SET outstanding_amount = $2, status = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, utils.MinorUnitsToDecimal(outstanding), string(status), updatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *scheduleRepository) SumOutstanding(ctx context.Context, loanID uuid.UUID) (int64, error) {
	query := `
		SELECT COALESCE(SUM(outstanding_amount), 0)
		FROM scheduled_repayments
		WHERE loan_id = $1 AND status <> 'repaid' AND deleted_at IS NULL
	`

	var total decimal.Decimal
	if err := sqlx.GetContext(ctx, r.db, &total, query, loanID); err != nil {
		return 0, err
	}

	return utils.DecimalToMinorUnits(total), nil
}
