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

type loanRow struct {
	ID                uuid.UUID       `db:"id"`
	UserID            uuid.UUID       `db:"user_id"`
	Amount            decimal.Decimal `db:"amount"`
	Terms             int             `db:"terms"`
	OutstandingAmount decimal.Decimal `db:"outstanding_amount"`
	CurrencyCode      string          `db:"currency_code"`
	ProcessedAt       time.Time       `db:"processed_at"`
	Status            string          `db:"status"`
	CreatedAt         time.Time       `db:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

func (r *loanRow) toDomain() *domain.Loan {
	return &domain.Loan{
		ID:                r.ID,
		UserID:            r.UserID,
		Amount:            utils.DecimalToMinorUnits(r.Amount),
		Terms:             r.Terms,
		OutstandingAmount: utils.DecimalToMinorUnits(r.OutstandingAmount),
		CurrencyCode:      r.CurrencyCode,
		ProcessedAt:       r.ProcessedAt,
		Status:            domain.LoanStatus(r.Status),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

const loanColumns = `id, user_id, amount, terms, outstanding_amount, currency_code, processed_at, status, created_at, updated_at`

type loanRepository struct {
	db sqlx.ExtContext
}

func NewLoanRepository(db sqlx.ExtContext) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *domain.Loan) error {
	query := `
		INSERT INTO loans (` + loanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		loan.ID,
		loan.UserID,
		utils.MinorUnitsToDecimal(loan.Amount),
		loan.Terms,
		utils.MinorUnitsToDecimal(loan.OutstandingAmount),
		loan.CurrencyCode,
		loan.ProcessedAt,
		string(loan.Status),
		loan.CreatedAt,
		loan.UpdatedAt,
	)

	return err
}

func (r *loanRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.get(ctx, query, id)
}

func (r *loanRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	query := `
		SELECT ` + loanColumns + `
		FROM loans
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`
	return r.get(ctx, query, id)
}

func (r *loanRepository) get(ctx context.Context, query string, id uuid.UUID) (*domain.Loan, error) {
	var row loanRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return row.toDomain(), nil
}

func (r *loanRepository) UpdateBalance(ctx context.Context, id uuid.UUID, outstanding int64, status domain.LoanStatus, updatedAt time.Time) error {
	query := `
		UPDATE loans
		SET outstanding_amount = $2, status = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, utils.MinorUnitsToDecimal(outstanding), string(status), updatedAt)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (r *loanRepository) ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM loans
		WHERE status = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`

	var ids []uuid.UUID
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, string(status)); err != nil {
		return nil, err
	}

	return ids, nil
}
