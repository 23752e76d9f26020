package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/pkg/utils"
)

type receivedRepaymentRow struct {
	ID           uuid.UUID       `db:"id"`
	LoanID       uuid.UUID       `db:"loan_id"`
	Amount       decimal.Decimal `db:"amount"`
	CurrencyCode string          `db:"currency_code"`
	ReceivedAt   time.Time       `db:"received_at"`
	CreatedAt    time.Time       `db:"created_at"`
}

type receiptRepository struct {
	db sqlx.ExtContext
}

func NewReceiptRepository(db sqlx.ExtContext) ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *domain.ReceivedRepayment) error {
	query := `
		INSERT INTO received_repayments (id, loan_id, amount, currency_code, received_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		receipt.ID,
		receipt.LoanID,
		utils.MinorUnitsToDecimal(receipt.Amount),
		receipt.CurrencyCode,
		receipt.ReceivedAt,
		receipt.CreatedAt,
	)

	return err
}

func (r *receiptRepository) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	query := `
		SELECT id, loan_id, amount, currency_code, received_at, created_at
		FROM received_repayments
		WHERE loan_id = $1
		ORDER BY received_at, created_at, id
	`

	var rows []receivedRepaymentRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, query, loanID); err != nil {
		return nil, err
	}

	receipts := make([]*domain.ReceivedRepayment, 0, len(rows))
	for _, row := range rows {
		receipts = append(receipts, &domain.ReceivedRepayment{
			ID:           row.ID,
			LoanID:       row.LoanID,
			Amount:       utils.DecimalToMinorUnits(row.Amount),
			CurrencyCode: row.CurrencyCode,
			ReceivedAt:   row.ReceivedAt,
			CreatedAt:    row.CreatedAt,
		})
	}

	return receipts, nil
}
