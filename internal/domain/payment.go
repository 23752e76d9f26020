package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReceivedRepayment is the append-only receipt of money applied to a loan.
type ReceivedRepayment struct {
	ID           uuid.UUID `json:"id"`
	LoanID       uuid.UUID `json:"loan_id"`
	Amount       int64     `json:"amount"`
	CurrencyCode string    `json:"currency_code"`
	ReceivedAt   time.Time `json:"received_at"`
	CreatedAt    time.Time `json:"created_at"`
}

type RepaymentRequest struct {
	Amount       int64     `json:"amount" validate:"required,gt=0"`
	CurrencyCode string    `json:"currency_code" validate:"required,len=3,iso4217"`
	ReceivedAt   time.Time `json:"received_at"`
}

type ReceiptsResponse struct {
	LoanID   uuid.UUID            `json:"loan_id"`
	Receipts []*ReceivedRepayment `json:"receipts"`
}
