package domain

import (
	"time"

	"github.com/google/uuid"
)

// RepaymentStatus is the state of a single installment.
type RepaymentStatus string

// Installments move from due to repaid. A partially paid installment keeps
// the due status with a reduced outstanding amount; partial is part of the
// stored enum but no allocation path writes it.
const (
	RepaymentStatusDue     RepaymentStatus = "due"
	RepaymentStatusPartial RepaymentStatus = "partial"
	RepaymentStatusRepaid  RepaymentStatus = "repaid"
)

// ScheduledRepayment represents one installment of a loan schedule.
// Amount and DueDate never change after creation.
type ScheduledRepayment struct {
	ID                uuid.UUID       `json:"id"`
	LoanID            uuid.UUID       `json:"loan_id"`
	Amount            int64           `json:"amount"`
	OutstandingAmount int64           `json:"outstanding_amount"`
	CurrencyCode      string          `json:"currency_code"`
	DueDate           time.Time       `json:"due_date"`
	Status            RepaymentStatus `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (r *ScheduledRepayment) IsRepaid() bool {
	return r.Status == RepaymentStatusRepaid
}

type ScheduleResponse struct {
	LoanID   uuid.UUID             `json:"loan_id"`
	Schedule []*ScheduledRepayment `json:"schedule"`
}

// SumOutstanding recomputes a loan balance from its installments: the sum of
// outstanding amounts over every installment that is not repaid.
func SumOutstanding(installments []*ScheduledRepayment) int64 {
	var total int64
	for _, installment := range installments {
		if installment.IsRepaid() {
			continue
		}
		total += installment.OutstandingAmount
	}
	return total
}

// SumAmounts returns the total scheduled amount of the installments.
func SumAmounts(installments []*ScheduledRepayment) int64 {
	var total int64
	for _, installment := range installments {
		total += installment.Amount
	}
	return total
}
