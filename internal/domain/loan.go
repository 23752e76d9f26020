package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanStatusDue    LoanStatus = "due"
	LoanStatusRepaid LoanStatus = "repaid"
)

// Loan represents a loan entity.
// Amounts are in minor currency units. OutstandingAmount is derived from the
// loan's installments and is only ever written as a recomputed total.
type Loan struct {
	ID                uuid.UUID  `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	Amount            int64      `json:"amount"`
	Terms             int        `json:"terms"`
	OutstandingAmount int64      `json:"outstanding_amount"`
	CurrencyCode      string     `json:"currency_code"`
	ProcessedAt       time.Time  `json:"processed_at"`
	Status            LoanStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsRepaid reports whether nothing is left to pay on the loan.
func (l *Loan) IsRepaid() bool {
	return l.Status == LoanStatusRepaid
}

// DTOs for requests and responses

type CreateLoanRequest struct {
	UserID       uuid.UUID `json:"user_id" validate:"required"`
	Amount       int64     `json:"amount" validate:"required,gt=0"`
	CurrencyCode string    `json:"currency_code" validate:"omitempty,len=3,iso4217"`
	Terms        int       `json:"terms" validate:"required,gt=0"`
	ProcessedAt  time.Time `json:"processed_at" validate:"required"`
}

// DateLayout is the calendar-date form accepted for processed_at.
const DateLayout = "2006-01-02"

// UnmarshalJSON accepts processed_at either as a date ("2024-01-15") or as an
// RFC3339 timestamp.
func (r *CreateLoanRequest) UnmarshalJSON(data []byte) error {
	type plain CreateLoanRequest
	aux := struct {
		*plain
		ProcessedAt string `json:"processed_at"`
	}{plain: (*plain)(r)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	processedAt, err := parseDateOrTimestamp(aux.ProcessedAt)
	if err != nil {
		return err
	}
	r.ProcessedAt = processedAt
	return nil
}

func parseDateOrTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("processed_at must be YYYY-MM-DD or RFC3339, got %q", value)
	}
	return t, nil
}

type CreateLoanResponse struct {
	Loan     *Loan                 `json:"loan"`
	Schedule []*ScheduledRepayment `json:"schedule"`
}

type OutstandingResponse struct {
	LoanID            uuid.UUID           `json:"loan_id"`
	OutstandingAmount int64               `json:"outstanding_amount"`
	CurrencyCode      string              `json:"currency_code"`
	Status            LoanStatus          `json:"status"`
	NextDue           *ScheduledRepayment `json:"next_due,omitempty"`
	OverdueCount      int                 `json:"overdue_count"`
}

// BalanceDrift describes a loan whose stored outstanding amount disagrees with
// the sum recomputed from its installments.
type BalanceDrift struct {
	LoanID     uuid.UUID `json:"loan_id"`
	Stored     int64     `json:"stored"`
	Recomputed int64     `json:"recomputed"`
	Repaired   bool      `json:"repaired"`
}

type ReconciliationReport struct {
	Checked  int            `json:"checked"`
	Drifts   []BalanceDrift `json:"drifts"`
	Failures int            `json:"failures"`
}
