package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/loan-ledger/internal/domain"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
	"github.com/segyhp/loan-ledger/pkg/utils"
)

// GenerateSchedule splits principal into terms monthly installments.
//
// Every installment but the last is floor(principal / terms); the last one
// takes the remainder, so the amounts always sum to principal. Installment i
// (1-indexed) is due i months after startDate, clamped to the end of shorter
// months. All installments start out due with their full amount outstanding.
func GenerateSchedule(loanID uuid.UUID, principal int64, terms int, currencyCode string, startDate time.Time) ([]*domain.ScheduledRepayment, error) {
	if principal <= 0 {
		return nil, customError.WrapInvalidArgument("principal must be positive, got %d", principal)
	}
	if terms <= 0 {
		return nil, customError.WrapInvalidArgument("terms must be positive, got %d", terms)
	}
	if principal < int64(terms) {
		return nil, customError.WrapInvalidArgument("principal %d is too small to split into %d installments", principal, terms)
	}

	amounts := utils.SplitAmount(principal, terms)
	schedule := make([]*domain.ScheduledRepayment, 0, terms)

	for i, amount := range amounts {
		schedule = append(schedule, &domain.ScheduledRepayment{
			ID:                uuid.New(),
			LoanID:            loanID,
			Amount:            amount,
			OutstandingAmount: amount,
			CurrencyCode:      currencyCode,
			DueDate:           utils.CalculateDueDate(startDate, i+1),
			Status:            domain.RepaymentStatusDue,
		})
	}

	if total := domain.SumAmounts(schedule); total != principal {
		return nil, customError.WrapConsistencyViolation(
			"schedule for loan %s sums to %d instead of %d", loanID, total, principal)
	}

	return schedule, nil
}
