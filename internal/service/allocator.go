package service

import "github.com/segyhp/loan-ledger/internal/domain"

// Allocate applies up to amount to the installment and returns the applied part.
//
// A payment covering the whole outstanding amount settles the installment.
// A smaller one reduces the outstanding amount and leaves the installment due,
// so the next payment lands on it again. Anything above the outstanding
// amount is not applied anywhere.
func Allocate(installment *domain.ScheduledRepayment, amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	applied := min(amount, installment.OutstandingAmount)
	if applied == installment.OutstandingAmount {
		installment.OutstandingAmount = 0
		installment.Status = domain.RepaymentStatusRepaid
		return applied
	}

	installment.OutstandingAmount -= applied
	return applied
}
