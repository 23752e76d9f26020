package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/segyhp/loan-ledger/internal/domain"
	"github.com/segyhp/loan-ledger/internal/repository"
	customError "github.com/segyhp/loan-ledger/pkg/errors"
)

// ReconcileBalances recomputes the outstanding amount of every open loan from
// its installments and reports loans whose stored balance disagrees. With
// repair enabled the recomputed balance is written back under the loan lock.
// A loan that fails to reconcile is counted and does not stop the run.
func (s *LoanService) ReconcileBalances(ctx context.Context, repair bool) (*domain.ReconciliationReport, error) {
	ctx, span := s.tracer.Start(ctx, "LoanService.ReconcileBalances")
	defer span.End()

	ids, err := s.Store.Loans().ListIDsByStatus(ctx, domain.LoanStatusDue)
	if err != nil {
		return nil, s.fail(span, "reconcile", customError.WrapDatabaseError(err))
	}

	concurrency := 1
	if s.config != nil && s.config.Scheduler.Concurrency > 0 {
		concurrency = s.config.Scheduler.Concurrency
	}

	var (
		mu       sync.Mutex
		drifts   = make([]*domain.BalanceDrift, len(ids))
		failures int
		checked  int
	)

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		checked++
		i, id := i, id
		g.Go(func() error {
			drift, err := s.reconcileLoan(ctx, id, repair)
			if err != nil {
				mu.Lock()
				failures++
				mu.Unlock()
				s.logger.Error("loan reconciliation failed",
					zap.String("loan_id", id.String()),
					zap.Error(err))
				return nil
			}
			drifts[i] = drift
			return nil
		})
	}
	_ = g.Wait()

	report := &domain.ReconciliationReport{
		Checked:  checked,
		Drifts:   []domain.BalanceDrift{},
		Failures: failures,
	}
	for _, drift := range drifts {
		if drift == nil {
			continue
		}
		report.Drifts = append(report.Drifts, *drift)
		if drift.Repaired {
			s.invalidate(ctx, drift.LoanID)
		}
	}

	if s.metrics != nil {
		s.metrics.ObserveReconciliation(report.Checked, len(report.Drifts))
	}
	span.SetAttributes(
		attribute.Int("reconcile.checked", report.Checked),
		attribute.Int("reconcile.drifts", len(report.Drifts)),
		attribute.Int("reconcile.failures", report.Failures),
	)
	s.logger.Info("balance reconciliation finished",
		zap.Int("checked", report.Checked),
		zap.Int("drifts", len(report.Drifts)),
		zap.Int("failures", report.Failures),
		zap.Bool("repair", repair),
	)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// reconcileLoan returns nil when the stored balance matches the recomputed one.
func (s *LoanService) reconcileLoan(ctx context.Context, loanID uuid.UUID, repair bool) (*domain.BalanceDrift, error) {
	var drift *domain.BalanceDrift

	err := s.Store.RunInTx(ctx, func(tx repository.Store) error {
		loan, err := tx.Loans().GetByIDForUpdate(ctx, loanID)
		if err != nil {
			return err
		}

		recomputed, err := tx.Schedules().SumOutstanding(ctx, loanID)
		if err != nil {
			return err
		}
		if recomputed < 0 {
			return customError.WrapConsistencyViolation(
				"loan %s recomputed to negative outstanding %d", loanID, recomputed)
		}

		if recomputed == loan.OutstandingAmount && statusFor(recomputed) == loan.Status {
			return nil
		}

		drift = &domain.BalanceDrift{
			LoanID:     loanID,
			Stored:     loan.OutstandingAmount,
			Recomputed: recomputed,
		}
		if !repair {
			return nil
		}

		if err := tx.Loans().UpdateBalance(ctx, loanID, recomputed, statusFor(recomputed), s.now().UTC()); err != nil {
			return err
		}
		drift.Repaired = true
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		// soft-deleted after it was listed
		return nil, nil
	}
	if err != nil {
		return nil, asBusinessError(err)
	}

	if drift != nil {
		s.logger.Warn("loan balance drift",
			zap.String("loan_id", loanID.String()),
			zap.Int64("stored", drift.Stored),
			zap.Int64("recomputed", drift.Recomputed),
			zap.Bool("repaired", drift.Repaired))
	}
	return drift, nil
}
