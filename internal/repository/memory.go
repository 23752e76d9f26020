package repository

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/segyhp/loan-ledger/internal/domain"
)

// MemoryStore is an in-process UnitOfWork used by tests and local runs.
// Units of work are serialized by a single lock and operate on a private copy
// of the state that replaces the shared one only when fn succeeds.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
}

type memoryState struct {
	loans        map[uuid.UUID]domain.Loan
	installments map[uuid.UUID]domain.ScheduledRepayment
	receipts     []domain.ReceivedRepayment
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func newMemoryState() *memoryState {
	return &memoryState{
		loans:        make(map[uuid.UUID]domain.Loan),
		installments: make(map[uuid.UUID]domain.ScheduledRepayment),
	}
}

func (st *memoryState) clone() *memoryState {
	c := &memoryState{
		loans:        make(map[uuid.UUID]domain.Loan, len(st.loans)),
		installments: make(map[uuid.UUID]domain.ScheduledRepayment, len(st.installments)),
		receipts:     make([]domain.ReceivedRepayment, len(st.receipts)),
	}
	for id, loan := range st.loans {
		c.loans[id] = loan
	}
	for id, installment := range st.installments {
		c.installments[id] = installment
	}
	copy(c.receipts, st.receipts)
	return c
}

func (s *MemoryStore) Loans() LoanRepository {
	return &memoryLoans{view: memoryView{store: s}}
}

func (s *MemoryStore) Schedules() ScheduleRepository {
	return &memorySchedules{view: memoryView{store: s}}
}

func (s *MemoryStore) Receipts() ReceiptRepository {
	return &memoryReceipts{view: memoryView{store: s}}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	if err := fn(&memoryTx{view: memoryView{state: working}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = working
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	view memoryView
}

func (t *memoryTx) Loans() LoanRepository { return &memoryLoans{view: t.view} }
func (t *memoryTx) Schedules() ScheduleRepository { return &memorySchedules{view: t.view} }
func (t *memoryTx) Receipts() ReceiptRepository { return &memoryReceipts{view: t.view} }

// memoryView reaches either a transaction's private state or the shared state
// of the store, taking the store's locks in the latter case.
type memoryView struct {
	state *memoryState
	store *MemoryStore
}

func (v memoryView) read(fn func(*memoryState) error) error {
	if v.state != nil {
		return fn(v.state)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.state)
}

func (v memoryView) write(fn func(*memoryState) error) error {
	if v.state != nil {
		return fn(v.state)
	}
	v.store.txMu.Lock()
	defer v.store.txMu.Unlock()
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.state)
}

type memoryLoans struct {
	view memoryView
}

func (r *memoryLoans) Create(ctx context.Context, loan *domain.Loan) error {
	return r.view.write(func(st *memoryState) error {
		st.loans[loan.ID] = *loan
		return nil
	})
}

func (r *memoryLoans) GetByID(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	var loan domain.Loan
	err := r.view.read(func(st *memoryState) error {
		found, ok := st.loans[id]
		if !ok {
			return ErrNotFound
		}
		loan = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *memoryLoans) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryLoans) UpdateBalance(ctx context.Context, id uuid.UUID, outstanding int64, status domain.LoanStatus, updatedAt time.Time) error {
	return r.view.write(func(st *memoryState) error {
		loan, ok := st.loans[id]
		if !ok {
			return ErrNotFound
		}
		loan.OutstandingAmount = outstanding
		loan.Status = status
		loan.UpdatedAt = updatedAt
		st.loans[id] = loan
		return nil
	})
}

func (r *memoryLoans) ListIDsByStatus(ctx context.Context, status domain.LoanStatus) ([]uuid.UUID, error) {
	var loans []domain.Loan
	_ = r.view.read(func(st *memoryState) error {
		for _, loan := range st.loans {
			if loan.Status == status {
				loans = append(loans, loan)
			}
		}
		return nil
	})

	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.Before(loans[j].CreatedAt)
		}
		return bytes.Compare(loans[i].ID[:], loans[j].ID[:]) < 0
	})

	ids := make([]uuid.UUID, 0, len(loans))
	for _, loan := range loans {
		ids = append(ids, loan.ID)
	}
	return ids, nil
}

type memorySchedules struct {
	view memoryView
}

func (r *memorySchedules) CreateBatch(ctx context.Context, installments []*domain.ScheduledRepayment) error {
	return r.view.write(func(st *memoryState) error {
		for _, installment := range installments {
			st.installments[installment.ID] = *installment
		}
		return nil
	})
}

func (r *memorySchedules) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ScheduledRepayment, error) {
	var installments []*domain.ScheduledRepayment
	_ = r.view.read(func(st *memoryState) error {
		installments = st.installmentsOf(loanID)
		return nil
	})
	return installments, nil
}

func (r *memorySchedules) EarliestDue(ctx context.Context, loanID uuid.UUID) (*domain.ScheduledRepayment, error) {
	var earliest *domain.ScheduledRepayment
	_ = r.view.read(func(st *memoryState) error {
		for _, installment := range st.installmentsOf(loanID) {
			if installment.Status == domain.RepaymentStatusDue {
				earliest = installment
				return nil
			}
		}
		return nil
	})
	if earliest == nil {
		return nil, ErrNotFound
	}
	return earliest, nil
}

func (r *memorySchedules) UpdateOutstanding(ctx context.Context, id uuid.UUID, outstanding int64, status domain.RepaymentStatus, updatedAt time.Time) error {
	return r.view.write(func(st *memoryState) error {
		installment, ok := st.installments[id]
		if !ok {
			return ErrNotFound
		}
		installment.OutstandingAmount = outstanding
		installment.Status = status
		installment.UpdatedAt = updatedAt
		st.installments[id] = installment
		return nil
	})
}

func (r *memorySchedules) SumOutstanding(ctx context.Context, loanID uuid.UUID) (int64, error) {
	var total int64
	_ = r.view.read(func(st *memoryState) error {
		total = domain.SumOutstanding(st.installmentsOf(loanID))
		return nil
	})
	return total, nil
}

// installmentsOf returns copies of a loan's installments ordered by due date, then ID.
func (st *memoryState) installmentsOf(loanID uuid.UUID) []*domain.ScheduledRepayment {
	var installments []*domain.ScheduledRepayment
	for _, installment := range st.installments {
		if installment.LoanID == loanID {
			c := installment
			installments = append(installments, &c)
		}
	}

	sort.Slice(installments, func(i, j int) bool {
		if !installments[i].DueDate.Equal(installments[j].DueDate) {
			return installments[i].DueDate.Before(installments[j].DueDate)
		}
		return bytes.Compare(installments[i].ID[:], installments[j].ID[:]) < 0
	})
	return installments
}

type memoryReceipts struct {
	view memoryView
}

func (r *memoryReceipts) Create(ctx context.Context, receipt *domain.ReceivedRepayment) error {
	return r.view.write(func(st *memoryState) error {
		st.receipts = append(st.receipts, *receipt)
		return nil
	})
}

func (r *memoryReceipts) ListByLoanID(ctx context.Context, loanID uuid.UUID) ([]*domain.ReceivedRepayment, error) {
	var receipts []*domain.ReceivedRepayment
	_ = r.view.read(func(st *memoryState) error {
		for _, receipt := range st.receipts {
			if receipt.LoanID == loanID {
				c := receipt
				receipts = append(receipts, &c)
			}
		}
		return nil
	})

	sort.SliceStable(receipts, func(i, j int) bool {
		return receipts[i].ReceivedAt.Before(receipts[j].ReceivedAt)
	})
	return receipts, nil
}
