package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schema string

// DefaultTxTimeout bounds a unit of work whose context carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// Migrate creates the ledger tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore implements UnitOfWork on top of a PostgreSQL pool.
type PostgresStore struct {
	db        *sqlx.DB
	txTimeout time.Duration
}

func NewPostgresStore(db *sqlx.DB, txTimeout time.Duration) *PostgresStore {
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &PostgresStore{db: db, txTimeout: txTimeout}
}

func (s *PostgresStore) Loans() LoanRepository {
	return NewLoanRepository(s.db)
}

func (s *PostgresStore) Schedules() ScheduleRepository {
	return NewScheduleRepository(s.db)
}

func (s *PostgresStore) Receipts() ReceiptRepository {
	return NewReceiptRepository(s.db)
}

// RunInTx runs fn in a READ COMMITTED transaction. Row locks taken through the
// transactional store are held until fn returns.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txStore struct {
	tx *sqlx.Tx
}

func (s *txStore) Loans() LoanRepository {
	return NewLoanRepository(s.tx)
}

func (s *txStore) Schedules() ScheduleRepository {
	return NewScheduleRepository(s.tx)
}

func (s *txStore) Receipts() ReceiptRepository {
	return NewReceiptRepository(s.tx)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
