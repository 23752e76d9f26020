package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/loan-ledger/internal/domain"
)

// ErrCacheMiss is returned by GetLoan when no snapshot is cached.
var ErrCacheMiss = errors.New("cache miss")

const loanKeyPrefix = "loan-ledger:loan:"

// LoanCache stores read snapshots of loans. The store stays the source of
// truth; every write to a loan invalidates its snapshot.
type LoanCache interface {
	GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error)
	SetLoan(ctx context.Context, loan *domain.Loan) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}

// RedisLoanCache keeps JSON loan snapshots in Redis with a TTL.
type RedisLoanCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLoanCache(client *redis.Client, ttl time.Duration) *RedisLoanCache {
	return &RedisLoanCache{client: client, ttl: ttl}
}

func loanKey(id uuid.UUID) string {
	return loanKeyPrefix + id.String()
}

func (c *RedisLoanCache) GetLoan(ctx context.Context, id uuid.UUID) (*domain.Loan, error) {
	raw, err := c.client.Get(ctx, loanKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var loan domain.Loan
	if err := json.Unmarshal(raw, &loan); err != nil {
		return nil, fmt.Errorf("decode cached loan %s: %w", id, err)
	}
	return &loan, nil
}

func (c *RedisLoanCache) SetLoan(ctx context.Context, loan *domain.Loan) error {
	raw, err := json.Marshal(loan)
	if err != nil {
		return fmt.Errorf("encode loan %s: %w", loan.ID, err)
	}
	return c.client.Set(ctx, loanKey(loan.ID), raw, c.ttl).Err()
}

func (c *RedisLoanCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, loanKey(id)).Err()
}

// NoopCache is used when Redis is not configured. Every read misses.
type NoopCache struct{}

func (NoopCache) GetLoan(context.Context, uuid.UUID) (*domain.Loan, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) SetLoan(context.Context, *domain.Loan) error {
	return nil
}

func (NoopCache) Invalidate(context.Context, uuid.UUID) error {
	return nil
}
