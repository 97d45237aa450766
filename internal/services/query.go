package services

import (
	"context"
	"fmt"

	"cassa/internal/core"
	"cassa/internal/storage"
)

// DefaultTransactionLimit bounds transaction history reads when the caller
// does not specify a limit.
const DefaultTransactionLimit = 50

// MaxTransactionLimit caps history reads regardless of what the caller asks
// for.
const MaxTransactionLimit = 500

// Query serves read-only views over the ledger. Reads may run concurrently
// with writes and may observe a slightly stale aggregate.
type Query struct {
	storage *storage.SQLiteRepository
}

func NewQuery(storage *storage.SQLiteRepository) *Query {
	return &Query{storage: storage}
}

// TillBalance returns the current till aggregate (zero before the first
// closing).
func (q *Query) TillBalance(ctx context.Context) (core.TillBalance, error) {
	tb, err := q.storage.GetTillBalance(ctx)
	if err != nil {
		return core.TillBalance{}, fmt.Errorf("till balance: %w", err)
	}
	return tb, nil
}

// PersonBalances returns everyone currently holding withdrawn cash, ordered
// by name.
func (q *Query) PersonBalances(ctx context.Context) ([]core.Person, error) {
	persons, err := q.storage.ListPersonsWithBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("person balances: %w", err)
	}
	return persons, nil
}

// RecentTransactions returns the newest transactions first. A non-positive
// limit falls back to DefaultTransactionLimit.
func (q *Query) RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		limit = MaxTransactionLimit
	}
	txns, err := q.storage.ListRecentTransactions(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent transactions: %w", err)
	}
	return txns, nil
}
