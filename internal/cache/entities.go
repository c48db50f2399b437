package cache

import (
	"context"
	"time"

	"budgetview/internal/firefly"
)

func (s *Store) Accounts(ctx context.Context) (Entry[[]firefly.Account], bool) {
	return GetEntry[[]firefly.Account](ctx, s, s.keys.Accounts)
}

func (s *Store) SetAccounts(ctx context.Context, accounts []firefly.Account) error {
	_, err := SetEntry(ctx, s, s.keys.Accounts, accounts)
	return err
}

func (s *Store) Transactions(ctx context.Context) (Entry[[]firefly.Transaction], bool) {
	return GetEntry[[]firefly.Transaction](ctx, s, s.keys.Transactions)
}

func (s *Store) SetTransactions(ctx context.Context, txs []firefly.Transaction) error {
	_, err := SetEntry(ctx, s, s.keys.Transactions, txs)
	return err
}

func (s *Store) BudgetLimits(ctx context.Context) (Entry[[]firefly.BudgetLimit], bool) {
	return GetEntry[[]firefly.BudgetLimit](ctx, s, s.keys.BudgetLimits)
}

func (s *Store) SetBudgetLimits(ctx context.Context, limits []firefly.BudgetLimit) error {
	_, err := SetEntry(ctx, s, s.keys.BudgetLimits, limits)
	return err
}

// ExpensesByRange reads the expense report cached for exactly [start, end].
func (s *Store) ExpensesByRange(ctx context.Context, start, end time.Time) (Entry[[]firefly.InsightEntry], bool) {
	return GetEntry[[]firefly.InsightEntry](ctx, s, s.keys.ExpensesRange(start, end))
}

func (s *Store) SetExpensesByRange(ctx context.Context, start, end time.Time, entries []firefly.InsightEntry) error {
	_, err := SetEntry(ctx, s, s.keys.ExpensesRange(start, end), entries)
	return err
}

// LastSync returns the time of the last completed full refresh.
func (s *Store) LastSync(ctx context.Context) (time.Time, bool) {
	e, ok := GetEntry[int64](ctx, s, s.keys.LastSync)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(e.Data), true
}

// MarkSynced records a completed full refresh at the store clock's now.
func (s *Store) MarkSynced(ctx context.Context) (time.Time, error) {
	now := s.now()
	if _, err := SetEntry(ctx, s, s.keys.LastSync, now.UnixMilli()); err != nil {
		return time.Time{}, err
	}
	return now, nil
}
