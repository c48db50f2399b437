package dashboard

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetview/internal/core"
	"budgetview/internal/firefly"
	"budgetview/internal/log"
	"budgetview/internal/query"
)

// Overview is the one-screen summary for a date range.
type Overview struct {
	Range         core.DateRange
	NetWorth      []core.CurrencyAmount
	TotalExpenses []core.CurrencyAmount
	Budgets       []core.BudgetUsage
	Expenses      []firefly.InsightEntry
}

// Overview loads accounts, budget limits and expenses for r concurrently.
// The result is cache data if any part came from the cache; LastSynced is
// then the oldest cached part.
func (s *Service) Overview(ctx context.Context, r core.DateRange) (query.Result[Overview], error) {
	var (
		accounts query.Result[[]firefly.Account]
		limits   query.Result[[]firefly.BudgetLimit]
		expenses query.Result[[]firefly.InsightEntry]
		names    map[string]string
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		accounts, err = s.Accounts(gctx)
		return err
	})
	g.Go(func() (err error) {
		limits, err = s.BudgetLimits(gctx, r)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = s.ExpensesByRange(gctx, r)
		return err
	})
	g.Go(func() error {
		names = s.budgetNames(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return query.Result[Overview]{}, err
	}

	out := Overview{
		Range:         r,
		NetWorth:      netWorth(accounts.Data),
		TotalExpenses: totalExpenses(expenses.Data),
		Budgets:       budgetUsage(limits.Data, names),
		Expenses:      expenses.Data,
	}

	res := query.Result[Overview]{Data: out}
	mergeCacheFlags(&res, accounts.IsCacheData, accounts.LastSynced, accounts.Stale)
	mergeCacheFlags(&res, limits.IsCacheData, limits.LastSynced, limits.Stale)
	mergeCacheFlags(&res, expenses.IsCacheData, expenses.LastSynced, expenses.Stale)
	return res, nil
}

// budgetNames maps budget IDs to names. Budgets are not cached, so failures
// only cost the labels.
func (s *Service) budgetNames(ctx context.Context) map[string]string {
	names := make(map[string]string)
	if s.offline {
		return names
	}
	res, err := s.Budgets(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Budget names unavailable",
			log.FieldComponent, log.ComponentDashboard,
			log.FieldError, err)
		return names
	}
	for _, b := range res.Data {
		names[b.ID] = b.Attributes.Name
	}
	return names
}

func mergeCacheFlags[T any](res *query.Result[T], fromCache bool, lastSynced time.Time, stale bool) {
	if !fromCache {
		return
	}
	if !res.IsCacheData || lastSynced.Before(res.LastSynced) {
		res.LastSynced = lastSynced
	}
	res.IsCacheData = true
	res.Stale = res.Stale || stale
}

func netWorth(accounts []firefly.Account) []core.CurrencyAmount {
	items := make([]core.CurrencyAmount, 0, len(accounts))
	for _, a := range accounts {
		attr := a.Attributes
		if !attr.IncludeNetWorth || !attr.Active {
			continue
		}
		m, err := attr.CurrentBalance.Money()
		if err != nil {
			continue
		}
		items = append(items, core.CurrencyAmount{CurrencyCode: attr.CurrencyCode, Amount: m})
	}
	return core.TotalsByCurrency(items)
}

func totalExpenses(entries []firefly.InsightEntry) []core.CurrencyAmount {
	items := make([]core.CurrencyAmount, 0, len(entries))
	for _, e := range entries {
		m, err := e.Difference.Money()
		if err != nil {
			continue
		}
		items = append(items, core.CurrencyAmount{CurrencyCode: e.CurrencyCode, Amount: m.Abs()})
	}
	return core.TotalsByCurrency(items)
}

func budgetUsage(limits []firefly.BudgetLimit, names map[string]string) []core.BudgetUsage {
	out := make([]core.BudgetUsage, 0, len(limits))
	for _, l := range limits {
		attr := l.Attributes
		limit, err := attr.Amount.Money()
		if err != nil {
			continue
		}
		spent, err := attr.Spent.Money()
		if err != nil {
			continue
		}
		name := names[attr.BudgetID]
		if name == "" {
			name = "Budget " + attr.BudgetID
		}
		out = append(out, core.NewBudgetUsage(name, attr.CurrencyCode, limit, spent))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
