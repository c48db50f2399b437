package firefly

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"budgetview/internal/core"
)

// CurrentUser returns the owner of the access token. It doubles as a
// credentials check during login.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var out single[UserAttributes]
	if err := c.getJSON(ctx, "about/user", nil, &out); err != nil {
		return User{}, err
	}
	return out.Data, nil
}

// Accounts lists accounts of the given type ("asset", "expense", ...). An
// empty type lists every account.
func (c *Client) Accounts(ctx context.Context, accountType string) (Page[Account], error) {
	q := url.Values{}
	if accountType != "" {
		q.Set("type", accountType)
	}
	return listAll[Account](ctx, c, "accounts", q)
}

// TransactionFilter narrows a transaction listing. Zero values are omitted.
type TransactionFilter struct {
	Start time.Time
	End   time.Time
	Type  string // withdrawal, deposit, transfer, ...
	Limit int    // > 0 fetches only the first page with this page size
}

// IsZero reports whether f selects every transaction.
func (f TransactionFilter) IsZero() bool {
	return f.Start.IsZero() && f.End.IsZero() && f.Type == "" && f.Limit <= 0
}

func (f TransactionFilter) values() url.Values {
	q := url.Values{}
	if !f.Start.IsZero() {
		q.Set("start", f.Start.Format(core.DateLayout))
	}
	if !f.End.IsZero() {
		q.Set("end", f.End.Format(core.DateLayout))
	}
	if f.Type != "" {
		q.Set("type", f.Type)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	return q
}

// Transactions lists transaction groups matching f, newest first.
func (c *Client) Transactions(ctx context.Context, f TransactionFilter) (Page[Transaction], error) {
	if f.Limit > 0 {
		q := f.values()
		q.Set("page", "1")
		return firstPage[Transaction](ctx, c, "transactions", q)
	}
	return listAll[Transaction](ctx, c, "transactions", f.values())
}

func (c *Client) Budgets(ctx context.Context) (Page[Budget], error) {
	return listAll[Budget](ctx, c, "budgets", nil)
}

// BudgetLimits lists the limits of every budget overlapping r.
func (c *Client) BudgetLimits(ctx context.Context, r core.DateRange) (Page[BudgetLimit], error) {
	q := url.Values{}
	q.Set("start", r.StartDate())
	q.Set("end", r.EndDate())
	return listAll[BudgetLimit](ctx, c, "budget-limits", q)
}

func (c *Client) PiggyBanks(ctx context.Context) (Page[PiggyBank], error) {
	return listAll[PiggyBank](ctx, c, "piggy-banks", nil)
}

func (c *Client) Recurrences(ctx context.Context) (Page[Recurrence], error) {
	return listAll[Recurrence](ctx, c, "recurrences", nil)
}

// ExpensesByAccount returns expenses in r grouped by asset account. The
// insight endpoints answer with a bare array, so Meta is always nil.
func (c *Client) ExpensesByAccount(ctx context.Context, r core.DateRange) (Page[InsightEntry], error) {
	q := url.Values{}
	q.Set("start", r.StartDate())
	q.Set("end", r.EndDate())

	var entries []InsightEntry
	if err := c.getJSON(ctx, "insight/expense/asset", q, &entries); err != nil {
		return Page[InsightEntry]{}, err
	}
	if entries == nil {
		entries = []InsightEntry{}
	}
	return Page[InsightEntry]{Data: entries}, nil
}
