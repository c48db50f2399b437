package core

import "sort"

// CurrencyAmount is an amount tagged with its ISO currency code.
type CurrencyAmount struct {
	CurrencyCode string
	Amount       Money
}

// TotalsByCurrency sums amounts per currency, ordered by currency code.
func TotalsByCurrency(items []CurrencyAmount) []CurrencyAmount {
	sums := make(map[string]int64)
	for _, it := range items {
		sums[it.CurrencyCode] += it.Amount.Cents
	}

	out := make([]CurrencyAmount, 0, len(sums))
	for code, cents := range sums {
		out = append(out, CurrencyAmount{CurrencyCode: code, Amount: Money{Cents: cents}})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyCode < out[j].CurrencyCode })
	return out
}

// BudgetUsage compares what was spent against a budget limit.
type BudgetUsage struct {
	Name         string
	CurrencyCode string
	Limit        Money
	Spent        Money
	Remaining    Money
	Percent      float64 // 0-100+, share of the limit already spent
	Over         bool
}

// NewBudgetUsage builds usage figures. Spent is taken by magnitude since the
// server reports expenses as negative amounts.
func NewBudgetUsage(name, currencyCode string, limit, spent Money) BudgetUsage {
	spent = spent.Abs()
	u := BudgetUsage{
		Name:         name,
		CurrencyCode: currencyCode,
		Limit:        limit,
		Spent:        spent,
		Remaining:    Money{Cents: limit.Cents - spent.Cents},
		Over:         spent.Cents > limit.Cents,
	}
	if limit.Cents > 0 {
		u.Percent = float64(spent.Cents) / float64(limit.Cents) * 100
	}
	return u
}
