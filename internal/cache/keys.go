package cache

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"budgetview/internal/core"
)

// ErrInvalidKeys is returned when a Keys value would put an entry outside the
// namespace that Clear removes.
var ErrInvalidKeys = errors.New("invalid cache keys")

// DefaultPrefix namespaces every cache key in the shared key-value store.
const DefaultPrefix = "cache_"

// Keys enumerates the persisted cache keys. It is built once at startup and
// handed to NewStore.
type Keys struct {
	Prefix       string
	Accounts     string
	Transactions string
	BudgetLimits string
	LastSync     string
	// ExpensesByRange is a format string taking the start and end dates (YYYY-MM-DD).
	ExpensesByRange string
}

// DefaultKeys returns the standard key layout.
func DefaultKeys() Keys {
	return Keys{
		Prefix:          DefaultPrefix,
		Accounts:        DefaultPrefix + "accounts",
		Transactions:    DefaultPrefix + "transactions",
		BudgetLimits:    DefaultPrefix + "budget_limits",
		LastSync:        DefaultPrefix + "last_sync",
		ExpensesByRange: DefaultPrefix + "expenses_by_range_%s_%s",
	}
}

// ExpensesRange returns the key for expenses between start and end. Distinct
// ranges map to distinct keys.
func (k Keys) ExpensesRange(start, end time.Time) string {
	return fmt.Sprintf(k.ExpensesByRange, start.Format(core.DateLayout), end.Format(core.DateLayout))
}

// Owns reports whether key lives in the cache namespace.
func (k Keys) Owns(key string) bool {
	return k.Prefix != "" && strings.HasPrefix(key, k.Prefix)
}

// Validate checks that every key is set and carries the prefix.
func (k Keys) Validate() error {
	if k.Prefix == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalidKeys)
	}
	if strings.Count(k.ExpensesByRange, "%s") != 2 {
		return fmt.Errorf("%w: expenses key %q must contain two %%s verbs", ErrInvalidKeys, k.ExpensesByRange)
	}

	named := map[string]string{
		"accounts":          k.Accounts,
		"transactions":      k.Transactions,
		"budget_limits":     k.BudgetLimits,
		"last_sync":         k.LastSync,
		"expenses_by_range": k.ExpensesByRange,
	}
	for name, key := range named {
		if !k.Owns(key) || key == k.Prefix {
			return fmt.Errorf("%w: %s key %q must start with %q", ErrInvalidKeys, name, key, k.Prefix)
		}
	}
	return nil
}
