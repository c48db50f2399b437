// Package dashboard exposes the budgeting data the CLI and HTTP API show,
// with every cacheable collection served through the offline query layer.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetview/internal/cache"
	"budgetview/internal/core"
	"budgetview/internal/firefly"
	"budgetview/internal/log"
	"budgetview/internal/query"
)

// ErrNoCachedData is returned in offline mode when nothing is cached for a query.
var ErrNoCachedData = errors.New("no cached data available")

// ErrNotCacheable is returned in offline mode for collections that are never cached.
var ErrNotCacheable = errors.New("data is not available offline")

// Remote is the subset of the Firefly client the service reads from.
type Remote interface {
	Accounts(ctx context.Context, accountType string) (firefly.Page[firefly.Account], error)
	Transactions(ctx context.Context, f firefly.TransactionFilter) (firefly.Page[firefly.Transaction], error)
	Budgets(ctx context.Context) (firefly.Page[firefly.Budget], error)
	BudgetLimits(ctx context.Context, r core.DateRange) (firefly.Page[firefly.BudgetLimit], error)
	PiggyBanks(ctx context.Context) (firefly.Page[firefly.PiggyBank], error)
	Recurrences(ctx context.Context) (firefly.Page[firefly.Recurrence], error)
	ExpensesByAccount(ctx context.Context, r core.DateRange) (firefly.Page[firefly.InsightEntry], error)
}

// Service answers dashboard reads.
type Service struct {
	remote  Remote
	queries *query.Client
	keys    cache.Keys
	offline bool
}

type Option func(*Service)

// WithOffline makes every read come from the cache without touching the remote.
func WithOffline(offline bool) Option {
	return func(s *Service) { s.offline = offline }
}

// NewService wires remote reads to the query client. remote may be nil in
// offline mode.
func NewService(remote Remote, queries *query.Client, opts ...Option) (*Service, error) {
	if queries == nil || queries.Cache() == nil {
		return nil, fmt.Errorf("dashboard: query client with a cache is required")
	}
	s := &Service{
		remote:  remote,
		queries: queries,
		keys:    queries.Cache().Keys(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.remote == nil && !s.offline {
		return nil, fmt.Errorf("dashboard: remote is required unless offline")
	}
	return s, nil
}

// Offline reports whether the service only reads from the cache.
func (s *Service) Offline() bool { return s.offline }

func run[T any](ctx context.Context, s *Service, q query.Query[T]) (query.Result[T], error) {
	if s.offline {
		if q.CacheKey == "" {
			return query.Result[T]{}, ErrNotCacheable
		}
		res, ok := query.Peek[T](ctx, s.queries, q.CacheKey)
		if !ok {
			return query.Result[T]{}, ErrNoCachedData
		}
		return res, nil
	}
	return query.Run(ctx, s.queries, q)
}

// Accounts lists every account.
func (s *Service) Accounts(ctx context.Context) (query.Result[[]firefly.Account], error) {
	return run(ctx, s, query.Query[[]firefly.Account]{
		Key:      "accounts",
		CacheKey: s.keys.Accounts,
		Fetch: func(ctx context.Context) ([]firefly.Account, error) {
			p, err := s.remote.Accounts(ctx, "")
			return p.Data, err
		},
	})
}

// Transactions lists transactions matching f. Only the unfiltered listing
// is cached; filtered listings neither mirror nor fall back.
func (s *Service) Transactions(ctx context.Context, f firefly.TransactionFilter) (query.Result[[]firefly.Transaction], error) {
	q := query.Query[[]firefly.Transaction]{
		Key: fmt.Sprintf("transactions:%s:%s:%s:%d", dateKey(f.Start), dateKey(f.End), f.Type, f.Limit),
		Fetch: func(ctx context.Context) ([]firefly.Transaction, error) {
			p, err := s.remote.Transactions(ctx, f)
			return p.Data, err
		},
	}
	if f.IsZero() {
		q.CacheKey = s.keys.Transactions
	}
	return run(ctx, s, q)
}

// BudgetLimits lists budget limits overlapping r.
func (s *Service) BudgetLimits(ctx context.Context, r core.DateRange) (query.Result[[]firefly.BudgetLimit], error) {
	return run(ctx, s, query.Query[[]firefly.BudgetLimit]{
		Key:      "budget-limits:" + r.String(),
		CacheKey: s.keys.BudgetLimits,
		Fetch: func(ctx context.Context) ([]firefly.BudgetLimit, error) {
			p, err := s.remote.BudgetLimits(ctx, r)
			return p.Data, err
		},
	})
}

// ExpensesByRange reports expenses per asset account. Each range is cached
// under its own key.
func (s *Service) ExpensesByRange(ctx context.Context, r core.DateRange) (query.Result[[]firefly.InsightEntry], error) {
	return run(ctx, s, query.Query[[]firefly.InsightEntry]{
		Key:      "expenses:" + r.String(),
		CacheKey: s.keys.ExpensesRange(r.Start, r.End),
		Fetch: func(ctx context.Context) ([]firefly.InsightEntry, error) {
			p, err := s.remote.ExpensesByAccount(ctx, r)
			return p.Data, err
		},
	})
}

func (s *Service) Budgets(ctx context.Context) (query.Result[[]firefly.Budget], error) {
	return run(ctx, s, query.Query[[]firefly.Budget]{
		Key: "budgets",
		Fetch: func(ctx context.Context) ([]firefly.Budget, error) {
			p, err := s.remote.Budgets(ctx)
			return p.Data, err
		},
	})
}

func (s *Service) PiggyBanks(ctx context.Context) (query.Result[[]firefly.PiggyBank], error) {
	return run(ctx, s, query.Query[[]firefly.PiggyBank]{
		Key: "piggy-banks",
		Fetch: func(ctx context.Context) ([]firefly.PiggyBank, error) {
			p, err := s.remote.PiggyBanks(ctx)
			return p.Data, err
		},
	})
}

func (s *Service) Recurrences(ctx context.Context) (query.Result[[]firefly.Recurrence], error) {
	return run(ctx, s, query.Query[[]firefly.Recurrence]{
		Key: "recurrences",
		Fetch: func(ctx context.Context) ([]firefly.Recurrence, error) {
			p, err := s.remote.Recurrences(ctx)
			return p.Data, err
		},
	})
}

// LastSync returns the time of the last completed Refresh.
func (s *Service) LastSync(ctx context.Context) (time.Time, bool) {
	return s.queries.Cache().LastSync(ctx)
}

// CacheStatus lists every cache entry with its age.
func (s *Service) CacheStatus(ctx context.Context) ([]cache.EntryStatus, error) {
	return s.queries.Cache().Status(ctx, s.queries.MaxAge())
}

// ClearCache drops every cached entry.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.queries.Cache().Clear(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Cache cleared on request",
		log.FieldComponent, log.ComponentDashboard,
		log.FieldOperation, log.OpClear)
	return nil
}

// Stale reports whether the last full refresh is missing or older than the
// configured max age.
func (s *Service) Stale(ctx context.Context) bool {
	last, ok := s.LastSync(ctx)
	if !ok {
		return true
	}
	return cache.IsStaleAt(last, s.queries.MaxAge(), s.queries.Cache().Now())
}

func dateKey(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(core.DateLayout)
}
