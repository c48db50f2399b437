package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetview/internal/core"
	"budgetview/internal/firefly"
	"budgetview/internal/log"
)

// Entities that can be refreshed individually.
const (
	EntityAll          = "all"
	EntityAccounts     = "accounts"
	EntityTransactions = "transactions"
	EntityBudgetLimits = "budget_limits"
	EntityExpenses     = "expenses"
)

var (
	// ErrOffline is returned when a refresh is requested in offline mode.
	ErrOffline = errors.New("refresh is not possible in offline mode")
	// ErrUnknownEntity is returned for entity names outside the list above.
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrServedFromCache marks a refresh step whose fetch failed and fell
	// back to the cache.
	ErrServedFromCache = errors.New("remote unavailable, cached data kept")
)

// ValidEntity reports whether name can be passed to RefreshEntity.
func ValidEntity(name string) bool {
	switch name {
	case "", EntityAll, EntityAccounts, EntityTransactions, EntityBudgetLimits, EntityExpenses:
		return true
	}
	return false
}

// RefreshReport summarises a completed refresh.
type RefreshReport struct {
	Entities []string
	Range    core.DateRange
	SyncedAt time.Time
}

// Refresh fetches every cached collection for r. When all of them come
// from the remote it waits for the cache mirrors and records the sync time.
func (s *Service) Refresh(ctx context.Context, r core.DateRange) (RefreshReport, error) {
	if s.offline {
		return RefreshReport{}, ErrOffline
	}

	entities := []string{EntityAccounts, EntityTransactions, EntityBudgetLimits, EntityExpenses}
	g, gctx := errgroup.WithContext(ctx)
	for _, entity := range entities {
		g.Go(func() error {
			return s.refreshOne(gctx, entity, r)
		})
	}
	if err := g.Wait(); err != nil {
		return RefreshReport{}, err
	}

	s.queries.Wait()
	syncedAt, err := s.queries.Cache().MarkSynced(ctx)
	if err != nil {
		return RefreshReport{}, fmt.Errorf("record sync time: %w", err)
	}

	slog.InfoContext(ctx, "Refresh completed",
		log.FieldComponent, log.ComponentDashboard,
		log.FieldOperation, log.OpSync,
		log.FieldCount, len(entities),
		"range", r.String())

	return RefreshReport{Entities: entities, Range: r, SyncedAt: syncedAt}, nil
}

// RefreshEntity refreshes a single collection, or all of them for EntityAll.
func (s *Service) RefreshEntity(ctx context.Context, entity string, r core.DateRange) error {
	if entity == EntityAll || entity == "" {
		_, err := s.Refresh(ctx, r)
		return err
	}
	if s.offline {
		return ErrOffline
	}
	if err := s.refreshOne(ctx, entity, r); err != nil {
		return err
	}
	s.queries.Wait()
	return nil
}

func (s *Service) refreshOne(ctx context.Context, entity string, r core.DateRange) error {
	var (
		fromCache bool
		err       error
	)

	switch entity {
	case EntityAccounts:
		res, e := s.Accounts(ctx)
		fromCache, err = res.IsCacheData, e
	case EntityTransactions:
		res, e := s.Transactions(ctx, firefly.TransactionFilter{})
		fromCache, err = res.IsCacheData, e
	case EntityBudgetLimits:
		res, e := s.BudgetLimits(ctx, r)
		fromCache, err = res.IsCacheData, e
	case EntityExpenses:
		res, e := s.ExpensesByRange(ctx, r)
		fromCache, err = res.IsCacheData, e
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}

	if err != nil {
		return fmt.Errorf("refresh %s: %w", entity, err)
	}
	if fromCache {
		return fmt.Errorf("refresh %s: %w", entity, ErrServedFromCache)
	}
	return nil
}
