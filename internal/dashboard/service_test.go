package dashboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetview/internal/cache"
	"budgetview/internal/core"
	"budgetview/internal/firefly"
	"budgetview/internal/kv"
	"budgetview/internal/log"
	"budgetview/internal/query"
)

var errDown = errors.New("connection refused")

// fakeRemote serves canned data; setting fail makes every call error.
type fakeRemote struct {
	mu    sync.Mutex
	fail  bool
	calls map[string]int

	txFilters []firefly.TransactionFilter

	accounts []firefly.Account
	txs      []firefly.Transaction
	budgets  []firefly.Budget
	limits   []firefly.BudgetLimit
	piggies  []firefly.PiggyBank
	recurs   []firefly.Recurrence
	expenses []firefly.InsightEntry
}

func (f *fakeRemote) hit(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
	if f.fail {
		return errDown
	}
	return nil
}

func (f *fakeRemote) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) Accounts(context.Context, string) (firefly.Page[firefly.Account], error) {
	if err := f.hit("accounts"); err != nil {
		return firefly.Page[firefly.Account]{}, err
	}
	return firefly.Page[firefly.Account]{Data: f.accounts}, nil
}

func (f *fakeRemote) Transactions(_ context.Context, tf firefly.TransactionFilter) (firefly.Page[firefly.Transaction], error) {
	f.mu.Lock()
	f.txFilters = append(f.txFilters, tf)
	f.mu.Unlock()
	if err := f.hit("transactions"); err != nil {
		return firefly.Page[firefly.Transaction]{}, err
	}
	return firefly.Page[firefly.Transaction]{Data: f.txs}, nil
}

func (f *fakeRemote) Budgets(context.Context) (firefly.Page[firefly.Budget], error) {
	if err := f.hit("budgets"); err != nil {
		return firefly.Page[firefly.Budget]{}, err
	}
	return firefly.Page[firefly.Budget]{Data: f.budgets}, nil
}

func (f *fakeRemote) BudgetLimits(context.Context, core.DateRange) (firefly.Page[firefly.BudgetLimit], error) {
	if err := f.hit("budget_limits"); err != nil {
		return firefly.Page[firefly.BudgetLimit]{}, err
	}
	return firefly.Page[firefly.BudgetLimit]{Data: f.limits}, nil
}

func (f *fakeRemote) PiggyBanks(context.Context) (firefly.Page[firefly.PiggyBank], error) {
	if err := f.hit("piggy_banks"); err != nil {
		return firefly.Page[firefly.PiggyBank]{}, err
	}
	return firefly.Page[firefly.PiggyBank]{Data: f.piggies}, nil
}

func (f *fakeRemote) Recurrences(context.Context) (firefly.Page[firefly.Recurrence], error) {
	if err := f.hit("recurrences"); err != nil {
		return firefly.Page[firefly.Recurrence]{}, err
	}
	return firefly.Page[firefly.Recurrence]{Data: f.recurs}, nil
}

func (f *fakeRemote) ExpensesByAccount(context.Context, core.DateRange) (firefly.Page[firefly.InsightEntry], error) {
	if err := f.hit("expenses"); err != nil {
		return firefly.Page[firefly.InsightEntry]{}, err
	}
	return firefly.Page[firefly.InsightEntry]{Data: f.expenses}, nil
}

func seededRemote() *fakeRemote {
	return &fakeRemote{
		accounts: []firefly.Account{
			{ID: "1", Type: "accounts", Attributes: firefly.AccountAttributes{Name: "Checking", Type: "asset", Active: true, IncludeNetWorth: true, CurrencyCode: "EUR", CurrentBalance: "1200.50"}},
			{ID: "2", Type: "accounts", Attributes: firefly.AccountAttributes{Name: "Savings", Type: "asset", Active: true, IncludeNetWorth: true, CurrencyCode: "EUR", CurrentBalance: "800.00"}},
			{ID: "3", Type: "accounts", Attributes: firefly.AccountAttributes{Name: "Brokerage", Type: "asset", Active: true, IncludeNetWorth: true, CurrencyCode: "USD", CurrentBalance: "50"}},
			{ID: "4", Type: "accounts", Attributes: firefly.AccountAttributes{Name: "Old", Type: "asset", Active: false, IncludeNetWorth: true, CurrencyCode: "EUR", CurrentBalance: "999"}},
		},
		budgets: []firefly.Budget{
			{ID: "10", Type: "budgets", Attributes: firefly.BudgetAttributes{Name: "Groceries", Active: true}},
		},
		limits: []firefly.BudgetLimit{
			{ID: "100", Type: "budget_limits", Attributes: firefly.BudgetLimitAttributes{BudgetID: "10", CurrencyCode: "EUR", Amount: "300", Spent: "-330.00"}},
			{ID: "101", Type: "budget_limits", Attributes: firefly.BudgetLimitAttributes{BudgetID: "11", CurrencyCode: "EUR", Amount: "100", Spent: "-25"}},
		},
		expenses: []firefly.InsightEntry{
			{ID: "1", Name: "Checking", Difference: "-45.10", CurrencyCode: "EUR"},
			{ID: "2", Name: "Savings", Difference: "-4.90", CurrencyCode: "EUR"},
		},
	}
}

type testEnv struct {
	svc     *Service
	remote  *fakeRemote
	queries *query.Client
	now     time.Time
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	now := time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	store, err := cache.NewStore(kv.NewMemory(), cache.DefaultKeys(),
		cache.WithClock(func() time.Time { return now }),
		cache.WithLogger(log.Discard()))
	require.NoError(t, err)

	queries := query.NewClient(store, query.WithLogger(log.Discard()))
	remote := seededRemote()
	svc, err := NewService(remote, queries, opts...)
	require.NoError(t, err)
	return &testEnv{svc: svc, remote: remote, queries: queries, now: now}
}

func june() core.DateRange {
	return core.MonthRange(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
}

func TestNewService_Validation(t *testing.T) {
	_, err := NewService(seededRemote(), nil)
	assert.Error(t, err)

	store, err := cache.NewStore(kv.NewMemory(), cache.DefaultKeys(), cache.WithLogger(log.Discard()))
	require.NoError(t, err)
	queries := query.NewClient(store, query.WithLogger(log.Discard()))

	_, err = NewService(nil, queries)
	assert.Error(t, err)

	svc, err := NewService(nil, queries, WithOffline(true))
	require.NoError(t, err)
	assert.True(t, svc.Offline())
}

func TestAccounts_FallsBackWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	fresh, err := env.svc.Accounts(ctx)
	require.NoError(t, err)
	assert.False(t, fresh.IsCacheData)
	env.queries.Wait()

	env.remote.setFail(true)
	cached, err := env.svc.Accounts(ctx)
	require.NoError(t, err)
	assert.True(t, cached.IsCacheData)
	assert.Equal(t, fresh.Data, cached.Data)
}

func TestAccounts_PresetCacheExactArray(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	preset := env.remote.accounts[:2]
	require.NoError(t, env.queries.Cache().SetAccounts(ctx, preset))

	env.remote.setFail(true)
	res, err := env.svc.Accounts(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsCacheData)
	assert.Equal(t, preset, res.Data)
}

func TestUncachedCollectionsSurfaceErrors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Budgets(ctx)
	require.NoError(t, err)
	env.queries.Wait()

	env.remote.setFail(true)
	_, err = env.svc.Budgets(ctx)
	assert.ErrorIs(t, err, errDown)
	_, err = env.svc.PiggyBanks(ctx)
	assert.ErrorIs(t, err, errDown)
	_, err = env.svc.Recurrences(ctx)
	assert.ErrorIs(t, err, errDown)
}

func TestTransactions_OnlyUnfilteredListingIsCached(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	all := []firefly.Transaction{
		{ID: "1", Type: "transactions", Attributes: firefly.TransactionGroup{GroupTitle: "salary"}},
		{ID: "2", Type: "transactions", Attributes: firefly.TransactionGroup{GroupTitle: "groceries"}},
	}
	env.remote.txs = all

	_, err := env.svc.Transactions(ctx, firefly.TransactionFilter{})
	require.NoError(t, err)
	env.queries.Wait()

	env.remote.txs = all[1:]
	filtered, err := env.svc.Transactions(ctx, firefly.TransactionFilter{Type: "withdrawal", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, all[1:], filtered.Data)
	env.queries.Wait()

	env.remote.setFail(true)
	res, err := env.svc.Transactions(ctx, firefly.TransactionFilter{})
	require.NoError(t, err)
	assert.True(t, res.IsCacheData)
	assert.Equal(t, all, res.Data)

	_, err = env.svc.Transactions(ctx, firefly.TransactionFilter{Type: "deposit"})
	assert.ErrorIs(t, err, errDown)
}

func TestTransactions_FilteredNotAvailableOffline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, WithOffline(true))
	require.NoError(t, env.queries.Cache().SetTransactions(ctx, []firefly.Transaction{{ID: "1"}}))

	res, err := env.svc.Transactions(ctx, firefly.TransactionFilter{})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)

	_, err = env.svc.Transactions(ctx, firefly.TransactionFilter{Type: "withdrawal"})
	assert.ErrorIs(t, err, ErrNotCacheable)
}

func TestExpensesByRange_KeyedPerRange(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.ExpensesByRange(ctx, june())
	require.NoError(t, err)
	env.queries.Wait()

	env.remote.setFail(true)
	res, err := env.svc.ExpensesByRange(ctx, june())
	require.NoError(t, err)
	assert.True(t, res.IsCacheData)

	may := core.MonthRange(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	_, err = env.svc.ExpensesByRange(ctx, may)
	assert.ErrorIs(t, err, errDown)
}

func TestOffline_ReadsOnlyFromCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, WithOffline(true))

	_, err := env.svc.Accounts(ctx)
	assert.ErrorIs(t, err, ErrNoCachedData)

	_, err = env.svc.Budgets(ctx)
	assert.ErrorIs(t, err, ErrNotCacheable)

	require.NoError(t, env.queries.Cache().SetAccounts(ctx, env.remote.accounts))
	res, err := env.svc.Accounts(ctx)
	require.NoError(t, err)
	assert.True(t, res.IsCacheData)
	assert.Zero(t, env.remote.count("accounts"))

	_, err = env.svc.Refresh(ctx, june())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestOverview(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.svc.Overview(ctx, june())
	require.NoError(t, err)
	assert.False(t, res.IsCacheData)

	ov := res.Data
	assert.Equal(t, []core.CurrencyAmount{
		{CurrencyCode: "EUR", Amount: core.Money{Cents: 200050}},
		{CurrencyCode: "USD", Amount: core.Money{Cents: 5000}},
	}, ov.NetWorth)
	assert.Equal(t, []core.CurrencyAmount{
		{CurrencyCode: "EUR", Amount: core.Money{Cents: 5000}},
	}, ov.TotalExpenses)

	require.Len(t, ov.Budgets, 2)
	assert.Equal(t, "Budget 11", ov.Budgets[0].Name)
	assert.Equal(t, "Groceries", ov.Budgets[1].Name)
	assert.True(t, ov.Budgets[1].Over)
	assert.Equal(t, int64(33000), ov.Budgets[1].Spent.Cents)
}

func TestOverview_FromCacheWhenOffline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.svc.Overview(ctx, june())
	require.NoError(t, err)
	env.queries.Wait()

	env.remote.setFail(true)
	res, err := env.svc.Overview(ctx, june())
	require.NoError(t, err)
	assert.True(t, res.IsCacheData)
	assert.Equal(t, env.now.UnixMilli(), res.LastSynced.UnixMilli())
	assert.Len(t, res.Data.Budgets, 2)
}

func TestOverview_FailsWithoutCache(t *testing.T) {
	env := newTestEnv(t)
	env.remote.setFail(true)

	_, err := env.svc.Overview(context.Background(), june())
	assert.ErrorIs(t, err, errDown)
}

func TestMergeCacheFlags(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)

	var res query.Result[int]
	mergeCacheFlags(&res, false, newer, true)
	assert.False(t, res.IsCacheData)

	mergeCacheFlags(&res, true, newer, false)
	mergeCacheFlags(&res, true, older, true)
	mergeCacheFlags(&res, true, newer, false)
	assert.True(t, res.IsCacheData)
	assert.True(t, res.Stale)
	assert.Equal(t, older, res.LastSynced)
}
