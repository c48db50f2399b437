package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"budgetview/internal/amqp"
	"budgetview/internal/cache"
	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
	"budgetview/internal/log"
	"budgetview/internal/middleware/ratelimit"
	"budgetview/internal/query"
)

var (
	testNow     = time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC)
	errUpstream = errors.New("connection refused")
)

type refreshCall struct {
	entity string
	r      core.DateRange
}

// fakeDash returns canned results; err, when set, is returned by every read.
type fakeDash struct {
	mu sync.Mutex

	err       error
	cached    bool
	synced    time.Time
	statusErr error
	clearErr  error
	cleared   bool
	lastRange core.DateRange
	lastTx    firefly.TransactionFilter
	refreshes []refreshCall
	overview  dashboard.Overview
}

func result[T any](f *fakeDash, data T) (query.Result[T], error) {
	if f.err != nil {
		return query.Result[T]{}, f.err
	}
	res := query.Result[T]{Data: data}
	if f.cached {
		res.IsCacheData = true
		res.LastSynced = f.synced
		res.Stale = true
	}
	return res, nil
}

func (f *fakeDash) Accounts(context.Context) (query.Result[[]firefly.Account], error) {
	return result(f, []firefly.Account{{ID: "1", Attributes: firefly.AccountAttributes{Name: "Checking", CurrencyCode: "EUR"}}})
}

func (f *fakeDash) Transactions(_ context.Context, tf firefly.TransactionFilter) (query.Result[[]firefly.Transaction], error) {
	f.mu.Lock()
	f.lastTx = tf
	f.mu.Unlock()
	return result(f, []firefly.Transaction{})
}

func (f *fakeDash) BudgetLimits(_ context.Context, r core.DateRange) (query.Result[[]firefly.BudgetLimit], error) {
	f.mu.Lock()
	f.lastRange = r
	f.mu.Unlock()
	return result(f, []firefly.BudgetLimit{})
}

func (f *fakeDash) ExpensesByRange(_ context.Context, r core.DateRange) (query.Result[[]firefly.InsightEntry], error) {
	f.mu.Lock()
	f.lastRange = r
	f.mu.Unlock()
	return result(f, []firefly.InsightEntry{{ID: "1", Name: "Checking", Difference: "-50.00", CurrencyCode: "EUR"}})
}

func (f *fakeDash) Budgets(context.Context) (query.Result[[]firefly.Budget], error) {
	return result(f, []firefly.Budget{})
}

func (f *fakeDash) PiggyBanks(context.Context) (query.Result[[]firefly.PiggyBank], error) {
	return result(f, []firefly.PiggyBank{})
}

func (f *fakeDash) Recurrences(context.Context) (query.Result[[]firefly.Recurrence], error) {
	return result(f, []firefly.Recurrence{})
}

func (f *fakeDash) Overview(_ context.Context, r core.DateRange) (query.Result[dashboard.Overview], error) {
	o := f.overview
	o.Range = r
	return result(f, o)
}

func (f *fakeDash) LastSync(context.Context) (time.Time, bool) {
	return f.synced, !f.synced.IsZero()
}

func (f *fakeDash) CacheStatus(context.Context) ([]cache.EntryStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return []cache.EntryStatus{{Key: "cache_accounts", LastSynced: f.synced, Version: cache.SchemaVersion, Readable: true}}, nil
}

func (f *fakeDash) ClearCache(context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = true
	return nil
}

func (f *fakeDash) RefreshEntity(_ context.Context, entity string, r core.DateRange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes = append(f.refreshes, refreshCall{entity, r})
	return f.err
}

type fakePublisher struct {
	msgs []*amqp.RefreshMessage
	err  error
}

func (p *fakePublisher) PublishRefresh(_ context.Context, msg *amqp.RefreshMessage) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func newTestServer(t *testing.T, dash Dashboard, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return testNow }), WithLogger(log.Discard())}, opts...)
	srv := NewServer(":0", dash, opts...)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Data        json.RawMessage `json:"data"`
	IsCacheData bool            `json:"isCacheData"`
	LastSynced  *time.Time      `json:"lastSynced"`
	Stale       bool            `json:"stale"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v; body=%s", err, rr.Body.String())
	}
	return env
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, &fakeDash{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadyFailsWhenCacheUnreadable(t *testing.T) {
	srv := newTestServer(t, &fakeDash{statusErr: errors.New("database is locked")})

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not_ready") {
		t.Fatalf("body missing not_ready: %s", rr.Body.String())
	}
}

func TestDataEndpointsWrapEnvelope(t *testing.T) {
	paths := []string{
		"/api/accounts",
		"/api/transactions",
		"/api/budget-limits",
		"/api/expenses",
		"/api/budgets",
		"/api/piggy-banks",
		"/api/recurrences",
		"/api/overview",
	}
	srv := newTestServer(t, &fakeDash{})

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rr := do(t, srv, http.MethodGet, path, "")
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if got := rr.Header().Get(HeaderCacheData); got != "false" {
				t.Errorf("%s = %q, want false", HeaderCacheData, got)
			}
			env := decodeEnvelope(t, rr)
			if env.IsCacheData || env.Stale || env.LastSynced != nil {
				t.Errorf("fresh envelope has cache flags: %+v", env)
			}
			if len(env.Data) == 0 || string(env.Data) == "null" {
				t.Errorf("data missing: %s", rr.Body.String())
			}
		})
	}
}

func TestCachedResponseIsFlagged(t *testing.T) {
	synced := testNow.Add(-30 * time.Hour)
	srv := newTestServer(t, &fakeDash{cached: true, synced: synced})

	rr := do(t, srv, http.MethodGet, "/api/accounts", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := rr.Header().Get(HeaderCacheData); got != "true" {
		t.Fatalf("%s = %q, want true", HeaderCacheData, got)
	}

	env := decodeEnvelope(t, rr)
	if !env.IsCacheData || !env.Stale {
		t.Fatalf("expected cached stale envelope, got %+v", env)
	}
	if env.LastSynced == nil || !env.LastSynced.Equal(synced) {
		t.Fatalf("lastSynced = %v, want %v", env.LastSynced, synced)
	}
	if !strings.Contains(string(env.Data), `"Checking"`) {
		t.Fatalf("data missing account: %s", env.Data)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"remote failure without cache", errUpstream, http.StatusBadGateway},
		{"rejected credentials", &firefly.HTTPError{StatusCode: http.StatusUnauthorized}, http.StatusBadGateway},
		{"offline without cached data", dashboard.ErrNoCachedData, http.StatusServiceUnavailable},
		{"offline uncacheable", dashboard.ErrNotCacheable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeDash{err: tt.err})
			rr := do(t, srv, http.MethodGet, "/api/accounts", "")
			if rr.Code != tt.want {
				t.Fatalf("status=%d, want %d", rr.Code, tt.want)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("expected error body, got %s", rr.Body.String())
			}
		})
	}
}

func TestCacheStoreFailuresAreInternal(t *testing.T) {
	storeErr := errors.New("database is locked")
	srv := newTestServer(t, &fakeDash{statusErr: storeErr, clearErr: storeErr})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rr := do(t, srv, method, "/api/cache", "")
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("%s /api/cache status=%d, want 500", method, rr.Code)
		}
	}
}

func TestDateRangeParameters(t *testing.T) {
	dash := &fakeDash{}
	srv := newTestServer(t, dash)

	rr := do(t, srv, http.MethodGet, "/api/budget-limits", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := dash.lastRange.String(); got != "2024-06-01..2024-06-30" {
		t.Fatalf("default range = %s", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/expenses?start=2024-01-01&end=2024-03-31", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := dash.lastRange.String(); got != "2024-01-01..2024-03-31" {
		t.Fatalf("explicit range = %s", got)
	}

	for _, target := range []string{
		"/api/expenses?start=01/02/2024",
		"/api/overview?start=2024-05-01&end=2024-04-01",
		"/api/transactions?limit=-1",
		"/api/transactions?type=bogus",
	} {
		rr := do(t, srv, http.MethodGet, target, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s status=%d, want 400", target, rr.Code)
		}
	}
}

func TestTransactionFilterPassedThrough(t *testing.T) {
	dash := &fakeDash{}
	srv := newTestServer(t, dash)

	rr := do(t, srv, http.MethodGet, "/api/transactions?type=withdrawal&limit=10&start=2024-06-01&end=2024-06-07", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	f := dash.lastTx
	if f.Type != "withdrawal" || f.Limit != 10 {
		t.Fatalf("filter = %+v", f)
	}
	if f.Start.Format(core.DateLayout) != "2024-06-01" || f.End.Format(core.DateLayout) != "2024-06-07" {
		t.Fatalf("filter dates = %v..%v", f.Start, f.End)
	}
}

func TestOverviewMoneyView(t *testing.T) {
	dash := &fakeDash{overview: dashboard.Overview{
		NetWorth: []core.CurrencyAmount{{CurrencyCode: "EUR", Amount: core.Money{Cents: 200050}}},
		Budgets: []core.BudgetUsage{
			core.NewBudgetUsage("Groceries", "EUR", core.Money{Cents: 40000}, core.Money{Cents: -45000}),
		},
	}}
	srv := newTestServer(t, dash)

	rr := do(t, srv, http.MethodGet, "/api/overview", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	var body struct {
		Data struct {
			Range    rangeView    `json:"range"`
			NetWorth []MoneyView  `json:"netWorth"`
			Budgets  []budgetView `json:"budgets"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if body.Data.Range.Start != "2024-06-01" || body.Data.Range.End != "2024-06-30" {
		t.Errorf("range = %+v", body.Data.Range)
	}
	if len(body.Data.NetWorth) != 1 {
		t.Fatalf("netWorth = %+v", body.Data.NetWorth)
	}
	nw := body.Data.NetWorth[0]
	if nw.Cents != 200050 || nw.Amount != 2000.50 || !strings.Contains(nw.Formatted, "2,000.50") {
		t.Errorf("netWorth view = %+v", nw)
	}
	if len(body.Data.Budgets) != 1 || !body.Data.Budgets[0].Over || body.Data.Budgets[0].Remaining.Cents != -5000 {
		t.Errorf("budgets = %+v", body.Data.Budgets)
	}
}

func TestCacheStatusAndClear(t *testing.T) {
	dash := &fakeDash{synced: testNow.Add(-time.Hour)}
	srv := newTestServer(t, dash)

	rr := do(t, srv, http.MethodGet, "/api/cache", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cache_accounts") || !strings.Contains(rr.Body.String(), `"lastSync":"2024-06-15T08:00:00Z"`) {
		t.Fatalf("unexpected status body: %s", rr.Body.String())
	}

	rr = do(t, srv, http.MethodDelete, "/api/cache", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("clear status=%d", rr.Code)
	}
	if !dash.cleared {
		t.Fatal("cache not cleared")
	}
}

func TestWebhookQueuesRefresh(t *testing.T) {
	pub := &fakePublisher{}
	srv := newTestServer(t, &fakeDash{}, WithPublisher(pub))

	rr := do(t, srv, http.MethodPost, "/api/webhooks/firefly", `{"uuid":"abc","trigger":"STORE_TRANSACTION"}`)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.Entity != dashboard.EntityAll || msg.Start != "2024-06-01" || msg.End != "2024-06-30" {
		t.Fatalf("message = %+v", msg)
	}
}

func TestWebhookPublishFailure(t *testing.T) {
	srv := newTestServer(t, &fakeDash{}, WithPublisher(&fakePublisher{err: errors.New("channel closed")}))

	rr := do(t, srv, http.MethodPost, "/api/webhooks/firefly", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestWebhookRefreshesInline(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		want   string
	}{
		{"budget trigger", "/api/webhooks/firefly", `{"trigger":"UPDATE_BUDGET"}`, dashboard.EntityBudgetLimits},
		{"empty body", "/api/webhooks/firefly", "", dashboard.EntityAll},
		{"entity override", "/api/webhooks/firefly?entity=accounts", `{"trigger":"STORE_TRANSACTION"}`, dashboard.EntityAccounts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dash := &fakeDash{}
			srv := newTestServer(t, dash)

			rr := do(t, srv, http.MethodPost, tt.target, tt.body)
			if rr.Code != http.StatusOK {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			if len(dash.refreshes) != 1 || dash.refreshes[0].entity != tt.want {
				t.Fatalf("refreshes = %+v, want entity %s", dash.refreshes, tt.want)
			}
		})
	}
}

func TestWebhookRejectsBadInput(t *testing.T) {
	dash := &fakeDash{}
	srv := newTestServer(t, dash)

	for _, tc := range []struct{ target, body string }{
		{"/api/webhooks/firefly?entity=wallets", ""},
		{"/api/webhooks/firefly", "{not json"},
	} {
		rr := do(t, srv, http.MethodPost, tc.target, tc.body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("%s %q status=%d, want 400", tc.target, tc.body, rr.Code)
		}
	}
	if len(dash.refreshes) != 0 {
		t.Fatalf("unexpected refreshes: %+v", dash.refreshes)
	}
}

func TestRateLimitAppliesToMutatingRequests(t *testing.T) {
	srv := newTestServer(t, &fakeDash{}, WithPublisher(&fakePublisher{}),
		WithRateLimit(ratelimit.Config{RequestsPerMinute: 2, MutatingOnly: true}))

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/api/webhooks/firefly", ""); rr.Code != http.StatusAccepted {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/api/webhooks/firefly", "")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After not set")
	}

	for i := 0; i < 5; i++ {
		if rr := do(t, srv, http.MethodGet, "/api/accounts", ""); rr.Code != http.StatusOK {
			t.Fatalf("GET %d limited: status=%d", i, rr.Code)
		}
	}
}

func TestMiddlewareHeaders(t *testing.T) {
	srv := newTestServer(t, &fakeDash{})

	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	req.Header.Set("X-Request-ID", "client-123")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q", got)
	}
	for _, h := range []string{"X-Content-Type-Options", "Content-Security-Policy", "Cache-Control"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}

	rr = do(t, srv, http.MethodGet, "/api/accounts?file=../../etc/passwd", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("suspicious request status=%d", rr.Code)
	}

	rr = do(t, srv, http.MethodPost, "/api/accounts", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status=%d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeDash{})
	do(t, srv, http.MethodGet, "/api/accounts", "")

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	for _, want := range []string{"http_requests_total 1", "cache_entries{state=\"all\"} 1", "rate_limit_hits_total 0"} {
		if !strings.Contains(rr.Body.String(), want) {
			t.Errorf("metrics missing %q:\n%s", want, rr.Body.String())
		}
	}
}
