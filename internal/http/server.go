// Package http serves the dashboard as a JSON API. Every data endpoint wraps
// its payload in an envelope saying whether it came from the offline cache.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"budgetview/internal/amqp"
	"budgetview/internal/cache"
	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
	"budgetview/internal/log"
	"budgetview/internal/middleware/ratelimit"
	"budgetview/internal/middleware/security"
	"budgetview/internal/middleware/trace"
	"budgetview/internal/query"
)

// Dashboard is the read side the handlers need; *dashboard.Service implements it.
type Dashboard interface {
	Accounts(ctx context.Context) (query.Result[[]firefly.Account], error)
	Transactions(ctx context.Context, f firefly.TransactionFilter) (query.Result[[]firefly.Transaction], error)
	BudgetLimits(ctx context.Context, r core.DateRange) (query.Result[[]firefly.BudgetLimit], error)
	ExpensesByRange(ctx context.Context, r core.DateRange) (query.Result[[]firefly.InsightEntry], error)
	Budgets(ctx context.Context) (query.Result[[]firefly.Budget], error)
	PiggyBanks(ctx context.Context) (query.Result[[]firefly.PiggyBank], error)
	Recurrences(ctx context.Context) (query.Result[[]firefly.Recurrence], error)
	Overview(ctx context.Context, r core.DateRange) (query.Result[dashboard.Overview], error)

	LastSync(ctx context.Context) (time.Time, bool)
	CacheStatus(ctx context.Context) ([]cache.EntryStatus, error)
	ClearCache(ctx context.Context) error
	RefreshEntity(ctx context.Context, entity string, r core.DateRange) error
}

// Publisher queues refresh requests for the worker.
type Publisher interface {
	PublishRefresh(ctx context.Context, msg *amqp.RefreshMessage) error
}

type Server struct {
	http.Server
	dash      Dashboard
	publisher Publisher
	now       func() time.Time
	started   time.Time
	logger    *log.Logger

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithPublisher routes webhook refreshes through the message queue instead
// of running them inline.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.publisher = p }
}

// WithRateLimit overrides the default limiter configuration.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		s.rateLimiter = ratelimit.NewLimiter(cfg)
	}
}

// WithClock sets the clock used for default date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, dash Dashboard, opts ...Option) *Server {
	s := &Server{
		dash:             dash,
		now:              time.Now,
		started:          time.Now(),
		logger:           log.New(log.DefaultConfig()),
		securityDetector: security.NewDetector(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rateLimiter == nil {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, s.logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/accounts", s.handleAccounts)
	mux.HandleFunc("GET /api/transactions", s.handleTransactions)
	mux.HandleFunc("GET /api/budget-limits", s.handleBudgetLimits)
	mux.HandleFunc("GET /api/expenses", s.handleExpenses)
	mux.HandleFunc("GET /api/budgets", s.handleBudgets)
	mux.HandleFunc("GET /api/piggy-banks", s.handlePiggyBanks)
	mux.HandleFunc("GET /api/recurrences", s.handleRecurrences)
	mux.HandleFunc("GET /api/overview", s.handleOverview)

	mux.HandleFunc("GET /api/cache", s.handleCacheStatus)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheClear)
	mux.HandleFunc("POST /api/webhooks/firefly", s.handleWebhook)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		NewJSONResponse().Status(http.StatusTooManyRequests).Error("rate limit exceeded").Write(w)
	})

	var handler http.Handler = mux
	handler = limit(handler)
	handler = s.securityDetector.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = s.traceMiddleware.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
