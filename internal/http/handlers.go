package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"budgetview/internal/amqp"
	"budgetview/internal/dashboard"
	"budgetview/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the cache store is readable. The remote is not
// probed: the API keeps serving cached data while it is down.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if entries, err := s.dash.CacheStatus(ctx); err != nil {
		checks["cache"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["cache"] = map[string]any{"entries": len(entries), "status": "ok"}
	}

	if last, ok := s.dash.LastSync(ctx); ok {
		checks["last_sync"] = last.UTC().Format(time.RFC3339)
	} else {
		checks["last_sync"] = "never"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}
	if s.publisher != nil {
		checks["refresh_queue"] = "configured"
	} else {
		checks["refresh_queue"] = "inline"
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides request and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	entries, stale := 0, 0
	if status, err := s.dash.CacheStatus(r.Context()); err == nil {
		entries = len(status)
		for _, e := range status {
			if e.Stale {
				stale++
			}
		}
	}

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_response_time_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n")
	fmt.Fprintf(w, "# TYPE cache_entries gauge\n")
	fmt.Fprintf(w, "cache_entries{state=\"all\"} %d\n", entries)
	fmt.Fprintf(w, "cache_entries{state=\"stale\"} %d\n\n", stale)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	res, err := s.dash.Accounts(r.Context())
	if err != nil {
		writeError(w, r, "accounts", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := ParseTransactionFilter(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "transactions", err)
		return
	}
	res, err := s.dash.Transactions(r.Context(), f)
	if err != nil {
		writeError(w, r, "transactions", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleBudgetLimits(w http.ResponseWriter, r *http.Request) {
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "budget_limits", err)
		return
	}
	res, err := s.dash.BudgetLimits(r.Context(), dr)
	if err != nil {
		writeError(w, r, "budget_limits", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "expenses", err)
		return
	}
	res, err := s.dash.ExpensesByRange(r.Context(), dr)
	if err != nil {
		writeError(w, r, "expenses", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	res, err := s.dash.Budgets(r.Context())
	if err != nil {
		writeError(w, r, "budgets", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handlePiggyBanks(w http.ResponseWriter, r *http.Request) {
	res, err := s.dash.PiggyBanks(r.Context())
	if err != nil {
		writeError(w, r, "piggy_banks", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleRecurrences(w http.ResponseWriter, r *http.Request) {
	res, err := s.dash.Recurrences(r.Context())
	if err != nil {
		writeError(w, r, "recurrences", err)
		return
	}
	writeResult(w, res, nil)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "overview", err)
		return
	}
	res, err := s.dash.Overview(r.Context(), dr)
	if err != nil {
		writeError(w, r, "overview", err)
		return
	}
	writeResult(w, res, newOverviewView)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.dash.CacheStatus(r.Context())
	if err != nil {
		writeError(w, r, "cache_status", fmt.Errorf("%w: %w", errCacheStore, err))
		return
	}

	body := map[string]any{"entries": entries, "lastSync": nil}
	if last, ok := s.dash.LastSync(r.Context()); ok {
		body["lastSync"] = last.UTC()
	}
	NewJSONResponse().Body(body).Write(w)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.dash.ClearCache(r.Context()); err != nil {
		writeError(w, r, "cache_clear", fmt.Errorf("%w: %w", errCacheStore, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWebhook refreshes the collections a server event touched. With a
// publisher the refresh is queued and 202 is returned; otherwise it runs
// inline before answering 200.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := ParseWebhook(r)
	if err != nil {
		writeError(w, r, "webhook", err)
		return
	}

	entity := req.Entity()
	if e := r.URL.Query().Get("entity"); e != "" {
		entity = e
	}
	if !dashboard.ValidEntity(entity) {
		writeError(w, r, "webhook", fmt.Errorf("%w: %q", dashboard.ErrUnknownEntity, entity))
		return
	}
	dr, err := ParseDateRange(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, "webhook", err)
		return
	}

	logger := log.FromContext(r.Context())
	body := map[string]any{"entity": entity, "start": dr.StartDate(), "end": dr.EndDate()}

	if s.publisher != nil {
		if err := s.publisher.PublishRefresh(r.Context(), amqp.NewRefreshMessage(entity, dr)); err != nil {
			writeError(w, r, "webhook", fmt.Errorf("queue refresh: %w", err))
			return
		}
		logger.InfoContext(r.Context(), "Refresh queued from webhook",
			log.FieldEntity, entity,
			"trigger", req.Trigger)
		body["status"] = "queued"
		NewJSONResponse().Status(http.StatusAccepted).Body(body).Write(w)
		return
	}

	if err := s.dash.RefreshEntity(r.Context(), entity, dr); err != nil {
		writeError(w, r, "webhook", err)
		return
	}
	logger.InfoContext(r.Context(), "Refreshed from webhook",
		log.FieldEntity, entity,
		"trigger", req.Trigger)
	body["status"] = "refreshed"
	NewJSONResponse().Body(body).Write(w)
}

var _ Dashboard = (*dashboard.Service)(nil)
