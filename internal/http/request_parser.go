// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating query strings
// and request bodies shared by the API handlers.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
)

const (
	maxLimit       = 500
	maxWebhookBody = 1 << 20
)

var errInvalidParam = errors.New("invalid parameter")

// transactionTypes are the filters the server accepts for /transactions.
var transactionTypes = map[string]bool{
	"": true, "all": true, "withdrawal": true, "withdrawals": true, "expense": true,
	"deposit": true, "deposits": true, "income": true, "transfer": true, "transfers": true,
}

// ParseDateRange reads start and end (YYYY-MM-DD) from the query string.
// Missing bounds default to the month containing now.
func ParseDateRange(query url.Values, now time.Time) (core.DateRange, error) {
	return core.ParseDateRange(query.Get("start"), query.Get("end"), now)
}

// ParseLimit reads a positive limit capped at maxLimit. Empty means no limit.
func ParseLimit(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", errInvalidParam)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

// ParseTransactionFilter builds a transaction filter. Unlike the other
// endpoints, dates are only applied when given explicitly.
func ParseTransactionFilter(query url.Values, now time.Time) (firefly.TransactionFilter, error) {
	var f firefly.TransactionFilter

	if query.Get("start") != "" || query.Get("end") != "" {
		r, err := ParseDateRange(query, now)
		if err != nil {
			return f, err
		}
		f.Start, f.End = r.Start, r.End
	}

	typ := strings.ToLower(strings.TrimSpace(query.Get("type")))
	if !transactionTypes[typ] {
		return f, fmt.Errorf("%w: unknown transaction type %q", errInvalidParam, typ)
	}
	f.Type = typ

	limit, err := ParseLimit(query)
	if err != nil {
		return f, err
	}
	f.Limit = limit
	return f, nil
}

// WebhookRequest is the subset of a server webhook delivery used to decide
// what to refresh.
type WebhookRequest struct {
	UUID    string `json:"uuid"`
	Trigger string `json:"trigger"`
}

// Entity maps the webhook trigger to the collections it invalidates.
func (w WebhookRequest) Entity() string {
	switch {
	case strings.Contains(w.Trigger, "BUDGET"):
		return dashboard.EntityBudgetLimits
	case strings.Contains(w.Trigger, "ACCOUNT"):
		return dashboard.EntityAccounts
	default:
		// Transactions move balances and expense totals as well.
		return dashboard.EntityAll
	}
}

// ParseWebhook decodes a webhook body. An empty body is a refresh of everything.
func ParseWebhook(r *http.Request) (WebhookRequest, error) {
	var req WebhookRequest

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		return req, fmt.Errorf("%w: read body: %v", errInvalidParam, err)
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("%w: decode body: %v", errInvalidParam, err)
	}
	return req, nil
}
