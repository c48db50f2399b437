// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses: the cache
// envelope, error bodies and the X-Cache-Data header.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
	"budgetview/internal/kv"
	"budgetview/internal/log"
	"budgetview/internal/query"
)

// HeaderCacheData tells clients whether the body came from the offline cache.
const HeaderCacheData = "X-Cache-Data"

// Envelope wraps every data response.
type Envelope struct {
	Data        any        `json:"data"`
	IsCacheData bool       `json:"isCacheData"`
	LastSynced  *time.Time `json:"lastSynced"`
	Stale       bool       `json:"stale"`
}

type errorBody struct {
	Error string `json:"error"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(key, value string) *JSONResponseBuilder {
	b.headers[key] = value
	return b
}

// Body sets a raw JSON body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Error sets an {"error": msg} body.
func (b *JSONResponseBuilder) Error(msg string) *JSONResponseBuilder {
	b.body = errorBody{Error: msg}
	return b
}

// Envelope wraps data with its cache flags and sets X-Cache-Data.
func (b *JSONResponseBuilder) Envelope(data any, isCacheData bool, lastSynced time.Time, stale bool) *JSONResponseBuilder {
	env := Envelope{Data: data, IsCacheData: isCacheData, Stale: stale}
	if !lastSynced.IsZero() {
		t := lastSynced.UTC()
		env.LastSynced = &t
	}
	b.body = env
	return b.Header(HeaderCacheData, strconv.FormatBool(isCacheData))
}

// Write sends the response.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	for key, value := range b.headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(b.statusCode)
	if b.body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(b.body); err != nil {
		slog.Error("Failed to encode response", log.FieldComponent, log.ComponentHTTP, log.FieldError, err)
	}
}

// writeResult renders res through view inside the envelope.
func writeResult[T any](w http.ResponseWriter, res query.Result[T], view func(T) any) {
	var data any = res.Data
	if view != nil {
		data = view(res.Data)
	}
	NewJSONResponse().Envelope(data, res.IsCacheData, res.LastSynced, res.Stale).Write(w)
}

// statusClientClosedRequest is reported when the client went away first.
const statusClientClosedRequest = 499

// errCacheStore marks failures of the local cache store.
var errCacheStore = errors.New("cache store failure")

// statusFor maps a service error to a response status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, errCacheStore), errors.Is(err, kv.ErrClosed):
		return http.StatusInternalServerError
	case errors.Is(err, core.ErrInvalidDate), errors.Is(err, core.ErrInvalidRange),
		errors.Is(err, errInvalidParam), errors.Is(err, dashboard.ErrUnknownEntity):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrNoCachedData), errors.Is(err, dashboard.ErrNotCacheable),
		errors.Is(err, dashboard.ErrOffline):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// writeError logs err and sends it with the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err)
	} else {
		logger.DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, status,
			log.FieldError, err)
	}
	NewJSONResponse().Status(status).Error(err.Error()).Write(w)
}

// MoneyView is the wire form of an amount.
type MoneyView struct {
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Cents     int64   `json:"cents"`
	Formatted string  `json:"formatted"`
}

func newMoneyView(m core.Money, currencyCode string) MoneyView {
	return MoneyView{
		Currency:  currencyCode,
		Amount:    m.Float(),
		Cents:     m.Cents,
		Formatted: core.FormatMoney(m, currencyCode),
	}
}

func moneyViews(items []core.CurrencyAmount) []MoneyView {
	out := make([]MoneyView, 0, len(items))
	for _, it := range items {
		out = append(out, newMoneyView(it.Amount, it.CurrencyCode))
	}
	return out
}

type budgetView struct {
	Name      string    `json:"name"`
	Limit     MoneyView `json:"limit"`
	Spent     MoneyView `json:"spent"`
	Remaining MoneyView `json:"remaining"`
	Percent   float64   `json:"percent"`
	Over      bool      `json:"over"`
}

type rangeView struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type overviewView struct {
	Range         rangeView              `json:"range"`
	NetWorth      []MoneyView            `json:"netWorth"`
	TotalExpenses []MoneyView            `json:"totalExpenses"`
	Budgets       []budgetView           `json:"budgets"`
	Expenses      []firefly.InsightEntry `json:"expenses"`
}

func newOverviewView(o dashboard.Overview) any {
	budgets := make([]budgetView, 0, len(o.Budgets))
	for _, b := range o.Budgets {
		budgets = append(budgets, budgetView{
			Name:      b.Name,
			Limit:     newMoneyView(b.Limit, b.CurrencyCode),
			Spent:     newMoneyView(b.Spent, b.CurrencyCode),
			Remaining: newMoneyView(b.Remaining, b.CurrencyCode),
			Percent:   b.Percent,
			Over:      b.Over,
		})
	}
	expenses := o.Expenses
	if expenses == nil {
		expenses = []firefly.InsightEntry{}
	}
	return overviewView{
		Range:         rangeView{Start: o.Range.StartDate(), End: o.Range.EndDate()},
		NetWorth:      moneyViews(o.NetWorth),
		TotalExpenses: moneyViews(o.TotalExpenses),
		Budgets:       budgets,
		Expenses:      expenses,
	}
}
