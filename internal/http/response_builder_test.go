package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/kv"
	"budgetview/internal/query"
)

func TestJSONResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		Body(map[string]string{"hello": "world"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); !strings.HasPrefix(got, "application/json") {
		t.Errorf("Content-Type = %q", got)
	}
	if w.Header().Get("X-Custom") != "value" {
		t.Errorf("X-Custom header missing")
	}
	if strings.TrimSpace(w.Body.String()) != `{"hello":"world"}` {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestJSONResponseBuilder_Envelope(t *testing.T) {
	synced := time.Date(2024, 6, 14, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	w := httptest.NewRecorder()

	NewJSONResponse().Envelope([]int{1, 2}, true, synced, false).Write(w)

	if w.Header().Get(HeaderCacheData) != "true" {
		t.Errorf("%s = %q", HeaderCacheData, w.Header().Get(HeaderCacheData))
	}
	want := `{"data":[1,2],"isCacheData":true,"lastSynced":"2024-06-14T07:00:00Z","stale":false}`
	if strings.TrimSpace(w.Body.String()) != want {
		t.Errorf("Body = %s, want %s", w.Body.String(), want)
	}
}

func TestJSONResponseBuilder_EnvelopeWithoutSync(t *testing.T) {
	w := httptest.NewRecorder()
	NewJSONResponse().Envelope("x", false, time.Time{}, false).Write(w)

	if !strings.Contains(w.Body.String(), `"lastSynced":null`) {
		t.Errorf("lastSynced should be null: %s", w.Body.String())
	}
}

func TestWriteResultAppliesView(t *testing.T) {
	w := httptest.NewRecorder()
	res := query.Result[int]{Data: 21}

	writeResult(w, res, func(n int) any { return map[string]int{"double": n * 2} })

	var env struct {
		Data map[string]int `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data["double"] != 42 {
		t.Errorf("data = %v", env.Data)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrInvalidDate, http.StatusBadRequest},
		{fmt.Errorf("%w: limit", errInvalidParam), http.StatusBadRequest},
		{fmt.Errorf("%w: %q", dashboard.ErrUnknownEntity, "x"), http.StatusBadRequest},
		{dashboard.ErrNoCachedData, http.StatusServiceUnavailable},
		{dashboard.ErrOffline, http.StatusServiceUnavailable},
		{errors.New("dial tcp: connection refused"), http.StatusBadGateway},
		{fmt.Errorf("fetch accounts: %w", context.Canceled), statusClientClosedRequest},
		{fmt.Errorf("fetch accounts: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", errCacheStore, errors.New("disk full")), http.StatusInternalServerError},
		{fmt.Errorf("read key: %w", kv.ErrClosed), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestNewOverviewViewEmpty(t *testing.T) {
	v := newOverviewView(dashboard.Overview{Range: core.MonthRange(testNow)}).(overviewView)

	if v.NetWorth == nil || v.Budgets == nil || v.Expenses == nil {
		t.Fatalf("empty collections must encode as arrays: %+v", v)
	}
	data, _ := json.Marshal(v)
	if strings.Contains(string(data), "null") {
		t.Errorf("unexpected null in %s", data)
	}
}
