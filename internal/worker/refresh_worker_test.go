package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetview/internal/amqp"
	"budgetview/internal/core"
	"budgetview/internal/dashboard"
)

type call struct {
	entity string
	r      core.DateRange
}

type fakeService struct {
	stale bool
	err   error
	calls []call
}

func (f *fakeService) RefreshEntity(_ context.Context, entity string, r core.DateRange) error {
	f.calls = append(f.calls, call{entity, r})
	return f.err
}

func (f *fakeService) Stale(context.Context) bool { return f.stale }

func newTestWorker(svc *fakeService) *RefreshWorker {
	w := NewRefreshWorker(svc)
	w.now = func() time.Time { return time.Date(2024, 6, 15, 8, 0, 0, 0, time.UTC) }
	return w
}

func TestHandleRefreshMessage_DefaultsToCurrentMonth(t *testing.T) {
	svc := &fakeService{}
	w := newTestWorker(svc)

	err := w.HandleRefreshMessage(context.Background(), &amqp.RefreshMessage{Entity: dashboard.EntityAccounts})
	require.NoError(t, err)
	require.Len(t, svc.calls, 1)
	assert.Equal(t, dashboard.EntityAccounts, svc.calls[0].entity)
	assert.Equal(t, "2024-06-01..2024-06-30", svc.calls[0].r.String())
}

func TestHandleRefreshMessage_ExplicitRange(t *testing.T) {
	svc := &fakeService{}
	w := newTestWorker(svc)

	err := w.HandleRefreshMessage(context.Background(), &amqp.RefreshMessage{
		Entity: dashboard.EntityExpenses, Start: "2024-05-01", End: "2024-05-31",
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01..2024-05-31", svc.calls[0].r.String())
}

func TestHandleRefreshMessage_InvalidRangeIsDropped(t *testing.T) {
	svc := &fakeService{}
	w := newTestWorker(svc)

	err := w.HandleRefreshMessage(context.Background(), &amqp.RefreshMessage{Entity: "all", Start: "yesterday"})
	assert.NoError(t, err)
	assert.Empty(t, svc.calls)
}

func TestHandleRefreshMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"remote failure is retried", errors.New("connection refused"), true},
		{"unknown entity is dropped", fmt.Errorf("%w: %q", dashboard.ErrUnknownEntity, "wallets"), false},
		{"cache fallback is acked", fmt.Errorf("refresh accounts: %w", dashboard.ErrServedFromCache), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWorker(&fakeService{err: tt.err})
			err := w.HandleRefreshMessage(context.Background(), &amqp.RefreshMessage{Entity: "wallets"})
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestStartupRefreshCheck(t *testing.T) {
	fresh := &fakeService{stale: false}
	require.NoError(t, newTestWorker(fresh).StartupRefreshCheck(context.Background()))
	assert.Empty(t, fresh.calls)

	stale := &fakeService{stale: true}
	require.NoError(t, newTestWorker(stale).StartupRefreshCheck(context.Background()))
	require.Len(t, stale.calls, 1)
	assert.Equal(t, dashboard.EntityAll, stale.calls[0].entity)
}
