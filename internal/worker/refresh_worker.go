package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"budgetview/internal/amqp"
	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/log"
)

// Refresher is the part of the dashboard service the worker drives.
type Refresher interface {
	RefreshEntity(ctx context.Context, entity string, r core.DateRange) error
	Stale(ctx context.Context) bool
}

// RefreshWorker turns refresh requests from the queue into cache refreshes.
type RefreshWorker struct {
	service Refresher
	now     func() time.Time
}

func NewRefreshWorker(service Refresher) *RefreshWorker {
	return &RefreshWorker{service: service, now: time.Now}
}

// HandleRefreshMessage processes a single refresh message from AMQP
func (w *RefreshWorker) HandleRefreshMessage(ctx context.Context, msg *amqp.RefreshMessage) error {
	r, err := msg.Range(w.now())
	if err != nil {
		// Acked: an invalid range never succeeds.
		slog.WarnContext(ctx, "Ignoring refresh message with invalid range",
			log.FieldComponent, log.ComponentWorker,
			log.FieldEntity, msg.Entity,
			"start", msg.Start,
			"end", msg.End,
			log.FieldError, err)
		return nil
	}

	slog.InfoContext(ctx, "Processing refresh message",
		log.FieldComponent, log.ComponentWorker,
		"message_id", msg.ID,
		log.FieldEntity, msg.Entity,
		"range", r.String(),
		"timestamp", msg.Timestamp)

	if err := w.service.RefreshEntity(ctx, msg.Entity, r); err != nil {
		if errors.Is(err, dashboard.ErrServedFromCache) {
			// Acked: the periodic refresher retries once the cache goes stale.
			slog.WarnContext(ctx, "Remote unavailable, keeping cached data",
				log.FieldComponent, log.ComponentWorker,
				"message_id", msg.ID,
				log.FieldEntity, msg.Entity,
				log.FieldError, err)
			return nil
		}
		if errors.Is(err, dashboard.ErrUnknownEntity) {
			slog.WarnContext(ctx, "Ignoring refresh message for unknown entity",
				log.FieldComponent, log.ComponentWorker,
				log.FieldEntity, msg.Entity)
			return nil
		}
		return fmt.Errorf("refresh %s: %w", msg.Entity, err)
	}
	return nil
}

// StartupRefreshCheck refreshes everything when the cache is missing or
// stale, covering requests missed while the worker was down.
func (w *RefreshWorker) StartupRefreshCheck(ctx context.Context) error {
	if !w.service.Stale(ctx) {
		slog.InfoContext(ctx, "Cache is fresh on startup",
			log.FieldComponent, log.ComponentWorker)
		return nil
	}

	slog.InfoContext(ctx, "Cache is stale on startup, refreshing",
		log.FieldComponent, log.ComponentWorker)
	return w.service.RefreshEntity(ctx, dashboard.EntityAll, core.MonthRange(w.now()))
}
