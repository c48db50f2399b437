package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"budgetview/internal/core"
	"budgetview/internal/dashboard"
	"budgetview/internal/log"
)

// RefreshTarget is what the refresher keeps up to date.
type RefreshTarget interface {
	Stale(ctx context.Context) bool
	Refresh(ctx context.Context, r core.DateRange) (dashboard.RefreshReport, error)
}

// RefresherConfig holds configuration for the background refresher
type RefresherConfig struct {
	// CheckInterval is how often staleness is checked (default: 15m)
	CheckInterval time.Duration

	// Now is the clock used to pick the refresh range (default: time.Now)
	Now func() time.Time
}

// DefaultRefresherConfig returns sensible defaults
func DefaultRefresherConfig() RefresherConfig {
	return RefresherConfig{
		CheckInterval: 15 * time.Minute,
		Now:           time.Now,
	}
}

// Refresher periodically refreshes the cache when the last full refresh is
// missing or stale.
type Refresher struct {
	target RefreshTarget
	config RefresherConfig

	// Lifecycle management
	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce *sync.Once

	lastErr error
	runs    int
}

// NewRefresher creates a new refresher
func NewRefresher(target RefreshTarget, config RefresherConfig) *Refresher {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultRefresherConfig().CheckInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Refresher{
		target: target,
		config: config,
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.stopOnce = new(sync.Once)
	r.mu.Unlock()

	go r.runLoop(ctx)

	slog.InfoContext(ctx, "Refresher started",
		log.FieldComponent, log.ComponentRefresher,
		"check_interval", r.config.CheckInterval)

	return nil
}

// Stop gracefully stops the refresher and waits for the loop to exit.
// After a timeout it may be called again to keep waiting.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	stopCh, doneCh, once := r.stopCh, r.doneCh, r.stopOnce
	r.mu.Unlock()

	once.Do(func() { close(stopCh) })

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Refresher stopped gracefully",
			log.FieldComponent, log.ComponentRefresher)
	case <-ctx.Done():
		slog.WarnContext(ctx, "Refresher stop timed out",
			log.FieldComponent, log.ComponentRefresher)
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the refresher is currently running
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Stats returns the number of refreshes attempted and the last error.
func (r *Refresher) Stats() (runs int, lastErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs, r.lastErr
}

func (r *Refresher) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.config.CheckInterval)
	defer ticker.Stop()

	// Check immediately on startup
	r.refreshIfStale(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshIfStale(ctx)
		}
	}
}

func (r *Refresher) refreshIfStale(ctx context.Context) {
	if !r.target.Stale(ctx) {
		slog.DebugContext(ctx, "Cache is fresh, skipping refresh",
			log.FieldComponent, log.ComponentRefresher)
		return
	}
	_ = r.RefreshNow(ctx)
}

// RefreshNow refreshes the current month regardless of staleness.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	rng := core.MonthRange(r.config.Now())
	report, err := r.target.Refresh(ctx, rng)

	r.mu.Lock()
	r.runs++
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		slog.WarnContext(ctx, "Background refresh failed",
			log.FieldComponent, log.ComponentRefresher,
			log.FieldOperation, log.OpSync,
			log.FieldError, err)
		return err
	}

	slog.InfoContext(ctx, "Background refresh completed",
		log.FieldComponent, log.ComponentRefresher,
		log.FieldOperation, log.OpSync,
		log.FieldCount, len(report.Entities),
		"synced_at", report.SyncedAt.Format(time.RFC3339))
	return nil
}
