// Package cli implements the budgetview command line and the initialization
// shared by cmd/budgetview and cmd/budgetview-worker.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"budgetview/internal/cache"
	"budgetview/internal/config"
	"budgetview/internal/dashboard"
	"budgetview/internal/firefly"
	"budgetview/internal/kv"
	"budgetview/internal/log"
	"budgetview/internal/query"
	"budgetview/internal/session"
)

// SetupLogger builds the process logger and makes it the slog default.
// An unparsable level falls back to info.
func SetupLogger(level string, out io.Writer) *log.Logger {
	cfg := log.DefaultConfig()
	if lvl, err := log.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	if out != nil {
		cfg.Output = out
	}
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore opens the key-value backend named by cfg.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (kv.Store, error) {
	kvCfg, err := kv.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	return kv.Open(ctx, kvCfg, logger.WithComponent(log.ComponentKV).Logger)
}

// Stack is the cache and query layer built over one key-value store.
type Stack struct {
	Cache    *cache.Store
	Queries  *query.Client
	Sessions *session.Manager
}

// NewStack wires the cache, query client and session manager over store.
func NewStack(store kv.Store, cfg *config.Config, logger *log.Logger, now func() time.Time, verify session.Verifier) (*Stack, error) {
	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if now != nil {
		cacheOpts = append(cacheOpts, cache.WithClock(now))
	}
	c, err := cache.NewStore(store, cache.DefaultKeys(), cacheOpts...)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	queries := query.NewClient(c,
		query.WithMaxAge(cfg.CacheMaxAge),
		query.WithLogger(logger))

	sessionOpts := []session.Option{
		session.WithOverride(session.Credentials{ServerURL: cfg.FireflyURL, Token: cfg.FireflyToken}),
	}
	if verify != nil {
		sessionOpts = append(sessionOpts, session.WithVerifier(verify))
	}

	return &Stack{
		Cache:    c,
		Queries:  queries,
		Sessions: session.NewManager(store, c, sessionOpts...),
	}, nil
}

// FireflyOptions maps the remote client settings in cfg to client options.
func FireflyOptions(cfg *config.Config, logger *log.Logger) []firefly.Option {
	return []firefly.Option{
		firefly.WithTimeout(cfg.HTTPTimeout),
		firefly.WithRetryPolicy(firefly.RetryPolicy{
			MaxAttempts: cfg.RetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
			MaxDelay:    cfg.RetryMaxDelay,
		}),
		firefly.WithLogger(logger),
	}
}

// RemoteFactory returns a constructor for Firefly clients configured from cfg.
func RemoteFactory(cfg *config.Config, logger *log.Logger) func(session.Credentials) (dashboard.Remote, error) {
	return func(creds session.Credentials) (dashboard.Remote, error) {
		return firefly.New(creds.ServerURL, creds.Token, FireflyOptions(cfg, logger)...)
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals or when parent
// is done, and a channel that is closed once cleanup has finished.
func GracefulShutdown(parent context.Context, logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete", log.FieldOperation, log.OpShutdown)
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
