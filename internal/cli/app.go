package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"budgetview/internal/config"
	"budgetview/internal/dashboard"
	"budgetview/internal/kv"
	"budgetview/internal/log"
	"budgetview/internal/session"
)

// Env holds the dependencies the commands run against. Zero fields are
// filled from the configuration on first use, so tests can inject a store,
// a clock and a fake remote.
type Env struct {
	Config    *config.Config
	Store     kv.Store
	Now       func() time.Time
	NewRemote func(session.Credentials) (dashboard.Remote, error)
	Verifier  session.Verifier
	LogOutput io.Writer
}

// app is the per-invocation state shared by all commands.
type app struct {
	env    *Env
	logger *log.Logger

	offline bool
	debug   bool
	json    bool

	store     kv.Store
	ownsStore bool
	stack     *Stack
}

func newApp(env *Env) *app {
	if env == nil {
		env = &Env{}
	}
	return &app{env: env, logger: log.Discard()}
}

func (a *app) now() time.Time {
	if a.env.Now != nil {
		return a.env.Now()
	}
	return time.Now()
}

// setupLogger points the logger at out with the given level, or debug when
// --debug is set.
func (a *app) setupLogger(level slog.Level, out io.Writer) {
	if a.debug {
		level = slog.LevelDebug
	}
	if a.env.LogOutput != nil {
		out = a.env.LogOutput
	}
	cfg := log.DefaultConfig()
	cfg.Level = level
	cfg.Component = log.ComponentCLI
	cfg.Output = out
	a.logger = log.New(cfg)
	log.SetDefault(a.logger)
}

func (a *app) config() (*config.Config, error) {
	if a.env.Config != nil {
		return a.env.Config, nil
	}
	LoadEnvFile()
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	a.env.Config = cfg
	return cfg, nil
}

// open builds the store and the cache stack once per invocation.
func (a *app) open(ctx context.Context) (*Stack, error) {
	if a.stack != nil {
		return a.stack, nil
	}
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	store := a.env.Store
	if store == nil {
		store, err = OpenStore(ctx, cfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.ownsStore = true
	}
	a.store = store

	verify := a.env.Verifier
	if verify == nil {
		verify = session.FireflyVerifier(FireflyOptions(cfg, a.logger)...)
	}
	stack, err := NewStack(store, cfg, a.logger, a.env.Now, verify)
	if err != nil {
		a.close()
		return nil, err
	}
	a.stack = stack
	return stack, nil
}

// service returns the dashboard service: cache-only with --offline,
// otherwise backed by a remote built from the active session.
func (a *app) service(ctx context.Context) (*dashboard.Service, error) {
	stack, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	if a.offline {
		return dashboard.NewService(nil, stack.Queries, dashboard.WithOffline(true))
	}

	creds, err := stack.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	newRemote := a.env.NewRemote
	if newRemote == nil {
		newRemote = RemoteFactory(a.env.Config, a.logger)
	}
	remote, err := newRemote(creds)
	if err != nil {
		return nil, fmt.Errorf("create remote client: %w", err)
	}
	return dashboard.NewService(remote, stack.Queries)
}

// close waits for pending cache mirrors and releases the store if this
// invocation opened it.
func (a *app) close() error {
	if a.stack != nil {
		a.stack.Queries.Wait()
	}
	if a.store == nil || !a.ownsStore {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
