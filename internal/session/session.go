// Package session stores the Firefly III server URL and access token the
// CLI logs in with. Credentials live in the same key-value store as the
// cache but outside its namespace, so clearing the cache keeps the login.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"budgetview/internal/cache"
	"budgetview/internal/firefly"
	"budgetview/internal/kv"
	"budgetview/internal/log"
)

const (
	KeyServerURL = "session_server_url"
	KeyToken     = "session_token"
)

var (
	ErrNotLoggedIn        = errors.New("not logged in: run `budgetview login` first")
	ErrMissingCredentials = errors.New("server URL and token are required")
)

// Credentials identify one Firefly III account.
type Credentials struct {
	ServerURL string
	Token     string
}

func (c Credentials) complete() bool {
	return c.ServerURL != "" && c.Token != ""
}

// Verifier checks credentials against the server.
type Verifier func(ctx context.Context, creds Credentials) (firefly.User, error)

// FireflyVerifier verifies credentials by fetching the current user.
func FireflyVerifier(opts ...firefly.Option) Verifier {
	return func(ctx context.Context, creds Credentials) (firefly.User, error) {
		client, err := firefly.New(creds.ServerURL, creds.Token, opts...)
		if err != nil {
			return firefly.User{}, err
		}
		return client.CurrentUser(ctx)
	}
}

// Manager handles login state.
type Manager struct {
	kv       kv.Store
	cache    *cache.Store
	verify   Verifier
	override Credentials
}

type Option func(*Manager)

func WithVerifier(v Verifier) Option {
	return func(m *Manager) { m.verify = v }
}

// WithOverride supplies credentials from configuration. Non-empty fields
// take precedence over stored ones.
func WithOverride(creds Credentials) Option {
	return func(m *Manager) { m.override = creds }
}

// NewManager returns a session manager persisting into store. c is cleared
// on logout and when logging into a different server.
func NewManager(store kv.Store, c *cache.Store, opts ...Option) *Manager {
	m := &Manager{kv: store, cache: c, verify: FireflyVerifier()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login verifies the credentials and stores them.
func (m *Manager) Login(ctx context.Context, serverURL, token string) (firefly.User, error) {
	creds := Credentials{
		ServerURL: strings.TrimRight(strings.TrimSpace(serverURL), "/"),
		Token:     strings.TrimSpace(token),
	}
	if !creds.complete() {
		return firefly.User{}, ErrMissingCredentials
	}

	user, err := m.verify(ctx, creds)
	if err != nil {
		return firefly.User{}, fmt.Errorf("verify credentials: %w", err)
	}

	previous, _, err := m.kv.Get(ctx, KeyServerURL)
	if err != nil {
		return firefly.User{}, fmt.Errorf("read stored session: %w", err)
	}
	if previous != "" && previous != creds.ServerURL && m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			return firefly.User{}, fmt.Errorf("clear cache of previous server: %w", err)
		}
	}

	if err := m.kv.Set(ctx, KeyServerURL, creds.ServerURL); err != nil {
		return firefly.User{}, fmt.Errorf("store server URL: %w", err)
	}
	if err := m.kv.Set(ctx, KeyToken, creds.Token); err != nil {
		return firefly.User{}, fmt.Errorf("store token: %w", err)
	}

	slog.InfoContext(ctx, "Logged in",
		log.FieldComponent, log.ComponentSession,
		log.FieldOperation, log.OpLogin,
		"server", creds.ServerURL,
		"email", user.Attributes.Email)
	return user, nil
}

// Logout clears the cache and then forgets the stored credentials.
func (m *Manager) Logout(ctx context.Context) error {
	if m.cache != nil {
		if err := m.cache.Clear(ctx); err != nil {
			return fmt.Errorf("clear cache: %w", err)
		}
	}
	if err := m.kv.MultiRemove(ctx, []string{KeyServerURL, KeyToken}); err != nil {
		return fmt.Errorf("remove credentials: %w", err)
	}

	slog.InfoContext(ctx, "Logged out",
		log.FieldComponent, log.ComponentSession,
		log.FieldOperation, log.OpLogout)
	return nil
}

// Current returns the active credentials: configured values first, then
// stored ones.
func (m *Manager) Current(ctx context.Context) (Credentials, error) {
	creds := m.override
	if creds.complete() {
		return creds, nil
	}

	if creds.ServerURL == "" {
		v, _, err := m.kv.Get(ctx, KeyServerURL)
		if err != nil {
			return Credentials{}, fmt.Errorf("read server URL: %w", err)
		}
		creds.ServerURL = v
	}
	if creds.Token == "" {
		v, _, err := m.kv.Get(ctx, KeyToken)
		if err != nil {
			return Credentials{}, fmt.Errorf("read token: %w", err)
		}
		creds.Token = v
	}

	if !creds.complete() {
		return Credentials{}, ErrNotLoggedIn
	}
	return creds, nil
}
