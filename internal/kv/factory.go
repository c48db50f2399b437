package kv

import (
	"context"
	"fmt"
	"log/slog"

	"budgetview/internal/config"
)

// BackendType selects a Store implementation.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
	FileBackend   BackendType = "file"
)

// IsValid reports whether t names a known backend.
func (t BackendType) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, FileBackend:
		return true
	}
	return false
}

// Config describes which backend to open and where it lives.
type Config struct {
	Type         BackendType
	SQLiteDBPath string
	Directory    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.KVBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid kv backend in config: %s", appConfig.KVBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		Directory:    appConfig.CacheDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid kv backend: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case FileBackend:
		if c.Directory == "" {
			return fmt.Errorf("directory is required for file backend")
		}
	}
	return nil
}

// Open creates the Store described by cfg.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case SQLiteBackend:
		store, err := NewSQLite(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		logger.InfoContext(ctx, "Initialized SQLite kv backend",
			"db_path", cfg.SQLiteDBPath,
			"schema_version", store.SchemaVersion())
		return store, nil
	case FileBackend:
		store, err := NewFile(cfg.Directory)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		logger.InfoContext(ctx, "Initialized file kv backend", "directory", cfg.Directory)
		return store, nil
	default:
		logger.InfoContext(ctx, "Initialized memory kv backend")
		return NewMemory(), nil
	}
}
