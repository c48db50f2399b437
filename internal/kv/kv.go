// Package kv defines the string key-value persistence contract the cache is
// built on, together with its memory, SQLite and file backends.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kv store closed")

// ErrEmptyKey is returned when an operation receives an empty key.
var ErrEmptyKey = errors.New("kv key cannot be empty")

// Store is an asynchronous string key-value store. Every operation may fail;
// callers decide whether a failure is fatal.
type Store interface {
	// Get returns the stored value. found is false when the key is absent.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	AllKeys(ctx context.Context) ([]string, error)
	// MultiRemove deletes every listed key in one batch.
	MultiRemove(ctx context.Context, keys []string) error
	Close() error
}
