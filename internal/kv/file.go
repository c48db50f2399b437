package kv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// fileExtension marks files owned by the store inside its directory.
const fileExtension = ".kv"

// File stores one file per key inside a directory. Writes go to a temporary
// file first and are renamed into place.
type File struct {
	directory string
	mu        sync.RWMutex
}

// NewFile creates the directory if needed and returns a store rooted there.
func NewFile(directory string) (*File, error) {
	if directory == "" {
		return nil, errors.New("kv directory cannot be empty")
	}
	if err := os.MkdirAll(directory, 0750); err != nil {
		return nil, fmt.Errorf("create kv directory: %w", err)
	}
	return &File{directory: directory}, nil
}

func (f *File) Get(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.keyToFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return string(data), true, nil
}

func (f *File) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	filePath := f.keyToFilePath(key)
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, []byte(value), 0600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (f *File) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(key)
}

func (f *File) removeLocked(key string) error {
	if err := os.Remove(f.keyToFilePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// AllKeys returns the stored keys in lexical order.
func (f *File) AllKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.directory)
	if err != nil {
		return nil, fmt.Errorf("read kv directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != fileExtension {
			continue
		}
		key, err := url.QueryUnescape(strings.TrimSuffix(name, fileExtension))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// MultiRemove deletes every listed key, stopping at the first failure.
func (f *File) MultiRemove(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		if err := f.removeLocked(k); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) Close() error { return nil }

// keyToFilePath escapes key so any string maps to a single file name.
func (f *File) keyToFilePath(key string) string {
	return filepath.Join(f.directory, url.QueryEscape(key)+fileExtension)
}
