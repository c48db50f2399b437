package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"

	"budgetview/internal/kv"
	"budgetview/internal/log"
)

// ErrInvalidVersion is returned for a schema version that is not semver.
var ErrInvalidVersion = errors.New("invalid cache schema version")

// Store is the typed cache layer over a kv.Store.
//
// Reads never fail: a missing key, a persistence error and an undecodable
// value are all reported as a miss and logged. Writes, removals and Clear
// return their errors to the caller.
type Store struct {
	kv      kv.Store
	keys    Keys
	version string
	now     func() time.Time
	logger  *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for entry metadata.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithVersion overrides the schema version stamped on and expected from entries.
func WithVersion(version string) Option {
	return func(s *Store) { s.version = version }
}

// WithLogger sets the logger used for read failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) { s.logger = logger.WithComponent(log.ComponentCache) }
}

// NewStore wraps backend with the given key layout.
func NewStore(backend kv.Store, keys Keys, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("cache: nil kv store")
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		kv:      backend,
		keys:    keys,
		version: SchemaVersion,
		now:     time.Now,
		logger:  log.New(log.DefaultConfig()).WithComponent(log.ComponentCache),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := semver.StrictNewVersion(s.version); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidVersion, s.version, err)
	}
	return s, nil
}

// Keys returns the key layout the store was built with.
func (s *Store) Keys() Keys { return s.keys }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// Get reads and decodes the value at key. It reports false on a miss, on a
// persistence error and on a value that does not decode into T.
func Get[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T

	raw, found, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "Cache read failed",
			log.FieldCacheKey, key,
			log.FieldOperation, log.OpRead,
			log.FieldError, err)
		return zero, false
	}
	if !found {
		return zero, false
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.logger.WarnContext(ctx, "Cache value could not be decoded",
			log.FieldCacheKey, key,
			log.FieldOperation, log.OpParse,
			log.FieldError, err)
		return zero, false
	}
	return v, true
}

// Set encodes value as JSON and writes it at key, replacing any previous value.
func Set[T any](ctx context.Context, s *Store, key string, value T) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Remove deletes a single key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.kv.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Clear removes every key in the cache namespace in one batch. Keys outside
// the namespace are left untouched.
func (s *Store) Clear(ctx context.Context) error {
	owned, err := s.ownedKeys(ctx)
	if err != nil {
		return err
	}
	if len(owned) == 0 {
		return nil
	}

	if err := s.kv.MultiRemove(ctx, owned); err != nil {
		return fmt.Errorf("remove cache keys: %w", err)
	}

	s.logger.InfoContext(ctx, "Cache cleared",
		log.FieldOperation, log.OpClear,
		log.FieldCount, len(owned))
	return nil
}

func (s *Store) ownedKeys(ctx context.Context) ([]string, error) {
	all, err := s.kv.AllKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	owned := make([]string, 0, len(all))
	for _, k := range all {
		if s.keys.Owns(k) {
			owned = append(owned, k)
		}
	}
	return owned, nil
}

// GetEntry reads the entry at key. Entries written under a different schema
// version are reported as a miss and left in place.
func GetEntry[T any](ctx context.Context, s *Store, key string) (Entry[T], bool) {
	e, ok := Get[Entry[T]](ctx, s, key)
	if !ok {
		return Entry[T]{}, false
	}
	if e.Metadata.Version != s.version {
		s.logger.WarnContext(ctx, "Cache entry has unexpected schema version",
			log.FieldCacheKey, key,
			"version", e.Metadata.Version,
			"expected_version", s.version)
		return Entry[T]{}, false
	}
	return e, true
}

// SetEntry writes data at key with metadata stamped from the store clock.
func SetEntry[T any](ctx context.Context, s *Store, key string, data T) (Entry[T], error) {
	e := Entry[T]{Data: data, Metadata: NewMetadata(s.now(), s.version)}
	if err := Set(ctx, s, key, e); err != nil {
		return Entry[T]{}, err
	}
	return e, nil
}

// EntryStatus summarises one cache entry without decoding its payload.
type EntryStatus struct {
	Key        string    `json:"key"`
	LastSynced time.Time `json:"lastSynced"`
	Version    string    `json:"version"`
	Stale      bool      `json:"stale"`
	Readable   bool      `json:"readable"`
}

// Status lists every entry in the cache namespace, ordered by key.
func (s *Store) Status(ctx context.Context, maxAge time.Duration) ([]EntryStatus, error) {
	owned, err := s.ownedKeys(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]EntryStatus, 0, len(owned))
	for _, k := range owned {
		st := EntryStatus{Key: k}
		if e, ok := Get[Entry[json.RawMessage]](ctx, s, k); ok {
			st.Readable = e.Metadata.Version == s.version
			st.Version = e.Metadata.Version
			st.LastSynced = e.Metadata.SyncedAt()
			st.Stale = e.Metadata.IsStale(maxAge, now)
		}
		out = append(out, st)
	}
	return out, nil
}
