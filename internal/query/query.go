// Package query runs remote fetches with an offline fallback.
//
// A successful fetch is returned to the caller and mirrored into the cache in
// the background. A failed fetch falls back to the last cached value for the
// same cache key, flagged with IsCacheData; when nothing is cached the fetch
// error is returned unchanged.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"budgetview/internal/cache"
	"budgetview/internal/log"
)

// ErrMissingKey is returned when a query has no identity.
var ErrMissingKey = errors.New("query: key is required")

// Status is the lifecycle state of one query identity.
type Status int

const (
	StatusIdle Status = iota
	StatusFetching
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFetching:
		return "fetching"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Result is what a caller sees. LastSynced and Stale are only set when the
// data came from the cache.
type Result[T any] struct {
	Data        T
	IsCacheData bool
	LastSynced  time.Time
	Stale       bool
}

// Query describes one remote read. An empty CacheKey disables both the
// mirror and the fallback.
type Query[T any] struct {
	Key      string
	CacheKey string
	Fetch    func(ctx context.Context) (T, error)
}

// ErrorSink receives cache mirror failures. They never reach the caller.
type ErrorSink func(ctx context.Context, cacheKey string, err error)

// Client holds the shared state for all queries: the cache, in-flight
// coalescing, per-key status and outstanding mirrors.
type Client struct {
	cache      *cache.Store
	group      singleflight.Group
	maxAge     time.Duration
	sink       ErrorSink
	logger     *log.Logger
	structured *log.StructuredLogger

	maxTracked int
	states     *statusTable

	mirrors sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithMaxAge sets the age after which fallback data is reported stale.
func WithMaxAge(d time.Duration) Option {
	return func(c *Client) { c.maxAge = d }
}

// WithErrorSink replaces the default mirror failure handler, which logs.
func WithErrorSink(sink ErrorSink) Option {
	return func(c *Client) { c.sink = sink }
}

// WithMaxTracked bounds how many query identities keep a status.
func WithMaxTracked(n int) Option {
	return func(c *Client) { c.maxTracked = n }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger.WithComponent(log.ComponentQuery) }
}

// NewClient returns a query client backed by store. A nil store disables
// caching for every query.
func NewClient(store *cache.Store, opts ...Option) *Client {
	c := &Client{
		cache:  store,
		maxAge: cache.DefaultMaxAge,
		logger: log.New(log.DefaultConfig()).WithComponent(log.ComponentQuery),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.states = newStatusTable(c.maxTracked)
	c.structured = log.NewStructuredLogger(c.logger)
	if c.sink == nil {
		c.sink = c.logMirrorFailure
	}
	return c
}

// Cache returns the backing store, or nil.
func (c *Client) Cache() *cache.Store { return c.cache }

// MaxAge returns the staleness threshold used for fallback results.
func (c *Client) MaxAge() time.Duration { return c.maxAge }

// Status reports the current state of the query identified by key.
// Identities evicted from the status table report StatusIdle.
func (c *Client) Status(key string) Status {
	return c.states.get(key)
}

func (c *Client) setStatus(key string, s Status) {
	c.states.set(key, s)
}

// Wait blocks until every mirror issued so far has finished.
func (c *Client) Wait() {
	c.mirrors.Wait()
}

func (c *Client) logMirrorFailure(ctx context.Context, cacheKey string, err error) {
	c.logger.WarnContext(ctx, "Cache mirror failed",
		log.FieldCacheKey, cacheKey,
		log.FieldOperation, log.OpMirror,
		log.FieldError, err)
}

// Run fetches q, mirroring success into the cache and falling back to the
// cache on failure.
//
// Concurrent runs with the same Key share one fetch. The shared fetch is not
// cancelled by any single caller; a caller whose ctx ends stops waiting and
// gets ctx.Err(), while the fetch and its mirror still complete.
func Run[T any](ctx context.Context, c *Client, q Query[T]) (Result[T], error) {
	if q.Key == "" {
		return Result[T]{}, ErrMissingKey
	}

	c.setStatus(q.Key, StatusFetching)
	detached := context.WithoutCancel(ctx)

	ch := c.group.DoChan(q.Key, func() (any, error) {
		data, err := q.Fetch(detached)
		if err != nil {
			c.setStatus(q.Key, StatusFailed)
			return nil, err
		}
		if q.CacheKey != "" && c.cache != nil {
			Mirror(detached, c, q.CacheKey, data)
		}
		c.setStatus(q.Key, StatusSucceeded)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return Result[T]{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return fallback(ctx, c, q, res.Err)
		}
		data, _ := res.Val.(T)
		return Result[T]{Data: data}, nil
	}
}

// Mirror writes data at cacheKey in the background. Failures go to the
// client's ErrorSink.
func Mirror[T any](ctx context.Context, c *Client, cacheKey string, data T) {
	c.mirrors.Add(1)
	go func() {
		defer c.mirrors.Done()
		if _, err := cache.SetEntry(ctx, c.cache, cacheKey, data); err != nil {
			c.sink(ctx, cacheKey, err)
			return
		}
		c.logger.DebugContext(ctx, "Cache mirrored",
			log.FieldCacheKey, cacheKey,
			log.FieldOperation, log.OpMirror)
	}()
}

func fallback[T any](ctx context.Context, c *Client, q Query[T], fetchErr error) (Result[T], error) {
	if q.CacheKey == "" || c.cache == nil {
		return Result[T]{}, fetchErr
	}

	entry, ok := cache.GetEntry[T](ctx, c.cache, q.CacheKey)
	if !ok {
		return Result[T]{}, fetchErr
	}

	res := resultFromEntry(c, entry)
	c.structured.LogCacheFallback(ctx, q.Key, q.CacheKey, res.LastSynced, res.Stale, fetchErr)
	return res, nil
}

// Peek returns the cached value at cacheKey without fetching.
func Peek[T any](ctx context.Context, c *Client, cacheKey string) (Result[T], bool) {
	if c.cache == nil || cacheKey == "" {
		return Result[T]{}, false
	}
	entry, ok := cache.GetEntry[T](ctx, c.cache, cacheKey)
	if !ok {
		return Result[T]{}, false
	}
	return resultFromEntry(c, entry), true
}

func resultFromEntry[T any](c *Client, entry cache.Entry[T]) Result[T] {
	return Result[T]{
		Data:        entry.Data,
		IsCacheData: true,
		LastSynced:  entry.Metadata.SyncedAt(),
		Stale:       entry.Metadata.IsStale(c.maxAge, c.cache.Now()),
	}
}
