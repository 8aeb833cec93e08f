// Package spike provides a primitive to handle spike-like load on retrieving external resources:
// concurrent callers asking for the same key share one upstream fetch.
package spike

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultCleanupInterval = time.Minute

type Handler[T any] struct {
	Fetch func(ctx context.Context, k string) (T, error)
	Set   func(k string, v T)
	Get   func(k string) (T, bool)
	// Timeout bounds a single upstream fetch, zero means no bound.
	Timeout time.Duration
}

type call[T any] struct {
	done chan struct{}
	v    T
	err  error
}

type Manager[T any] struct {
	mu       sync.Mutex
	handler  Handler[T]
	inflight map[string]*call[T]
}

// NewCustomManager creates a new Manager with a cache implementation controlled by client code
// it should be used when freshness depends on the value itself
func NewCustomManager[T any](h Handler[T]) *Manager[T] {
	return &Manager[T]{
		handler:  h,
		inflight: make(map[string]*call[T]),
	}
}

// CacheOptions configure a Manager backed by go-cache.
type CacheOptions[T any] struct {
	// Expiration of a stored value, gocache.NoExpiration keeps it until replaced
	Expiration time.Duration
	// Valid rejects a stored value that has not expired yet; nil accepts every value
	Valid   func(v T) bool
	Timeout time.Duration
}

// NewManager creates a new Manager backed by go-cache with a fixed expiration
func NewManager[T any](fetch func(ctx context.Context, k string) (T, error), cacheTime time.Duration) *Manager[T] {
	return NewCacheManager(fetch, CacheOptions[T]{Expiration: cacheTime})
}

// NewCacheManager creates a new Manager backed by go-cache
func NewCacheManager[T any](fetch func(ctx context.Context, k string) (T, error), opts CacheOptions[T]) *Manager[T] {
	g := gocache.New(opts.Expiration, defaultCleanupInterval)
	return NewCustomManager[T](Handler[T]{
		Fetch: fetch,
		Set: func(k string, v T) {
			g.Set(k, v, opts.Expiration)
		},
		Get: func(k string) (T, bool) {
			var rt T
			v, ok := g.Get(k)
			if !ok {
				return rt, false
			}
			//nolint:forcetypeassert
			value := v.(T)
			if opts.Valid != nil && !opts.Valid(value) {
				return rt, false
			}
			return value, true
		},
		Timeout: opts.Timeout,
	})
}

// GetResult returns the cached value or waits for the fetch in flight for k, starting one if needed.
// A caller giving up through ctx does not cancel the fetch for the others.
func (m *Manager[T]) GetResult(ctx context.Context, k string) (T, error) { //nolint:ireturn
	if v, ok := m.handler.Get(k); ok {
		return v, nil
	}

	m.mu.Lock()
	if v, ok := m.handler.Get(k); ok {
		m.mu.Unlock()
		return v, nil
	}
	c, ok := m.inflight[k]
	if !ok {
		c = &call[T]{done: make(chan struct{})}
		m.inflight[k] = c
		go m.fetch(k, c)
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
		var tr T
		return tr, ctx.Err()
	case <-c.done:
		return c.v, c.err
	}
}

func (m *Manager[T]) fetch(k string, c *call[T]) {
	ctx := context.Background()
	if m.handler.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.handler.Timeout)
		defer cancel()
	}

	v, err := m.handler.Fetch(ctx, k)
	if err == nil {
		m.handler.Set(k, v)
	}

	m.mu.Lock()
	c.v, c.err = v, err
	delete(m.inflight, k)
	close(c.done)
	m.mu.Unlock()
}
