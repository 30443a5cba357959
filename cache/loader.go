package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/escribo/escribo-web/logger"
)

// Loader reads through a Cache. Concurrent misses for the same key share a
// single load, and only successful loads are stored.
type Loader struct {
	cache  Cache
	ttl    time.Duration
	group  singleflight.Group
	logger logger.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the context shared by every caller waiting on one key. It is
// cancelled when the last waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewLoader creates a Loader storing values for ttl. A ttl of zero or less
// disables storage while keeping load coalescing.
func NewLoader(c Cache, ttl time.Duration, log logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	return &Loader{cache: c, ttl: ttl, logger: log, flights: make(map[string]*flight)}
}

// TTL returns how long loaded values are kept.
func (l *Loader) TTL() time.Duration {
	return l.ttl
}

// Cache returns the backing cache.
func (l *Loader) Cache() Cache {
	return l.cache
}

// Invalidate drops the cached value for key.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	return l.cache.Delete(ctx, key)
}

// Load returns the value cached under key or obtains it from fn.
//
// One caller giving up does not fail the others waiting on the same key: the
// shared load keeps running while anyone still waits on it and is cancelled
// once every waiter has left. A caller whose ctx ends gets the context cause.
// Values are shared between the callers of one load and must be treated as
// read-only.
func Load[T any](ctx context.Context, l *Loader, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, context.Cause(ctx)
	}

	if v, ok := lookup[T](ctx, l, key); ok {
		return v, nil
	}

	ch, f := l.join(ctx, key, func(loadCtx context.Context) (any, error) {
		v, err := fn(loadCtx)
		if err != nil {
			return nil, err
		}
		l.store(loadCtx, key, v)
		return v, nil
	})
	defer l.leave(key, f)

	select {
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// join registers the caller on the flight for key, starting one if needed.
func (l *Loader) join(ctx context.Context, key string, fn func(context.Context) (any, error)) (<-chan singleflight.Result, *flight) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, ok := l.flights[key]
	if !ok {
		loadCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: loadCtx, cancel: cancel}
		l.flights[key] = f
	}
	f.waiters++
	ch := l.group.DoChan(key, func() (any, error) {
		return fn(f.ctx)
	})
	return ch, f
}

// leave drops the caller from f. The last waiter out cancels the load and
// forgets it, so later callers start a fresh one instead of joining it.
func (l *Loader) leave(key string, f *flight) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if l.flights[key] == f {
		delete(l.flights, key)
		l.group.Forget(key)
	}
}

func lookup[T any](ctx context.Context, l *Loader, key string) (T, bool) {
	var zero T
	if l.ttl <= 0 {
		return zero, false
	}
	data, err := l.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			l.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, loading from source")
		}
		return zero, false
	}
	v, err := Unmarshal[T](data)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_ = l.cache.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

func (l *Loader) store(ctx context.Context, key string, v any) {
	if l.ttl <= 0 {
		return
	}
	data, err := Marshal(v)
	if err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("Failed to encode value for cache")
		return
	}
	if err := l.cache.Set(ctx, key, data, l.ttl); err != nil {
		l.logger.Warn().Err(err).Str("key", key).Msg("Failed to store value in cache")
	}
}
