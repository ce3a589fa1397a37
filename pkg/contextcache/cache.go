// Package contextcache maintains the time-bounded snapshot of all known
// tenant security contexts. The snapshot feeds two consumers: the driver
// resolver's default-tenant fallback, and the scheduled pre-warm pass the
// query engine runs over every known tenant.
package contextcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/metrics"
	"github.com/cubegate/cubegate/pkg/tenant"
)

// DefaultTTL is how long a snapshot is considered fresh.
const DefaultTTL = 5 * time.Minute

// ErrNoSnapshot is returned when a refresh fails and no previous snapshot
// exists to fall back on.
var ErrNoSnapshot = errors.New("no tenant context snapshot available")

// Fetcher retrieves the current tenant context list from the upstream.
type Fetcher interface {
	FetchRefreshContexts(ctx context.Context) ([]tenant.RefreshContext, error)
}

// Cache is the process-wide tenant context snapshot. A snapshot is replaced
// wholesale on each successful refresh; partial updates are never applied.
// Refreshes run under a single-flight guard so concurrent lookups await one
// upstream call instead of issuing N.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	metrics metrics.Metrics
	now     func() time.Time

	mu        sync.RWMutex
	entries   []tenant.RefreshContext
	fetchedAt time.Time
	populated bool

	refreshGroup singleflight.Group

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides the snapshot freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over the given fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		metrics: metrics.Noop{},
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Contexts returns the known tenant contexts, refreshing lazily when the
// snapshot is stale. If the refresh fails and a previous non-empty snapshot
// exists, the stale snapshot is served and a degradation warning logged;
// with no snapshot to fall back on, the failure propagates.
func (c *Cache) Contexts(ctx context.Context) ([]tenant.RefreshContext, error) {
	if snap, ok := c.freshSnapshot(); ok {
		c.metrics.IncCacheHit()
		return snap, nil
	}
	c.metrics.IncCacheMiss()

	result, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// Another lookup may have refreshed while we waited.
		if snap, ok := c.freshSnapshot(); ok {
			return snap, nil
		}

		entries, err := c.fetcher.FetchRefreshContexts(ctx)
		if err != nil {
			c.metrics.IncRefresh("failure")
			if snap, age, ok := c.staleSnapshot(); ok {
				c.metrics.IncStaleServed()
				logger.Warnw("context refresh failed, serving stale snapshot",
					"error", err, "age", age, "tenants", len(snap))
				return snap, nil
			}
			return nil, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
		}

		c.replace(entries)
		c.metrics.IncRefresh("success")
		return c.copyEntries(entries), nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]tenant.RefreshContext), nil
}

// Refresh fetches a new snapshot unconditionally, replacing the held one on
// success. On failure the previous snapshot is left untouched.
func (c *Cache) Refresh(ctx context.Context) error {
	entries, err := c.fetcher.FetchRefreshContexts(ctx)
	if err != nil {
		c.metrics.IncRefresh("failure")
		return err
	}
	c.replace(entries)
	c.metrics.IncRefresh("success")
	return nil
}

// Start launches the background refresh loop. The loop refreshes immediately
// and then on every interval tick, keeping the snapshot warm for all known
// tenants ahead of traffic. It never blocks request-path lookups.
func (c *Cache) Start(ctx context.Context, interval time.Duration) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := c.Refresh(ctx); err != nil {
			logger.Warnw("initial context pre-warm failed", "error", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					logger.Warnw("scheduled context refresh failed", "error", err)
					continue
				}
				logger.Debugw("scheduled context refresh succeeded", "tenants", c.size())
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background refresh loop. Safe to call multiple times.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// freshSnapshot returns a copy of the snapshot if one exists and is within
// the TTL.
func (c *Cache) freshSnapshot() ([]tenant.RefreshContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.populated {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) > c.ttl {
		return nil, false
	}
	return c.copyEntries(c.entries), true
}

// staleSnapshot returns the previous snapshot regardless of age, for the
// degraded fallback path. Empty snapshots do not qualify.
func (c *Cache) staleSnapshot() ([]tenant.RefreshContext, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.populated || len(c.entries) == 0 {
		return nil, 0, false
	}
	return c.copyEntries(c.entries), c.now().Sub(c.fetchedAt), true
}

// replace installs a new snapshot atomically with its fetch timestamp.
func (c *Cache) replace(entries []tenant.RefreshContext) {
	snapshot := c.copyEntries(entries)
	c.mu.Lock()
	c.entries = snapshot
	c.fetchedAt = c.now()
	c.populated = true
	c.mu.Unlock()
}

func (c *Cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (*Cache) copyEntries(entries []tenant.RefreshContext) []tenant.RefreshContext {
	out := make([]tenant.RefreshContext, len(entries))
	copy(out, entries)
	return out
}
