package contextcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubegate/cubegate/pkg/tenant"
)

// scriptedFetcher returns canned context lists, optionally failing, and
// counts calls.
type scriptedFetcher struct {
	mu       sync.Mutex
	calls    int
	contexts []tenant.RefreshContext
	err      error
	delay    time.Duration
}

func (f *scriptedFetcher) FetchRefreshContexts(_ context.Context) ([]tenant.RefreshContext, error) {
	f.mu.Lock()
	f.calls++
	contexts, err, delay := f.contexts, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return contexts, nil
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *scriptedFetcher) set(contexts []tenant.RefreshContext, err error) {
	f.mu.Lock()
	f.contexts, f.err = contexts, err
	f.mu.Unlock()
}

func twoTenants() []tenant.RefreshContext {
	return []tenant.RefreshContext{
		{SecurityContext: tenant.SecurityContext{Connection: "acme", Dataset: "sales"}},
		{SecurityContext: tenant.SecurityContext{Connection: "globex", Dataset: "ops"}},
	}
}

func TestContextsLazyFetch(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)
	t.Cleanup(c.Stop)

	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	assert.Equal(t, "acme", contexts[0].SecurityContext.Connection)
	assert.Equal(t, 1, f.callCount())

	// Fresh snapshot: no second upstream call.
	_, err = c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount())
}

func TestContextsOrderIsDeterministic(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)
	t.Cleanup(c.Stop)

	for i := 0; i < 10; i++ {
		contexts, err := c.Contexts(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "acme", contexts[0].SecurityContext.Connection)
	}
}

func TestTTLExpiryTriggersRefresh(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f, WithClock(func() time.Time { return clock() }))
	t.Cleanup(c.Stop)

	_, err := c.Contexts(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.callCount())

	// Within the TTL: snapshot reused.
	clock = func() time.Time { return now.Add(4 * time.Minute) }
	_, err = c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.callCount())

	// Past the TTL: next access refreshes.
	clock = func() time.Time { return now.Add(6 * time.Minute) }
	_, err = c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.callCount())
}

func TestStaleFallbackOnRefreshFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f, WithClock(func() time.Time { return clock() }))
	t.Cleanup(c.Stop)

	_, err := c.Contexts(context.Background())
	require.NoError(t, err)

	// Upstream goes down past the TTL: serve the stale snapshot.
	f.set(nil, errors.New("upstream unreachable"))
	clock = func() time.Time { return now.Add(10 * time.Minute) }

	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	require.Len(t, contexts, 2)
	assert.Equal(t, "acme", contexts[0].SecurityContext.Connection)
}

func TestRefreshFailureWithoutSnapshotPropagates(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{err: errors.New("upstream unreachable")}
	c := New(f)
	t.Cleanup(c.Stop)

	_, err := c.Contexts(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestEmptySnapshotDoesNotQualifyAsFallback(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	f := &scriptedFetcher{contexts: []tenant.RefreshContext{}}
	c := New(f, WithClock(func() time.Time { return clock() }))
	t.Cleanup(c.Stop)

	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contexts)

	f.set(nil, errors.New("upstream unreachable"))
	clock = func() time.Time { return now.Add(10 * time.Minute) }

	_, err = c.Contexts(context.Background())
	require.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRefreshReplacesSnapshotWholesale(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)
	t.Cleanup(c.Stop)

	require.NoError(t, c.Refresh(context.Background()))

	f.set([]tenant.RefreshContext{
		{SecurityContext: tenant.SecurityContext{Connection: "initech"}},
	}, nil)
	require.NoError(t, c.Refresh(context.Background()))

	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	require.Len(t, contexts, 1)
	assert.Equal(t, "initech", contexts[0].SecurityContext.Connection)
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)
	t.Cleanup(c.Stop)

	require.NoError(t, c.Refresh(context.Background()))

	f.set(nil, errors.New("upstream unreachable"))
	require.Error(t, c.Refresh(context.Background()))

	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Len(t, contexts, 2)
}

func TestConcurrentLookupsSingleFlight(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants(), delay: 50 * time.Millisecond}
	c := New(f)
	t.Cleanup(c.Stop)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			contexts, err := c.Contexts(context.Background())
			assert.NoError(t, err)
			assert.Len(t, contexts, 2)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.callCount())
}

func TestBackgroundRefreshLoop(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.Start(ctx, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.callCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	c.Stop()
	settled := f.callCount()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, settled, f.callCount())

	// The snapshot warmed in the background serves lookups immediately.
	contexts, err := c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Len(t, contexts, 2)
}

func TestSnapshotIsImmutableToCallers(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{contexts: twoTenants()}
	c := New(f)
	t.Cleanup(c.Stop)

	first, err := c.Contexts(context.Background())
	require.NoError(t, err)
	first[0].SecurityContext.Connection = "mutated"

	second, err := c.Contexts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "acme", second[0].SecurityContext.Connection)
}
