package provision

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheDoRunsCreateOnce(t *testing.T) {
	c := newCache()

	var calls int32
	start := make(chan struct{})
	results := make([]bool, 20)
	errs := make([]error, 20)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = c.do(context.Background(), "column:__rev__:public.users", func(context.Context) error {
				atomic.AddInt32(&calls, 1)
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	createdCount := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i] {
			createdCount++
		}
	}
	assert.Equal(t, 1, createdCount, "exactly the initiating caller reports created")
}

func TestCacheSeedSkipsCreate(t *testing.T) {
	c := newCache()
	c.seed("trigger:public.users")

	created, err := c.do(context.Background(), "trigger:public.users", func(context.Context) error {
		t.Error("create must not run for a seeded key")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestCacheSeedDoesNotOverwrite(t *testing.T) {
	c := newCache()

	created, err := c.do(context.Background(), "k", func(context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, created)

	c.seed("k")

	created, err = c.do(context.Background(), "k", func(context.Context) error {
		t.Error("settled key must not be re-run")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created, "replays report created=false")
}

func TestCacheFailedEntryStaysFailed(t *testing.T) {
	c := newCache()

	var calls int32
	create := func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return assert.AnError
	}

	created, err := c.do(context.Background(), "k", create)
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, created)

	created, err = c.do(context.Background(), "k", create)
	require.ErrorIs(t, err, assert.AnError)
	assert.False(t, created)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCacheWaiterHonorsItsContext(t *testing.T) {
	c := newCache()

	started := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	var firstCreated bool
	var firstErr error

	go func() {
		firstCreated, firstErr = c.do(context.Background(), "k", func(context.Context) error {
			close(started)
			<-release
			return nil
		})
		close(firstDone)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	created, err := c.do(ctx, "k", func(context.Context) error {
		t.Error("create must not run while the key is in flight")
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, created)

	close(release)
	<-firstDone
	require.NoError(t, firstErr)
	assert.True(t, firstCreated)
}

func TestCacheCreateDetachedFromCallerCancellation(t *testing.T) {
	c := newCache()

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	var calls int32
	var innerErr error
	var gotErr error

	go func() {
		_, gotErr = c.do(ctx, "k", func(inner context.Context) error {
			atomic.AddInt32(&calls, 1)
			close(started)
			<-release
			innerErr = inner.Err()
			return nil
		})
		close(done)
	}()

	<-started
	cancel()
	<-done
	require.ErrorIs(t, gotErr, context.Canceled)

	// The abandoned creation still settles, and later callers see it.
	close(release)
	created, err := c.do(context.Background(), "k", func(context.Context) error {
		t.Error("create must not run again after the detached run settles")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, innerErr, "creation context must not inherit the caller's cancellation")
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
