package provision

import (
	"context"
	"sync"
)

// entry is one memoized creation outcome. ready is closed once the outcome
// is settled; err must not be read before that.
type entry struct {
	ready chan struct{}
	err   error
}

// cache memoizes schema object creation by key. The first caller for a key
// runs the work; concurrent callers for the same key block until it settles
// and then observe the same error outcome. Settled entries, including failed
// ones, are never re-run for the life of the instance. State is per cache,
// so two provisioners never share memoization.
type cache struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newCache() *cache {
	return &cache{entries: make(map[string]*entry)}
}

// seed records key as already existing without running any work, so do never
// issues DDL for it. No-op when the key is already present.
func (c *cache) seed(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	e := &entry{ready: make(chan struct{})}
	close(e.ready)
	c.entries[key] = e
}

// do returns the memoized outcome for key, running create at most once across
// all callers. create runs detached from the triggering caller's cancellation
// so an abandoned request cannot leave a half-settled entry behind; every
// caller still honors its own ctx while waiting. The created flag is true
// only for the caller whose do initiated a successful create; joiners,
// replays, and seeded keys observe false.
func (c *cache) do(ctx context.Context, key string, create func(ctx context.Context) error) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	initiated := !ok
	if initiated {
		e = &entry{ready: make(chan struct{})}
		c.entries[key] = e
		c.mu.Unlock()

		go func() {
			e.err = create(context.WithoutCancel(ctx))
			close(e.ready)
		}()
	} else {
		c.mu.Unlock()
	}

	select {
	case <-e.ready:
		return initiated && e.err == nil, e.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
