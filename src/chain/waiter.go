package chain

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// arrivals lets goroutines wait for an object to be stored. Every waiter
// holds a channel that is closed when the object is put.
type arrivals struct {
	sync.Mutex
	waiters map[string][]chan struct{}
}

func newArrivals() *arrivals {
	return &arrivals{
		waiters: make(map[string][]chan struct{}),
	}
}

func (a *arrivals) subscribe(id string) (<-chan struct{}, func()) {
	ch := make(chan struct{})

	a.Lock()
	a.waiters[id] = append(a.waiters[id], ch)
	a.Unlock()

	cancel := func() {
		a.Lock()
		defer a.Unlock()
		list := a.waiters[id]
		for i, c := range list {
			if c == ch {
				list = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(list) == 0 {
			delete(a.waiters, id)
		} else {
			a.waiters[id] = list
		}
	}

	return ch, cancel
}

func (a *arrivals) notify(id string) {
	a.Lock()
	list := a.waiters[id]
	delete(a.waiters, id)
	a.Unlock()

	for _, ch := range list {
		close(ch)
	}
}

func (a *arrivals) pending() int {
	a.Lock()
	defer a.Unlock()
	return len(a.waiters)
}

// waitFor blocks until the object id is stored or ctx is done. The store is
// also polled every interval, so a notification missed for any reason only
// delays the wake-up.
func (c *Chain) waitFor(ctx context.Context, id string, interval time.Duration) (bool, error) {
	ch, cancel := c.arrivals.subscribe(id)
	defer cancel()

	ok, err := c.store.HasObject(id)
	if err != nil || ok {
		return ok, err
	}

	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ch:
			return true, nil
		case <-ticker.C:
			ok, err := c.store.HasObject(id)
			if err != nil || ok {
				return ok, err
			}
		case <-ctx.Done():
			return c.store.HasObject(id)
		}
	}
}

// waitForAll waits in parallel for every id until ctx is done and returns
// the ids that are still missing, sorted.
func (c *Chain) waitForAll(ctx context.Context, ids []string, interval time.Duration) ([]string, error) {
	var (
		mu      sync.Mutex
		missing []string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			ok, err := c.waitFor(gctx, id, interval)
			if err != nil {
				return err
			}
			if !ok {
				mu.Lock()
				missing = append(missing, id)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(missing)
	return missing, nil
}
