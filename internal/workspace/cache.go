package workspace

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/standardbeagle/csearch/internal/debug"
	"github.com/standardbeagle/csearch/internal/errors"
)

// Cache is the bounded pool of workspace index handles.
type Cache struct {
	opener Opener
	cfg    Config

	mu      sync.Mutex
	table   map[string]*Handle
	waiters []chan struct{} // FIFO queue of full-pool acquirers
	closing bool

	acquires    int64
	evictions   int64
	sweepCloses int64

	now func() time.Time

	sweepStop chan struct{}
	sweepDone chan struct{}
	stopOnce  sync.Once
}

// CacheOption tunes a Cache.
type CacheOption func(*Cache)

// WithClock substitutes the time source. Test hook.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates the pool and starts the idle sweep when configured.
func NewCache(opener Opener, cfg Config, opts ...CacheOption) *Cache {
	cfg = cfg.withDefaults()
	c := &Cache{
		opener:    opener,
		cfg:       cfg,
		table:     make(map[string]*Handle),
		now:       time.Now,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	} else {
		close(c.sweepDone)
	}
	return c
}

// Acquire returns a live handle for the workspace, opening the index if it
// is not resident. The refcount is incremented; every Acquire must be paired
// with exactly one Release on every exit path.
//
// When the pool is full Acquire evicts the least recently used refcount-0
// handle; with nothing evictable it queues FIFO up to AcquireTimeout and
// then fails with capacity_exceeded. Open failures surface as open_failure
// and are never cached.
func (c *Cache) Acquire(ctx context.Context, workspacePath string) (*Handle, error) {
	id := Canonicalize(workspacePath)

	timer := time.NewTimer(c.cfg.AcquireTimeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		if c.closing {
			c.mu.Unlock()
			return nil, errors.New(errors.KindInternal, "acquire", fmt.Errorf("pool is shutting down")).WithWorkspace(id)
		}

		if h, ok := c.table[id]; ok {
			if h.state == StateClosing || h.state == StateClosed || h.stale {
				// A previous handle for this workspace is still on its way
				// out. Wait for it to fully close before opening a fresh
				// one: at most one physical handle per workspace, ever.
				closedCh := h.closed
				c.mu.Unlock()
				select {
				case <-closedCh:
					continue
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-timer.C:
					return nil, errors.CapacityExceeded(id, c.cfg.AcquireTimeout)
				}
			}

			h.refs++
			h.lastAccess = c.now()
			c.acquires++
			readyCh := h.ready
			c.mu.Unlock()

			select {
			case <-readyCh:
			case <-ctx.Done():
				c.undoAcquire(h)
				return nil, ctx.Err()
			}
			if h.openErr != nil {
				// The opener failed; the entry is already gone from the
				// table, so the refcount died with it.
				return nil, errors.OpenFailure(id, h.openErr)
			}
			return h, nil
		}

		// Not resident: we need a slot.
		if len(c.table) >= c.cfg.Capacity {
			if victim := c.victimLocked(); victim != nil {
				c.beginCloseLocked(victim)
				c.evictions++
				c.mu.Unlock()
				c.finishClose(victim)
				continue
			}

			w := make(chan struct{})
			c.waiters = append(c.waiters, w)
			c.mu.Unlock()

			select {
			case <-w:
				continue
			case <-ctx.Done():
				c.abandonWaiter(w)
				return nil, ctx.Err()
			case <-timer.C:
				c.abandonWaiter(w)
				return nil, errors.CapacityExceeded(id, c.cfg.AcquireTimeout)
			}
		}

		// Insert an opening placeholder so concurrent acquirers for the
		// same workspace share this open instead of double-opening.
		now := c.now()
		h := &Handle{
			id:         id,
			refs:       1,
			state:      StateOpening,
			insertedAt: now,
			lastAccess: now,
			ready:      make(chan struct{}),
			closed:     make(chan struct{}),
		}
		c.table[id] = h
		c.acquires++
		c.mu.Unlock()

		index, err := c.opener.Open(ctx, id)

		c.mu.Lock()
		if h.state != StateOpening {
			// Shutdown force-closed the placeholder while the open was in
			// flight. The table entry is gone and h.closed is (or will be)
			// closed by that path, so only h.ready belongs to us here.
			h.openErr = fmt.Errorf("pool closed during open")
			close(h.ready)
			c.mu.Unlock()
			if err == nil && index != nil {
				if cerr := index.Close(); cerr != nil {
					debug.LogPool("close failed for %s after shutdown race: %v\n", id, cerr)
				}
			}
			return nil, errors.New(errors.KindInternal, "acquire", fmt.Errorf("pool closed during open")).WithWorkspace(id)
		}
		if err != nil {
			h.openErr = err
			h.state = StateClosed
			delete(c.table, id)
			close(h.ready)
			close(h.closed)
			c.signalWaiterLocked()
			c.mu.Unlock()
			return nil, errors.OpenFailure(id, err)
		}
		h.index = index
		h.state = StateReady
		close(h.ready)
		c.mu.Unlock()

		debug.LogPool("opened handle for %s (generation %d)\n", id, index.Generation())
		return h, nil
	}
}

// Release decrements the refcount. At zero a stale handle closes; an extra
// Release is rejected rather than corrupting the count.
func (c *Cache) Release(h *Handle) error {
	if h == nil {
		return fmt.Errorf("release of nil handle")
	}

	c.mu.Lock()
	if h.refs <= 0 {
		c.mu.Unlock()
		return fmt.Errorf("release without matching acquire for %s", h.id)
	}
	h.refs--
	h.lastAccess = c.now()

	deferredClose := h.refs == 0 && h.stale && h.state == StateReady
	if deferredClose {
		c.beginCloseLocked(h)
		c.evictions++
	} else if h.refs == 0 {
		// The handle just became evictable; a queued acquirer may claim
		// its slot.
		c.signalWaiterLocked()
	}
	c.mu.Unlock()

	if deferredClose {
		c.finishClose(h)
	}
	return nil
}

// Evict marks the workspace's handle for close. It closes immediately at
// refcount zero and otherwise on the final Release. Used after a rebuild so
// the next Acquire opens the new index.
func (c *Cache) Evict(workspacePath string) {
	id := Canonicalize(workspacePath)

	c.mu.Lock()
	h, ok := c.table[id]
	if !ok || h.state != StateReady {
		if ok {
			h.stale = true
		}
		c.mu.Unlock()
		return
	}
	h.stale = true
	if h.refs > 0 {
		c.mu.Unlock()
		return
	}
	c.beginCloseLocked(h)
	c.evictions++
	c.mu.Unlock()
	c.finishClose(h)
}

// victimLocked picks the LRU refcount-0 ready handle, ties broken by oldest
// insertion. Busy handles are never eviction candidates.
func (c *Cache) victimLocked() *Handle {
	var victim *Handle
	for _, h := range c.table {
		if h.refs != 0 || h.state != StateReady {
			continue
		}
		if victim == nil ||
			h.lastAccess.Before(victim.lastAccess) ||
			(h.lastAccess.Equal(victim.lastAccess) && h.insertedAt.Before(victim.insertedAt)) {
			victim = h
		}
	}
	return victim
}

// beginCloseLocked transitions a ready handle to closing. The caller must
// follow up with finishClose after dropping the lock.
func (c *Cache) beginCloseLocked(h *Handle) {
	h.state = StateClosing
}

// finishClose flushes and closes the index outside the lock, then removes
// the table entry. Close failures are best-effort: logged, entry removed.
func (c *Cache) finishClose(h *Handle) {
	if h.index != nil {
		if err := h.index.Flush(); err != nil {
			debug.LogPool("flush failed for %s: %v\n", h.id, err)
		}
		if err := h.index.Close(); err != nil {
			debug.LogPool("close failed for %s: %v\n", h.id, err)
		}
	}

	c.mu.Lock()
	h.state = StateClosed
	delete(c.table, h.id)
	close(h.closed)
	c.signalWaiterLocked()
	c.mu.Unlock()

	debug.LogPool("closed handle for %s\n", h.id)
}

// undoAcquire rolls back a refcount increment after a cancelled wait.
func (c *Cache) undoAcquire(h *Handle) {
	c.mu.Lock()
	if h.refs > 0 {
		h.refs--
		if h.refs == 0 {
			c.signalWaiterLocked()
		}
	}
	c.mu.Unlock()
}

// signalWaiterLocked wakes the head of the FIFO acquire queue.
func (c *Cache) signalWaiterLocked() {
	if len(c.waiters) == 0 {
		return
	}
	w := c.waiters[0]
	c.waiters = c.waiters[1:]
	close(w)
}

// abandonWaiter removes a waiter that timed out or was cancelled. If the
// waiter was already signalled its wakeup is forwarded so the slot is not
// lost.
func (c *Cache) abandonWaiter(w chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, q := range c.waiters {
		if q == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
	c.signalWaiterLocked()
}

// sweepLoop periodically closes refcount-0 handles idle past IdleTimeout.
func (c *Cache) sweepLoop() {
	defer close(c.sweepDone)
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.sweepStop:
			return
		}
	}
}

// Sweep closes idle refcount-0 handles once and returns how many it closed.
func (c *Cache) Sweep() int {
	now := c.now()

	c.mu.Lock()
	var victims []*Handle
	for _, h := range c.table {
		if h.refs == 0 && h.state == StateReady && now.Sub(h.lastAccess) >= c.cfg.IdleTimeout {
			c.beginCloseLocked(h)
			victims = append(victims, h)
		}
	}
	c.sweepCloses += int64(len(victims))
	c.mu.Unlock()

	for _, h := range victims {
		c.finishClose(h)
	}
	return len(victims)
}

// Close drains the pool: the sweep stops, refcount-0 handles close, busy
// handles get a bounded grace period and are then force-closed.
func (c *Cache) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.sweepStop) })
	<-c.sweepDone

	c.mu.Lock()
	c.closing = true
	var victims []*Handle
	for _, h := range c.table {
		h.stale = true
		if h.refs == 0 && h.state == StateReady {
			c.beginCloseLocked(h)
			victims = append(victims, h)
		}
	}
	// Wake every queued acquirer so it can observe the shutdown.
	for _, w := range c.waiters {
		close(w)
	}
	c.waiters = nil
	c.mu.Unlock()

	for _, h := range victims {
		c.finishClose(h)
	}

	// Busy handles drain through their final Release (stale is set).
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		c.mu.Lock()
		remaining := len(c.table)
		c.mu.Unlock()
		if remaining == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			// Grace period over: force-close whatever is still open.
			c.mu.Lock()
			var force []*Handle
			for _, h := range c.table {
				if h.state == StateReady || h.state == StateOpening {
					c.beginCloseLocked(h)
					force = append(force, h)
				}
			}
			c.mu.Unlock()
			for _, h := range force {
				debug.LogPool("force-closing %s with refs still held\n", h.id)
				c.finishClose(h)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats snapshots the pool for status reporting.
type PoolStats struct {
	Capacity    int          `json:"capacity"`
	Resident    int          `json:"resident"`
	Waiters     int          `json:"waiters"`
	Acquires    int64        `json:"acquires"`
	Evictions   int64        `json:"evictions"`
	SweepCloses int64        `json:"sweep_closes"`
	Handles     []HandleInfo `json:"handles,omitempty"`
}

// Stats returns a point-in-time snapshot of the pool.
func (c *Cache) Stats() PoolStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := PoolStats{
		Capacity:    c.cfg.Capacity,
		Resident:    len(c.table),
		Waiters:     len(c.waiters),
		Acquires:    c.acquires,
		Evictions:   c.evictions,
		SweepCloses: c.sweepCloses,
	}
	for _, h := range c.table {
		stats.Handles = append(stats.Handles, HandleInfo{
			Workspace:  h.id,
			State:      h.state.String(),
			Refs:       h.refs,
			Stale:      h.stale,
			LastAccess: h.lastAccess,
		})
	}
	return stats
}
