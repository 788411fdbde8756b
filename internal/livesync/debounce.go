package livesync

import (
	"sync"
	"time"
)

const DefaultDebounce = time.Second

// Coordinator is a trailing-edge debounce: a burst of Notify calls produces a
// single refresh, window after the last call. Refreshes never overlap; a
// refresh requested while one is running runs once after it returns.
type Coordinator struct {
	clock   Clock
	window  time.Duration
	refresh func()

	mu     sync.Mutex
	timer  Timer
	gen     uint64
	closed  bool
	running bool
	dirty   bool
}

func NewCoordinator(clock Clock, window time.Duration, refresh func()) *Coordinator {
	if clock == nil {
		clock = SystemClock
	}
	if window <= 0 {
		window = DefaultDebounce
	}
	return &Coordinator{clock: clock, window: window, refresh: refresh}
}

func (c *Coordinator) Notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.gen++
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.window, func() { c.fire(gen) })
}

// ForceRefresh drops any pending timer and refreshes immediately.
func (c *Coordinator) ForceRefresh() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.startLocked()
}

// Pending reports whether a refresh is scheduled.
func (c *Coordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Close cancels the pending refresh. Later calls are no-ops.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cancelLocked()
}

func (c *Coordinator) cancelLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.gen++
}

func (c *Coordinator) fire(gen uint64) {
	c.mu.Lock()
	// A timer that lost the race with Stop still runs; gen filters it out.
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.startLocked()
}

// startLocked runs the refresh loop, or marks the running one dirty. It
// releases c.mu.
func (c *Coordinator) startLocked() {
	if c.running {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	for {
		c.refresh()

		c.mu.Lock()
		if !c.dirty || c.closed {
			c.running = false
			c.dirty = false
			c.mu.Unlock()
			return
		}
		c.dirty = false
		c.mu.Unlock()
	}
}
