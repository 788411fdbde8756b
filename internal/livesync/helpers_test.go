package livesync

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeClock fires timers only from Advance, on the calling goroutine.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		due := c.dueLocked(target)
		if due == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = due.at
		due.fired = true
		c.mu.Unlock()
		due.fn()
	}
}

func (c *fakeClock) dueLocked(target time.Time) *fakeTimer {
	active := make([]*fakeTimer, 0, len(c.timers))
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].at.Before(active[j].at) })
	return active[0]
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// chanStream is a Stream fed by the test.
type chanStream struct {
	events chan Event
	done   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	nexts int
}

func newChanStream() *chanStream {
	return &chanStream{events: make(chan Event, 16), done: make(chan struct{})}
}

func (s *chanStream) Next(ctx context.Context) (Event, error) {
	s.mu.Lock()
	s.nexts++
	s.mu.Unlock()
	select {
	case <-s.done:
		return Event{}, ErrStreamClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case event := <-s.events:
		return event, nil
	}
}

func (s *chanStream) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// NextCalls counts calls to Next. Once it exceeds the number of pushed
// events, every pushed event has been handled.
func (s *chanStream) NextCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nexts
}

func (s *chanStream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

var errOpenRefused = errors.New("connection refused")

type scriptedFeed struct {
	mu       sync.Mutex
	failures int
	opens    int
	streams  []*chanStream
	bindings []Binding
}

func (f *scriptedFeed) Open(ctx context.Context, bindings []Binding) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.bindings = bindings
	if f.opens <= f.failures {
		return nil, errOpenRefused
	}
	stream := newChanStream()
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *scriptedFeed) Opens() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *scriptedFeed) Latest() *chanStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}
