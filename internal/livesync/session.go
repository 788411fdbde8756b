package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultSubscribeTimeout = 10 * time.Second

var ErrSubscribeTimeout = errors.New("livesync: no subscription acknowledgment")

// RefreshFunc re-runs a view's data fetch. It must be safe to call repeatedly.
type RefreshFunc func(ctx context.Context) error

// Snapshot is the session state a UI renders.
type Snapshot struct {
	State          State
	Attempts       int
	Err            string
	GaveUp         bool
	LastRefreshErr error
	Refreshes      int
}

type options struct {
	debounce         time.Duration
	maxAttempts      int
	subscribeTimeout time.Duration
	clock            Clock
	logger           *zap.Logger
	onChange         func(Snapshot)
}

type Option func(*options)

func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) { o.maxAttempts = n }
}

func WithSubscribeTimeout(d time.Duration) Option {
	return func(o *options) { o.subscribeTimeout = d }
}

func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// OnChange is called after every state transition and every refresh.
func OnChange(fn func(Snapshot)) Option {
	return func(o *options) { o.onChange = fn }
}

// Session owns one channel, its debounce timer and its retry timer. Close
// releases all of them.
type Session struct {
	feed     Feed
	bindings []Binding
	refresh  RefreshFunc
	opts     options
	coord    *Coordinator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu             sync.Mutex
	machine        Machine
	conn           uint64
	connCancel     context.CancelFunc
	stream         Stream
	retryTimer     Timer
	subscribeTimer Timer
	closed         bool
	subscribed     bool
	lastRefreshErr error
	refreshes      int
}

// Start opens a session for scope and begins connecting immediately.
func Start(ctx context.Context, feed Feed, scope Scope, refresh RefreshFunc, opts ...Option) (*Session, error) {
	if feed == nil {
		return nil, errors.New("livesync: feed is required")
	}
	if refresh == nil {
		return nil, errors.New("livesync: refresh callback is required")
	}
	bindings, err := Bindings(scope)
	if err != nil {
		return nil, err
	}

	o := options{
		debounce:         DefaultDebounce,
		maxAttempts:      DefaultMaxReconnectAttempts,
		subscribeTimeout: DefaultSubscribeTimeout,
		clock:            SystemClock,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		feed:     feed,
		bindings: bindings,
		refresh:  refresh,
		opts:     o,
		ctx:      sessionCtx,
		cancel:   cancel,
		machine:  NewMachine(o.maxAttempts),
	}
	s.coord = NewCoordinator(o.clock, o.debounce, s.runRefresh)
	s.dispatch(ConnectInput())
	return s, nil
}

func (s *Session) Bindings() []Binding {
	return append([]Binding(nil), s.bindings...)
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ForceRefresh bypasses the debounce. A session that gave up, or was closed
// by the server, also reconnects with a fresh attempt budget.
func (s *Session) ForceRefresh() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var snap *Snapshot
	if s.machine.GaveUp || s.machine.State == StateDisconnected {
		s.machine = Reset(s.machine)
		s.stopRetryLocked()
		s.stepLocked(ConnectInput())
		current := s.snapshotLocked()
		snap = &current
	}
	s.mu.Unlock()

	if snap != nil {
		s.emit(*snap)
	}
	s.coord.ForceRefresh()
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopRetryLocked()
	s.teardownLocked()
	s.machine, _ = Step(s.machine, StatusInput(StatusClosed, nil))
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.coord.Close()
	s.cancel()
	s.wg.Wait()
	s.emit(snap)
	return nil
}

func (s *Session) dispatch(in Input) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stepLocked(in)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *Session) stepLocked(in Input) {
	next, effect := Step(s.machine, in)
	s.machine = next

	switch effect.Kind {
	case EffectOpen:
		s.openLocked()
	case EffectRetry:
		s.opts.logger.Warn("realtime channel failed, retrying",
			zap.Int("attempt", next.Attempts),
			zap.Duration("delay", effect.Delay),
			zap.String("reason", next.Err))
		s.stopRetryLocked()
		s.retryTimer = s.opts.clock.AfterFunc(effect.Delay, func() {
			s.dispatch(ConnectInput())
		})
	case EffectGiveUp:
		s.opts.logger.Error("realtime channel gave up",
			zap.Int("attempts", next.Attempts),
			zap.String("reason", next.Err))
	}
}

func (s *Session) openLocked() {
	s.teardownLocked()
	s.conn++
	gen := s.conn
	connCtx, connCancel := context.WithCancel(s.ctx)
	s.connCancel = connCancel
	s.subscribeTimer = s.opts.clock.AfterFunc(s.opts.subscribeTimeout, func() {
		s.handleStatus(gen, StatusTimedOut, ErrSubscribeTimeout)
	})

	s.wg.Add(1)
	go s.run(connCtx, gen)
}

// run pulls events from one channel until the channel fails or is replaced.
func (s *Session) run(ctx context.Context, gen uint64) {
	defer s.wg.Done()

	stream, err := s.feed.Open(ctx, s.bindings)
	if err != nil {
		s.handleStatus(gen, StatusChannelError, err)
		return
	}

	s.mu.Lock()
	if s.closed || gen != s.conn {
		s.mu.Unlock()
		_ = stream.Close()
		return
	}
	s.stream = stream
	s.mu.Unlock()

	for {
		event, err := stream.Next(ctx)
		if err != nil {
			s.handleStatus(gen, StatusChannelError, err)
			return
		}
		if event.Change != nil {
			if s.isCurrent(gen) {
				s.coord.Notify()
			}
			continue
		}
		if event.Status == "" {
			continue
		}
		s.handleStatus(gen, event.Status, event.Err)
		if event.Status != StatusSubscribed {
			return
		}
	}
}

// handleStatus ignores signals from connections that were already replaced.
func (s *Session) handleStatus(gen uint64, status Status, err error) {
	s.mu.Lock()
	if s.closed || gen != s.conn {
		s.mu.Unlock()
		return
	}
	// Changes made while the channel was down were never delivered, so a
	// resubscribe refreshes once.
	reconnected := false
	if status == StatusSubscribed {
		if s.subscribeTimer != nil {
			s.subscribeTimer.Stop()
			s.subscribeTimer = nil
		}
		reconnected = s.subscribed
		s.subscribed = true
	} else {
		s.teardownLocked()
		s.conn++
	}
	s.stepLocked(StatusInput(status, err))
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	if reconnected {
		s.coord.Notify()
	}
}

func (s *Session) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && gen == s.conn
}

func (s *Session) teardownLocked() {
	if s.subscribeTimer != nil {
		s.subscribeTimer.Stop()
		s.subscribeTimer = nil
	}
	if s.connCancel != nil {
		s.connCancel()
		s.connCancel = nil
	}
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

func (s *Session) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *Session) runRefresh() {
	err := s.safeRefresh()
	if err != nil {
		s.opts.logger.Warn("view refresh failed", zap.Error(err))
	}

	s.mu.Lock()
	s.refreshes++
	s.lastRefreshErr = err
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *Session) safeRefresh() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("livesync: refresh panicked: %v", r)
		}
	}()
	return s.refresh(s.ctx)
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:          s.machine.State,
		Attempts:       s.machine.Attempts,
		Err:            s.machine.Err,
		GaveUp:         s.machine.GaveUp,
		LastRefreshErr: s.lastRefreshErr,
		Refreshes:      s.refreshes,
	}
}

func (s *Session) emit(snap Snapshot) {
	if s.opts.onChange != nil {
		s.opts.onChange(snap)
	}
}
