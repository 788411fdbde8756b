package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Principal is who a subscription is opened for. Creators see their own
// tenant; portal sessions see only their end client's rows.
type Principal struct {
	CreatorUserID string
	EndClientID   string
	Admin         bool
}

func (p Principal) Sees(owner Owner) bool {
	switch {
	case p.Admin:
		return true
	case p.EndClientID != "":
		return owner.EndClientID == p.EndClientID
	default:
		return p.CreatorUserID != "" && owner.CreatorUserID == p.CreatorUserID
	}
}

// Hub delivers notifications from the Redis channel to local subscriptions.
type Hub struct {
	client  redis.UniversalClient
	channel string
	buffer  int
	logger  *zap.Logger

	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

func NewHub(client redis.UniversalClient, opts ...Option) *Hub {
	o := collect(opts)
	return &Hub{
		client:  client,
		channel: o.channel,
		buffer:  o.buffer,
		logger:  o.logger.Named("hub"),
		subs:    make(map[string]*Subscription),
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Ready is closed once the Redis subscription is confirmed.
func (h *Hub) Ready() <-chan struct{} {
	return h.ready
}

// Run consumes the Redis channel until ctx ends or the hub is closed.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.client.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", h.channel, err)
	}
	h.readyOnce.Do(func() { close(h.ready) })
	h.logger.Info("subscribed to change channel", zap.String("channel", h.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case msg, ok := <-messages:
			if !ok {
				h.logger.Warn("change channel closed")
				return nil
			}
			var n Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				h.logger.Warn("ignoring malformed notification", zap.Error(err))
				continue
			}
			h.Dispatch(n)
		}
	}
}

// Dispatch hands n to every matching subscription. Full queues drop.
func (h *Hub) Dispatch(n Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !sub.wants(n) {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			h.logger.Warn("subscriber queue full, dropping change",
				zap.String("subscription_id", sub.id),
				zap.String("table", n.Table))
		}
	}
}

// Subscribe registers a subscription. After Close it returns one that is
// already done.
func (h *Hub) Subscribe(principal Principal, bindings []Binding) *Subscription {
	sub := &Subscription{
		id:        uuid.NewString(),
		principal: principal,
		bindings:  append([]Binding(nil), bindings...),
		ch:        make(chan Notification, h.buffer),
		done:      make(chan struct{}),
		hub:       h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.finish()
		return sub
	}
	h.subs[sub.id] = sub
	return sub
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		for id, sub := range h.subs {
			sub.finish()
			delete(h.subs, id)
		}
		h.mu.Unlock()
		close(h.done)
	})
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

type Subscription struct {
	id        string
	principal Principal
	bindings  []Binding
	ch        chan Notification
	done      chan struct{}
	once      sync.Once
	hub       *Hub
}

func (s *Subscription) ID() string { return s.id }

func (s *Subscription) C() <-chan Notification { return s.ch }

// Done is closed when the hub shuts down or the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.finish()
}

func (s *Subscription) finish() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) wants(n Notification) bool {
	if !s.principal.Sees(n.Owner) {
		return false
	}
	for _, binding := range s.bindings {
		if binding.Matches(n) {
			return true
		}
	}
	return false
}
