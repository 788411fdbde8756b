package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tourcompanion/api/internal/store"
)

type OwnerResolver interface {
	ResolveOwner(ctx context.Context, table string, keys map[string]string) (store.Owner, error)
}

// Broker turns raw NOTIFY payloads into owned notifications on Redis.
type Broker struct {
	resolver OwnerResolver
	client   redis.UniversalClient
	channel  string
	logger   *zap.Logger
}

type Option func(*options)

type options struct {
	channel string
	logger  *zap.Logger
	buffer  int
}

func WithChannel(channel string) Option {
	return func(o *options) { o.channel = channel }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBuffer sets the per-subscriber queue length of a Hub.
func WithBuffer(size int) Option {
	return func(o *options) { o.buffer = size }
}

func collect(opts []Option) options {
	o := options{channel: Channel, logger: zap.NewNop(), buffer: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.buffer <= 0 {
		o.buffer = 1
	}
	return o
}

func NewBroker(resolver OwnerResolver, client redis.UniversalClient, opts ...Option) *Broker {
	o := collect(opts)
	return &Broker{
		resolver: resolver,
		client:   client,
		channel:  o.channel,
		logger:   o.logger.Named("broker"),
	}
}

// Handle is the store.Listener callback. Payloads that cannot be decoded or
// whose owner cannot be resolved are dropped with a warning.
func (b *Broker) Handle(ctx context.Context, payload string) {
	n, err := DecodeRowChange(payload)
	if err != nil {
		b.logger.Warn("dropping change payload", zap.Error(err))
		return
	}

	owner, err := b.resolver.ResolveOwner(ctx, n.Table, n.Keys)
	if err != nil {
		b.logger.Warn("dropping change without owner",
			zap.String("table", n.Table),
			zap.String("type", n.Type),
			zap.Error(err))
		return
	}
	n.Owner = ownerFromStore(owner)

	if err := b.Publish(ctx, n); err != nil {
		b.logger.Error("publish change failed", zap.String("table", n.Table), zap.Error(err))
	}
}

func (b *Broker) Publish(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", b.channel, err)
	}
	b.logger.Debug("change published",
		zap.String("table", n.Table),
		zap.String("type", n.Type),
		zap.String("creator_user_id", n.Owner.CreatorUserID))
	return nil
}
