package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ChangesChannel is the NOTIFY channel written by the notify_row_change trigger.
const ChangesChannel = "row_changes"

type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// Listener holds a dedicated connection in LISTEN mode. database/sql pools
// cannot hold a session-scoped LISTEN, so it uses a native pgx connection.
type Listener struct {
	channel  string
	logger   *zap.Logger
	connect  func(ctx context.Context) (notificationConn, error)
	sleep    func(ctx context.Context, d time.Duration) error
	retryMin time.Duration
	retryMax time.Duration
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func NewListener(databaseURL, channel string, logger *zap.Logger) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{
		channel: channel,
		logger:  logger.Named("listener"),
		connect: func(ctx context.Context) (notificationConn, error) {
			return pgx.Connect(ctx, databaseURL)
		},
		sleep:    sleepContext,
		retryMin: 500 * time.Millisecond,
		retryMax: 30 * time.Second,
	}
}

// Run delivers payloads to handle until ctx is cancelled, reconnecting with
// capped backoff when the connection drops. The backoff restarts from the
// minimum after every successful LISTEN.
func (l *Listener) Run(ctx context.Context, handle func(context.Context, string)) error {
	delay := l.retryMin
	for {
		listening, err := l.listen(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if listening {
			delay = l.retryMin
		}
		l.logger.Warn("notification connection lost", zap.Error(err), zap.Duration("retry_in", delay))

		if err := l.sleep(ctx, delay); err != nil {
			return err
		}
		delay *= 2
		if delay > l.retryMax {
			delay = l.retryMax
		}
	}
}

func (l *Listener) listen(ctx context.Context, handle func(context.Context, string)) (bool, error) {
	conn, err := l.connect(ctx)
	if err != nil {
		return false, fmt.Errorf("connect listener: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("listen %s: %w", l.channel, err)
	}
	l.logger.Info("listening for row changes", zap.String("channel", l.channel))

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait for notification: %w", err)
		}
		handle(ctx, notification.Payload)
	}
}
