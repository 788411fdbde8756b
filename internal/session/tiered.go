package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/store"
)

// Store is what the auth flow needs from refresh session storage.
type Store interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Durable is the Postgres side of refresh session storage.
type Durable interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, time.Time, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Tiered writes to both backends and reads Redis first. A nil cache runs on
// Postgres alone; Redis failures degrade to Postgres with a warning.
type Tiered struct {
	cache   *RedisStore
	durable Durable
	logger  *zap.Logger
}

func NewTiered(cache *RedisStore, durable Durable, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{cache: cache, durable: durable, logger: logger.Named("sessions")}
}

func (t *Tiered) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if err := t.durable.SaveRefreshSession(ctx, tokenHash, userID, expiresAt); err != nil {
		return err
	}
	if t.cache != nil {
		if err := t.cache.SaveRefreshSession(ctx, tokenHash, userID, expiresAt); err != nil {
			t.logger.Warn("cache refresh session", zap.Error(err))
		}
	}
	return nil
}

// LookupRefreshSession reads Redis first. A Postgres hit is written back to
// Redis with its remaining lifetime.
func (t *Tiered) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	cacheUp := t.cache != nil
	if cacheUp {
		userID, err := t.cache.LookupRefreshSession(ctx, tokenHash)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			t.logger.Warn("refresh session cache unavailable", zap.Error(err))
			cacheUp = false
		}
	}

	user, expiresAt, err := t.durable.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if cacheUp {
		if err := t.cache.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt); err != nil {
			t.logger.Warn("re-warm refresh session", zap.Error(err))
		}
	}
	return user.ID, nil
}

// RevokeRefreshSession removes the token from both backends. The durable
// revoke must succeed; a stale cache entry would otherwise keep it alive.
func (t *Tiered) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	if t.cache != nil {
		if err := t.cache.RevokeRefreshSession(ctx, tokenHash); err != nil {
			return err
		}
	}
	return t.durable.RevokeRefreshSession(ctx, tokenHash)
}
