package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"tourcompanion/api/internal/store"
)

// MailVerification sends the verification link for a freshly issued token.
func (s *Service) MailVerification(ctx context.Context, user store.User, token string) {
	if token == "" {
		return
	}
	link := s.dashboardURL("/verify-email?token=" + url.QueryEscape(token))
	s.notify(ctx, "verification", func() error {
		return s.mail.SendVerificationEmail(user.Email, user.DisplayName, link)
	})
}

func (s *Service) MailPasswordReset(ctx context.Context, user store.User, token string) {
	if token == "" {
		return
	}
	link := s.dashboardURL("/reset-password?token=" + url.QueryEscape(token))
	s.notify(ctx, "password_reset", func() error {
		return s.mail.SendPasswordResetEmail(user.Email, user.DisplayName, link)
	})
}

// ResendVerification reissues the verification token for an unverified
// address. Unknown or verified addresses return an empty token.
func (s *Service) ResendVerification(ctx context.Context, address string) (string, error) {
	if s.authpw == nil {
		return "", errAuthUnavailable
	}
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	if user.IsEmailVerified {
		return "", nil
	}
	token, err := s.authpw.ResendVerification(ctx, user.ID)
	if err != nil {
		return "", err
	}
	s.MailVerification(ctx, user, token)
	return token, nil
}

var errAuthUnavailable = domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication service not configured", nil)
