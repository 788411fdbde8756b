// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tourcompanion/api/internal/store"
	"tourcompanion/api/internal/util"
)

const (
	MinPasswordLength = 8
	VerificationTTL   = 24 * time.Hour
	ResetTTL          = time.Hour
)

var (
	ErrMissingFields      = errors.New("email, password, display name and agency name are required")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateCreatorAccount(ctx context.Context, user store.User, agencyName string) (store.Creator, error)
	UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyUserEmail(ctx context.Context, token string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service. cost <= 0 uses bcrypt.DefaultCost.
func NewService(store UserStore, cost int) *Service {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: store, cost: cost, now: time.Now}
}

type SignUpRequest struct {
	Email       string
	Password    string
	DisplayName string
	AgencyName  string
}

type SignUpResponse struct {
	User                store.User
	Creator             store.Creator
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates the user and its creator row. autoVerify marks the address
// verified immediately, for deployments without outbound mail.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest, autoVerify bool) (*SignUpResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.AgencyName = strings.TrimSpace(req.AgencyName)
	if req.Email == "" || req.Password == "" || req.DisplayName == "" || req.AgencyName == "" {
		return nil, ErrMissingFields
	}
	if len(req.Password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	_, err := s.store.GetUserByEmail(ctx, req.Email)
	if err == nil {
		return nil, ErrEmailTaken
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:              util.NewID(),
		DisplayName:     req.DisplayName,
		Email:           req.Email,
		PasswordHash:    string(hash),
		IsEmailVerified: autoVerify,
	}
	if !autoVerify {
		token, err := generateToken()
		if err != nil {
			return nil, fmt.Errorf("generate verification token: %w", err)
		}
		expiresAt := s.now().Add(VerificationTTL)
		user.VerificationToken = token
		user.VerificationExpiresAt = &expiresAt
	}

	creator, err := s.store.CreateCreatorAccount(ctx, user, req.AgencyName)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	user.CreatorID = creator.ID

	return &SignUpResponse{
		User:                user,
		Creator:             creator,
		VerificationToken:   user.VerificationToken,
		RequiresEmailVerify: !autoVerify,
	}, nil
}

type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn checks the password before revealing verification state.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return &SignInResponse{User: user, RequiresVerify: !user.IsEmailVerified}, nil
}

// ResendVerification issues a fresh verification token for an unverified user.
func (s *Service) ResendVerification(ctx context.Context, userID string) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generate verification token: %w", err)
	}
	if err := s.store.UpdateUserVerificationToken(ctx, userID, token, s.now().Add(VerificationTTL)); err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return ErrInvalidToken
	}
	err := s.store.VerifyUserEmail(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrInvalidToken
	}
	return err
}

// RequestPasswordReset returns the reset token and the user it belongs to.
// Unknown addresses yield an empty token and no error so callers cannot
// probe for accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, store.User, error) {
	user, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.User{}, nil
	}
	if err != nil {
		return "", store.User{}, fmt.Errorf("load user: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return "", store.User{}, err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, s.now().Add(ResetTTL)); err != nil {
		return "", store.User{}, err
	}
	return token, user, nil
}

// ResetPassword sets a new password and burns the reset token. It returns the
// user id so callers can revoke existing sessions.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrInvalidToken
	}
	if len(newPassword) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	userID, err := s.store.GetPasswordReset(ctx, token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("load reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	if err := s.store.MarkPasswordResetUsed(ctx, token); err != nil {
		return "", fmt.Errorf("burn reset token: %w", err)
	}
	return userID, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
