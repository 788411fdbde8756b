package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/activity"
	"tourcompanion/api/internal/auth"
	"tourcompanion/api/internal/authpw"
	"tourcompanion/api/internal/config"
	"tourcompanion/api/internal/email"
	"tourcompanion/api/internal/export"
	"tourcompanion/api/internal/logging"
	"tourcompanion/api/internal/rbac"
	"tourcompanion/api/internal/search"
	"tourcompanion/api/internal/session"
	"tourcompanion/api/internal/store"
	"tourcompanion/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         rbac.Role
	CreatorID    string
	EndClientID  string
	JTI          string
	ExpiresAt    time.Time
}

// Portal reports whether the session belongs to an end client.
func (s Session) Portal() bool {
	return s.EndClientID != ""
}

type dataStore interface {
	Ping(context.Context) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	GetCreatorByUser(context.Context, string) (store.Creator, error)
	UpdateCreator(context.Context, string, store.Creator) (store.Creator, error)

	ListClients(context.Context, string) ([]store.EndClient, error)
	GetClient(context.Context, string, string) (store.EndClient, error)
	GetClientByID(context.Context, string) (store.EndClient, error)
	CreateClient(context.Context, string, store.EndClient) (store.EndClient, error)
	UpdateClient(context.Context, string, store.EndClient) (store.EndClient, error)
	SetClientStatus(context.Context, string, string, string) (store.EndClient, error)

	ListProjects(context.Context, string, string) ([]store.Project, error)
	ListClientProjects(context.Context, string) ([]store.Project, error)
	GetProject(context.Context, string, string) (store.Project, error)
	GetProjectByExternalTourID(context.Context, string) (store.Project, error)
	CreateProject(context.Context, string, store.Project) (store.Project, error)
	UpdateProject(context.Context, string, store.Project) (store.Project, error)
	SetProjectStatus(context.Context, string, string, string) (store.Project, error)

	ListChatbots(context.Context, string) ([]store.Chatbot, error)
	CountChatbots(context.Context, string) (int, error)
	CreateChatbot(context.Context, string, store.Chatbot) (store.Chatbot, error)
	UpdateChatbot(context.Context, string, store.Chatbot) (store.Chatbot, error)

	ListLeads(context.Context, string, string) ([]store.Lead, error)
	GetLead(context.Context, string, string) (store.Lead, error)
	SetLeadStatus(context.Context, string, string, string) (store.Lead, error)
	InsertLead(context.Context, store.Lead) (store.Lead, error)

	InsertAnalytics(context.Context, store.Analytics) (string, error)
	ListAnalytics(context.Context, string, string, time.Time, time.Time) ([]store.Analytics, error)
	MetricTotals(context.Context, string, string, time.Time, time.Time) ([]store.MetricTotal, error)

	ListRequests(context.Context, string, string) ([]store.Request, error)
	ListClientRequests(context.Context, string) ([]store.Request, error)
	GetRequest(context.Context, string, string) (store.Request, error)
	SetRequestStatus(context.Context, string, string, string) (store.Request, error)
	CreateClientRequest(context.Context, string, store.Request) (store.Request, error)

	ListAssets(context.Context, string, string) ([]store.Asset, error)
	InsertAsset(context.Context, string, store.Asset) (store.Asset, error)
	DeleteAsset(context.Context, string, string) (store.Asset, error)

	InsertSupportRequest(context.Context, string, store.SupportRequest) (store.SupportRequest, error)
	DashboardCounts(context.Context, string) (store.DashboardCounts, error)

	ContactForChatbot(context.Context, string) (store.CreatorContact, error)
	ContactForClient(context.Context, string) (store.CreatorContact, error)
}

type searchIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexProject(search.ProjectRecord)
	IndexClient(search.ClientRecord)
	IndexLead(search.LeadRecord)
}

type objectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Remove(ctx context.Context, key string) error
	PublicURL(key string) string
}

type reporter interface {
	Report(context.Context, export.Request) (*export.Result, error)
}

type mailer interface {
	IsConfigured() bool
	SendVerificationEmail(to, userName, verificationURL string) error
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendNewLeadEmail(to string, data email.LeadData) error
	SendNewRequestEmail(to string, data email.RequestData) error
}

// Probe is a named readiness check.
type Probe struct {
	Name  string
	Check func(context.Context) error
}

// Deps are the collaborators of Service. Store, Sessions and Auth are
// required; the rest degrade to 503s or no-ops when nil.
type Deps struct {
	Store    dataStore
	Sessions session.Store
	Auth     *authpw.Service
	Mail     mailer
	Search   searchIndex
	Assets   objectStore
	Reports  reporter
	Activity *activity.Aggregator
	Probes   []Probe
	Logger   *zap.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions session.Store
	authpw   *authpw.Service
	mail     mailer
	search   searchIndex
	assets   objectStore
	reports  reporter
	activity *activity.Aggregator
	probes   []Probe
	logger   *zap.Logger
	now      func() time.Time
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		authpw:   deps.Auth,
		mail:     deps.Mail,
		search:   deps.Search,
		assets:   deps.Assets,
		reports:  deps.Reports,
		activity: deps.Activity,
		logger:   logger,
		now:      time.Now,
	}
	svc.probes = append([]Probe{{Name: "database", Check: deps.Store.Ping}}, deps.Probes...)
	if svc.activity == nil {
		if source, ok := deps.Store.(activity.Source); ok {
			svc.activity = activity.NewAggregator(source, nil)
		}
	}
	return svc
}

func (s *Service) AuthPasswordService() *authpw.Service {
	return s.authpw
}

func (s *Service) SMTPConfigured() bool {
	return s.mail != nil && s.mail.IsConfigured()
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

// Readiness runs every probe and reports per-check status.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := make(map[string]any, len(s.probes))
	for _, probe := range s.probes {
		if err := probe.Check(ctx); err != nil {
			ready = false
			checks[probe.Name] = map[string]any{"status": "error", "error": err.Error()}
			continue
		}
		checks[probe.Name] = map[string]any{"status": "ok"}
	}
	return ready, checks
}

// CreateSession issues an access and refresh token pair for a creator.
func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if errors.Is(err, session.ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	jti := util.NewToken("jti")
	claims := auth.NewClaims(user.ID, user.DisplayName, string(rbac.RoleCreator), jti, s.cfg.AccessTTL)
	claims.CreatorID = user.CreatorID
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewToken("rft")
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         rbac.RoleCreator,
		CreatorID:    user.CreatorID,
		JTI:          jti,
		ExpiresAt:    claims.Expiry(),
	}, nil
}

// IssuePortalToken mints an access token for one of the creator's end
// clients. Portal tokens carry no refresh token; the creator reissues them.
func (s *Service) IssuePortalToken(ctx context.Context, creator Session, clientID string) (Session, error) {
	client, err := s.store.GetClient(ctx, creator.UserID, clientID)
	if err != nil {
		return Session{}, err
	}
	if client.Status != "active" {
		return Session{}, domainError(http.StatusConflict, "CLIENT_INACTIVE", "Client is deactivated", nil)
	}

	jti := util.NewToken("jti")
	claims := auth.NewClaims(client.ID, client.Name, string(rbac.RoleEndClient), jti, s.cfg.RefreshTTL)
	claims.CreatorID = client.CreatorID
	claims.EndClientID = client.ID
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:       token,
		UserID:      client.ID,
		UserName:    client.Name,
		Email:       client.Email,
		Role:        rbac.RoleEndClient,
		CreatorID:   client.CreatorID,
		EndClientID: client.ID,
		JTI:         jti,
		ExpiresAt:   claims.Expiry(),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	if rbac.Normalize(claims.Role) == rbac.RoleEndClient {
		client, err := s.store.GetClientByID(ctx, claims.EndClientID)
		if err != nil || client.Status != "active" {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{
			Token:       token,
			UserID:      client.ID,
			UserName:    client.Name,
			Email:       client.Email,
			Role:        rbac.RoleEndClient,
			CreatorID:   client.CreatorID,
			EndClientID: client.ID,
			JTI:         claims.ID,
			ExpiresAt:   claims.Expiry(),
		}, nil
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      rbac.Normalize(claims.Role),
		CreatorID: user.CreatorID,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, sess Session, refreshToken string) error {
	if sess.JTI != "" {
		if err := s.store.RevokeAccessToken(ctx, sess.JTI, sess.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", zap.Error(err))
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh session", zap.Error(err))
		}
	}
	return nil
}

// notify sends one mail and logs the outcome. Mail never fails the request.
func (s *Service) notify(ctx context.Context, kind string, send func() error) {
	if s.mail == nil {
		return
	}
	err := send()
	logger := s.logger.With(zap.String("mail", kind), zap.String("request_id", logging.RequestID(ctx)))
	switch {
	case errors.Is(err, email.ErrNotConfigured):
		logger.Debug("mail skipped, smtp not configured")
	case err != nil:
		logger.Warn("mail delivery failed", zap.Error(err))
	}
}

func (s *Service) dashboardURL(path string) string {
	return fmt.Sprintf("%s%s", s.cfg.AppBaseURL, path)
}
