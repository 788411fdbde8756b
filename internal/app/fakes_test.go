package app

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tourcompanion/api/internal/authpw"
	"tourcompanion/api/internal/config"
	"tourcompanion/api/internal/email"
	"tourcompanion/api/internal/session"
	"tourcompanion/api/internal/store"
)

const (
	testUserID    = "11111111-1111-4111-8111-111111111111"
	testCreatorID = "22222222-2222-4222-8222-222222222222"
	testClientID  = "33333333-3333-4333-8333-333333333333"
	testProjectID = "44444444-4444-4444-8444-444444444444"
	testChatbotID = "55555555-5555-4555-8555-555555555555"
	testLeadID    = "66666666-6666-4666-8666-666666666666"
	testRequestID = "77777777-7777-4777-8777-777777777777"
)

// fakeStore satisfies dataStore and authpw.UserStore. Unset hooks return
// zero values or sql.ErrNoRows for single-row lookups.
type fakeStore struct {
	pingFn                 func(context.Context) error
	getUserByIDFn          func(context.Context, string) (store.User, error)
	getUserByEmailFn       func(context.Context, string) (store.User, error)
	createCreatorAccountFn func(context.Context, store.User, string) (store.Creator, error)
	verifyUserEmailFn      func(context.Context, string) error
	isRevokedFn            func(context.Context, string) (bool, error)

	getCreatorByUserFn func(context.Context, string) (store.Creator, error)
	listClientsFn      func(context.Context, string) ([]store.EndClient, error)
	getClientFn        func(context.Context, string, string) (store.EndClient, error)
	getClientByIDFn    func(context.Context, string) (store.EndClient, error)
	createClientFn     func(context.Context, string, store.EndClient) (store.EndClient, error)
	setClientStatusFn  func(context.Context, string, string, string) (store.EndClient, error)

	listProjectsFn       func(context.Context, string, string) ([]store.Project, error)
	listClientProjectsFn func(context.Context, string) ([]store.Project, error)
	getProjectFn         func(context.Context, string, string) (store.Project, error)
	projectByTourFn      func(context.Context, string) (store.Project, error)
	createProjectFn      func(context.Context, string, store.Project) (store.Project, error)

	countChatbotsFn func(context.Context, string) (int, error)
	createChatbotFn func(context.Context, string, store.Chatbot) (store.Chatbot, error)

	getLeadFn       func(context.Context, string, string) (store.Lead, error)
	setLeadStatusFn func(context.Context, string, string, string) (store.Lead, error)
	insertLeadFn    func(context.Context, store.Lead) (store.Lead, error)

	insertAnalyticsFn func(context.Context, store.Analytics) (string, error)

	getRequestFn          func(context.Context, string, string) (store.Request, error)
	setRequestStatusFn    func(context.Context, string, string, string) (store.Request, error)
	listClientRequestsFn  func(context.Context, string) ([]store.Request, error)
	createClientRequestFn func(context.Context, string, store.Request) (store.Request, error)

	insertAssetFn func(context.Context, string, store.Asset) (store.Asset, error)
	deleteAssetFn func(context.Context, string, string) (store.Asset, error)

	contactForChatbotFn func(context.Context, string) (store.CreatorContact, error)
	contactForClientFn  func(context.Context, string) (store.CreatorContact, error)

	mu      sync.Mutex
	revoked []string
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, address string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, address)
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) CreateCreatorAccount(ctx context.Context, user store.User, agency string) (store.Creator, error) {
	if f.createCreatorAccountFn != nil {
		return f.createCreatorAccountFn(ctx, user, agency)
	}
	return store.Creator{ID: testCreatorID, UserID: user.ID, AgencyName: agency, Email: user.Email}, nil
}

func (f *fakeStore) UpdateUserVerificationToken(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeStore) VerifyUserEmail(ctx context.Context, token string) error {
	if f.verifyUserEmailFn != nil {
		return f.verifyUserEmailFn(ctx, token)
	}
	return sql.ErrNoRows
}

func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }

func (f *fakeStore) CreatePasswordReset(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeStore) GetPasswordReset(context.Context, string) (string, error) {
	return "", sql.ErrNoRows
}

func (f *fakeStore) MarkPasswordResetUsed(context.Context, string) error { return nil }

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, jti)
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	if f.isRevokedFn != nil {
		return f.isRevokedFn(ctx, jti)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.revoked {
		if id == jti {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) GetCreatorByUser(ctx context.Context, userID string) (store.Creator, error) {
	if f.getCreatorByUserFn != nil {
		return f.getCreatorByUserFn(ctx, userID)
	}
	return store.Creator{}, sql.ErrNoRows
}

func (f *fakeStore) UpdateCreator(_ context.Context, userID string, item store.Creator) (store.Creator, error) {
	item.UserID = userID
	return item, nil
}

func (f *fakeStore) ListClients(ctx context.Context, userID string) ([]store.EndClient, error) {
	if f.listClientsFn != nil {
		return f.listClientsFn(ctx, userID)
	}
	return []store.EndClient{}, nil
}

func (f *fakeStore) GetClient(ctx context.Context, userID, clientID string) (store.EndClient, error) {
	if f.getClientFn != nil {
		return f.getClientFn(ctx, userID, clientID)
	}
	return store.EndClient{}, sql.ErrNoRows
}

func (f *fakeStore) GetClientByID(ctx context.Context, clientID string) (store.EndClient, error) {
	if f.getClientByIDFn != nil {
		return f.getClientByIDFn(ctx, clientID)
	}
	return store.EndClient{}, sql.ErrNoRows
}

func (f *fakeStore) CreateClient(ctx context.Context, userID string, item store.EndClient) (store.EndClient, error) {
	if f.createClientFn != nil {
		return f.createClientFn(ctx, userID, item)
	}
	item.ID = testClientID
	item.CreatorID = testCreatorID
	item.Status = "active"
	return item, nil
}

func (f *fakeStore) UpdateClient(_ context.Context, _ string, item store.EndClient) (store.EndClient, error) {
	return item, nil
}

func (f *fakeStore) SetClientStatus(ctx context.Context, userID, clientID, status string) (store.EndClient, error) {
	if f.setClientStatusFn != nil {
		return f.setClientStatusFn(ctx, userID, clientID, status)
	}
	return store.EndClient{ID: clientID, Status: status}, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, userID, clientID string) ([]store.Project, error) {
	if f.listProjectsFn != nil {
		return f.listProjectsFn(ctx, userID, clientID)
	}
	return []store.Project{}, nil
}

func (f *fakeStore) ListClientProjects(ctx context.Context, clientID string) ([]store.Project, error) {
	if f.listClientProjectsFn != nil {
		return f.listClientProjectsFn(ctx, clientID)
	}
	return []store.Project{}, nil
}

func (f *fakeStore) GetProject(ctx context.Context, userID, projectID string) (store.Project, error) {
	if f.getProjectFn != nil {
		return f.getProjectFn(ctx, userID, projectID)
	}
	return store.Project{}, sql.ErrNoRows
}

func (f *fakeStore) GetProjectByExternalTourID(ctx context.Context, tourID string) (store.Project, error) {
	if f.projectByTourFn != nil {
		return f.projectByTourFn(ctx, tourID)
	}
	return store.Project{}, sql.ErrNoRows
}

func (f *fakeStore) CreateProject(ctx context.Context, userID string, item store.Project) (store.Project, error) {
	if f.createProjectFn != nil {
		return f.createProjectFn(ctx, userID, item)
	}
	item.ID = testProjectID
	return item, nil
}

func (f *fakeStore) UpdateProject(_ context.Context, _ string, item store.Project) (store.Project, error) {
	return item, nil
}

func (f *fakeStore) SetProjectStatus(_ context.Context, _, projectID, status string) (store.Project, error) {
	return store.Project{ID: projectID, Status: status}, nil
}

func (f *fakeStore) ListChatbots(context.Context, string) ([]store.Chatbot, error) {
	return []store.Chatbot{}, nil
}

func (f *fakeStore) CountChatbots(ctx context.Context, userID string) (int, error) {
	if f.countChatbotsFn != nil {
		return f.countChatbotsFn(ctx, userID)
	}
	return 0, nil
}

func (f *fakeStore) CreateChatbot(ctx context.Context, userID string, item store.Chatbot) (store.Chatbot, error) {
	if f.createChatbotFn != nil {
		return f.createChatbotFn(ctx, userID, item)
	}
	item.ID = testChatbotID
	return item, nil
}

func (f *fakeStore) UpdateChatbot(_ context.Context, _ string, item store.Chatbot) (store.Chatbot, error) {
	return item, nil
}

func (f *fakeStore) ListLeads(context.Context, string, string) ([]store.Lead, error) {
	return []store.Lead{}, nil
}

func (f *fakeStore) GetLead(ctx context.Context, userID, leadID string) (store.Lead, error) {
	if f.getLeadFn != nil {
		return f.getLeadFn(ctx, userID, leadID)
	}
	return store.Lead{}, sql.ErrNoRows
}

func (f *fakeStore) SetLeadStatus(ctx context.Context, userID, leadID, status string) (store.Lead, error) {
	if f.setLeadStatusFn != nil {
		return f.setLeadStatusFn(ctx, userID, leadID, status)
	}
	return store.Lead{ID: leadID, Status: status}, nil
}

func (f *fakeStore) InsertLead(ctx context.Context, item store.Lead) (store.Lead, error) {
	if f.insertLeadFn != nil {
		return f.insertLeadFn(ctx, item)
	}
	return store.Lead{}, sql.ErrNoRows
}

func (f *fakeStore) InsertAnalytics(ctx context.Context, item store.Analytics) (string, error) {
	if f.insertAnalyticsFn != nil {
		return f.insertAnalyticsFn(ctx, item)
	}
	return "analytics-1", nil
}

func (f *fakeStore) ListAnalytics(context.Context, string, string, time.Time, time.Time) ([]store.Analytics, error) {
	return []store.Analytics{}, nil
}

func (f *fakeStore) MetricTotals(context.Context, string, string, time.Time, time.Time) ([]store.MetricTotal, error) {
	return []store.MetricTotal{}, nil
}

func (f *fakeStore) ListRequests(context.Context, string, string) ([]store.Request, error) {
	return []store.Request{}, nil
}

func (f *fakeStore) ListClientRequests(ctx context.Context, clientID string) ([]store.Request, error) {
	if f.listClientRequestsFn != nil {
		return f.listClientRequestsFn(ctx, clientID)
	}
	return []store.Request{}, nil
}

func (f *fakeStore) GetRequest(ctx context.Context, userID, requestID string) (store.Request, error) {
	if f.getRequestFn != nil {
		return f.getRequestFn(ctx, userID, requestID)
	}
	return store.Request{}, sql.ErrNoRows
}

func (f *fakeStore) SetRequestStatus(ctx context.Context, userID, requestID, status string) (store.Request, error) {
	if f.setRequestStatusFn != nil {
		return f.setRequestStatusFn(ctx, userID, requestID, status)
	}
	return store.Request{ID: requestID, Status: status}, nil
}

func (f *fakeStore) CreateClientRequest(ctx context.Context, clientID string, item store.Request) (store.Request, error) {
	if f.createClientRequestFn != nil {
		return f.createClientRequestFn(ctx, clientID, item)
	}
	item.ID = testRequestID
	item.EndClientID = clientID
	item.Status = "open"
	return item, nil
}

func (f *fakeStore) ListAssets(context.Context, string, string) ([]store.Asset, error) {
	return []store.Asset{}, nil
}

func (f *fakeStore) InsertAsset(ctx context.Context, userID string, item store.Asset) (store.Asset, error) {
	if f.insertAssetFn != nil {
		return f.insertAssetFn(ctx, userID, item)
	}
	item.CreatorID = testCreatorID
	return item, nil
}

func (f *fakeStore) DeleteAsset(ctx context.Context, userID, assetID string) (store.Asset, error) {
	if f.deleteAssetFn != nil {
		return f.deleteAssetFn(ctx, userID, assetID)
	}
	return store.Asset{}, sql.ErrNoRows
}

func (f *fakeStore) InsertSupportRequest(_ context.Context, _ string, item store.SupportRequest) (store.SupportRequest, error) {
	item.ID = "support-1"
	item.Status = "open"
	return item, nil
}

func (f *fakeStore) DashboardCounts(context.Context, string) (store.DashboardCounts, error) {
	return store.DashboardCounts{}, nil
}

func (f *fakeStore) ContactForChatbot(ctx context.Context, chatbotID string) (store.CreatorContact, error) {
	if f.contactForChatbotFn != nil {
		return f.contactForChatbotFn(ctx, chatbotID)
	}
	return store.CreatorContact{}, sql.ErrNoRows
}

func (f *fakeStore) ContactForClient(ctx context.Context, clientID string) (store.CreatorContact, error) {
	if f.contactForClientFn != nil {
		return f.contactForClientFn(ctx, clientID)
	}
	return store.CreatorContact{}, sql.ErrNoRows
}

type memorySessions struct {
	mu    sync.Mutex
	items map[string]string
}

func newMemorySessions() *memorySessions {
	return &memorySessions{items: make(map[string]string)}
}

func (m *memorySessions) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[tokenHash] = userID
	return nil
}

func (m *memorySessions) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.items[tokenHash]
	if !ok {
		return "", session.ErrNotFound
	}
	return userID, nil
}

func (m *memorySessions) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, tokenHash)
	return nil
}

type fakeMailer struct {
	configured bool
	mu         sync.Mutex
	sent       []string
}

func (m *fakeMailer) record(kind, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, kind+":"+to)
	if !m.configured {
		return email.ErrNotConfigured
	}
	return nil
}

func (m *fakeMailer) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendVerificationEmail(to, _, _ string) error {
	return m.record("verification", to)
}

func (m *fakeMailer) SendPasswordResetEmail(to, _, _ string) error {
	return m.record("reset", to)
}

func (m *fakeMailer) SendNewLeadEmail(to string, _ email.LeadData) error {
	return m.record("lead", to)
}

func (m *fakeMailer) SendNewRequestEmail(to string, _ email.RequestData) error {
	return m.record("request", to)
}

type fakeObjects struct {
	put     []string
	removed []string
	putErr  error
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	if f.putErr != nil {
		return f.putErr
	}
	_, _ = io.Copy(io.Discard, r)
	f.put = append(f.put, key)
	return nil
}

func (f *fakeObjects) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

func (f *fakeObjects) PublicURL(key string) string {
	return "http://assets.test/" + key
}

func testConfig() config.Config {
	return config.Config{
		Env:         "test",
		AppBaseURL:  "http://app.test",
		JWTSecret:   "test-secret",
		IngestToken: "ingest-secret",
		AccessTTL:   time.Hour,
		RefreshTTL:  24 * time.Hour,
		CORSOrigin:  "*",
	}
}

func newTestService(fs *fakeStore, mut ...func(*Deps)) *Service {
	deps := Deps{
		Store:    fs,
		Sessions: newMemorySessions(),
		Auth:     authpw.NewService(fs, bcrypt.MinCost),
	}
	for _, fn := range mut {
		fn(&deps)
	}
	return New(testConfig(), deps)
}

// creatorUser is a verified creator account with password "correct-horse".
func creatorUser() store.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	return store.User{
		ID:              testUserID,
		DisplayName:     "Avery",
		Email:           "avery@example.com",
		PasswordHash:    string(hash),
		IsEmailVerified: true,
		CreatorID:       testCreatorID,
	}
}

func withCreator(fs *fakeStore) *fakeStore {
	fs.getUserByIDFn = func(_ context.Context, id string) (store.User, error) {
		if id == testUserID {
			return creatorUser(), nil
		}
		return store.User{}, sql.ErrNoRows
	}
	return fs
}
