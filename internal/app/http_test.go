package app

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourcompanion/api/internal/manifest"
	"tourcompanion/api/internal/offline"
	"tourcompanion/api/internal/realtime"
	"tourcompanion/api/internal/store"
)

func newTestServer(svc *Service, opts ...func(*HTTPOptions)) *HTTPServer {
	options := HTTPOptions{CORSOrigin: "*", IngestToken: "ingest-secret"}
	for _, fn := range opts {
		fn(&options)
	}
	return NewHTTPServer(svc, options)
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), "body=%s", rr.Body.String())
	return payload
}

func creatorToken(t *testing.T, svc *Service) string {
	t.Helper()
	sess, err := svc.CreateSession(context.Background(), testUserID)
	require.NoError(t, err)
	return sess.Token
}

func activeClient() store.EndClient {
	return store.EndClient{ID: testClientID, CreatorID: testCreatorID, Name: "Harbor Hotel", Email: "ops@harbor.test", Status: "active"}
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))

	rr := do(t, server.Handler(), http.MethodGet, "/api/health", "", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, decode(t, rr)["ok"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("all probes pass", func(t *testing.T) {
		server := newTestServer(newTestService(&fakeStore{}))
		rr := do(t, server.Handler(), http.MethodGet, "/api/ready", "", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ready", decode(t, rr)["status"])
	})

	t.Run("failed probe returns 503", func(t *testing.T) {
		fs := &fakeStore{pingFn: func(context.Context) error { return errors.New("connection refused") }}
		svc := newTestService(fs, func(d *Deps) {
			d.Probes = []Probe{{Name: "redis", Check: func(context.Context) error { return nil }}}
		})
		rr := do(t, newTestServer(svc).Handler(), http.MethodGet, "/api/ready", "", "")

		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		payload := decode(t, rr)
		assert.Equal(t, "not_ready", payload["status"])
		checks := payload["checks"].(map[string]any)
		assert.Equal(t, "error", checks["database"].(map[string]any)["status"])
		assert.Equal(t, "ok", checks["redis"].(map[string]any)["status"])
	})
}

func TestAppShell(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))

	rr := do(t, server.Handler(), http.MethodGet, "/", "", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), `href="/api/manifest"`)
}

func TestPrecacheServesShellOffline(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}), func(o *HTTPOptions) {
		o.Manifest = manifest.NewHandler(nil, nil)
	})
	ts := httptest.NewServer(server.Handler())

	base := &http.Transport{}
	transport := offline.NewTransport(base, nil, nil)
	require.NoError(t, transport.Precache(context.Background(), ts.URL, offline.PrecacheURLs))

	ts.Close()
	base.CloseIdleConnections()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/client/"+testProjectID, nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "text/html")
	resp, err := (&http.Client{Transport: transport}).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, offline.FromCache(resp))
	assert.Contains(t, string(body), "<title>TourCompanion</title>")
}

func TestOptionsPreflight(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))
	rr := do(t, server.Handler(), http.MethodOptions, "/api/clients", "", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "X-Ingest-Token")
}

func TestSignUpReturnsDevTokenWithoutSMTP(t *testing.T) {
	var agency string
	fs := &fakeStore{
		createCreatorAccountFn: func(_ context.Context, user store.User, name string) (store.Creator, error) {
			agency = name
			assert.False(t, user.IsEmailVerified)
			return store.Creator{ID: testCreatorID, UserID: user.ID}, nil
		},
	}
	mail := &fakeMailer{}
	svc := newTestService(fs, func(d *Deps) { d.Mail = mail })

	rr := do(t, newTestServer(svc).Handler(), http.MethodPost, "/api/auth/signup",
		`{"email":"New@Example.com","password":"longenough","displayName":"Sam","agencyName":"Vista Tours"}`, "")

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	payload := decode(t, rr)
	assert.NotEmpty(t, payload["devVerificationToken"])
	assert.Equal(t, testCreatorID, payload["creatorId"])
	assert.Equal(t, "Vista Tours", agency)
	assert.Equal(t, []string{"verification:new@example.com"}, mail.Sent())
}

func TestSignUpRejectsTakenEmail(t *testing.T) {
	fs := &fakeStore{getUserByEmailFn: func(context.Context, string) (store.User, error) {
		return creatorUser(), nil
	}}
	rr := do(t, newTestServer(newTestService(fs)).Handler(), http.MethodPost, "/api/auth/signup",
		`{"email":"avery@example.com","password":"longenough","displayName":"Avery","agencyName":"Vista"}`, "")

	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "EMAIL_EXISTS", decode(t, rr)["code"])
}

func TestSignIn(t *testing.T) {
	user := creatorUser()
	fs := withCreator(&fakeStore{})
	fs.getUserByEmailFn = func(context.Context, string) (store.User, error) { return user, nil }
	server := newTestServer(newTestService(fs))

	t.Run("valid credentials issue a session", func(t *testing.T) {
		rr := do(t, server.Handler(), http.MethodPost, "/api/auth/signin", `{"email":"avery@example.com","password":"correct-horse"}`, "")
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		payload := decode(t, rr)
		assert.NotEmpty(t, payload["accessToken"])
		assert.NotEmpty(t, payload["refreshToken"])
		assert.Equal(t, "creator", payload["role"])
		assert.Equal(t, testCreatorID, payload["creatorId"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rr := do(t, server.Handler(), http.MethodPost, "/api/auth/signin", `{"email":"avery@example.com","password":"nope-nope"}`, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", decode(t, rr)["code"])
	})

	t.Run("unverified email", func(t *testing.T) {
		unverified := user
		unverified.IsEmailVerified = false
		fs.getUserByEmailFn = func(context.Context, string) (store.User, error) { return unverified, nil }
		rr := do(t, server.Handler(), http.MethodPost, "/api/auth/signin", `{"email":"avery@example.com","password":"correct-horse"}`, "")
		require.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "EMAIL_NOT_VERIFIED", decode(t, rr)["code"])
	})
}

func TestPasswordResetRequestHidesUnknownAccounts(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))
	rr := do(t, server.Handler(), http.MethodPost, "/api/auth/reset-password/request", `{"email":"ghost@example.com"}`, "")

	require.Equal(t, http.StatusOK, rr.Code)
	_, leaked := decode(t, rr)["devResetToken"]
	assert.False(t, leaked)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	server := newTestServer(svc)
	sess, err := svc.CreateSession(context.Background(), testUserID)
	require.NoError(t, err)

	rr := do(t, server.Handler(), http.MethodPost, "/api/session/refresh", `{"refreshToken":"`+sess.RefreshToken+`"}`, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rotated := decode(t, rr)
	assert.NotEqual(t, sess.RefreshToken, rotated["refreshToken"])

	rr = do(t, server.Handler(), http.MethodPost, "/api/session/refresh", `{"refreshToken":"`+sess.RefreshToken+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "old refresh token must be consumed")

	access := rotated["accessToken"].(string)
	rr = do(t, server.Handler(), http.MethodPost, "/api/session/logout", `{}`, access)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, server.Handler(), http.MethodGet, "/api/dashboard", "", access)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))
	rr := do(t, server.Handler(), http.MethodGet, "/api/session", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, false, decode(t, rr)["authenticated"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	server := newTestServer(newTestService(&fakeStore{}))
	for _, path := range []string{"/api/clients", "/api/projects", "/api/portal/project", "/api/realtime?binding=projects"} {
		rr := do(t, server.Handler(), http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestNonUUIDPathIsNotFound(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	rr := do(t, newTestServer(svc).Handler(), http.MethodGet, "/api/projects/not-a-uuid", "", creatorToken(t, svc))
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rr)["code"])
}

func TestForeignProjectIsNotFound(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	rr := do(t, newTestServer(svc).Handler(), http.MethodGet, "/api/projects/"+testProjectID, "", creatorToken(t, svc))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateClientValidation(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	rr := do(t, newTestServer(svc).Handler(), http.MethodPost, "/api/clients", `{"name":"","email":"not-an-email"}`, creatorToken(t, svc))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
	fields := map[string]bool{}
	for _, item := range payload["details"].([]any) {
		fields[item.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["email"])
}

func TestCreateChatbotLimit(t *testing.T) {
	fs := withCreator(&fakeStore{countChatbotsFn: func(context.Context, string) (int, error) { return MaxChatbotsPerCreator, nil }})
	svc := newTestService(fs)

	rr := do(t, newTestServer(svc).Handler(), http.MethodPost, "/api/chatbots", `{"projectId":"`+testProjectID+`","name":"Concierge"}`, creatorToken(t, svc))

	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "CHATBOT_LIMIT_REACHED", decode(t, rr)["code"])
}

func TestLeadStatusTransitions(t *testing.T) {
	fs := withCreator(&fakeStore{getLeadFn: func(context.Context, string, string) (store.Lead, error) {
		return store.Lead{ID: testLeadID, Status: "new"}, nil
	}})
	svc := newTestService(fs)
	server := newTestServer(svc)
	token := creatorToken(t, svc)

	rr := do(t, server.Handler(), http.MethodPost, "/api/leads/"+testLeadID+"/status", `{"status":"converted"}`, token)
	require.Equal(t, http.StatusConflict, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "INVALID_TRANSITION", payload["code"])

	rr = do(t, server.Handler(), http.MethodPost, "/api/leads/"+testLeadID+"/status", `{"status":"contacted"}`, token)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "contacted", decode(t, rr)["status"])
}

func TestPortalSessionIsolation(t *testing.T) {
	fs := withCreator(&fakeStore{
		getClientFn:     func(context.Context, string, string) (store.EndClient, error) { return activeClient(), nil },
		getClientByIDFn: func(context.Context, string) (store.EndClient, error) { return activeClient(), nil },
		listClientProjectsFn: func(_ context.Context, clientID string) ([]store.Project, error) {
			return []store.Project{{ID: testProjectID, EndClientID: clientID, Title: "Lobby"}}, nil
		},
	})
	svc := newTestService(fs)
	server := newTestServer(svc)

	rr := do(t, server.Handler(), http.MethodPost, "/api/clients/"+testClientID+"/portal-token", "", creatorToken(t, svc))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	portal := decode(t, rr)["accessToken"].(string)

	rr = do(t, server.Handler(), http.MethodGet, "/api/portal/project", "", portal)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Len(t, decode(t, rr)["projects"], 1)

	for _, path := range []string{"/api/clients", "/api/leads", "/api/dashboard"} {
		rr = do(t, server.Handler(), http.MethodGet, path, "", portal)
		assert.Equal(t, http.StatusForbidden, rr.Code, path)
	}

	rr = do(t, server.Handler(), http.MethodGet, "/api/portal/project", "", creatorToken(t, svc))
	assert.Equal(t, http.StatusForbidden, rr.Code, "creators do not use portal routes")
}

func TestPortalTokenRejectedForInactiveClient(t *testing.T) {
	fs := withCreator(&fakeStore{getClientFn: func(context.Context, string, string) (store.EndClient, error) {
		client := activeClient()
		client.Status = "inactive"
		return client, nil
	}})
	svc := newTestService(fs)
	rr := do(t, newTestServer(svc).Handler(), http.MethodPost, "/api/clients/"+testClientID+"/portal-token", "", creatorToken(t, svc))
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "CLIENT_INACTIVE", decode(t, rr)["code"])
}

func TestPortalRequestSubmissionMailsCreator(t *testing.T) {
	fs := withCreator(&fakeStore{
		getClientFn:     func(context.Context, string, string) (store.EndClient, error) { return activeClient(), nil },
		getClientByIDFn: func(context.Context, string) (store.EndClient, error) { return activeClient(), nil },
		contactForClientFn: func(context.Context, string) (store.CreatorContact, error) {
			return store.CreatorContact{CreatorID: testCreatorID, Email: "avery@example.com"}, nil
		},
	})
	mail := &fakeMailer{configured: true}
	svc := newTestService(fs, func(d *Deps) { d.Mail = mail })
	portal, err := svc.IssuePortalToken(context.Background(), Session{UserID: testUserID}, testClientID)
	require.NoError(t, err)

	rr := do(t, newTestServer(svc).Handler(), http.MethodPost, "/api/portal/requests",
		`{"projectId":"`+testProjectID+`","title":"Swap hero image"}`, portal.Token)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	payload := decode(t, rr)
	assert.Equal(t, "change", payload["requestType"])
	assert.Equal(t, "medium", payload["priority"])
	assert.Equal(t, testClientID, payload["endClientId"])
	assert.Equal(t, []string{"request:avery@example.com"}, mail.Sent())
}

func TestAnalyticsIngest(t *testing.T) {
	var inserted store.Analytics
	fs := &fakeStore{
		projectByTourFn: func(_ context.Context, tourID string) (store.Project, error) {
			if tourID == "tour-42" {
				return store.Project{ID: testProjectID}, nil
			}
			return store.Project{}, sql.ErrNoRows
		},
		insertAnalyticsFn: func(_ context.Context, item store.Analytics) (string, error) {
			inserted = item
			return "analytics-9", nil
		},
	}
	server := newTestServer(newTestService(fs))

	post := func(body, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/functions/analytics-ingest", strings.NewReader(body))
		if token != "" {
			req.Header.Set("X-Ingest-Token", token)
		}
		rr := httptest.NewRecorder()
		server.Handler().ServeHTTP(rr, req)
		return rr
	}

	valid := `{"external_tour_id":"tour-42","date":"2026-03-01","metric_type":"views","metric_value":12}`

	assert.Equal(t, http.StatusUnauthorized, post(valid, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(valid, "wrong").Code)

	rr := post(valid, "ingest-secret")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "analytics-9", decode(t, rr)["id"])
	assert.Equal(t, testProjectID, inserted.ProjectID)
	assert.Equal(t, 12.0, inserted.MetricValue)
	assert.Equal(t, "2026-03-01", inserted.Date.Format("2006-01-02"))

	rr = post(`{"external_tour_id":"tour-404","date":"2026-03-01","metric_type":"views","metric_value":1}`, "ingest-secret")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "TOUR_NOT_FOUND", decode(t, rr)["code"])

	rr = post(`{"external_tour_id":"tour-42","date":"03/01/2026","metric_type":"bogus"}`, "ingest-secret")
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rr)["code"])
}

func TestLeadCaptureNotifiesCreator(t *testing.T) {
	fs := &fakeStore{
		insertLeadFn: func(_ context.Context, item store.Lead) (store.Lead, error) {
			item.ID = testLeadID
			item.Status = "new"
			item.ChatbotName = "Concierge"
			return item, nil
		},
		contactForChatbotFn: func(context.Context, string) (store.CreatorContact, error) {
			return store.CreatorContact{CreatorID: testCreatorID, Email: "avery@example.com", DisplayName: "Avery"}, nil
		},
	}
	mail := &fakeMailer{configured: true}
	server := newTestServer(newTestService(fs, func(d *Deps) { d.Mail = mail }))

	req := httptest.NewRequest(http.MethodPost, "/api/functions/leads", strings.NewReader(
		`{"chatbot_id":"`+testChatbotID+`","visitor_name":"Jo","visitor_email":"JO@Example.com","lead_score":80}`))
	req.Header.Set("X-Ingest-Token", "ingest-secret")
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	lead := decode(t, rr)["lead"].(map[string]any)
	assert.Equal(t, "jo@example.com", lead["visitorEmail"])
	assert.Equal(t, []string{"lead:avery@example.com"}, mail.Sent())
}

func TestAssetUploadRejectsUnsupportedType(t *testing.T) {
	fs := withCreator(&fakeStore{})
	objects := &fakeObjects{}
	svc := newTestService(fs, func(d *Deps) { d.Assets = objects })

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="notes.txt"`)
	header.Set("Content-Type", "text/plain")
	part, err := form.CreatePart(header)
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+creatorToken(t, svc))
	rr := httptest.NewRecorder()
	newTestServer(svc).Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rr.Code, rr.Body.String())
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", decode(t, rr)["code"])
	assert.Empty(t, objects.put)
}

func TestAssetUploadStoresObject(t *testing.T) {
	fs := withCreator(&fakeStore{})
	objects := &fakeObjects{}
	svc := newTestService(fs, func(d *Deps) { d.Assets = objects })

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="lobby.png"`)
	header.Set("Content-Type", "image/png")
	part, err := form.CreatePart(header)
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG fake"))
	require.NoError(t, form.WriteField("projectId", testProjectID))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/assets", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+creatorToken(t, svc))
	rr := httptest.NewRecorder()
	newTestServer(svc).Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, objects.put, 1)
	assert.True(t, strings.HasPrefix(objects.put[0], "creators/"+testCreatorID+"/"+testProjectID+"/"))
	assert.Equal(t, "http://assets.test/"+objects.put[0], decode(t, rr)["fileUrl"])
}

func TestPanicRecovery(t *testing.T) {
	fs := withCreator(&fakeStore{listClientsFn: func(context.Context, string) ([]store.EndClient, error) {
		panic("boom")
	}})
	svc := newTestService(fs)

	rr := do(t, newTestServer(svc).Handler(), http.MethodGet, "/api/clients", "", creatorToken(t, svc))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	payload := decode(t, rr)
	assert.Equal(t, "SERVER_ERROR", payload["code"])
	_, hasDetails := payload["details"]
	assert.False(t, hasDetails)

	rr = do(t, newTestServer(svc, func(o *HTTPOptions) { o.ExposeStack = true }).Handler(), http.MethodGet, "/api/clients", "", creatorToken(t, svc))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	details := decode(t, rr)["details"].(map[string]any)
	assert.Equal(t, "boom", details["panic"])
}

func TestRealtimeRejectsBadBinding(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	streamer := realtime.NewStreamer(realtime.NewHub(nil), time.Minute, nil)
	server := newTestServer(svc, func(o *HTTPOptions) { o.Streamer = streamer })

	rr := do(t, server.Handler(), http.MethodGet, "/api/realtime?binding=users", "", creatorToken(t, svc))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_BINDING", decode(t, rr)["code"])

	rr = do(t, newTestServer(svc).Handler(), http.MethodGet, "/api/realtime?binding=projects", "", creatorToken(t, svc))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestRealtimeStreamsThroughMiddleware(t *testing.T) {
	fs := withCreator(&fakeStore{})
	svc := newTestService(fs)
	hub := realtime.NewHub(nil)
	server := newTestServer(svc, func(o *HTTPOptions) {
		o.Streamer = realtime.NewStreamer(hub, time.Minute, nil)
	})
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()
	defer hub.Close()

	resp, err := http.Get(ts.URL + "/api/realtime?binding=projects&access_token=" + creatorToken(t, svc))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readUntil := func(want string) {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.Contains(line, want) {
				return
			}
		}
	}
	readUntil("SUBSCRIBED")

	hub.Dispatch(realtime.Notification{Table: "projects", Type: "UPDATE", Keys: map[string]string{"id": testProjectID},
		Owner: realtime.Owner{CreatorUserID: "someone-else"}})
	hub.Dispatch(realtime.Notification{Table: "projects", Type: "UPDATE", Keys: map[string]string{"id": testProjectID},
		Owner: realtime.Owner{CreatorUserID: testUserID}, CommitTimestamp: time.Now()})

	readUntil("event: change")
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	if strings.HasPrefix(line, "id:") {
		line, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
	assert.Contains(t, line, testProjectID)
}

func TestParseRangeDefaultsToLastThirtyDays(t *testing.T) {
	now := time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC)

	from, to, err := parseRange(httptest.NewRequest(http.MethodGet, "/x", nil), now)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-31", to.Format(isoDate))
	assert.Equal(t, "2026-03-01", from.Format(isoDate))

	_, _, err = parseRange(httptest.NewRequest(http.MethodGet, "/x?from=2026-04-02&to=2026-04-01", nil), now)
	assert.Error(t, err)

	_, _, err = parseRange(httptest.NewRequest(http.MethodGet, "/x?from=yesterday", nil), now)
	assert.Error(t, err)
}

func TestParseActivityQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/activity?limit=5&types=lead_captured,,request_submitted&priorities=high&from=2026-01-01&projectId="+testProjectID, nil)
	q, err := parseActivityQuery(req)
	require.NoError(t, err)
	assert.Equal(t, 5, q.Limit)
	assert.Len(t, q.Types, 2)
	assert.Len(t, q.Priorities, 1)
	assert.Equal(t, testProjectID, q.ProjectID)
	assert.False(t, q.From.IsZero())
	assert.True(t, q.To.IsZero())

	_, err = parseActivityQuery(httptest.NewRequest(http.MethodGet, "/api/activity?clientId=nope", nil))
	assert.Error(t, err)
}
