package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/auth"
	"tourcompanion/api/internal/logging"
	"tourcompanion/api/internal/rbac"
	"tourcompanion/api/internal/realtime"
)

type HTTPOptions struct {
	CORSOrigin  string
	IngestToken string
	// ExposeStack adds panic stack traces to 500 details (development only).
	ExposeStack bool
	Logger      *zap.Logger
	Streamer    *realtime.Streamer
	Manifest    http.Handler
}

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	ingestToken string
	exposeStack bool
	logger      *zap.Logger
	streamer    *realtime.Streamer
	manifest    http.Handler
}

func NewHTTPServer(service *Service, opts HTTPOptions) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{
		service:     service,
		corsOrigin:  opts.CORSOrigin,
		ingestToken: opts.IngestToken,
		exposeStack: opts.ExposeStack,
		logger:      logger.Named("http"),
		streamer:    opts.Streamer,
		manifest:    opts.Manifest,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, sess Session, action rbac.Action) {
	logging.FromContext(r.Context()).Info("forbidden",
		zap.String("user_id", sess.UserID),
		zap.String("role", string(sess.Role)),
		zap.String("action", string(action)),
	)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/" {
		serveAppShell(w, r)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ready, checks := s.service.Readiness(ctx)
		status, statusCode := "ready", http.StatusOK
		if !ready {
			status, statusCode = "not_ready", http.StatusServiceUnavailable
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     ready,
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.URL.Path == "/api/manifest" {
		if s.manifest == nil {
			writeError(w, http.StatusServiceUnavailable, "MANIFEST_UNAVAILABLE", "Manifest not configured", nil)
			return
		}
		s.manifest.ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/functions/") {
		s.handleFunctions(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/resend-verification" {
		s.handleAuthResendVerification(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		sess, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(sess, map[string]any{"authenticated": true}))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			if status, _, _, _ := mapError(err); status >= http.StatusInternalServerError {
				s.writeServiceError(w, r, err)
				return
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(sess, map[string]any{
			"accessToken":  sess.Token,
			"refreshToken": sess.RefreshToken,
			"expiresAt":    sess.ExpiresAt.Unix(),
		}))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		sess := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				sess = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), sess, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	r = r.WithContext(logging.WithContext(r.Context(), logging.FromContext(r.Context()).With(zap.String("user_id", sess.UserID))))

	switch parts[1] {
	case "realtime":
		s.handleRealtime(w, r, sess)
		return
	case "portal":
		if !sess.Portal() {
			s.forbid(w, r, sess, rbac.ActionSubmitRequest)
			return
		}
		s.handlePortal(w, r, sess, parts[2:])
		return
	}

	if sess.Portal() {
		s.forbid(w, r, sess, rbac.ActionRead)
		return
	}
	action := rbac.ActionRead
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		action = rbac.ActionWrite
	}
	if !s.service.Can(sess.Role, action) {
		s.forbid(w, r, sess, action)
		return
	}

	switch parts[1] {
	case "creator":
		s.handleCreator(w, r, sess, parts[2:])
	case "clients":
		s.handleClients(w, r, sess, parts[2:])
	case "projects":
		s.handleProjects(w, r, sess, parts[2:])
	case "chatbots":
		s.handleChatbots(w, r, sess, parts[2:])
	case "leads":
		s.handleLeads(w, r, sess, parts[2:])
	case "requests":
		s.handleRequests(w, r, sess, parts[2:])
	case "assets":
		s.handleAssets(w, r, sess, parts[2:])
	case "support":
		s.handleSupport(w, r, sess, parts[2:])
	case "dashboard":
		s.handleDashboard(w, r, sess, parts[2:])
	case "activity":
		s.handleActivity(w, r, sess, parts[2:])
	case "search":
		s.handleSearch(w, r, sess, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleFunctions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	token := strings.TrimSpace(r.Header.Get("X-Ingest-Token"))
	if token == "" || s.ingestToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.ingestToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return
	}

	switch r.URL.Path {
	case "/api/functions/analytics-ingest":
		var input AnalyticsIngestInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		id, err := s.service.IngestAnalytics(r.Context(), input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id})
	case "/api/functions/leads":
		var input LeadCaptureInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		lead, err := s.service.CaptureLead(r.Context(), input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": lead.ID, "lead": lead})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRealtime(w http.ResponseWriter, r *http.Request, sess Session) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if s.streamer == nil {
		writeError(w, http.StatusServiceUnavailable, "REALTIME_UNAVAILABLE", "Realtime is not configured", nil)
		return
	}
	bindings, err := realtime.ParseBindings(r.URL.Query()["binding"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BINDING", err.Error(), nil)
		return
	}
	principal := realtime.Principal{CreatorUserID: sess.UserID, Admin: sess.Role == rbac.RoleAdmin}
	if sess.Portal() {
		principal = realtime.Principal{EndClientID: sess.EndClientID}
	}
	s.streamer.Stream(w, r, principal, bindings)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	sess, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		logging.FromContext(r.Context()).Error("session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return sess, true
}

// writeServiceError maps err and logs anything that lands on a 5xx.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request failed", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx, logger := logging.WithRequestID(r.Context(), s.logger, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		defer func() {
			if recovered := recover(); recovered != nil {
				stack := string(debug.Stack())
				logger.Error("panic recovered",
					zap.Any("panic", recovered),
					zap.String("stack", stack),
				)
				if !writer.wroteHeader {
					var details any
					if s.exposeStack {
						details = map[string]any{"panic": fmt.Sprint(recovered), "stack": stack}
					}
					writeError(writer, http.StatusInternalServerError, "SERVER_ERROR", "Server error", details)
				}
			}
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", writer.status),
				zap.Int64("duration_ms", time.Since(started).Milliseconds()),
			)
		}()

		next.ServeHTTP(writer, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Flush lets the realtime stream push events through the recorder.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Ingest-Token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// EventSource cannot set headers; the realtime endpoint accepts a query token.
	if r.URL.Path == "/api/realtime" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	return ""
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func sessionPayload(sess Session, extra map[string]any) map[string]any {
	payload := map[string]any{
		"userId":    sess.UserID,
		"userName":  sess.UserName,
		"email":     sess.Email,
		"role":      sess.Role,
		"creatorId": sess.CreatorID,
	}
	if sess.EndClientID != "" {
		payload["endClientId"] = sess.EndClientID
	}
	for key, value := range extra {
		payload[key] = value
	}
	return payload
}
