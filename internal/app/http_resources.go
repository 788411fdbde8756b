package app

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tourcompanion/api/internal/activity"
	"tourcompanion/api/internal/export"
	"tourcompanion/api/internal/search"
	"tourcompanion/api/internal/storage"
	"tourcompanion/api/internal/util"
)

const defaultAnalyticsWindow = 30 * 24 * time.Hour

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) handleCreator(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 0 {
		notFound(w)
		return
	}
	switch r.Method {
	case http.MethodGet:
		creator, err := s.service.GetCreator(r.Context(), sess)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, creator)
	case http.MethodPut:
		var input UpdateCreatorInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		creator, err := s.service.UpdateCreator(r.Context(), sess, input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, creator)
	default:
		methodNotAllowed(w)
	}
}

func (s *HTTPServer) handleClients(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			clients, err := s.service.ListClients(r.Context(), sess)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
		case http.MethodPost:
			var input ClientInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			client, err := s.service.CreateClient(r.Context(), sess, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, client)
		default:
			methodNotAllowed(w)
		}
		return
	}

	clientID := rest[0]
	if !util.IsID(clientID) {
		notFound(w)
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			client, err := s.service.GetClient(r.Context(), sess, clientID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, client)
		case http.MethodPut:
			var input ClientInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			client, err := s.service.UpdateClient(r.Context(), sess, clientID, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, client)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(rest) != 2 || r.Method != http.MethodPost {
		notFound(w)
		return
	}
	switch rest[1] {
	case "deactivate", "activate":
		client, err := s.service.SetClientActive(r.Context(), sess, clientID, rest[1] == "activate")
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, client)
	case "portal-token":
		portal, err := s.service.IssuePortalToken(r.Context(), sess, clientID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"accessToken": portal.Token,
			"endClientId": portal.EndClientID,
			"expiresAt":   portal.ExpiresAt.Unix(),
		})
	default:
		notFound(w)
	}
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			clientID := strings.TrimSpace(r.URL.Query().Get("clientId"))
			if clientID != "" && !util.IsID(clientID) {
				writeJSON(w, http.StatusOK, map[string]any{"projects": []any{}})
				return
			}
			projects, err := s.service.ListProjects(r.Context(), sess, clientID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		case http.MethodPost:
			var input ProjectInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.CreateProject(r.Context(), sess, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			methodNotAllowed(w)
		}
		return
	}

	projectID := rest[0]
	if !util.IsID(projectID) {
		notFound(w)
		return
	}

	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			project, err := s.service.GetProject(r.Context(), sess, projectID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		case http.MethodPut:
			var input ProjectInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			project, err := s.service.UpdateProject(r.Context(), sess, projectID, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, project)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(rest) != 2 {
		notFound(w)
		return
	}

	switch {
	case rest[1] == "status" && r.Method == http.MethodPost:
		var input ProjectStatusInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		project, err := s.service.SetProjectStatus(r.Context(), sess, projectID, input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case rest[1] == "analytics" && r.Method == http.MethodGet:
		from, to, err := parseRange(r, time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
			return
		}
		result, err := s.service.ProjectAnalytics(r.Context(), sess, projectID, from, to)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case rest[1] == "report.pdf" && r.Method == http.MethodGet:
		from, to, err := parseRange(r, time.Now().UTC())
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
			return
		}
		result, err := s.service.ProjectReport(r.Context(), sess, projectID, from, to)
		if err != nil {
			switch {
			case errors.Is(err, export.ErrPDFDependencyMissing):
				writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer is not installed", nil)
			case errors.Is(err, export.ErrInvalidRange):
				writeError(w, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
			default:
				s.writeServiceError(w, r, err)
			}
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
	default:
		notFound(w)
	}
}

// parseRange reads ?from= and ?to= as YYYY-MM-DD. Missing bounds default to
// the trailing thirty days ending today.
func parseRange(r *http.Request, now time.Time) (time.Time, time.Time, error) {
	to := now.Truncate(24 * time.Hour)
	from := to.Add(-defaultAnalyticsWindow)

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(isoDate, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(isoDate, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("to must be YYYY-MM-DD")
		}
		to = parsed
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from must not be after to")
	}
	return from, to, nil
}

func (s *HTTPServer) handleChatbots(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			chatbots, err := s.service.ListChatbots(r.Context(), sess)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"chatbots": chatbots, "limit": MaxChatbotsPerCreator})
		case http.MethodPost:
			var input ChatbotInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			chatbot, err := s.service.CreateChatbot(r.Context(), sess, input)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, chatbot)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(rest) != 1 || !util.IsID(rest[0]) {
		notFound(w)
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var input ChatbotInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	chatbot, err := s.service.UpdateChatbot(r.Context(), sess, rest[0], input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatbot)
}

func (s *HTTPServer) handleLeads(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		leads, err := s.service.ListLeads(r.Context(), sess, strings.TrimSpace(r.URL.Query().Get("status")))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
		return
	}

	if len(rest) != 2 || rest[1] != "status" || !util.IsID(rest[0]) {
		notFound(w)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var input StatusInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	lead, err := s.service.SetLeadStatus(r.Context(), sess, rest[0], input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (s *HTTPServer) handleRequests(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		requests, err := s.service.ListRequests(r.Context(), sess, strings.TrimSpace(r.URL.Query().Get("status")))
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
		return
	}

	if len(rest) != 2 || rest[1] != "status" || !util.IsID(rest[0]) {
		notFound(w)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var input StatusInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	request, err := s.service.SetRequestStatus(r.Context(), sess, rest[0], input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *HTTPServer) handleAssets(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
			if projectID != "" && !util.IsID(projectID) {
				writeJSON(w, http.StatusOK, map[string]any{"assets": []any{}})
				return
			}
			assets, err := s.service.ListAssets(r.Context(), sess, projectID)
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"assets": assets})
		case http.MethodPost:
			s.handleAssetUpload(w, r, sess)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(rest) != 1 || !util.IsID(rest[0]) {
		notFound(w)
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	if err := s.service.DeleteAsset(r.Context(), sess, rest[0]); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// multipartOverhead leaves room for boundaries and the projectId field on top
// of the file size limit.
const multipartOverhead = 1 << 20

func (s *HTTPServer) handleAssetUpload(w http.ResponseWriter, r *http.Request, sess Session) {
	r.Body = http.MaxBytesReader(w, r.Body, storage.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File exceeds the 50 MB limit", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Expected multipart form data", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file field", nil)
		return
	}
	defer file.Close()

	projectID := strings.TrimSpace(r.FormValue("projectId"))
	if projectID != "" && !util.IsID(projectID) {
		notFound(w)
		return
	}

	asset, err := s.service.UploadAsset(r.Context(), sess, Upload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
		ProjectID:   projectID,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, asset)
}

func (s *HTTPServer) handleSupport(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 0 {
		notFound(w)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var input SupportInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	ticket, err := s.service.CreateSupportRequest(r.Context(), sess, input)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		notFound(w)
		return
	}
	counts, err := s.service.Dashboard(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *HTTPServer) handleActivity(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		notFound(w)
		return
	}
	q, err := parseActivityQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_QUERY", err.Error(), nil)
		return
	}
	items, err := s.service.Activity(r.Context(), sess, q)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseActivityQuery(r *http.Request) (activity.Query, error) {
	values := r.URL.Query()
	q := activity.Query{
		ClientID:  strings.TrimSpace(values.Get("clientId")),
		ProjectID: strings.TrimSpace(values.Get("projectId")),
	}
	if (q.ClientID != "" && !util.IsID(q.ClientID)) || (q.ProjectID != "" && !util.IsID(q.ProjectID)) {
		return activity.Query{}, errors.New("clientId and projectId must be UUIDs")
	}
	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return activity.Query{}, errors.New("limit must be a non-negative integer")
		}
		q.Limit = limit
	}
	for _, raw := range splitList(values.Get("types")) {
		q.Types = append(q.Types, activity.Type(raw))
	}
	for _, raw := range splitList(values.Get("priorities")) {
		q.Priorities = append(q.Priorities, activity.Priority(raw))
	}
	var err error
	if q.From, err = parseInstant(values.Get("from")); err != nil {
		return activity.Query{}, fmt.Errorf("from: %w", err)
	}
	if q.To, err = parseInstant(values.Get("to")); err != nil {
		return activity.Query{}, fmt.Errorf("to: %w", err)
	}
	return q, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseInstant accepts RFC 3339 timestamps or bare dates.
func parseInstant(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(isoDate, raw)
	if err != nil {
		return time.Time{}, errors.New("expected RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 0 || r.Method != http.MethodGet {
		notFound(w)
		return
	}
	values := r.URL.Query()
	limit, _ := strconv.Atoi(values.Get("limit"))
	offset, _ := strconv.Atoi(values.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	resp := s.service.Search(r.Context(), sess, values.Get("q"), search.ParseType(values.Get("type")), limit, offset)
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handlePortal(w http.ResponseWriter, r *http.Request, sess Session, rest []string) {
	if len(rest) != 1 {
		notFound(w)
		return
	}
	switch {
	case rest[0] == "project" && r.Method == http.MethodGet:
		projects, err := s.service.PortalProjects(r.Context(), sess)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case rest[0] == "requests" && r.Method == http.MethodGet:
		requests, err := s.service.PortalRequests(r.Context(), sess)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
	case rest[0] == "requests" && r.Method == http.MethodPost:
		var input PortalRequestInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		request, err := s.service.SubmitPortalRequest(r.Context(), sess, input)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, request)
	default:
		notFound(w)
	}
}
