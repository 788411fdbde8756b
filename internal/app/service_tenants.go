package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/activity"
	"tourcompanion/api/internal/email"
	"tourcompanion/api/internal/export"
	"tourcompanion/api/internal/search"
	"tourcompanion/api/internal/store"
)

// MaxChatbotsPerCreator caps chatbots across all of a creator's projects.
const MaxChatbotsPerCreator = 5

type UpdateCreatorInput struct {
	AgencyName string `json:"agencyName" validate:"required,max=200"`
	Phone      string `json:"phone" validate:"max=50"`
	Website    string `json:"website" validate:"omitempty,url"`
}

type ClientInput struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"omitempty,email"`
	Company string `json:"company" validate:"max=200"`
	Phone   string `json:"phone" validate:"max=50"`
}

type ProjectInput struct {
	EndClientID    string `json:"endClientId" validate:"omitempty,uuid"`
	Title          string `json:"title" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=5000"`
	Status         string `json:"status" validate:"omitempty,oneof=active draft inactive archived"`
	TourURL        string `json:"tourUrl" validate:"omitempty,url"`
	ExternalTourID string `json:"externalTourId" validate:"max=200"`
}

type ProjectStatusInput struct {
	Status string `json:"status" validate:"required,oneof=active draft inactive archived"`
}

type ChatbotInput struct {
	ProjectID  string          `json:"projectId" validate:"omitempty,uuid"`
	Name       string          `json:"name" validate:"required,max=200"`
	Status     string          `json:"status" validate:"omitempty,oneof=active inactive training"`
	Statistics json.RawMessage `json:"statistics"`
}

type StatusInput struct {
	Status string `json:"status" validate:"required"`
}

type PortalRequestInput struct {
	ProjectID   string `json:"projectId" validate:"required,uuid"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	RequestType string `json:"requestType" validate:"omitempty,oneof=change content technical other"`
	Priority    string `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
}

type SupportInput struct {
	Subject string `json:"subject" validate:"required,max=200"`
	Message string `json:"message" validate:"required,max=5000"`
}

// Lead and request workflows. A status may only move along these edges.
var (
	leadTransitions = map[string][]string{
		"new":       {"contacted", "lost"},
		"contacted": {"qualified", "lost"},
		"qualified": {"converted", "lost"},
	}
	requestTransitions = map[string][]string{
		"open":        {"in_progress", "rejected"},
		"in_progress": {"completed", "rejected"},
	}
)

func checkTransition(edges map[string][]string, from, to string) error {
	for _, next := range edges[from] {
		if next == to {
			return nil
		}
	}
	return domainError(http.StatusConflict, "INVALID_TRANSITION", "Cannot move from "+from+" to "+to, map[string]any{
		"from":    from,
		"to":      to,
		"allowed": nonNilStrings(edges[from]),
	})
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func (s *Service) GetCreator(ctx context.Context, sess Session) (store.Creator, error) {
	return s.store.GetCreatorByUser(ctx, sess.UserID)
}

func (s *Service) UpdateCreator(ctx context.Context, sess Session, input UpdateCreatorInput) (store.Creator, error) {
	if err := validateInput(input); err != nil {
		return store.Creator{}, err
	}
	return s.store.UpdateCreator(ctx, sess.UserID, store.Creator{
		AgencyName: strings.TrimSpace(input.AgencyName),
		Phone:      strings.TrimSpace(input.Phone),
		Website:    strings.TrimSpace(input.Website),
	})
}

func (s *Service) ListClients(ctx context.Context, sess Session) ([]store.EndClient, error) {
	return s.store.ListClients(ctx, sess.UserID)
}

func (s *Service) GetClient(ctx context.Context, sess Session, clientID string) (store.EndClient, error) {
	return s.store.GetClient(ctx, sess.UserID, clientID)
}

func (s *Service) CreateClient(ctx context.Context, sess Session, input ClientInput) (store.EndClient, error) {
	if err := validateInput(input); err != nil {
		return store.EndClient{}, err
	}
	client, err := s.store.CreateClient(ctx, sess.UserID, clientFromInput(input))
	if err != nil {
		return store.EndClient{}, err
	}
	s.indexClient(client)
	return client, nil
}

func (s *Service) UpdateClient(ctx context.Context, sess Session, clientID string, input ClientInput) (store.EndClient, error) {
	if err := validateInput(input); err != nil {
		return store.EndClient{}, err
	}
	item := clientFromInput(input)
	item.ID = clientID
	client, err := s.store.UpdateClient(ctx, sess.UserID, item)
	if err != nil {
		return store.EndClient{}, err
	}
	s.indexClient(client)
	return client, nil
}

// SetClientActive deactivates or reactivates a client. Deactivated clients
// lose portal access on their next request.
func (s *Service) SetClientActive(ctx context.Context, sess Session, clientID string, active bool) (store.EndClient, error) {
	status := "inactive"
	if active {
		status = "active"
	}
	client, err := s.store.SetClientStatus(ctx, sess.UserID, clientID, status)
	if err != nil {
		return store.EndClient{}, err
	}
	s.indexClient(client)
	return client, nil
}

func clientFromInput(input ClientInput) store.EndClient {
	return store.EndClient{
		Name:    strings.TrimSpace(input.Name),
		Email:   strings.ToLower(strings.TrimSpace(input.Email)),
		Company: strings.TrimSpace(input.Company),
		Phone:   strings.TrimSpace(input.Phone),
	}
}

func (s *Service) ListProjects(ctx context.Context, sess Session, clientID string) ([]store.Project, error) {
	return s.store.ListProjects(ctx, sess.UserID, clientID)
}

func (s *Service) GetProject(ctx context.Context, sess Session, projectID string) (store.Project, error) {
	return s.store.GetProject(ctx, sess.UserID, projectID)
}

func (s *Service) CreateProject(ctx context.Context, sess Session, input ProjectInput) (store.Project, error) {
	if err := validateInput(input); err != nil {
		return store.Project{}, err
	}
	if input.EndClientID == "" {
		return store.Project{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", []FieldError{{Field: "endClientId", Message: "This field is required"}})
	}
	item := projectFromInput(input)
	if item.Status == "" {
		item.Status = "draft"
	}
	project, err := s.store.CreateProject(ctx, sess.UserID, item)
	if err != nil {
		return store.Project{}, err
	}
	s.indexProject(sess, project)
	return project, nil
}

func (s *Service) UpdateProject(ctx context.Context, sess Session, projectID string, input ProjectInput) (store.Project, error) {
	if err := validateInput(input); err != nil {
		return store.Project{}, err
	}
	item := projectFromInput(input)
	item.ID = projectID
	project, err := s.store.UpdateProject(ctx, sess.UserID, item)
	if err != nil {
		return store.Project{}, err
	}
	s.indexProject(sess, project)
	return project, nil
}

func (s *Service) SetProjectStatus(ctx context.Context, sess Session, projectID string, input ProjectStatusInput) (store.Project, error) {
	if err := validateInput(input); err != nil {
		return store.Project{}, err
	}
	project, err := s.store.SetProjectStatus(ctx, sess.UserID, projectID, input.Status)
	if err != nil {
		return store.Project{}, err
	}
	s.indexProject(sess, project)
	return project, nil
}

func projectFromInput(input ProjectInput) store.Project {
	return store.Project{
		EndClientID:    input.EndClientID,
		Title:          strings.TrimSpace(input.Title),
		Description:    strings.TrimSpace(input.Description),
		Status:         input.Status,
		TourURL:        strings.TrimSpace(input.TourURL),
		ExternalTourID: strings.TrimSpace(input.ExternalTourID),
	}
}

// ProjectAnalytics is the analytics screen payload for one project.
type ProjectAnalytics struct {
	Project store.Project       `json:"project"`
	From    string              `json:"from"`
	To      string              `json:"to"`
	Totals  []store.MetricTotal `json:"totals"`
	Series  []store.Analytics   `json:"series"`
}

func (s *Service) ProjectAnalytics(ctx context.Context, sess Session, projectID string, from, to time.Time) (ProjectAnalytics, error) {
	project, err := s.store.GetProject(ctx, sess.UserID, projectID)
	if err != nil {
		return ProjectAnalytics{}, err
	}
	totals, err := s.store.MetricTotals(ctx, sess.UserID, projectID, from, to)
	if err != nil {
		return ProjectAnalytics{}, err
	}
	series, err := s.store.ListAnalytics(ctx, sess.UserID, projectID, from, to)
	if err != nil {
		return ProjectAnalytics{}, err
	}
	return ProjectAnalytics{
		Project: project,
		From:    from.Format(isoDate),
		To:      to.Format(isoDate),
		Totals:  totals,
		Series:  series,
	}, nil
}

func (s *Service) ProjectReport(ctx context.Context, sess Session, projectID string, from, to time.Time) (*export.Result, error) {
	if s.reports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Report export is not configured", nil)
	}
	return s.reports.Report(ctx, export.Request{UserID: sess.UserID, ProjectID: projectID, From: from, To: to})
}

func (s *Service) ListChatbots(ctx context.Context, sess Session) ([]store.Chatbot, error) {
	return s.store.ListChatbots(ctx, sess.UserID)
}

func (s *Service) CreateChatbot(ctx context.Context, sess Session, input ChatbotInput) (store.Chatbot, error) {
	if err := validateInput(input); err != nil {
		return store.Chatbot{}, err
	}
	if input.ProjectID == "" {
		return store.Chatbot{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", []FieldError{{Field: "projectId", Message: "This field is required"}})
	}
	count, err := s.store.CountChatbots(ctx, sess.UserID)
	if err != nil {
		return store.Chatbot{}, err
	}
	if count >= MaxChatbotsPerCreator {
		return store.Chatbot{}, domainError(http.StatusConflict, "CHATBOT_LIMIT_REACHED", "Chatbot limit reached", map[string]any{"limit": MaxChatbotsPerCreator})
	}
	status := input.Status
	if status == "" {
		status = "active"
	}
	return s.store.CreateChatbot(ctx, sess.UserID, store.Chatbot{
		ProjectID:  input.ProjectID,
		Name:       strings.TrimSpace(input.Name),
		Status:     status,
		Statistics: input.Statistics,
	})
}

func (s *Service) UpdateChatbot(ctx context.Context, sess Session, chatbotID string, input ChatbotInput) (store.Chatbot, error) {
	if err := validateInput(input); err != nil {
		return store.Chatbot{}, err
	}
	status := input.Status
	if status == "" {
		status = "active"
	}
	return s.store.UpdateChatbot(ctx, sess.UserID, store.Chatbot{
		ID:         chatbotID,
		Name:       strings.TrimSpace(input.Name),
		Status:     status,
		Statistics: input.Statistics,
	})
}

func (s *Service) ListLeads(ctx context.Context, sess Session, status string) ([]store.Lead, error) {
	return s.store.ListLeads(ctx, sess.UserID, status)
}

func (s *Service) SetLeadStatus(ctx context.Context, sess Session, leadID string, input StatusInput) (store.Lead, error) {
	if err := validateInput(input); err != nil {
		return store.Lead{}, err
	}
	lead, err := s.store.GetLead(ctx, sess.UserID, leadID)
	if err != nil {
		return store.Lead{}, err
	}
	if lead.Status == input.Status {
		return lead, nil
	}
	if err := checkTransition(leadTransitions, lead.Status, input.Status); err != nil {
		return store.Lead{}, err
	}
	return s.store.SetLeadStatus(ctx, sess.UserID, leadID, input.Status)
}

func (s *Service) ListRequests(ctx context.Context, sess Session, status string) ([]store.Request, error) {
	return s.store.ListRequests(ctx, sess.UserID, status)
}

func (s *Service) SetRequestStatus(ctx context.Context, sess Session, requestID string, input StatusInput) (store.Request, error) {
	if err := validateInput(input); err != nil {
		return store.Request{}, err
	}
	request, err := s.store.GetRequest(ctx, sess.UserID, requestID)
	if err != nil {
		return store.Request{}, err
	}
	if request.Status == input.Status {
		return request, nil
	}
	if err := checkTransition(requestTransitions, request.Status, input.Status); err != nil {
		return store.Request{}, err
	}
	return s.store.SetRequestStatus(ctx, sess.UserID, requestID, input.Status)
}

func (s *Service) PortalProjects(ctx context.Context, sess Session) ([]store.Project, error) {
	return s.store.ListClientProjects(ctx, sess.EndClientID)
}

func (s *Service) PortalRequests(ctx context.Context, sess Session) ([]store.Request, error) {
	return s.store.ListClientRequests(ctx, sess.EndClientID)
}

// SubmitPortalRequest files a change request and mails the owning creator.
func (s *Service) SubmitPortalRequest(ctx context.Context, sess Session, input PortalRequestInput) (store.Request, error) {
	if err := validateInput(input); err != nil {
		return store.Request{}, err
	}
	item := store.Request{
		ProjectID:   input.ProjectID,
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		RequestType: input.RequestType,
		Priority:    input.Priority,
	}
	if item.RequestType == "" {
		item.RequestType = "change"
	}
	if item.Priority == "" {
		item.Priority = "medium"
	}
	request, err := s.store.CreateClientRequest(ctx, sess.EndClientID, item)
	if err != nil {
		return store.Request{}, err
	}

	contact, err := s.store.ContactForClient(ctx, sess.EndClientID)
	if err != nil {
		s.logger.Warn("no creator contact for request", zap.String("request_id", request.ID), zap.Error(err))
		return request, nil
	}
	s.notify(ctx, "new_request", func() error {
		return s.mail.SendNewRequestEmail(contact.Email, email.RequestData{
			CreatorName:  firstNonEmpty(contact.DisplayName, contact.AgencyName),
			ClientName:   sess.UserName,
			ProjectTitle: request.ProjectTitle,
			Title:        request.Title,
			Description:  request.Description,
			Priority:     request.Priority,
			DashboardURL: s.dashboardURL("/requests"),
		})
	})
	return request, nil
}

func (s *Service) CreateSupportRequest(ctx context.Context, sess Session, input SupportInput) (store.SupportRequest, error) {
	if err := validateInput(input); err != nil {
		return store.SupportRequest{}, err
	}
	return s.store.InsertSupportRequest(ctx, sess.UserID, store.SupportRequest{
		Subject: strings.TrimSpace(input.Subject),
		Message: strings.TrimSpace(input.Message),
	})
}

func (s *Service) Dashboard(ctx context.Context, sess Session) (store.DashboardCounts, error) {
	return s.store.DashboardCounts(ctx, sess.UserID)
}

func (s *Service) Activity(ctx context.Context, sess Session, q activity.Query) ([]activity.Item, error) {
	if s.activity == nil {
		return []activity.Item{}, nil
	}
	q.CreatorUserID = sess.UserID
	return s.activity.Recent(ctx, q)
}

func (s *Service) Search(ctx context.Context, sess Session, text string, kind search.ResultType, limit, offset int) search.Response {
	if s.search == nil || strings.TrimSpace(text) == "" {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{
		Text:       text,
		FilterType: kind,
		CreatorID:  sess.CreatorID,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Service) indexClient(client store.EndClient) {
	if s.search == nil {
		return
	}
	s.search.IndexClient(search.ClientRecord{
		ID:        client.ID,
		Name:      client.Name,
		Email:     client.Email,
		Company:   client.Company,
		Status:    client.Status,
		CreatorID: client.CreatorID,
	})
}

func (s *Service) indexProject(sess Session, project store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:          project.ID,
		Title:       project.Title,
		Description: project.Description,
		Status:      project.Status,
		ClientID:    project.EndClientID,
		ClientName:  project.ClientName,
		CreatorID:   sess.CreatorID,
	})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
