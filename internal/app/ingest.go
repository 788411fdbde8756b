package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/email"
	"tourcompanion/api/internal/search"
	"tourcompanion/api/internal/store"
)

const isoDate = "2006-01-02"

func isISODate(value string) bool {
	_, err := time.Parse(isoDate, value)
	return err == nil
}

// AnalyticsIngestInput is posted by the tour host for every metric sample.
type AnalyticsIngestInput struct {
	ExternalTourID string          `json:"external_tour_id" validate:"required,max=200"`
	Date           string          `json:"date" validate:"required,isodate"`
	MetricType     string          `json:"metric_type" validate:"required,oneof=views unique_visitors avg_time_spent chatbot_interactions leads_generated hotspot_clicks"`
	MetricValue    *float64        `json:"metric_value" validate:"required,gte=0"`
	Metadata       json.RawMessage `json:"metadata"`
}

// LeadCaptureInput is posted by the chatbot backend when a visitor leaves
// contact details.
type LeadCaptureInput struct {
	ChatbotID     string `json:"chatbot_id" validate:"required,uuid"`
	VisitorName   string `json:"visitor_name" validate:"max=200"`
	VisitorEmail  string `json:"visitor_email" validate:"required,email"`
	QuestionAsked string `json:"question_asked" validate:"max=5000"`
	LeadScore     int    `json:"lead_score" validate:"gte=0,lte=100"`
}

// IngestAnalytics appends one metric row for the tour's project.
func (s *Service) IngestAnalytics(ctx context.Context, input AnalyticsIngestInput) (string, error) {
	if err := validateInput(input); err != nil {
		return "", err
	}
	project, err := s.store.GetProjectByExternalTourID(ctx, strings.TrimSpace(input.ExternalTourID))
	if errors.Is(err, sql.ErrNoRows) {
		return "", domainError(http.StatusNotFound, "TOUR_NOT_FOUND", "No project for external_tour_id", nil)
	}
	if err != nil {
		return "", err
	}

	date, _ := time.Parse(isoDate, input.Date)
	metadata := input.Metadata
	if len(metadata) > 0 && !json.Valid(metadata) {
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request validation failed", []FieldError{{Field: "metadata", Message: "Invalid value"}})
	}
	return s.store.InsertAnalytics(ctx, store.Analytics{
		ProjectID:   project.ID,
		Date:        date,
		MetricType:  input.MetricType,
		MetricValue: *input.MetricValue,
		Metadata:    metadata,
	})
}

// CaptureLead records a chatbot lead and tells the creator about it.
func (s *Service) CaptureLead(ctx context.Context, input LeadCaptureInput) (store.Lead, error) {
	if err := validateInput(input); err != nil {
		return store.Lead{}, err
	}
	lead, err := s.store.InsertLead(ctx, store.Lead{
		ChatbotID:     input.ChatbotID,
		VisitorName:   strings.TrimSpace(input.VisitorName),
		VisitorEmail:  strings.ToLower(strings.TrimSpace(input.VisitorEmail)),
		QuestionAsked: strings.TrimSpace(input.QuestionAsked),
		LeadScore:     input.LeadScore,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.Lead{}, domainError(http.StatusNotFound, "CHATBOT_NOT_FOUND", "Chatbot not found", nil)
	}
	if err != nil {
		return store.Lead{}, err
	}

	contact, err := s.store.ContactForChatbot(ctx, lead.ChatbotID)
	if err != nil {
		s.logger.Warn("no creator contact for lead", zap.String("lead_id", lead.ID), zap.Error(err))
		return lead, nil
	}
	if s.search != nil {
		s.search.IndexLead(search.LeadRecord{
			ID:            lead.ID,
			VisitorName:   lead.VisitorName,
			VisitorEmail:  lead.VisitorEmail,
			QuestionAsked: lead.QuestionAsked,
			ChatbotName:   lead.ChatbotName,
			ProjectID:     lead.ProjectID,
			CreatorID:     contact.CreatorID,
		})
	}
	s.notify(ctx, "new_lead", func() error {
		return s.mail.SendNewLeadEmail(contact.Email, email.LeadData{
			CreatorName:   firstNonEmpty(contact.DisplayName, contact.AgencyName),
			ChatbotName:   lead.ChatbotName,
			VisitorName:   lead.VisitorName,
			VisitorEmail:  lead.VisitorEmail,
			QuestionAsked: lead.QuestionAsked,
			LeadScore:     lead.LeadScore,
			DashboardURL:  s.dashboardURL("/leads"),
		})
	})
	return lead, nil
}
