package export

import (
	"context"
	"fmt"
	"time"

	"tourcompanion/api/internal/store"
)

// DataStore is the report's view of the database. Every call is scoped to
// the requesting creator.
type DataStore interface {
	GetProject(ctx context.Context, userID, projectID string) (store.Project, error)
	MetricTotals(ctx context.Context, userID, projectID string, from, to time.Time) ([]store.MetricTotal, error)
	ListAnalytics(ctx context.Context, userID, projectID string, from, to time.Time) ([]store.Analytics, error)
}

// Service builds project analytics reports.
type Service struct {
	store  DataStore
	render Renderer
	now    func() time.Time
}

// NewService creates a report service. A nil renderer uses headless Chrome.
func NewService(store DataStore, render Renderer) *Service {
	if render == nil {
		render = ChromePDF
	}
	return &Service{store: store, render: render, now: time.Now}
}

// Report renders the analytics for one project over [From, To].
func (s *Service) Report(ctx context.Context, req Request) (*Result, error) {
	if req.To.Before(req.From) {
		return nil, ErrInvalidRange
	}

	project, err := s.store.GetProject(ctx, req.UserID, req.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	totals, err := s.store.MetricTotals(ctx, req.UserID, req.ProjectID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("metric totals: %w", err)
	}
	rows, err := s.store.ListAnalytics(ctx, req.UserID, req.ProjectID, req.From, req.To)
	if err != nil {
		return nil, fmt.Errorf("list analytics: %w", err)
	}

	html, err := RenderReportHTML(ReportData{
		Title:       project.Title,
		ClientName:  project.ClientName,
		Views:       project.Views,
		From:        req.From,
		To:          req.To,
		Totals:      totals,
		Rows:        rows,
		GeneratedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	data, err := s.render(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: sanitizeFilename(project.Title) + "-analytics.pdf",
		MimeType: "application/pdf",
	}, nil
}
