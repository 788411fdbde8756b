// Package activity derives the recent-activity feed from the five tracked
// tables. Items are recomputed on every call and never stored.
package activity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"tourcompanion/api/internal/store"
)

// Window is how far back the feed looks. It is not configurable.
const Window = 48 * time.Hour

const DefaultLimit = 50

type Type string

const (
	ProjectCreated    Type = "project_created"
	ProjectUpdated    Type = "project_updated"
	ChatbotCreated    Type = "chatbot_created"
	ChatbotUpdated    Type = "chatbot_updated"
	LeadCaptured      Type = "lead_captured"
	LeadUpdated       Type = "lead_updated"
	RequestSubmitted  Type = "request_submitted"
	RequestUpdated    Type = "request_updated"
	AnalyticsRecorded Type = "analytics_recorded"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

type Item struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Icon        string    `json:"icon"`
	Color       string    `json:"color"`
	Priority    Priority  `json:"priority"`
	EntityID    string    `json:"entityId"`
	ProjectID   string    `json:"projectId,omitempty"`
}

// Query scopes and filters the feed. Zero From/To leave the range open.
type Query struct {
	CreatorUserID string
	ClientID      string
	ProjectID     string
	Limit         int
	Types         []Type
	Priorities    []Priority
	From          time.Time
	To            time.Time
}

type Source interface {
	RecentProjects(ctx context.Context, scope store.ActivityScope, since time.Time) ([]store.Project, error)
	RecentChatbots(ctx context.Context, scope store.ActivityScope, since time.Time) ([]store.Chatbot, error)
	RecentLeads(ctx context.Context, scope store.ActivityScope, since time.Time) ([]store.Lead, error)
	RecentRequests(ctx context.Context, scope store.ActivityScope, since time.Time) ([]store.Request, error)
	RecentAnalytics(ctx context.Context, scope store.ActivityScope, since time.Time) ([]store.Analytics, error)
}

type Aggregator struct {
	source Source
	now    func() time.Time
}

// NewAggregator builds an aggregator. A nil now uses time.Now.
func NewAggregator(source Source, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	return &Aggregator{source: source, now: now}
}

// Recent fetches all five sources, maps rows to items, drops anything before
// the window, applies the query filters, sorts newest first and truncates.
// Any failing source fails the whole feed.
func (a *Aggregator) Recent(ctx context.Context, q Query) ([]Item, error) {
	cutoff := a.now().Add(-Window)
	scope := store.ActivityScope{CreatorUserID: q.CreatorUserID, ClientID: q.ClientID, ProjectID: q.ProjectID}

	var (
		projects  []store.Project
		chatbots  []store.Chatbot
		leads     []store.Lead
		requests  []store.Request
		analytics []store.Analytics
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		projects, err = a.source.RecentProjects(gctx, scope, cutoff)
		return wrap("projects", err)
	})
	group.Go(func() (err error) {
		chatbots, err = a.source.RecentChatbots(gctx, scope, cutoff)
		return wrap("chatbots", err)
	})
	group.Go(func() (err error) {
		leads, err = a.source.RecentLeads(gctx, scope, cutoff)
		return wrap("leads", err)
	})
	group.Go(func() (err error) {
		requests, err = a.source.RecentRequests(gctx, scope, cutoff)
		return wrap("requests", err)
	})
	group.Go(func() (err error) {
		analytics, err = a.source.RecentAnalytics(gctx, scope, cutoff)
		return wrap("analytics", err)
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(projects)+len(chatbots)+len(leads)+len(requests)+len(analytics))
	for _, row := range projects {
		items = append(items, fromProject(row)...)
	}
	for _, row := range chatbots {
		items = append(items, fromChatbot(row)...)
	}
	for _, row := range leads {
		items = append(items, fromLead(row)...)
	}
	for _, row := range requests {
		items = append(items, fromRequest(row)...)
	}
	for _, row := range analytics {
		items = append(items, fromAnalytics(row))
	}

	filtered := items[:0]
	for _, item := range items {
		if item.Timestamp.Before(cutoff) || !q.accepts(item) {
			continue
		}
		filtered = append(filtered, item)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered, nil
}

func wrap(table string, err error) error {
	if err != nil {
		return fmt.Errorf("fetch recent %s: %w", table, err)
	}
	return nil
}

func (q Query) accepts(item Item) bool {
	if len(q.Types) > 0 && !contains(q.Types, item.Type) {
		return false
	}
	if len(q.Priorities) > 0 && !contains(q.Priorities, item.Priority) {
		return false
	}
	if !q.From.IsZero() && item.Timestamp.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && item.Timestamp.After(q.To) {
		return false
	}
	return true
}

func contains[T comparable](values []T, want T) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
