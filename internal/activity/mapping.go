package activity

import (
	"fmt"
	"time"

	"tourcompanion/api/internal/store"
)

type style struct {
	icon  string
	color string
}

var styles = map[Type]style{
	ProjectCreated:    {icon: "folder-plus", color: "blue"},
	ProjectUpdated:    {icon: "folder", color: "sky"},
	ChatbotCreated:    {icon: "bot", color: "purple"},
	ChatbotUpdated:    {icon: "bot", color: "violet"},
	LeadCaptured:      {icon: "user-plus", color: "green"},
	LeadUpdated:       {icon: "user-check", color: "emerald"},
	RequestSubmitted:  {icon: "message-square", color: "orange"},
	RequestUpdated:    {icon: "message-square-more", color: "amber"},
	AnalyticsRecorded: {icon: "bar-chart", color: "indigo"},
}

func newItem(kind Type, entityID, projectID, title, description string, at time.Time, priority Priority) Item {
	s := styles[kind]
	suffix := "created"
	if kind == ProjectUpdated || kind == ChatbotUpdated || kind == LeadUpdated || kind == RequestUpdated {
		suffix = "updated"
	}
	return Item{
		ID:          entityID + ":" + suffix,
		Type:        kind,
		Title:       title,
		Description: description,
		Timestamp:   at,
		Icon:        s.icon,
		Color:       s.color,
		Priority:    priority,
		EntityID:    entityID,
		ProjectID:   projectID,
	}
}

// pair emits the created item and, when the row changed after creation, the
// updated item.
func pair(created, updated Item, createdAt, updatedAt time.Time) []Item {
	if updatedAt.Equal(createdAt) {
		return []Item{created}
	}
	return []Item{created, updated}
}

func fromProject(p store.Project) []Item {
	return pair(
		newItem(ProjectCreated, p.ID, p.ID, "New project created", fmt.Sprintf("%s was created", p.Title), p.CreatedAt, PriorityMedium),
		newItem(ProjectUpdated, p.ID, p.ID, "Project updated", fmt.Sprintf("%s is now %s", p.Title, p.Status), p.UpdatedAt, PriorityMedium),
		p.CreatedAt, p.UpdatedAt,
	)
}

func fromChatbot(c store.Chatbot) []Item {
	return pair(
		newItem(ChatbotCreated, c.ID, c.ProjectID, "Chatbot created", fmt.Sprintf("%s was added", c.Name), c.CreatedAt, PriorityLow),
		newItem(ChatbotUpdated, c.ID, c.ProjectID, "Chatbot updated", fmt.Sprintf("%s is %s", c.Name, c.Status), c.UpdatedAt, PriorityLow),
		c.CreatedAt, c.UpdatedAt,
	)
}

func fromLead(l store.Lead) []Item {
	who := l.VisitorName
	if who == "" {
		who = l.VisitorEmail
	}
	return pair(
		newItem(LeadCaptured, l.ID, l.ProjectID, "New lead captured", fmt.Sprintf("%s via %s", who, l.ChatbotName), l.CreatedAt, PriorityHigh),
		newItem(LeadUpdated, l.ID, l.ProjectID, "Lead updated", fmt.Sprintf("%s marked %s", who, l.Status), l.UpdatedAt, PriorityHigh),
		l.CreatedAt, l.UpdatedAt,
	)
}

func requestPriority(priority string) Priority {
	switch priority {
	case "urgent", "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func fromRequest(r store.Request) []Item {
	priority := requestPriority(r.Priority)
	return pair(
		newItem(RequestSubmitted, r.ID, r.ProjectID, "Change request submitted", r.Title, r.CreatedAt, priority),
		newItem(RequestUpdated, r.ID, r.ProjectID, "Change request updated", fmt.Sprintf("%s is %s", r.Title, r.Status), r.UpdatedAt, priority),
		r.CreatedAt, r.UpdatedAt,
	)
}

func fromAnalytics(a store.Analytics) Item {
	return newItem(AnalyticsRecorded, a.ID, a.ProjectID, "Analytics recorded",
		fmt.Sprintf("%s: %g on %s", a.MetricType, a.MetricValue, a.Date.Format("2006-01-02")),
		a.CreatedAt, PriorityLow)
}
