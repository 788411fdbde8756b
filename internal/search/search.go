package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultClient  ResultType = "client"
	ResultLead    ResultType = "lead"
)

// ParseType maps the ?type= parameter; unknown values search everything.
func ParseType(raw string) ResultType {
	switch ResultType(raw) {
	case ResultProject, ResultClient, ResultLead:
		return ResultType(raw)
	default:
		return ""
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId,omitempty"`
	ClientID  string     `json:"clientId,omitempty"`
}

// Query describes a search request. CreatorID scopes every backend; a query
// without it returns nothing.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	CreatorID  string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ClientID    string `json:"clientId"`
	ClientName  string `json:"clientName"`
	CreatorID   string `json:"creatorId"`
}

// ClientRecord is the data we index for an end client.
type ClientRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Company   string `json:"company"`
	Status    string `json:"status"`
	CreatorID string `json:"creatorId"`
}

// LeadRecord is the data we index for a lead.
type LeadRecord struct {
	ID            string `json:"id"`
	VisitorName   string `json:"visitorName"`
	VisitorEmail  string `json:"visitorEmail"`
	QuestionAsked string `json:"questionAsked"`
	ChatbotName   string `json:"chatbotName"`
	ProjectID     string `json:"projectId"`
	CreatorID     string `json:"creatorId"`
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
