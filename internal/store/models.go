package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	CreatorID             string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type Creator struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	AgencyName         string    `json:"agencyName"`
	SubscriptionPlan   string    `json:"subscriptionPlan"`
	SubscriptionStatus string    `json:"subscriptionStatus"`
	Phone              string    `json:"phone"`
	Website            string    `json:"website"`
	Email              string    `json:"email"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type EndClient struct {
	ID           string    `json:"id"`
	CreatorID    string    `json:"creatorId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Company      string    `json:"company"`
	Phone        string    `json:"phone"`
	Status       string    `json:"status"`
	ProjectCount int       `json:"projectCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Project struct {
	ID             string    `json:"id"`
	EndClientID    string    `json:"endClientId"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Status         string    `json:"status"`
	TourURL        string    `json:"tourUrl"`
	ExternalTourID string    `json:"externalTourId,omitempty"`
	Views          int64     `json:"views"`
	ClientName     string    `json:"clientName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Chatbot struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"projectId"`
	Name         string          `json:"name"`
	Status       string          `json:"status"`
	Statistics   json.RawMessage `json:"statistics"`
	ProjectTitle string          `json:"projectTitle,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

type Lead struct {
	ID            string    `json:"id"`
	ChatbotID     string    `json:"chatbotId"`
	VisitorName   string    `json:"visitorName"`
	VisitorEmail  string    `json:"visitorEmail"`
	QuestionAsked string    `json:"questionAsked"`
	LeadScore     int       `json:"leadScore"`
	Status        string    `json:"status"`
	ChatbotName   string    `json:"chatbotName,omitempty"`
	ProjectID     string    `json:"projectId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type Analytics struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Date        time.Time       `json:"date"`
	MetricType  string          `json:"metricType"`
	MetricValue float64         `json:"metricValue"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type Request struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"projectId"`
	EndClientID  string    `json:"endClientId"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	RequestType  string    `json:"requestType"`
	Status       string    `json:"status"`
	Priority     string    `json:"priority"`
	ProjectTitle string    `json:"projectTitle,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Asset struct {
	ID         string    `json:"id"`
	CreatorID  string    `json:"creatorId"`
	ProjectID  *string   `json:"projectId"`
	FileName   string    `json:"fileName"`
	FileURL    string    `json:"fileUrl"`
	FileType   string    `json:"fileType"`
	FileSize   int64     `json:"fileSize"`
	StorageKey string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

type SupportRequest struct {
	ID        string    `json:"id"`
	CreatorID string    `json:"creatorId"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type DashboardCounts struct {
	Clients        int   `json:"clients"`
	ActiveProjects int   `json:"activeProjects"`
	TotalProjects  int   `json:"totalProjects"`
	Chatbots       int   `json:"chatbots"`
	Leads          int   `json:"leads"`
	NewLeads       int   `json:"newLeads"`
	OpenRequests   int   `json:"openRequests"`
	TotalViews     int64 `json:"totalViews"`
}

// MetricTotal aggregates one metric type over a date range.
type MetricTotal struct {
	MetricType string  `json:"metricType"`
	Total      float64 `json:"total"`
	Samples    int     `json:"samples"`
}

// Owner identifies who may see a changed row.
type Owner struct {
	CreatorUserID string
	CreatorID     string
	EndClientID   string
	ProjectID     string
}

// ActivityScope narrows the activity source queries. CreatorUserID is always
// set; the other fields are optional.
type ActivityScope struct {
	CreatorUserID string
	ClientID      string
	ProjectID     string
}

// CreatorContact is the addressee of notification mail.
type CreatorContact struct {
	CreatorID   string
	UserID      string
	Email       string
	DisplayName string
	AgencyName  string
}
