// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

const appName = "TourCompanion"

// ErrNotConfigured is returned by every send when SMTP is not set up.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends an HTML email with a plain text fallback part.
func (s *Service) SendHTMLEmail(to []string, subject, htmlBody, textBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if textBody == "" {
		textBody = "Please view this email in an HTML-capable email client."
	}

	boundary := "boundary-tourcompanion"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, to, msg.Bytes())
}

type VerificationData struct {
	AppName         string
	UserName        string
	VerificationURL string
}

type PasswordResetData struct {
	AppName  string
	UserName string
	ResetURL string
}

// LeadData describes a lead captured by a tour chatbot.
type LeadData struct {
	AppName       string
	CreatorName   string
	ChatbotName   string
	VisitorName   string
	VisitorEmail  string
	QuestionAsked string
	LeadScore     int
	DashboardURL  string
}

// RequestData describes a change request submitted from the client portal.
type RequestData struct {
	AppName      string
	CreatorName  string
	ClientName   string
	ProjectTitle string
	Title        string
	Description  string
	Priority     string
	DashboardURL string
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	html, err := renderTemplate(verificationTemplate, VerificationData{
		AppName:         appName,
		UserName:        userName,
		VerificationURL: verificationURL,
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Verify your "+appName+" account", html, "Verify your account: "+verificationURL)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	html, err := renderTemplate(passwordResetTemplate, PasswordResetData{
		AppName:  appName,
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return s.SendHTMLEmail([]string{to}, "Reset your "+appName+" password", html, "Reset your password: "+resetURL)
}

// SendNewLeadEmail tells a creator that one of their chatbots captured a lead.
func (s *Service) SendNewLeadEmail(to string, data LeadData) error {
	data.AppName = appName
	html, err := renderTemplate(newLeadTemplate, data)
	if err != nil {
		return fmt.Errorf("render lead template: %w", err)
	}
	subject := fmt.Sprintf("New lead from %s", data.ChatbotName)
	return s.SendHTMLEmail([]string{to}, subject, html, fmt.Sprintf("%s <%s> asked: %s", data.VisitorName, data.VisitorEmail, data.QuestionAsked))
}

// SendNewRequestEmail tells a creator that a client submitted a change request.
func (s *Service) SendNewRequestEmail(to string, data RequestData) error {
	data.AppName = appName
	html, err := renderTemplate(newRequestTemplate, data)
	if err != nil {
		return fmt.Errorf("render request template: %w", err)
	}
	subject := fmt.Sprintf("[%s] %s requested: %s", strings.ToUpper(data.Priority), data.ClientName, data.Title)
	return s.SendHTMLEmail([]string{to}, subject, html, data.Description)
}

func renderTemplate(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
