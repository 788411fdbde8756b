// Package manifest serves the PWA web manifest, either the product default
// or a per-project variant for the client portal.
package manifest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"tourcompanion/api/internal/store"
	"tourcompanion/api/internal/util"
)

const (
	ContentType         = "application/manifest+json"
	defaultCacheControl = "public, max-age=3600"
	projectCacheControl = "public, max-age=1800"
	shortNameLimit      = 12
)

type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose,omitempty"`
}

type Manifest struct {
	Name            string   `json:"name"`
	ShortName       string   `json:"short_name"`
	Description     string   `json:"description"`
	StartURL        string   `json:"start_url"`
	Scope           string   `json:"scope"`
	Display         string   `json:"display"`
	Orientation     string   `json:"orientation"`
	BackgroundColor string   `json:"background_color"`
	ThemeColor      string   `json:"theme_color"`
	Categories      []string `json:"categories"`
	Icons           []Icon   `json:"icons"`
}

var icons = []Icon{
	{Src: "/icons/icon-192.png", Sizes: "192x192", Type: "image/png", Purpose: "any maskable"},
	{Src: "/icons/icon-512.png", Sizes: "512x512", Type: "image/png", Purpose: "any maskable"},
}

func Default() Manifest {
	return Manifest{
		Name:            "TourCompanion",
		ShortName:       "TourCompanion",
		Description:     "Manage virtual tours, clients, chatbots and leads.",
		StartURL:        "/",
		Scope:           "/",
		Display:         "standalone",
		Orientation:     "portrait-primary",
		BackgroundColor: "#ffffff",
		ThemeColor:      "#2563eb",
		Categories:      []string{"business", "productivity"},
		Icons:           icons,
	}
}

// ForProject builds the client portal manifest for an active project.
func ForProject(project store.Project) Manifest {
	m := Default()
	m.Name = project.Title
	m.ShortName = shorten(project.Title)
	m.Description = project.Description
	if m.Description == "" {
		m.Description = "Virtual tour portal for " + project.Title
	}
	m.StartURL = "/client/" + project.ID
	m.Scope = m.StartURL
	return m
}

func shorten(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= shortNameLimit {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:shortNameLimit]))
}

type ProjectLookup interface {
	GetPublicProject(ctx context.Context, projectID string) (store.Project, error)
}

type Handler struct {
	projects ProjectLookup
	logger   *zap.Logger
}

func NewHandler(projects ProjectLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{projects: projects, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeManifestError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	projectID := strings.TrimSpace(r.URL.Query().Get("projectId"))
	if projectID == "" {
		writeManifest(w, Default(), defaultCacheControl)
		return
	}
	if !util.IsID(projectID) {
		writeManifestError(w, http.StatusNotFound, "Project not found")
		return
	}

	project, err := h.projects.GetPublicProject(r.Context(), projectID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		writeManifestError(w, http.StatusNotFound, "Project not found")
		return
	case err != nil:
		h.logger.Error("manifest project lookup failed", zap.String("project_id", projectID), zap.Error(err))
		writeManifestError(w, http.StatusInternalServerError, "Failed to generate manifest")
		return
	case project.Status != "active":
		writeManifestError(w, http.StatusNotFound, "Project not found")
		return
	}

	writeManifest(w, ForProject(project), projectCacheControl)
}

func writeManifest(w http.ResponseWriter, m Manifest, cacheControl string) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", cacheControl)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(m)
}

func writeManifestError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
