package export

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tourcompanion/api/internal/store"
)

type fakeStore struct {
	getProjectFn func(userID, projectID string) (store.Project, error)
	totals       []store.MetricTotal
	rows         []store.Analytics
}

func (f *fakeStore) GetProject(_ context.Context, userID, projectID string) (store.Project, error) {
	return f.getProjectFn(userID, projectID)
}

func (f *fakeStore) MetricTotals(context.Context, string, string, time.Time, time.Time) ([]store.MetricTotal, error) {
	return f.totals, nil
}

func (f *fakeStore) ListAnalytics(context.Context, string, string, time.Time, time.Time) ([]store.Analytics, error) {
	return f.rows, nil
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Harbor Loft", "Harbor-Loft"},
		{"Tour #1 (draft)", "Tour-1-draft"},
		{"", "project"},
		{"!!!", "project"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.input), tt.input)
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	assert.Equal(t, "a%20b", percentEncodeForDataURL("a b"))
	assert.Equal(t, "%3Cp%3E", percentEncodeForDataURL("<p>"))
	assert.Equal(t, "%C3%A9", percentEncodeForDataURL("é"))
	assert.Equal(t, "safe-_.~", percentEncodeForDataURL("safe-_.~"))
}

func TestMetricLabelAndNumber(t *testing.T) {
	assert.Equal(t, "Avg time spent", metricLabel("avg_time_spent"))
	assert.Equal(t, "", metricLabel(""))
	assert.Equal(t, "12", formatNumber(12))
	assert.Equal(t, "3.50", formatNumber(3.5))
}

func TestRenderReportHTML(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	html, err := RenderReportHTML(ReportData{
		Title:      "Harbor <Loft>",
		ClientName: "Harbor Realty",
		Views:      42,
		From:       day,
		To:         day.AddDate(0, 0, 7),
		Totals:     []store.MetricTotal{{MetricType: "views", Total: 30, Samples: 3}},
		Rows:       []store.Analytics{{Date: day, MetricType: "unique_visitors", MetricValue: 7}},
	})
	require.NoError(t, err)
	assert.Contains(t, html, "Harbor &lt;Loft&gt;")
	assert.Contains(t, html, "Harbor Realty")
	assert.Contains(t, html, "42 lifetime views")
	assert.Contains(t, html, "Unique visitors")
	assert.Contains(t, html, "2026-03-02")
}

func TestRenderReportHTMLEmpty(t *testing.T) {
	html, err := RenderReportHTML(ReportData{Title: "Empty"})
	require.NoError(t, err)
	assert.Contains(t, html, "No analytics recorded")
	assert.NotContains(t, html, "Daily breakdown")
}

func TestReportUsesRenderer(t *testing.T) {
	fs := &fakeStore{getProjectFn: func(userID, projectID string) (store.Project, error) {
		assert.Equal(t, "u-1", userID)
		assert.Equal(t, "p-1", projectID)
		return store.Project{ID: "p-1", Title: "Harbor Loft"}, nil
	}}
	var rendered string
	svc := NewService(fs, func(_ context.Context, html string) ([]byte, error) {
		rendered = html
		return []byte("%PDF-1.7"), nil
	})

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	result, err := svc.Report(context.Background(), Request{UserID: "u-1", ProjectID: "p-1", From: from, To: from.AddDate(0, 0, 30)})
	require.NoError(t, err)
	assert.Equal(t, "Harbor-Loft-analytics.pdf", result.Filename)
	assert.Equal(t, "application/pdf", result.MimeType)
	assert.Equal(t, []byte("%PDF-1.7"), result.Data)
	assert.Contains(t, rendered, "Harbor Loft")
}

func TestReportErrors(t *testing.T) {
	missing := &fakeStore{getProjectFn: func(string, string) (store.Project, error) {
		return store.Project{}, sql.ErrNoRows
	}}
	svc := NewService(missing, func(context.Context, string) ([]byte, error) { return nil, nil })
	now := time.Now()

	_, err := svc.Report(context.Background(), Request{From: now, To: now.Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Report(context.Background(), Request{From: now, To: now})
	assert.ErrorIs(t, err, sql.ErrNoRows)

	ok := &fakeStore{getProjectFn: func(string, string) (store.Project, error) { return store.Project{Title: "x"}, nil }}
	svc = NewService(ok, func(context.Context, string) ([]byte, error) {
		return nil, ErrPDFDependencyMissing
	})
	_, err = svc.Report(context.Background(), Request{From: now, To: now})
	assert.True(t, errors.Is(err, ErrPDFDependencyMissing))
}
