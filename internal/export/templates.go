package export

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"strings"
	"time"

	"tourcompanion/api/internal/store"
)

//go:embed templates/report.html
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"formatNumber": formatNumber,
	"metricLabel":  metricLabel,
}).ParseFS(templateFS, "templates/report.html"))

// ReportData holds data for report template rendering.
type ReportData struct {
	Title       string
	ClientName  string
	Views       int64
	From        time.Time
	To          time.Time
	Totals      []store.MetricTotal
	Rows        []store.Analytics
	GeneratedAt time.Time
}

// RenderReportHTML renders the report template with provided data.
func RenderReportHTML(data ReportData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// metricLabel turns avg_time_spent into "Avg time spent".
func metricLabel(metricType string) string {
	label := strings.ReplaceAll(metricType, "_", " ")
	if label == "" {
		return ""
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
