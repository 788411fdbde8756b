// Package export renders project analytics reports to PDF.
package export

import (
	"errors"
	"time"
)

// Request contains parameters for a report export.
type Request struct {
	UserID    string
	ProjectID string
	From      time.Time
	To        time.Time
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates headless Chrome is unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrInvalidRange indicates the report range is inverted.
	ErrInvalidRange = errors.New("report range is invalid")
)
