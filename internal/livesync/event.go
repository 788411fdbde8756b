// Package livesync keeps a view consistent with server-side mutations. A
// Session subscribes to row change notifications for a scope, collapses bursts
// of notifications into a single refresh, and reconnects with bounded
// exponential backoff when the channel fails.
package livesync

import (
	"context"
	"errors"
	"strings"
	"time"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a row-level notification. Payloads are not inspected; an
// event only signals that the view may be stale.
type ChangeEvent struct {
	Table           string         `json:"table"`
	Type            ChangeType     `json:"type"`
	New             map[string]any `json:"new,omitempty"`
	Old             map[string]any `json:"old,omitempty"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}

// Event carries either a change or a channel status.
type Event struct {
	Change *ChangeEvent
	Status Status
	Err    error
}

func ChangeOf(change ChangeEvent) Event {
	return Event{Change: &change}
}

func StatusOf(status Status, err error) Event {
	return Event{Status: status, Err: err}
}

var (
	ErrStreamClosed = errors.New("livesync: stream closed")
	ErrInvalidScope = errors.New("livesync: scope needs a user id or a project id")
)

// Stream is a lazy, non-restartable sequence of events for one channel.
// Close may be called concurrently with Next and must unblock it.
type Stream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// Feed opens channels. Each call to Open yields a fresh Stream.
type Feed interface {
	Open(ctx context.Context, bindings []Binding) (Stream, error)
}

// Binding subscribes to all events of one table, optionally narrowed by a
// "column=eq.value" filter.
type Binding struct {
	Table  string
	Filter string
}

func (b Binding) String() string {
	if b.Filter == "" {
		return b.Table
	}
	return b.Table + ":" + b.Filter
}

// Scope selects what a session watches. A project id narrows the channel to
// rows tied to that project; otherwise the user id watches everything the
// creator owns.
type Scope struct {
	UserID    string
	ProjectID string
	Tables    []string
}

var (
	DefaultUserTables    = []string{"end_clients", "projects", "chatbots", "leads", "analytics", "requests"}
	DefaultProjectTables = []string{"projects", "chatbots", "leads", "analytics", "requests"}
)

// projectColumn names the column that ties a table's rows to a project.
var projectColumn = map[string]string{
	"projects":    "id",
	"end_clients": "",
}

// Bindings derives the channel bindings for scope.
func Bindings(scope Scope) ([]Binding, error) {
	projectID := strings.TrimSpace(scope.ProjectID)
	userID := strings.TrimSpace(scope.UserID)
	if projectID == "" && userID == "" {
		return nil, ErrInvalidScope
	}

	tables := scope.Tables
	if len(tables) == 0 {
		if projectID != "" {
			tables = DefaultProjectTables
		} else {
			tables = DefaultUserTables
		}
	}

	bindings := make([]Binding, 0, len(tables))
	for _, table := range tables {
		table = strings.TrimSpace(table)
		if table == "" {
			continue
		}
		binding := Binding{Table: table}
		if projectID != "" {
			column, ok := projectColumn[table]
			if !ok {
				column = "project_id"
			}
			if column != "" {
				binding.Filter = column + "=eq." + projectID
			}
		}
		bindings = append(bindings, binding)
	}
	if len(bindings) == 0 {
		return nil, ErrInvalidScope
	}
	return bindings, nil
}
