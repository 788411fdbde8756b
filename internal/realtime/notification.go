// Package realtime fans row change notifications out to subscribed clients.
// Postgres NOTIFY payloads are resolved to their owning tenant by the Broker,
// published on a Redis channel, and delivered by every replica's Hub to the
// matching server-sent event streams.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourcompanion/api/internal/livesync"
	"tourcompanion/api/internal/store"
)

// Channel is the Redis pub/sub channel shared by all API replicas.
const Channel = "tourcompanion:changes"

// Owner is the tenant a changed row belongs to.
type Owner struct {
	CreatorUserID string `json:"creatorUserId"`
	CreatorID     string `json:"creatorId"`
	EndClientID   string `json:"endClientId,omitempty"`
	ProjectID     string `json:"projectId,omitempty"`
}

func ownerFromStore(owner store.Owner) Owner {
	return Owner{
		CreatorUserID: owner.CreatorUserID,
		CreatorID:     owner.CreatorID,
		EndClientID:   owner.EndClientID,
		ProjectID:     owner.ProjectID,
	}
}

// Notification is one row change with its resolved owner.
type Notification struct {
	Table           string            `json:"table"`
	Type            string            `json:"type"`
	Keys            map[string]string `json:"keys"`
	Owner           Owner             `json:"owner"`
	CommitTimestamp time.Time         `json:"commitTimestamp"`
}

var errBadPayload = errors.New("realtime: malformed change payload")

// DecodeRowChange parses the JSON sent by the notify_row_change trigger.
// Every string field other than table, type and commit_timestamp is a key.
func DecodeRowChange(payload string) (Notification, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", errBadPayload, err)
	}

	n := Notification{Keys: map[string]string{}}
	for key, value := range raw {
		text, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "table":
			n.Table = text
		case "type":
			n.Type = strings.ToUpper(text)
		case "commit_timestamp":
			if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
				n.CommitTimestamp = ts.UTC()
			}
		default:
			n.Keys[key] = text
		}
	}
	if n.Table == "" || n.Type == "" {
		return Notification{}, fmt.Errorf("%w: table and type are required", errBadPayload)
	}
	if n.CommitTimestamp.IsZero() {
		n.CommitTimestamp = time.Now().UTC()
	}
	return n, nil
}

// ChangeEvent renders the notification in the wire shape livesync clients
// decode. Keys go to "old" for deletes and "new" otherwise.
func (n Notification) ChangeEvent() livesync.ChangeEvent {
	row := make(map[string]any, len(n.Keys))
	for key, value := range n.Keys {
		row[key] = value
	}
	event := livesync.ChangeEvent{
		Table:           n.Table,
		Type:            livesync.ChangeType(n.Type),
		CommitTimestamp: n.CommitTimestamp,
	}
	if event.Type == livesync.ChangeDelete {
		event.Old = row
	} else {
		event.New = row
	}
	return event
}
