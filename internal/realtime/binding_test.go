package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBinding(t *testing.T) {
	tests := []struct {
		raw     string
		want    Binding
		wantErr bool
	}{
		{raw: "projects", want: Binding{Table: "projects"}},
		{raw: "leads:project_id=eq.p-1", want: Binding{Table: "leads", Column: "project_id", Value: "p-1"}},
		{raw: " projects:id=eq.p-1 ", want: Binding{Table: "projects", Column: "id", Value: "p-1"}},
		{raw: "users", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "leads:project_id", wantErr: true},
		{raw: "leads:project_id=neq.p-1", wantErr: true},
		{raw: "leads:visitor_email=eq.a@b.c", wantErr: true},
		{raw: "leads:project_id=eq.", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseBinding(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBinding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBindingsRequiresOne(t *testing.T) {
	_, err := ParseBindings(nil)
	assert.ErrorIs(t, err, ErrInvalidBinding)

	bindings, err := ParseBindings([]string{"projects", "requests:project_id=eq.p-1"})
	require.NoError(t, err)
	assert.Len(t, bindings, 2)
	assert.Equal(t, "requests:project_id=eq.p-1", bindings[1].String())
}

func TestBindingMatchesFallsBackToOwner(t *testing.T) {
	lead := Notification{
		Table: "leads",
		Type:  "INSERT",
		Keys:  map[string]string{"id": "l-1", "chatbot_id": "cb-1"},
		Owner: Owner{CreatorUserID: "u-1", ProjectID: "p-1", EndClientID: "ec-1"},
	}

	assert.True(t, Binding{Table: "leads"}.Matches(lead))
	assert.True(t, Binding{Table: "leads", Column: "project_id", Value: "p-1"}.Matches(lead))
	assert.True(t, Binding{Table: "leads", Column: "chatbot_id", Value: "cb-1"}.Matches(lead))
	assert.False(t, Binding{Table: "leads", Column: "project_id", Value: "p-2"}.Matches(lead))
	assert.False(t, Binding{Table: "requests"}.Matches(lead))
}

func TestDecodeRowChange(t *testing.T) {
	n, err := DecodeRowChange(`{"table":"requests","type":"update","id":"r-1","project_id":"p-1","end_client_id":"ec-1","commit_timestamp":"2024-05-01T10:00:00.5+00:00"}`)
	require.NoError(t, err)
	assert.Equal(t, "requests", n.Table)
	assert.Equal(t, "UPDATE", n.Type)
	assert.Equal(t, map[string]string{"id": "r-1", "project_id": "p-1", "end_client_id": "ec-1"}, n.Keys)
	assert.Equal(t, 2024, n.CommitTimestamp.Year())

	_, err = DecodeRowChange(`{"type":"INSERT"}`)
	assert.Error(t, err)
	_, err = DecodeRowChange(`not json`)
	assert.Error(t, err)
}

func TestChangeEventPlacesKeysByType(t *testing.T) {
	n := Notification{Table: "projects", Type: "DELETE", Keys: map[string]string{"id": "p-1"}}
	event := n.ChangeEvent()
	assert.Nil(t, event.New)
	assert.Equal(t, "p-1", event.Old["id"])

	n.Type = "INSERT"
	event = n.ChangeEvent()
	assert.Nil(t, event.Old)
	assert.Equal(t, "p-1", event.New["id"])
}
