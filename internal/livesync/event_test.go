package livesync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindingsForUser(t *testing.T) {
	bindings, err := Bindings(Scope{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, bindings, len(DefaultUserTables))
	for _, binding := range bindings {
		assert.Empty(t, binding.Filter)
	}
	assert.Equal(t, "end_clients", bindings[0].String())
}

func TestBindingsForProject(t *testing.T) {
	bindings, err := Bindings(Scope{UserID: "user-1", ProjectID: "p-9"})
	require.NoError(t, err)

	got := map[string]string{}
	for _, binding := range bindings {
		got[binding.Table] = binding.Filter
	}
	assert.Equal(t, "id=eq.p-9", got["projects"])
	assert.Equal(t, "project_id=eq.p-9", got["chatbots"])
	assert.Equal(t, "project_id=eq.p-9", got["requests"])
	assert.NotContains(t, got, "end_clients")
}

func TestBindingsCustomTables(t *testing.T) {
	bindings, err := Bindings(Scope{ProjectID: "p-1", Tables: []string{"leads", " ", "end_clients"}})
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "leads:project_id=eq.p-1", bindings[0].String())
	assert.Equal(t, "end_clients", bindings[1].String())
}

func TestBindingsRejectEmptyScope(t *testing.T) {
	_, err := Bindings(Scope{})
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = Bindings(Scope{UserID: "u", Tables: []string{""}})
	assert.ErrorIs(t, err, ErrInvalidScope)
}
